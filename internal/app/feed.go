package app

import (
	"sync"
	"time"

	"puzzle-scoring-service/internal/domain"
)

// Standings is the leaderboard snapshot pushed to subscribers after a rebuild.
type Standings struct {
	Version   int64                 `json:"version"`
	Entries   []domain.RankingEntry `json:"entries"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// RankingFeed fans out ranking snapshots to live subscribers.
type RankingFeed struct {
	mu          sync.Mutex
	last        Standings
	subscribers map[chan Standings]struct{}
}

func NewRankingFeed() *RankingFeed {
	return &RankingFeed{subscribers: make(map[chan Standings]struct{})}
}

// Subscribe returns a channel primed with the latest snapshot. The caller must
// invoke cancel to release it.
func (f *RankingFeed) Subscribe() (<-chan Standings, func()) {
	ch := make(chan Standings, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	ch <- f.last
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish stores s as the latest snapshot and delivers it to every subscriber.
func (f *RankingFeed) Publish(s Standings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = s
	for ch := range f.subscribers {
		select {
		case ch <- s:
		default:
			// Slow consumer: drop its oldest pending snapshot.
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

// Subscribers reports how many subscriptions are open.
func (f *RankingFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}
