package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"puzzle-scoring-service/internal/domain"
	"puzzle-scoring-service/internal/metrics"
)

// FeedPageSize is how many leaderboard rows are pushed to live subscribers.
const FeedPageSize = 20

// Ranker rebuilds the global leaderboard.
type Ranker interface {
	Rebuild(ctx context.Context) error
}

// Ranking derives the leaderboard from profiles. Rebuilds are always full and
// never run concurrently.
type Ranking struct {
	mu      sync.Mutex
	store   Store
	feed    *RankingFeed
	mirror  RankingMirror
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

// RankingConfig carries the optional collaborators of Ranking.
type RankingConfig struct {
	Feed    *RankingFeed
	Mirror  RankingMirror
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func NewRanking(store Store, cfg RankingConfig) *Ranking {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Ranking{
		store:   store,
		feed:    cfg.Feed,
		mirror:  cfg.Mirror,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,
	}
}

// Rebuild recomputes every position from the stored profiles and upserts the
// entries. It is idempotent.
func (r *Ranking) Rebuild(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.now()
	var (
		entries []domain.RankingEntry
		version int64
	)
	err := r.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.LockRanking(ctx); err != nil {
			return err
		}
		v, err := tx.NextRankingVersion(ctx)
		if err != nil {
			return err
		}
		version = v
		profiles, err := tx.ListProfiles(ctx)
		if err != nil {
			return err
		}
		entries = BuildRanking(profiles, start)
		return tx.UpsertRanking(ctx, entries)
	})
	if err != nil {
		return err
	}
	r.metrics.ObserveRebuild(r.now().Sub(start))

	if r.mirror != nil {
		applied, err := r.mirror.Publish(ctx, version, entries)
		switch {
		case err != nil:
			r.log.WithError(err).Warn("ranking mirror publish failed")
		case !applied:
			r.log.WithField("version", version).Debug("newer ranking already mirrored")
		}
	}
	if r.feed != nil {
		page := entries
		if len(page) > FeedPageSize {
			page = page[:FeedPageSize]
		}
		r.feed.Publish(Standings{Version: version, Entries: page, UpdatedAt: start})
	}
	return nil
}

// BuildRanking orders profiles by score descending and assigns dense 1-based
// positions. Profiles must be in join order; equal scores keep that order.
func BuildRanking(profiles []domain.Profile, now time.Time) []domain.RankingEntry {
	sorted := make([]domain.Profile, len(profiles))
	copy(sorted, profiles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TotalScore > sorted[j].TotalScore
	})

	entries := make([]domain.RankingEntry, len(sorted))
	for i, p := range sorted {
		entries[i] = domain.RankingEntry{
			UserID:     p.UserID,
			Position:   i + 1,
			TotalScore: p.TotalScore,
			Solved:     p.Solved,
			UpdatedAt:  now,
		}
	}
	return entries
}

// Page returns limit entries starting at offset, in position order.
func (r *Ranking) Page(ctx context.Context, offset, limit int) ([]domain.RankingEntry, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		return nil, nil
	}
	if r.mirror != nil {
		entries, ok, err := r.mirror.Page(ctx, offset, limit)
		if err == nil && ok {
			return entries, nil
		}
		if err != nil {
			r.log.WithError(err).Warn("ranking mirror read failed, using store")
		}
	}
	return r.store.RankingPage(ctx, offset, limit)
}

// PositionOf returns the user's position, or false when the user is not ranked.
func (r *Ranking) PositionOf(ctx context.Context, user domain.UserID) (int, bool, error) {
	if r.mirror != nil {
		pos, ok, err := r.mirror.Position(ctx, user)
		if err == nil && ok {
			return pos, true, nil
		}
		if err != nil {
			r.log.WithError(err).Warn("ranking mirror read failed, using store")
		}
	}
	entry, ok, err := r.store.RankingOf(ctx, user)
	if err != nil || !ok {
		return 0, false, err
	}
	return entry.Position, true, nil
}
