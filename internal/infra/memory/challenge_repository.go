package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"puzzle-scoring-service/internal/domain"
)

// ChallengeLoader fetches challenge content from a backing store.
type ChallengeLoader interface {
	LoadChallenge(ctx context.Context, id string) (domain.Challenge, error)
}

// ChallengeRepository caches challenges with TTL to avoid repeated DB hits.
type ChallengeRepository struct {
	loader ChallengeLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedChallenge
}

type cachedChallenge struct {
	challenge domain.Challenge
	expiresAt time.Time
}

func NewChallengeRepository(loader ChallengeLoader, ttl time.Duration) *ChallengeRepository {
	return &ChallengeRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedChallenge),
	}
}

func (r *ChallengeRepository) GetChallenge(ctx context.Context, id string) (domain.Challenge, error) {
	if c, ok := r.lookup(id); ok {
		return c, nil
	}

	result, err, _ := r.sf.Do(id, func() (interface{}, error) {
		if c, ok := r.lookup(id); ok {
			return c, nil
		}

		challenge, err := r.loader.LoadChallenge(ctx, id)
		if err != nil {
			return domain.Challenge{}, err
		}

		r.mu.Lock()
		r.cache[id] = cachedChallenge{
			challenge: challenge,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return challenge, nil
	})
	if err != nil {
		return domain.Challenge{}, err
	}
	return result.(domain.Challenge), nil
}

// Invalidate drops the cached copy of a challenge.
func (r *ChallengeRepository) Invalidate(_ context.Context, id string) error {
	r.mu.Lock()
	delete(r.cache, id)
	r.mu.Unlock()
	r.sf.Forget(id)
	return nil
}

func (r *ChallengeRepository) lookup(id string) (domain.Challenge, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[id]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Challenge{}, false
	}
	return entry.challenge, true
}

func (r *ChallengeRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticChallengeLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticChallengeLoader struct {
	challenges map[string]domain.Challenge
}

func NewStaticChallengeLoader(challenges map[string]domain.Challenge) *StaticChallengeLoader {
	return &StaticChallengeLoader{challenges: challenges}
}

func (l *StaticChallengeLoader) LoadChallenge(_ context.Context, id string) (domain.Challenge, error) {
	if c, ok := l.challenges[id]; ok {
		return c, nil
	}
	return domain.Challenge{}, domain.ErrChallengeNotFound
}
