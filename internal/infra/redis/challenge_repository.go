package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"puzzle-scoring-service/internal/domain"
	"puzzle-scoring-service/internal/infra/memory"
)

// ChallengeRepository caches challenges in Redis and falls back to a loader on
// cache miss. Each challenge is stored as JSON under challenge:{id}.
type ChallengeRepository struct {
	client *redis.Client
	loader memory.ChallengeLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewChallengeRepository(client *redis.Client, loader memory.ChallengeLoader, ttl time.Duration) *ChallengeRepository {
	return &ChallengeRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ChallengeRepository) GetChallenge(ctx context.Context, id string) (domain.Challenge, error) {
	if c, ok := r.cached(ctx, id); ok {
		return c, nil
	}

	result, err, _ := r.sf.Do(id, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if c, ok := r.cached(ctx, id); ok {
			return c, nil
		}

		challenge, err := r.loader.LoadChallenge(ctx, id)
		if err != nil {
			return domain.Challenge{}, err
		}

		payload, err := json.Marshal(challenge)
		if err == nil {
			_ = r.client.Set(ctx, r.key(id), payload, r.ttlWithJitter()).Err()
		}
		return challenge, nil
	})
	if err != nil {
		return domain.Challenge{}, err
	}
	return result.(domain.Challenge), nil
}

// Invalidate removes the cached copy so the next read goes to the loader.
func (r *ChallengeRepository) Invalidate(ctx context.Context, id string) error {
	r.sf.Forget(id)
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return err
	}
	return nil
}

func (r *ChallengeRepository) cached(ctx context.Context, id string) (domain.Challenge, bool) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		// redis.Nil and transport errors both fall through to the loader.
		return domain.Challenge{}, false
	}
	var c domain.Challenge
	if err := json.Unmarshal(raw, &c); err != nil {
		return domain.Challenge{}, false
	}
	return c, true
}

func (r *ChallengeRepository) key(id string) string {
	return "challenge:" + id
}

func (r *ChallengeRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
