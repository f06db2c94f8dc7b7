package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"puzzle-scoring-service/internal/domain"
)

const (
	rankingPositionsKey = "ranking:positions"
	rankingEntriesKey   = "ranking:entries"
	rankingVersionKey   = "ranking:version"
)

// RankingMirror keeps a read copy of the leaderboard in Redis: a sorted set of
// user ids scored by position plus a hash of JSON entries keyed by user id,
// stamped with the version of the rebuild that produced them.
type RankingMirror struct {
	client *redis.Client
}

func NewRankingMirror(client *redis.Client) *RankingMirror {
	return &RankingMirror{client: client}
}

// publishScript swaps in a snapshot unless a newer version is already
// mirrored. ARGV is the version followed by (user, position, entry) triples.
var publishScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[3]) or "0")
local version = tonumber(ARGV[1])
if version <= current then
	return 0
end
redis.call("DEL", KEYS[1], KEYS[2])
for i = 2, #ARGV, 3 do
	redis.call("ZADD", KEYS[1], ARGV[i + 1], ARGV[i])
	redis.call("HSET", KEYS[2], ARGV[i], ARGV[i + 2])
end
redis.call("SET", KEYS[3], ARGV[1])
return 1
`)

// Publish replaces the mirrored leaderboard atomically. Snapshots older than
// the mirrored one are dropped and reported as not applied.
func (m *RankingMirror) Publish(ctx context.Context, version int64, entries []domain.RankingEntry) (bool, error) {
	args := make([]interface{}, 0, 1+3*len(entries))
	args = append(args, version)
	for _, e := range entries {
		payload, err := json.Marshal(e)
		if err != nil {
			return false, fmt.Errorf("encode ranking entry %s: %w", e.UserID, err)
		}
		args = append(args, string(e.UserID), e.Position, string(payload))
	}

	applied, err := publishScript.Run(ctx, m.client,
		[]string{rankingPositionsKey, rankingEntriesKey, rankingVersionKey}, args...).Int()
	if err != nil {
		return false, err
	}
	return applied == 1, nil
}

// Page reports false when nothing is mirrored for the range, letting the
// caller fall back to the store.
func (m *RankingMirror) Page(ctx context.Context, offset, limit int) ([]domain.RankingEntry, bool, error) {
	ids, err := m.client.ZRange(ctx, rankingPositionsKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(ids) == 0 {
		return nil, false, nil
	}

	raw, err := m.client.HMGet(ctx, rankingEntriesKey, ids...).Result()
	if err != nil {
		return nil, false, err
	}
	out := make([]domain.RankingEntry, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			// a concurrent Publish swapped the hash out from under us
			return nil, false, nil
		}
		var e domain.RankingEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, false, fmt.Errorf("decode ranking entry: %w", err)
		}
		out = append(out, e)
	}
	return out, true, nil
}

func (m *RankingMirror) Position(ctx context.Context, user domain.UserID) (int, bool, error) {
	score, err := m.client.ZScore(ctx, rankingPositionsKey, string(user)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return int(score), true, nil
}
