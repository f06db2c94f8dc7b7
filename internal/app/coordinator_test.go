package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"puzzle-scoring-service/internal/app"
	"puzzle-scoring-service/internal/domain"
	"puzzle-scoring-service/internal/infra/memory"
)

var errStorage = errors.New("storage unavailable")

type countingRanker struct {
	app.Ranker
	calls atomic.Int32
}

func (c *countingRanker) Rebuild(ctx context.Context) error {
	c.calls.Add(1)
	return c.Ranker.Rebuild(ctx)
}

// failingStore fails score summaries while fail is set.
type failingStore struct {
	app.Store
	fail *atomic.Bool
}

func (f failingStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx app.Store) error) error {
	return f.Store.RunInTx(ctx, func(ctx context.Context, tx app.Store) error {
		return fn(ctx, failingStore{Store: tx, fail: f.fail})
	})
}

func (f failingStore) ScoreSummary(ctx context.Context, user domain.UserID) (int, int, error) {
	if f.fail.Load() {
		return 0, 0, errStorage
	}
	return f.Store.ScoreSummary(ctx, user)
}

type harness struct {
	store  *memory.Store
	ledger *app.Ledger
	coord  *app.Coordinator
	ranker *countingRanker
	fail   *atomic.Bool
	hook   *logtest.Hook
}

func newHarness(t *testing.T, users int) *harness {
	t.Helper()
	ctx := context.Background()
	mem := memory.NewStore()
	for _, c := range sampleChallenges() {
		require.NoError(t, mem.PutChallenge(c))
	}
	for i := 1; i <= users; i++ {
		require.NoError(t, mem.CreateUser(ctx, domain.User{ID: domain.UserID(fmt.Sprintf("s%d", i))}))
	}

	fail := &atomic.Bool{}
	store := failingStore{Store: mem, fail: fail}
	log, hook := logtest.NewNullLogger()
	challenges := memory.NewChallengeRepository(mem, time.Minute)
	ranker := &countingRanker{Ranker: app.NewRanking(store, app.RankingConfig{Logger: log})}
	coord := app.NewCoordinator(store, challenges, ranker, app.CoordinatorConfig{Workers: 3, Logger: log})
	ledger := app.NewLedger(store, challenges, memory.NewKeyLocker(), coord, app.LedgerConfig{Logger: log})
	return &harness{store: mem, ledger: ledger, coord: coord, ranker: ranker, fail: fail, hook: hook}
}

func TestDeleteChallengeRebuildsRankingOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 5)

	for i := 1; i <= 5; i++ {
		user := domain.UserID(fmt.Sprintf("s%d", i))
		_, err := h.ledger.Submit(ctx, user, "velas", "17", nil)
		require.NoError(t, err)
		_, err = h.ledger.Submit(ctx, user, "puente", "el granjero cruza primero con la cabra", nil)
		require.NoError(t, err)
	}
	h.ranker.calls.Store(0)

	require.NoError(t, h.coord.DeleteChallenge(ctx, "velas"))
	assert.EqualValues(t, 1, h.ranker.calls.Load())

	for i := 1; i <= 5; i++ {
		profile, err := h.store.GetProfile(ctx, domain.UserID(fmt.Sprintf("s%d", i)))
		require.NoError(t, err)
		assert.Equal(t, 25, profile.TotalScore)
		assert.Equal(t, 1, profile.Solved)
	}
	ids, err := h.store.ListChallengeIDs(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids, "velas")
}

func TestDeleteChallengeUnknown(t *testing.T) {
	h := newHarness(t, 1)
	err := h.coord.DeleteChallenge(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrChallengeNotFound)
	assert.Zero(t, h.ranker.calls.Load())
}

func TestDeleteChallengeSucceedsWhenRecomputeFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 2)

	_, err := h.ledger.Submit(ctx, "s1", "velas", "17", nil)
	require.NoError(t, err)
	_, err = h.ledger.Submit(ctx, "s2", "velas", "17", nil)
	require.NoError(t, err)

	h.fail.Store(true)
	require.NoError(t, h.coord.DeleteChallenge(ctx, "velas"))

	// Stale but logged.
	profile, err := h.store.GetProfile(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 40, profile.TotalScore)

	failures := 0
	for _, e := range h.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data["scope"] == "profile" {
			failures++
			assert.Equal(t, "challenge_deleted", e.Data["event"])
		}
	}
	assert.Equal(t, 2, failures)

	h.fail.Store(false)
	require.NoError(t, h.coord.RecomputeAll(ctx))
	profile, err = h.store.GetProfile(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, profile.TotalScore)
	assert.Zero(t, profile.Solved)
}

func TestSubmitSucceedsWhenRecomputeFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1)
	h.fail.Store(true)

	attempt, err := h.ledger.Submit(ctx, "s1", "velas", "17", nil)
	require.NoError(t, err)
	assert.Equal(t, 40, attempt.Score)

	err = h.coord.RecomputeAll(ctx)
	require.Error(t, err)
	var rerr *domain.RecomputeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, domain.ScopeProfile, rerr.Scope)
	assert.ErrorIs(t, err, errStorage)

	h.fail.Store(false)
	require.NoError(t, h.coord.RecomputeAll(ctx))
	profile, err := h.store.GetProfile(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 40, profile.TotalScore)
}

func TestRecomputeAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3)

	_, _ = h.ledger.Submit(ctx, "s1", "velas", "17", nil)
	_, _ = h.ledger.Submit(ctx, "s2", "velas", "mal", nil)
	_, _ = h.ledger.Submit(ctx, "s3", "puente", "granjero cruza primero con la cabra", nil)

	require.NoError(t, h.coord.RecomputeAll(ctx))
	first, err := h.store.RankingPage(ctx, 0, 10)
	require.NoError(t, err)
	require.NoError(t, h.coord.RecomputeAll(ctx))
	second, err := h.store.RankingPage(ctx, 0, 10)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].UserID, second[i].UserID)
		assert.Equal(t, first[i].Position, second[i].Position)
		assert.Equal(t, first[i].TotalScore, second[i].TotalScore)
	}

	total, successful, err := h.store.ChallengeStats(ctx, "velas")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, successful)
}
