package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"puzzle-scoring-service/internal/app"
	"puzzle-scoring-service/internal/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func TestCountUserAttempts(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "attempts" AS "a" WHERE \(user_id = 'u1'\) AND \(challenge_id = 'velas'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := store.CountUserAttempts(context.Background(), "u1", "velas")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreSummary(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(score\), 0\), COUNT\(DISTINCT challenge_id\) FROM "attempts"`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce", "count"}).AddRow(88, 2))

	total, solved, err := store.ScoreSummary(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 88, total)
	assert.Equal(t, 2, solved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteChallengeNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM "challenges"`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteChallenge(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrChallengeNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAttemptNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM "attempts" AS "a"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetAttempt(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, domain.ErrAttemptNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxCommitsAndRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "challenges"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	err := store.RunInTx(ctx, func(ctx context.Context, tx app.Store) error {
		return tx.UpdateChallengeStats(ctx, "velas", 3, 1)
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "challenges"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	err = store.RunInTx(ctx, func(ctx context.Context, tx app.Store) error {
		return tx.UpdateChallengeStats(ctx, "gone", 0, 0)
	})
	assert.ErrorIs(t, err, domain.ErrChallengeNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRankingNeedsTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	assert.Error(t, store.LockRanking(ctx))

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(1918987883\)`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	err := store.RunInTx(ctx, func(ctx context.Context, tx app.Store) error {
		return tx.LockRanking(ctx)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRankingSkipsEmpty(t *testing.T) {
	store, mock := newMockStore(t)
	require.NoError(t, store.UpsertRanking(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecomputeLocks(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	assert.Error(t, store.LockProfile(ctx, "u1"))
	assert.Error(t, store.LockChallengeStats(ctx, "velas"))

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(1886547814, hashtext\('u1'\)\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM "challenges" AS "c" WHERE \(id = 'velas'\) FOR NO KEY UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("velas"))
	mock.ExpectCommit()
	err := store.RunInTx(ctx, func(ctx context.Context, tx app.Store) error {
		if err := tx.LockProfile(ctx, "u1"); err != nil {
			return err
		}
		return tx.LockChallengeStats(ctx, "velas")
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockChallengeForDeletion(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM "challenges" AS "c" WHERE \(id = 'gone'\) FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()
	err := store.RunInTx(ctx, func(ctx context.Context, tx app.Store) error {
		return tx.LockChallenge(ctx, "gone")
	})
	assert.ErrorIs(t, err, domain.ErrChallengeNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNextRankingVersion(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT nextval\('ranking_version_seq'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(42))

	v, err := store.NextRankingVersion(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 42, v)
	require.NoError(t, mock.ExpectationsWereMet())
}
