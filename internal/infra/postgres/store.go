package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"puzzle-scoring-service/internal/app"
	"puzzle-scoring-service/internal/domain"
)

var _ app.Store = (*Store)(nil)

// rankingLockKey is the advisory lock taken by ranking rebuilds.
const rankingLockKey int64 = 0x72616e6b

const fkViolation = "23503"

// profileLockClass is the first key of the two-key advisory locks taken by
// profile recomputes; the second is hashtext(user_id).
const profileLockClass int32 = 0x70726f66

// Store implements app.Store on Postgres through bun.
type Store struct {
	root *bun.DB
	db   bun.IDB
	inTx bool
}

func NewStore(db *bun.DB) *Store {
	return &Store{root: db, db: db}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx app.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return s.root.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Store{root: s.root, db: tx, inTx: true})
	})
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	return s.RunInTx(ctx, func(ctx context.Context, tx app.Store) error {
		db := tx.(*Store).db
		row := &userRow{ID: string(user.ID), Username: user.Username, JoinedAt: user.JoinedAt}
		if row.JoinedAt.IsZero() {
			row.JoinedAt = timeNow()
		}
		if _, err := db.NewInsert().Model(row).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		profile := &profileRow{UserID: row.ID, UpdatedAt: row.JoinedAt}
		if _, err := db.NewInsert().Model(profile).On("CONFLICT (user_id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
		return nil
	})
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserID, error) {
	var ids []string
	err := s.db.NewSelect().Model((*userRow)(nil)).Column("id").Order("joined_at ASC", "id ASC").Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return toUserIDs(ids), nil
}

func (s *Store) ListChallengeIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().Model((*challengeRow)(nil)).Column("id").Order("id ASC").Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	return ids, nil
}

func (s *Store) DeleteChallenge(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*challengeRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return requireAffected(res, domain.ErrChallengeNotFound)
}

func (s *Store) UpdateChallengeStats(ctx context.Context, id string, total, successful int) error {
	res, err := s.db.NewUpdate().Model((*challengeRow)(nil)).
		Set("attempts_total = ?", total).
		Set("attempts_successful = ?", successful).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update challenge stats: %w", err)
	}
	return requireAffected(res, domain.ErrChallengeNotFound)
}

func (s *Store) ChallengeStats(ctx context.Context, id string) (int, int, error) {
	var total, successful int
	err := s.db.NewSelect().Model((*challengeRow)(nil)).
		Column("attempts_total", "attempts_successful").
		Where("id = ?", id).
		Scan(ctx, &total, &successful)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, domain.ErrChallengeNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("challenge stats: %w", err)
	}
	return total, successful, nil
}

func (s *Store) CreateAttempt(ctx context.Context, attempt *domain.Attempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = timeNow()
	}
	if _, err := s.db.NewInsert().Model(newAttemptRow(*attempt)).Exec(ctx); err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.Field('C') == fkViolation {
			// A concurrent delete removed the referenced row.
			switch pgErr.Field('n') {
			case "attempts_challenge_id_fkey":
				return domain.ErrChallengeNotFound
			case "attempts_user_id_fkey":
				return domain.ErrUserNotFound
			}
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, id string) (domain.Attempt, error) {
	row := new(attemptRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("get attempt: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) DeleteAttempt(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*attemptRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete attempt: %w", err)
	}
	return requireAffected(res, domain.ErrAttemptNotFound)
}

func (s *Store) UpdateAttemptScore(ctx context.Context, id string, score int) error {
	res, err := s.db.NewUpdate().Model((*attemptRow)(nil)).
		Set("score = ?", score).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update attempt score: %w", err)
	}
	return requireAffected(res, domain.ErrAttemptNotFound)
}

func (s *Store) ListAttempts(ctx context.Context, user domain.UserID, challengeID string) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().Model(&rows).
		Where("user_id = ?", string(user)).
		Where("challenge_id = ?", challengeID).
		Order("created_at ASC", "seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	out := make([]domain.Attempt, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) CountUserAttempts(ctx context.Context, user domain.UserID, challengeID string) (int, error) {
	n, err := s.db.NewSelect().Model((*attemptRow)(nil)).
		Where("user_id = ?", string(user)).
		Where("challenge_id = ?", challengeID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

func (s *Store) HasCorrectAttempt(ctx context.Context, user domain.UserID, challengeID string) (bool, error) {
	ok, err := s.db.NewSelect().Model((*attemptRow)(nil)).
		Where("user_id = ?", string(user)).
		Where("challenge_id = ?", challengeID).
		Where("correct").
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check solved: %w", err)
	}
	return ok, nil
}

func (s *Store) CountAttempts(ctx context.Context, challengeID string) (int, int, error) {
	var total, correct int
	err := s.db.NewSelect().Model((*attemptRow)(nil)).
		ColumnExpr("count(*)").
		ColumnExpr("count(*) FILTER (WHERE correct)").
		Where("challenge_id = ?", challengeID).
		Scan(ctx, &total, &correct)
	if err != nil {
		return 0, 0, fmt.Errorf("count challenge attempts: %w", err)
	}
	return total, correct, nil
}

func (s *Store) GlobalCounts(ctx context.Context) (int, int, error) {
	var total, correct int
	err := s.db.NewSelect().Model((*attemptRow)(nil)).
		ColumnExpr("count(*)").
		ColumnExpr("count(*) FILTER (WHERE correct)").
		Scan(ctx, &total, &correct)
	if err != nil {
		return 0, 0, fmt.Errorf("count all attempts: %w", err)
	}
	return total, correct, nil
}

func (s *Store) AttemptUsers(ctx context.Context, challengeID string) ([]domain.UserID, error) {
	var ids []string
	err := s.db.NewSelect().Model((*attemptRow)(nil)).
		Distinct().
		Column("user_id").
		Where("challenge_id = ?", challengeID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("attempt users: %w", err)
	}
	return toUserIDs(ids), nil
}

func (s *Store) ScoreSummary(ctx context.Context, user domain.UserID) (int, int, error) {
	var total, solved int
	err := s.db.NewSelect().Model((*attemptRow)(nil)).
		ColumnExpr("COALESCE(SUM(score), 0)").
		ColumnExpr("COUNT(DISTINCT challenge_id)").
		Where("user_id = ?", string(user)).
		Where("correct").
		Scan(ctx, &total, &solved)
	if err != nil {
		return 0, 0, fmt.Errorf("score summary: %w", err)
	}
	return total, solved, nil
}

func (s *Store) SaveProfile(ctx context.Context, profile domain.Profile) error {
	row := &profileRow{
		UserID:     string(profile.UserID),
		TotalScore: profile.TotalScore,
		Solved:     profile.Solved,
		UpdatedAt:  profile.UpdatedAt,
	}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (user_id) DO UPDATE").
		Set("total_score = EXCLUDED.total_score").
		Set("solved = EXCLUDED.solved").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, user domain.UserID) (domain.Profile, error) {
	row := new(profileRow)
	err := s.db.NewSelect().Model(row).Where("user_id = ?", string(user)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	var rows []profileRow
	if err := s.db.NewSelect().Model(&rows).Order("seq ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	out := make([]domain.Profile, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) NextRankingVersion(ctx context.Context) (int64, error) {
	var version int64
	if err := s.db.QueryRowContext(ctx, "SELECT nextval('ranking_version_seq')").Scan(&version); err != nil {
		return 0, fmt.Errorf("next ranking version: %w", err)
	}
	return version, nil
}

func (s *Store) LockProfile(ctx context.Context, user domain.UserID) error {
	if !s.inTx {
		return errors.New("profile lock requires a transaction")
	}
	if _, err := s.db.ExecContext(ctx, "SELECT pg_advisory_xact_lock(?, hashtext(?))", profileLockClass, string(user)); err != nil {
		return fmt.Errorf("lock profile: %w", err)
	}
	return nil
}

// LockChallenge takes FOR UPDATE on the challenge row. It conflicts with the
// KEY SHARE lock that attempt inserts take through their foreign key.
func (s *Store) LockChallenge(ctx context.Context, id string) error {
	return s.lockChallengeRow(ctx, id, "UPDATE")
}

// LockChallengeStats takes FOR NO KEY UPDATE, which serializes counter
// updates but lets attempt inserts through.
func (s *Store) LockChallengeStats(ctx context.Context, id string) error {
	return s.lockChallengeRow(ctx, id, "NO KEY UPDATE")
}

func (s *Store) lockChallengeRow(ctx context.Context, id, strength string) error {
	if !s.inTx {
		return errors.New("challenge lock requires a transaction")
	}
	var locked string
	err := s.db.NewSelect().Model((*challengeRow)(nil)).
		Column("id").
		Where("id = ?", id).
		For(strength).
		Scan(ctx, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrChallengeNotFound
	}
	if err != nil {
		return fmt.Errorf("lock challenge: %w", err)
	}
	return nil
}

func (s *Store) LockRanking(ctx context.Context) error {
	if !s.inTx {
		return errors.New("ranking lock requires a transaction")
	}
	if _, err := s.db.ExecContext(ctx, "SELECT pg_advisory_xact_lock(?)", rankingLockKey); err != nil {
		return fmt.Errorf("lock ranking: %w", err)
	}
	return nil
}

func (s *Store) UpsertRanking(ctx context.Context, entries []domain.RankingEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]rankingRow, len(entries))
	for i, e := range entries {
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		rows[i] = rankingRow{
			ID:         id,
			UserID:     string(e.UserID),
			Position:   e.Position,
			TotalScore: e.TotalScore,
			Solved:     e.Solved,
			UpdatedAt:  e.UpdatedAt,
		}
	}
	_, err := s.db.NewInsert().Model(&rows).
		On("CONFLICT (user_id) DO UPDATE").
		Set("position = EXCLUDED.position").
		Set("total_score = EXCLUDED.total_score").
		Set("solved = EXCLUDED.solved").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert ranking: %w", err)
	}
	return nil
}

func (s *Store) RankingPage(ctx context.Context, offset, limit int) ([]domain.RankingEntry, error) {
	var rows []rankingRow
	err := s.db.NewSelect().Model(&rows).
		Order("position ASC", "user_id ASC").
		Offset(offset).
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("ranking page: %w", err)
	}
	out := make([]domain.RankingEntry, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) RankingOf(ctx context.Context, user domain.UserID) (domain.RankingEntry, bool, error) {
	row := new(rankingRow)
	err := s.db.NewSelect().Model(row).Where("user_id = ?", string(user)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RankingEntry{}, false, nil
	}
	if err != nil {
		return domain.RankingEntry{}, false, fmt.Errorf("ranking of user: %w", err)
	}
	return row.toDomain(), true, nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func toUserIDs(ids []string) []domain.UserID {
	out := make([]domain.UserID, len(ids))
	for i, id := range ids {
		out[i] = domain.UserID(id)
	}
	return out
}
