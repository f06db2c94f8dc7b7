package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"puzzle-scoring-service/internal/domain"
)

// ChallengeLoader loads the grading view of a challenge from Postgres.
type ChallengeLoader struct {
	pool *pgxpool.Pool
}

func NewChallengeLoader(pool *pgxpool.Pool) *ChallengeLoader {
	return &ChallengeLoader{pool: pool}
}

func (l *ChallengeLoader) LoadChallenge(ctx context.Context, id string) (domain.Challenge, error) {
	c := domain.Challenge{ID: id}
	err := l.pool.QueryRow(ctx,
		`SELECT title, answer, points, max_attempts, active, attempts_total, attempts_successful
		   FROM challenges WHERE id=$1`, id).
		Scan(&c.Title, &c.Answer, &c.Points, &c.MaxAttempts, &c.Active, &c.AttemptsTotal, &c.AttemptsSuccessful)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("load challenge: %w", err)
	}

	rows, err := l.pool.Query(ctx,
		`SELECT id::text, text, active FROM alternative_answers
		  WHERE challenge_id=$1 ORDER BY created_at, id`, id)
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("load alternatives: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var alt domain.AlternativeAnswer
		if err := rows.Scan(&alt.ID, &alt.Text, &alt.Active); err != nil {
			return domain.Challenge{}, fmt.Errorf("scan alternative: %w", err)
		}
		c.Alternatives = append(c.Alternatives, alt)
	}
	if err := rows.Err(); err != nil {
		return domain.Challenge{}, fmt.Errorf("load alternatives: %w", err)
	}

	if err := domain.ValidateChallenge(c); err != nil {
		return domain.Challenge{}, err
	}
	return c, nil
}
