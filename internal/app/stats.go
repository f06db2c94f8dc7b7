package app

import (
	"context"

	"github.com/shopspring/decimal"

	"puzzle-scoring-service/internal/domain"
)

// Stats maintains the per-challenge attempt counters.
type Stats struct {
	store Store
}

func NewStats(store Store) *Stats {
	return &Stats{store: store}
}

// Recompute recounts the challenge's attempts from the ledger and stores the
// counters. Recomputes of one challenge are serialized.
func (s *Stats) Recompute(ctx context.Context, challengeID string) error {
	return s.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.LockChallengeStats(ctx, challengeID); err != nil {
			return err
		}
		total, correct, err := tx.CountAttempts(ctx, challengeID)
		if err != nil {
			return err
		}
		return tx.UpdateChallengeStats(ctx, challengeID, total, correct)
	})
}

// SuccessRate returns the stored success percentage of a challenge.
func (s *Stats) SuccessRate(ctx context.Context, challengeID string) (float64, error) {
	total, successful, err := s.store.ChallengeStats(ctx, challengeID)
	if err != nil {
		return 0, err
	}
	return SuccessRate(successful, total), nil
}

// Progress summarizes attempts across every challenge.
func (s *Stats) Progress(ctx context.Context) (domain.Progress, error) {
	total, correct, err := s.store.GlobalCounts(ctx)
	if err != nil {
		return domain.Progress{}, err
	}
	return domain.Progress{
		Attempts:    total,
		Correct:     correct,
		SuccessRate: SuccessRate(correct, total),
	}, nil
}

// SuccessRate is 100*successful/total rounded to two decimals, or 0 when there
// are no attempts.
func SuccessRate(successful, total int) float64 {
	if total == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(successful)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2).
		InexactFloat64()
}
