package app

import (
	"context"
	"time"

	"puzzle-scoring-service/internal/domain"
)

// Profiles maintains per-user score aggregates. Every recompute is a full
// re-derivation from the attempt ledger.
type Profiles struct {
	store Store
	now   func() time.Time
}

func NewProfiles(store Store, now func() time.Time) *Profiles {
	if now == nil {
		now = time.Now
	}
	return &Profiles{store: store, now: now}
}

// Recompute rebuilds the user's total score and solved count. Recomputes of
// one user are serialized so an older summary never overwrites a newer one.
func (p *Profiles) Recompute(ctx context.Context, user domain.UserID) error {
	return p.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.LockProfile(ctx, user); err != nil {
			return err
		}
		total, solved, err := tx.ScoreSummary(ctx, user)
		if err != nil {
			return err
		}
		return tx.SaveProfile(ctx, domain.Profile{
			UserID:     user,
			TotalScore: total,
			Solved:     solved,
			UpdatedAt:  p.now(),
		})
	})
}

// Get returns the stored profile of user.
func (p *Profiles) Get(ctx context.Context, user domain.UserID) (domain.Profile, error) {
	return p.store.GetProfile(ctx, user)
}
