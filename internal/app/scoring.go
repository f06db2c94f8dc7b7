package app

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScoringPolicy turns a correct answer into points.
type ScoringPolicy struct {
	// BonusWindow is the response time under which the bonus applies.
	BonusWindow time.Duration
	// BonusFactor multiplies the challenge points for fast answers.
	BonusFactor float64
}

// DefaultScoringPolicy grants 20% extra for answers under five minutes.
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{BonusWindow: 5 * time.Minute, BonusFactor: 1.2}
}

// Score returns the points for the first correct attempt of a pair. Callers
// guarantee it is the first: Submit refuses pairs that already hold a correct
// attempt and re-scoring picks the earliest remaining one. Negative elapsed
// times never earn the bonus.
func (p ScoringPolicy) Score(points int, elapsed *time.Duration) int {
	if points <= 0 {
		return 0
	}
	if elapsed == nil || *elapsed < 0 || *elapsed >= p.BonusWindow {
		return points
	}
	return int(decimal.NewFromInt(int64(points)).
		Mul(decimal.NewFromFloat(p.BonusFactor)).
		Floor().
		IntPart())
}
