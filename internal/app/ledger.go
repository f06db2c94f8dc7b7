package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"puzzle-scoring-service/internal/domain"
	"puzzle-scoring-service/internal/matcher"
	"puzzle-scoring-service/internal/metrics"
)

// Ledger records attempts. The quota check, scoring and insert of one
// (user, challenge) pair run under that pair's lock and inside one transaction.
type Ledger struct {
	store      Store
	challenges ChallengeRepository
	locks      KeyLocker
	coord      *Coordinator
	policy     ScoringPolicy
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// LedgerConfig carries the optional settings of Ledger.
type LedgerConfig struct {
	Policy  ScoringPolicy
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func NewLedger(store Store, challenges ChallengeRepository, locks KeyLocker, coord *Coordinator, cfg LedgerConfig) *Ledger {
	if cfg.Policy == (ScoringPolicy{}) {
		cfg.Policy = DefaultScoringPolicy()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Ledger{
		store:      store,
		challenges: challenges,
		locks:      locks,
		coord:      coord,
		policy:     cfg.Policy,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
		now:        cfg.Now,
	}
}

// Submit grades answer for user on the challenge and records the attempt.
// Precondition failures are returned as *domain.Rejection and write nothing.
func (l *Ledger) Submit(ctx context.Context, user domain.UserID, challengeID, answer string, elapsed *time.Duration) (domain.Attempt, error) {
	challenge, err := l.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if !challenge.Active {
		l.observe(domain.ErrChallengeInactive)
		return domain.Attempt{}, domain.ErrChallengeInactive
	}

	unlock, err := l.locks.Lock(ctx, pairKey(user, challengeID))
	if err != nil {
		return domain.Attempt{}, err
	}
	defer unlock()

	var attempt domain.Attempt
	err = l.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		solved, err := tx.HasCorrectAttempt(ctx, user, challengeID)
		if err != nil {
			return err
		}
		if solved {
			return domain.ErrAlreadySolved
		}
		count, err := tx.CountUserAttempts(ctx, user, challengeID)
		if err != nil {
			return err
		}
		if count >= challenge.MaxAttempts {
			return domain.ErrQuotaExhausted
		}
		if strings.TrimSpace(answer) == "" {
			return domain.ErrEmptyAnswer
		}
		if elapsed != nil && *elapsed < 0 {
			return domain.ErrInvalidElapsed
		}

		attempt = domain.Attempt{
			ID:          uuid.NewString(),
			UserID:      user,
			ChallengeID: challengeID,
			Answer:      answer,
			Correct:     matcher.Matches(answer, challenge.Candidates()),
			CreatedAt:   l.now(),
			Elapsed:     elapsed,
		}
		// No correct attempt exists yet, so this one is the pair's first.
		if attempt.Correct {
			attempt.Score = l.policy.Score(challenge.Points, elapsed)
		}
		return tx.CreateAttempt(ctx, &attempt)
	})
	unlock()
	l.observe(err)
	if err != nil {
		return domain.Attempt{}, err
	}

	l.log.WithFields(logrus.Fields{
		"user_id":      user,
		"challenge_id": challengeID,
		"correct":      attempt.Correct,
		"score":        attempt.Score,
	}).Debug("attempt recorded")

	l.coord.AttemptCreated(ctx, attempt)
	return attempt, nil
}

// Delete removes an attempt. When the deleted attempt carried the pair's score,
// the earliest remaining correct attempt of the pair inherits the scoring.
func (l *Ledger) Delete(ctx context.Context, attemptID string) error {
	attempt, err := l.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}

	unlock, err := l.locks.Lock(ctx, pairKey(attempt.UserID, attempt.ChallengeID))
	if err != nil {
		return err
	}
	defer unlock()

	err = l.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.DeleteAttempt(ctx, attemptID); err != nil {
			return err
		}
		if attempt.Score == 0 {
			return nil
		}
		return l.rescore(ctx, tx, attempt.UserID, attempt.ChallengeID)
	})
	unlock()
	if err != nil {
		return err
	}

	l.coord.AttemptDeleted(ctx, attempt.UserID, attempt.ChallengeID)
	return nil
}

func (l *Ledger) rescore(ctx context.Context, tx Store, user domain.UserID, challengeID string) error {
	attempts, err := tx.ListAttempts(ctx, user, challengeID)
	if err != nil {
		return err
	}
	var first *domain.Attempt
	for i := range attempts {
		if attempts[i].Score > 0 {
			return nil
		}
		if attempts[i].Correct && first == nil {
			first = &attempts[i]
		}
	}
	if first == nil {
		return nil
	}
	challenge, err := l.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return err
	}
	score := l.policy.Score(challenge.Points, first.Elapsed)
	if score == 0 {
		return nil
	}
	return tx.UpdateAttemptScore(ctx, first.ID, score)
}

// RemainingAttempts returns how many more attempts user may make, never negative.
func (l *Ledger) RemainingAttempts(ctx context.Context, user domain.UserID, challengeID string) (int, error) {
	challenge, err := l.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return 0, err
	}
	count, err := l.store.CountUserAttempts(ctx, user, challengeID)
	if err != nil {
		return 0, err
	}
	return max(0, challenge.MaxAttempts-count), nil
}

// Exhausted reports whether the user has no attempts left on the challenge.
func (l *Ledger) Exhausted(ctx context.Context, user domain.UserID, challengeID string) (bool, error) {
	remaining, err := l.RemainingAttempts(ctx, user, challengeID)
	if err != nil {
		return false, err
	}
	return remaining == 0, nil
}

// HasSolved reports whether the user has a correct attempt on the challenge.
func (l *Ledger) HasSolved(ctx context.Context, user domain.UserID, challengeID string) (bool, error) {
	return l.store.HasCorrectAttempt(ctx, user, challengeID)
}

// AttemptsOf returns the user's attempts on the challenge, newest first.
func (l *Ledger) AttemptsOf(ctx context.Context, user domain.UserID, challengeID string) ([]domain.Attempt, error) {
	attempts, err := l.store.ListAttempts(ctx, user, challengeID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(attempts)-1; i < j; i, j = i+1, j-1 {
		attempts[i], attempts[j] = attempts[j], attempts[i]
	}
	return attempts, nil
}

func (l *Ledger) observe(err error) {
	var rejection *domain.Rejection
	switch {
	case err == nil:
		l.metrics.ObserveSubmission("recorded")
	case errors.As(err, &rejection):
		l.metrics.ObserveSubmission(string(rejection.Reason))
	default:
		l.metrics.ObserveSubmission("error")
	}
}
