package app

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"puzzle-scoring-service/internal/domain"
	"puzzle-scoring-service/internal/metrics"
)

// Coordinator keeps challenge stats, profiles and the ranking in step with the
// attempt ledger. Refresh failures after a committed mutation are logged and
// counted, never returned to the caller of that mutation.
type Coordinator struct {
	store      Store
	challenges ChallengeRepository
	stats      *Stats
	profiles   *Profiles
	ranker     Ranker
	workers    int
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
}

// CoordinatorConfig carries the optional settings of Coordinator.
type CoordinatorConfig struct {
	// Workers bounds parallel profile recomputes in batch operations.
	Workers int
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func NewCoordinator(store Store, challenges ChallengeRepository, ranker Ranker, cfg CoordinatorConfig) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Coordinator{
		store:      store,
		challenges: challenges,
		stats:      NewStats(store),
		profiles:   NewProfiles(store, cfg.Now),
		ranker:     ranker,
		workers:    cfg.Workers,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// AttemptCreated refreshes derived state after an attempt was stored.
func (c *Coordinator) AttemptCreated(ctx context.Context, attempt domain.Attempt) {
	c.refreshPair(ctx, "attempt_created", attempt.UserID, attempt.ChallengeID)
}

// AttemptDeleted refreshes derived state after an attempt of the pair was removed.
func (c *Coordinator) AttemptDeleted(ctx context.Context, user domain.UserID, challengeID string) {
	c.refreshPair(ctx, "attempt_deleted", user, challengeID)
}

func (c *Coordinator) refreshPair(ctx context.Context, event string, user domain.UserID, challengeID string) {
	if err := c.stats.Recompute(ctx, challengeID); err != nil {
		c.report(event, &domain.RecomputeError{Scope: domain.ScopeChallenge, Key: challengeID, Err: err})
	}
	if err := c.profiles.Recompute(ctx, user); err != nil {
		c.report(event, &domain.RecomputeError{Scope: domain.ScopeProfile, Key: string(user), Err: err})
	}
	c.rebuild(ctx, event)
}

// DeleteChallenge removes a challenge with its attempts and repairs the
// profiles of everyone who had attempted it, rebuilding the ranking once.
// Only a failure of the deletion itself is returned.
func (c *Coordinator) DeleteChallenge(ctx context.Context, challengeID string) error {
	const event = "challenge_deleted"

	if err := c.stats.Recompute(ctx, challengeID); err != nil {
		if errors.Is(err, domain.ErrChallengeNotFound) {
			return err
		}
		c.report(event, &domain.RecomputeError{Scope: domain.ScopeChallenge, Key: challengeID, Err: err})
	}

	var affected []domain.UserID
	err := c.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		// No attempt may land between collecting users and the cascade.
		if err := tx.LockChallenge(ctx, challengeID); err != nil {
			return err
		}
		users, err := tx.AttemptUsers(ctx, challengeID)
		if err != nil {
			return err
		}
		affected = users
		return tx.DeleteChallenge(ctx, challengeID)
	})
	repairAll := false
	if err != nil {
		if errors.Is(err, domain.ErrChallengeNotFound) {
			return err
		}
		// Could not learn who was affected; delete anyway and repair everyone.
		c.log.WithError(err).WithField("challenge_id", challengeID).
			Warn("collecting affected users failed, falling back to full profile repair")
		if err := c.store.DeleteChallenge(ctx, challengeID); err != nil {
			return err
		}
		repairAll = true
	}

	if err := c.challenges.Invalidate(ctx, challengeID); err != nil {
		c.log.WithError(err).WithField("challenge_id", challengeID).Warn("challenge cache invalidation failed")
	}

	if repairAll {
		users, err := c.store.ListUsers(ctx)
		if err != nil {
			c.report(event, &domain.RecomputeError{Scope: domain.ScopeProfile, Err: err})
		}
		affected = users
	}
	c.recomputeProfiles(ctx, event, affected)
	c.rebuild(ctx, event)
	return nil
}

// RecomputeAll re-derives every challenge counter, every profile and the
// ranking. It is the operator repair path for drifted aggregates.
func (c *Coordinator) RecomputeAll(ctx context.Context) error {
	const event = "recompute_all"

	challengeIDs, err := c.store.ListChallengeIDs(ctx)
	if err != nil {
		return err
	}
	users, err := c.store.ListUsers(ctx)
	if err != nil {
		return err
	}

	statsErr := c.recomputeStats(ctx, event, challengeIDs)
	profilesErr := c.recomputeProfiles(ctx, event, users)
	var rankErr error
	if err := c.ranker.Rebuild(ctx); err != nil {
		rankErr = &domain.RecomputeError{Scope: domain.ScopeRanking, Err: err}
		c.report(event, rankErr)
	}
	return errors.Join(statsErr, profilesErr, rankErr)
}

func (c *Coordinator) recomputeStats(ctx context.Context, event string, challengeIDs []string) error {
	errs := make([]error, len(challengeIDs))
	g := new(errgroup.Group)
	g.SetLimit(c.workers)
	for i, id := range challengeIDs {
		i, id := i, id
		g.Go(func() error {
			if err := c.stats.Recompute(ctx, id); err != nil {
				errs[i] = &domain.RecomputeError{Scope: domain.ScopeChallenge, Key: id, Err: err}
				c.report(event, errs[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// recomputeProfiles refreshes the given users in parallel, reporting each
// failure. The returned error joins all failures.
func (c *Coordinator) recomputeProfiles(ctx context.Context, event string, users []domain.UserID) error {
	errs := make([]error, len(users))
	g := new(errgroup.Group)
	g.SetLimit(c.workers)
	for i, user := range users {
		i, user := i, user
		g.Go(func() error {
			if err := c.profiles.Recompute(ctx, user); err != nil {
				errs[i] = &domain.RecomputeError{Scope: domain.ScopeProfile, Key: string(user), Err: err}
				c.report(event, errs[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (c *Coordinator) rebuild(ctx context.Context, event string) {
	if err := c.ranker.Rebuild(ctx); err != nil {
		c.report(event, &domain.RecomputeError{Scope: domain.ScopeRanking, Err: err})
	}
}

func (c *Coordinator) report(event string, err error) {
	fields := logrus.Fields{"event": event}
	scope := "unknown"
	var rerr *domain.RecomputeError
	if errors.As(err, &rerr) {
		scope = string(rerr.Scope)
		fields["scope"] = scope
		switch rerr.Scope {
		case domain.ScopeChallenge:
			fields["challenge_id"] = rerr.Key
		case domain.ScopeProfile:
			fields["user_id"] = rerr.Key
		}
	}
	c.metrics.ObserveRecomputeFailure(scope)
	c.log.WithFields(fields).WithError(err).Error("aggregate recompute failed")
}
