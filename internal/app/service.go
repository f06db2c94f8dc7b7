package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"puzzle-scoring-service/internal/domain"
	"puzzle-scoring-service/internal/metrics"
)

// Options configures a Service.
type Options struct {
	Policy  ScoringPolicy
	Workers int
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
	Mirror  RankingMirror
	Now     func() time.Time
}

// Service is the scoring core as seen by the transport and CLI layers.
type Service struct {
	Ledger      *Ledger
	Stats       *Stats
	Profiles    *Profiles
	Ranking     *Ranking
	Coordinator *Coordinator
	Feed        *RankingFeed

	store Store
}

func NewService(store Store, challenges ChallengeRepository, locks KeyLocker, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	feed := NewRankingFeed()
	ranking := NewRanking(store, RankingConfig{
		Feed:    feed,
		Mirror:  opts.Mirror,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
		Now:     opts.Now,
	})
	coord := NewCoordinator(store, challenges, ranking, CoordinatorConfig{
		Workers: opts.Workers,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
		Now:     opts.Now,
	})
	ledger := NewLedger(store, challenges, locks, coord, LedgerConfig{
		Policy:  opts.Policy,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
		Now:     opts.Now,
	})
	return &Service{
		Ledger:      ledger,
		Stats:       NewStats(store),
		Profiles:    NewProfiles(store, opts.Now),
		Ranking:     ranking,
		Coordinator: coord,
		Feed:        feed,
		store:       store,
	}
}

// RegisterUser records a user with an empty profile and places it in the ranking.
func (s *Service) RegisterUser(ctx context.Context, user domain.User) error {
	if err := s.store.CreateUser(ctx, user); err != nil {
		return err
	}
	return s.Ranking.Rebuild(ctx)
}

// Submit grades an answer. See Ledger.Submit.
func (s *Service) Submit(ctx context.Context, user domain.UserID, challengeID, answer string, elapsed *time.Duration) (domain.Attempt, error) {
	return s.Ledger.Submit(ctx, user, challengeID, answer, elapsed)
}

func (s *Service) RemainingAttempts(ctx context.Context, user domain.UserID, challengeID string) (int, error) {
	return s.Ledger.RemainingAttempts(ctx, user, challengeID)
}

func (s *Service) HasSolved(ctx context.Context, user domain.UserID, challengeID string) (bool, error) {
	return s.Ledger.HasSolved(ctx, user, challengeID)
}

func (s *Service) SuccessRate(ctx context.Context, challengeID string) (float64, error) {
	return s.Stats.SuccessRate(ctx, challengeID)
}

func (s *Service) ProfileOf(ctx context.Context, user domain.UserID) (domain.Profile, error) {
	return s.Profiles.Get(ctx, user)
}

func (s *Service) RankingPage(ctx context.Context, offset, limit int) ([]domain.RankingEntry, error) {
	return s.Ranking.Page(ctx, offset, limit)
}

func (s *Service) PositionOf(ctx context.Context, user domain.UserID) (int, bool, error) {
	return s.Ranking.PositionOf(ctx, user)
}

// DeleteAttempt removes one attempt and repairs the aggregates it fed.
func (s *Service) DeleteAttempt(ctx context.Context, attemptID string) error {
	return s.Ledger.Delete(ctx, attemptID)
}

// DeleteChallenge removes a challenge and repairs every affected profile.
func (s *Service) DeleteChallenge(ctx context.Context, challengeID string) error {
	return s.Coordinator.DeleteChallenge(ctx, challengeID)
}

// RecomputeAll re-derives every aggregate from the attempt ledger.
func (s *Service) RecomputeAll(ctx context.Context) error {
	return s.Coordinator.RecomputeAll(ctx)
}
