package app

import (
	"context"

	"puzzle-scoring-service/internal/domain"
)

// UserStore keeps the minimal user records owned by the accounts service.
type UserStore interface {
	// CreateUser stores the user together with an empty profile.
	CreateUser(ctx context.Context, user domain.User) error
	// ListUsers returns every user in join order.
	ListUsers(ctx context.Context) ([]domain.UserID, error)
}

// ChallengeStore is the write side of challenges the core is allowed to touch.
type ChallengeStore interface {
	ListChallengeIDs(ctx context.Context) ([]string, error)
	// DeleteChallenge removes the challenge and cascades to its attempts.
	DeleteChallenge(ctx context.Context, id string) error
	// LockChallenge takes the challenge row exclusively for the rest of the
	// transaction, blocking new attempts on it. Used before deletion.
	LockChallenge(ctx context.Context, id string) error
	// LockChallengeStats serializes counter recomputes of one challenge for the
	// rest of the transaction without blocking new attempts.
	LockChallengeStats(ctx context.Context, id string) error
	UpdateChallengeStats(ctx context.Context, id string, total, successful int) error
	ChallengeStats(ctx context.Context, id string) (total, successful int, err error)
}

// AttemptStore is the ledger of submissions, the source of truth for every
// derived aggregate.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, attempt *domain.Attempt) error
	GetAttempt(ctx context.Context, id string) (domain.Attempt, error)
	DeleteAttempt(ctx context.Context, id string) error
	UpdateAttemptScore(ctx context.Context, id string, score int) error
	// ListAttempts returns the attempts of one pair, oldest first.
	ListAttempts(ctx context.Context, user domain.UserID, challengeID string) ([]domain.Attempt, error)
	CountUserAttempts(ctx context.Context, user domain.UserID, challengeID string) (int, error)
	HasCorrectAttempt(ctx context.Context, user domain.UserID, challengeID string) (bool, error)
	// CountAttempts returns all and correct attempts referencing the challenge.
	CountAttempts(ctx context.Context, challengeID string) (total, correct int, err error)
	// GlobalCounts is CountAttempts across every challenge.
	GlobalCounts(ctx context.Context) (total, correct int, err error)
	// AttemptUsers returns the distinct users with any attempt on the challenge.
	AttemptUsers(ctx context.Context, challengeID string) ([]domain.UserID, error)
	// ScoreSummary sums the scores of the user's correct attempts and counts the
	// distinct challenges among them.
	ScoreSummary(ctx context.Context, user domain.UserID) (total, solved int, err error)
}

// ProfileStore persists per-user aggregates.
type ProfileStore interface {
	// LockProfile serializes recomputes of one user's profile for the rest of
	// the transaction.
	LockProfile(ctx context.Context, user domain.UserID) error
	SaveProfile(ctx context.Context, profile domain.Profile) error
	GetProfile(ctx context.Context, user domain.UserID) (domain.Profile, error)
	// ListProfiles returns every profile in user join order.
	ListProfiles(ctx context.Context) ([]domain.Profile, error)
}

// RankingStore persists the leaderboard projection.
type RankingStore interface {
	// LockRanking serializes ranking rebuilds for the rest of the transaction.
	LockRanking(ctx context.Context) error
	// NextRankingVersion returns a number greater than any earlier call's. Taken
	// under LockRanking it orders rebuild snapshots by commit order.
	NextRankingVersion(ctx context.Context) (int64, error)
	// UpsertRanking inserts missing entries and updates existing ones in place,
	// keeping their surrogate ids.
	UpsertRanking(ctx context.Context, entries []domain.RankingEntry) error
	RankingPage(ctx context.Context, offset, limit int) ([]domain.RankingEntry, error)
	RankingOf(ctx context.Context, user domain.UserID) (domain.RankingEntry, bool, error)
}

// Store is the persistence layer behind the scoring core.
type Store interface {
	UserStore
	ChallengeStore
	AttemptStore
	ProfileStore
	RankingStore

	// RunInTx runs fn inside one transaction. Calls on tx are part of it;
	// nested RunInTx calls on tx join the outer transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// ChallengeRepository loads the grading view of a challenge, usually through a cache.
type ChallengeRepository interface {
	GetChallenge(ctx context.Context, id string) (domain.Challenge, error)
	Invalidate(ctx context.Context, id string) error
}

// KeyLocker provides mutual exclusion keyed by an arbitrary string.
type KeyLocker interface {
	// Lock blocks until key is held or ctx is done. The returned func releases
	// the lock and is safe to call more than once.
	Lock(ctx context.Context, key string) (func(), error)
}

// RankingMirror is an optional read replica of the leaderboard.
type RankingMirror interface {
	// Publish replaces the mirrored leaderboard unless a snapshot with a higher
	// version is already mirrored. It reports whether the snapshot was applied.
	Publish(ctx context.Context, version int64, entries []domain.RankingEntry) (bool, error)
	Page(ctx context.Context, offset, limit int) ([]domain.RankingEntry, bool, error)
	Position(ctx context.Context, user domain.UserID) (int, bool, error)
}

func pairKey(user domain.UserID, challengeID string) string {
	return "attempt:" + string(user) + ":" + challengeID
}
