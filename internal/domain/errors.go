package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrChallengeNotFound indicates the challenge could not be loaded.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrAttemptNotFound is returned when deleting or reading an unknown attempt.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrUserNotFound is returned for users the core has never seen.
	ErrUserNotFound = errors.New("user not found")
	// ErrLockTimeout means the per-pair submission lock could not be acquired in time.
	ErrLockTimeout = errors.New("submission lock not acquired")

	ErrChallengeInactive = &Rejection{Reason: ReasonChallengeInactive}
	ErrAlreadySolved     = &Rejection{Reason: ReasonAlreadySolved}
	ErrQuotaExhausted    = &Rejection{Reason: ReasonQuotaExhausted}
	ErrEmptyAnswer       = &Rejection{Reason: ReasonEmptyAnswer}
	ErrInvalidElapsed    = &Rejection{Reason: ReasonInvalidElapsed}
)

// Reason names why a submission was refused.
type Reason string

const (
	ReasonChallengeInactive Reason = "challenge_inactive"
	ReasonAlreadySolved     Reason = "already_solved"
	ReasonQuotaExhausted    Reason = "quota_exhausted"
	ReasonEmptyAnswer       Reason = "empty_answer"
	ReasonInvalidElapsed    Reason = "invalid_elapsed"
)

// Rejection is returned when a submission fails a precondition. Nothing is
// written when a Rejection is returned.
type Rejection struct {
	Reason Reason
}

func (r *Rejection) Error() string {
	return "submission rejected: " + string(r.Reason)
}

// Is matches any Rejection with the same reason.
func (r *Rejection) Is(target error) bool {
	var other *Rejection
	if !errors.As(target, &other) {
		return false
	}
	return other.Reason == r.Reason
}

// Validation reports whether the caller sent malformed input, as opposed to a
// policy refusal that may succeed later.
func (r *Rejection) Validation() bool {
	return r.Reason == ReasonEmptyAnswer || r.Reason == ReasonInvalidElapsed
}

// RecomputeScope is the derived state a recompute was refreshing.
type RecomputeScope string

const (
	ScopeChallenge RecomputeScope = "challenge"
	ScopeProfile   RecomputeScope = "profile"
	ScopeRanking   RecomputeScope = "ranking"
)

// RecomputeError wraps a failure to refresh derived state after a committed
// mutation. The mutation stays committed; the aggregate is repaired by the next
// recompute.
type RecomputeError struct {
	Scope RecomputeScope
	Key   string
	Err   error
}

func (e *RecomputeError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("recompute %s: %v", e.Scope, e.Err)
	}
	return fmt.Sprintf("recompute %s %s: %v", e.Scope, e.Key, e.Err)
}

func (e *RecomputeError) Unwrap() error { return e.Err }
