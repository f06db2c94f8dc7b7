package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"puzzle-scoring-service/internal/app"
	"puzzle-scoring-service/internal/domain"
)

var _ app.Store = (*Store)(nil)

// Store is an in-process implementation of app.Store. Transactions are
// serialized by a single mutex and are not rolled back on error, so callers
// write last inside a transaction.
type Store struct {
	txMu sync.Mutex

	mu         sync.RWMutex
	users      []domain.User
	userSet    map[domain.UserID]struct{}
	challenges map[string]*domain.Challenge
	order      []string
	attempts   map[string]*attemptRecord
	seq        int64
	profiles   map[domain.UserID]*domain.Profile
	ranking    map[domain.UserID]domain.RankingEntry
	version    int64
}

type attemptRecord struct {
	domain.Attempt
	seq int64
}

func NewStore() *Store {
	return &Store{
		userSet:    make(map[domain.UserID]struct{}),
		challenges: make(map[string]*domain.Challenge),
		attempts:   make(map[string]*attemptRecord),
		profiles:   make(map[domain.UserID]*domain.Profile),
		ranking:    make(map[domain.UserID]domain.RankingEntry),
	}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx app.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx, txStore{s})
}

type txStore struct {
	*Store
}

func (t txStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx app.Store) error) error {
	return fn(ctx, t)
}

// PutChallenge inserts or replaces a challenge. Stored counters are kept when
// replacing.
func (s *Store) PutChallenge(c domain.Challenge) error {
	if err := domain.ValidateChallenge(c); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Alternatives = append([]domain.AlternativeAnswer(nil), c.Alternatives...)
	if prev, ok := s.challenges[c.ID]; ok {
		c.AttemptsTotal = prev.AttemptsTotal
		c.AttemptsSuccessful = prev.AttemptsSuccessful
	} else {
		s.order = append(s.order, c.ID)
	}
	s.challenges[c.ID] = &c
	return nil
}

// LoadChallenge implements ChallengeLoader.
func (s *Store) LoadChallenge(_ context.Context, id string) (domain.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.challenges[id]
	if !ok {
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	out := *c
	out.Alternatives = append([]domain.AlternativeAnswer(nil), c.Alternatives...)
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.userSet[user.ID]; ok {
		return nil
	}
	s.userSet[user.ID] = struct{}{}
	s.users = append(s.users, user)
	s.profiles[user.ID] = &domain.Profile{UserID: user.ID, UpdatedAt: user.JoinedAt}
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]domain.UserID, 0, len(s.users))
	for _, u := range s.users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

func (s *Store) ListChallengeIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...), nil
}

func (s *Store) DeleteChallenge(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[id]; !ok {
		return domain.ErrChallengeNotFound
	}
	delete(s.challenges, id)
	for i, cid := range s.order {
		if cid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	for aid, a := range s.attempts {
		if a.ChallengeID == id {
			delete(s.attempts, aid)
		}
	}
	return nil
}

func (s *Store) UpdateChallengeStats(_ context.Context, id string, total, successful int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	if !ok {
		return domain.ErrChallengeNotFound
	}
	c.AttemptsTotal = total
	c.AttemptsSuccessful = successful
	return nil
}

func (s *Store) ChallengeStats(_ context.Context, id string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.challenges[id]
	if !ok {
		return 0, 0, domain.ErrChallengeNotFound
	}
	return c.AttemptsTotal, c.AttemptsSuccessful, nil
}

func (s *Store) CreateAttempt(_ context.Context, attempt *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[attempt.ChallengeID]; !ok {
		return domain.ErrChallengeNotFound
	}
	if _, ok := s.userSet[attempt.UserID]; !ok {
		return domain.ErrUserNotFound
	}
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	s.seq++
	s.attempts[attempt.ID] = &attemptRecord{Attempt: *attempt, seq: s.seq}
	return nil
}

func (s *Store) GetAttempt(_ context.Context, id string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return a.Attempt, nil
}

func (s *Store) DeleteAttempt(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[id]; !ok {
		return domain.ErrAttemptNotFound
	}
	delete(s.attempts, id)
	return nil
}

func (s *Store) UpdateAttemptScore(_ context.Context, id string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	a.Score = score
	return nil
}

func (s *Store) ListAttempts(_ context.Context, user domain.UserID, challengeID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]*attemptRecord, 0)
	for _, a := range s.attempts {
		if a.UserID == user && a.ChallengeID == challengeID {
			records = append(records, a)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })
	out := make([]domain.Attempt, len(records))
	for i, r := range records {
		out[i] = r.Attempt
	}
	return out, nil
}

func (s *Store) CountUserAttempts(_ context.Context, user domain.UserID, challengeID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.attempts {
		if a.UserID == user && a.ChallengeID == challengeID {
			n++
		}
	}
	return n, nil
}

func (s *Store) HasCorrectAttempt(_ context.Context, user domain.UserID, challengeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.attempts {
		if a.UserID == user && a.ChallengeID == challengeID && a.Correct {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CountAttempts(_ context.Context, challengeID string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total, correct := 0, 0
	for _, a := range s.attempts {
		if a.ChallengeID != challengeID {
			continue
		}
		total++
		if a.Correct {
			correct++
		}
	}
	return total, correct, nil
}

func (s *Store) GlobalCounts(_ context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	correct := 0
	for _, a := range s.attempts {
		if a.Correct {
			correct++
		}
	}
	return len(s.attempts), correct, nil
}

func (s *Store) AttemptUsers(_ context.Context, challengeID string) ([]domain.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[domain.UserID]struct{})
	var out []domain.UserID
	for _, a := range s.attempts {
		if a.ChallengeID != challengeID {
			continue
		}
		if _, ok := seen[a.UserID]; ok {
			continue
		}
		seen[a.UserID] = struct{}{}
		out = append(out, a.UserID)
	}
	return out, nil
}

func (s *Store) ScoreSummary(_ context.Context, user domain.UserID) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	solved := make(map[string]struct{})
	for _, a := range s.attempts {
		if a.UserID != user || !a.Correct {
			continue
		}
		total += a.Score
		solved[a.ChallengeID] = struct{}{}
	}
	return total, len(solved), nil
}

func (s *Store) SaveProfile(_ context.Context, profile domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.userSet[profile.UserID]; !ok {
		return domain.ErrUserNotFound
	}
	p := profile
	s.profiles[profile.UserID] = &p
	return nil
}

func (s *Store) GetProfile(_ context.Context, user domain.UserID) (domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[user]
	if !ok {
		return domain.Profile{}, domain.ErrUserNotFound
	}
	return *p, nil
}

func (s *Store) ListProfiles(_ context.Context) ([]domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Profile, 0, len(s.users))
	for _, u := range s.users {
		if p, ok := s.profiles[u.ID]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// LockRanking is a no-op: transactions are already serialized.
func (s *Store) LockRanking(context.Context) error {
	return nil
}

func (s *Store) NextRankingVersion(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	return s.version, nil
}

// LockProfile is a no-op: transactions are already serialized.
func (s *Store) LockProfile(context.Context, domain.UserID) error {
	return nil
}

// LockChallenge only checks that the challenge exists; transactions are
// already serialized.
func (s *Store) LockChallenge(_ context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.challenges[id]; !ok {
		return domain.ErrChallengeNotFound
	}
	return nil
}

func (s *Store) LockChallengeStats(ctx context.Context, id string) error {
	return s.LockChallenge(ctx, id)
}

func (s *Store) UpsertRanking(_ context.Context, entries []domain.RankingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if prev, ok := s.ranking[e.UserID]; ok {
			e.ID = prev.ID
		} else if e.ID == "" {
			e.ID = uuid.NewString()
		}
		s.ranking[e.UserID] = e
	}
	return nil
}

func (s *Store) RankingPage(_ context.Context, offset, limit int) ([]domain.RankingEntry, error) {
	s.mu.RLock()
	all := make([]domain.RankingEntry, 0, len(s.ranking))
	for _, e := range s.ranking {
		all = append(all, e)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Position != all[j].Position {
			return all[i].Position < all[j].Position
		}
		return all[i].UserID < all[j].UserID
	})
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *Store) RankingOf(_ context.Context, user domain.UserID) (domain.RankingEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.ranking[user]
	return e, ok, nil
}
