package domain

import "time"

// UserID identifies a player. Users are owned by the accounts service; the
// scoring core only needs equality.
type UserID string

// User is the minimal user record the core keeps for cascades and ranking ties.
type User struct {
	ID       UserID    `json:"id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joinedAt"`
}

// AlternativeAnswer is an additional accepted spelling of a challenge answer.
type AlternativeAnswer struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Active bool   `json:"active"`
}

// Challenge is a gradeable puzzle. Editorial fields (title, statement, category)
// live with the catalog; only what grading needs is modelled here.
type Challenge struct {
	ID                 string              `json:"id" validate:"required"`
	Title              string              `json:"title"`
	Answer             string              `json:"answer" validate:"required"`
	Alternatives       []AlternativeAnswer `json:"alternatives"`
	Points             int                 `json:"points" validate:"gte=0"`
	MaxAttempts        int                 `json:"maxAttempts" validate:"min=1,max=10"`
	Active             bool                `json:"active"`
	AttemptsTotal      int                 `json:"attemptsTotal"`
	AttemptsSuccessful int                 `json:"attemptsSuccessful"`
}

// Candidates returns the canonical answer followed by every active alternative,
// in stored order.
func (c Challenge) Candidates() []string {
	out := make([]string, 0, len(c.Alternatives)+1)
	out = append(out, c.Answer)
	for _, alt := range c.Alternatives {
		if alt.Active {
			out = append(out, alt.Text)
		}
	}
	return out
}

// Attempt is one submission of one user against one challenge.
type Attempt struct {
	ID          string         `json:"id"`
	UserID      UserID         `json:"userId"`
	ChallengeID string         `json:"challengeId"`
	Answer      string         `json:"answer"`
	Correct     bool           `json:"correct"`
	Score       int            `json:"score"`
	CreatedAt   time.Time      `json:"createdAt"`
	Elapsed     *time.Duration `json:"elapsed,omitempty"`
}

// Profile is the per-user aggregate derived from attempts.
type Profile struct {
	UserID     UserID    `json:"userId"`
	TotalScore int       `json:"totalScore"`
	Solved     int       `json:"solved"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// RankingEntry is one row of the global leaderboard.
type RankingEntry struct {
	ID         string    `json:"id"`
	UserID     UserID    `json:"userId"`
	Position   int       `json:"position"`
	TotalScore int       `json:"totalScore"`
	Solved     int       `json:"solved"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Progress summarizes grading activity across every challenge.
type Progress struct {
	Attempts    int     `json:"attempts"`
	Correct     int     `json:"correct"`
	SuccessRate float64 `json:"successRate"`
}
