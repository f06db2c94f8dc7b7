package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"puzzle-scoring-service/internal/domain"
)

var timeNow = time.Now

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID       string    `bun:"id,pk"`
	Username string    `bun:"username,notnull"`
	JoinedAt time.Time `bun:"joined_at,notnull"`
}

type challengeRow struct {
	bun.BaseModel `bun:"table:challenges,alias:c"`

	ID                 string `bun:"id,pk"`
	AttemptsTotal      int    `bun:"attempts_total,notnull"`
	AttemptsSuccessful int    `bun:"attempts_successful,notnull"`
}

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts,alias:a"`

	ID          string    `bun:"id,pk,type:uuid"`
	Seq         int64     `bun:"seq,scanonly"`
	UserID      string    `bun:"user_id,notnull"`
	ChallengeID string    `bun:"challenge_id,notnull"`
	Answer      string    `bun:"answer,notnull"`
	Correct     bool      `bun:"correct,notnull"`
	Score       int       `bun:"score,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	ElapsedMS   *int64    `bun:"elapsed_ms"`
}

func newAttemptRow(a domain.Attempt) *attemptRow {
	row := &attemptRow{
		ID:          a.ID,
		UserID:      string(a.UserID),
		ChallengeID: a.ChallengeID,
		Answer:      a.Answer,
		Correct:     a.Correct,
		Score:       a.Score,
		CreatedAt:   a.CreatedAt,
	}
	if a.Elapsed != nil {
		ms := a.Elapsed.Milliseconds()
		row.ElapsedMS = &ms
	}
	return row
}

func (r attemptRow) toDomain() domain.Attempt {
	a := domain.Attempt{
		ID:          r.ID,
		UserID:      domain.UserID(r.UserID),
		ChallengeID: r.ChallengeID,
		Answer:      r.Answer,
		Correct:     r.Correct,
		Score:       r.Score,
		CreatedAt:   r.CreatedAt,
	}
	if r.ElapsedMS != nil {
		d := time.Duration(*r.ElapsedMS) * time.Millisecond
		a.Elapsed = &d
	}
	return a
}

type profileRow struct {
	bun.BaseModel `bun:"table:profiles,alias:p"`

	Seq        int64     `bun:"seq,scanonly"`
	UserID     string    `bun:"user_id,pk"`
	TotalScore int       `bun:"total_score,notnull"`
	Solved     int       `bun:"solved,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

func (r profileRow) toDomain() domain.Profile {
	return domain.Profile{
		UserID:     domain.UserID(r.UserID),
		TotalScore: r.TotalScore,
		Solved:     r.Solved,
		UpdatedAt:  r.UpdatedAt,
	}
}

type rankingRow struct {
	bun.BaseModel `bun:"table:ranking_entries,alias:r"`

	ID         string    `bun:"id,pk,type:uuid"`
	UserID     string    `bun:"user_id,notnull,unique"`
	Position   int       `bun:"position,notnull"`
	TotalScore int       `bun:"total_score,notnull"`
	Solved     int       `bun:"solved,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

func (r rankingRow) toDomain() domain.RankingEntry {
	return domain.RankingEntry{
		ID:         r.ID,
		UserID:     domain.UserID(r.UserID),
		Position:   r.Position,
		TotalScore: r.TotalScore,
		Solved:     r.Solved,
		UpdatedAt:  r.UpdatedAt,
	}
}
