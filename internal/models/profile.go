package models

import (
	"time"

	"github.com/google/uuid"
)

type Profile struct {
	UserID    uuid.UUID       `json:"user_id"`
	Username  string          `json:"username"`
	Rating    float64         `json:"rating"` // clamped [0,10], default 7.5
	Metadata  ProfileMetadata `json:"metadata"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ProfileMetadata lives in a jsonb column. LastStreakDate is a calendar date
// in YYYY-MM-DD form; streak arithmetic compares whole days, never clock time.
type ProfileMetadata struct {
	CurrentStreak  int    `json:"current_streak"`
	LongestStreak  int    `json:"longest_streak"`
	LastStreakDate string `json:"last_quiz_date,omitempty"`
	PuzzleRushBest int    `json:"puzzle_rush_best"`
}

type PuzzleRushScoreRequest struct {
	Score int `json:"score"`
}

type LeaderboardEntry struct {
	Username string `json:"username"`
	Value    int    `json:"value"`
}
