package models

import (
	"time"

	"github.com/google/uuid"
)

// Interaction is the single per-(card,user) reaction record. IsLike is
// tri-state: true/false for like/dislike, nil for a neutral view (e.g. a
// flashcard flip that counts engagement but carries no direction).
type Interaction struct {
	CardID           uuid.UUID `json:"card_id"`
	UserID           uuid.UUID `json:"user_id"`
	IsLike           *bool     `json:"is_like"`
	InteractionScore float64   `json:"interaction_score"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type RatingChangeRequest struct {
	QuizID       uuid.UUID `json:"quizId"`       // optional when the card id is in the path
	RatingChange int       `json:"ratingChange"` // 1 = like, -1 = dislike
	IsUndo       bool      `json:"isUndo"`
}

type RatingChangeResponse struct {
	Success   bool      `json:"success"`
	QuizID    uuid.UUID `json:"quizId"`
	NewRating float64   `json:"newRating"`
}
