package models

import "github.com/google/uuid"

// Tag is a course-prefixed topical label shared across every card that
// carries it. Score is a cross-card affinity signal, moved +-0.2 per
// qualifying like/dislike on any tagged card.
type Tag struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Score float64   `json:"score"`
}
