package models

import (
	"github.com/google/uuid"
)

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// SwipeMessage drives a feed session over the websocket: a gesture sample or
// a terminal decision from the client's drag pipeline.
type SwipeMessage struct {
	Action    string    `json:"action"` // "drag" | "release" | "undo" | "answer"
	CardID    uuid.UUID `json:"card_id"`
	DX        float64   `json:"dx"`
	DY        float64   `json:"dy"`
	VelocityX float64   `json:"vx"`
}

type CardRatedEvent struct {
	CardID    uuid.UUID `json:"card_id"`
	Direction int       `json:"direction"`
	NewRating float64   `json:"new_rating"`
}

type ProposalSettledEvent struct {
	ProposalID uuid.UUID      `json:"proposal_id"`
	Status     ProposalStatus `json:"status"`
	Summary    string         `json:"summary"`
}

// PropagationTask is one secondary aggregate update that failed inline and
// was parked on the Redis retry queue for the worker pool.
type PropagationTask struct {
	Step       string    `json:"step"` // "tag" | "author_profile" | "streak"
	CardID     uuid.UUID `json:"card_id"`
	AuthorID   uuid.UUID `json:"author_id"`
	ActorID    uuid.UUID `json:"actor_id"`
	Delta      float64   `json:"delta"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt int64     `json:"enqueued_at"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
