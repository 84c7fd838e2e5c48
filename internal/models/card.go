package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type CardType string

const (
	CardTypeQuiz         CardType = "quiz"
	CardTypeStickyNote   CardType = "sticky_note"
	CardTypeFlashcard    CardType = "flashcard"
	CardTypeOpenQuestion CardType = "open_question"
	CardTypePoll         CardType = "poll"
)

type Card struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"user_id"`
	CourseID         uuid.UUID       `json:"course_id"`
	CardType         CardType        `json:"card_type"`
	DataJSON         json.RawMessage `json:"data"`
	Rating           float64         `json:"rating"`
	Likes            int             `json:"likes"`
	Dislikes         int             `json:"dislikes"`
	InteractionScore float64         `json:"interaction_score"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Payload variants. DataJSON must decode into the struct matching CardType.

type QuizPayload struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation,omitempty"`
}

type StickyNotePayload struct {
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
}

type FlashcardPayload struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

type OpenQuestionPayload struct {
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
}

type PollPayload struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// ValidatePayload checks that data decodes into the variant declared by
// cardType and that the variant's required fields are present.
func ValidatePayload(cardType CardType, data json.RawMessage) error {
	switch cardType {
	case CardTypeQuiz:
		var p QuizPayload
		if err := strictUnmarshal(data, &p); err != nil {
			return err
		}
		if p.Question == "" {
			return fmt.Errorf("quiz payload: question is required")
		}
		if len(p.Options) < 2 {
			return fmt.Errorf("quiz payload: at least 2 options required")
		}
		if p.CorrectIndex < 0 || p.CorrectIndex >= len(p.Options) {
			return fmt.Errorf("quiz payload: correct_index out of range")
		}
	case CardTypeStickyNote:
		var p StickyNotePayload
		if err := strictUnmarshal(data, &p); err != nil {
			return err
		}
		if p.Text == "" {
			return fmt.Errorf("sticky note payload: text is required")
		}
	case CardTypeFlashcard:
		var p FlashcardPayload
		if err := strictUnmarshal(data, &p); err != nil {
			return err
		}
		if p.Front == "" || p.Back == "" {
			return fmt.Errorf("flashcard payload: front and back are required")
		}
	case CardTypeOpenQuestion:
		var p OpenQuestionPayload
		if err := strictUnmarshal(data, &p); err != nil {
			return err
		}
		if p.Question == "" {
			return fmt.Errorf("open question payload: question is required")
		}
	case CardTypePoll:
		var p PollPayload
		if err := strictUnmarshal(data, &p); err != nil {
			return err
		}
		if p.Question == "" {
			return fmt.Errorf("poll payload: question is required")
		}
		if len(p.Options) < 2 {
			return fmt.Errorf("poll payload: at least 2 options required")
		}
	default:
		return fmt.Errorf("unknown card type %q", cardType)
	}
	return nil
}

func strictUnmarshal(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("payload is empty")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("payload does not match declared type: %w", err)
	}
	return nil
}

type CreateCardRequest struct {
	CourseID uuid.UUID       `json:"course_id"`
	CardType CardType        `json:"card_type"`
	Data     json.RawMessage `json:"data"`
	Tags     []string        `json:"tags"`
}

// RatedCard is one row of the ranked feed: a card annotated with its tags,
// the requesting user's own reaction and the composite relevance score.
type RatedCard struct {
	ID         uuid.UUID       `json:"id"`
	UserID     uuid.UUID       `json:"user_id"`
	CourseID   uuid.UUID       `json:"course_id"`
	CardType   CardType        `json:"card_type"`
	DataJSON   json.RawMessage `json:"data"`
	Rating     float64         `json:"rating"`
	FinalScore float64         `json:"final_score"`
	IsLike     *bool           `json:"is_like"`
	Tags       []TagScore      `json:"tags"`
	CreatedAt  time.Time       `json:"created_at"`
}

type TagScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}
