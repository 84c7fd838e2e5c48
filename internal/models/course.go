package models

import (
	"time"

	"github.com/google/uuid"
)

type Course struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Code           string     `json:"code"`
	SyllabusCardID *uuid.UUID `json:"syllabus_card_id"`
	CreatedAt      time.Time  `json:"created_at"`
}

type Subscription struct {
	UserID   uuid.UUID `json:"user_id"`
	CourseID uuid.UUID `json:"course_id"`
	JoinedAt time.Time `json:"joined_at"`
}

type CreateCourseRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}
