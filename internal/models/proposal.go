package models

import (
	"time"

	"github.com/google/uuid"
)

type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
)

// SyllabusProposal is a syllabus-replacement put to a course-wide vote.
// Approvals/rejections are the like/dislike counters scoped to this content
// type; status is terminal once non-pending.
type SyllabusProposal struct {
	ID            uuid.UUID      `json:"id"`
	CourseID      uuid.UUID      `json:"course_id"`
	ProposerID    uuid.UUID      `json:"proposer_id"`
	Content       string         `json:"content"`
	Status        ProposalStatus `json:"status"`
	Approvals     int            `json:"approvals"`
	Rejections    int            `json:"rejections"`
	ChangeSummary *string        `json:"change_summary"`
	CreatedAt     time.Time      `json:"created_at"`
	DecidedAt     *time.Time     `json:"decided_at"`
}

type ProposeSyllabusRequest struct {
	Content string `json:"content"`
}

type SyllabusVoteRequest struct {
	VoteType string `json:"voteType"` // "approve" | "reject"
}

type SyllabusVoteResponse struct {
	Success        bool           `json:"success"`
	ApprovalCount  int            `json:"approvalCount"`
	RejectionCount int            `json:"rejectionCount"`
	Status         ProposalStatus `json:"status"`
	ChangeSummary  string         `json:"change_summary"`
}
