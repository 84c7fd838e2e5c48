package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"studydeck-backend/internal/models"
	"studydeck-backend/internal/repository"
)

const defaultChangeSummary = "Syllabus updated."

// Narrow repository views so the voting flow is testable without a database.
type proposalStore interface {
	Create(ctx context.Context, p *models.SyllabusProposal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SyllabusProposal, error)
	GetForUpdateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.SyllabusProposal, error)
	RecordVoteTx(ctx context.Context, tx pgx.Tx, proposalID, userID uuid.UUID, approve bool) error
	IncrementVoteTx(ctx context.Context, tx pgx.Tx, proposalID uuid.UUID, approve bool) (int, int, error)
	FinalizeTx(ctx context.Context, tx pgx.Tx, proposalID uuid.UUID, status models.ProposalStatus, summary string) error
	UpdateChangeSummary(ctx context.Context, proposalID uuid.UUID, summary string) error
}

type courseStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
	HasSyllabus(ctx context.Context, courseID uuid.UUID) (bool, error)
	SubscriberCount(ctx context.Context, courseID uuid.UUID) (int, error)
	SetSyllabus(ctx context.Context, courseID, syllabusID uuid.UUID) error
}

type voterStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// VotingService decides syllabus-replacement proposals with the same
// like/dislike shape as card ratings, but with terminal states and a
// threshold derived from audience size.
type VotingService struct {
	pool       txBeginner
	proposals  proposalStore
	courseRepo courseStore
	userRepo   voterStore
	summarizer ChangeSummarizer
	email      *EmailService
	redis      eventBus
}

// ChangeSummarizer turns an old/new text pair into a short natural-language
// summary. Failures are swallowed by the caller in favor of a default.
type ChangeSummarizer interface {
	SummarizeChange(ctx context.Context, oldText, newText string) (string, error)
}

func NewVotingService(
	pool *pgxpool.Pool,
	proposals *repository.ProposalRepo,
	courseRepo *repository.CourseRepo,
	userRepo *repository.UserRepo,
	summarizer ChangeSummarizer,
	email *EmailService,
	redisClient *redis.Client,
) *VotingService {
	return &VotingService{
		pool:       pool,
		proposals:  proposals,
		courseRepo: courseRepo,
		userRepo:   userRepo,
		summarizer: summarizer,
		email:      email,
		redis:      redisClient,
	}
}

// ApprovalThreshold is the number of approvals needed before a proposal is
// committed, derived from the course's audience size. A course with no
// syllabus yet needs none (first upload is auto-approved).
func ApprovalThreshold(hasExisting bool, classSize int) int {
	if !hasExisting {
		return 0
	}
	switch {
	case classSize <= 3:
		return 0
	case classSize <= 5:
		return 1
	case classSize <= 10:
		return 2
	case classSize <= 20:
		return 3
	default:
		t := int(math.Ceil(float64(classSize) / 5))
		if t > 10 {
			t = 10
		}
		return t
	}
}

// RejectionThreshold mirrors the approval threshold except that a zero-vote
// auto-reject would be nonsensical, so zero is forced up to one.
func RejectionThreshold(hasExisting bool, classSize int) int {
	t := ApprovalThreshold(hasExisting, classSize)
	if t == 0 {
		return 1
	}
	return t
}

// voteThresholds are the settlement bars applied when a ballot lands. A zero
// approval threshold only ever auto-approves at propose time; a proposal
// still pending when the threshold recomputes to zero (the audience shrank)
// must not be approved by a reject ballot, so the vote-time approval bar is
// floored at one.
func voteThresholds(hasExisting bool, classSize int) (approval, rejection int) {
	approval = ApprovalThreshold(hasExisting, classSize)
	if approval == 0 {
		approval = 1
	}
	return approval, RejectionThreshold(hasExisting, classSize)
}

// Propose submits a new syllabus replacement for the course. When the
// approval threshold is already zero the proposal is committed immediately.
func (s *VotingService) Propose(ctx context.Context, courseID, proposerID uuid.UUID, content string) (*models.SyllabusProposal, error) {
	if content == "" {
		return nil, &ValidationError{Fields: map[string]string{"content": "Content is required"}}
	}

	if _, err := s.courseRepo.GetByID(ctx, courseID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Course not found"}
		}
		return nil, err
	}

	proposal := &models.SyllabusProposal{
		CourseID:   courseID,
		ProposerID: proposerID,
		Content:    content,
	}
	if err := s.proposals.Create(ctx, proposal); err != nil {
		return nil, err
	}

	hasExisting, err := s.courseRepo.HasSyllabus(ctx, courseID)
	if err != nil {
		return nil, err
	}
	classSize, err := s.courseRepo.SubscriberCount(ctx, courseID)
	if err != nil {
		return nil, err
	}

	if ApprovalThreshold(hasExisting, classSize) == 0 {
		if err := s.approve(ctx, proposal); err != nil {
			return nil, err
		}
	}

	return proposal, nil
}

// Vote records one approve/reject on a pending proposal and settles it when
// a threshold is crossed. Self-votes and votes on finalized proposals are
// rejected before any mutation.
func (s *VotingService) Vote(ctx context.Context, proposalID, voterID uuid.UUID, voteType string) (*models.SyllabusVoteResponse, error) {
	approve := false
	switch voteType {
	case "approve":
		approve = true
	case "reject":
	default:
		return nil, &ValidationError{Fields: map[string]string{"voteType": "must be approve or reject"}}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	proposal, err := s.proposals.GetForUpdateTx(ctx, tx, proposalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Proposal not found"}
		}
		return nil, err
	}

	if proposal.Status != models.ProposalPending {
		return nil, &ConflictError{Message: "Proposal has already been finalized"}
	}
	if proposal.ProposerID == voterID {
		return nil, &ForbiddenError{Message: "You cannot vote on your own proposal"}
	}

	if err := s.proposals.RecordVoteTx(ctx, tx, proposalID, voterID, approve); err != nil {
		if errors.Is(err, repository.ErrAlreadyVoted) {
			return nil, &ConflictError{Message: "You have already voted on this proposal"}
		}
		return nil, err
	}

	approvals, rejections, err := s.proposals.IncrementVoteTx(ctx, tx, proposalID, approve)
	if err != nil {
		return nil, err
	}

	hasExisting, err := s.courseRepo.HasSyllabus(ctx, proposal.CourseID)
	if err != nil {
		return nil, err
	}
	classSize, err := s.courseRepo.SubscriberCount(ctx, proposal.CourseID)
	if err != nil {
		return nil, err
	}

	approvalThreshold, rejectionThreshold := voteThresholds(hasExisting, classSize)

	// The summarizer may block for a long while on its rate slot, so the
	// approved row is finalized with the default summary here and the real
	// one is generated only after the row lock is released.
	status := models.ProposalPending
	switch {
	case approvals >= approvalThreshold:
		status = models.ProposalApproved
		if err := s.proposals.FinalizeTx(ctx, tx, proposalID, status, defaultChangeSummary); err != nil {
			return nil, err
		}
	case rejections >= rejectionThreshold:
		status = models.ProposalRejected
		if err := s.proposals.FinalizeTx(ctx, tx, proposalID, status, ""); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	summary := ""
	if status != models.ProposalPending {
		proposal.Status = status
		if status == models.ProposalApproved {
			summary = s.finishSummary(ctx, proposal)
		}
		proposal.ChangeSummary = &summary
		s.settle(ctx, proposal)
	}

	return &models.SyllabusVoteResponse{
		Success:        true,
		ApprovalCount:  approvals,
		RejectionCount: rejections,
		Status:         status,
		ChangeSummary:  summary,
	}, nil
}

// approve commits a proposal outside of a vote (auto-approval on upload).
func (s *VotingService) approve(ctx context.Context, proposal *models.SyllabusProposal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.proposals.FinalizeTx(ctx, tx, proposal.ID, models.ProposalApproved, defaultChangeSummary); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	proposal.Status = models.ProposalApproved
	summary := s.finishSummary(ctx, proposal)
	proposal.ChangeSummary = &summary
	s.settle(ctx, proposal)
	return nil
}

// finishSummary generates the real change summary after the deciding
// transaction has committed and stores it over the placeholder.
func (s *VotingService) finishSummary(ctx context.Context, proposal *models.SyllabusProposal) string {
	summary := s.summarize(ctx, proposal)
	if summary != defaultChangeSummary {
		if err := s.proposals.UpdateChangeSummary(ctx, proposal.ID, summary); err != nil {
			log.Printf("syllabus vote: failed to store change summary for proposal %s: %v", proposal.ID, err)
		}
	}
	return summary
}

// summarize asks the summarizer to describe old vs new syllabus. Failure is
// swallowed and the default summary substituted; a missing summarizer ditto.
func (s *VotingService) summarize(ctx context.Context, proposal *models.SyllabusProposal) string {
	if s.summarizer == nil {
		return defaultChangeSummary
	}

	oldContent := ""
	course, err := s.courseRepo.GetByID(ctx, proposal.CourseID)
	if err == nil && course.SyllabusCardID != nil {
		if prev, err := s.proposals.GetByID(ctx, *course.SyllabusCardID); err == nil {
			oldContent = prev.Content
		}
	}

	summary, err := s.summarizer.SummarizeChange(ctx, oldContent, proposal.Content)
	if err != nil || summary == "" {
		log.Printf("syllabus vote: change summary unavailable for proposal %s: %v", proposal.ID, err)
		return defaultChangeSummary
	}
	return summary
}

// settle runs the post-decision side effects: the approved proposal becomes
// the course's canonical syllabus, the proposer is notified. All best-effort.
func (s *VotingService) settle(ctx context.Context, proposal *models.SyllabusProposal) {
	if proposal.Status == models.ProposalApproved {
		if err := s.courseRepo.SetSyllabus(ctx, proposal.CourseID, proposal.ID); err != nil {
			log.Printf("syllabus vote: failed to set canonical syllabus for course %s: %v", proposal.CourseID, err)
		}
	}

	summary := defaultChangeSummary
	if proposal.ChangeSummary != nil && *proposal.ChangeSummary != "" {
		summary = *proposal.ChangeSummary
	}

	msg := models.WSMessage{
		Type: "proposal_settled",
		Payload: models.ProposalSettledEvent{
			ProposalID: proposal.ID,
			Status:     proposal.Status,
			Summary:    summary,
		},
	}
	data, _ := json.Marshal(msg)
	s.redis.Publish(ctx, fmt.Sprintf("user_updates:%s", proposal.ProposerID.String()), string(data))

	if s.email != nil && s.userRepo != nil {
		if proposer, err := s.userRepo.GetByID(ctx, proposal.ProposerID); err == nil {
			go s.email.SendProposalOutcome(proposer.Email, proposer.Username, string(proposal.Status), summary)
		}
	}

}
