package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"studydeck-backend/internal/models"
	"studydeck-backend/internal/repository"
)

func TestApprovalThreshold(t *testing.T) {
	tests := []struct {
		name        string
		hasExisting bool
		classSize   int
		want        int
	}{
		{"no existing syllabus", false, 50, 0},
		{"tiny class", true, 3, 0},
		{"small class", true, 5, 1},
		{"medium class", true, 10, 2},
		{"large class", true, 20, 3},
		{"23 students", true, 23, 5},
		{"40 students", true, 40, 8},
		{"huge class capped", true, 500, 10},
		{"single subscriber", true, 1, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ApprovalThreshold(tc.hasExisting, tc.classSize)
			if got != tc.want {
				t.Errorf("ApprovalThreshold(%t, %d) = %d, want %d",
					tc.hasExisting, tc.classSize, got, tc.want)
			}
		})
	}
}

func TestRejectionThreshold(t *testing.T) {
	tests := []struct {
		name        string
		hasExisting bool
		classSize   int
		want        int
	}{
		{"zero approval forced to one", true, 3, 1},
		{"no existing syllabus forced to one", false, 100, 1},
		{"small class matches approval", true, 5, 1},
		{"medium class matches approval", true, 10, 2},
		{"23 students matches approval", true, 23, 5},
		{"huge class capped", true, 500, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := RejectionThreshold(tc.hasExisting, tc.classSize)
			if got != tc.want {
				t.Errorf("RejectionThreshold(%t, %d) = %d, want %d",
					tc.hasExisting, tc.classSize, got, tc.want)
			}
		})
	}
}

func TestVoteThresholdsFloorApprovalAtOne(t *testing.T) {
	tests := []struct {
		name          string
		hasExisting   bool
		classSize     int
		wantApproval  int
		wantRejection int
	}{
		{"tiny class needs one ballot once pending", true, 3, 1, 1},
		{"no existing syllabus still needs one ballot", false, 50, 1, 1},
		{"medium class unchanged", true, 10, 2, 2},
		{"huge class unchanged", true, 500, 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			approval, rejection := voteThresholds(tc.hasExisting, tc.classSize)
			if approval != tc.wantApproval || rejection != tc.wantRejection {
				t.Errorf("voteThresholds(%t, %d) = (%d, %d), want (%d, %d)",
					tc.hasExisting, tc.classSize, approval, rejection, tc.wantApproval, tc.wantRejection)
			}
		})
	}
}

// In-memory stand-ins so the vote flow runs without a database. spyTx flips
// the shared committed flag so tests can observe what ran inside vs after
// the deciding transaction.

type spyTx struct {
	pgx.Tx
	committed *bool
}

func (t spyTx) Commit(context.Context) error   { *t.committed = true; return nil }
func (t spyTx) Rollback(context.Context) error { return nil }

type spyPool struct{ committed *bool }

func (p spyPool) Begin(context.Context) (pgx.Tx, error) { return spyTx{committed: p.committed}, nil }

type fakeProposalStore struct {
	proposal         *models.SyllabusProposal
	votes            map[uuid.UUID]bool
	approvals        int
	rejections       int
	finalizedStatus  models.ProposalStatus
	finalizedSummary string
	storedSummary    string
}

func (f *fakeProposalStore) Create(ctx context.Context, p *models.SyllabusProposal) error {
	p.ID = uuid.New()
	p.Status = models.ProposalPending
	f.proposal = p
	return nil
}

func (f *fakeProposalStore) GetByID(ctx context.Context, id uuid.UUID) (*models.SyllabusProposal, error) {
	if f.proposal == nil || f.proposal.ID != id {
		return nil, pgx.ErrNoRows
	}
	p := *f.proposal
	return &p, nil
}

func (f *fakeProposalStore) GetForUpdateTx(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.SyllabusProposal, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeProposalStore) RecordVoteTx(ctx context.Context, _ pgx.Tx, proposalID, userID uuid.UUID, approve bool) error {
	if _, ok := f.votes[userID]; ok {
		return repository.ErrAlreadyVoted
	}
	f.votes[userID] = approve
	return nil
}

func (f *fakeProposalStore) IncrementVoteTx(ctx context.Context, _ pgx.Tx, proposalID uuid.UUID, approve bool) (int, int, error) {
	if approve {
		f.approvals++
	} else {
		f.rejections++
	}
	return f.approvals, f.rejections, nil
}

func (f *fakeProposalStore) FinalizeTx(ctx context.Context, _ pgx.Tx, proposalID uuid.UUID, status models.ProposalStatus, summary string) error {
	f.finalizedStatus = status
	f.finalizedSummary = summary
	f.proposal.Status = status
	return nil
}

func (f *fakeProposalStore) UpdateChangeSummary(ctx context.Context, proposalID uuid.UUID, summary string) error {
	f.storedSummary = summary
	return nil
}

type fakeCourseStore struct {
	course      *models.Course
	hasSyllabus bool
	subscribers int
	syllabusSet *uuid.UUID
}

func (f *fakeCourseStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	if f.course == nil || f.course.ID != id {
		return nil, pgx.ErrNoRows
	}
	c := *f.course
	return &c, nil
}

func (f *fakeCourseStore) HasSyllabus(ctx context.Context, courseID uuid.UUID) (bool, error) {
	return f.hasSyllabus, nil
}

func (f *fakeCourseStore) SubscriberCount(ctx context.Context, courseID uuid.UUID) (int, error) {
	return f.subscribers, nil
}

func (f *fakeCourseStore) SetSyllabus(ctx context.Context, courseID, syllabusID uuid.UUID) error {
	id := syllabusID
	f.syllabusSet = &id
	return nil
}

type spySummarizer struct {
	committed *bool
	sawCommit bool
	calls     int
	summary   string
}

func (s *spySummarizer) SummarizeChange(ctx context.Context, oldText, newText string) (string, error) {
	s.calls++
	if s.committed != nil {
		s.sawCommit = *s.committed
	}
	return s.summary, nil
}

type votingHarness struct {
	svc        *VotingService
	proposals  *fakeProposalStore
	courses    *fakeCourseStore
	summarizer *spySummarizer
	bus        *fakeBus
}

func newVotingHarness(hasSyllabus bool, subscribers int) *votingHarness {
	committed := new(bool)
	h := &votingHarness{
		proposals: &fakeProposalStore{votes: make(map[uuid.UUID]bool)},
		courses: &fakeCourseStore{
			course:      &models.Course{ID: uuid.New(), Name: "Algorithms", Code: "CS201"},
			hasSyllabus: hasSyllabus,
			subscribers: subscribers,
		},
		summarizer: &spySummarizer{committed: committed, summary: "Replaced unit three with graph algorithms."},
		bus:        &fakeBus{},
	}
	h.svc = &VotingService{
		pool:       spyPool{committed: committed},
		proposals:  h.proposals,
		courseRepo: h.courses,
		summarizer: h.summarizer,
		redis:      h.bus,
	}
	return h
}

func (h *votingHarness) pendingProposal(t *testing.T, proposer uuid.UUID) *models.SyllabusProposal {
	t.Helper()
	p := &models.SyllabusProposal{
		CourseID:   h.courses.course.ID,
		ProposerID: proposer,
		Content:    "Week 1: graph traversal",
	}
	if err := h.proposals.Create(context.Background(), p); err != nil {
		t.Fatalf("Create proposal: %v", err)
	}
	return p
}

func TestRejectVoteCannotApproveTinyCourse(t *testing.T) {
	// Three subscribers put the recomputed approval threshold at zero, but a
	// pending proposal must still collect at least one approve ballot.
	h := newVotingHarness(true, 3)
	proposal := h.pendingProposal(t, uuid.New())

	resp, err := h.svc.Vote(context.Background(), proposal.ID, uuid.New(), "reject")
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if resp.Status != models.ProposalRejected {
		t.Errorf("A lone reject must reject, got status %q", resp.Status)
	}
	if h.proposals.finalizedStatus != models.ProposalRejected {
		t.Errorf("Finalized as %q, want rejected", h.proposals.finalizedStatus)
	}
	if h.courses.syllabusSet != nil {
		t.Error("A rejected proposal must not become the canonical syllabus")
	}
	if h.summarizer.calls != 0 {
		t.Errorf("A rejection must not summarize, got %d calls", h.summarizer.calls)
	}
}

func TestApproveVoteApprovesTinyCourse(t *testing.T) {
	h := newVotingHarness(true, 3)
	proposal := h.pendingProposal(t, uuid.New())

	resp, err := h.svc.Vote(context.Background(), proposal.ID, uuid.New(), "approve")
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if resp.Status != models.ProposalApproved {
		t.Errorf("Expected approved, got %q", resp.Status)
	}
	if h.courses.syllabusSet == nil || *h.courses.syllabusSet != proposal.ID {
		t.Error("Approved proposal must become the canonical syllabus")
	}
}

func TestChangeSummaryGeneratedAfterCommit(t *testing.T) {
	// Five subscribers: one approval settles the proposal.
	h := newVotingHarness(true, 5)
	proposal := h.pendingProposal(t, uuid.New())

	resp, err := h.svc.Vote(context.Background(), proposal.ID, uuid.New(), "approve")
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if resp.Status != models.ProposalApproved {
		t.Fatalf("Expected approved, got %q", resp.Status)
	}

	if h.summarizer.calls != 1 {
		t.Fatalf("Expected one summarizer call, got %d", h.summarizer.calls)
	}
	if !h.summarizer.sawCommit {
		t.Error("The summarizer must run after the deciding transaction commits, not inside it")
	}
	// The row is finalized with the placeholder and the generated summary is
	// stored afterwards.
	if h.proposals.finalizedSummary != defaultChangeSummary {
		t.Errorf("Finalize must write the placeholder, got %q", h.proposals.finalizedSummary)
	}
	if h.proposals.storedSummary != h.summarizer.summary {
		t.Errorf("Stored summary %q, want %q", h.proposals.storedSummary, h.summarizer.summary)
	}
	if resp.ChangeSummary != h.summarizer.summary {
		t.Errorf("Response summary %q, want %q", resp.ChangeSummary, h.summarizer.summary)
	}
}

func TestVoteGuards(t *testing.T) {
	h := newVotingHarness(true, 10)
	proposer := uuid.New()
	proposal := h.pendingProposal(t, proposer)

	var forbidden *ForbiddenError
	if _, err := h.svc.Vote(context.Background(), proposal.ID, proposer, "approve"); !errors.As(err, &forbidden) {
		t.Errorf("Self-vote must be forbidden, got %v", err)
	}

	voter := uuid.New()
	if _, err := h.svc.Vote(context.Background(), proposal.ID, voter, "approve"); err != nil {
		t.Fatalf("First vote: %v", err)
	}
	var conflict *ConflictError
	if _, err := h.svc.Vote(context.Background(), proposal.ID, voter, "reject"); !errors.As(err, &conflict) {
		t.Errorf("Second vote from the same user must conflict, got %v", err)
	}
}
