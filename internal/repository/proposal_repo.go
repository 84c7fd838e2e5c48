package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studydeck-backend/internal/models"
)

type ProposalRepo struct {
	pool *pgxpool.Pool
}

func NewProposalRepo(pool *pgxpool.Pool) *ProposalRepo {
	return &ProposalRepo{pool: pool}
}

func (r *ProposalRepo) Create(ctx context.Context, p *models.SyllabusProposal) error {
	p.ID = uuid.New()
	p.Status = models.ProposalPending
	query := `INSERT INTO syllabus_proposals (id, course_id, proposer_id, content)
		VALUES ($1, $2, $3, $4) RETURNING created_at`
	return r.pool.QueryRow(ctx, query, p.ID, p.CourseID, p.ProposerID, p.Content).Scan(&p.CreatedAt)
}

func (r *ProposalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.SyllabusProposal, error) {
	p := &models.SyllabusProposal{}
	query := `SELECT id, course_id, proposer_id, content, status, approvals, rejections, change_summary, created_at, decided_at
		FROM syllabus_proposals WHERE id = $1`
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.CourseID, &p.ProposerID, &p.Content, &p.Status,
		&p.Approvals, &p.Rejections, &p.ChangeSummary, &p.CreatedAt, &p.DecidedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ProposalRepo) GetForUpdateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.SyllabusProposal, error) {
	p := &models.SyllabusProposal{}
	query := `SELECT id, course_id, proposer_id, content, status, approvals, rejections, change_summary, created_at, decided_at
		FROM syllabus_proposals WHERE id = $1 FOR UPDATE`
	err := tx.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.CourseID, &p.ProposerID, &p.Content, &p.Status,
		&p.Approvals, &p.Rejections, &p.ChangeSummary, &p.CreatedAt, &p.DecidedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

var ErrAlreadyVoted = errors.New("user already voted on this proposal")

// RecordVoteTx inserts the user's vote; the primary key makes a second vote
// from the same user a conflict, surfaced as ErrAlreadyVoted.
func (r *ProposalRepo) RecordVoteTx(ctx context.Context, tx pgx.Tx, proposalID, userID uuid.UUID, approve bool) error {
	tag, err := tx.Exec(ctx, `
		INSERT INTO syllabus_votes (proposal_id, user_id, is_approve)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, proposalID, userID, approve)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyVoted
	}
	return nil
}

// IncrementVoteTx bumps the approve or reject counter atomically and returns
// the updated pair.
func (r *ProposalRepo) IncrementVoteTx(ctx context.Context, tx pgx.Tx, proposalID uuid.UUID, approve bool) (approvals, rejections int, err error) {
	col := "rejections"
	if approve {
		col = "approvals"
	}
	err = tx.QueryRow(ctx,
		"UPDATE syllabus_proposals SET "+col+" = "+col+" + 1 WHERE id = $1 RETURNING approvals, rejections",
		proposalID,
	).Scan(&approvals, &rejections)
	return approvals, rejections, err
}

func (r *ProposalRepo) FinalizeTx(ctx context.Context, tx pgx.Tx, proposalID uuid.UUID, status models.ProposalStatus, summary string) error {
	_, err := tx.Exec(ctx, `
		UPDATE syllabus_proposals
		SET status = $2, change_summary = $3, decided_at = $4
		WHERE id = $1
	`, proposalID, status, summary, time.Now())
	return err
}

// UpdateChangeSummary swaps the placeholder summary written at finalize time
// for the generated one.
func (r *ProposalRepo) UpdateChangeSummary(ctx context.Context, proposalID uuid.UUID, summary string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE syllabus_proposals SET change_summary = $2 WHERE id = $1", proposalID, summary)
	return err
}

func (r *ProposalRepo) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]*models.SyllabusProposal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, course_id, proposer_id, content, status, approvals, rejections, change_summary, created_at, decided_at
		FROM syllabus_proposals WHERE course_id = $1 ORDER BY created_at DESC
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proposals []*models.SyllabusProposal
	for rows.Next() {
		p := &models.SyllabusProposal{}
		err := rows.Scan(&p.ID, &p.CourseID, &p.ProposerID, &p.Content, &p.Status,
			&p.Approvals, &p.Rejections, &p.ChangeSummary, &p.CreatedAt, &p.DecidedAt)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}
