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

type InteractionRepo struct {
	pool *pgxpool.Pool
}

func NewInteractionRepo(pool *pgxpool.Pool) *InteractionRepo {
	return &InteractionRepo{pool: pool}
}

// GetForUpdateTx reads the (card,user) interaction under a row lock so that
// the classify-then-write sequence is serialized per pair. Returns nil when
// no interaction exists yet.
func (r *InteractionRepo) GetForUpdateTx(ctx context.Context, tx pgx.Tx, cardID, userID uuid.UUID) (*models.Interaction, error) {
	i := &models.Interaction{}
	err := tx.QueryRow(ctx, `
		SELECT card_id, user_id, is_like, interaction_score, created_at, updated_at
		FROM interactions WHERE card_id = $1 AND user_id = $2
		FOR UPDATE
	`, cardID, userID).Scan(&i.CardID, &i.UserID, &i.IsLike, &i.InteractionScore, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return i, nil
}

// UpsertTx writes the tri-state reaction, keyed on (card_id, user_id) so a
// pair can never hold more than one record.
func (r *InteractionRepo) UpsertTx(ctx context.Context, tx pgx.Tx, cardID, userID uuid.UUID, isLike *bool) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO interactions (card_id, user_id, is_like, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (card_id, user_id) DO UPDATE
		SET is_like = EXCLUDED.is_like, updated_at = NOW()
	`, cardID, userID, isLike)
	return err
}

// DeleteTx removes the pair's record entirely (toggle-off and undo paths).
func (r *InteractionRepo) DeleteTx(ctx context.Context, tx pgx.Tx, cardID, userID uuid.UUID) error {
	_, err := tx.Exec(ctx,
		"DELETE FROM interactions WHERE card_id = $1 AND user_id = $2", cardID, userID)
	return err
}

func (r *InteractionRepo) Get(ctx context.Context, cardID, userID uuid.UUID) (*models.Interaction, error) {
	i := &models.Interaction{}
	err := r.pool.QueryRow(ctx, `
		SELECT card_id, user_id, is_like, interaction_score, created_at, updated_at
		FROM interactions WHERE card_id = $1 AND user_id = $2
	`, cardID, userID).Scan(&i.CardID, &i.UserID, &i.IsLike, &i.InteractionScore, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return i, nil
}

// RecordView registers a neutral view (is_like stays NULL) and clamps the
// engagement score into [0,10]. First view inserts, later views top up.
func (r *InteractionRepo) RecordView(ctx context.Context, cardID, userID uuid.UUID, score float64) error {
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO interactions (card_id, user_id, is_like, interaction_score, created_at, updated_at)
		VALUES ($1, $2, NULL, $3, $4, $4)
		ON CONFLICT (card_id, user_id) DO UPDATE
		SET interaction_score = LEAST(GREATEST(interactions.interaction_score + $3, 0), 10), updated_at = $4
	`, cardID, userID, score, time.Now())
	return err
}
