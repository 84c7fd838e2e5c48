package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studydeck-backend/internal/models"
)

type CardRepo struct {
	pool *pgxpool.Pool
}

func NewCardRepo(pool *pgxpool.Pool) *CardRepo {
	return &CardRepo{pool: pool}
}

// Create inserts the card and attaches its tags, lazily creating any tag
// seen for the first time. Tag names are course-prefixed by the caller.
func (r *CardRepo) Create(ctx context.Context, c *models.Card, tagNames []string) error {
	c.ID = uuid.New()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO cards (id, user_id, course_id, card_type, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING rating, likes, dislikes, interaction_score, created_at
	`, c.ID, c.UserID, c.CourseID, c.CardType, c.DataJSON).Scan(
		&c.Rating, &c.Likes, &c.Dislikes, &c.InteractionScore, &c.CreatedAt,
	)
	if err != nil {
		return err
	}

	for _, name := range tagNames {
		var tagID uuid.UUID
		err = tx.QueryRow(ctx, `
			INSERT INTO tags (id, name) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, uuid.New(), name).Scan(&tagID)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO card_tags (card_id, tag_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, c.ID, tagID)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *CardRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Card, error) {
	c := &models.Card{}
	query := `SELECT id, user_id, course_id, card_type, data, rating, likes, dislikes, interaction_score, created_at
		FROM cards WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.UserID, &c.CourseID, &c.CardType, &c.DataJSON,
		&c.Rating, &c.Likes, &c.Dislikes, &c.InteractionScore, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CardRepo) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]*models.Card, error) {
	query := `SELECT id, user_id, course_id, card_type, data, rating, likes, dislikes, interaction_score, created_at
		FROM cards WHERE course_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []*models.Card
	for rows.Next() {
		c := &models.Card{}
		err := rows.Scan(&c.ID, &c.UserID, &c.CourseID, &c.CardType, &c.DataJSON,
			&c.Rating, &c.Likes, &c.Dislikes, &c.InteractionScore, &c.CreatedAt)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (r *CardRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM cards WHERE id = $1", id)
	return err
}

// GetByIDTx reads a card inside the caller's transaction.
func (r *CardRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Card, error) {
	c := &models.Card{}
	query := `SELECT id, user_id, course_id, card_type, data, rating, likes, dislikes, interaction_score, created_at
		FROM cards WHERE id = $1`

	err := tx.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.UserID, &c.CourseID, &c.CardType, &c.DataJSON,
		&c.Rating, &c.Likes, &c.Dislikes, &c.InteractionScore, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// AdjustRatingTx applies a signed delta to the card rating as a single
// atomic increment and returns the new value. Rating is deliberately
// unclamped; only profile-level scores derived from it are bounded.
func (r *CardRepo) AdjustRatingTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta float64) (float64, error) {
	var rating float64
	err := tx.QueryRow(ctx,
		"UPDATE cards SET rating = rating + $2 WHERE id = $1 RETURNING rating",
		id, delta,
	).Scan(&rating)
	return rating, err
}

// AdjustReactionCountsTx moves the denormalized like/dislike counters when
// a reaction is added, withdrawn or reversed.
func (r *CardRepo) AdjustReactionCountsTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, likeDelta, dislikeDelta int) error {
	_, err := tx.Exec(ctx,
		"UPDATE cards SET likes = likes + $2, dislikes = dislikes + $3 WHERE id = $1",
		id, likeDelta, dislikeDelta,
	)
	return err
}

// BumpInteractionScore nudges the card's engagement signal, clamped [0,10].
func (r *CardRepo) BumpInteractionScore(ctx context.Context, id uuid.UUID, delta float64) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE cards SET interaction_score = LEAST(GREATEST(interaction_score + $2, 0), 10) WHERE id = $1",
		id, delta,
	)
	return err
}
