package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studydeck-backend/internal/models"
)

type TagRepo struct {
	pool *pgxpool.Pool
}

func NewTagRepo(pool *pgxpool.Pool) *TagRepo {
	return &TagRepo{pool: pool}
}

// AdjustScoresForCard moves every tag attached to the card by the same
// delta, one atomic statement per fan-out. Plain float addition commutes, so
// concurrent adjustments from unrelated users may interleave freely.
func (r *TagRepo) AdjustScoresForCard(ctx context.Context, cardID uuid.UUID, delta float64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE tags SET score = tags.score + $2
		FROM card_tags ct
		WHERE ct.tag_id = tags.id AND ct.card_id = $1
	`, cardID, delta)
	return err
}

func (r *TagRepo) GetForCard(ctx context.Context, cardID uuid.UUID) ([]models.TagScore, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.name, t.score
		FROM card_tags ct
		JOIN tags t ON t.id = ct.tag_id
		WHERE ct.card_id = $1
		ORDER BY t.name ASC
	`, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := make([]models.TagScore, 0)
	for rows.Next() {
		var ts models.TagScore
		if err := rows.Scan(&ts.Name, &ts.Score); err != nil {
			return nil, err
		}
		tags = append(tags, ts)
	}
	return tags, rows.Err()
}

func (r *TagRepo) GetByName(ctx context.Context, name string) (*models.Tag, error) {
	t := &models.Tag{}
	err := r.pool.QueryRow(ctx,
		"SELECT id, name, score FROM tags WHERE name = $1", name,
	).Scan(&t.ID, &t.Name, &t.Score)
	if err != nil {
		return nil, err
	}
	return t, nil
}
