package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studydeck-backend/internal/models"
)

// FeedRepo wraps the server-side scoring query. Ranking is a
// quality-of-experience feature: when the ranked_feed function is missing or
// mismatched the repo degrades to an unranked subscription-filtered listing
// instead of failing the feed.
type FeedRepo struct {
	pool         *pgxpool.Pool
	ratingWeight float64
	tagWeight    float64
}

func NewFeedRepo(pool *pgxpool.Pool, ratingWeight, tagWeight float64) *FeedRepo {
	return &FeedRepo{pool: pool, ratingWeight: ratingWeight, tagWeight: tagWeight}
}

// RankedCards returns every card in the user's subscribed courses annotated
// with tags, the user's own reaction and a composite final_score, ordered
// final_score DESC with ties broken by created_at then id ascending.
func (r *FeedRepo) RankedCards(ctx context.Context, userID uuid.UUID, limit int) ([]*models.RatedCard, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT * FROM ranked_feed($1, $2, $3, $4)",
		userID, r.ratingWeight, r.tagWeight, limit,
	)
	if err != nil {
		log.Printf("ranked_feed unavailable, falling back to unranked listing: %v", err)
		return r.unrankedCards(ctx, userID, limit)
	}
	defer rows.Close()

	var cards []*models.RatedCard
	for rows.Next() {
		c := &models.RatedCard{}
		var tagsJSON []byte
		err := rows.Scan(&c.ID, &c.UserID, &c.CourseID, &c.CardType, &c.DataJSON,
			&c.Rating, &c.FinalScore, &c.IsLike, &tagsJSON, &c.CreatedAt)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(tagsJSON, &c.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode feed tags: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// unrankedCards is the degraded path: same subscription filter, no scoring,
// newest first.
func (r *FeedRepo) unrankedCards(ctx context.Context, userID uuid.UUID, limit int) ([]*models.RatedCard, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.user_id, c.course_id, c.card_type, c.data, c.rating, i.is_like, c.created_at
		FROM cards c
		JOIN subscriptions s ON s.course_id = c.course_id AND s.user_id = $1
		LEFT JOIN interactions i ON i.card_id = c.id AND i.user_id = $1
		ORDER BY c.created_at DESC, c.id ASC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []*models.RatedCard
	for rows.Next() {
		c := &models.RatedCard{Tags: []models.TagScore{}}
		err := rows.Scan(&c.ID, &c.UserID, &c.CourseID, &c.CardType, &c.DataJSON,
			&c.Rating, &c.IsLike, &c.CreatedAt)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}
