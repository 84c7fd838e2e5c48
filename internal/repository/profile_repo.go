package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studydeck-backend/internal/models"
)

type ProfileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

func (r *ProfileRepo) Create(ctx context.Context, userID uuid.UUID, username string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO profiles (user_id, username, rating, metadata)
		VALUES ($1, $2, 7.5, '{}'::jsonb)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, username)
	return err
}

func (r *ProfileRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	p := &models.Profile{}
	var metaBytes []byte
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, username, rating, metadata, updated_at
		FROM profiles WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.Username, &p.Rating, &metaBytes, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metaBytes, &p.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode profile metadata: %w", err)
	}
	return p, nil
}

func (r *ProfileRepo) GetByUsername(ctx context.Context, username string) (*models.Profile, error) {
	p := &models.Profile{}
	var metaBytes []byte
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, username, rating, metadata, updated_at
		FROM profiles WHERE username = $1
	`, username).Scan(&p.UserID, &p.Username, &p.Rating, &metaBytes, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metaBytes, &p.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode profile metadata: %w", err)
	}
	return p, nil
}

// AdjustRating applies a signed delta to the profile rating as one atomic
// statement, clamped to [0,10] server-side so concurrent writers cannot
// push it out of range.
func (r *ProfileRepo) AdjustRating(ctx context.Context, userID uuid.UUID, delta float64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE profiles
		SET rating = LEAST(GREATEST(rating + $2, 0), 10), updated_at = NOW()
		WHERE user_id = $1
	`, userID, delta)
	return err
}

// BumpStreak reads the profile metadata under a row lock, applies advance and
// writes the result back. The lock serializes streak updates per user; the
// date comparison inside advance is not safe to run concurrently otherwise.
func (r *ProfileRepo) BumpStreak(ctx context.Context, userID uuid.UUID, advance func(models.ProfileMetadata) models.ProfileMetadata) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var metaBytes []byte
	err = tx.QueryRow(ctx,
		"SELECT metadata FROM profiles WHERE user_id = $1 FOR UPDATE", userID,
	).Scan(&metaBytes)
	if err != nil {
		return err
	}

	var meta models.ProfileMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return fmt.Errorf("failed to decode profile metadata: %w", err)
	}

	updated := advance(meta)
	updatedBytes, err := json.Marshal(updated)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		"UPDATE profiles SET metadata = $2, updated_at = NOW() WHERE user_id = $1",
		userID, updatedBytes,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// RecordPuzzleRushScore keeps the best (max) score seen, atomically.
func (r *ProfileRepo) RecordPuzzleRushScore(ctx context.Context, userID uuid.UUID, score int) (int, error) {
	var best int
	err := r.pool.QueryRow(ctx, `
		UPDATE profiles
		SET metadata = jsonb_set(
			COALESCE(metadata, '{}'::jsonb),
			'{puzzle_rush_best}',
			to_jsonb(GREATEST(COALESCE((metadata->>'puzzle_rush_best')::int, 0), $2))
		), updated_at = NOW()
		WHERE user_id = $1
		RETURNING (metadata->>'puzzle_rush_best')::int
	`, userID, score).Scan(&best)
	return best, err
}

func (r *ProfileRepo) StreakLeaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	return r.leaderboard(ctx, "current_streak", limit)
}

func (r *ProfileRepo) PuzzleRushLeaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	return r.leaderboard(ctx, "puzzle_rush_best", limit)
}

func (r *ProfileRepo) leaderboard(ctx context.Context, metaKey string, limit int) ([]models.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT username, COALESCE((metadata->>$1)::int, 0) AS value
		FROM profiles
		ORDER BY value DESC, username ASC
		LIMIT $2
	`, metaKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.LeaderboardEntry, 0)
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.Value); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type StreakAtRisk struct {
	UserID        uuid.UUID
	Email         string
	Username      string
	CurrentStreak int
}

// ListStreaksAtRisk returns users whose last streak day was yesterday (so a
// quiet today resets them) and who have not been reminded yet today.
func (r *ProfileRepo) ListStreaksAtRisk(ctx context.Context, yesterday, today string) ([]StreakAtRisk, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.user_id, u.email, p.username, COALESCE((p.metadata->>'current_streak')::int, 0)
		FROM profiles p
		JOIN users u ON u.id = p.user_id
		WHERE p.metadata->>'last_quiz_date' = $1
		  AND COALESCE((p.metadata->>'current_streak')::int, 0) >= 2
		  AND COALESCE(p.metadata->>'streak_reminder_sent_for', '') <> $2
	`, yesterday, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]StreakAtRisk, 0)
	for rows.Next() {
		var e StreakAtRisk
		if err := rows.Scan(&e.UserID, &e.Email, &e.Username, &e.CurrentStreak); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *ProfileRepo) MarkStreakReminderSent(ctx context.Context, userID uuid.UUID, day string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE profiles
		SET metadata = jsonb_set(COALESCE(metadata, '{}'::jsonb), '{streak_reminder_sent_for}', to_jsonb($2::text))
		WHERE user_id = $1
	`, userID, day)
	return err
}
