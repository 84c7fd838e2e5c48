package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studydeck-backend/internal/models"
)

type CourseRepo struct {
	pool *pgxpool.Pool
}

func NewCourseRepo(pool *pgxpool.Pool) *CourseRepo {
	return &CourseRepo{pool: pool}
}

func (r *CourseRepo) Create(ctx context.Context, c *models.Course) error {
	c.ID = uuid.New()
	query := `INSERT INTO courses (id, name, code) VALUES ($1, $2, $3) RETURNING created_at`
	return r.pool.QueryRow(ctx, query, c.ID, c.Name, c.Code).Scan(&c.CreatedAt)
}

func (r *CourseRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	c := &models.Course{}
	query := `SELECT id, name, code, syllabus_card_id, created_at FROM courses WHERE id = $1`
	err := r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Code, &c.SyllabusCardID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CourseRepo) List(ctx context.Context) ([]*models.Course, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT id, name, code, syllabus_card_id, created_at FROM courses ORDER BY name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []*models.Course
	for rows.Next() {
		c := &models.Course{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &c.SyllabusCardID, &c.CreatedAt); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// Subscribe is idempotent; re-subscribing is a benign no-op.
func (r *CourseRepo) Subscribe(ctx context.Context, userID, courseID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO subscriptions (user_id, course_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, courseID)
	return err
}

func (r *CourseRepo) Unsubscribe(ctx context.Context, userID, courseID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		"DELETE FROM subscriptions WHERE user_id = $1 AND course_id = $2", userID, courseID)
	return err
}

func (r *CourseRepo) IsSubscribed(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM subscriptions WHERE user_id = $1 AND course_id = $2)",
		userID, courseID,
	).Scan(&exists)
	return exists, err
}

// SubscriberCount is the voting engine's audience size for a course.
func (r *CourseRepo) SubscriberCount(ctx context.Context, courseID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM subscriptions WHERE course_id = $1", courseID,
	).Scan(&count)
	return count, err
}

func (r *CourseRepo) HasSyllabus(ctx context.Context, courseID uuid.UUID) (bool, error) {
	var has bool
	err := r.pool.QueryRow(ctx,
		"SELECT syllabus_card_id IS NOT NULL FROM courses WHERE id = $1", courseID,
	).Scan(&has)
	return has, err
}

func (r *CourseRepo) SetSyllabus(ctx context.Context, courseID, syllabusID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE courses SET syllabus_card_id = $2 WHERE id = $1", courseID, syllabusID)
	return err
}
