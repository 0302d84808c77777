package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorly-api/internal/models"
)

const reviewColumns = `id, request_id, reviewer_id, reviewee_id, role, rating, comment, created_at`

// ReviewRepository provides database access for session reviews.
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository creates a new instance of ReviewRepository.
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create inserts a review.
func (r *ReviewRepository) Create(ctx context.Context, review *models.Review) error {
	const query = `INSERT INTO reviews (` + reviewColumns + `) VALUES (:id, :request_id, :reviewer_id, :reviewee_id, :role, :rating, :comment, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, review); err != nil {
		if isUniqueViolation(err) {
			return ErrUniqueViolation
		}
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

// Delete removes a review by id.
func (r *ReviewRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByReviewee returns the reviews a user received newest first.
func (r *ReviewRepository) ListByReviewee(ctx context.Context, revieweeID string) ([]models.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE reviewee_id = $1 ORDER BY created_at DESC, id DESC`
	reviews := make([]models.Review, 0)
	if err := r.db.SelectContext(ctx, &reviews, query, revieweeID); err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}
