package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorly-api/internal/models"
)

// RatingRepository stores rating aggregates. The incremental formula runs
// inside the statement, so concurrent writers never lose an update.
type RatingRepository struct {
	db *sqlx.DB
}

// NewRatingRepository creates a new instance of RatingRepository.
func NewRatingRepository(db *sqlx.DB) *RatingRepository {
	return &RatingRepository{db: db}
}

// Get returns the aggregate for a user in role.
func (r *RatingRepository) Get(ctx context.Context, userID string, role models.UserRole) (*models.RatingAggregate, error) {
	const query = `SELECT user_id, role, average, count, updated_at FROM rating_aggregates WHERE user_id = $1 AND role = $2`
	var agg models.RatingAggregate
	if err := r.db.GetContext(ctx, &agg, query, userID, role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get rating aggregate: %w", err)
	}
	return &agg, nil
}

// Apply folds score into the aggregate, creating it on first use.
func (r *RatingRepository) Apply(ctx context.Context, userID string, role models.UserRole, score int, at time.Time) (*models.RatingAggregate, error) {
	const query = `INSERT INTO rating_aggregates (user_id, role, average, count, updated_at) VALUES ($1, $2, $3, 1, $4)
ON CONFLICT (user_id, role) DO UPDATE SET average = (rating_aggregates.average * rating_aggregates.count + EXCLUDED.average) / (rating_aggregates.count + 1), count = rating_aggregates.count + 1, updated_at = EXCLUDED.updated_at
RETURNING user_id, role, average, count, updated_at`
	var agg models.RatingAggregate
	if err := r.db.GetContext(ctx, &agg, query, userID, role, float64(score), at); err != nil {
		return nil, fmt.Errorf("apply rating: %w", err)
	}
	return &agg, nil
}

// Retract removes a previously applied score.
func (r *RatingRepository) Retract(ctx context.Context, userID string, role models.UserRole, score int, at time.Time) (*models.RatingAggregate, error) {
	const query = `UPDATE rating_aggregates SET average = CASE WHEN count <= 1 THEN 0 ELSE (average * count - $3) / (count - 1) END, count = GREATEST(count - 1, 0), updated_at = $4 WHERE user_id = $1 AND role = $2
RETURNING user_id, role, average, count, updated_at`
	var agg models.RatingAggregate
	if err := r.db.GetContext(ctx, &agg, query, userID, role, float64(score), at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("retract rating: %w", err)
	}
	return &agg, nil
}
