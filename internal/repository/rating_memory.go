package repository

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/noah-isme/tutorly-api/internal/models"
)

type ratingKey struct {
	userID string
	role   models.UserRole
}

// MemoryRatingRepository keeps rating aggregates in process memory.
type MemoryRatingRepository struct {
	mu    sync.RWMutex
	items map[ratingKey]models.RatingAggregate
}

// NewMemoryRatingRepository constructs an empty repository.
func NewMemoryRatingRepository() *MemoryRatingRepository {
	return &MemoryRatingRepository{items: make(map[ratingKey]models.RatingAggregate)}
}

// Get returns the aggregate or sql.ErrNoRows when the user was never rated in role.
func (r *MemoryRatingRepository) Get(_ context.Context, userID string, role models.UserRole) (*models.RatingAggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agg, ok := r.items[ratingKey{userID, role}]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &agg, nil
}

// Apply folds score into the aggregate, creating it on first use.
func (r *MemoryRatingRepository) Apply(_ context.Context, userID string, role models.UserRole, score int, at time.Time) (*models.RatingAggregate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ratingKey{userID, role}
	agg, ok := r.items[key]
	if !ok {
		agg = models.RatingAggregate{UserID: userID, Role: role}
	}
	agg = agg.Apply(score)
	agg.UpdatedAt = at
	r.items[key] = agg
	return &agg, nil
}

// Retract removes a previously applied score.
func (r *MemoryRatingRepository) Retract(_ context.Context, userID string, role models.UserRole, score int, at time.Time) (*models.RatingAggregate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ratingKey{userID, role}
	agg, ok := r.items[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	agg = agg.Retract(score)
	agg.UpdatedAt = at
	r.items[key] = agg
	return &agg, nil
}
