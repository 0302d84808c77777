package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/noah-isme/tutorly-api/internal/models"
)

type reviewKey struct {
	requestID  string
	reviewerID string
}

// MemoryReviewRepository keeps reviews in process memory.
type MemoryReviewRepository struct {
	mu       sync.RWMutex
	items    map[string]models.Review
	reviewer map[reviewKey]string
}

// NewMemoryReviewRepository constructs an empty repository.
func NewMemoryReviewRepository() *MemoryReviewRepository {
	return &MemoryReviewRepository{
		items:    make(map[string]models.Review),
		reviewer: make(map[reviewKey]string),
	}
}

// Create stores a review. A reviewer leaves at most one review per request.
func (r *MemoryReviewRepository) Create(_ context.Context, review *models.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := reviewKey{review.RequestID, review.ReviewerID}
	if _, exists := r.reviewer[key]; exists {
		return ErrUniqueViolation
	}
	if _, exists := r.items[review.ID]; exists {
		return ErrUniqueViolation
	}
	r.items[review.ID] = *review
	r.reviewer[key] = review.ID
	return nil
}

// Delete removes a review, returning sql.ErrNoRows when it does not exist.
func (r *MemoryReviewRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	review, ok := r.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	delete(r.items, id)
	delete(r.reviewer, reviewKey{review.RequestID, review.ReviewerID})
	return nil
}

// ListByReviewee returns the reviews a user received newest first.
func (r *MemoryReviewRepository) ListByReviewee(_ context.Context, revieweeID string) ([]models.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Review, 0)
	for _, review := range r.items {
		if review.RevieweeID == revieweeID {
			out = append(out, review)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
