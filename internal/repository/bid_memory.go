package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/tutorly-api/internal/models"
)

// MemoryBidRepository keeps bids in process memory and enforces the same
// uniqueness rules as the bids table indexes.
type MemoryBidRepository struct {
	mu        sync.RWMutex
	items     map[string]models.Bid
	byRequest map[string][]string
	seq       int64
}

// NewMemoryBidRepository constructs an empty repository.
func NewMemoryBidRepository() *MemoryBidRepository {
	return &MemoryBidRepository{items: make(map[string]models.Bid), byRequest: make(map[string][]string)}
}

// Create stores a bid, rejecting a second active bid by the same tutor.
func (r *MemoryBidRepository) Create(_ context.Context, bid *models.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[bid.ID]; exists {
		return ErrUniqueViolation
	}
	for _, id := range r.byRequest[bid.RequestID] {
		other := r.items[id]
		if other.TutorID == bid.TutorID && other.Active() && bid.Active() {
			return ErrUniqueViolation
		}
	}
	r.seq++
	bid.Seq = r.seq
	r.items[bid.ID] = *bid
	r.byRequest[bid.RequestID] = append(r.byRequest[bid.RequestID], bid.ID)
	return nil
}

// FindByID returns a copy of the stored bid.
func (r *MemoryBidRepository) FindByID(_ context.Context, id string) (*models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

// ListByRequest returns bids on a request oldest first.
func (r *MemoryBidRepository) ListByRequest(_ context.Context, requestID string) ([]models.Bid, error) {
	r.mu.RLock()
	ids := r.byRequest[requestID]
	bids := make([]models.Bid, 0, len(ids))
	for _, id := range ids {
		bids = append(bids, r.items[id])
	}
	r.mu.RUnlock()

	sort.SliceStable(bids, func(i, j int) bool {
		if !bids[i].CreatedAt.Equal(bids[j].CreatedAt) {
			return bids[i].CreatedAt.Before(bids[j].CreatedAt)
		}
		return bids[i].Seq < bids[j].Seq
	})
	return bids, nil
}

// ListByTutor returns a tutor's bids newest first.
func (r *MemoryBidRepository) ListByTutor(_ context.Context, tutorID string) ([]models.Bid, error) {
	r.mu.RLock()
	bids := make([]models.Bid, 0)
	for _, item := range r.items {
		if item.TutorID == tutorID {
			bids = append(bids, item)
		}
	}
	r.mu.RUnlock()

	sort.Slice(bids, func(i, j int) bool {
		if !bids[i].CreatedAt.Equal(bids[j].CreatedAt) {
			return bids[i].CreatedAt.After(bids[j].CreatedAt)
		}
		return bids[i].Seq > bids[j].Seq
	})
	return bids, nil
}

// UpdateStatus moves a bid from one status to another only while it is still in from.
func (r *MemoryBidRepository) UpdateStatus(_ context.Context, id string, from, to models.BidStatus, at time.Time) (*models.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.Status != from {
		return nil, sql.ErrNoRows
	}
	for _, otherID := range r.byRequest[item.RequestID] {
		if otherID == id {
			continue
		}
		other := r.items[otherID]
		if to == models.BidAccepted && other.Status == models.BidAccepted {
			return nil, ErrUniqueViolation
		}
		if to != models.BidWithdrawn && from == models.BidWithdrawn && other.TutorID == item.TutorID && other.Active() {
			return nil, ErrUniqueViolation
		}
	}
	item.Status = to
	item.UpdatedAt = at
	r.items[id] = item
	return &item, nil
}
