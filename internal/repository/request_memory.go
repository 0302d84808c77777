package repository

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"

	"github.com/noah-isme/tutorly-api/internal/models"
)

// MemoryRequestRepository keeps requests in process memory.
type MemoryRequestRepository struct {
	mu    sync.RWMutex
	items map[string]models.Request
	seq   map[string]int
}

// NewMemoryRequestRepository constructs an empty repository.
func NewMemoryRequestRepository() *MemoryRequestRepository {
	return &MemoryRequestRepository{items: make(map[string]models.Request), seq: make(map[string]int)}
}

// Create stores a new request.
func (r *MemoryRequestRepository) Create(_ context.Context, req *models.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[req.ID]; exists {
		return ErrUniqueViolation
	}
	r.items[req.ID] = *req
	r.seq[req.ID] = len(r.seq)
	return nil
}

// FindByID returns a copy of the stored request.
func (r *MemoryRequestRepository) FindByID(_ context.Context, id string) (*models.Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

// UpdateStatus applies t only while the stored status still equals t.From.
func (r *MemoryRequestRepository) UpdateStatus(_ context.Context, t models.RequestTransition) (*models.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[t.ID]
	if !ok || item.Status != t.From {
		return nil, sql.ErrNoRows
	}
	applyTransition(&item, t)
	r.items[t.ID] = item
	return &item, nil
}

// List returns matching requests newest first with the total match count.
func (r *MemoryRequestRepository) List(_ context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	r.mu.RLock()
	matched := make([]models.Request, 0)
	order := make(map[string]int)
	for id, item := range r.items {
		if matchesRequest(filter, &item) {
			matched = append(matched, item)
			order[id] = r.seq[id]
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return order[matched[i].ID] > order[matched[j].ID]
	})

	total := len(matched)
	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	start := (page - 1) * pageSize
	if start >= total {
		return []models.Request{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func applyTransition(item *models.Request, t models.RequestTransition) {
	item.Status = t.To
	switch t.To {
	case models.RequestMatched:
		item.MatchedTutorID = t.MatchedTutorID
		item.AcceptedBidID = t.AcceptedBidID
	case models.RequestOpen:
		item.MatchedTutorID = nil
		item.AcceptedBidID = nil
	}
	item.UpdatedAt = t.At
}

func matchesRequest(filter models.RequestFilter, item *models.Request) bool {
	if filter.Status != nil && item.Status != *filter.Status {
		return false
	}
	if filter.StudentID != "" && item.StudentID != filter.StudentID {
		return false
	}
	if filter.Subject != "" && !strings.EqualFold(item.Subject, filter.Subject) {
		return false
	}
	if filter.Urgency != nil && item.Urgency != *filter.Urgency {
		return false
	}
	if filter.MaxBudget != nil && item.MaxPrice > *filter.MaxBudget {
		return false
	}
	if filter.SessionBefore != nil && !item.SessionAt.Before(*filter.SessionBefore) {
		return false
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		haystack := strings.ToLower(item.Subject + "\n" + item.Topic + "\n" + item.Description)
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}
