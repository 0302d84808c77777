package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/internal/repository"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

func newTestRequests(repo RequestRepository) *RequestService {
	if repo == nil {
		repo = repository.NewMemoryRequestRepository()
	}
	return NewRequestService(repo, nil, nil, RequestServiceConfig{MinPrice: 50000}, nil, WithClock(newStubClock()), WithIDGenerator(&seqIDs{}))
}

func TestRequestCreate(t *testing.T) {
	svc := newTestRequests(nil)
	payload := validRequest()
	payload.Subject = "  Mathematics "
	payload.Urgency = "high"

	req, err := svc.Create(context.Background(), "student-1", payload)
	require.NoError(t, err)
	assert.Equal(t, "id-001", req.ID)
	assert.Equal(t, "Mathematics", req.Subject)
	assert.Equal(t, models.UrgencyHigh, req.Urgency)
	assert.Equal(t, models.RequestOpen, req.Status)
	assert.Equal(t, testNow, req.CreatedAt)
	assert.Nil(t, req.MatchedTutorID)

	stored, err := svc.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.MaxPrice, stored.MaxPrice)
}

func TestRequestCreateCollectsFieldErrors(t *testing.T) {
	svc := newTestRequests(nil)

	payload := validRequest()
	payload.Description = "too short"
	payload.PreferredPrice = 250000
	payload.SessionAt = testNow.Add(-time.Hour)
	_, err := svc.Create(context.Background(), "student-1", payload)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	fields := appErrors.FromError(err).Fields
	assert.Contains(t, fields, "description")
	assert.Contains(t, fields, "max_price")
	assert.Contains(t, fields, "session_at")

	payload = validRequest()
	payload.PreferredPrice = 40000
	payload.MaxPrice = 45000
	_, err = svc.Create(context.Background(), "student-1", payload)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	fields = appErrors.FromError(err).Fields
	assert.Contains(t, fields, "preferred_price")
	assert.Contains(t, fields, "max_price")

	payload = validRequest()
	payload.Subject = ""
	payload.DurationHours = 0
	payload.Urgency = "urgent"
	_, err = svc.Create(context.Background(), "student-1", payload)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	fields = appErrors.FromError(err).Fields
	assert.Equal(t, "is required", fields["subject"])
	assert.Contains(t, fields, "duration_hours")
	assert.Contains(t, fields, "urgency")
}

func TestRequestTransitions(t *testing.T) {
	svc := newTestRequests(nil)
	ctx := context.Background()
	req, err := svc.Create(ctx, "student-1", validRequest())
	require.NoError(t, err)

	_, err = svc.Transition(ctx, req.ID, models.RequestCompleted)
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	matched, err := svc.match(ctx, req.ID, "tutor-1", "bid-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestMatched, matched.Status)

	done, err := svc.Transition(ctx, req.ID, models.RequestCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.RequestCompleted, done.Status)

	_, err = svc.Transition(ctx, req.ID, models.RequestCancelled)
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestRequestTransitionLostRace(t *testing.T) {
	repo := &flakyRequestRepo{MemoryRequestRepository: repository.NewMemoryRequestRepository(), failTo: models.RequestCancelled, err: sql.ErrNoRows}
	svc := newTestRequests(repo)
	ctx := context.Background()
	req, err := svc.Create(ctx, "student-1", validRequest())
	require.NoError(t, err)

	_, err = svc.Transition(ctx, req.ID, models.RequestCancelled)
	assert.ErrorIs(t, err, appErrors.ErrConcurrencyConflict)
}

func TestRequestListPaginates(t *testing.T) {
	svc := newTestRequests(nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, "student-1", validRequest())
		require.NoError(t, err)
	}
	items, pagination, err := svc.List(ctx, models.RequestFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "id-001", items[0].ID)
	assert.Equal(t, 3, pagination.TotalCount)
	assert.Equal(t, 2, pagination.Page)
}
