package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/dto"
	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/internal/repository"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
	"github.com/noah-isme/tutorly-api/pkg/keylock"
)

const (
	minDescriptionLength = 10
	maxDescriptionLength = 500
)

// RequestRepository persists tutoring requests.
type RequestRepository interface {
	Create(ctx context.Context, req *models.Request) error
	FindByID(ctx context.Context, id string) (*models.Request, error)
	UpdateStatus(ctx context.Context, t models.RequestTransition) (*models.Request, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error)
}

// RequestServiceConfig holds request business limits.
type RequestServiceConfig struct {
	MinPrice int64
}

// RequestService owns tutoring requests and their state machine.
type RequestService struct {
	repo      RequestRepository
	validator *validator.Validate
	locks     *keylock.Locker
	config    RequestServiceConfig
	logger    *zap.Logger
	runtimeDeps
}

// NewRequestService constructs the request store.
func NewRequestService(repo RequestRepository, validate *validator.Validate, locks *keylock.Locker, cfg RequestServiceConfig, logger *zap.Logger, opts ...Option) *RequestService {
	if validate == nil {
		validate = NewValidator()
	}
	if locks == nil {
		locks = keylock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{repo: repo, validator: validate, locks: locks, config: cfg, logger: logger, runtimeDeps: newRuntimeDeps(opts)}
}

// Create validates and stores a new OPEN request owned by studentID.
func (s *RequestService) Create(ctx context.Context, studentID string, payload dto.CreateRequest) (*models.Request, error) {
	payload.Subject = strings.TrimSpace(payload.Subject)
	payload.Topic = strings.TrimSpace(payload.Topic)
	payload.Description = strings.TrimSpace(payload.Description)
	payload.Location = strings.TrimSpace(payload.Location)

	fields := fieldErrors{}
	if studentID == "" {
		fields.add("student_id", "is required")
	}
	if err := fields.collect(s.validator.Struct(payload)); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if n := utf8.RuneCountInString(payload.Description); payload.Description != "" && (n < minDescriptionLength || n > maxDescriptionLength) {
		fields.add("description", fmt.Sprintf("must be between %d and %d characters", minDescriptionLength, maxDescriptionLength))
	}
	if payload.PreferredPrice > 0 && payload.PreferredPrice < s.config.MinPrice {
		fields.add("preferred_price", fmt.Sprintf("must be at least %d", s.config.MinPrice))
	}
	if payload.MaxPrice > 0 && payload.MaxPrice < s.config.MinPrice {
		fields.add("max_price", fmt.Sprintf("must be at least %d", s.config.MinPrice))
	}
	if payload.MaxPrice > 0 && payload.PreferredPrice > payload.MaxPrice {
		fields.add("max_price", "must be greater than or equal to preferred_price")
	}
	if !payload.SessionAt.IsZero() && !payload.SessionAt.After(now) {
		fields.add("session_at", "must be in the future")
	}
	if err := fields.err(); err != nil {
		return nil, err
	}

	urgency := models.Urgency(payload.Urgency)
	if urgency == "" {
		urgency = models.UrgencyMedium
	}

	req := &models.Request{
		ID:             s.ids.NewID(),
		StudentID:      studentID,
		Subject:        payload.Subject,
		Topic:          payload.Topic,
		Description:    payload.Description,
		DurationHours:  payload.DurationHours,
		PreferredPrice: payload.PreferredPrice,
		MaxPrice:       payload.MaxPrice,
		SessionAt:      payload.SessionAt.UTC(),
		Location:       payload.Location,
		Urgency:        urgency,
		Status:         models.RequestOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, appErrors.Clone(appErrors.ErrConcurrencyConflict, "request id already in use")
		}
		return nil, appErrors.Internal(err, "failed to create request")
	}
	return req, nil
}

// Get returns a request by id.
func (s *RequestService) Get(ctx context.Context, id string) (*models.Request, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Internal(err, "failed to load request")
	}
	return req, nil
}

// Transition moves a request along the state machine.
func (s *RequestService) Transition(ctx context.Context, id string, to models.RequestStatus) (*models.Request, error) {
	return s.transition(ctx, models.RequestTransition{ID: id, To: to})
}

// match moves an OPEN request to MATCHED, recording the accepted bid.
func (s *RequestService) match(ctx context.Context, id, tutorID, bidID string) (*models.Request, error) {
	return s.transition(ctx, models.RequestTransition{
		ID:             id,
		To:             models.RequestMatched,
		MatchedTutorID: &tutorID,
		AcceptedBidID:  &bidID,
	})
}

func (s *RequestService) transition(ctx context.Context, t models.RequestTransition) (*models.Request, error) {
	ctx, unlock := s.locks.Lock(ctx, requestLockKey(t.ID))
	defer unlock()

	current, err := s.Get(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransition(t.To) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("request cannot move from %s to %s", current.Status, t.To))
	}
	t.From = current.Status
	t.At = s.clock.Now()
	return s.apply(ctx, t)
}

// revert restores a previous status without consulting the state machine. It is
// only used to compensate a failed workflow step.
func (s *RequestService) revert(ctx context.Context, id string, from, to models.RequestStatus) error {
	ctx, unlock := s.locks.Lock(ctx, requestLockKey(id))
	defer unlock()

	_, err := s.apply(ctx, models.RequestTransition{ID: id, From: from, To: to, At: s.clock.Now()})
	return err
}

func (s *RequestService) apply(ctx context.Context, t models.RequestTransition) (*models.Request, error) {
	updated, err := s.repo.UpdateStatus(ctx, t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrConcurrencyConflict
		}
		return nil, appErrors.Internal(err, "failed to update request status")
	}
	s.logger.Debug("request transitioned",
		zap.String("request_id", t.ID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
	)
	return updated, nil
}

// List returns requests matching filter with pagination metadata.
func (s *RequestService) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list requests")
	}
	return requests, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}
