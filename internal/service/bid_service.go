package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/dto"
	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/internal/repository"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
	"github.com/noah-isme/tutorly-api/pkg/keylock"
)

// BidRepository persists bids.
type BidRepository interface {
	Create(ctx context.Context, bid *models.Bid) error
	FindByID(ctx context.Context, id string) (*models.Bid, error)
	ListByRequest(ctx context.Context, requestID string) ([]models.Bid, error)
	ListByTutor(ctx context.Context, tutorID string) ([]models.Bid, error)
	UpdateStatus(ctx context.Context, id string, from, to models.BidStatus, at time.Time) (*models.Bid, error)
}

type bidRequestReader interface {
	Get(ctx context.Context, id string) (*models.Request, error)
}

// BidServiceConfig holds bid business limits.
type BidServiceConfig struct {
	MinPrice      int64
	MaxMessageLen int
}

// BidService owns bids. Every mutation runs under the lock of the bid's request,
// so acceptance checks and writes cannot interleave.
type BidService struct {
	repo      BidRepository
	requests  bidRequestReader
	validator *validator.Validate
	locks     *keylock.Locker
	config    BidServiceConfig
	logger    *zap.Logger
	runtimeDeps
}

// NewBidService constructs the bid store.
func NewBidService(repo BidRepository, requests bidRequestReader, validate *validator.Validate, locks *keylock.Locker, cfg BidServiceConfig, logger *zap.Logger, opts ...Option) *BidService {
	if validate == nil {
		validate = NewValidator()
	}
	if locks == nil {
		locks = keylock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = 1000
	}
	return &BidService{repo: repo, requests: requests, validator: validate, locks: locks, config: cfg, logger: logger, runtimeDeps: newRuntimeDeps(opts)}
}

func (s *BidService) validate(payload *dto.SubmitBidRequest) error {
	payload.Message = strings.TrimSpace(payload.Message)
	fields := fieldErrors{}
	if err := fields.collect(s.validator.Struct(payload)); err != nil {
		return err
	}
	if payload.OfferedPrice > 0 && payload.OfferedPrice < s.config.MinPrice {
		fields.add("offered_price", fmt.Sprintf("must be at least %d", s.config.MinPrice))
	}
	if utf8.RuneCountInString(payload.Message) > s.config.MaxMessageLen {
		fields.add("message", fmt.Sprintf("must be at most %d characters", s.config.MaxMessageLen))
	}
	return fields.err()
}

// Submit creates a PENDING bid by tutorID on an OPEN request.
func (s *BidService) Submit(ctx context.Context, requestID, tutorID string, payload dto.SubmitBidRequest) (*models.Bid, error) {
	if tutorID == "" {
		return nil, appErrors.FieldError("tutor_id", "is required")
	}
	if err := s.validate(&payload); err != nil {
		return nil, err
	}

	ctx, unlock := s.locks.Lock(ctx, requestLockKey(requestID))
	defer unlock()

	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestOpen {
		return nil, appErrors.ErrRequestNotOpen
	}

	existing, err := s.repo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list bids")
	}
	for i := range existing {
		if existing[i].TutorID == tutorID && existing[i].Active() {
			return nil, appErrors.ErrDuplicateBid
		}
	}

	now := s.clock.Now()
	bid := &models.Bid{
		ID:                     s.ids.NewID(),
		RequestID:              requestID,
		TutorID:                tutorID,
		OfferedPrice:           payload.OfferedPrice,
		Message:                payload.Message,
		EstimatedDurationHours: payload.EstimatedDurationHours,
		Status:                 models.BidPending,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.repo.Create(ctx, bid); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, appErrors.ErrDuplicateBid
		}
		return nil, appErrors.Internal(err, "failed to create bid")
	}
	return bid, nil
}

// Get returns a bid by id.
func (s *BidService) Get(ctx context.Context, id string) (*models.Bid, error) {
	bid, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "bid not found")
		}
		return nil, appErrors.Internal(err, "failed to load bid")
	}
	return bid, nil
}

// lockBid loads a bid, locks its request and reloads it so the caller sees the current state.
func (s *BidService) lockBid(ctx context.Context, id string) (context.Context, *models.Bid, func(), error) {
	bid, err := s.Get(ctx, id)
	if err != nil {
		return ctx, nil, func() {}, err
	}
	ctx, unlock := s.locks.Lock(ctx, requestLockKey(bid.RequestID))
	bid, err = s.Get(ctx, id)
	if err != nil {
		unlock()
		return ctx, nil, func() {}, err
	}
	return ctx, bid, unlock, nil
}

// Withdraw lets the bidding tutor retract a PENDING bid.
func (s *BidService) Withdraw(ctx context.Context, bidID, tutorID string) (*models.Bid, error) {
	ctx, bid, unlock, err := s.lockBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if bid.TutorID != tutorID {
		return nil, appErrors.ErrNotOwner
	}
	if bid.Status != models.BidPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("bid is %s", bid.Status))
	}
	return s.move(ctx, bid.ID, models.BidPending, models.BidWithdrawn)
}

// Accept marks a PENDING bid ACCEPTED unless another bid on the request already is.
func (s *BidService) Accept(ctx context.Context, bidID string) (*models.Bid, error) {
	ctx, bid, unlock, err := s.lockBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if bid.Status != models.BidPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("bid is %s", bid.Status))
	}
	siblings, err := s.repo.ListByRequest(ctx, bid.RequestID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list bids")
	}
	for i := range siblings {
		if siblings[i].ID != bid.ID && siblings[i].Status == models.BidAccepted {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "another bid is already accepted")
		}
	}
	return s.move(ctx, bid.ID, models.BidPending, models.BidAccepted)
}

// Reject marks a PENDING bid REJECTED.
func (s *BidService) Reject(ctx context.Context, bidID string) (*models.Bid, error) {
	ctx, bid, unlock, err := s.lockBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if bid.Status != models.BidPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("bid is %s", bid.Status))
	}
	return s.move(ctx, bid.ID, models.BidPending, models.BidRejected)
}

// rejectPending rejects every PENDING bid on a request except keepID and
// returns the rejected bids. The caller must hold the request lock.
func (s *BidService) rejectPending(ctx context.Context, requestID, keepID string) ([]models.Bid, error) {
	bids, err := s.repo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list bids")
	}
	rejected := make([]models.Bid, 0, len(bids))
	for i := range bids {
		if bids[i].ID == keepID || bids[i].Status != models.BidPending {
			continue
		}
		updated, err := s.move(ctx, bids[i].ID, models.BidPending, models.BidRejected)
		if err != nil {
			return rejected, err
		}
		rejected = append(rejected, *updated)
	}
	return rejected, nil
}

// revert undoes a status change inside a failed workflow.
func (s *BidService) revert(ctx context.Context, bidID string, from, to models.BidStatus) error {
	_, err := s.move(ctx, bidID, from, to)
	return err
}

func (s *BidService) move(ctx context.Context, id string, from, to models.BidStatus) (*models.Bid, error) {
	updated, err := s.repo.UpdateStatus(ctx, id, from, to, s.clock.Now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, repository.ErrUniqueViolation) {
			return nil, appErrors.ErrConcurrencyConflict
		}
		return nil, appErrors.Internal(err, "failed to update bid status")
	}
	return updated, nil
}

// ListForRequest returns bids on a request oldest first.
func (s *BidService) ListForRequest(ctx context.Context, requestID string) ([]models.Bid, error) {
	bids, err := s.repo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list bids")
	}
	return bids, nil
}

// ListForTutor returns a tutor's bids newest first.
func (s *BidService) ListForTutor(ctx context.Context, tutorID string) ([]models.Bid, error) {
	bids, err := s.repo.ListByTutor(ctx, tutorID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list bids")
	}
	return bids, nil
}
