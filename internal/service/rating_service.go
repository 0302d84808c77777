package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
	"github.com/noah-isme/tutorly-api/pkg/keylock"
)

// RatingRepository stores rating aggregates per user and role.
type RatingRepository interface {
	Get(ctx context.Context, userID string, role models.UserRole) (*models.RatingAggregate, error)
	Apply(ctx context.Context, userID string, role models.UserRole, score int, at time.Time) (*models.RatingAggregate, error)
	Retract(ctx context.Context, userID string, role models.UserRole, score int, at time.Time) (*models.RatingAggregate, error)
}

// RatingService maintains running averages per (user, role).
type RatingService struct {
	repo   RatingRepository
	locks  *keylock.Locker
	logger *zap.Logger
	runtimeDeps
}

// NewRatingService constructs the aggregator.
func NewRatingService(repo RatingRepository, locks *keylock.Locker, logger *zap.Logger, opts ...Option) *RatingService {
	if locks == nil {
		locks = keylock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RatingService{repo: repo, locks: locks, logger: logger, runtimeDeps: newRuntimeDeps(opts)}
}

func validScore(score int) bool {
	return score >= 1 && score <= 5
}

// RecordRating folds score into the user's aggregate for role.
func (s *RatingService) RecordRating(ctx context.Context, userID string, role models.UserRole, score int) (*models.RatingAggregate, error) {
	if !validScore(score) {
		return nil, appErrors.ErrInvalidScore
	}
	if !role.Valid() {
		return nil, appErrors.FieldError("role", "must be STUDENT or TUTOR")
	}
	if userID == "" {
		return nil, appErrors.FieldError("user_id", "is required")
	}

	ctx, unlock := s.locks.Lock(ctx, ratingLockKey(userID, role))
	defer unlock()

	agg, err := s.repo.Apply(ctx, userID, role, score, s.clock.Now())
	if err != nil {
		return nil, appErrors.Internal(err, "failed to record rating")
	}
	return agg, nil
}

// Get returns the aggregate, or an empty one when the user has no ratings in role.
func (s *RatingService) Get(ctx context.Context, userID string, role models.UserRole) (*models.RatingAggregate, error) {
	agg, err := s.repo.Get(ctx, userID, role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.RatingAggregate{UserID: userID, Role: role}, nil
		}
		return nil, appErrors.Internal(err, "failed to load rating")
	}
	return agg, nil
}

// retract undoes a RecordRating inside a failed workflow.
func (s *RatingService) retract(ctx context.Context, userID string, role models.UserRole, score int) error {
	ctx, unlock := s.locks.Lock(ctx, ratingLockKey(userID, role))
	defer unlock()

	if _, err := s.repo.Retract(ctx, userID, role, score, s.clock.Now()); err != nil {
		return appErrors.Internal(err, "failed to retract rating")
	}
	return nil
}
