package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/internal/repository"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

const maxReviewCommentLen = 1000

// ReviewRepository stores the reviews exchanged when sessions complete.
type ReviewRepository interface {
	Create(ctx context.Context, review *models.Review) error
	Delete(ctx context.Context, id string) error
	ListByReviewee(ctx context.Context, revieweeID string) ([]models.Review, error)
}

// ReviewService records session reviews. Aggregates stay with RatingService.
type ReviewService struct {
	repo   ReviewRepository
	logger *zap.Logger
	runtimeDeps
}

// NewReviewService constructs a ReviewService.
func NewReviewService(repo ReviewRepository, logger *zap.Logger, opts ...Option) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{repo: repo, logger: logger, runtimeDeps: newRuntimeDeps(opts)}
}

// Record stores reviewerID's review of revieweeID for a request.
func (s *ReviewService) Record(ctx context.Context, requestID, reviewerID, revieweeID string, role models.UserRole, score int, comment string) (*models.Review, error) {
	if !validScore(score) {
		return nil, appErrors.ErrInvalidScore
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > maxReviewCommentLen {
		return nil, appErrors.FieldError("comment", "must be at most 1000 characters")
	}
	review := &models.Review{
		ID:         s.ids.NewID(),
		RequestID:  requestID,
		ReviewerID: reviewerID,
		RevieweeID: revieweeID,
		Role:       role,
		Rating:     score,
		Comment:    comment,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.Create(ctx, review); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, appErrors.Clone(appErrors.ErrConcurrencyConflict, "request was already reviewed")
		}
		return nil, appErrors.Internal(err, "failed to record review")
	}
	return review, nil
}

// ListForUser returns the reviews a user received, newest first.
func (s *ReviewService) ListForUser(ctx context.Context, userID string) ([]models.Review, error) {
	reviews, err := s.repo.ListByReviewee(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list reviews")
	}
	return reviews, nil
}

// remove deletes a review inside a failed workflow.
func (s *ReviewService) remove(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Internal(err, "failed to remove review")
	}
	return nil
}
