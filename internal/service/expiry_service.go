package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/pkg/jobs"
)

const expiryJobName = "expire-stale-requests"

type staleExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// ExpiryService cancels OPEN requests whose session time has passed.
type ExpiryService struct {
	marketplace staleExpirer
	logger      *zap.Logger
	runtimeDeps
}

// NewExpiryService constructs an ExpiryService.
func NewExpiryService(marketplace staleExpirer, logger *zap.Logger, opts ...Option) *ExpiryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpiryService{marketplace: marketplace, logger: logger, runtimeDeps: newRuntimeDeps(opts)}
}

// Sweep expires stale requests as of the current clock.
func (s *ExpiryService) Sweep(ctx context.Context) error {
	count, err := s.marketplace.ExpireStale(ctx, s.clock.Now())
	if err != nil {
		return err
	}
	s.logger.Debug("expiry sweep finished", zap.Int("expired", count))
	return nil
}

// Register schedules Sweep on scheduler using a cron expression.
func (s *ExpiryService) Register(scheduler *jobs.Scheduler, spec string) error {
	return scheduler.Register(expiryJobName, spec, s.Sweep)
}
