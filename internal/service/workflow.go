package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

// saga records undo steps for a multi-step workflow. Steps are undone in reverse order.
type saga struct {
	workflow string
	logger   *zap.Logger
	undo     []undoStep
}

type undoStep struct {
	name string
	fn   func(context.Context) error
}

func newSaga(workflow string, logger *zap.Logger) *saga {
	return &saga{workflow: workflow, logger: logger}
}

func (s *saga) onRollback(name string, fn func(context.Context) error) {
	s.undo = append(s.undo, undoStep{name: name, fn: fn})
}

// rollback undoes every recorded step. Undo failures are logged and do not stop later steps.
func (s *saga) rollback(ctx context.Context, cause error) {
	for i := len(s.undo) - 1; i >= 0; i-- {
		step := s.undo[i]
		if err := step.fn(ctx); err != nil {
			s.logger.Error("workflow compensation failed",
				zap.String("workflow", s.workflow),
				zap.String("step", step.name),
				zap.NamedError("cause", cause),
				zap.Error(err),
			)
			continue
		}
		s.logger.Warn("workflow step compensated", zap.String("workflow", s.workflow), zap.String("step", step.name))
	}
	s.undo = nil
}

// transient reports whether err is an infrastructure failure worth retrying.
// Domain outcomes such as a lost race are final.
func transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return appErrors.FromError(err).Code == appErrors.ErrInternal.Code
}

// retry runs fn up to attempts times while it fails transiently.
func retry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !transient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		timer := time.NewTimer(backoff * time.Duration(i+1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
