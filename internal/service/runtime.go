package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/tutorly-api/internal/models"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator produces unique entity identifiers.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator issues random UUIDs.
type UUIDGenerator struct{}

// NewID implements IDGenerator.
func (UUIDGenerator) NewID() string { return uuid.NewString() }

type runtimeDeps struct {
	clock   Clock
	ids     IDGenerator
	metrics *MetricsService
}

// Option customises shared collaborators of a service.
type Option func(*runtimeDeps)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(d *runtimeDeps) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithIDGenerator overrides identifier generation.
func WithIDGenerator(ids IDGenerator) Option {
	return func(d *runtimeDeps) {
		if ids != nil {
			d.ids = ids
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(metrics *MetricsService) Option {
	return func(d *runtimeDeps) { d.metrics = metrics }
}

func newRuntimeDeps(opts []Option) runtimeDeps {
	deps := runtimeDeps{clock: SystemClock{}, ids: UUIDGenerator{}}
	for _, opt := range opts {
		opt(&deps)
	}
	return deps
}

func requestLockKey(id string) string { return "request:" + id }

func accountLockKey(id string) string { return "account:" + id }

func ratingLockKey(userID string, role models.UserRole) string {
	return "rating:" + userID + ":" + string(role)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
