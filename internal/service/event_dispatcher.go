package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/pkg/events"
	"github.com/noah-isme/tutorly-api/pkg/jobs"
)

const eventJobType = "event.publish"

// EventDispatcher hands committed-workflow events to a worker queue that
// publishes them. Delivery failures never reach the caller.
type EventDispatcher struct {
	publisher events.Publisher
	queue     *jobs.Queue
	metrics   *MetricsService
	logger    *zap.Logger
}

// EventDispatcherConfig sizes the publishing worker pool.
type EventDispatcherConfig struct {
	Workers int
	Retries int
}

// NewEventDispatcher builds a dispatcher. Call Start before dispatching.
func NewEventDispatcher(publisher events.Publisher, metrics *MetricsService, logger *zap.Logger, cfg EventDispatcherConfig) *EventDispatcher {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &EventDispatcher{publisher: publisher, metrics: metrics, logger: logger}
	d.queue = jobs.NewQueue("events", d.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		Logger:     logger,
	})
	return d
}

// Start launches the publishing workers.
func (d *EventDispatcher) Start(ctx context.Context) {
	if d == nil {
		return
	}
	d.queue.Start(ctx)
}

// Stop drains buffered events and closes the publisher.
func (d *EventDispatcher) Stop() {
	if d == nil {
		return
	}
	d.queue.Stop()
	if err := d.publisher.Close(); err != nil {
		d.logger.Warn("event publisher close failed", zap.Error(err))
	}
}

// Dispatch enqueues evt without blocking.
func (d *EventDispatcher) Dispatch(evt events.Event) {
	if d == nil {
		return
	}
	if err := d.queue.TryEnqueue(jobs.Job{ID: evt.ID, Type: eventJobType, Payload: evt}); err != nil {
		d.metrics.RecordEvent(evt.Type, false)
		d.logger.Warn("event dropped", zap.String("event_id", evt.ID), zap.String("type", evt.Type), zap.Error(err))
	}
}

func (d *EventDispatcher) handle(ctx context.Context, job jobs.Job) error {
	evt, ok := job.Payload.(events.Event)
	if !ok {
		d.logger.Error("unexpected event payload", zap.String("job_id", job.ID))
		return nil
	}
	if err := d.publisher.Publish(ctx, evt); err != nil {
		d.metrics.RecordEvent(evt.Type, false)
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	d.metrics.RecordEvent(evt.Type, true)
	return nil
}
