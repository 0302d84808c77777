package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher constructs a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("events")}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	fields := make([]zap.Field, 0, len(evt.Data)+4)
	fields = append(fields,
		zap.String("event_id", evt.ID),
		zap.String("type", evt.Type),
		zap.String("key", evt.Key),
		zap.Time("occurred_at", evt.OccurredAt),
	)
	for k, v := range evt.Data {
		fields = append(fields, zap.String(k, v))
	}
	p.logger.Info("marketplace event", fields...)
	return nil
}

// Close implements Publisher.
func (p *LogPublisher) Close() error {
	_ = p.logger.Sync()
	return nil
}
