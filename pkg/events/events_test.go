package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type writerStub struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *writerStub) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *writerStub) Close() error {
	w.closed = true
	return nil
}

func sampleEvent() Event {
	return Event{
		ID:         "evt-1",
		Type:       TypeBidAccepted,
		Key:        "req-1",
		OccurredAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Data:       map[string]string{"bid_id": "bid-1"},
	}
}

func TestKafkaPublisherProducesKeyedMessage(t *testing.T) {
	w := &writerStub{}
	p := NewKafkaPublisherWithWriter(w)

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "req-1", string(msg.Key))
	assert.Equal(t, "event-type", msg.Headers[0].Key)
	assert.Equal(t, TypeBidAccepted, string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "bid-1", decoded.Data["bid_id"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherWrapsWriterError(t *testing.T) {
	cause := errors.New("broker down")
	p := NewKafkaPublisherWithWriter(&writerStub{err: cause})
	err := p.Publish(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, cause)
}

func TestNewKafkaPublisherValidatesConfig(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "topic")
	assert.Error(t, err)
	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
	assert.Error(t, err)
}

func TestLogPublisherWritesStructuredEntry(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogPublisher(zap.New(core))

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	entries := logs.FilterMessage("marketplace event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, TypeBidAccepted, entries[0].ContextMap()["type"])
	assert.Equal(t, "bid-1", entries[0].ContextMap()["bid_id"])
}
