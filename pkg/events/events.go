// Package events delivers marketplace notifications once a workflow has committed.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Event types emitted by the marketplace.
const (
	TypeRequestCreated   = "request.created"
	TypeRequestCancelled = "request.cancelled"
	TypeRequestExpired   = "request.expired"
	TypeBidPlaced        = "bid.placed"
	TypeBidAccepted      = "bid.accepted"
	TypeBidRejected      = "bid.rejected"
	TypeBidWithdrawn     = "bid.withdrawn"
	TypeSessionCompleted = "session.completed"
	TypeWalletDeposit    = "wallet.deposit"
	TypeWalletWithdrawal = "wallet.withdrawal"
)

// Event is an immutable notification about a committed change.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Key        string            `json:"key"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]string `json:"data,omitempty"`
}

// Encode renders the event as JSON.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher ships events to an external sink.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
