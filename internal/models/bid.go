package models

import "time"

// BidStatus enumerates bid lifecycle states.
type BidStatus string

const (
	BidPending   BidStatus = "PENDING"
	BidAccepted  BidStatus = "ACCEPTED"
	BidRejected  BidStatus = "REJECTED"
	BidWithdrawn BidStatus = "WITHDRAWN"
)

// Bid is a tutor's priced proposal against an open request.
type Bid struct {
	ID                     string    `db:"id" json:"id"`
	RequestID              string    `db:"request_id" json:"request_id"`
	TutorID                string    `db:"tutor_id" json:"tutor_id"`
	OfferedPrice           int64     `db:"offered_price" json:"offered_price"`
	Message                string    `db:"message" json:"message"`
	EstimatedDurationHours float64   `db:"estimated_duration_hours" json:"estimated_duration_hours"`
	Status                 BidStatus `db:"status" json:"status"`
	Seq                    int64     `db:"seq" json:"-"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// Active reports whether the bid still blocks a new bid by the same tutor.
func (b *Bid) Active() bool {
	return b.Status != BidWithdrawn
}
