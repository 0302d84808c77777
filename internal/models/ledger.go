package models

import "time"

// EntryKind classifies ledger entries.
type EntryKind string

const (
	EntryDeposit    EntryKind = "DEPOSIT"
	EntryWithdrawal EntryKind = "WITHDRAWAL"
	EntryPayment    EntryKind = "PAYMENT"
	EntryEarning    EntryKind = "EARNING"
	// EntryReversal undoes a transfer leg inside a failed workflow.
	EntryReversal EntryKind = "REVERSAL"
)

// IsCredit reports whether entries of this kind increase the balance.
func (k EntryKind) IsCredit() bool {
	switch k {
	case EntryDeposit, EntryEarning, EntryReversal:
		return true
	}
	return false
}

// IsDebit reports whether entries of this kind decrease the balance.
func (k EntryKind) IsDebit() bool {
	switch k {
	case EntryWithdrawal, EntryPayment, EntryReversal:
		return true
	}
	return false
}

// LedgerEntry is an append-only balance movement. Amount is signed.
type LedgerEntry struct {
	ID               string    `db:"id" json:"id"`
	AccountID        string    `db:"account_id" json:"account_id"`
	Amount           int64     `db:"amount" json:"amount"`
	Kind             EntryKind `db:"kind" json:"kind"`
	Method           string    `db:"method" json:"method,omitempty"`
	RelatedRequestID *string   `db:"related_request_id" json:"related_request_id,omitempty"`
	Seq              int64     `db:"seq" json:"-"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// LedgerFilter narrows an account history.
type LedgerFilter struct {
	Since *time.Time
	Kind  *EntryKind
	Limit int
}
