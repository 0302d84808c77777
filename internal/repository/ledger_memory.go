package repository

import (
	"context"
	"sync"

	"github.com/noah-isme/tutorly-api/internal/models"
)

// MemoryLedgerRepository keeps ledger entries in process memory with a cached
// balance per account.
type MemoryLedgerRepository struct {
	mu       sync.RWMutex
	entries  map[string][]models.LedgerEntry
	balances map[string]int64
	seq      int64
}

// NewMemoryLedgerRepository constructs an empty ledger.
func NewMemoryLedgerRepository() *MemoryLedgerRepository {
	return &MemoryLedgerRepository{
		entries:  make(map[string][]models.LedgerEntry),
		balances: make(map[string]int64),
	}
}

// Append stores every entry or none. It fails with ErrInsufficientBalance when
// any account would end below zero.
func (r *MemoryLedgerRepository) Append(_ context.Context, entries ...*models.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]int64, len(entries))
	for _, e := range entries {
		balance, seen := next[e.AccountID]
		if !seen {
			balance = r.balances[e.AccountID]
		}
		balance += e.Amount
		if balance < 0 {
			return ErrInsufficientBalance
		}
		next[e.AccountID] = balance
	}

	for _, e := range entries {
		r.seq++
		e.Seq = r.seq
		r.entries[e.AccountID] = append(r.entries[e.AccountID], *e)
	}
	for account, balance := range next {
		r.balances[account] = balance
	}
	return nil
}

// Balance returns the account balance.
func (r *MemoryLedgerRepository) Balance(_ context.Context, accountID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.balances[accountID], nil
}

// List returns account entries newest first.
func (r *MemoryLedgerRepository) List(_ context.Context, accountID string, filter models.LedgerFilter) ([]models.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.entries[accountID]
	out := make([]models.LedgerEntry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if !matchesEntry(filter, &all[i]) {
			continue
		}
		out = append(out, all[i])
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func matchesEntry(filter models.LedgerFilter, e *models.LedgerEntry) bool {
	if filter.Since != nil && e.CreatedAt.Before(*filter.Since) {
		return false
	}
	if filter.Kind != nil && e.Kind != *filter.Kind {
		return false
	}
	return true
}
