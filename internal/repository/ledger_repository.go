package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorly-api/internal/models"
)

const ledgerColumns = `id, account_id, amount, kind, method, related_request_id, seq, created_at`

// LedgerRepository stores ledger entries in PostgreSQL. Appends serialize per
// account through transaction-scoped advisory locks, so concurrent processes
// cannot overdraw an account.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository creates a new instance of LedgerRepository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append inserts every entry in one transaction or none.
func (r *LedgerRepository) Append(ctx context.Context, entries ...*models.LedgerEntry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	deltas := make(map[string]int64)
	for _, e := range entries {
		deltas[e.AccountID] += e.Amount
	}
	accounts := make([]string, 0, len(deltas))
	for account := range deltas {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	for _, account := range accounts {
		if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, account); err != nil {
			return fmt.Errorf("lock account %s: %w", account, err)
		}
	}
	for _, account := range accounts {
		if deltas[account] >= 0 {
			continue
		}
		var balance int64
		if err = tx.GetContext(ctx, &balance, `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`, account); err != nil {
			return fmt.Errorf("read balance %s: %w", account, err)
		}
		if balance+deltas[account] < 0 {
			err = ErrInsufficientBalance
			return err
		}
	}

	const insert = `INSERT INTO ledger_entries (id, account_id, amount, kind, method, related_request_id, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING seq`
	for _, e := range entries {
		if err = tx.GetContext(ctx, &e.Seq, insert, e.ID, e.AccountID, e.Amount, e.Kind, e.Method, e.RelatedRequestID, e.CreatedAt); err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

// Balance sums an account's entries.
func (r *LedgerRepository) Balance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	if err := r.db.GetContext(ctx, &balance, `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`, accountID); err != nil {
		return 0, fmt.Errorf("ledger balance: %w", err)
	}
	return balance, nil
}

// List returns account entries newest first.
func (r *LedgerRepository) List(ctx context.Context, accountID string, filter models.LedgerFilter) ([]models.LedgerEntry, error) {
	conditions := []string{"account_id = $1"}
	args := []interface{}{accountID}
	if filter.Since != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *filter.Since)
	}
	if filter.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)+1))
		args = append(args, *filter.Kind)
	}
	query := fmt.Sprintf("SELECT %s FROM ledger_entries WHERE %s ORDER BY seq DESC", ledgerColumns, strings.Join(conditions, " AND "))
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var entries []models.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}
