package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/internal/repository"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
	"github.com/noah-isme/tutorly-api/pkg/keylock"
)

// LedgerRepository appends and reads ledger entries.
type LedgerRepository interface {
	Append(ctx context.Context, entries ...*models.LedgerEntry) error
	Balance(ctx context.Context, accountID string) (int64, error)
	List(ctx context.Context, accountID string, filter models.LedgerFilter) ([]models.LedgerEntry, error)
}

// EntryOption decorates an entry before it is appended.
type EntryOption func(*models.LedgerEntry)

// WithMethod records the funding channel of a deposit or withdrawal.
func WithMethod(method string) EntryOption {
	return func(e *models.LedgerEntry) { e.Method = method }
}

// LedgerService owns every balance movement. Entries are append-only and an
// account balance is the sum of its entries.
type LedgerService struct {
	repo   LedgerRepository
	locks  *keylock.Locker
	logger *zap.Logger
	runtimeDeps
}

// NewLedgerService constructs the ledger.
func NewLedgerService(repo LedgerRepository, locks *keylock.Locker, logger *zap.Logger, opts ...Option) *LedgerService {
	if locks == nil {
		locks = keylock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{repo: repo, locks: locks, logger: logger, runtimeDeps: newRuntimeDeps(opts)}
}

func (s *LedgerService) newEntry(accountID string, amount int64, kind models.EntryKind, relatedRequestID string, opts []EntryOption) *models.LedgerEntry {
	entry := &models.LedgerEntry{
		ID:               s.ids.NewID(),
		AccountID:        accountID,
		Amount:           amount,
		Kind:             kind,
		RelatedRequestID: strPtr(relatedRequestID),
		CreatedAt:        s.clock.Now(),
	}
	for _, opt := range opts {
		opt(entry)
	}
	return entry
}

func (s *LedgerService) append(ctx context.Context, entries ...*models.LedgerEntry) error {
	if err := s.repo.Append(ctx, entries...); err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return appErrors.ErrInsufficientFunds
		}
		return appErrors.Internal(err, "failed to append ledger entries")
	}
	for _, e := range entries {
		s.metrics.RecordLedgerEntry(string(e.Kind), e.Amount)
	}
	return nil
}

// Credit appends a positive entry of a credit kind.
func (s *LedgerService) Credit(ctx context.Context, accountID string, amount int64, kind models.EntryKind, relatedRequestID string, opts ...EntryOption) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, appErrors.ErrInvalidAmount
	}
	if accountID == "" {
		return nil, appErrors.FieldError("account_id", "is required")
	}
	if !kind.IsCredit() {
		return nil, appErrors.FieldError("kind", fmt.Sprintf("%s is not a credit kind", kind))
	}

	ctx, unlock := s.locks.Lock(ctx, accountLockKey(accountID))
	defer unlock()

	entry := s.newEntry(accountID, amount, kind, relatedRequestID, opts)
	if err := s.append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Debit appends a negative entry after checking the balance covers amount.
func (s *LedgerService) Debit(ctx context.Context, accountID string, amount int64, kind models.EntryKind, relatedRequestID string, opts ...EntryOption) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, appErrors.ErrInvalidAmount
	}
	if accountID == "" {
		return nil, appErrors.FieldError("account_id", "is required")
	}
	if !kind.IsDebit() {
		return nil, appErrors.FieldError("kind", fmt.Sprintf("%s is not a debit kind", kind))
	}

	ctx, unlock := s.locks.Lock(ctx, accountLockKey(accountID))
	defer unlock()

	balance, err := s.BalanceOf(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, appErrors.ErrInsufficientFunds
	}

	entry := s.newEntry(accountID, -amount, kind, relatedRequestID, opts)
	if err := s.append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Transfer moves amount from one account to another as a PAYMENT/EARNING pair.
// Both entries are appended together or not at all.
func (s *LedgerService) Transfer(ctx context.Context, fromAccountID, toAccountID string, amount int64, relatedRequestID string) (*models.LedgerEntry, *models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, nil, appErrors.ErrInvalidAmount
	}
	if fromAccountID == "" || toAccountID == "" {
		return nil, nil, appErrors.FieldError("account_id", "is required")
	}
	if fromAccountID == toAccountID {
		return nil, nil, appErrors.FieldError("to_account_id", "must differ from the source account")
	}

	ctx, unlock := s.locks.Lock(ctx, accountLockKey(fromAccountID), accountLockKey(toAccountID))
	defer unlock()

	balance, err := s.BalanceOf(ctx, fromAccountID)
	if err != nil {
		return nil, nil, err
	}
	if balance < amount {
		return nil, nil, appErrors.ErrInsufficientFunds
	}

	debit := s.newEntry(fromAccountID, -amount, models.EntryPayment, relatedRequestID, nil)
	credit := s.newEntry(toAccountID, amount, models.EntryEarning, relatedRequestID, nil)
	if err := s.append(ctx, debit, credit); err != nil {
		return nil, nil, err
	}
	s.logger.Info("ledger transfer",
		zap.String("from", fromAccountID),
		zap.String("to", toAccountID),
		zap.Int64("amount", amount),
		zap.String("request_id", relatedRequestID),
	)
	return debit, credit, nil
}

// Reverse appends REVERSAL entries that undo a transfer pair.
func (s *LedgerService) Reverse(ctx context.Context, debit, credit *models.LedgerEntry) error {
	if debit == nil || credit == nil {
		return appErrors.FieldError("entries", "transfer pair is required")
	}
	ctx, unlock := s.locks.Lock(ctx, accountLockKey(debit.AccountID), accountLockKey(credit.AccountID))
	defer unlock()

	var related string
	if debit.RelatedRequestID != nil {
		related = *debit.RelatedRequestID
	}
	refund := s.newEntry(debit.AccountID, -debit.Amount, models.EntryReversal, related, nil)
	clawback := s.newEntry(credit.AccountID, -credit.Amount, models.EntryReversal, related, nil)
	if err := s.append(ctx, clawback, refund); err != nil {
		return err
	}
	s.logger.Warn("ledger transfer reversed",
		zap.String("debit_id", debit.ID),
		zap.String("credit_id", credit.ID),
		zap.String("request_id", related),
	)
	return nil
}

// BalanceOf returns the sum of an account's entries.
func (s *LedgerService) BalanceOf(ctx context.Context, accountID string) (int64, error) {
	balance, err := s.repo.Balance(ctx, accountID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to read balance")
	}
	return balance, nil
}

// Entries lists an account's entries newest first.
func (s *LedgerService) Entries(ctx context.Context, accountID string, filter models.LedgerFilter) ([]models.LedgerEntry, error) {
	entries, err := s.repo.List(ctx, accountID, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list ledger entries")
	}
	return entries, nil
}
