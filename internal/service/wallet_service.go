package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/dto"
	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
	"github.com/noah-isme/tutorly-api/pkg/events"
	"github.com/noah-isme/tutorly-api/pkg/export"
)

// WalletConfig holds funding limits.
type WalletConfig struct {
	MinDeposit    int64
	MinWithdrawal int64
}

// WalletService exposes deposits, withdrawals and history on top of the ledger.
type WalletService struct {
	ledger    *LedgerService
	validator *validator.Validate
	events    *EventDispatcher
	config    WalletConfig
	logger    *zap.Logger
	runtimeDeps
}

// NewWalletService constructs a WalletService.
func NewWalletService(ledger *LedgerService, validate *validator.Validate, dispatcher *EventDispatcher, cfg WalletConfig, logger *zap.Logger, opts ...Option) *WalletService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalletService{ledger: ledger, validator: validate, events: dispatcher, config: cfg, logger: logger, runtimeDeps: newRuntimeDeps(opts)}
}

// GetWalletBalance returns the derived balance of accountID.
func (s *WalletService) GetWalletBalance(ctx context.Context, accountID string) (*dto.WalletBalance, error) {
	balance, err := s.ledger.BalanceOf(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &dto.WalletBalance{AccountID: accountID, Balance: balance}, nil
}

func (s *WalletService) checkFunding(payload interface{}, amount, minimum int64) error {
	if amount <= 0 {
		return appErrors.ErrInvalidAmount
	}
	fields := fieldErrors{}
	if err := fields.collect(s.validator.Struct(payload)); err != nil {
		return err
	}
	if amount < minimum {
		fields.add("amount", fmt.Sprintf("must be at least %d", minimum))
	}
	return fields.err()
}

// Deposit credits simulated funds to accountID.
func (s *WalletService) Deposit(ctx context.Context, accountID string, payload dto.DepositRequest) (*models.LedgerEntry, error) {
	if err := s.checkFunding(payload, payload.Amount, s.config.MinDeposit); err != nil {
		return nil, err
	}
	entry, err := s.ledger.Credit(ctx, accountID, payload.Amount, models.EntryDeposit, "", WithMethod(payload.Method))
	if err != nil {
		return nil, err
	}
	s.logger.Info("wallet deposit", zap.String("account_id", accountID), zap.Int64("amount", payload.Amount), zap.String("method", payload.Method))
	s.dispatch(events.TypeWalletDeposit, entry)
	return entry, nil
}

// WithdrawFunds debits accountID. An insufficient balance leaves it unchanged.
func (s *WalletService) WithdrawFunds(ctx context.Context, accountID string, payload dto.WithdrawRequest) (*models.LedgerEntry, error) {
	if err := s.checkFunding(payload, payload.Amount, s.config.MinWithdrawal); err != nil {
		return nil, err
	}
	entry, err := s.ledger.Debit(ctx, accountID, payload.Amount, models.EntryWithdrawal, "", WithMethod(payload.Method))
	if err != nil {
		return nil, err
	}
	s.logger.Info("wallet withdrawal", zap.String("account_id", accountID), zap.Int64("amount", payload.Amount), zap.String("method", payload.Method))
	s.dispatch(events.TypeWalletWithdrawal, entry)
	return entry, nil
}

// Transactions returns the account's entries for period, newest first, with totals.
func (s *WalletService) Transactions(ctx context.Context, accountID, period string) (*dto.WalletHistory, error) {
	filter := models.LedgerFilter{}
	now := s.clock.Now()
	switch period {
	case "", dto.PeriodAll:
		period = dto.PeriodAll
	case dto.PeriodMonth:
		since := now.AddDate(0, -1, 0)
		filter.Since = &since
	case dto.PeriodWeek:
		since := now.AddDate(0, 0, -7)
		filter.Since = &since
	default:
		return nil, appErrors.FieldError("period", "must be one of: all month week")
	}

	entries, err := s.ledger.Entries(ctx, accountID, filter)
	if err != nil {
		return nil, err
	}
	balance, err := s.ledger.BalanceOf(ctx, accountID)
	if err != nil {
		return nil, err
	}

	history := &dto.WalletHistory{AccountID: accountID, Period: period, Balance: balance, Entries: entries}
	for _, e := range entries {
		if e.Amount >= 0 {
			history.TotalIn += e.Amount
		} else {
			history.TotalOut -= e.Amount
		}
	}
	if history.Entries == nil {
		history.Entries = []models.LedgerEntry{}
	}
	return history, nil
}

// Statement renders the period's history as CSV or PDF and returns the content type.
func (s *WalletService) Statement(ctx context.Context, accountID, period, format string) ([]byte, string, error) {
	renderer, err := export.ForFormat(format)
	if err != nil {
		return nil, "", appErrors.FieldError("format", "must be csv or pdf")
	}
	history, err := s.Transactions(ctx, accountID, period)
	if err != nil {
		return nil, "", err
	}

	table := export.Table{
		Title:   fmt.Sprintf("Wallet statement %s (%s)", accountID, history.Period),
		Headers: []string{"Date", "Kind", "Method", "Request", "Amount"},
		Rows:    make([]map[string]string, 0, len(history.Entries)),
		Footer: map[string]string{
			"Date":   "Balance",
			"Amount": export.Amount(history.Balance),
		},
	}
	for _, e := range history.Entries {
		related := ""
		if e.RelatedRequestID != nil {
			related = *e.RelatedRequestID
		}
		table.Rows = append(table.Rows, map[string]string{
			"Date":    e.CreatedAt.Format("2006-01-02 15:04"),
			"Kind":    string(e.Kind),
			"Method":  e.Method,
			"Request": related,
			"Amount":  export.Amount(e.Amount),
		})
	}

	data, err := renderer.Render(table)
	if err != nil {
		return nil, "", appErrors.Internal(err, "failed to render statement")
	}
	return data, renderer.ContentType(), nil
}

func (s *WalletService) dispatch(eventType string, entry *models.LedgerEntry) {
	s.events.Dispatch(events.Event{
		ID:         s.ids.NewID(),
		Type:       eventType,
		Key:        entry.AccountID,
		OccurredAt: entry.CreatedAt,
		Data: map[string]string{
			"entry_id": entry.ID,
			"amount":   strconv.FormatInt(entry.Amount, 10),
			"method":   entry.Method,
		},
	})
}
