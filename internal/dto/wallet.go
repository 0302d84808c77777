package dto

import "github.com/noah-isme/tutorly-api/internal/models"

// Deposit channels.
const (
	MethodEWallet      = "e_wallet"
	MethodBankTransfer = "bank_transfer"
	MethodCreditCard   = "credit_card"
	MethodBank         = "bank"
)

// History periods.
const (
	PeriodAll   = "all"
	PeriodMonth = "month"
	PeriodWeek  = "week"
)

// DepositRequest adds simulated funds to the caller's wallet.
type DepositRequest struct {
	Amount int64  `json:"amount"`
	Method string `json:"method" validate:"required,oneof=e_wallet bank_transfer credit_card"`
}

// WithdrawRequest moves funds out of the caller's wallet.
type WithdrawRequest struct {
	Amount int64  `json:"amount"`
	Method string `json:"method" validate:"required,oneof=bank e_wallet"`
}

// WalletBalance is the derived balance of an account.
type WalletBalance struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
}

// WalletHistory groups an account's entries for a period with running totals.
type WalletHistory struct {
	AccountID string               `json:"account_id"`
	Period    string               `json:"period"`
	Balance   int64                `json:"balance"`
	TotalIn   int64                `json:"total_in"`
	TotalOut  int64                `json:"total_out"`
	Entries   []models.LedgerEntry `json:"entries"`
}

// UserRatings returns both role aggregates of a user.
type UserRatings struct {
	UserID  string                 `json:"user_id"`
	Student models.RatingAggregate `json:"student"`
	Tutor   models.RatingAggregate `json:"tutor"`
}
