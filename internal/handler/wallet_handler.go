package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorly-api/internal/dto"
	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/pkg/response"
)

type walletService interface {
	GetWalletBalance(ctx context.Context, accountID string) (*dto.WalletBalance, error)
	Deposit(ctx context.Context, accountID string, payload dto.DepositRequest) (*models.LedgerEntry, error)
	WithdrawFunds(ctx context.Context, accountID string, payload dto.WithdrawRequest) (*models.LedgerEntry, error)
	Transactions(ctx context.Context, accountID, period string) (*dto.WalletHistory, error)
	Statement(ctx context.Context, accountID, period, format string) ([]byte, string, error)
}

// WalletHandler exposes the acting user's wallet.
type WalletHandler struct {
	wallet walletService
}

// NewWalletHandler constructs a WalletHandler.
func NewWalletHandler(wallet walletService) *WalletHandler {
	return &WalletHandler{wallet: wallet}
}

// Balance godoc
// @Summary Wallet balance
// @Tags Wallet
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /wallet [get]
func (h *WalletHandler) Balance(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}
	balance, err := h.wallet.GetWalletBalance(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balance, nil)
}

// Deposit godoc
// @Summary Deposit funds
// @Tags Wallet
// @Accept json
// @Produce json
// @Param payload body dto.DepositRequest true "Deposit"
// @Success 201 {object} response.Envelope
// @Router /wallet/deposit [post]
func (h *WalletHandler) Deposit(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}
	var payload dto.DepositRequest
	if !bindJSON(c, &payload, "invalid deposit payload") {
		return
	}
	entry, err := h.wallet.Deposit(c.Request.Context(), userID, payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Withdraw godoc
// @Summary Withdraw funds
// @Tags Wallet
// @Accept json
// @Produce json
// @Param payload body dto.WithdrawRequest true "Withdrawal"
// @Success 201 {object} response.Envelope
// @Router /wallet/withdraw [post]
func (h *WalletHandler) Withdraw(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}
	var payload dto.WithdrawRequest
	if !bindJSON(c, &payload, "invalid withdrawal payload") {
		return
	}
	entry, err := h.wallet.WithdrawFunds(c.Request.Context(), userID, payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Transactions lists wallet entries for a period (all, month or week).
func (h *WalletHandler) Transactions(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}
	history, err := h.wallet.Transactions(c.Request.Context(), userID, c.DefaultQuery("period", dto.PeriodAll))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Statement godoc
// @Summary Download a wallet statement
// @Tags Wallet
// @Produce text/csv
// @Produce application/pdf
// @Param period query string false "all, month or week"
// @Param format query string false "csv or pdf"
// @Router /wallet/statement [get]
func (h *WalletHandler) Statement(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}
	period := c.DefaultQuery("period", dto.PeriodAll)
	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	data, contentType, err := h.wallet.Statement(c.Request.Context(), userID, period, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, fmt.Sprintf("statement-%s.%s", period, format), contentType, data)
}
