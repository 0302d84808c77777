package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/pkg/response"
)

type bidWorkflows interface {
	WithdrawBid(ctx context.Context, tutorID, bidID string) (*models.Bid, error)
	ListTutorBids(ctx context.Context, tutorID string) ([]models.Bid, error)
}

// BidHandler exposes tutor-side bid endpoints.
type BidHandler struct {
	market bidWorkflows
}

// NewBidHandler constructs a BidHandler.
func NewBidHandler(market bidWorkflows) *BidHandler {
	return &BidHandler{market: market}
}

// Withdraw godoc
// @Summary Withdraw a pending bid
// @Tags Bids
// @Produce json
// @Param id path string true "Bid ID"
// @Success 200 {object} response.Envelope
// @Router /bids/{id}/withdraw [post]
func (h *BidHandler) Withdraw(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}
	bid, err := h.market.WithdrawBid(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bid, nil)
}

// Mine lists the acting tutor's bids newest first.
func (h *BidHandler) Mine(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}
	bids, err := h.market.ListTutorBids(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bids, nil)
}
