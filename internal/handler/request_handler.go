package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorly-api/internal/dto"
	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/internal/service"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
	"github.com/noah-isme/tutorly-api/pkg/response"
)

type requestWorkflows interface {
	CreateRequest(ctx context.Context, studentID string, payload dto.CreateRequest) (*models.Request, error)
	ListOpenRequests(ctx context.Context, query dto.ListRequestsQuery) ([]models.Request, *models.Pagination, error)
	ListStudentRequests(ctx context.Context, studentID string, page, pageSize int) ([]models.Request, *models.Pagination, error)
	GetRequest(ctx context.Context, id string) (*models.Request, error)
	ListBidsForRequest(ctx context.Context, requestID string) ([]models.Bid, error)
	SubmitBid(ctx context.Context, tutorID, requestID string, payload dto.SubmitBidRequest) (*models.Bid, error)
	AcceptBid(ctx context.Context, requestID, bidID, studentID string) (*service.AcceptResult, error)
	RejectBid(ctx context.Context, requestID, bidID, studentID string) (*models.Bid, error)
	CompleteSessionWithFeedback(ctx context.Context, requestID, userID string, feedback dto.CompleteSessionRequest) (*service.SessionResult, error)
	CancelRequest(ctx context.Context, requestID, userID string) (*service.CancelResult, error)
}

// RequestHandler exposes tutoring request workflows.
type RequestHandler struct {
	market requestWorkflows
}

// NewRequestHandler constructs a RequestHandler.
func NewRequestHandler(market requestWorkflows) *RequestHandler {
	return &RequestHandler{market: market}
}

// Create godoc
// @Summary Post a tutoring request
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}
	var payload dto.CreateRequest
	if !bindJSON(c, &payload, "invalid request payload") {
		return
	}
	req, err := h.market.CreateRequest(c.Request.Context(), userID, payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, req)
}

// List godoc
// @Summary List open tutoring requests
// @Tags Requests
// @Produce json
// @Param subject query string false "Subject"
// @Param search query string false "Free text search"
// @Param urgency query string false "low, medium or high"
// @Param maxBudget query int false "Maximum budget"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	var query dto.ListRequestsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid listing query"))
		return
	}
	items, pagination, err := h.market.ListOpenRequests(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Mine lists the acting student's requests.
func (h *RequestHandler) Mine(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}
	items, pagination, err := h.market.ListStudentRequests(c.Request.Context(), userID, intQuery(c, "page", 1), intQuery(c, "pageSize", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a tutoring request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	req, err := h.market.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, req, nil)
}

// ListBids lists bids on a request oldest first.
func (h *RequestHandler) ListBids(c *gin.Context) {
	bids, err := h.market.ListBidsForRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bids, nil)
}

// SubmitBid godoc
// @Summary Bid on a request
// @Tags Bids
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.SubmitBidRequest true "Bid payload"
// @Success 201 {object} response.Envelope
// @Router /requests/{id}/bids [post]
func (h *RequestHandler) SubmitBid(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}
	var payload dto.SubmitBidRequest
	if !bindJSON(c, &payload, "invalid bid payload") {
		return
	}
	bid, err := h.market.SubmitBid(c.Request.Context(), userID, c.Param("id"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, bid)
}

// AcceptBid godoc
// @Summary Accept a bid
// @Tags Bids
// @Produce json
// @Param id path string true "Request ID"
// @Param bidId path string true "Bid ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/bids/{bidId}/accept [post]
func (h *RequestHandler) AcceptBid(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}
	result, err := h.market.AcceptBid(c.Request.Context(), c.Param("id"), c.Param("bidId"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// RejectBid declines a pending bid.
func (h *RequestHandler) RejectBid(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}
	bid, err := h.market.RejectBid(c.Request.Context(), c.Param("id"), c.Param("bidId"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bid, nil)
}

// Complete godoc
// @Summary Complete a matched session
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.CompleteSessionRequest true "Ratings and review comments"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/complete [post]
func (h *RequestHandler) Complete(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}
	var payload dto.CompleteSessionRequest
	if !bindJSON(c, &payload, "invalid completion payload") {
		return
	}
	result, err := h.market.CompleteSessionWithFeedback(c.Request.Context(), c.Param("id"), userID, payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Cancel cancels an open or matched request.
func (h *RequestHandler) Cancel(c *gin.Context) {
	userID, ok := actingUser(c)
	if !ok {
		return
	}
	result, err := h.market.CancelRequest(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
