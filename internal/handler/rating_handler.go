package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorly-api/internal/dto"
	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/pkg/response"
)

type ratingReader interface {
	GetRatings(ctx context.Context, userID string) (*dto.UserRatings, error)
	ListReviews(ctx context.Context, userID string) ([]models.Review, error)
}

// RatingHandler serves rating aggregates and the reviews behind them.
type RatingHandler struct {
	ratings ratingReader
}

// NewRatingHandler constructs a RatingHandler.
func NewRatingHandler(ratings ratingReader) *RatingHandler {
	return &RatingHandler{ratings: ratings}
}

// Get godoc
// @Summary Rating aggregates of a user
// @Tags Ratings
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/ratings [get]
func (h *RatingHandler) Get(c *gin.Context) {
	ratings, err := h.ratings.GetRatings(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ratings, nil)
}

// Reviews godoc
// @Summary Reviews a user received
// @Tags Ratings
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/reviews [get]
func (h *RatingHandler) Reviews(c *gin.Context) {
	reviews, err := h.ratings.ListReviews(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reviews, nil)
}
