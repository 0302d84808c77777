package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups every HTTP handler mounted by RegisterRoutes.
type Handlers struct {
	Requests *RequestHandler
	Bids     *BidHandler
	Wallet   *WalletHandler
	Ratings  *RatingHandler
	Metrics  *MetricsHandler
}

// RegisterRoutes mounts operational endpoints on the root and the marketplace API under
// prefix behind auth.
func RegisterRoutes(r *gin.Engine, prefix string, auth gin.HandlerFunc, h Handlers) {
	if h.Metrics != nil {
		r.GET("/health", h.Metrics.Health)
		r.GET("/ready", h.Metrics.Ready)
		r.GET("/metrics", h.Metrics.Prometheus)
		r.GET("/metrics/summary", h.Metrics.Summary)
	}

	api := r.Group(prefix)
	if auth != nil {
		api.Use(auth)
	}

	requests := api.Group("/requests")
	requests.POST("", h.Requests.Create)
	requests.GET("", h.Requests.List)
	requests.GET("/:id", h.Requests.Get)
	requests.GET("/:id/bids", h.Requests.ListBids)
	requests.POST("/:id/bids", h.Requests.SubmitBid)
	requests.POST("/:id/bids/:bidId/accept", h.Requests.AcceptBid)
	requests.POST("/:id/bids/:bidId/reject", h.Requests.RejectBid)
	requests.POST("/:id/complete", h.Requests.Complete)
	requests.POST("/:id/cancel", h.Requests.Cancel)

	api.POST("/bids/:id/withdraw", h.Bids.Withdraw)

	me := api.Group("/me")
	me.GET("/requests", h.Requests.Mine)
	me.GET("/bids", h.Bids.Mine)

	wallet := api.Group("/wallet")
	wallet.GET("", h.Wallet.Balance)
	wallet.POST("/deposit", h.Wallet.Deposit)
	wallet.POST("/withdraw", h.Wallet.Withdraw)
	wallet.GET("/transactions", h.Wallet.Transactions)
	wallet.GET("/statement", h.Wallet.Statement)

	api.GET("/users/:id/ratings", h.Ratings.Get)
	api.GET("/users/:id/reviews", h.Ratings.Reviews)
}
