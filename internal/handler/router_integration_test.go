package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/dto"
	"github.com/noah-isme/tutorly-api/internal/middleware"
	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/internal/repository"
	"github.com/noah-isme/tutorly-api/internal/service"
	"github.com/noah-isme/tutorly-api/pkg/events"
	"github.com/noah-isme/tutorly-api/pkg/keylock"
)

type apiHarness struct {
	router *gin.Engine
	tokens *service.TokenService
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	locks := keylock.New()
	metrics := service.NewMetricsService()
	validate := service.NewValidator()
	common := []service.Option{service.WithMetrics(metrics)}

	dispatcher := service.NewEventDispatcher(events.NewLogPublisher(zap.NewNop()), metrics, nil, service.EventDispatcherConfig{Workers: 1})
	dispatcher.Start(context.Background())
	t.Cleanup(dispatcher.Stop)

	requests := service.NewRequestService(repository.NewMemoryRequestRepository(), validate, locks, service.RequestServiceConfig{MinPrice: 50000}, nil, common...)
	bids := service.NewBidService(repository.NewMemoryBidRepository(), requests, validate, locks, service.BidServiceConfig{MinPrice: 50000, MaxMessageLen: 1000}, nil, common...)
	ledger := service.NewLedgerService(repository.NewMemoryLedgerRepository(), locks, nil, common...)
	ratings := service.NewRatingService(repository.NewMemoryRatingRepository(), locks, nil, common...)
	reviews := service.NewReviewService(repository.NewMemoryReviewRepository(), nil, common...)
	market := service.NewMarketplaceService(service.MarketplaceDeps{
		Requests: requests,
		Bids:     bids,
		Ledger:   ledger,
		Ratings:  ratings,
		Reviews:  reviews,
		Locks:    locks,
		Events:   dispatcher,
	}, service.MarketplaceConfig{WorkflowRetries: 2, WorkflowBackoff: time.Millisecond}, nil, common...)
	wallet := service.NewWalletService(ledger, validate, dispatcher, service.WalletConfig{MinDeposit: 50000, MinWithdrawal: 100000}, nil, common...)
	tokens := service.NewTokenService(service.TokenConfig{Secret: "test-secret", Issuer: "tutorly", Expiration: time.Hour})

	r := gin.New()
	r.Use(middleware.Metrics(metrics))
	RegisterRoutes(r, "/api/v1", middleware.JWT(tokens), Handlers{
		Requests: NewRequestHandler(market),
		Bids:     NewBidHandler(market),
		Wallet:   NewWalletHandler(wallet),
		Ratings:  NewRatingHandler(market),
		Metrics:  NewMetricsHandler(metrics, nil),
	})
	return &apiHarness{router: r, tokens: tokens}
}

func (h *apiHarness) do(t *testing.T, method, path, userID string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, _, err := h.tokens.Issue(userID, "", "")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestRouterRequiresToken(t *testing.T) {
	h := newAPIHarness(t)

	rec, env := h.do(t, http.MethodGet, "/api/v1/requests", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestRouterHealthIsPublic(t *testing.T) {
	h := newAPIHarness(t)

	rec, _ := h.do(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterFullSessionLifecycle(t *testing.T) {
	h := newAPIHarness(t)

	rec, _ := h.do(t, http.MethodPost, "/api/v1/wallet/deposit", "student-1", dto.DepositRequest{Amount: 500000, Method: dto.MethodEWallet})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := h.do(t, http.MethodPost, "/api/v1/requests", "student-1", dto.CreateRequest{
		Subject:        "Mathematics",
		Topic:          "Integrals",
		Description:    "Need help with integration by parts",
		DurationHours:  2,
		PreferredPrice: 150000,
		MaxPrice:       200000,
		SessionAt:      time.Now().Add(48 * time.Hour),
		Location:       "Online",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var req models.Request
	require.NoError(t, json.Unmarshal(env.Data, &req))
	assert.Equal(t, models.RequestOpen, req.Status)

	rec, env = h.do(t, http.MethodPost, "/api/v1/requests/"+req.ID+"/bids", "tutor-1", dto.SubmitBidRequest{
		OfferedPrice:           175000,
		Message:                "I teach calculus",
		EstimatedDurationHours: 2,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var bid models.Bid
	require.NoError(t, json.Unmarshal(env.Data, &bid))

	rec, _ = h.do(t, http.MethodPost, "/api/v1/requests/"+req.ID+"/bids", "tutor-1", dto.SubmitBidRequest{
		OfferedPrice:           160000,
		Message:                "second try",
		EstimatedDurationHours: 2,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = h.do(t, http.MethodPost, "/api/v1/requests/"+req.ID+"/bids/"+bid.ID+"/accept", "tutor-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = h.do(t, http.MethodPost, "/api/v1/requests/"+req.ID+"/bids/"+bid.ID+"/accept", "student-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.do(t, http.MethodPost, "/api/v1/requests/"+req.ID+"/complete", "tutor-1", dto.CompleteSessionRequest{
		RatingGivenByStudent: 5,
		RatingGivenByTutor:   5,
		StudentComment:       "Great calculus session",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = h.do(t, http.MethodGet, "/api/v1/wallet", "student-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance dto.WalletBalance
	require.NoError(t, json.Unmarshal(env.Data, &balance))
	assert.Equal(t, int64(325000), balance.Balance)

	rec, env = h.do(t, http.MethodGet, "/api/v1/wallet", "tutor-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &balance))
	assert.Equal(t, int64(175000), balance.Balance)

	rec, env = h.do(t, http.MethodGet, "/api/v1/users/tutor-1/ratings", "student-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ratings dto.UserRatings
	require.NoError(t, json.Unmarshal(env.Data, &ratings))
	assert.Equal(t, 1, ratings.Tutor.Count)
	assert.InDelta(t, 5.0, ratings.Tutor.Average, 0.0001)

	rec, env = h.do(t, http.MethodGet, "/api/v1/users/tutor-1/reviews", "student-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reviews []models.Review
	require.NoError(t, json.Unmarshal(env.Data, &reviews))
	require.Len(t, reviews, 1)
	assert.Equal(t, "student-1", reviews[0].ReviewerID)
	assert.Equal(t, models.RoleTutor, reviews[0].Role)
	assert.Equal(t, "Great calculus session", reviews[0].Comment)

	rec, _ = h.do(t, http.MethodPost, "/api/v1/requests/"+req.ID+"/cancel", "student-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRouterStatementDownload(t *testing.T) {
	h := newAPIHarness(t)
	rec, _ := h.do(t, http.MethodPost, "/api/v1/wallet/deposit", "student-1", dto.DepositRequest{Amount: 75000, Method: dto.MethodBankTransfer})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = h.do(t, http.MethodGet, "/api/v1/wallet/statement?format=csv", "student-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "DEPOSIT")
}
