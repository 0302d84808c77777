package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorly-api/internal/dto"
	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/internal/service"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

type fakeMarket struct {
	createErr   error
	lastStudent string
	lastCreate  dto.CreateRequest
	lastQuery   dto.ListRequestsQuery
	lastPage    [2]int
	lastAccept  [3]string
	lastScores  [2]int
	lastComment string
	acceptErr   error
	completeErr error
	bids        []models.Bid
}

func (f *fakeMarket) CreateRequest(_ context.Context, studentID string, payload dto.CreateRequest) (*models.Request, error) {
	f.lastStudent = studentID
	f.lastCreate = payload
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &models.Request{ID: "req-1", StudentID: studentID, Subject: payload.Subject, Status: models.RequestOpen}, nil
}

func (f *fakeMarket) ListOpenRequests(_ context.Context, query dto.ListRequestsQuery) ([]models.Request, *models.Pagination, error) {
	f.lastQuery = query
	return []models.Request{{ID: "req-1"}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (f *fakeMarket) ListStudentRequests(_ context.Context, _ string, page, pageSize int) ([]models.Request, *models.Pagination, error) {
	f.lastPage = [2]int{page, pageSize}
	return nil, &models.Pagination{Page: page, PageSize: pageSize}, nil
}

func (f *fakeMarket) GetRequest(_ context.Context, id string) (*models.Request, error) {
	if id != "req-1" {
		return nil, appErrors.ErrNotFound
	}
	return &models.Request{ID: id}, nil
}

func (f *fakeMarket) ListBidsForRequest(context.Context, string) ([]models.Bid, error) {
	return f.bids, nil
}

func (f *fakeMarket) SubmitBid(_ context.Context, tutorID, requestID string, payload dto.SubmitBidRequest) (*models.Bid, error) {
	return &models.Bid{ID: "bid-1", RequestID: requestID, TutorID: tutorID, OfferedPrice: payload.OfferedPrice, Status: models.BidPending}, nil
}

func (f *fakeMarket) AcceptBid(_ context.Context, requestID, bidID, studentID string) (*service.AcceptResult, error) {
	f.lastAccept = [3]string{requestID, bidID, studentID}
	if f.acceptErr != nil {
		return nil, f.acceptErr
	}
	return &service.AcceptResult{Request: &models.Request{ID: requestID, Status: models.RequestMatched}, Bid: &models.Bid{ID: bidID, Status: models.BidAccepted}}, nil
}

func (f *fakeMarket) RejectBid(_ context.Context, _, bidID, _ string) (*models.Bid, error) {
	return &models.Bid{ID: bidID, Status: models.BidRejected}, nil
}

func (f *fakeMarket) CompleteSessionWithFeedback(_ context.Context, requestID, _ string, feedback dto.CompleteSessionRequest) (*service.SessionResult, error) {
	f.lastScores = [2]int{feedback.RatingGivenByStudent, feedback.RatingGivenByTutor}
	f.lastComment = feedback.StudentComment
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &service.SessionResult{Request: &models.Request{ID: requestID, Status: models.RequestCompleted}}, nil
}

func (f *fakeMarket) CancelRequest(_ context.Context, requestID, _ string) (*service.CancelResult, error) {
	return &service.CancelResult{Request: &models.Request{ID: requestID, Status: models.RequestCancelled}}, nil
}

func TestRequestHandlerCreateRequiresUser(t *testing.T) {
	h := NewRequestHandler(&fakeMarket{})
	c, rec := testContext(http.MethodPost, "/requests", map[string]interface{}{"subject": "Math"}, "")

	h.Create(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeEnvelope(t, rec).Error.Code)
}

func TestRequestHandlerCreateRejectsMalformedBody(t *testing.T) {
	h := NewRequestHandler(&fakeMarket{})
	c, rec := testContext(http.MethodPost, "/requests", "{not json", "student-1")

	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeEnvelope(t, rec).Error.Code)
}

func TestRequestHandlerCreateUsesActingUser(t *testing.T) {
	market := &fakeMarket{}
	h := NewRequestHandler(market)
	c, rec := testContext(http.MethodPost, "/requests", map[string]interface{}{"subject": "Math", "preferred_price": 150000}, "student-1")

	h.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "student-1", market.lastStudent)
	assert.Equal(t, int64(150000), market.lastCreate.PreferredPrice)
	var req models.Request
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &req))
	assert.Equal(t, "req-1", req.ID)
}

func TestRequestHandlerCreateSurfacesFieldErrors(t *testing.T) {
	h := NewRequestHandler(&fakeMarket{createErr: appErrors.FieldError("max_price", "must be at least preferred_price")})
	c, rec := testContext(http.MethodPost, "/requests", map[string]interface{}{"subject": "Math"}, "student-1")

	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Contains(t, env.Error.Fields, "max_price")
}

func TestRequestHandlerListBindsFilters(t *testing.T) {
	market := &fakeMarket{}
	h := NewRequestHandler(market)
	c, rec := testContext(http.MethodGet, "/requests?subject=Math&urgency=high&maxBudget=200000&page=2&pageSize=10", nil, "u-1")

	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Math", market.lastQuery.Subject)
	assert.Equal(t, "high", market.lastQuery.Urgency)
	require.NotNil(t, market.lastQuery.MaxBudget)
	assert.Equal(t, int64(200000), *market.lastQuery.MaxBudget)
	assert.Equal(t, 2, market.lastQuery.Page)
	assert.Equal(t, 10, market.lastQuery.PageSize)
	assert.Equal(t, 1, decodeEnvelope(t, rec).Pagination.TotalCount)
}

func TestRequestHandlerListRejectsNonNumericPage(t *testing.T) {
	h := NewRequestHandler(&fakeMarket{})
	c, rec := testContext(http.MethodGet, "/requests?page=abc", nil, "u-1")

	h.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestHandlerMineDefaultsPaging(t *testing.T) {
	market := &fakeMarket{}
	h := NewRequestHandler(market)
	c, rec := testContext(http.MethodGet, "/me/requests", nil, "student-1")

	h.Mine(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]int{1, 50}, market.lastPage)
}

func TestRequestHandlerGetNotFound(t *testing.T) {
	h := NewRequestHandler(&fakeMarket{})
	c, rec := testContext(http.MethodGet, "/requests/missing", nil, "u-1")
	withParams(c, "id", "missing")

	h.Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestHandlerAcceptPassesPathParams(t *testing.T) {
	market := &fakeMarket{}
	h := NewRequestHandler(market)
	c, rec := testContext(http.MethodPost, "/requests/req-1/bids/bid-2/accept", nil, "student-1")
	withParams(c, "id", "req-1", "bidId", "bid-2")

	h.AcceptBid(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [3]string{"req-1", "bid-2", "student-1"}, market.lastAccept)
}

func TestRequestHandlerAcceptConflict(t *testing.T) {
	h := NewRequestHandler(&fakeMarket{acceptErr: appErrors.ErrConcurrencyConflict})
	c, rec := testContext(http.MethodPost, "/requests/req-1/bids/bid-2/accept", nil, "student-1")
	withParams(c, "id", "req-1", "bidId", "bid-2")

	h.AcceptBid(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONCURRENCY_CONFLICT", decodeEnvelope(t, rec).Error.Code)
}

func TestRequestHandlerCompleteForwardsScores(t *testing.T) {
	market := &fakeMarket{}
	h := NewRequestHandler(market)
	c, rec := testContext(http.MethodPost, "/requests/req-1/complete", map[string]interface{}{
		"rating_given_by_student": 5,
		"rating_given_by_tutor":   4,
		"student_comment":         "patient and clear",
	}, "student-1")
	withParams(c, "id", "req-1")

	h.Complete(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]int{5, 4}, market.lastScores)
	assert.Equal(t, "patient and clear", market.lastComment)
}

func TestRequestHandlerCompleteInsufficientFunds(t *testing.T) {
	h := NewRequestHandler(&fakeMarket{completeErr: appErrors.ErrInsufficientFunds})
	c, rec := testContext(http.MethodPost, "/requests/req-1/complete", map[string]int{
		"rating_given_by_student": 5,
		"rating_given_by_tutor":   5,
	}, "student-1")
	withParams(c, "id", "req-1")

	h.Complete(c)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBidHandlerWithdrawRequiresUser(t *testing.T) {
	h := NewBidHandler(&fakeBids{})
	c, rec := testContext(http.MethodPost, "/bids/bid-1/withdraw", nil, "")
	withParams(c, "id", "bid-1")

	h.Withdraw(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBidHandlerWithdrawNotOwner(t *testing.T) {
	h := NewBidHandler(&fakeBids{withdrawErr: appErrors.ErrNotOwner})
	c, rec := testContext(http.MethodPost, "/bids/bid-1/withdraw", nil, "tutor-2")
	withParams(c, "id", "bid-1")

	h.Withdraw(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

type fakeBids struct {
	withdrawErr error
}

func (f *fakeBids) WithdrawBid(_ context.Context, _, bidID string) (*models.Bid, error) {
	if f.withdrawErr != nil {
		return nil, f.withdrawErr
	}
	return &models.Bid{ID: bidID, Status: models.BidWithdrawn}, nil
}

func (f *fakeBids) ListTutorBids(context.Context, string) ([]models.Bid, error) {
	return []models.Bid{}, nil
}
