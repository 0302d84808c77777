package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorly-api/internal/dto"
	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/internal/repository"
	"github.com/noah-isme/tutorly-api/pkg/events"
	"github.com/noah-isme/tutorly-api/pkg/keylock"
)

var (
	testNow   = time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	errDBDown = errors.New("db down")
)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStubClock() *stubClock { return &stubClock{now: testNow} }

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type seqIDs struct{ n int64 }

func (g *seqIDs) NewID() string { return fmt.Sprintf("id-%03d", atomic.AddInt64(&g.n, 1)) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, evt := range p.events {
		out = append(out, evt.Type)
	}
	return out
}

// flakyRatingRepo fails Apply for one role.
type flakyRatingRepo struct {
	*repository.MemoryRatingRepository
	failRole models.UserRole
	calls    int32
}

func (r *flakyRatingRepo) Apply(ctx context.Context, userID string, role models.UserRole, score int, at time.Time) (*models.RatingAggregate, error) {
	if role == r.failRole {
		atomic.AddInt32(&r.calls, 1)
		return nil, errDBDown
	}
	return r.MemoryRatingRepository.Apply(ctx, userID, role, score, at)
}

// flakyReviewRepo fails every review written for failRole.
type flakyReviewRepo struct {
	*repository.MemoryReviewRepository
	failRole models.UserRole
}

func (r *flakyReviewRepo) Create(ctx context.Context, review *models.Review) error {
	if review.Role == r.failRole {
		return errDBDown
	}
	return r.MemoryReviewRepository.Create(ctx, review)
}

// flakyRequestRepo fails every transition into failTo.
type flakyRequestRepo struct {
	*repository.MemoryRequestRepository
	failTo models.RequestStatus
	err    error
}

func (r *flakyRequestRepo) UpdateStatus(ctx context.Context, t models.RequestTransition) (*models.Request, error) {
	if t.To == r.failTo {
		return nil, r.err
	}
	return r.MemoryRequestRepository.UpdateStatus(ctx, t)
}

// flakyBidRepo fails every move into failTo.
type flakyBidRepo struct {
	*repository.MemoryBidRepository
	failTo models.BidStatus
}

func (r *flakyBidRepo) UpdateStatus(ctx context.Context, id string, from, to models.BidStatus, at time.Time) (*models.Bid, error) {
	if to == r.failTo {
		return nil, errDBDown
	}
	return r.MemoryBidRepository.UpdateStatus(ctx, id, from, to, at)
}

type market struct {
	clock     *stubClock
	locks     *keylock.Locker
	metrics   *MetricsService
	publisher *recordingPublisher
	events    *EventDispatcher

	requestRepo RequestRepository
	bidRepo     BidRepository
	ratingRepo  RatingRepository
	reviewRepo  ReviewRepository

	requests *RequestService
	bids     *BidService
	ledger   *LedgerService
	ratings  *RatingService
	reviews  *ReviewService
	svc      *MarketplaceService
	wallet   *WalletService
}

type marketOption func(*market)

func withRequestRepo(repo RequestRepository) marketOption {
	return func(m *market) { m.requestRepo = repo }
}

func withBidRepo(repo BidRepository) marketOption {
	return func(m *market) { m.bidRepo = repo }
}

func withRatingRepo(repo RatingRepository) marketOption {
	return func(m *market) { m.ratingRepo = repo }
}

func withReviewRepo(repo ReviewRepository) marketOption {
	return func(m *market) { m.reviewRepo = repo }
}

func newMarket(t *testing.T, opts ...marketOption) *market {
	t.Helper()
	m := &market{
		clock:       newStubClock(),
		locks:       keylock.New(),
		metrics:     NewMetricsService(),
		publisher:   &recordingPublisher{},
		requestRepo: repository.NewMemoryRequestRepository(),
		bidRepo:     repository.NewMemoryBidRepository(),
		ratingRepo:  repository.NewMemoryRatingRepository(),
		reviewRepo:  repository.NewMemoryReviewRepository(),
	}
	for _, opt := range opts {
		opt(m)
	}

	common := []Option{WithClock(m.clock), WithIDGenerator(&seqIDs{}), WithMetrics(m.metrics)}
	validate := NewValidator()

	m.events = NewEventDispatcher(m.publisher, m.metrics, nil, EventDispatcherConfig{Workers: 1, Retries: 1})
	m.events.Start(context.Background())
	t.Cleanup(m.events.Stop)

	m.requests = NewRequestService(m.requestRepo, validate, m.locks, RequestServiceConfig{MinPrice: 50000}, nil, common...)
	m.bids = NewBidService(m.bidRepo, m.requests, validate, m.locks, BidServiceConfig{MinPrice: 50000, MaxMessageLen: 1000}, nil, common...)
	m.ledger = NewLedgerService(repository.NewMemoryLedgerRepository(), m.locks, nil, common...)
	m.ratings = NewRatingService(m.ratingRepo, m.locks, nil, common...)
	m.reviews = NewReviewService(m.reviewRepo, nil, common...)
	m.svc = NewMarketplaceService(MarketplaceDeps{
		Requests: m.requests,
		Bids:     m.bids,
		Ledger:   m.ledger,
		Ratings:  m.ratings,
		Reviews:  m.reviews,
		Locks:    m.locks,
		Events:   m.events,
	}, MarketplaceConfig{WorkflowRetries: 3, WorkflowBackoff: time.Millisecond}, nil, common...)
	m.wallet = NewWalletService(m.ledger, validate, m.events, WalletConfig{MinDeposit: 50000, MinWithdrawal: 100000}, nil, common...)
	return m
}

// publishedTypes stops the dispatcher so every queued event is delivered.
func (m *market) publishedTypes() []string {
	m.events.Stop()
	return m.publisher.types()
}

func (m *market) fund(t *testing.T, accountID string, amount int64) {
	t.Helper()
	_, err := m.ledger.Credit(context.Background(), accountID, amount, models.EntryDeposit, "")
	require.NoError(t, err)
}

func (m *market) balance(t *testing.T, accountID string) int64 {
	t.Helper()
	balance, err := m.ledger.BalanceOf(context.Background(), accountID)
	require.NoError(t, err)
	return balance
}

func (m *market) openRequest(t *testing.T, studentID string) *models.Request {
	t.Helper()
	req, err := m.svc.CreateRequest(context.Background(), studentID, validRequest())
	require.NoError(t, err)
	return req
}

func (m *market) bid(t *testing.T, requestID, tutorID string, price int64) *models.Bid {
	t.Helper()
	bid, err := m.svc.SubmitBid(context.Background(), tutorID, requestID, validBid(price))
	require.NoError(t, err)
	return bid
}

func validRequest() dto.CreateRequest {
	return dto.CreateRequest{
		Subject:        "Mathematics",
		Topic:          "Calculus",
		Description:    "Integrals and limits for the final exam",
		DurationHours:  2,
		PreferredPrice: 150000,
		MaxPrice:       200000,
		SessionAt:      testNow.Add(48 * time.Hour),
		Location:       "Online",
	}
}

func validBid(price int64) dto.SubmitBidRequest {
	return dto.SubmitBidRequest{
		OfferedPrice:           price,
		Message:                "I have taught calculus for five years",
		EstimatedDurationHours: 2,
	}
}
