package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/dto"
	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
	"github.com/noah-isme/tutorly-api/pkg/events"
	"github.com/noah-isme/tutorly-api/pkg/keylock"
)

// Workflow names used for metrics and logs.
const (
	workflowCreateRequest   = "create_request"
	workflowSubmitBid       = "submit_bid"
	workflowWithdrawBid     = "withdraw_bid"
	workflowAcceptBid       = "accept_bid"
	workflowRejectBid       = "reject_bid"
	workflowCompleteSession = "complete_session"
	workflowCancelRequest   = "cancel_request"
	workflowExpireRequest   = "expire_request"
)

// MarketplaceConfig tunes workflow retries and listing caching.
type MarketplaceConfig struct {
	WorkflowRetries int
	WorkflowBackoff time.Duration
	ListingTTL      time.Duration
}

// MarketplaceDeps groups the stores the orchestrator coordinates. Every store
// must share Locks so nested lock scopes are re-entrant.
type MarketplaceDeps struct {
	Requests *RequestService
	Bids     *BidService
	Ledger   *LedgerService
	Ratings  *RatingService
	Reviews  *ReviewService
	Locks    *keylock.Locker
	Cache    *CacheService
	Events   *EventDispatcher
}

// SessionResult reports everything a completed session changed.
type SessionResult struct {
	Request       *models.Request         `json:"request"`
	Payment       *models.LedgerEntry     `json:"payment"`
	Earning       *models.LedgerEntry     `json:"earning"`
	TutorRating   *models.RatingAggregate `json:"tutor_rating"`
	StudentRating *models.RatingAggregate `json:"student_rating"`
	Reviews       []models.Review         `json:"reviews"`
}

// AcceptResult reports the outcome of accepting a bid.
type AcceptResult struct {
	Request  *models.Request `json:"request"`
	Bid      *models.Bid     `json:"bid"`
	Rejected []models.Bid    `json:"rejected_bids"`
}

// CancelResult reports the outcome of cancelling a request.
type CancelResult struct {
	Request  *models.Request `json:"request"`
	Rejected []models.Bid    `json:"rejected_bids"`
}

type listingPage struct {
	Items      []models.Request  `json:"items"`
	Pagination models.Pagination `json:"pagination"`
}

// MarketplaceService composes the stores into the user-facing workflows. Each
// workflow either commits completely or compensates the steps it applied.
type MarketplaceService struct {
	requests *RequestService
	bids     *BidService
	ledger   *LedgerService
	ratings  *RatingService
	reviews  *ReviewService
	locks    *keylock.Locker
	cache    *CacheService
	events   *EventDispatcher
	config   MarketplaceConfig
	logger   *zap.Logger
	runtimeDeps
}

// NewMarketplaceService constructs the orchestrator.
func NewMarketplaceService(deps MarketplaceDeps, cfg MarketplaceConfig, logger *zap.Logger, opts ...Option) *MarketplaceService {
	if deps.Locks == nil {
		deps.Locks = keylock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WorkflowRetries <= 0 {
		cfg.WorkflowRetries = 3
	}
	if cfg.WorkflowBackoff <= 0 {
		cfg.WorkflowBackoff = 20 * time.Millisecond
	}
	return &MarketplaceService{
		requests:    deps.Requests,
		bids:        deps.Bids,
		ledger:      deps.Ledger,
		ratings:     deps.Ratings,
		reviews:     deps.Reviews,
		locks:       deps.Locks,
		cache:       deps.Cache,
		events:      deps.Events,
		config:      cfg,
		logger:      logger,
		runtimeDeps: newRuntimeDeps(opts),
	}
}

// CreateRequest posts a new request for the acting student. No money moves.
func (s *MarketplaceService) CreateRequest(ctx context.Context, studentID string, payload dto.CreateRequest) (*models.Request, error) {
	start := time.Now()
	req, err := s.requests.Create(ctx, studentID, payload)
	s.observe(workflowCreateRequest, start, err, false)
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, true, s.event(events.TypeRequestCreated, req.ID, map[string]string{
		"student_id": req.StudentID,
		"subject":    req.Subject,
		"max_price":  strconv.FormatInt(req.MaxPrice, 10),
	}))
	return req, nil
}

// SubmitBid places a bid by the acting tutor on an OPEN request.
func (s *MarketplaceService) SubmitBid(ctx context.Context, tutorID, requestID string, payload dto.SubmitBidRequest) (bid *models.Bid, err error) {
	start := time.Now()
	defer func() { s.observe(workflowSubmitBid, start, err, false) }()

	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.StudentID == tutorID {
		return nil, appErrors.FieldError("tutor_id", "cannot bid on your own request")
	}
	if req.Status != models.RequestOpen {
		return nil, appErrors.ErrRequestNotOpen
	}
	bid, err = s.bids.Submit(ctx, requestID, tutorID, payload)
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, false, s.event(events.TypeBidPlaced, requestID, map[string]string{
		"bid_id":        bid.ID,
		"tutor_id":      bid.TutorID,
		"offered_price": strconv.FormatInt(bid.OfferedPrice, 10),
	}))
	return bid, nil
}

// WithdrawBid retracts the acting tutor's PENDING bid.
func (s *MarketplaceService) WithdrawBid(ctx context.Context, tutorID, bidID string) (*models.Bid, error) {
	start := time.Now()
	bid, err := s.bids.Withdraw(ctx, bidID, tutorID)
	s.observe(workflowWithdrawBid, start, err, false)
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, false, s.event(events.TypeBidWithdrawn, bid.RequestID, map[string]string{
		"bid_id":   bid.ID,
		"tutor_id": bid.TutorID,
	}))
	return bid, nil
}

// AcceptBid matches a request with one of its bids. The accepted bid, the
// MATCHED transition and the rejection of every other PENDING bid commit together.
func (s *MarketplaceService) AcceptBid(ctx context.Context, requestID, bidID, studentID string) (result *AcceptResult, err error) {
	start := time.Now()
	compensated := false
	defer func() { s.observe(workflowAcceptBid, start, err, compensated) }()

	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.StudentID != studentID {
		return nil, appErrors.ErrNotOwner
	}
	if req.Status != models.RequestOpen {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request is not open")
	}

	ctx, unlock := s.locks.Lock(ctx, requestLockKey(requestID))
	defer unlock()

	if req, err = s.requests.Get(ctx, requestID); err != nil {
		return nil, err
	}
	if req.Status != models.RequestOpen {
		return nil, appErrors.ErrConcurrencyConflict
	}
	bid, err := s.bids.Get(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.RequestID != requestID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "bid not found for request")
	}

	sg := newSaga(workflowAcceptBid, s.logger)
	fail := func(cause error) (*AcceptResult, error) {
		sg.rollback(context.WithoutCancel(ctx), cause)
		compensated = true
		return nil, cause
	}

	accepted, err := s.bids.Accept(ctx, bidID)
	if err != nil {
		return nil, err
	}
	sg.onRollback("accept_bid", func(ctx context.Context) error {
		return s.bids.revert(ctx, bidID, models.BidAccepted, models.BidPending)
	})

	matched, err := s.requests.match(ctx, requestID, accepted.TutorID, accepted.ID)
	if err != nil {
		return fail(err)
	}
	sg.onRollback("match_request", func(ctx context.Context) error {
		return s.requests.revert(ctx, requestID, models.RequestMatched, models.RequestOpen)
	})

	rejected, err := s.bids.rejectPending(ctx, requestID, accepted.ID)
	for i := range rejected {
		id := rejected[i].ID
		sg.onRollback("reject_bid", func(ctx context.Context) error {
			return s.bids.revert(ctx, id, models.BidRejected, models.BidPending)
		})
	}
	if err != nil {
		return fail(err)
	}

	s.logger.Info("bid accepted",
		zap.String("request_id", requestID),
		zap.String("bid_id", accepted.ID),
		zap.String("tutor_id", accepted.TutorID),
		zap.Int("rejected", len(rejected)),
	)
	evts := []events.Event{s.event(events.TypeBidAccepted, requestID, map[string]string{
		"bid_id":        accepted.ID,
		"tutor_id":      accepted.TutorID,
		"student_id":    matched.StudentID,
		"offered_price": strconv.FormatInt(accepted.OfferedPrice, 10),
	})}
	evts = append(evts, s.rejectionEvents(requestID, rejected)...)
	s.afterCommit(ctx, true, evts...)
	return &AcceptResult{Request: matched, Bid: accepted, Rejected: rejected}, nil
}

// RejectBid lets the request owner decline a PENDING bid.
func (s *MarketplaceService) RejectBid(ctx context.Context, requestID, bidID, studentID string) (bid *models.Bid, err error) {
	start := time.Now()
	defer func() { s.observe(workflowRejectBid, start, err, false) }()

	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.StudentID != studentID {
		return nil, appErrors.ErrNotOwner
	}
	current, err := s.bids.Get(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if current.RequestID != requestID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "bid not found for request")
	}
	bid, err = s.bids.Reject(ctx, bidID)
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, false, s.rejectionEvents(requestID, []models.Bid{*bid})...)
	return bid, nil
}

// CompleteSession pays the tutor the accepted price, completes the request and
// records both ratings. Any failure reverses what was already applied.
func (s *MarketplaceService) CompleteSession(ctx context.Context, requestID, userID string, studentScore, tutorScore int) (*SessionResult, error) {
	return s.CompleteSessionWithFeedback(ctx, requestID, userID, dto.CompleteSessionRequest{
		RatingGivenByStudent: studentScore,
		RatingGivenByTutor:   tutorScore,
	})
}

// CompleteSessionWithFeedback is CompleteSession that also stores the review
// comments each participant left for the other.
func (s *MarketplaceService) CompleteSessionWithFeedback(ctx context.Context, requestID, userID string, feedback dto.CompleteSessionRequest) (result *SessionResult, err error) {
	start := time.Now()
	compensated := false
	defer func() { s.observe(workflowCompleteSession, start, err, compensated) }()
	studentScore, tutorScore := feedback.RatingGivenByStudent, feedback.RatingGivenByTutor

	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestMatched {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request is not matched")
	}
	if !req.IsParticipant(userID) {
		return nil, appErrors.ErrNotParticipant
	}
	if !validScore(studentScore) || !validScore(tutorScore) {
		return nil, appErrors.ErrInvalidScore
	}
	fields := fieldErrors{}
	if err = fields.collect(s.requests.validator.Struct(feedback)); err != nil {
		return nil, err
	}
	if err = fields.err(); err != nil {
		return nil, err
	}
	if req.MatchedTutorID == nil || req.AcceptedBidID == nil {
		return nil, appErrors.Internal(errors.New("matched request without tutor or bid"), "request match is incomplete")
	}
	studentID, tutorID := req.StudentID, *req.MatchedTutorID

	ctx, unlockRequest := s.locks.Lock(ctx, requestLockKey(requestID))
	defer unlockRequest()
	ctx, unlockAccounts := s.locks.Lock(ctx, accountLockKey(studentID), accountLockKey(tutorID))
	defer unlockAccounts()

	if req, err = s.requests.Get(ctx, requestID); err != nil {
		return nil, err
	}
	if req.Status != models.RequestMatched {
		return nil, appErrors.ErrConcurrencyConflict
	}
	bid, err := s.bids.Get(ctx, *req.AcceptedBidID)
	if err != nil {
		return nil, err
	}

	sg := newSaga(workflowCompleteSession, s.logger)
	fail := func(cause error) (*SessionResult, error) {
		sg.rollback(context.WithoutCancel(ctx), cause)
		compensated = true
		return nil, cause
	}
	attempts, backoff := s.config.WorkflowRetries, s.config.WorkflowBackoff

	var debit, credit *models.LedgerEntry
	if err = retry(ctx, attempts, backoff, func() error {
		var terr error
		debit, credit, terr = s.ledger.Transfer(ctx, studentID, tutorID, bid.OfferedPrice, requestID)
		return terr
	}); err != nil {
		return nil, err
	}
	sg.onRollback("transfer", func(ctx context.Context) error {
		return s.ledger.Reverse(ctx, debit, credit)
	})

	var completed *models.Request
	if err = retry(ctx, attempts, backoff, func() error {
		var terr error
		completed, terr = s.requests.Transition(ctx, requestID, models.RequestCompleted)
		return terr
	}); err != nil {
		return fail(err)
	}
	sg.onRollback("complete_request", func(ctx context.Context) error {
		return s.requests.revert(ctx, requestID, models.RequestCompleted, models.RequestMatched)
	})

	var tutorReview, studentReview *models.Review
	if err = retry(ctx, attempts, backoff, func() error {
		var terr error
		tutorReview, terr = s.reviews.Record(ctx, requestID, studentID, tutorID, models.RoleTutor, studentScore, feedback.StudentComment)
		return terr
	}); err != nil {
		return fail(err)
	}
	sg.onRollback("review_tutor", func(ctx context.Context) error {
		return s.reviews.remove(ctx, tutorReview.ID)
	})

	if err = retry(ctx, attempts, backoff, func() error {
		var terr error
		studentReview, terr = s.reviews.Record(ctx, requestID, tutorID, studentID, models.RoleStudent, tutorScore, feedback.TutorComment)
		return terr
	}); err != nil {
		return fail(err)
	}
	sg.onRollback("review_student", func(ctx context.Context) error {
		return s.reviews.remove(ctx, studentReview.ID)
	})

	var tutorRating, studentRating *models.RatingAggregate
	if err = retry(ctx, attempts, backoff, func() error {
		var terr error
		tutorRating, terr = s.ratings.RecordRating(ctx, tutorID, models.RoleTutor, studentScore)
		return terr
	}); err != nil {
		return fail(err)
	}
	sg.onRollback("rate_tutor", func(ctx context.Context) error {
		return s.ratings.retract(ctx, tutorID, models.RoleTutor, studentScore)
	})

	if err = retry(ctx, attempts, backoff, func() error {
		var terr error
		studentRating, terr = s.ratings.RecordRating(ctx, studentID, models.RoleStudent, tutorScore)
		return terr
	}); err != nil {
		return fail(err)
	}

	s.logger.Info("session completed",
		zap.String("request_id", requestID),
		zap.String("student_id", studentID),
		zap.String("tutor_id", tutorID),
		zap.Int64("amount", bid.OfferedPrice),
	)
	s.afterCommit(ctx, true, s.event(events.TypeSessionCompleted, requestID, map[string]string{
		"student_id":     studentID,
		"tutor_id":       tutorID,
		"amount":         strconv.FormatInt(bid.OfferedPrice, 10),
		"student_rating": strconv.Itoa(tutorScore),
		"tutor_rating":   strconv.Itoa(studentScore),
	}))
	return &SessionResult{
		Request:       completed,
		Payment:       debit,
		Earning:       credit,
		TutorRating:   tutorRating,
		StudentRating: studentRating,
		Reviews:       []models.Review{*tutorReview, *studentReview},
	}, nil
}

// CancelRequest cancels an OPEN or MATCHED request and rejects its PENDING bids.
// An accepted bid stays ACCEPTED for audit and no money moves.
func (s *MarketplaceService) CancelRequest(ctx context.Context, requestID, userID string) (result *CancelResult, err error) {
	start := time.Now()
	compensated := false
	defer func() { s.observe(workflowCancelRequest, start, err, compensated) }()

	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	switch req.Status {
	case models.RequestOpen:
		if req.StudentID != userID {
			return nil, appErrors.ErrNotOwner
		}
	case models.RequestMatched:
		if !req.IsParticipant(userID) {
			return nil, appErrors.ErrNotParticipant
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request is already "+string(req.Status))
	}

	ctx, unlock := s.locks.Lock(ctx, requestLockKey(requestID))
	defer unlock()

	observed := req.Status
	if req, err = s.requests.Get(ctx, requestID); err != nil {
		return nil, err
	}
	if req.Status != observed {
		return nil, appErrors.ErrConcurrencyConflict
	}

	result, compensated, err = s.cancel(ctx, workflowCancelRequest, req)
	if err != nil {
		return nil, err
	}
	evts := []events.Event{s.event(events.TypeRequestCancelled, requestID, map[string]string{
		"cancelled_by": userID,
		"from":         string(observed),
	})}
	evts = append(evts, s.rejectionEvents(requestID, result.Rejected)...)
	s.afterCommit(ctx, true, evts...)
	return result, nil
}

// cancel moves req to CANCELLED and rejects its pending bids. The caller holds the request lock.
func (s *MarketplaceService) cancel(ctx context.Context, workflow string, req *models.Request) (*CancelResult, bool, error) {
	sg := newSaga(workflow, s.logger)

	cancelled, err := s.requests.Transition(ctx, req.ID, models.RequestCancelled)
	if err != nil {
		return nil, false, err
	}
	from := req.Status
	sg.onRollback("cancel_request", func(ctx context.Context) error {
		return s.requests.revert(ctx, req.ID, models.RequestCancelled, from)
	})

	rejected, err := s.bids.rejectPending(ctx, req.ID, "")
	for i := range rejected {
		id := rejected[i].ID
		sg.onRollback("reject_bid", func(ctx context.Context) error {
			return s.bids.revert(ctx, id, models.BidRejected, models.BidPending)
		})
	}
	if err != nil {
		sg.rollback(context.WithoutCancel(ctx), err)
		return nil, true, err
	}
	return &CancelResult{Request: cancelled, Rejected: rejected}, false, nil
}

// ExpireStale cancels OPEN requests whose session time is before now and
// returns how many were expired. Individual failures are logged and skipped.
func (s *MarketplaceService) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	open := models.RequestOpen
	filter := models.RequestFilter{Status: &open, SessionBefore: &now, Page: 1, PageSize: 100}
	var stale []string
	for {
		page, pagination, err := s.requests.List(ctx, filter)
		if err != nil {
			return 0, err
		}
		for i := range page {
			stale = append(stale, page[i].ID)
		}
		if len(page) < pagination.PageSize {
			break
		}
		filter.Page++
	}

	expired := 0
	for _, id := range stale {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		ok, err := s.expire(ctx, id, now)
		if err != nil {
			s.logger.Warn("request expiry failed", zap.String("request_id", id), zap.Error(err))
			continue
		}
		if ok {
			expired++
		}
	}
	if expired > 0 {
		s.logger.Info("stale requests expired", zap.Int("count", expired))
	}
	return expired, nil
}

func (s *MarketplaceService) expire(ctx context.Context, id string, now time.Time) (ok bool, err error) {
	start := time.Now()
	compensated := false
	defer func() { s.observe(workflowExpireRequest, start, err, compensated) }()

	ctx, unlock := s.locks.Lock(ctx, requestLockKey(id))
	defer unlock()

	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if req.Status != models.RequestOpen || !req.SessionAt.Before(now) {
		return false, nil
	}
	result, compensated, err := s.cancel(ctx, workflowExpireRequest, req)
	if err != nil {
		return false, err
	}
	evts := []events.Event{s.event(events.TypeRequestExpired, id, map[string]string{
		"student_id": req.StudentID,
		"session_at": req.SessionAt.Format(time.RFC3339),
	})}
	evts = append(evts, s.rejectionEvents(id, result.Rejected)...)
	s.afterCommit(ctx, true, evts...)
	return true, nil
}

// GetRequest returns a request by id.
func (s *MarketplaceService) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	return s.requests.Get(ctx, id)
}

// ListOpenRequests returns OPEN requests matching the query, newest first.
func (s *MarketplaceService) ListOpenRequests(ctx context.Context, query dto.ListRequestsQuery) ([]models.Request, *models.Pagination, error) {
	fields := fieldErrors{}
	if err := fields.collect(s.requests.validator.Struct(query)); err != nil {
		return nil, nil, err
	}
	if err := fields.err(); err != nil {
		return nil, nil, err
	}
	filter := models.RequestFilter{
		Subject:   query.Subject,
		Search:    query.Search,
		MaxBudget: query.MaxBudget,
		Page:      query.Page,
		PageSize:  query.PageSize,
	}
	status := models.RequestOpen
	filter.Status = &status
	if query.Urgency != "" {
		urgency := models.Urgency(query.Urgency)
		filter.Urgency = &urgency
	}

	key := ListingKey(filter)
	var cached listingPage
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached.Items, &cached.Pagination, nil
	}

	gen := s.cache.ListingGeneration()
	items, pagination, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	_ = s.cache.SetListing(ctx, key, gen, listingPage{Items: items, Pagination: *pagination}, s.config.ListingTTL)
	return items, pagination, nil
}

// ListStudentRequests returns every request posted by studentID.
func (s *MarketplaceService) ListStudentRequests(ctx context.Context, studentID string, page, pageSize int) ([]models.Request, *models.Pagination, error) {
	return s.requests.List(ctx, models.RequestFilter{StudentID: studentID, Page: page, PageSize: pageSize})
}

// ListBidsForRequest returns bids on a request oldest first.
func (s *MarketplaceService) ListBidsForRequest(ctx context.Context, requestID string) ([]models.Bid, error) {
	if _, err := s.requests.Get(ctx, requestID); err != nil {
		return nil, err
	}
	return s.bids.ListForRequest(ctx, requestID)
}

// ListTutorBids returns a tutor's bids newest first.
func (s *MarketplaceService) ListTutorBids(ctx context.Context, tutorID string) ([]models.Bid, error) {
	return s.bids.ListForTutor(ctx, tutorID)
}

// GetRatings returns both rating aggregates of a user.
func (s *MarketplaceService) GetRatings(ctx context.Context, userID string) (*dto.UserRatings, error) {
	student, err := s.ratings.Get(ctx, userID, models.RoleStudent)
	if err != nil {
		return nil, err
	}
	tutor, err := s.ratings.Get(ctx, userID, models.RoleTutor)
	if err != nil {
		return nil, err
	}
	return &dto.UserRatings{UserID: userID, Student: *student, Tutor: *tutor}, nil
}

// ListReviews returns the reviews a user received, newest first.
func (s *MarketplaceService) ListReviews(ctx context.Context, userID string) ([]models.Review, error) {
	return s.reviews.ListForUser(ctx, userID)
}

func (s *MarketplaceService) rejectionEvents(requestID string, bids []models.Bid) []events.Event {
	evts := make([]events.Event, 0, len(bids))
	for i := range bids {
		evts = append(evts, s.event(events.TypeBidRejected, requestID, map[string]string{
			"bid_id":   bids[i].ID,
			"tutor_id": bids[i].TutorID,
		}))
	}
	return evts
}

func (s *MarketplaceService) event(eventType, key string, data map[string]string) events.Event {
	return events.Event{ID: s.ids.NewID(), Type: eventType, Key: key, OccurredAt: s.clock.Now(), Data: data}
}

// afterCommit runs side effects of a committed workflow. Their failures are logged only.
func (s *MarketplaceService) afterCommit(ctx context.Context, listingsChanged bool, evts ...events.Event) {
	if listingsChanged {
		_ = s.cache.InvalidateListings(context.WithoutCancel(ctx))
	}
	for _, evt := range evts {
		s.events.Dispatch(evt)
	}
}

func (s *MarketplaceService) observe(workflow string, start time.Time, err error, compensated bool) {
	outcome := OutcomeSuccess
	switch {
	case err == nil:
	case compensated:
		outcome = OutcomeCompensated
	case errors.Is(err, appErrors.ErrConcurrencyConflict):
		outcome = OutcomeConflict
	case transient(err):
		outcome = OutcomeError
	default:
		outcome = OutcomeRejected
	}
	s.metrics.ObserveWorkflow(workflow, outcome, time.Since(start))
	if outcome == OutcomeCompensated || outcome == OutcomeError {
		s.logger.Warn("workflow failed", zap.String("workflow", workflow), zap.String("outcome", outcome), zap.Error(err))
	}
}
