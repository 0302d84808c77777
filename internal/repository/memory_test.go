package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorly-api/internal/models"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleRequest(id string, created time.Time) *models.Request {
	return &models.Request{
		ID:             id,
		StudentID:      "student-1",
		Subject:        "Mathematics",
		Topic:          "Calculus",
		Description:    "Integrals and limits for the final exam",
		DurationHours:  2,
		PreferredPrice: 150000,
		MaxPrice:       200000,
		SessionAt:      created.Add(48 * time.Hour),
		Location:       "Online",
		Urgency:        models.UrgencyMedium,
		Status:         models.RequestOpen,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func TestMemoryRequestConditionalUpdate(t *testing.T) {
	repo := NewMemoryRequestRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, sampleRequest("r1", base)))
	assert.ErrorIs(t, repo.Create(ctx, sampleRequest("r1", base)), ErrUniqueViolation)

	tutor, bid := "tutor-1", "bid-1"
	updated, err := repo.UpdateStatus(ctx, models.RequestTransition{
		ID: "r1", From: models.RequestOpen, To: models.RequestMatched,
		MatchedTutorID: &tutor, AcceptedBidID: &bid, At: base.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestMatched, updated.Status)
	assert.Equal(t, tutor, *updated.MatchedTutorID)

	_, err = repo.UpdateStatus(ctx, models.RequestTransition{ID: "r1", From: models.RequestOpen, To: models.RequestCancelled})
	assert.ErrorIs(t, err, sql.ErrNoRows)

	reverted, err := repo.UpdateStatus(ctx, models.RequestTransition{ID: "r1", From: models.RequestMatched, To: models.RequestOpen})
	require.NoError(t, err)
	assert.Nil(t, reverted.MatchedTutorID)
	assert.Nil(t, reverted.AcceptedBidID)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMemoryRequestListFilters(t *testing.T) {
	repo := NewMemoryRequestRepository()
	ctx := context.Background()

	physics := sampleRequest("r2", base.Add(time.Hour))
	physics.Subject = "Physics"
	physics.Topic = "Kinematics"
	physics.MaxPrice = 400000
	physics.Urgency = models.UrgencyHigh

	require.NoError(t, repo.Create(ctx, sampleRequest("r1", base)))
	require.NoError(t, repo.Create(ctx, physics))
	require.NoError(t, repo.Create(ctx, sampleRequest("r3", base.Add(2*time.Hour))))

	all, total, err := repo.List(ctx, models.RequestFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"r3", "r2", "r1"}, ids(all))

	budget := int64(250000)
	cheap, _, err := repo.List(ctx, models.RequestFilter{MaxBudget: &budget})
	require.NoError(t, err)
	assert.Equal(t, []string{"r3", "r1"}, ids(cheap))

	found, _, err := repo.List(ctx, models.RequestFilter{Search: "kinema"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, ids(found))

	high := models.UrgencyHigh
	urgent, _, err := repo.List(ctx, models.RequestFilter{Urgency: &high, Subject: "physics"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, ids(urgent))

	page, total, err := repo.List(ctx, models.RequestFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"r1"}, ids(page))

	cutoff := base.Add(49 * time.Hour)
	stale, _, err := repo.List(ctx, models.RequestFilter{SessionBefore: &cutoff})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids(stale))
}

func ids(requests []models.Request) []string {
	out := make([]string, len(requests))
	for i, r := range requests {
		out[i] = r.ID
	}
	return out
}

func newBid(id, requestID, tutorID string, created time.Time) *models.Bid {
	return &models.Bid{
		ID: id, RequestID: requestID, TutorID: tutorID, OfferedPrice: 175000,
		Message: "I can help", EstimatedDurationHours: 2, Status: models.BidPending,
		CreatedAt: created, UpdatedAt: created,
	}
}

func TestMemoryBidUniqueness(t *testing.T) {
	repo := NewMemoryBidRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newBid("b1", "r1", "t1", base)))
	assert.ErrorIs(t, repo.Create(ctx, newBid("b2", "r1", "t1", base)), ErrUniqueViolation)

	_, err := repo.UpdateStatus(ctx, "b1", models.BidPending, models.BidWithdrawn, base)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, newBid("b2", "r1", "t1", base.Add(time.Second))))
	require.NoError(t, repo.Create(ctx, newBid("b3", "r1", "t2", base.Add(time.Second))))

	_, err = repo.UpdateStatus(ctx, "b2", models.BidPending, models.BidAccepted, base)
	require.NoError(t, err)
	_, err = repo.UpdateStatus(ctx, "b3", models.BidPending, models.BidAccepted, base)
	assert.ErrorIs(t, err, ErrUniqueViolation)

	_, err = repo.UpdateStatus(ctx, "b2", models.BidPending, models.BidRejected, base)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMemoryBidOrdering(t *testing.T) {
	repo := NewMemoryBidRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newBid("late", "r1", "t1", base.Add(time.Minute))))
	require.NoError(t, repo.Create(ctx, newBid("tie-a", "r1", "t2", base)))
	require.NoError(t, repo.Create(ctx, newBid("tie-b", "r1", "t3", base)))
	require.NoError(t, repo.Create(ctx, newBid("other", "r2", "t1", base)))

	bids, err := repo.ListByRequest(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, bids, 3)
	assert.Equal(t, "tie-a", bids[0].ID)
	assert.Equal(t, "tie-b", bids[1].ID)
	assert.Equal(t, "late", bids[2].ID)

	mine, err := repo.ListByTutor(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "late", mine[0].ID)
}

func entry(id, account string, amount int64, kind models.EntryKind) *models.LedgerEntry {
	return &models.LedgerEntry{ID: id, AccountID: account, Amount: amount, Kind: kind, CreatedAt: base}
}

func TestMemoryLedgerAppendIsAllOrNothing(t *testing.T) {
	repo := NewMemoryLedgerRepository()
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, entry("e1", "a", 100000, models.EntryDeposit)))
	err := repo.Append(ctx,
		entry("e2", "b", 50000, models.EntryEarning),
		entry("e3", "a", -150000, models.EntryPayment),
	)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	balance, _ := repo.Balance(ctx, "a")
	assert.Equal(t, int64(100000), balance)
	balance, _ = repo.Balance(ctx, "b")
	assert.Zero(t, balance)

	pay := entry("e4", "a", -60000, models.EntryPayment)
	earn := entry("e5", "b", 60000, models.EntryEarning)
	require.NoError(t, repo.Append(ctx, pay, earn))
	assert.Greater(t, earn.Seq, pay.Seq)

	history, err := repo.List(ctx, "a", models.LedgerFilter{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "e4", history[0].ID)
}

func TestMemoryLedgerConcurrentDebitsNeverOverdraw(t *testing.T) {
	repo := NewMemoryLedgerRepository()
	ctx := context.Background()
	require.NoError(t, repo.Append(ctx, entry("seed", "a", 100000, models.EntryDeposit)))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = repo.Append(ctx, entry(fmt.Sprintf("w%d", i), "a", -30000, models.EntryWithdrawal))
		}(i)
	}
	wg.Wait()

	balance, _ := repo.Balance(ctx, "a")
	assert.Equal(t, int64(10000), balance)
}

func TestMemoryRatingApplyRetract(t *testing.T) {
	repo := NewMemoryRatingRepository()
	ctx := context.Background()

	_, err := repo.Get(ctx, "u1", models.RoleTutor)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	_, err = repo.Apply(ctx, "u1", models.RoleTutor, 5, base)
	require.NoError(t, err)
	agg, err := repo.Apply(ctx, "u1", models.RoleTutor, 3, base)
	require.NoError(t, err)
	assert.Equal(t, 2, agg.Count)
	assert.InDelta(t, 4.0, agg.Average, 1e-9)

	agg, err = repo.Retract(ctx, "u1", models.RoleTutor, 3, base)
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Count)
	assert.InDelta(t, 5.0, agg.Average, 1e-9)

	_, err = repo.Get(ctx, "u1", models.RoleStudent)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMemoryReviewLifecycle(t *testing.T) {
	repo := NewMemoryReviewRepository()
	ctx := context.Background()

	first := &models.Review{ID: "rv1", RequestID: "r1", ReviewerID: "s1", RevieweeID: "t1", Role: models.RoleTutor, Rating: 5, CreatedAt: base}
	second := &models.Review{ID: "rv2", RequestID: "r2", ReviewerID: "s2", RevieweeID: "t1", Role: models.RoleTutor, Rating: 3, CreatedAt: base.Add(time.Hour)}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	dup := *first
	dup.ID = "rv3"
	assert.ErrorIs(t, repo.Create(ctx, &dup), ErrUniqueViolation, "one review per reviewer and request")

	reviews, err := repo.ListByReviewee(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, "rv2", reviews[0].ID)

	require.NoError(t, repo.Delete(ctx, "rv1"))
	assert.ErrorIs(t, repo.Delete(ctx, "rv1"), sql.ErrNoRows)
	require.NoError(t, repo.Create(ctx, &dup), "deleting frees the reviewer slot")

	reviews, err = repo.ListByReviewee(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, reviews)
}
