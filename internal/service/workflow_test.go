package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/dto"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

func TestRetryStopsOnDomainErrors(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return appErrors.ErrInsufficientFunds
	})
	assert.ErrorIs(t, err, appErrors.ErrInsufficientFunds)
	assert.Equal(t, 1, calls)
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return appErrors.Internal(errors.New("timeout"), "write failed")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestSagaUndoesInReverseOrder(t *testing.T) {
	var order []string
	sg := newSaga("test", zap.NewNop())
	sg.onRollback("first", func(context.Context) error { order = append(order, "first"); return nil })
	sg.onRollback("second", func(context.Context) error { return errors.New("stuck") })
	sg.onRollback("third", func(context.Context) error { order = append(order, "third"); return nil })

	sg.rollback(context.Background(), errors.New("boom"))
	assert.Equal(t, []string{"third", "first"}, order)
}

func TestExpirySweepUsesClockWithMarketplace(t *testing.T) {
	m := newMarket(t)
	soon := validRequest()
	soon.SessionAt = testNow.Add(time.Hour)
	_, err := m.svc.CreateRequest(context.Background(), "student-1", soon)
	require.NoError(t, err)

	sweeper := NewExpiryService(m.svc, nil, WithClock(m.clock))
	require.NoError(t, sweeper.Sweep(context.Background()))
	open, _, err := m.svc.ListOpenRequests(context.Background(), dto.ListRequestsQuery{})
	require.NoError(t, err)
	assert.Len(t, open, 1)

	m.clock.Advance(90 * time.Minute)
	require.NoError(t, sweeper.Sweep(context.Background()))
	open, _, err = m.svc.ListOpenRequests(context.Background(), dto.ListRequestsQuery{})
	require.NoError(t, err)
	assert.Empty(t, open)
}
