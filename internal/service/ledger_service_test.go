package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/internal/repository"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

func newTestLedger() *LedgerService {
	return NewLedgerService(repository.NewMemoryLedgerRepository(), nil, nil, WithClock(newStubClock()), WithIDGenerator(&seqIDs{}))
}

func TestLedgerCreditAndDebit(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()

	entry, err := ledger.Credit(ctx, "acct-1", 200000, models.EntryDeposit, "", WithMethod("e_wallet"))
	require.NoError(t, err)
	assert.Equal(t, int64(200000), entry.Amount)
	assert.Equal(t, "e_wallet", entry.Method)
	assert.Nil(t, entry.RelatedRequestID)

	debit, err := ledger.Debit(ctx, "acct-1", 50000, models.EntryWithdrawal, "")
	require.NoError(t, err)
	assert.Equal(t, int64(-50000), debit.Amount)

	balance, err := ledger.BalanceOf(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(150000), balance)

	entries, err := ledger.Entries(ctx, "acct-1", models.LedgerFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.EntryWithdrawal, entries[0].Kind)
}

func TestLedgerRejectsInvalidInput(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()

	_, err := ledger.Credit(ctx, "acct-1", 0, models.EntryDeposit, "")
	assert.ErrorIs(t, err, appErrors.ErrInvalidAmount)
	_, err = ledger.Debit(ctx, "acct-1", -5, models.EntryWithdrawal, "")
	assert.ErrorIs(t, err, appErrors.ErrInvalidAmount)
	_, err = ledger.Credit(ctx, "acct-1", 100, models.EntryPayment, "")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = ledger.Debit(ctx, "acct-1", 100, models.EntryDeposit, "")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = ledger.Debit(ctx, "acct-1", 100, models.EntryWithdrawal, "")
	assert.ErrorIs(t, err, appErrors.ErrInsufficientFunds)

	_, _, err = ledger.Transfer(ctx, "acct-1", "acct-1", 100, "req-1")
	require.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Contains(t, appErrors.FromError(err).Fields, "to_account_id")
}

func TestLedgerTransferAndReverse(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()
	_, err := ledger.Credit(ctx, "student", 300000, models.EntryDeposit, "")
	require.NoError(t, err)

	_, _, err = ledger.Transfer(ctx, "student", "tutor", 400000, "req-1")
	assert.ErrorIs(t, err, appErrors.ErrInsufficientFunds)

	debit, credit, err := ledger.Transfer(ctx, "student", "tutor", 175000, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.EntryPayment, debit.Kind)
	assert.Equal(t, int64(-175000), debit.Amount)
	assert.Equal(t, models.EntryEarning, credit.Kind)
	assert.Equal(t, "req-1", *credit.RelatedRequestID)

	require.NoError(t, ledger.Reverse(ctx, debit, credit))
	student, _ := ledger.BalanceOf(ctx, "student")
	tutor, _ := ledger.BalanceOf(ctx, "tutor")
	assert.Equal(t, int64(300000), student)
	assert.Equal(t, int64(0), tutor)
}

func TestLedgerConcurrentDebitsNeverOverdraw(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()
	_, err := ledger.Credit(ctx, "acct-1", 100000, models.EntryDeposit, "")
	require.NoError(t, err)

	var ok int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Debit(ctx, "acct-1", 10000, models.EntryWithdrawal, ""); err == nil {
				atomic.AddInt32(&ok, 1)
			} else {
				assert.ErrorIs(t, err, appErrors.ErrInsufficientFunds)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), ok)
	balance, err := ledger.BalanceOf(ctx, "acct-1")
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestLedgerOpposingTransfersDoNotDeadlock(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()
	_, err := ledger.Credit(ctx, "a", 1000000, models.EntryDeposit, "")
	require.NoError(t, err)
	_, err = ledger.Credit(ctx, "b", 1000000, models.EntryDeposit, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, _ = ledger.Transfer(ctx, "a", "b", 1000, "")
		}()
		go func() {
			defer wg.Done()
			_, _, _ = ledger.Transfer(ctx, "b", "a", 1000, "")
		}()
	}
	wg.Wait()

	a, _ := ledger.BalanceOf(ctx, "a")
	b, _ := ledger.BalanceOf(ctx, "b")
	assert.Equal(t, int64(2000000), a+b)
}
