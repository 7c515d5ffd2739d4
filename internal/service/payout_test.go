package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lossledger/lossledger/internal/domain"
	"github.com/lossledger/lossledger/internal/repository"
	"github.com/lossledger/lossledger/internal/repository/dao"
)

// fakePaymentClient records every dispatched amount; payFn overrides the
// default always-succeed behavior.
type fakePaymentClient struct {
	mu    sync.Mutex
	calls []int64
	payFn func(ctx context.Context, payeeIdentifier string, amount int64, destination, comment string) (string, error)
}

func (f *fakePaymentClient) Pay(ctx context.Context, payeeIdentifier string, amount int64, destination, comment string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, amount)
	n := len(f.calls)
	f.mu.Unlock()

	if f.payFn != nil {
		return f.payFn(ctx, payeeIdentifier, amount, destination, comment)
	}
	return fmt.Sprintf("tr_%d", n), nil
}

func (f *fakePaymentClient) amounts() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

func newPayoutStack(t *testing.T, gormDB *gorm.DB, client PaymentClient) *PayoutService {
	t.Helper()

	intents := repository.NewPayoutRepository(dao.NewPayoutDAO(gormDB, "balance_aggregates"))
	balances := newBalanceLedger(t, gormDB)
	return NewPayoutService(intents, balances, client, testPayoutConfig())
}

func seedBalance(t *testing.T, gormDB *gorm.DB, subjectKey string, total int64) {
	t.Helper()
	require.NoError(t, newBalanceLedger(t, gormDB).ApplyDelta(context.Background(), subjectKey, total))
}

func TestPayoutService_DispatchChunkedPaysFloorMultiples(t *testing.T) {
	ctx := context.Background()
	gormDB := newTestDB(t)
	seedBalance(t, gormDB, "payee-a", 2500)

	client := &fakePaymentClient{}
	svc := newPayoutStack(t, gormDB, client)

	intents, err := svc.DispatchChunked(ctx, svc.Payees()[0])
	require.NoError(t, err)
	require.Len(t, intents, 2)
	for _, intent := range intents {
		require.Equal(t, int64(1000), intent.Amount)
		require.Equal(t, domain.IntentSent, intent.Status)
	}
	require.Equal(t, []int64{1000, 1000}, client.amounts())

	// The sub-floor remainder stays owed.
	balance, err := svc.Balance(ctx, "payee-a")
	require.NoError(t, err)
	require.Equal(t, int64(500), balance)
}

func TestPayoutService_DispatchChunkedBelowFloorDoesNothing(t *testing.T) {
	ctx := context.Background()
	gormDB := newTestDB(t)
	seedBalance(t, gormDB, "payee-a", 999)

	client := &fakePaymentClient{}
	svc := newPayoutStack(t, gormDB, client)

	intents, err := svc.DispatchChunked(ctx, svc.Payees()[0])
	require.NoError(t, err)
	require.Empty(t, intents)
	require.Empty(t, client.amounts())

	balance, err := svc.Balance(ctx, "payee-a")
	require.NoError(t, err)
	require.Equal(t, int64(999), balance)
}

func TestPayoutService_DispatchChunkedSingleChunk(t *testing.T) {
	ctx := context.Background()
	gormDB := newTestDB(t)
	seedBalance(t, gormDB, "payee-a", 1999)

	svc := newPayoutStack(t, gormDB, &fakePaymentClient{})

	intents, err := svc.DispatchChunked(ctx, svc.Payees()[0])
	require.NoError(t, err)
	require.Len(t, intents, 1)
	require.Equal(t, int64(1000), intents[0].Amount)

	balance, err := svc.Balance(ctx, "payee-a")
	require.NoError(t, err)
	require.Equal(t, int64(999), balance)
}

func TestPayoutService_DispatchChunkedFailureKeepsBalance(t *testing.T) {
	ctx := context.Background()
	gormDB := newTestDB(t)
	seedBalance(t, gormDB, "payee-a", 1500)

	client := &fakePaymentClient{
		payFn: func(context.Context, string, int64, string, string) (string, error) {
			return "", errors.New("provider down")
		},
	}
	svc := newPayoutStack(t, gormDB, client)

	intents, err := svc.DispatchChunked(ctx, svc.Payees()[0])
	require.NoError(t, err)
	require.Len(t, intents, 1)
	require.Equal(t, domain.IntentFailed, intents[0].Status)
	require.Contains(t, intents[0].Error, "provider down")

	// Nothing was decremented; the amount is retryable.
	balance, err := svc.Balance(ctx, "payee-a")
	require.NoError(t, err)
	require.Equal(t, int64(1500), balance)

	// After the provider recovers, the same surplus dispatches again.
	client.payFn = nil
	intents, err = svc.DispatchChunked(ctx, svc.Payees()[0])
	require.NoError(t, err)
	require.Len(t, intents, 1)
	require.Equal(t, domain.IntentSent, intents[0].Status)

	balance, err = svc.Balance(ctx, "payee-a")
	require.NoError(t, err)
	require.Equal(t, int64(500), balance)
}

func TestPayoutService_DispatchDrainBelowMinimum(t *testing.T) {
	ctx := context.Background()
	gormDB := newTestDB(t)
	seedBalance(t, gormDB, "payee-a", 99)

	client := &fakePaymentClient{}
	svc := newPayoutStack(t, gormDB, client)

	intent, err := svc.DispatchDrain(ctx, svc.Payees()[0])
	require.NoError(t, err)
	require.Nil(t, intent)
	require.Empty(t, client.amounts())
}

func TestPayoutService_DispatchDrainPaysEverythingAvailable(t *testing.T) {
	ctx := context.Background()
	gormDB := newTestDB(t)
	seedBalance(t, gormDB, "payee-a", 750)

	svc := newPayoutStack(t, gormDB, &fakePaymentClient{})

	intent, err := svc.DispatchDrain(ctx, svc.Payees()[0])
	require.NoError(t, err)
	require.NotNil(t, intent)
	require.Equal(t, int64(750), intent.Amount)
	require.Equal(t, domain.IntentSent, intent.Status)

	balance, err := svc.Balance(ctx, "payee-a")
	require.NoError(t, err)
	require.Zero(t, balance)
}

func TestPayoutService_DispatchDrainExcludesPendingReservations(t *testing.T) {
	ctx := context.Background()
	gormDB := newTestDB(t)
	seedBalance(t, gormDB, "payee-a", 1000)

	intents := repository.NewPayoutRepository(dao.NewPayoutDAO(gormDB, "balance_aggregates"))
	// A stuck pending intent reserves part of the balance.
	_, err := intents.CreatePending(ctx, "payee-a", 600)
	require.NoError(t, err)

	svc := newPayoutStack(t, gormDB, &fakePaymentClient{})

	intent, err := svc.DispatchDrain(ctx, svc.Payees()[0])
	require.NoError(t, err)
	require.NotNil(t, intent)
	require.Equal(t, int64(400), intent.Amount)
}

func TestPayoutService_DispatchDrainFullyReserved(t *testing.T) {
	ctx := context.Background()
	gormDB := newTestDB(t)
	seedBalance(t, gormDB, "payee-a", 500)

	intents := repository.NewPayoutRepository(dao.NewPayoutDAO(gormDB, "balance_aggregates"))
	_, err := intents.CreatePending(ctx, "payee-a", 500)
	require.NoError(t, err)

	client := &fakePaymentClient{}
	svc := newPayoutStack(t, gormDB, client)

	intent, err := svc.DispatchDrain(ctx, svc.Payees()[0])
	require.NoError(t, err)
	require.Nil(t, intent)
	require.Empty(t, client.amounts())
}

// gatedPaymentClient holds every Pay call until release is closed.
type gatedPaymentClient struct {
	started chan struct{}
	release chan struct{}
}

func (c *gatedPaymentClient) Pay(ctx context.Context, payeeIdentifier string, amount int64, destination, comment string) (string, error) {
	select {
	case c.started <- struct{}{}:
	default:
	}
	<-c.release
	return "tr_gated", nil
}

func TestPayoutService_ChunkedAndDrainSerializePerPayee(t *testing.T) {
	ctx := context.Background()
	gormDB := newTestDB(t)
	seedBalance(t, gormDB, "payee-a", 1000)

	client := &gatedPaymentClient{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	svc := newPayoutStack(t, gormDB, client)

	var (
		chunked    []domain.PaymentIntent
		chunkedErr error
	)
	chunkedDone := make(chan struct{})
	go func() {
		chunked, chunkedErr = svc.DispatchChunked(ctx, svc.Payees()[0])
		close(chunkedDone)
	}()

	// Chunked is mid-finalization, holding the payee lock.
	<-client.started

	var (
		drained    *domain.PaymentIntent
		drainedErr error
	)
	drainDone := make(chan struct{})
	go func() {
		drained, drainedErr = svc.DispatchDrain(ctx, svc.Payees()[0])
		close(drainDone)
	}()

	// Drain is parked on the same lock; letting the payment finish lets both
	// paths run to completion in sequence.
	time.Sleep(20 * time.Millisecond)
	close(client.release)
	<-chunkedDone
	<-drainDone

	require.NoError(t, chunkedErr)
	require.Len(t, chunked, 1)
	require.Equal(t, int64(1000), chunked[0].Amount)
	require.Equal(t, domain.IntentSent, chunked[0].Status)

	// The drain path observed the post-payout balance, not the stale surplus,
	// so nothing was over-committed.
	require.NoError(t, drainedErr)
	require.Nil(t, drained)

	sent, err := svc.SumSent(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1000), sent)

	balance, err := svc.Balance(ctx, "payee-a")
	require.NoError(t, err)
	require.Zero(t, balance)

	counts, err := svc.StatusCounts(ctx)
	require.NoError(t, err)
	require.Zero(t, counts[domain.IntentPending])
}

func TestPayoutService_StatusCounts(t *testing.T) {
	ctx := context.Background()
	gormDB := newTestDB(t)
	seedBalance(t, gormDB, "payee-a", 2000)

	svc := newPayoutStack(t, gormDB, &fakePaymentClient{})

	_, err := svc.DispatchChunked(ctx, svc.Payees()[0])
	require.NoError(t, err)

	counts, err := svc.StatusCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), counts[domain.IntentSent])

	listed, err := svc.IntentsFor(ctx, "payee-a", 10)
	require.NoError(t, err)
	require.Len(t, listed, 2)
}
