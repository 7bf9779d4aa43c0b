package cancellation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/events"
	"github.com/kirinyoku/tripgo/internal/payment/mockgw"
	"github.com/kirinyoku/tripgo/internal/repository/memory"
	"github.com/kirinyoku/tripgo/internal/service/agent"
	"github.com/kirinyoku/tripgo/internal/service/orchestrator"
	"github.com/kirinyoku/tripgo/internal/uow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	payments *orchestrator.Service
	store    *memory.Store
	gw       *mockgw.Gateway
	recorder *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	gw := mockgw.New()
	recorder := &events.Recorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	emitter := events.NewEmitter(recorder, logger, time.Second)
	clock := func() time.Time { return now }

	agents := agent.New(store, emitter, logger, agent.Config{Now: clock})

	return &fixture{
		svc:      New(store, gw, emitter, logger, Config{Now: clock}),
		payments: orchestrator.New(store, gw, agents, emitter, logger, orchestrator.Config{Now: clock}),
		store:    store,
		gw:       gw,
		recorder: recorder,
	}
}

func (f *fixture) seed(t *testing.T) domain.Booking {
	t.Helper()

	b := domain.Booking{
		ID:            uuid.New(),
		Reference:     domain.NewReference(),
		DestinationID: 1,
		CustomerID:    7,
		TravelDate:    now.AddDate(0, 1, 0),
		Travelers:     2,
		TotalPrice:    domain.Money{Amount: 12000, Currency: "usd"},
		Type:          domain.BookingDirect,
		Status:        domain.StatusPending,
		PaymentStatus: domain.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	f.store.SeedBooking(b)
	return b
}

// paidByCheckout pays b through a hosted checkout and returns the session and intent ids.
func (f *fixture) paidByCheckout(t *testing.T, b domain.Booking) (string, string) {
	t.Helper()

	ctx := context.Background()
	started, err := f.payments.StartCheckout(ctx, b.ID)
	require.NoError(t, err)

	intentID := f.gw.PaySession(started.SessionID)

	_, err = f.payments.VerifyCheckout(ctx, b.ID, started.SessionID)
	require.NoError(t, err)

	return started.SessionID, intentID
}

func TestService_CancelPaidBookingRefundsThroughSession(t *testing.T) {
	f := newFixture(t)
	b := f.seed(t)
	_, intentID := f.paidByCheckout(t, b)

	out, err := f.svc.Cancel(context.Background(), b.ID, "changed mind")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCancelled, out.Booking.Status)
	assert.Equal(t, domain.PaymentRefunded, out.Booking.PaymentStatus)
	assert.Equal(t, "changed mind", out.Booking.CancellationReason)
	assert.True(t, out.WasPaid)
	assert.True(t, out.RefundAttempted)
	assert.True(t, out.RefundConfirmed)
	assert.NotEmpty(t, out.RefundID)
	assert.Equal(t, MessageRefunded, out.Message)
	assert.Equal(t, 1, f.gw.Refunds(intentID))
	assert.Equal(t, 1, f.recorder.Count(domain.EventBookingCancelled))
}

func TestService_CancelResolvesIntentFromSession(t *testing.T) {
	f := newFixture(t)
	b := f.seed(t)
	sessionID, intentID := f.paidByCheckout(t, b)

	// a booking that recorded the session itself as proof
	paid, err := f.store.Repos().Bookings().Get(context.Background(), b.ID)
	require.NoError(t, err)
	paid.ChargeID = sessionID
	f.store.SeedBooking(*paid)

	out, err := f.svc.Cancel(context.Background(), b.ID, "")
	require.NoError(t, err)

	assert.True(t, out.RefundConfirmed)
	assert.Equal(t, defaultReason, out.Booking.CancellationReason)
	assert.Equal(t, 1, f.gw.Refunds(intentID))
}

func TestService_CancelReferenceOfUnknownKind(t *testing.T) {
	f := newFixture(t)
	b := f.seed(t)
	sessionID, intentID := f.paidByCheckout(t, b)

	paid, err := f.store.Repos().Bookings().Get(context.Background(), b.ID)
	require.NoError(t, err)
	paid.Payment = domain.PaymentReference{Kind: domain.PaymentRefUnknown, ID: sessionID}
	paid.ChargeID = ""
	f.store.SeedBooking(*paid)

	out, err := f.svc.Cancel(context.Background(), b.ID, "duplicate")
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentRefunded, out.Booking.PaymentStatus)
	assert.Equal(t, 1, f.gw.Refunds(intentID))
}

func TestService_CancelWithPendingRefund(t *testing.T) {
	f := newFixture(t)
	b := f.seed(t)
	f.paidByCheckout(t, b)
	f.gw.PendRefunds(true)

	out, err := f.svc.Cancel(context.Background(), b.ID, "changed mind")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCancelled, out.Booking.Status)
	assert.Equal(t, domain.PaymentPaid, out.Booking.PaymentStatus)
	assert.True(t, out.RefundAttempted)
	assert.False(t, out.RefundConfirmed)
	assert.Empty(t, out.RefundError)
	assert.Equal(t, MessageRefundPending, out.Message)
	assert.Zero(t, f.recorder.Count(domain.EventRefundFailed))
}

func TestService_CancelSucceedsWhenRefundFails(t *testing.T) {
	f := newFixture(t)
	b := f.seed(t)
	f.paidByCheckout(t, b)
	f.gw.FailRefunds(errors.New("card network down"))

	out, err := f.svc.Cancel(context.Background(), b.ID, "changed mind")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCancelled, out.Booking.Status)
	assert.Equal(t, domain.PaymentPaid, out.Booking.PaymentStatus)
	assert.True(t, out.RefundAttempted)
	assert.False(t, out.RefundConfirmed)
	assert.Contains(t, out.RefundError, "card network down")
	assert.Equal(t, MessageRefundPending, out.Message)
	assert.Equal(t, 1, f.recorder.Count(domain.EventRefundFailed))
}

func TestService_CancelSucceedsWhenProcessorIsDown(t *testing.T) {
	f := newFixture(t)
	b := f.seed(t)
	f.paidByCheckout(t, b)
	f.gw.SetUnavailable(errors.New("dial tcp: i/o timeout"))

	out, err := f.svc.Cancel(context.Background(), b.ID, "changed mind")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCancelled, out.Booking.Status)
	assert.Equal(t, MessageRefundPending, out.Message)
}

func TestService_CancelUnpaidBooking(t *testing.T) {
	f := newFixture(t)
	b := f.seed(t)

	out, err := f.svc.Cancel(context.Background(), b.ID, "plans changed")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCancelled, out.Booking.Status)
	assert.Equal(t, domain.PaymentPending, out.Booking.PaymentStatus)
	assert.False(t, out.WasPaid)
	assert.False(t, out.RefundAttempted)
	assert.Equal(t, MessageNoCharge, out.Message)
	assert.Zero(t, f.gw.Calls("refund"))
}

func TestService_CancelTerminalBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seed(t)

	_, err := f.svc.Cancel(ctx, b.ID, "first")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, b.ID, "second")
	assert.True(t, domain.IsInvalidTransition(err))

	completed := f.seed(t)
	completed.Status = domain.StatusCompleted
	f.store.SeedBooking(completed)

	_, err = f.svc.Cancel(ctx, completed.ID, "too late")
	assert.True(t, domain.IsInvalidTransition(err))

	_, err = f.svc.Cancel(ctx, uuid.New(), "nope")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)

	assert.Equal(t, 1, f.recorder.Count(domain.EventBookingCancelled))
}

// racingStore runs before once, ahead of the first transaction, as a verify
// request committing between the refund decision and the cancel would.
type racingStore struct {
	*memory.Store
	once   sync.Once
	before func()
}

func (s *racingStore) Do(ctx context.Context, fn uow.TxFunc) error {
	s.once.Do(s.before)
	return s.Store.Do(ctx, fn)
}

func TestService_CancelRetriesWhenPaymentLandsMidway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seed(t)

	started, err := f.payments.StartCheckout(ctx, b.ID)
	require.NoError(t, err)
	intentID := f.gw.PaySession(started.SessionID)

	store := &racingStore{Store: f.store}
	store.before = func() {
		_, err := f.payments.VerifyCheckout(ctx, b.ID, started.SessionID)
		require.NoError(t, err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(store, f.gw, events.NewEmitter(f.recorder, logger, time.Second), logger, Config{Now: func() time.Time { return now }})

	out, err := svc.Cancel(ctx, b.ID, "changed mind")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCancelled, out.Booking.Status)
	assert.Equal(t, domain.PaymentRefunded, out.Booking.PaymentStatus)
	assert.True(t, out.WasPaid)
	assert.Equal(t, MessageRefunded, out.Message)
	assert.Equal(t, 1, f.gw.Refunds(intentID))
}

func TestService_CancelRacingVerification(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		ctx := context.Background()
		b := f.seed(t)

		started, err := f.payments.StartCheckout(ctx, b.ID)
		require.NoError(t, err)
		intentID := f.gw.PaySession(started.SessionID)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.payments.VerifyCheckout(ctx, b.ID, started.SessionID)
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.Cancel(ctx, b.ID, "changed mind")
			assert.NoError(t, err)
		}()
		wg.Wait()

		got, err := f.store.Repos().Bookings().Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, got.Status)
		assert.Equal(t, 1, f.gw.Refunds(intentID), "captured money is returned exactly once")
	}
}
