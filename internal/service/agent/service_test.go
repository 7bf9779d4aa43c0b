package agent

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
	"github.com/kirinyoku/tripgo/internal/repository"
	"github.com/kirinyoku/tripgo/internal/repository/memory"
	"github.com/kirinyoku/tripgo/internal/uow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *memory.Store, *events.Recorder) {
	t.Helper()

	store := memory.NewStore()
	recorder := &events.Recorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := New(store, events.NewEmitter(recorder, logger, time.Second), logger, Config{
		CommissionRateBps: 1000,
		Now:               func() time.Time { return now },
	})

	return svc, store, recorder
}

func seedBooking(store *memory.Store, typ domain.BookingType) domain.Booking {
	b := domain.Booking{
		ID:            uuid.New(),
		Reference:     domain.NewReference(),
		DestinationID: 1,
		CustomerID:    7,
		TravelDate:    now.AddDate(0, 1, 0),
		Travelers:     9,
		TotalPrice:    domain.Money{Amount: 54000, Currency: "usd"},
		Type:          typ,
		Status:        domain.StatusPending,
		PaymentStatus: domain.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	store.SeedBooking(b)
	return b
}

func TestService_AssignOpensCommission(t *testing.T) {
	svc, store, rec := newService(t)
	b := seedBooking(store, domain.BookingAgent)

	got, c, err := svc.Assign(context.Background(), b.ID, 42)
	require.NoError(t, err)

	require.NotNil(t, got.AgentID)
	assert.Equal(t, int64(42), *got.AgentID)
	assert.Equal(t, domain.StatusPending, got.Status)

	assert.Equal(t, int64(42), c.AgentID)
	assert.Equal(t, domain.Money{Amount: 5400, Currency: "usd"}, c.Amount)
	assert.Equal(t, 1000, c.RateBasisPt)
	assert.Equal(t, domain.CommissionPending, c.Status)

	stored, err := svc.GetCommission(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, stored.ID)

	assert.Equal(t, 1, rec.Count(domain.EventBookingAssigned))
	assert.Equal(t, 1, rec.Count(domain.EventCommissionCreated))
}

func TestService_AssignRejects(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	direct := seedBooking(store, domain.BookingDirect)
	_, _, err := svc.Assign(ctx, direct.ID, 42)
	assert.True(t, domain.IsValidation(err))

	cancelled := seedBooking(store, domain.BookingAgent)
	cancelled.Status = domain.StatusCancelled
	store.SeedBooking(cancelled)
	_, _, err = svc.Assign(ctx, cancelled.ID, 42)
	assert.True(t, domain.IsInvalidTransition(err))

	_, _, err = svc.Assign(ctx, uuid.New(), 42)
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)

	taken := seedBooking(store, domain.BookingAgent)
	_, _, err = svc.Assign(ctx, taken.ID, 42)
	require.NoError(t, err)
	_, _, err = svc.Assign(ctx, taken.ID, 43)
	assert.ErrorIs(t, err, domain.ErrAlreadyAssigned)

	_, err = svc.GetCommission(ctx, direct.ID)
	assert.ErrorIs(t, err, domain.ErrCommissionNotFound)
}

func TestService_ConcurrentAssignHasOneWinner(t *testing.T) {
	svc, store, rec := newService(t)
	b := seedBooking(store, domain.BookingAgent)

	const agents = 16

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []int64
		losers  int
	)

	for i := 1; i <= agents; i++ {
		wg.Add(1)
		go func(agentID int64) {
			defer wg.Done()

			_, _, err := svc.Assign(context.Background(), b.ID, agentID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, agentID)
			case errors.Is(err, domain.ErrAlreadyAssigned):
				losers++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i))
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, agents-1, losers)

	c, err := svc.GetCommission(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], c.AgentID)
	assert.Equal(t, 1, rec.Count(domain.EventCommissionCreated))
}

func TestService_Confirm(t *testing.T) {
	svc, store, rec := newService(t)
	ctx := context.Background()
	b := seedBooking(store, domain.BookingAgent)

	_, err := svc.Confirm(ctx, b.ID, 42)
	assert.ErrorIs(t, err, domain.ErrNotAssignedAgent)

	_, _, err = svc.Assign(ctx, b.ID, 42)
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, b.ID, 43)
	assert.ErrorIs(t, err, domain.ErrNotAssignedAgent)

	got, err := svc.Confirm(ctx, b.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, got.Status)
	assert.Equal(t, domain.PaymentPending, got.PaymentStatus)
	require.NotNil(t, got.ConfirmedAt)

	again, err := svc.Confirm(ctx, b.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, again.Status)
	assert.Equal(t, 1, rec.Count(domain.EventBookingConfirmed))

	direct := seedBooking(store, domain.BookingDirect)
	_, err = svc.Confirm(ctx, direct.ID, 42)
	assert.True(t, domain.IsInvalidTransition(err))
}

func TestService_ConfirmCreatesMissingCommission(t *testing.T) {
	svc, store, rec := newService(t)
	ctx := context.Background()

	agentID := int64(42)
	b := seedBooking(store, domain.BookingAgent)
	b.AgentID = &agentID
	store.SeedBooking(b)

	_, err := svc.Confirm(ctx, b.ID, agentID)
	require.NoError(t, err)

	c, err := svc.GetCommission(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CommissionPending, c.Status)
	assert.Equal(t, 1, rec.Count(domain.EventCommissionCreated))
}

func TestService_SettleOnlyOnce(t *testing.T) {
	svc, store, rec := newService(t)
	ctx := context.Background()
	b := seedBooking(store, domain.BookingAgent)

	_, _, err := svc.Assign(ctx, b.ID, 42)
	require.NoError(t, err)

	c, err := svc.Settle(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, c, "unpaid bookings are not settled")

	paid, err := store.Repos().Bookings().Get(ctx, b.ID)
	require.NoError(t, err)
	paid.Status = domain.StatusConfirmed
	paid.PaymentStatus = domain.PaymentPaid
	store.SeedBooking(*paid)

	c, err = svc.Settle(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, domain.CommissionPaid, c.Status)
	assert.Equal(t, now, *c.PaidAt)

	c, err = svc.Settle(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, c)

	stored, err := svc.GetCommission(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CommissionPaid, stored.Status)
	assert.Equal(t, 1, rec.Count(domain.EventCommissionPaid))
}

func TestService_SettleTxSkipsDirect(t *testing.T) {
	svc, store, _ := newService(t)
	b := seedBooking(store, domain.BookingDirect)
	b.PaymentStatus = domain.PaymentPaid

	err := store.Do(context.Background(), func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		c, err := svc.SettleTx(ctx, tx, &b, now)
		assert.Nil(t, c)
		return err
	})
	require.NoError(t, err)
}
