package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/events"
	"github.com/kirinyoku/tripgo/internal/repository/memory"
	redisrepo "github.com/kirinyoku/tripgo/internal/repository/redis"
	"github.com/kirinyoku/tripgo/internal/service/catalog"
	"github.com/kirinyoku/tripgo/internal/service/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Allow(ctx context.Context, id string) (redisrepo.Decision, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(redisrepo.Decision), args.Error(1)
}

type fixture struct {
	svc      *Service
	store    *memory.Store
	recorder *events.Recorder
	now      time.Time
}

func newFixture(t *testing.T, limiter Limiter) *fixture {
	t.Helper()

	store := memory.NewStore()
	store.SeedDestination(domain.Destination{
		ID:                    1,
		Name:                  "Lisbon",
		Category:              domain.CategoryStandard,
		PricePerTravelerCents: 6000,
		Currency:              "usd",
		Capacity:              20,
		MinTravelers:          1,
		MaxTravelers:          10,
		Active:                true,
		Blackouts: []domain.DateRange{
			{From: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC)},
		},
	})
	store.SeedDestination(domain.Destination{
		ID:                    2,
		Name:                  "Antarctica Expedition",
		Category:              domain.CategoryPremium,
		PricePerTravelerCents: 900000,
		Currency:              "usd",
		Capacity:              8,
		MinTravelers:          1,
		Active:                true,
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := &events.Recorder{}
	f := &fixture{store: store, recorder: recorder, now: today}

	policy := routing.New(routing.Config{})
	destinations := catalog.New(store, nil, policy, logger, catalog.Config{Now: f.clock})

	f.svc = New(store, destinations, policy, limiter, events.NewEmitter(recorder, logger, time.Second), logger, Config{
		PendingTTL: 24 * time.Hour,
		Now:        f.clock,
	})

	return f
}

func (f *fixture) clock() time.Time { return f.now }

func validInput() CreateInput {
	ret := today.AddDate(0, 0, 17)
	return CreateInput{
		DestinationID: 1,
		TravelDate:    today.AddDate(0, 0, 10),
		ReturnDate:    &ret,
		Travelers:     2,
		ContactEmail:  "ana@example.com",
	}
}

func TestService_CreateDirect(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.Create(context.Background(), 7, validInput())
	require.NoError(t, err)

	b := res.Booking
	assert.Equal(t, domain.BookingDirect, b.Type)
	assert.Equal(t, domain.StatusPending, b.Status)
	assert.Equal(t, domain.PaymentPending, b.PaymentStatus)
	assert.Equal(t, int64(7), b.CustomerID)
	assert.Equal(t, domain.Money{Amount: 12000, Currency: "usd"}, b.TotalPrice)
	assert.Equal(t, time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC), b.TravelDate)
	assert.Regexp(t, `^TRV-[A-Z2-9]{8}$`, b.Reference)
	assert.True(t, res.RequiresPaymentNow)
	assert.True(t, res.Decision.Available)

	stored, err := f.svc.GetByReference(context.Background(), b.Reference)
	require.NoError(t, err)
	assert.Equal(t, b.ID, stored.ID)

	evs := f.recorder.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventBookingCreated, evs[0].Type)
	require.NotNil(t, evs[0].Amount)
	assert.Equal(t, int64(12000), evs[0].Amount.Amount)
}

func TestService_CreateRoutesToAgent(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name string
		in   func(in *CreateInput)
	}{
		{"large party", func(in *CreateInput) { in.Travelers = 9 }},
		{"premium destination", func(in *CreateInput) { in.DestinationID = 2 }},
		{"long stay", func(in *CreateInput) {
			ret := in.TravelDate.AddDate(0, 0, 30)
			in.ReturnDate = &ret
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.in(&in)

			res, err := f.svc.Create(context.Background(), 7, in)
			require.NoError(t, err)
			assert.Equal(t, domain.BookingAgent, res.Booking.Type)
			assert.False(t, res.RequiresPaymentNow)
			assert.Nil(t, res.Booking.AgentID)
		})
	}
}

func TestService_CreateUnavailable(t *testing.T) {
	f := newFixture(t, nil)

	in := validInput()
	in.TravelDate = time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC)
	in.ReturnDate = nil

	_, err := f.svc.Create(context.Background(), 7, in)

	var ue *UnavailableError
	require.ErrorAs(t, err, &ue)
	assert.False(t, ue.Decision.Available)
	assert.Equal(t, "requested dates fall within a blackout period", ue.Decision.Reason)
	assert.NotEmpty(t, ue.Decision.SuggestedDates)
	assert.Zero(t, f.recorder.Count(domain.EventBookingCreated))
}

func TestService_CreateValidation(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name  string
		in    func(in *CreateInput)
		field string
	}{
		{"zero travelers", func(in *CreateInput) { in.Travelers = 0 }, "travelers"},
		{"bad email", func(in *CreateInput) { in.ContactEmail = "not-an-email" }, "contact_email"},
		{"past date", func(in *CreateInput) { in.TravelDate = today.AddDate(0, 0, -1); in.ReturnDate = nil }, "travel_date"},
		{"return before travel", func(in *CreateInput) {
			ret := in.TravelDate.AddDate(0, 0, -2)
			in.ReturnDate = &ret
		}, "return_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.in(&in)

			_, err := f.svc.Create(context.Background(), 7, in)

			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestService_CreateUnknownDestination(t *testing.T) {
	f := newFixture(t, nil)

	in := validInput()
	in.DestinationID = 99

	_, err := f.svc.Create(context.Background(), 7, in)
	assert.ErrorIs(t, err, domain.ErrDestinationNotFound)
}

func TestService_CreateRateLimited(t *testing.T) {
	lim := &mockLimiter{}
	lim.On("Allow", mock.Anything, "7").Return(redisrepo.Decision{Allowed: false, Current: 5, RetryAfter: 30 * time.Second}, nil).Once()

	f := newFixture(t, lim)

	_, err := f.svc.Create(context.Background(), 7, validInput())

	var rle *RateLimitedError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 30*time.Second, rle.RetryAfter)
	lim.AssertExpectations(t)
}

func TestService_CreateLimiterFailureFailsOpen(t *testing.T) {
	lim := &mockLimiter{}
	lim.On("Allow", mock.Anything, "7").Return(redisrepo.Decision{}, errors.New("redis down")).Once()

	f := newFixture(t, lim)

	_, err := f.svc.Create(context.Background(), 7, validInput())
	require.NoError(t, err)
	lim.AssertExpectations(t)
}

func TestService_GetUnknownBooking(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)

	_, err = f.svc.GetByReference(context.Background(), "TRV-NOPE")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestService_Update(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, 7, validInput())
	require.NoError(t, err)

	travelers := 4
	phone := "+351 900 000 000"
	b, err := f.svc.Update(ctx, res.Booking.ID, UpdateInput{
		Travelers:    &travelers,
		ContactPhone: &phone,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, b.Travelers)
	assert.Equal(t, phone, b.ContactPhone)
	assert.Equal(t, res.Booking.TotalPrice, b.TotalPrice)
	assert.Equal(t, domain.BookingDirect, b.Type)
	assert.Equal(t, 1, f.recorder.Count(domain.EventBookingUpdated))
}

func TestService_UpdateRechecksAvailability(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, 7, validInput())
	require.NoError(t, err)

	blackout := time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)
	ret := blackout.AddDate(0, 0, 2)
	_, err = f.svc.Update(ctx, res.Booking.ID, UpdateInput{TravelDate: &blackout, ReturnDate: &ret})

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "travel_date", ve.Field)

	stored, err := f.svc.Get(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Booking.TravelDate, stored.TravelDate)
	assert.Zero(t, f.recorder.Count(domain.EventBookingUpdated))
}

func TestService_TerminalBookingIsImmutable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, 7, validInput())
	require.NoError(t, err)

	f.now = today.Add(48 * time.Hour)
	n, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	email := "other@example.com"
	_, err = f.svc.Update(ctx, res.Booking.ID, UpdateInput{ContactEmail: &email})
	assert.True(t, domain.IsInvalidTransition(err))

	_, err = f.svc.Finalize(ctx, res.Booking.ID, "late note")
	assert.True(t, domain.IsInvalidTransition(err))

	_, err = f.svc.Complete(ctx, res.Booking.ID)
	assert.True(t, domain.IsInvalidTransition(err))
}

func TestService_CompleteAndFinalize(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, 7, validInput())
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, res.Booking.ID)
	require.True(t, domain.IsInvalidTransition(err), "pending bookings cannot complete")

	b, err := f.svc.Finalize(ctx, res.Booking.ID, "window seats requested")
	require.NoError(t, err)
	assert.Equal(t, "window seats requested", b.Notes)
	assert.Equal(t, domain.StatusPending, b.Status)

	_, err = f.svc.Finalize(ctx, res.Booking.ID, "  ")
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "notes", ve.Field)

	paid := *b
	paid.Status = domain.StatusConfirmed
	paid.PaymentStatus = domain.PaymentPaid
	f.store.SeedBooking(paid)

	b, err = f.svc.Complete(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, b.Status)
	assert.NotNil(t, b.CompletedAt)
	assert.Equal(t, 1, f.recorder.Count(domain.EventBookingCompleted))
	assert.Equal(t, 1, f.recorder.Count(domain.EventBookingFinalized))
}

func TestService_ExpireStale(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	stale, err := f.svc.Create(ctx, 7, validInput())
	require.NoError(t, err)

	paid, err := f.svc.Create(ctx, 8, validInput())
	require.NoError(t, err)
	settled := *paid.Booking
	settled.Status = domain.StatusConfirmed
	settled.PaymentStatus = domain.PaymentPaid
	f.store.SeedBooking(settled)

	f.now = today.Add(12 * time.Hour)
	fresh, err := f.svc.Create(ctx, 9, validInput())
	require.NoError(t, err)

	f.now = today.Add(25 * time.Hour)
	n, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b, err := f.svc.Get(ctx, stale.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, b.Status)
	assert.Equal(t, domain.PaymentCancelled, b.PaymentStatus)

	b, err = f.svc.Get(ctx, fresh.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, b.Status)

	b, err = f.svc.Get(ctx, paid.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, b.Status)

	assert.Equal(t, 1, f.recorder.Count(domain.EventBookingExpired))
}
