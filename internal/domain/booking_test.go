package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newBooking(t BookingType) *Booking {
	return &Booking{
		ID:            uuid.New(),
		Reference:     NewReference(),
		DestinationID: 1,
		CustomerID:    7,
		TravelDate:    Day(now.AddDate(0, 1, 0)),
		Travelers:     2,
		TotalPrice:    Money{Amount: 12000, Currency: "usd"},
		Type:          t,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func agentID(id int64) *int64 { return &id }

func TestNewReference(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		ref := NewReference()
		assert.True(t, strings.HasPrefix(ref, "TRV-"))
		assert.Len(t, ref, 12)
		_, dup := seen[ref]
		assert.False(t, dup)
		seen[ref] = struct{}{}
	}
}

func TestBooking_CanTransitionTo(t *testing.T) {
	testCases := []struct {
		from    BookingStatus
		to      BookingStatus
		allowed bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelled, StatusCompleted, false},
	}

	for _, tc := range testCases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			b := newBooking(BookingDirect)
			b.Status = tc.from
			err := b.CanTransitionTo(tc.to)
			if tc.allowed {
				assert.NoError(t, err)
				return
			}

			var te *InvalidTransitionError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tc.from, te.From)
			assert.Equal(t, tc.to, te.To)
		})
	}
}

func TestBooking_ConfirmPayment_Direct(t *testing.T) {
	b := newBooking(BookingDirect)

	_, err := b.ConfirmPayment("pi_1", now)
	assert.True(t, IsValidation(err), "no payment in progress")

	require.NoError(t, b.AttachPayment(CheckoutSessionRef("cs_1"), 5, now))

	_, err = b.ConfirmPayment("", now)
	assert.True(t, IsValidation(err), "proof is required")
	assert.Equal(t, StatusPending, b.Status)

	changed, err := b.ConfirmPayment("pi_1", now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusConfirmed, b.Status)
	assert.Equal(t, PaymentPaid, b.PaymentStatus)
	assert.Equal(t, "pi_1", b.ChargeID)
	assert.NotNil(t, b.ConfirmedAt)

	changed, err = b.ConfirmPayment("pi_1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, now, *b.ConfirmedAt)
}

func TestBooking_ConfirmPayment_AgentRequiresAgentConfirmation(t *testing.T) {
	b := newBooking(BookingAgent)
	b.Payment = PaymentIntentRef("pi_9")

	_, err := b.ConfirmPayment("pi_9", now)
	assert.True(t, IsInvalidTransition(err))

	require.NoError(t, b.AssignAgent(3, now))
	_, err = b.ConfirmByAgent(3, now)
	require.NoError(t, err)

	changed, err := b.ConfirmPayment("pi_9", now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusConfirmed, b.Status)
	assert.Equal(t, PaymentPaid, b.PaymentStatus)
}

func TestBooking_ConfirmByAgent(t *testing.T) {
	direct := newBooking(BookingDirect)
	_, err := direct.ConfirmByAgent(3, now)
	assert.True(t, IsInvalidTransition(err))

	b := newBooking(BookingAgent)
	_, err = b.ConfirmByAgent(3, now)
	assert.ErrorIs(t, err, ErrNotAssignedAgent)

	require.NoError(t, b.AssignAgent(3, now))
	_, err = b.ConfirmByAgent(4, now)
	assert.ErrorIs(t, err, ErrNotAssignedAgent)

	changed, err := b.ConfirmByAgent(3, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, PaymentPending, b.PaymentStatus)

	changed, err = b.ConfirmByAgent(3, now)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestBooking_AssignAgent(t *testing.T) {
	direct := newBooking(BookingDirect)
	assert.True(t, IsValidation(direct.AssignAgent(3, now)))
	assert.Nil(t, direct.AgentID)

	b := newBooking(BookingAgent)
	require.NoError(t, b.AssignAgent(3, now))
	assert.ErrorIs(t, b.AssignAgent(4, now), ErrAlreadyAssigned)
	assert.Equal(t, int64(3), *b.AgentID)

	cancelled := newBooking(BookingAgent)
	cancelled.Status = StatusCancelled
	assert.True(t, IsInvalidTransition(cancelled.AssignAgent(3, now)))
}

func TestBooking_CanStartPayment(t *testing.T) {
	testCases := []struct {
		name    string
		prepare func(b *Booking)
		kind    PaymentRefKind
		check   func(t *testing.T, err error)
	}{
		{
			name:    "pending direct",
			prepare: func(b *Booking) {},
			kind:    PaymentRefCheckoutSession,
			check:   func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:    "already paid",
			prepare: func(b *Booking) { b.PaymentStatus = PaymentPaid },
			kind:    PaymentRefCheckoutSession,
			check:   func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrAlreadyPaid) },
		},
		{
			name:    "cancelled",
			prepare: func(b *Booking) { b.Status = StatusCancelled },
			kind:    PaymentRefIntent,
			check:   func(t *testing.T, err error) { assert.True(t, IsInvalidTransition(err)) },
		},
		{
			name: "agent not confirmed",
			prepare: func(b *Booking) {
				b.Type = BookingAgent
				b.AgentID = agentID(3)
			},
			kind:  PaymentRefIntent,
			check: func(t *testing.T, err error) { assert.True(t, IsInvalidTransition(err)) },
		},
		{
			name:    "style mismatch",
			prepare: func(b *Booking) { b.Payment = CheckoutSessionRef("cs_1") },
			kind:    PaymentRefIntent,
			check:   func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrPaymentStyleMismatch) },
		},
		{
			name:    "attempts exceeded",
			prepare: func(b *Booking) { b.PaymentAttempts = 5 },
			kind:    PaymentRefCheckoutSession,
			check:   func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrPaymentAttemptsExceeded) },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := newBooking(BookingDirect)
			tc.prepare(b)
			tc.check(t, b.CanStartPayment(tc.kind, 5))
		})
	}
}

func TestBooking_AttachPayment_ResetsFailed(t *testing.T) {
	b := newBooking(BookingDirect)
	require.NoError(t, b.AttachPayment(CheckoutSessionRef("cs_1"), 5, now))
	assert.True(t, b.MarkPaymentFailed(now))
	assert.Equal(t, PaymentFailed, b.PaymentStatus)

	require.NoError(t, b.AttachPayment(CheckoutSessionRef("cs_2"), 5, now))
	assert.Equal(t, PaymentPending, b.PaymentStatus)
	assert.Equal(t, "cs_2", b.Payment.ID)
	assert.Equal(t, 2, b.PaymentAttempts)
}

func TestBooking_TerminalImmutability(t *testing.T) {
	for _, status := range []BookingStatus{StatusCancelled, StatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			b := newBooking(BookingAgent)
			b.AgentID = agentID(3)
			b.Payment = PaymentIntentRef("pi_1")
			b.Status = status

			travelers := 4
			assert.Error(t, b.ApplyUpdate(BookingUpdate{Travelers: &travelers}, now))
			_, err := b.ConfirmByAgent(3, now)
			assert.Error(t, err)
			_, err = b.ConfirmPayment("pi_1", now)
			assert.Error(t, err)
			assert.Error(t, b.Complete(now))
			assert.Error(t, b.Cancel("again", false, now))
			assert.Error(t, b.Finalize("note", now))

			assert.Equal(t, status, b.Status)
			assert.Equal(t, PaymentPending, b.PaymentStatus)
			assert.Equal(t, 2, b.Travelers)
		})
	}
}

func TestBooking_ApplyUpdate(t *testing.T) {
	b := newBooking(BookingDirect)
	price := b.TotalPrice

	travelers := 5
	email := "new@example.com"
	ret := b.TravelDate.AddDate(0, 0, 3)
	require.NoError(t, b.ApplyUpdate(BookingUpdate{
		Travelers:    &travelers,
		ContactEmail: &email,
		ReturnDate:   &ret,
	}, now))

	assert.Equal(t, 5, b.Travelers)
	assert.Equal(t, email, b.ContactEmail)
	assert.Equal(t, ret, *b.ReturnDate)
	assert.Equal(t, price, b.TotalPrice)

	early := b.TravelDate.AddDate(0, 0, -1)
	assert.True(t, IsValidation(b.ApplyUpdate(BookingUpdate{ReturnDate: &early}, now)))

	zero := 0
	assert.True(t, IsValidation(b.ApplyUpdate(BookingUpdate{Travelers: &zero}, now)))
}

func TestBooking_Cancel(t *testing.T) {
	b := newBooking(BookingDirect)
	b.Payment = CheckoutSessionRef("cs_1")
	_, err := b.ConfirmPayment("pi_1", now)
	require.NoError(t, err)

	require.NoError(t, b.Cancel("changed mind", true, now))
	assert.Equal(t, StatusCancelled, b.Status)
	assert.Equal(t, PaymentRefunded, b.PaymentStatus)
	assert.Equal(t, "changed mind", b.CancellationReason)

	unpaid := newBooking(BookingDirect)
	require.NoError(t, unpaid.Cancel("changed mind", true, now))
	assert.Equal(t, PaymentPending, unpaid.PaymentStatus)
}

func TestBooking_Expire(t *testing.T) {
	b := newBooking(BookingDirect)
	require.NoError(t, b.Expire(now))
	assert.Equal(t, StatusCancelled, b.Status)
	assert.Equal(t, PaymentCancelled, b.PaymentStatus)

	paid := newBooking(BookingDirect)
	paid.PaymentStatus = PaymentPaid
	assert.True(t, IsInvalidTransition(paid.Expire(now)))
}

func TestBooking_Finalize(t *testing.T) {
	b := newBooking(BookingAgent)
	assert.True(t, IsValidation(b.Finalize("  ", now)))
	require.NoError(t, b.Finalize("visa checked", now))
	require.NoError(t, b.Finalize("hotel upgraded", now))
	assert.Equal(t, "visa checked\nhotel upgraded", b.Notes)
	assert.Equal(t, StatusPending, b.Status)
}

func TestCommissionFor(t *testing.T) {
	testCases := []struct {
		amount int64
		bps    int
		want   int64
	}{
		{12000, 1000, 1200},
		{12345, 1000, 1235},
		{12344, 1000, 1234},
		{999, 750, 75},
		{0, 1000, 0},
	}

	for _, tc := range testCases {
		got := CommissionFor(Money{Amount: tc.amount, Currency: "usd"}, tc.bps)
		assert.Equal(t, tc.want, got.Amount)
		assert.Equal(t, "usd", got.Currency)
	}
}

func TestMoney_MinorUnits(t *testing.T) {
	assert.Equal(t, int64(50), Money{Amount: 10}.MinorUnits(50))
	assert.Equal(t, int64(12000), Money{Amount: 12000}.MinorUnits(50))
}

func TestParsePaymentReference(t *testing.T) {
	assert.Equal(t, CheckoutSessionRef("cs_1"), ParsePaymentReference("checkout_session", "cs_1"))
	assert.Equal(t, PaymentIntentRef("pi_1"), ParsePaymentReference("", "pi_1"))
	assert.Equal(t, CheckoutSessionRef("cs_2"), ParsePaymentReference("bogus", "cs_2"))
	assert.Equal(t, PaymentRefUnknown, ParsePaymentReference("", "ch_1").Kind)
	assert.True(t, ParsePaymentReference("payment_intent", "").IsZero())
}
