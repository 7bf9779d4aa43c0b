package mockgw

import (
	"context"
	"errors"
	"testing"

	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateway_CheckoutLifecycle(t *testing.T) {
	ctx := context.Background()
	g := New()

	cs, err := g.CreateCheckoutSession(ctx, payment.CheckoutRequest{AmountMinor: 12000, Currency: "usd"})
	require.NoError(t, err)
	assert.Contains(t, cs.URL, cs.ID)

	s, err := g.RetrieveSession(ctx, cs.ID)
	require.NoError(t, err)
	assert.False(t, s.Paid())
	assert.Empty(t, s.IntentID)

	intentID := g.PaySession(cs.ID)
	require.NotEmpty(t, intentID)

	s, err = g.RetrieveSession(ctx, cs.ID)
	require.NoError(t, err)
	assert.True(t, s.Paid())
	assert.Equal(t, intentID, s.IntentID)

	r, err := g.Refund(ctx, intentID)
	require.NoError(t, err)
	assert.True(t, r.Confirmed())
	assert.Equal(t, 1, g.Refunds(intentID))

	_, err = g.Refund(ctx, intentID)
	assert.ErrorIs(t, err, ErrAlreadyRefunded)
	assert.Equal(t, 1, g.Refunds(intentID))
}

func TestGateway_IdempotencyKeyReusesObject(t *testing.T) {
	ctx := context.Background()
	g := New()

	req := payment.IntentRequest{AmountMinor: 50, Currency: "usd", IdempotencyKey: "k1"}
	a, err := g.CreatePaymentIntent(ctx, req)
	require.NoError(t, err)
	b, err := g.CreatePaymentIntent(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
}

func TestGateway_RefundUnknownIsMissing(t *testing.T) {
	_, err := New().Refund(context.Background(), "cs_mock_1")
	assert.ErrorIs(t, err, payment.ErrResourceMissing)
}

func TestGateway_Unavailable(t *testing.T) {
	g := New()
	g.SetUnavailable(errors.New("dial tcp: timeout"))

	_, err := g.RetrieveIntent(context.Background(), "pi_1")
	assert.True(t, domain.IsPaymentGateway(err))
}

func TestGateway_AutoCapture(t *testing.T) {
	ctx := context.Background()
	g := New(WithAutoCapture())

	cs, err := g.CreateCheckoutSession(ctx, payment.CheckoutRequest{AmountMinor: 100, Currency: "usd"})
	require.NoError(t, err)
	s, err := g.RetrieveSession(ctx, cs.ID)
	require.NoError(t, err)
	assert.True(t, s.Paid())

	pi, err := g.CreatePaymentIntent(ctx, payment.IntentRequest{AmountMinor: 100, Currency: "usd"})
	require.NoError(t, err)
	st, err := g.RetrieveIntent(ctx, pi.ID)
	require.NoError(t, err)
	assert.True(t, st.Succeeded())
}

func TestGateway_ExpireAndCancel(t *testing.T) {
	ctx := context.Background()
	g := New()

	open, err := g.CreateCheckoutSession(ctx, payment.CheckoutRequest{AmountMinor: 100, Currency: "usd"})
	require.NoError(t, err)
	require.NoError(t, g.ExpireCheckoutSession(ctx, open.ID))
	require.NoError(t, g.ExpireCheckoutSession(ctx, open.ID))
	assert.Empty(t, g.PaySession(open.ID))

	s, err := g.RetrieveSession(ctx, open.ID)
	require.NoError(t, err)
	assert.True(t, s.Failed())

	paid, err := g.CreateCheckoutSession(ctx, payment.CheckoutRequest{AmountMinor: 100, Currency: "usd"})
	require.NoError(t, err)
	g.PaySession(paid.ID)
	assert.True(t, domain.IsPaymentGateway(g.ExpireCheckoutSession(ctx, paid.ID)))

	pi, err := g.CreatePaymentIntent(ctx, payment.IntentRequest{AmountMinor: 100, Currency: "usd"})
	require.NoError(t, err)
	require.NoError(t, g.CancelPaymentIntent(ctx, pi.ID))
	g.SucceedIntent(pi.ID)

	st, err := g.RetrieveIntent(ctx, pi.ID)
	require.NoError(t, err)
	assert.True(t, st.Failed())

	assert.ErrorIs(t, g.CancelPaymentIntent(ctx, "pi_unknown"), payment.ErrResourceMissing)
}
