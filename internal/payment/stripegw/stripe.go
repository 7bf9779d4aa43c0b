// Package stripegw adapts the Stripe API to payment.Gateway.
package stripegw

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/payment"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type Config struct {
	SecretKey string
	// HTTPTimeout bounds a single API round trip.
	HTTPTimeout time.Duration
}

type Gateway struct {
	sc *client.API
}

var _ payment.Gateway = (*Gateway)(nil)

// New builds a client with network retries disabled: retrying a processor
// call is the caller's decision.
func New(cfg Config) *Gateway {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.HTTPTimeout},
		MaxNetworkRetries: stripe.Int64(0),
	})

	return &Gateway{
		sc: client.New(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend}),
	}
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	const op = "create checkout session"

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountMinor),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
			},
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	s, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return payment.CheckoutSession{}, mapErr(op, err)
	}

	return payment.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *Gateway) CreatePaymentIntent(ctx context.Context, req payment.IntentRequest) (payment.Intent, error) {
	const op = "create payment intent"

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.AmountMinor),
		Currency:    stripe.String(req.Currency),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.sc.PaymentIntents.New(params)
	if err != nil {
		return payment.Intent{}, mapErr(op, err)
	}

	return payment.Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

func (g *Gateway) RetrieveSession(ctx context.Context, id string) (payment.Session, error) {
	const op = "retrieve checkout session"

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	s, err := g.sc.CheckoutSessions.Get(id, params)
	if err != nil {
		return payment.Session{}, mapErr(op, err)
	}

	out := payment.Session{
		ID:            s.ID,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
	}
	if s.PaymentIntent != nil {
		out.IntentID = s.PaymentIntent.ID
	}

	return out, nil
}

func (g *Gateway) RetrieveIntent(ctx context.Context, id string) (payment.IntentState, error) {
	const op = "retrieve payment intent"

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.sc.PaymentIntents.Get(id, params)
	if err != nil {
		return payment.IntentState{}, mapErr(op, err)
	}

	return payment.IntentState{ID: pi.ID, Status: string(pi.Status)}, nil
}

func (g *Gateway) Refund(ctx context.Context, intentID string) (payment.Refund, error) {
	const op = "refund"

	params := &stripe.RefundParams{PaymentIntent: stripe.String(intentID)}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + intentID)

	r, err := g.sc.Refunds.New(params)
	if err != nil {
		return payment.Refund{}, mapErr(op, err)
	}

	return payment.Refund{ID: r.ID, Status: string(r.Status)}, nil
}

func (g *Gateway) ExpireCheckoutSession(ctx context.Context, id string) error {
	const op = "expire checkout session"

	s, err := g.RetrieveSession(ctx, id)
	if err != nil {
		return err
	}
	if s.Failed() {
		return nil
	}

	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	if _, err := g.sc.CheckoutSessions.Expire(id, params); err != nil {
		return mapErr(op, err)
	}

	return nil
}

func (g *Gateway) CancelPaymentIntent(ctx context.Context, id string) error {
	const op = "cancel payment intent"

	pi, err := g.RetrieveIntent(ctx, id)
	if err != nil {
		return err
	}
	if pi.Failed() {
		return nil
	}

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	if _, err := g.sc.PaymentIntents.Cancel(id, params); err != nil {
		return mapErr(op, err)
	}

	return nil
}

func mapErr(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.Code == stripe.ErrorCodeResourceMissing {
		return payment.ErrResourceMissing
	}

	return &domain.PaymentGatewayError{Op: op, Err: err}
}
