package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/sony/gobreaker"
)

type BreakerConfig struct {
	// Timeout bounds every processor call.
	Timeout time.Duration
	// MaxFailures consecutive gateway failures open the breaker.
	MaxFailures uint32
	// OpenFor is how long the breaker stays open before a trial call.
	OpenFor time.Duration
}

// Guarded wraps a Gateway with a per call timeout and a circuit breaker.
// Only unavailability counts against the breaker: a processor saying an
// object does not exist is a normal answer.
type Guarded struct {
	next    Gateway
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

var _ Gateway = (*Guarded)(nil)

func NewGuarded(next Gateway, cfg BreakerConfig, logger *slog.Logger) *Guarded {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: cfg.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsPaymentGateway(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Guarded{next: next, cb: cb, timeout: cfg.Timeout}
}

func (g *Guarded) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	return guard(ctx, g, "create checkout session", func(ctx context.Context) (CheckoutSession, error) {
		return g.next.CreateCheckoutSession(ctx, req)
	})
}

func (g *Guarded) CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	return guard(ctx, g, "create payment intent", func(ctx context.Context) (Intent, error) {
		return g.next.CreatePaymentIntent(ctx, req)
	})
}

func (g *Guarded) RetrieveSession(ctx context.Context, id string) (Session, error) {
	return guard(ctx, g, "retrieve checkout session", func(ctx context.Context) (Session, error) {
		return g.next.RetrieveSession(ctx, id)
	})
}

func (g *Guarded) RetrieveIntent(ctx context.Context, id string) (IntentState, error) {
	return guard(ctx, g, "retrieve payment intent", func(ctx context.Context) (IntentState, error) {
		return g.next.RetrieveIntent(ctx, id)
	})
}

func (g *Guarded) Refund(ctx context.Context, intentID string) (Refund, error) {
	return guard(ctx, g, "refund", func(ctx context.Context) (Refund, error) {
		return g.next.Refund(ctx, intentID)
	})
}

func (g *Guarded) ExpireCheckoutSession(ctx context.Context, id string) error {
	_, err := guard(ctx, g, "expire checkout session", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.next.ExpireCheckoutSession(ctx, id)
	})
	return err
}

func (g *Guarded) CancelPaymentIntent(ctx context.Context, id string) error {
	_, err := guard(ctx, g, "cancel payment intent", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.next.CancelPaymentIntent(ctx, id)
	})
	return err
}

func guard[T any](ctx context.Context, g *Guarded, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	res, err := g.cb.Execute(func() (any, error) {
		v, err := fn(ctx)
		if err != nil && !errors.Is(err, ErrResourceMissing) && !domain.IsPaymentGateway(err) {
			err = &domain.PaymentGatewayError{Op: op, Err: err}
		}
		return v, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, &domain.PaymentGatewayError{Op: op, Err: err}
		}
		return zero, err
	}

	return res.(T), nil
}
