package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirinyoku/tripgo/internal/domain"
)

// ErrNoCapturedIntent means a checkout session never produced a refundable intent.
var ErrNoCapturedIntent = errors.New("payment: checkout session has no payment intent")

// RefundReference refunds whatever a booking was paid through. proof is the
// capture proof recorded at confirmation, usually the payment intent id.
//
// Intents are refunded directly. Sessions are refunded through the recorded
// intent when one is known, otherwise through the intent resolved from the
// session. References of unknown origin are tried as intents first and
// resolved as sessions when the processor does not know such an intent.
func RefundReference(ctx context.Context, gw Gateway, ref domain.PaymentReference, proof string) (Refund, error) {
	const op = "payment.RefundReference"

	switch ref.Kind {
	case domain.PaymentRefIntent:
		return gw.Refund(ctx, ref.ID)

	case domain.PaymentRefCheckoutSession:
		if proof != "" && proof != ref.ID && strings.HasPrefix(proof, "pi_") {
			return gw.Refund(ctx, proof)
		}
		return refundSession(ctx, gw, ref.ID)

	case domain.PaymentRefUnknown:
		r, err := gw.Refund(ctx, ref.ID)
		if errors.Is(err, ErrResourceMissing) {
			return refundSession(ctx, gw, ref.ID)
		}
		return r, err
	}

	return Refund{}, fmt.Errorf("%s: booking has no payment reference", op)
}

func refundSession(ctx context.Context, gw Gateway, sessionID string) (Refund, error) {
	const op = "payment.refundSession"

	s, err := gw.RetrieveSession(ctx, sessionID)
	if err != nil {
		return Refund{}, fmt.Errorf("%s:%w", op, err)
	}
	if s.IntentID == "" {
		return Refund{}, fmt.Errorf("%s: %s: %w", op, sessionID, ErrNoCapturedIntent)
	}

	return gw.Refund(ctx, s.IntentID)
}
