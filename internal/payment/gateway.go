// Package payment defines the boundary to the external payment processor.
//
// Adapters return ErrResourceMissing when the processor does not know an
// object and *domain.PaymentGatewayError for every other failure, so callers
// never see provider specific error types.
package payment

import (
	"context"
	"errors"
)

var ErrResourceMissing = errors.New("payment: no such processor object")

// Raw processor statuses the core reacts to. Anything else is reported as is.
const (
	SessionPaymentPaid = "paid"
	SessionExpired     = "expired"
	IntentSucceeded    = "succeeded"
	IntentCanceled     = "canceled"
	RefundSucceeded    = "succeeded"
	RefundPending      = "pending"
)

type CheckoutRequest struct {
	AmountMinor    int64
	Currency       string
	Description    string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

type CheckoutSession struct {
	ID  string
	URL string
}

type IntentRequest struct {
	AmountMinor    int64
	Currency       string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// Session is a retrieved checkout session. IntentID is empty when the processor
// has not attached a payment intent.
type Session struct {
	ID            string
	Status        string
	PaymentStatus string
	IntentID      string
}

func (s Session) Paid() bool {
	return s.PaymentStatus == SessionPaymentPaid
}

// Failed reports that the session can never be paid.
func (s Session) Failed() bool {
	return s.Status == SessionExpired
}

// Open reports that the session may still be paid.
func (s Session) Open() bool {
	return !s.Paid() && !s.Failed()
}

type IntentState struct {
	ID     string
	Status string
}

func (i IntentState) Succeeded() bool {
	return i.Status == IntentSucceeded
}

func (i IntentState) Failed() bool {
	return i.Status == IntentCanceled
}

func (i IntentState) Open() bool {
	return !i.Succeeded() && !i.Failed()
}

type Refund struct {
	ID     string
	Status string
}

// Confirmed reports that the processor has acknowledged the refund as done.
func (r Refund) Confirmed() bool {
	return r.Status == RefundSucceeded
}

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error)
	RetrieveSession(ctx context.Context, id string) (Session, error)
	RetrieveIntent(ctx context.Context, id string) (IntentState, error)
	Refund(ctx context.Context, intentID string) (Refund, error)
	// ExpireCheckoutSession closes an open session so it can no longer be paid.
	// Expiring an already expired session is not an error.
	ExpireCheckoutSession(ctx context.Context, id string) error
	// CancelPaymentIntent cancels an intent that has not succeeded.
	// Cancelling an already canceled intent is not an error.
	CancelPaymentIntent(ctx context.Context, id string) error
}
