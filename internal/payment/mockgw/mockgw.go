// Package mockgw is an in-memory payment processor. It backs local runs with
// PAYMENT_PROVIDER=mock and lets tests script processor outcomes.
package mockgw

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/payment"
)

var ErrAlreadyRefunded = errors.New("mockgw: charge already refunded")

type session struct {
	id            string
	amount        int64
	currency      string
	status        string
	paymentStatus string
	intentID      string
	metadata      map[string]string
}

type intent struct {
	id       string
	amount   int64
	currency string
	status   string
	metadata map[string]string
	refunded bool
}

type Option func(*Gateway)

// WithAutoCapture makes every new session and intent immediately paid.
func WithAutoCapture() Option {
	return func(g *Gateway) { g.autoCapture = true }
}

type Gateway struct {
	mu sync.Mutex

	seq         int
	sessions    map[string]*session
	intents     map[string]*intent
	idem        map[string]string
	autoCapture bool

	unavailable   error
	refundErr     error
	refundPending bool

	calls   map[string]int
	refunds map[string]int
}

var _ payment.Gateway = (*Gateway)(nil)

func New(opts ...Option) *Gateway {
	g := &Gateway{
		sessions: make(map[string]*session),
		intents:  make(map[string]*intent),
		idem:     make(map[string]string),
		calls:    make(map[string]int),
		refunds:  make(map[string]int),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_mock_%d", prefix, g.seq)
}

func (g *Gateway) enter(op string) error {
	g.calls[op]++
	if g.unavailable != nil {
		return &domain.PaymentGatewayError{Op: op, Err: g.unavailable}
	}
	return nil
}

func (g *Gateway) CreateCheckoutSession(_ context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.enter("create checkout session"); err != nil {
		return payment.CheckoutSession{}, err
	}

	if id, ok := g.idem[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return payment.CheckoutSession{ID: id, URL: "https://checkout.mock/" + id}, nil
	}

	s := &session{
		id:            g.nextID("cs"),
		amount:        req.AmountMinor,
		currency:      req.Currency,
		status:        "open",
		paymentStatus: "unpaid",
		metadata:      req.Metadata,
	}
	g.sessions[s.id] = s
	if req.IdempotencyKey != "" {
		g.idem[req.IdempotencyKey] = s.id
	}

	if g.autoCapture {
		g.paySessionLocked(s)
	}

	return payment.CheckoutSession{ID: s.id, URL: "https://checkout.mock/" + s.id}, nil
}

func (g *Gateway) CreatePaymentIntent(_ context.Context, req payment.IntentRequest) (payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.enter("create payment intent"); err != nil {
		return payment.Intent{}, err
	}

	if id, ok := g.idem[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		pi := g.intents[id]
		return payment.Intent{ID: pi.id, ClientSecret: pi.id + "_secret", Status: pi.status}, nil
	}

	pi := &intent{
		id:       g.nextID("pi"),
		amount:   req.AmountMinor,
		currency: req.Currency,
		status:   "requires_payment_method",
		metadata: req.Metadata,
	}
	if g.autoCapture {
		pi.status = payment.IntentSucceeded
	}
	g.intents[pi.id] = pi
	if req.IdempotencyKey != "" {
		g.idem[req.IdempotencyKey] = pi.id
	}

	return payment.Intent{ID: pi.id, ClientSecret: pi.id + "_secret", Status: pi.status}, nil
}

func (g *Gateway) RetrieveSession(_ context.Context, id string) (payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.enter("retrieve checkout session"); err != nil {
		return payment.Session{}, err
	}

	s, ok := g.sessions[id]
	if !ok {
		return payment.Session{}, payment.ErrResourceMissing
	}

	return payment.Session{ID: s.id, Status: s.status, PaymentStatus: s.paymentStatus, IntentID: s.intentID}, nil
}

func (g *Gateway) RetrieveIntent(_ context.Context, id string) (payment.IntentState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.enter("retrieve payment intent"); err != nil {
		return payment.IntentState{}, err
	}

	pi, ok := g.intents[id]
	if !ok {
		return payment.IntentState{}, payment.ErrResourceMissing
	}

	return payment.IntentState{ID: pi.id, Status: pi.status}, nil
}

func (g *Gateway) Refund(_ context.Context, intentID string) (payment.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.enter("refund"); err != nil {
		return payment.Refund{}, err
	}
	if g.refundErr != nil {
		return payment.Refund{}, &domain.PaymentGatewayError{Op: "refund", Err: g.refundErr}
	}

	pi, ok := g.intents[intentID]
	if !ok {
		return payment.Refund{}, payment.ErrResourceMissing
	}
	if pi.status != payment.IntentSucceeded {
		return payment.Refund{}, &domain.PaymentGatewayError{Op: "refund", Err: fmt.Errorf("intent %s is %s", pi.id, pi.status)}
	}
	if pi.refunded {
		return payment.Refund{}, &domain.PaymentGatewayError{Op: "refund", Err: ErrAlreadyRefunded}
	}

	pi.refunded = true
	g.refunds[intentID]++

	status := payment.RefundSucceeded
	if g.refundPending {
		status = payment.RefundPending
	}

	return payment.Refund{ID: g.nextID("re"), Status: status}, nil
}

func (g *Gateway) ExpireCheckoutSession(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.enter("expire checkout session"); err != nil {
		return err
	}

	s, ok := g.sessions[id]
	if !ok {
		return payment.ErrResourceMissing
	}
	if s.paymentStatus == payment.SessionPaymentPaid {
		return &domain.PaymentGatewayError{Op: "expire checkout session", Err: fmt.Errorf("session %s is complete", id)}
	}

	s.status = payment.SessionExpired
	return nil
}

func (g *Gateway) CancelPaymentIntent(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.enter("cancel payment intent"); err != nil {
		return err
	}

	pi, ok := g.intents[id]
	if !ok {
		return payment.ErrResourceMissing
	}
	if pi.status == payment.IntentSucceeded {
		return &domain.PaymentGatewayError{Op: "cancel payment intent", Err: fmt.Errorf("intent %s has succeeded", id)}
	}

	pi.status = payment.IntentCanceled
	return nil
}

// PaySession marks a session paid and attaches a succeeded intent to it.
func (g *Gateway) PaySession(id string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[id]
	if !ok || s.status == payment.SessionExpired {
		return ""
	}
	g.paySessionLocked(s)
	return s.intentID
}

func (g *Gateway) paySessionLocked(s *session) {
	if s.intentID == "" {
		pi := &intent{
			id:       g.nextID("pi"),
			amount:   s.amount,
			currency: s.currency,
			metadata: s.metadata,
		}
		g.intents[pi.id] = pi
		s.intentID = pi.id
	}
	g.intents[s.intentID].status = payment.IntentSucceeded
	s.status = "complete"
	s.paymentStatus = payment.SessionPaymentPaid
}

// DetachSessionIntent hides the session's intent id, as for sessions whose
// intent the processor does not expose.
func (g *Gateway) DetachSessionIntent(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if s, ok := g.sessions[id]; ok {
		s.intentID = ""
	}
}

func (g *Gateway) ExpireSession(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if s, ok := g.sessions[id]; ok {
		s.status = payment.SessionExpired
	}
}

// SucceedIntent captures an intent unless it was canceled.
func (g *Gateway) SucceedIntent(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if pi, ok := g.intents[id]; ok && pi.status != payment.IntentCanceled {
		pi.status = payment.IntentSucceeded
	}
}

func (g *Gateway) CancelIntent(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if pi, ok := g.intents[id]; ok {
		pi.status = payment.IntentCanceled
	}
}

// SetUnavailable makes every call fail as if the processor were unreachable.
// A nil err restores normal operation.
func (g *Gateway) SetUnavailable(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unavailable = err
}

// FailRefunds makes refunds fail with err until called with nil.
func (g *Gateway) FailRefunds(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundErr = err
}

// PendRefunds makes successful refunds report a pending status.
func (g *Gateway) PendRefunds(pending bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundPending = pending
}

// Refunds returns how many refunds were issued against intentID.
func (g *Gateway) Refunds(intentID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunds[intentID]
}

// Calls returns how many times op was attempted.
func (g *Gateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// Amount returns the charged amount of a session or intent.
func (g *Gateway) Amount(id string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	if s, ok := g.sessions[id]; ok {
		return s.amount
	}
	if pi, ok := g.intents[id]; ok {
		return pi.amount
	}
	return 0
}
