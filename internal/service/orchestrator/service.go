// Package orchestrator drives payment for bookings: it opens hosted checkout
// sessions or payment intents at the processor, verifies them and confirms the
// booking once money has been captured.
//
// Processor calls never run inside a database transaction. The booking row is
// locked only to record what the processor returned, and every transition is
// re-checked under that lock, so a racing verify, retry or cancellation is
// resolved by the state machine rather than by the order of network calls.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/events"
	"github.com/kirinyoku/tripgo/internal/payment"
	"github.com/kirinyoku/tripgo/internal/repository"
	"github.com/kirinyoku/tripgo/internal/uow"
)

type Config struct {
	// MinChargeMinor is the processor's minimum chargeable amount. Smaller totals are floored up to it.
	MinChargeMinor int64
	// MaxAttempts caps how many sessions or intents one booking may open.
	MaxAttempts int
	// SuccessURL and CancelURL may contain {booking_id} and {reference}.
	SuccessURL string
	CancelURL  string
	Now        func() time.Time
}

// Settler settles the agent commission of a booking inside the confirming transaction.
type Settler interface {
	SettleTx(ctx context.Context, tx repository.Repos, b *domain.Booking, now time.Time) (*domain.Commission, error)
}

type Service struct {
	store   uow.Store
	gw      payment.Gateway
	settler Settler
	emitter *events.Emitter
	logger  *slog.Logger
	cfg     Config
}

func New(
	store uow.Store,
	gw payment.Gateway,
	settler Settler,
	emitter *events.Emitter,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.MinChargeMinor <= 0 {
		cfg.MinChargeMinor = 50
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		store:   store,
		gw:      gw,
		settler: settler,
		emitter: emitter,
		logger:  logger,
		cfg:     cfg,
	}
}

type CheckoutResult struct {
	SessionID   string
	CheckoutURL string
	Booking     *domain.Booking
}

type IntentResult struct {
	IntentID     string
	ClientSecret string
	Booking      *domain.Booking
}

// VerifyResult is a successful verification. AlreadyPaid is set when an
// earlier call had confirmed the payment and nothing changed.
type VerifyResult struct {
	Booking     *domain.Booking
	Commission  *domain.Commission
	AlreadyPaid bool
}

// StartCheckout opens a hosted checkout session for the booking total and
// pins it as the booking's payment reference. A session opened earlier is
// checked first: if it was paid the booking is confirmed and ErrAlreadyPaid
// returned, otherwise it is expired before the new one is created.
//
// Parameters:
//   - ctx: request-scoped context.
//   - bookingID: the booking to pay for.
//
// Returns:
//   - CheckoutResult: the session id and the URL to redirect the customer to.
//   - error: domain.ErrAlreadyPaid, domain.ErrPaymentStyleMismatch or domain.ErrPaymentAttemptsExceeded.
//   - error: *domain.InvalidTransitionError for terminal or unconfirmed AGENT bookings.
//   - error: *domain.PaymentGatewayError if the processor could not be reached.
func (s *Service) StartCheckout(ctx context.Context, bookingID uuid.UUID) (CheckoutResult, error) {
	const op = "service.orchestrator.StartCheckout"

	b, err := s.payable(ctx, bookingID, domain.PaymentRefCheckoutSession)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%s:%w", op, err)
	}
	prev := b.Payment

	sess, err := s.gw.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		AmountMinor:    b.TotalPrice.MinorUnits(s.cfg.MinChargeMinor),
		Currency:       b.TotalPrice.Currency,
		Description:    "Booking " + b.Reference,
		SuccessURL:     expandURL(s.cfg.SuccessURL, b),
		CancelURL:      expandURL(s.cfg.CancelURL, b),
		Metadata:       metadata(b),
		IdempotencyKey: idempotencyKey(b, "checkout"),
	})
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%s:%w", op, err)
	}

	b, err = s.attach(ctx, bookingID, prev, domain.CheckoutSessionRef(sess.ID))
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%s:%w", op, err)
	}

	return CheckoutResult{SessionID: sess.ID, CheckoutURL: sess.URL, Booking: b}, nil
}

// StartIntent creates a payment intent for the booking total and pins it as
// the booking's payment reference. Preconditions match StartCheckout.
func (s *Service) StartIntent(ctx context.Context, bookingID uuid.UUID) (IntentResult, error) {
	const op = "service.orchestrator.StartIntent"

	b, err := s.payable(ctx, bookingID, domain.PaymentRefIntent)
	if err != nil {
		return IntentResult{}, fmt.Errorf("%s:%w", op, err)
	}
	prev := b.Payment

	pi, err := s.gw.CreatePaymentIntent(ctx, payment.IntentRequest{
		AmountMinor:    b.TotalPrice.MinorUnits(s.cfg.MinChargeMinor),
		Currency:       b.TotalPrice.Currency,
		Description:    "Booking " + b.Reference,
		Metadata:       metadata(b),
		IdempotencyKey: idempotencyKey(b, "intent"),
	})
	if err != nil {
		return IntentResult{}, fmt.Errorf("%s:%w", op, err)
	}

	b, err = s.attach(ctx, bookingID, prev, domain.PaymentIntentRef(pi.ID))
	if err != nil {
		return IntentResult{}, fmt.Errorf("%s:%w", op, err)
	}

	return IntentResult{IntentID: pi.ID, ClientSecret: pi.ClientSecret, Booking: b}, nil
}

// VerifyCheckout checks a checkout session with the processor and confirms
// the booking when it is paid. Calling it again after success returns the
// paid booking without touching the processor.
//
// Returns:
//   - VerifyResult: the paid booking and the commission settled by this call, if any.
//   - error: *domain.PaymentNotCompletedError carrying the raw processor status when unpaid.
//   - error: *domain.PaymentGatewayError if the processor could not be reached.
//   - error: domain.ErrPaymentReferenceMismatch if sessionID is not the booking's session.
//   - error: *domain.InvalidTransitionError if the booking was cancelled meanwhile.
func (s *Service) VerifyCheckout(ctx context.Context, bookingID uuid.UUID, sessionID string) (VerifyResult, error) {
	const op = "service.orchestrator.VerifyCheckout"

	ref := domain.CheckoutSessionRef(sessionID)

	b, done, err := s.verifiable(ctx, bookingID, ref)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("%s:%w", op, err)
	}
	if done != nil {
		return *done, nil
	}

	sess, err := s.gw.RetrieveSession(ctx, sessionID)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("%s:%w", op, gatewayErr("retrieve checkout session", err))
	}

	if !sess.Paid() {
		status := sess.PaymentStatus
		if sess.Failed() {
			status = sess.Status
		}
		return VerifyResult{}, fmt.Errorf("%s:%w", op, s.notCompleted(ctx, b, sess.Failed(), status))
	}

	res, err := s.confirm(ctx, bookingID, ref, sessionProof(sess))
	if err != nil {
		return VerifyResult{}, fmt.Errorf("%s:%w", op, err)
	}

	return res, nil
}

// ConfirmIntent checks a payment intent with the processor and confirms the
// booking when it has succeeded. Semantics match VerifyCheckout.
func (s *Service) ConfirmIntent(ctx context.Context, bookingID uuid.UUID, intentID string) (VerifyResult, error) {
	const op = "service.orchestrator.ConfirmIntent"

	ref := domain.PaymentIntentRef(intentID)

	b, done, err := s.verifiable(ctx, bookingID, ref)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("%s:%w", op, err)
	}
	if done != nil {
		return *done, nil
	}

	pi, err := s.gw.RetrieveIntent(ctx, intentID)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("%s:%w", op, gatewayErr("retrieve payment intent", err))
	}

	if !pi.Succeeded() {
		return VerifyResult{}, fmt.Errorf("%s:%w", op, s.notCompleted(ctx, b, pi.Failed(), pi.Status))
	}

	res, err := s.confirm(ctx, bookingID, ref, pi.ID)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("%s:%w", op, err)
	}

	return res, nil
}

// payable reads the booking and checks it may open a payment of kind.
// A previous session or intent must be unpaid and is retired before a new
// one replaces it, so a booking never holds two chargeable payments.
func (s *Service) payable(ctx context.Context, id uuid.UUID, kind domain.PaymentRefKind) (*domain.Booking, error) {
	b, err := s.store.Repos().Bookings().Get(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}

	if err := b.CanStartPayment(kind, 0); err != nil {
		return nil, err
	}

	open := false
	if !b.Payment.IsZero() {
		if open, err = s.previous(ctx, b); err != nil {
			return nil, err
		}
	}

	if err := b.CanStartPayment(kind, s.cfg.MaxAttempts); err != nil {
		return nil, err
	}

	if open {
		if err := s.retire(ctx, b.Payment); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// previous asks the processor about the booking's current payment reference.
// A captured payment confirms the booking and yields domain.ErrAlreadyPaid.
// open reports whether the reference could still be paid.
func (s *Service) previous(ctx context.Context, b *domain.Booking) (open bool, err error) {
	var (
		paid  bool
		proof string
	)

	switch b.Payment.Kind {
	case domain.PaymentRefCheckoutSession:
		sess, err := s.gw.RetrieveSession(ctx, b.Payment.ID)
		if errors.Is(err, payment.ErrResourceMissing) {
			return false, nil
		}
		if err != nil {
			return false, gatewayErr("retrieve checkout session", err)
		}
		paid, open, proof = sess.Paid(), sess.Open(), sessionProof(sess)
	case domain.PaymentRefIntent:
		pi, err := s.gw.RetrieveIntent(ctx, b.Payment.ID)
		if errors.Is(err, payment.ErrResourceMissing) {
			return false, nil
		}
		if err != nil {
			return false, gatewayErr("retrieve payment intent", err)
		}
		paid, open, proof = pi.Succeeded(), pi.Open(), pi.ID
	}

	if !paid {
		return open, nil
	}

	s.logger.Info("earlier payment was captured, confirming instead of restarting",
		"booking_id", b.ID,
		"payment_ref", b.Payment.ID,
	)

	if _, err := s.confirm(ctx, b.ID, b.Payment, proof); err != nil {
		return false, err
	}

	return false, domain.ErrAlreadyPaid
}

// retire makes ref unpayable at the processor.
func (s *Service) retire(ctx context.Context, ref domain.PaymentReference) error {
	var err error
	switch ref.Kind {
	case domain.PaymentRefCheckoutSession:
		err = s.gw.ExpireCheckoutSession(ctx, ref.ID)
	case domain.PaymentRefIntent:
		err = s.gw.CancelPaymentIntent(ctx, ref.ID)
	}

	if err != nil && !errors.Is(err, payment.ErrResourceMissing) {
		return gatewayErr("retire payment "+ref.ID, err)
	}

	return nil
}

// attach records ref on the locked booking in place of prev. The preconditions
// are checked again because the booking may have changed during the processor
// call. A ref that could not be recorded is retired.
func (s *Service) attach(ctx context.Context, id uuid.UUID, prev, ref domain.PaymentReference) (*domain.Booking, error) {
	now := s.cfg.Now()

	var (
		out      *domain.Booking
		recorded bool
	)
	err := s.store.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		b, err := tx.Bookings().GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err)
		}

		if b.Payment == ref {
			out, recorded = b, true
			return b.CanStartPayment(ref.Kind, 0)
		}

		if b.Payment != prev {
			return domain.ErrPaymentRestarted
		}

		if err := b.AttachPayment(ref, s.cfg.MaxAttempts, now); err != nil {
			return err
		}

		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}

		out = b
		return nil
	})
	if err != nil {
		s.logger.Warn("payment opened for a booking that changed meanwhile",
			"booking_id", id,
			"payment_ref", ref.ID,
			"error", err,
		)

		if !recorded {
			if rerr := s.retire(context.WithoutCancel(ctx), ref); rerr != nil {
				s.logger.Error("retire unrecorded payment", "booking_id", id, "payment_ref", ref.ID, "error", rerr)
			}
		}
		return nil, err
	}

	return out, nil
}

// verifiable decides whether a verification needs the processor at all.
// A non-nil result means the booking is already paid through ref.
func (s *Service) verifiable(ctx context.Context, id uuid.UUID, ref domain.PaymentReference) (*domain.Booking, *VerifyResult, error) {
	if ref.ID == "" {
		return nil, nil, domain.NewValidationError("payment_reference", "is required")
	}

	b, err := s.store.Repos().Bookings().Get(ctx, id)
	if err != nil {
		return nil, nil, notFound(err)
	}

	switch {
	case b.Payment.IsZero():
		return nil, nil, domain.NewValidationError("payment_reference", "booking has no payment in progress")
	case b.Payment.Kind != ref.Kind:
		return nil, nil, domain.ErrPaymentStyleMismatch
	case b.Payment.ID != ref.ID:
		return nil, nil, domain.ErrPaymentReferenceMismatch
	}

	if b.PaymentStatus == domain.PaymentPaid && b.Status != domain.StatusCancelled {
		return b, &VerifyResult{Booking: b, AlreadyPaid: true}, nil
	}

	if b.IsTerminal() && !mayHoldLateCapture(b) {
		return nil, nil, domain.NewInvalidTransitionError(b.Status, domain.StatusConfirmed,
			"cannot confirm payment of a "+strings.ToLower(string(b.Status))+" booking")
	}

	return b, nil, nil
}

// mayHoldLateCapture reports whether a cancelled booking never saw its payment
// confirmed, so money captured now has to be returned.
func mayHoldLateCapture(b *domain.Booking) bool {
	if b.Status != domain.StatusCancelled {
		return false
	}

	switch b.PaymentStatus {
	case domain.PaymentPending, domain.PaymentFailed, domain.PaymentCancelled:
		return true
	}

	return false
}

// notCompleted records a processor-terminal failure and builds the error reported to the caller.
func (s *Service) notCompleted(ctx context.Context, b *domain.Booking, failed bool, status string) error {
	if b.IsTerminal() {
		return domain.NewInvalidTransitionError(b.Status, domain.StatusConfirmed,
			"cannot confirm payment of a "+strings.ToLower(string(b.Status))+" booking")
	}

	if !failed {
		return &domain.PaymentNotCompletedError{Status: status}
	}

	now := s.cfg.Now()

	err := s.store.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		locked, err := tx.Bookings().GetForUpdate(ctx, b.ID)
		if err != nil {
			return notFound(err)
		}

		if locked.Payment != b.Payment || !locked.MarkPaymentFailed(now) {
			return nil
		}

		return tx.Bookings().Update(ctx, locked)
	})
	if err != nil {
		s.logger.Error("record failed payment", "booking_id", b.ID, "payment_ref", b.Payment.ID, "error", err)
	}

	return &domain.PaymentNotCompletedError{Status: status}
}

// confirm marks the locked booking paid with proof and settles the agent commission.
// A booking cancelled while the processor captured the money is refunded after the transaction.
func (s *Service) confirm(ctx context.Context, id uuid.UUID, ref domain.PaymentReference, proof string) (VerifyResult, error) {
	now := s.cfg.Now()

	var (
		res         VerifyResult
		lateCapture bool
		cancelled   *domain.Booking
	)

	err := s.store.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		b, err := tx.Bookings().GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err)
		}

		if b.Payment != ref {
			return domain.ErrPaymentReferenceMismatch
		}

		wasPending := b.Status == domain.StatusPending

		changed, err := b.ConfirmPayment(proof, now)
		if err != nil {
			if domain.IsInvalidTransition(err) && mayHoldLateCapture(b) {
				lateCapture = true
				cancelled = b
			}
			return err
		}

		if !changed {
			res = VerifyResult{Booking: b, AlreadyPaid: true}
			return nil
		}

		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}

		c, err := s.settler.SettleTx(ctx, tx, b, now)
		if err != nil {
			return err
		}

		paid := domain.NewBookingEvent(domain.EventBookingPaid, b, now)
		paid.Amount = &b.TotalPrice

		evs := []domain.Event{paid}
		if wasPending && b.Status == domain.StatusConfirmed {
			evs = append(evs, domain.NewBookingEvent(domain.EventBookingConfirmed, b, now))
		}
		if c != nil {
			cev := domain.NewBookingEvent(domain.EventCommissionPaid, b, now)
			amount := c.Amount
			cev.Amount = &amount
			evs = append(evs, cev)
		}
		after(func(ctx context.Context) { s.emitter.Emit(ctx, evs...) })

		res = VerifyResult{Booking: b, Commission: c}
		return nil
	})
	if err != nil {
		if lateCapture {
			s.refundLateCapture(ctx, cancelled, proof)
		}
		return VerifyResult{}, err
	}

	return res, nil
}

// refundLateCapture returns money captured for a booking that was cancelled
// before its payment could be confirmed.
func (s *Service) refundLateCapture(ctx context.Context, b *domain.Booking, proof string) {
	ctx = context.WithoutCancel(ctx)

	r, err := payment.RefundReference(ctx, s.gw, b.Payment, proof)
	if err != nil {
		s.logger.Error("refund late capture on cancelled booking",
			"booking_id", b.ID,
			"payment_ref", b.Payment.ID,
			"proof", proof,
			"error", err,
		)

		ev := domain.NewBookingEvent(domain.EventRefundFailed, b, s.cfg.Now())
		ev.Amount = &b.TotalPrice
		ev.Detail = err.Error()
		s.emitter.Emit(ctx, ev)
		return
	}

	s.logger.Info("refunded late capture on cancelled booking",
		"booking_id", b.ID,
		"refund_id", r.ID,
		"refund_status", r.Status,
	)
}

// sessionProof is the intent behind a paid session, or the session itself
// when the processor does not expose one.
func sessionProof(sess payment.Session) string {
	if sess.IntentID != "" {
		return sess.IntentID
	}
	return sess.ID
}

func gatewayErr(op string, err error) error {
	if domain.IsPaymentGateway(err) {
		return err
	}
	return &domain.PaymentGatewayError{Op: op, Err: err}
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.ErrBookingNotFound
	}
	return err
}

func metadata(b *domain.Booking) map[string]string {
	return map[string]string{
		"booking_id":        b.ID.String(),
		"booking_reference": b.Reference,
	}
}

// idempotencyKey is stable per booking and attempt, so a retried start
// request returns the processor object created by the first one.
func idempotencyKey(b *domain.Booking, style string) string {
	return fmt.Sprintf("booking-%s-%s-%d", b.ID, style, b.PaymentAttempts+1)
}

func expandURL(tmpl string, b *domain.Booking) string {
	return strings.NewReplacer(
		"{booking_id}", b.ID.String(),
		"{reference}", b.Reference,
	).Replace(tmpl)
}
