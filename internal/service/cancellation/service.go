package cancellation

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

const (
	MessageRefunded      = "Booking cancelled. Your refund has been processed."
	MessageRefundPending = "Booking cancelled. Your refund will be processed shortly."
	MessageNoCharge      = "Booking cancelled. No payment was charged."

	defaultReason = "cancelled by request"
)

// errPaymentChanged means the booking's payment status moved between the
// refund decision and the cancelling transaction.
var errPaymentChanged = errors.New("payment status changed during cancellation")

type Config struct {
	// MaxRetries bounds how often a cancellation restarts after losing a race with payment confirmation.
	MaxRetries int
	Now        func() time.Time
}

// Service cancels bookings and returns money for paid ones. Cancellation
// always completes: a failed refund is reported, never raised.
type Service struct {
	store   uow.Store
	gw      payment.Gateway
	emitter *events.Emitter
	logger  *slog.Logger
	cfg     Config
}

func New(store uow.Store, gw payment.Gateway, emitter *events.Emitter, logger *slog.Logger, cfg Config) *Service {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		store:   store,
		gw:      gw,
		emitter: emitter,
		logger:  logger,
		cfg:     cfg,
	}
}

// Outcome describes what happened to the booking and its money.
type Outcome struct {
	Booking         *domain.Booking
	WasPaid         bool
	RefundAttempted bool
	RefundConfirmed bool
	RefundID        string
	// RefundError is set when the refund failed and needs manual follow-up.
	RefundError string
	Message     string
}

// Cancel cancels a PENDING or CONFIRMED booking. A paid booking is refunded
// through its payment reference first; the booking is cancelled whatever the
// refund outcome, and marked REFUNDED only when the processor confirms it.
//
// Parameters:
//   - ctx: request-scoped context.
//   - bookingID: the booking to cancel.
//   - reason: free text recorded on the booking.
//
// Returns:
//   - Outcome: the cancelled booking, the refund result and a customer-facing message.
//   - error: domain.ErrBookingNotFound, or *domain.InvalidTransitionError for terminal bookings.
func (s *Service) Cancel(ctx context.Context, bookingID uuid.UUID, reason string) (Outcome, error) {
	const op = "service.cancellation.Cancel"

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultReason
	}
	if len(reason) > 500 {
		return Outcome{}, fmt.Errorf("%s:%w", op, domain.NewValidationError("reason", "must be at most 500 long"))
	}

	for attempt := 1; ; attempt++ {
		out, err := s.cancelOnce(ctx, bookingID, reason)
		if err == nil {
			return out, nil
		}

		if !errors.Is(err, errPaymentChanged) || attempt == s.cfg.MaxRetries {
			return Outcome{}, fmt.Errorf("%s:%w", op, err)
		}

		s.logger.Info("payment changed during cancellation, retrying", "booking_id", bookingID, "attempt", attempt)
	}
}

func (s *Service) cancelOnce(ctx context.Context, bookingID uuid.UUID, reason string) (Outcome, error) {
	snap, err := s.store.Repos().Bookings().Get(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Outcome{}, domain.ErrBookingNotFound
		}
		return Outcome{}, err
	}

	if err := snap.CanTransitionTo(domain.StatusCancelled); err != nil {
		return Outcome{}, err
	}

	out := Outcome{WasPaid: snap.PaymentStatus == domain.PaymentPaid}

	var refundErr error
	if out.WasPaid {
		refundErr = s.refund(ctx, snap, &out)
	}

	now := s.cfg.Now()

	err = s.store.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}

		if b.PaymentStatus != snap.PaymentStatus && !b.IsTerminal() {
			return errPaymentChanged
		}

		if err := b.Cancel(reason, out.RefundConfirmed, now); err != nil {
			return err
		}

		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}

		evs := []domain.Event{domain.NewBookingEvent(domain.EventBookingCancelled, b, now)}
		if refundErr != nil {
			ev := domain.NewBookingEvent(domain.EventRefundFailed, b, now)
			ev.Amount = &b.TotalPrice
			ev.Detail = refundErr.Error()
			evs = append(evs, ev)
		}
		after(func(ctx context.Context) { s.emitter.Emit(ctx, evs...) })

		out.Booking = b
		return nil
	})
	if err != nil {
		if out.RefundConfirmed || out.RefundID != "" {
			s.logger.Error("refund issued but booking not cancelled",
				"booking_id", bookingID,
				"refund_id", out.RefundID,
				"error", err,
			)
		}
		return Outcome{}, err
	}

	out.Message = message(out)

	return out, nil
}

// refund asks the processor to return the booking's money and records the
// result in out. The returned error is informational only.
func (s *Service) refund(ctx context.Context, b *domain.Booking, out *Outcome) error {
	if b.Payment.IsZero() {
		err := errors.New("paid booking has no payment reference")
		s.logger.Error("refund skipped", "booking_id", b.ID, "error", err)
		out.RefundError = err.Error()
		return err
	}

	out.RefundAttempted = true

	r, err := payment.RefundReference(ctx, s.gw, b.Payment, b.ChargeID)
	if err != nil {
		s.logger.Error("refund failed, cancelling anyway",
			"booking_id", b.ID,
			"payment_ref", b.Payment.ID,
			"payment_kind", b.Payment.Kind,
			"error", err,
		)
		out.RefundError = err.Error()
		return err
	}

	out.RefundID = r.ID
	out.RefundConfirmed = r.Confirmed()

	s.logger.Info("refund issued", "booking_id", b.ID, "refund_id", r.ID, "refund_status", r.Status)

	return nil
}

func message(out Outcome) string {
	switch {
	case !out.WasPaid:
		return MessageNoCharge
	case out.RefundConfirmed:
		return MessageRefunded
	default:
		return MessageRefundPending
	}
}
