package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/events"
	"github.com/kirinyoku/tripgo/internal/repository"
	"github.com/kirinyoku/tripgo/internal/uow"
)

type Config struct {
	// CommissionRateBps is the agent's share of the booking price in basis points.
	CommissionRateBps int
	Now               func() time.Time
}

// Service assigns AGENT bookings to agents and keeps the commission ledger.
type Service struct {
	store   uow.Store
	emitter *events.Emitter
	logger  *slog.Logger
	cfg     Config
}

func New(store uow.Store, emitter *events.Emitter, logger *slog.Logger, cfg Config) *Service {
	if cfg.CommissionRateBps <= 0 {
		cfg.CommissionRateBps = 1000
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		store:   store,
		emitter: emitter,
		logger:  logger,
		cfg:     cfg,
	}
}

// Assign sets agentID as the agent of an AGENT booking and opens its PENDING
// commission in the same transaction. The first assignment wins.
//
// Parameters:
//   - ctx: request-scoped context.
//   - bookingID: the booking to assign.
//   - agentID: the agent taking the booking.
//
// Returns:
//   - *domain.Booking: the assigned booking.
//   - *domain.Commission: the commission opened for the agent.
//   - error: domain.ErrAlreadyAssigned if another agent got there first.
//   - error: *domain.ValidationError for DIRECT bookings.
//   - error: *domain.InvalidTransitionError for terminal bookings.
func (s *Service) Assign(ctx context.Context, bookingID uuid.UUID, agentID int64) (*domain.Booking, *domain.Commission, error) {
	const op = "service.agent.Assign"

	now := s.cfg.Now()

	var (
		booking    *domain.Booking
		commission *domain.Commission
	)

	err := s.store.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		b, err := getForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		if err := b.AssignAgent(agentID, now); err != nil {
			return err
		}

		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}

		c, created, err := s.ensureCommission(ctx, tx, b, now)
		if err != nil {
			return err
		}

		evs := []domain.Event{domain.NewBookingEvent(domain.EventBookingAssigned, b, now)}
		if created {
			evs = append(evs, commissionEvent(domain.EventCommissionCreated, b, c, now))
		}
		after(func(ctx context.Context) { s.emitter.Emit(ctx, evs...) })

		booking, commission = b, c
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	return booking, commission, nil
}

// Confirm is the assigned agent's explicit confirmation. Payment may still be
// pending. Confirming an already confirmed booking is a no-op.
//
// Returns:
//   - *domain.Booking: the confirmed booking.
//   - error: domain.ErrNotAssignedAgent if agentID is not the booking's agent.
//   - error: *domain.InvalidTransitionError for DIRECT or terminal bookings.
func (s *Service) Confirm(ctx context.Context, bookingID uuid.UUID, agentID int64) (*domain.Booking, error) {
	const op = "service.agent.Confirm"

	now := s.cfg.Now()

	var out *domain.Booking
	err := s.store.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		b, err := getForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		out = b

		changed, err := b.ConfirmByAgent(agentID, now)
		if err != nil || !changed {
			return err
		}

		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}

		c, created, err := s.ensureCommission(ctx, tx, b, now)
		if err != nil {
			return err
		}

		evs := []domain.Event{domain.NewBookingEvent(domain.EventBookingConfirmed, b, now)}
		if created {
			evs = append(evs, commissionEvent(domain.EventCommissionCreated, b, c, now))
		}
		after(func(ctx context.Context) { s.emitter.Emit(ctx, evs...) })

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// SettleTx marks the commission of a paid AGENT booking PAID inside the
// caller's transaction. It returns nil when there is nothing to settle:
// not an AGENT booking, not paid, no commission, or already settled.
func (s *Service) SettleTx(ctx context.Context, tx repository.Repos, b *domain.Booking, now time.Time) (*domain.Commission, error) {
	const op = "service.agent.SettleTx"

	if b.Type != domain.BookingAgent || b.PaymentStatus != domain.PaymentPaid {
		return nil, nil
	}

	c, err := tx.Commissions().GetByBookingForUpdate(ctx, b.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("paid agent booking has no commission", "booking_id", b.ID)
			return nil, nil
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if c.Status == domain.CommissionPaid {
		return nil, nil
	}

	if err := tx.Commissions().MarkPaid(ctx, c.ID, now); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	c.Status = domain.CommissionPaid
	c.PaidAt = &now

	return c, nil
}

// Settle runs SettleTx in its own transaction. It reconciles bookings whose
// payment was recorded without settling the commission.
func (s *Service) Settle(ctx context.Context, bookingID uuid.UUID) (*domain.Commission, error) {
	const op = "service.agent.Settle"

	now := s.cfg.Now()

	var out *domain.Commission
	err := s.store.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		b, err := getForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		c, err := s.SettleTx(ctx, tx, b, now)
		if err != nil || c == nil {
			return err
		}

		ev := commissionEvent(domain.EventCommissionPaid, b, c, now)
		after(func(ctx context.Context) { s.emitter.Emit(ctx, ev) })

		out = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// GetCommission returns the commission of a booking.
//
// Returns:
//   - error: domain.ErrCommissionNotFound if the booking has none.
func (s *Service) GetCommission(ctx context.Context, bookingID uuid.UUID) (*domain.Commission, error) {
	const op = "service.agent.GetCommission"

	c, err := s.store.Repos().Commissions().GetByBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, domain.ErrCommissionNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return c, nil
}

func (s *Service) ensureCommission(
	ctx context.Context,
	tx repository.Repos,
	b *domain.Booking,
	now time.Time,
) (*domain.Commission, bool, error) {
	c, err := tx.Commissions().GetByBooking(ctx, b.ID)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	c = &domain.Commission{
		ID:          uuid.New(),
		BookingID:   b.ID,
		AgentID:     *b.AgentID,
		Amount:      domain.CommissionFor(b.TotalPrice, s.cfg.CommissionRateBps),
		RateBasisPt: s.cfg.CommissionRateBps,
		Status:      domain.CommissionPending,
		CreatedAt:   now,
	}

	if err := tx.Commissions().Create(ctx, c); err != nil {
		return nil, false, err
	}

	return c, true, nil
}

func getForUpdate(ctx context.Context, tx repository.Repos, id uuid.UUID) (*domain.Booking, error) {
	b, err := tx.Bookings().GetForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, err
	}
	return b, nil
}

func commissionEvent(t domain.EventType, b *domain.Booking, c *domain.Commission, now time.Time) domain.Event {
	ev := domain.NewBookingEvent(t, b, now)
	amount := c.Amount
	ev.Amount = &amount
	return ev
}
