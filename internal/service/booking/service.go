package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/events"
	"github.com/kirinyoku/tripgo/internal/repository"
	redisrepo "github.com/kirinyoku/tripgo/internal/repository/redis"
	"github.com/kirinyoku/tripgo/internal/service/catalog"
	"github.com/kirinyoku/tripgo/internal/service/routing"
	"github.com/kirinyoku/tripgo/internal/uow"
)

const referenceAttempts = 5

type Config struct {
	// PendingTTL is how long an unpaid PENDING booking lives before it expires.
	PendingTTL time.Duration
	// ExpireBatch caps how many bookings one sweep expires.
	ExpireBatch int
	Now         func() time.Time
}

// Destinations is the catalog surface the booking lifecycle needs.
type Destinations interface {
	Get(ctx context.Context, id int64) (*domain.Destination, error)
}

type Limiter interface {
	Allow(ctx context.Context, id string) (redisrepo.Decision, error)
}

type Service struct {
	store        uow.Store
	destinations Destinations
	policy       *routing.Policy
	limiter      Limiter
	emitter      *events.Emitter
	validate     *validator.Validate
	logger       *slog.Logger
	cfg          Config
}

// New builds the booking lifecycle service. limiter may be nil.
func New(
	store uow.Store,
	destinations Destinations,
	policy *routing.Policy,
	limiter Limiter,
	emitter *events.Emitter,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 24 * time.Hour
	}

	if cfg.ExpireBatch <= 0 {
		cfg.ExpireBatch = 100
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		store:        store,
		destinations: destinations,
		policy:       policy,
		limiter:      limiter,
		emitter:      emitter,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		logger:       logger,
		cfg:          cfg,
	}
}

type CreateInput struct {
	DestinationID   int64      `validate:"required,gt=0"`
	TravelDate      time.Time  `validate:"required"`
	ReturnDate      *time.Time `validate:"omitempty"`
	Travelers       int        `validate:"required,gt=0"`
	ContactEmail    string     `validate:"required,email"`
	ContactPhone    string     `validate:"omitempty,max=32"`
	SpecialRequests string     `validate:"max=2000"`
}

type CreateResult struct {
	Booking  *domain.Booking
	Decision domain.RoutingDecision
	// RequiresPaymentNow is true for DIRECT bookings, which are confirmed by payment.
	RequiresPaymentNow bool
}

// Create routes and stores a new booking for customerID.
//
// Parameters:
//   - ctx: request-scoped context.
//   - customerID: the owning customer.
//   - in: the requested destination, dates, party and contact details.
//
// Returns:
//   - CreateResult: the PENDING booking, the routing decision and whether payment is due now.
//   - error: *domain.ValidationError for bad input.
//   - error: domain.ErrDestinationNotFound if the destination does not exist.
//   - error: *booking.UnavailableError if the destination cannot take the stay.
//   - error: *booking.RateLimitedError if the customer creates bookings too fast.
func (s *Service) Create(ctx context.Context, customerID int64, in CreateInput) (CreateResult, error) {
	const op = "service.booking.Create"

	if err := s.validate.Struct(in); err != nil {
		return CreateResult{}, fmt.Errorf("%s:%w", op, catalog.ValidationErr(err))
	}

	if s.limiter != nil {
		d, err := s.limiter.Allow(ctx, strconv.FormatInt(customerID, 10))
		if err != nil {
			s.logger.Warn("booking rate limiter unavailable", "customer_id", customerID, "error", err)
		} else if !d.Allowed {
			return CreateResult{}, fmt.Errorf("%s:%w", op, &RateLimitedError{RetryAfter: d.RetryAfter})
		}
	}

	dest, err := s.destinations.Get(ctx, in.DestinationID)
	if err != nil {
		return CreateResult{}, fmt.Errorf("%s:%w", op, err)
	}

	now := s.cfg.Now()

	dec, err := s.policy.Decide(dest, routing.Request{
		TravelDate: in.TravelDate,
		ReturnDate: in.ReturnDate,
		PartySize:  in.Travelers,
		Today:      now,
	})
	if err != nil {
		return CreateResult{}, fmt.Errorf("%s:%w", op, err)
	}

	if !dec.Available {
		return CreateResult{}, fmt.Errorf("%s:%w", op, &UnavailableError{Decision: dec})
	}

	b := &domain.Booking{
		ID:            uuid.New(),
		DestinationID: dest.ID,
		CustomerID:    customerID,
		TravelDate:    domain.Day(in.TravelDate),
		Travelers:     in.Travelers,
		TotalPrice: domain.Money{
			Amount:   dest.PricePerTravelerCents * int64(in.Travelers),
			Currency: dest.Currency,
		},
		Type:            dec.Path,
		Status:          domain.StatusPending,
		PaymentStatus:   domain.PaymentPending,
		ContactEmail:    in.ContactEmail,
		ContactPhone:    in.ContactPhone,
		SpecialRequests: in.SpecialRequests,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.ReturnDate != nil {
		ret := domain.Day(*in.ReturnDate)
		b.ReturnDate = &ret
	}

	for attempt := 1; ; attempt++ {
		b.Reference = domain.NewReference()

		err = s.store.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
			if err := tx.Bookings().Create(ctx, b); err != nil {
				return err
			}

			ev := domain.NewBookingEvent(domain.EventBookingCreated, b, now)
			ev.Amount = &b.TotalPrice
			after(func(ctx context.Context) { s.emitter.Emit(ctx, ev) })

			return nil
		})
		if err == nil || !errors.Is(err, repository.ErrConflict) || attempt == referenceAttempts {
			break
		}
	}
	if err != nil {
		return CreateResult{}, fmt.Errorf("%s:%w", op, err)
	}

	return CreateResult{
		Booking:            b,
		Decision:           dec,
		RequiresPaymentNow: b.Type == domain.BookingDirect,
	}, nil
}

// Get returns a booking by ID.
//
// Returns:
//   - error: domain.ErrBookingNotFound if the booking does not exist.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.Get"

	b, err := s.store.Repos().Bookings().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, notFound(err))
	}

	return b, nil
}

func (s *Service) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	const op = "service.booking.GetByReference"

	b, err := s.store.Repos().Bookings().GetByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, notFound(err))
	}

	return b, nil
}

type UpdateInput struct {
	TravelDate      *time.Time `validate:"omitempty"`
	ReturnDate      *time.Time `validate:"omitempty"`
	ClearReturnDate bool
	Travelers       *int    `validate:"omitempty,gt=0"`
	ContactEmail    *string `validate:"omitempty,email"`
	ContactPhone    *string `validate:"omitempty,max=32"`
	SpecialRequests *string `validate:"omitempty,max=2000"`
}

func (in UpdateInput) reschedules() bool {
	return in.TravelDate != nil || in.ReturnDate != nil || in.ClearReturnDate || in.Travelers != nil
}

// Update edits scheduling and contact fields of a non-terminal booking.
// A changed stay is re-checked against the routing policy. Price and booking
// type stay as they were at creation.
//
// Returns:
//   - *domain.Booking: the updated booking.
//   - error: *domain.InvalidTransitionError if the booking is terminal.
//   - error: *domain.ValidationError if the new stay is invalid or unavailable.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*domain.Booking, error) {
	const op = "service.booking.Update"

	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%s:%w", op, catalog.ValidationErr(err))
	}

	now := s.cfg.Now()

	var out *domain.Booking
	err := s.store.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		b, err := tx.Bookings().GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err)
		}

		if err := b.ApplyUpdate(domain.BookingUpdate{
			TravelDate:      in.TravelDate,
			ReturnDate:      in.ReturnDate,
			ClearReturnDate: in.ClearReturnDate,
			Travelers:       in.Travelers,
			ContactEmail:    in.ContactEmail,
			ContactPhone:    in.ContactPhone,
			SpecialRequests: in.SpecialRequests,
		}, now); err != nil {
			return err
		}

		if in.reschedules() {
			if err := s.recheck(ctx, tx, b, now); err != nil {
				return err
			}
		}

		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}

		ev := domain.NewBookingEvent(domain.EventBookingUpdated, b, now)
		after(func(ctx context.Context) { s.emitter.Emit(ctx, ev) })

		out = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (s *Service) recheck(ctx context.Context, tx repository.Repos, b *domain.Booking, now time.Time) error {
	dest, err := tx.Destinations().Get(ctx, b.DestinationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrDestinationNotFound
		}
		return err
	}

	dec, err := s.policy.Decide(dest, routing.Request{
		TravelDate: b.TravelDate,
		ReturnDate: b.ReturnDate,
		PartySize:  b.Travelers,
		Today:      now,
	})
	if err != nil {
		return err
	}

	if !dec.Available {
		return domain.NewValidationError("travel_date", dec.Reason)
	}

	return nil
}

// Complete moves a CONFIRMED booking to COMPLETED.
//
// Returns:
//   - error: *domain.InvalidTransitionError unless the booking is CONFIRMED.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.Complete"

	b, err := s.mutate(ctx, id, domain.EventBookingCompleted, func(b *domain.Booking, now time.Time) error {
		return b.Complete(now)
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return b, nil
}

// Finalize appends agent or admin notes to a PENDING or CONFIRMED booking.
func (s *Service) Finalize(ctx context.Context, id uuid.UUID, notes string) (*domain.Booking, error) {
	const op = "service.booking.Finalize"

	b, err := s.mutate(ctx, id, domain.EventBookingFinalized, func(b *domain.Booking, now time.Time) error {
		return b.Finalize(notes, now)
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return b, nil
}

// mutate applies fn to the locked booking and emits evType after commit.
func (s *Service) mutate(
	ctx context.Context,
	id uuid.UUID,
	evType domain.EventType,
	fn func(b *domain.Booking, now time.Time) error,
) (*domain.Booking, error) {
	now := s.cfg.Now()

	var out *domain.Booking
	err := s.store.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		b, err := tx.Bookings().GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err)
		}

		if err := fn(b, now); err != nil {
			return err
		}

		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}

		ev := domain.NewBookingEvent(evType, b, now)
		after(func(ctx context.Context) { s.emitter.Emit(ctx, ev) })

		out = b
		return nil
	})

	return out, err
}

// ExpireStale cancels unpaid PENDING bookings older than the pending TTL.
// Bookings paid between the scan and the lock are left alone.
//
// Returns:
//   - int: the number of bookings expired.
//   - error: if the scan fails. Failures on single bookings are logged and skipped.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	const op = "service.booking.ExpireStale"

	now := s.cfg.Now()

	ids, err := s.store.Repos().Bookings().ListStalePending(ctx, now.Add(-s.cfg.PendingTTL), s.cfg.ExpireBatch)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, fmt.Errorf("%s:%w", op, ctx.Err())
		}

		_, err := s.mutate(ctx, id, domain.EventBookingExpired, func(b *domain.Booking, now time.Time) error {
			return b.Expire(now)
		})
		if err != nil {
			if !domain.IsInvalidTransition(err) {
				s.logger.Error("expire booking", "booking_id", id, "error", err)
			}
			continue
		}

		expired++
	}

	return expired, nil
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.ErrBookingNotFound
	}
	return err
}
