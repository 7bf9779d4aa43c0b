package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/repository"
)

type bookings struct {
	st *state
}

func (r bookings) Create(_ context.Context, b *domain.Booking) error {
	const op = "memory.bookings.Create"

	if _, ok := r.st.bookings[b.ID]; ok {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}
	if _, ok := r.st.references[b.Reference]; ok {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	r.st.bookings[b.ID] = *b
	r.st.references[b.Reference] = b.ID

	return nil
}

func (r bookings) Get(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "memory.bookings.Get"

	b, ok := r.st.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return &b, nil
}

func (r bookings) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	const op = "memory.bookings.GetByReference"

	id, ok := r.st.references[reference]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return r.Get(ctx, id)
}

func (r bookings) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return r.Get(ctx, id)
}

func (r bookings) Update(_ context.Context, b *domain.Booking) error {
	const op = "memory.bookings.Update"

	cur, ok := r.st.bookings[b.ID]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	next := *b
	next.Reference = cur.Reference
	next.DestinationID = cur.DestinationID
	next.CustomerID = cur.CustomerID
	next.TotalPrice = cur.TotalPrice
	next.Type = cur.Type
	next.CreatedAt = cur.CreatedAt

	r.st.bookings[b.ID] = next

	return nil
}

func (r bookings) ListStalePending(_ context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	var stale []domain.Booking
	for _, b := range r.st.bookings {
		if b.Status != domain.StatusPending || !b.CreatedAt.Before(before) {
			continue
		}
		if b.PaymentStatus != domain.PaymentPending && b.PaymentStatus != domain.PaymentFailed {
			continue
		}
		stale = append(stale, b)
	}

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].CreatedAt.Before(stale[j].CreatedAt)
	})

	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}

	ids := make([]uuid.UUID, 0, len(stale))
	for _, b := range stale {
		ids = append(ids, b.ID)
	}

	return ids, nil
}

type commissions struct {
	st *state
}

func (r commissions) Create(_ context.Context, c *domain.Commission) error {
	const op = "memory.commissions.Create"

	if _, ok := r.st.commissions[c.BookingID]; ok {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	r.st.commissions[c.BookingID] = *c

	return nil
}

func (r commissions) GetByBooking(_ context.Context, bookingID uuid.UUID) (*domain.Commission, error) {
	const op = "memory.commissions.GetByBooking"

	c, ok := r.st.commissions[bookingID]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return &c, nil
}

func (r commissions) GetByBookingForUpdate(ctx context.Context, bookingID uuid.UUID) (*domain.Commission, error) {
	return r.GetByBooking(ctx, bookingID)
}

func (r commissions) MarkPaid(_ context.Context, id uuid.UUID, paidAt time.Time) error {
	const op = "memory.commissions.MarkPaid"

	for bookingID, c := range r.st.commissions {
		if c.ID != id || c.Status != domain.CommissionPending {
			continue
		}
		c.Status = domain.CommissionPaid
		c.PaidAt = &paidAt
		r.st.commissions[bookingID] = c
		return nil
	}

	return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
}

type destinations struct {
	st *state
}

func (r destinations) Get(_ context.Context, id int64) (*domain.Destination, error) {
	const op = "memory.destinations.Get"

	d, ok := r.st.destinations[id]
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	cp := copyDestination(d)
	return &cp, nil
}

func (r destinations) Create(_ context.Context, d *domain.Destination) (int64, error) {
	const op = "memory.destinations.Create"

	for _, existing := range r.st.destinations {
		if existing.Name == d.Name {
			return 0, fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
	}

	r.st.nextDestID++
	cp := copyDestination(*d)
	cp.ID = r.st.nextDestID
	r.st.destinations[cp.ID] = cp

	return cp.ID, nil
}

func (r destinations) Update(_ context.Context, d *domain.Destination) error {
	const op = "memory.destinations.Update"

	if _, ok := r.st.destinations[d.ID]; !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	r.st.destinations[d.ID] = copyDestination(*d)

	return nil
}

func copyDestination(d domain.Destination) domain.Destination {
	if d.Blackouts != nil {
		d.Blackouts = append([]domain.DateRange(nil), d.Blackouts...)
	}
	return d
}
