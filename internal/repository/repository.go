package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
)

type BookingRepository interface {
	// Create inserts b. It returns ErrConflict when the reference is taken.
	Create(ctx context.Context, b *domain.Booking) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetByReference(ctx context.Context, reference string) (*domain.Booking, error)
	// GetForUpdate reads the booking and locks its row until the transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	Update(ctx context.Context, b *domain.Booking) error
	// ListStalePending returns ids of unpaid PENDING bookings created before the deadline.
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
}

type CommissionRepository interface {
	// Create inserts c. It returns ErrConflict when the booking already has a commission.
	Create(ctx context.Context, c *domain.Commission) error
	GetByBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Commission, error)
	GetByBookingForUpdate(ctx context.Context, bookingID uuid.UUID) (*domain.Commission, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) error
}

type DestinationRepository interface {
	Get(ctx context.Context, id int64) (*domain.Destination, error)
	Create(ctx context.Context, d *domain.Destination) (int64, error)
	Update(ctx context.Context, d *domain.Destination) error
}

// Repos is the set of repositories bound to one connection or transaction.
type Repos interface {
	Bookings() BookingRepository
	Commissions() CommissionRepository
	Destinations() DestinationRepository
}
