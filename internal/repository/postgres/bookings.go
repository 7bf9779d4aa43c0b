package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/repository"
)

const bookingColumns = `id, reference, destination_id, customer_id, agent_id,
	travel_date, return_date, travelers, total_cents, currency,
	booking_type, status, payment_status, payment_ref_kind, payment_ref, charge_id, payment_attempts,
	contact_email, contact_phone, special_requests, notes, cancellation_reason,
	created_at, updated_at, confirmed_at, completed_at, cancelled_at`

type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts a new booking.
//
// Returns:
//   - error: repository.ErrConflict if the booking reference is already taken.
func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	const op = "postgres.BookingRepo.Create"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO bookings (`+bookingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		         $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`,
		b.ID, b.Reference, b.DestinationID, b.CustomerID, b.AgentID,
		b.TravelDate, b.ReturnDate, b.Travelers, b.TotalPrice.Amount, b.TotalPrice.Currency,
		b.Type, b.Status, b.PaymentStatus, b.Payment.Kind, b.Payment.ID, b.ChargeID, b.PaymentAttempts,
		b.ContactEmail, b.ContactPhone, b.SpecialRequests, b.Notes, b.CancellationReason,
		b.CreatedAt, b.UpdatedAt, b.ConfirmedAt, b.CompletedAt, b.CancelledAt,
	)

	return wrapDBErr(op, err)
}

// Get retrieves a booking by its ID.
//
// Returns:
//   - error: repository.ErrNotFound if the booking does not exist.
func (r *BookingRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.Get"

	b, err := scanBooking(r.handle().QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

func (r *BookingRepo) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.GetByReference"

	b, err := scanBooking(r.handle().QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE reference = $1`, reference))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

// GetForUpdate retrieves a booking and locks its row. It must run inside a
// transaction; concurrent callers block until the holder commits.
func (r *BookingRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.GetForUpdate"

	b, err := scanBooking(r.handle().QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

// Update writes every mutable column of b. Destination, customer, price and
// type are immutable and are not part of the statement.
func (r *BookingRepo) Update(ctx context.Context, b *domain.Booking) error {
	const op = "postgres.BookingRepo.Update"

	tag, err := r.handle().Exec(ctx,
		`UPDATE bookings SET
		    agent_id = $2, travel_date = $3, return_date = $4, travelers = $5,
		    status = $6, payment_status = $7, payment_ref_kind = $8, payment_ref = $9,
		    charge_id = $10, payment_attempts = $11,
		    contact_email = $12, contact_phone = $13, special_requests = $14, notes = $15,
		    cancellation_reason = $16, updated_at = $17,
		    confirmed_at = $18, completed_at = $19, cancelled_at = $20
		 WHERE id = $1`,
		b.ID, b.AgentID, b.TravelDate, b.ReturnDate, b.Travelers,
		b.Status, b.PaymentStatus, b.Payment.Kind, b.Payment.ID,
		b.ChargeID, b.PaymentAttempts,
		b.ContactEmail, b.ContactPhone, b.SpecialRequests, b.Notes,
		b.CancellationReason, b.UpdatedAt,
		b.ConfirmedAt, b.CompletedAt, b.CancelledAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}

func (r *BookingRepo) ListStalePending(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	const op = "postgres.BookingRepo.ListStalePending"

	rows, err := r.handle().Query(ctx,
		`SELECT id FROM bookings
		 WHERE status = 'PENDING'
		   AND payment_status IN ('PENDING', 'FAILED')
		   AND created_at < $1
		 ORDER BY created_at
		 LIMIT $2`,
		before, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBErr(op, err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return ids, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b       domain.Booking
		refKind string
		refID   string
	)

	err := row.Scan(
		&b.ID, &b.Reference, &b.DestinationID, &b.CustomerID, &b.AgentID,
		&b.TravelDate, &b.ReturnDate, &b.Travelers, &b.TotalPrice.Amount, &b.TotalPrice.Currency,
		&b.Type, &b.Status, &b.PaymentStatus, &refKind, &refID, &b.ChargeID, &b.PaymentAttempts,
		&b.ContactEmail, &b.ContactPhone, &b.SpecialRequests, &b.Notes, &b.CancellationReason,
		&b.CreatedAt, &b.UpdatedAt, &b.ConfirmedAt, &b.CompletedAt, &b.CancelledAt,
	)
	if err != nil {
		return nil, err
	}

	b.Payment = domain.ParsePaymentReference(refKind, refID)

	return &b, nil
}
