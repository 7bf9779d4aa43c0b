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

const commissionColumns = `id, booking_id, agent_id, amount_cents, currency, rate_bps, status, created_at, paid_at`

type CommissionRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *CommissionRepo) With(db DB) *CommissionRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CommissionRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts a commission record.
//
// Returns:
//   - error: repository.ErrConflict if the booking already has a commission.
func (r *CommissionRepo) Create(ctx context.Context, c *domain.Commission) error {
	const op = "postgres.CommissionRepo.Create"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO commissions (`+commissionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.BookingID, c.AgentID, c.Amount.Amount, c.Amount.Currency,
		c.RateBasisPt, c.Status, c.CreatedAt, c.PaidAt,
	)

	return wrapDBErr(op, err)
}

func (r *CommissionRepo) GetByBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Commission, error) {
	const op = "postgres.CommissionRepo.GetByBooking"

	c, err := scanCommission(r.handle().QueryRow(ctx,
		`SELECT `+commissionColumns+` FROM commissions WHERE booking_id = $1`, bookingID))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return c, nil
}

func (r *CommissionRepo) GetByBookingForUpdate(ctx context.Context, bookingID uuid.UUID) (*domain.Commission, error) {
	const op = "postgres.CommissionRepo.GetByBookingForUpdate"

	c, err := scanCommission(r.handle().QueryRow(ctx,
		`SELECT `+commissionColumns+` FROM commissions WHERE booking_id = $1 FOR UPDATE`, bookingID))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return c, nil
}

// MarkPaid moves a PENDING commission to PAID. Already paid commissions are left
// alone, so the call never moves paid_at.
func (r *CommissionRepo) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) error {
	const op = "postgres.CommissionRepo.MarkPaid"

	tag, err := r.handle().Exec(ctx,
		`UPDATE commissions SET status = 'PAID', paid_at = $2
		 WHERE id = $1 AND status = 'PENDING'`,
		id, paidAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}

func scanCommission(row pgx.Row) (*domain.Commission, error) {
	var c domain.Commission

	err := row.Scan(
		&c.ID, &c.BookingID, &c.AgentID, &c.Amount.Amount, &c.Amount.Currency,
		&c.RateBasisPt, &c.Status, &c.CreatedAt, &c.PaidAt,
	)
	if err != nil {
		return nil, err
	}

	return &c, nil
}
