package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/repository"
)

type DestinationRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *DestinationRepo) With(db DB) *DestinationRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *DestinationRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Get retrieves a destination with its blackout periods.
//
// Returns:
//   - error: repository.ErrNotFound if the destination does not exist.
func (r *DestinationRepo) Get(ctx context.Context, id int64) (*domain.Destination, error) {
	const op = "postgres.DestinationRepo.Get"

	var (
		d         domain.Destination
		blackouts []byte
	)

	err := r.handle().QueryRow(ctx,
		`SELECT id, name, category, price_per_traveler_cents, currency, capacity,
		        min_travelers, max_travelers, multi_leg, requires_agent, active, blackouts
		 FROM destinations WHERE id = $1`,
		id,
	).Scan(
		&d.ID, &d.Name, &d.Category, &d.PricePerTravelerCents, &d.Currency, &d.Capacity,
		&d.MinTravelers, &d.MaxTravelers, &d.MultiLeg, &d.RequiresAgent, &d.Active, &blackouts,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	if len(blackouts) > 0 {
		if err := json.Unmarshal(blackouts, &d.Blackouts); err != nil {
			return nil, fmt.Errorf("%s: decode blackouts: %w", op, err)
		}
	}

	return &d, nil
}

// Create inserts a destination and returns its ID.
//
// Returns:
//   - error: repository.ErrConflict if a destination with the same name exists.
func (r *DestinationRepo) Create(ctx context.Context, d *domain.Destination) (int64, error) {
	const op = "postgres.DestinationRepo.Create"

	blackouts, err := encodeBlackouts(d.Blackouts)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO destinations (name, category, price_per_traveler_cents, currency, capacity,
		                           min_travelers, max_travelers, multi_leg, requires_agent, active, blackouts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		d.Name, d.Category, d.PricePerTravelerCents, d.Currency, d.Capacity,
		d.MinTravelers, d.MaxTravelers, d.MultiLeg, d.RequiresAgent, d.Active, blackouts,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *DestinationRepo) Update(ctx context.Context, d *domain.Destination) error {
	const op = "postgres.DestinationRepo.Update"

	blackouts, err := encodeBlackouts(d.Blackouts)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	tag, err := r.handle().Exec(ctx,
		`UPDATE destinations SET
		    name = $2, category = $3, price_per_traveler_cents = $4, currency = $5, capacity = $6,
		    min_travelers = $7, max_travelers = $8, multi_leg = $9, requires_agent = $10,
		    active = $11, blackouts = $12
		 WHERE id = $1`,
		d.ID, d.Name, d.Category, d.PricePerTravelerCents, d.Currency, d.Capacity,
		d.MinTravelers, d.MaxTravelers, d.MultiLeg, d.RequiresAgent, d.Active, blackouts,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}

func encodeBlackouts(ranges []domain.DateRange) ([]byte, error) {
	if ranges == nil {
		ranges = []domain.DateRange{}
	}

	return json.Marshal(ranges)
}
