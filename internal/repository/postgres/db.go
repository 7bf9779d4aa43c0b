package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tripgo/internal/repository"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// RunTx runs fn inside a transaction. Booking rows are locked explicitly with
// SELECT ... FOR UPDATE, so READ COMMITTED is the default isolation level.
func (s *Store) RunTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// Repos returns repositories bound to db, or to the pool when db is nil.
func (s *Store) Repos(db DB) repository.Repos {
	return repos{pool: s.pool, db: db}
}

func (s *Store) Bookings() *BookingRepo         { return &BookingRepo{pool: s.pool} }
func (s *Store) Commissions() *CommissionRepo   { return &CommissionRepo{pool: s.pool} }
func (s *Store) Destinations() *DestinationRepo { return &DestinationRepo{pool: s.pool} }

type repos struct {
	pool *pgxpool.Pool
	db   DB
}

func (r repos) Bookings() repository.BookingRepository {
	return &BookingRepo{pool: r.pool, db: r.db}
}

func (r repos) Commissions() repository.CommissionRepository {
	return &CommissionRepo{pool: r.pool, db: r.db}
}

func (r repos) Destinations() repository.DestinationRepository {
	return &DestinationRepo{pool: r.pool, db: r.db}
}
