package uow

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/tripgo/internal/repository"

	postgres "github.com/kirinyoku/tripgo/internal/repository/postgres"
)

// maxAttempts bounds how many times a transaction is replayed after a
// serialization failure or deadlock.
const maxAttempts = 3

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// TxFunc is the body of a unit of work. tx is bound to the open transaction;
// after registers hooks that run only once the transaction has committed.
type TxFunc func(ctx context.Context, tx repository.Repos, after func(AfterCommit)) error

// Store is what services depend on: transactional access plus plain reads.
type Store interface {
	Do(ctx context.Context, fn TxFunc) error
	Repos() repository.Repos
}

// UoW represents a unit of work over the Postgres store.
type UoW struct {
	store *postgres.Store
}

func NewUoW(store *postgres.Store) *UoW {
	return &UoW{store: store}
}

// Repos returns repositories bound to the pool, outside any transaction.
func (u *UoW) Repos() repository.Repos {
	return u.store.Repos(nil)
}

// Do runs fn inside the transaction. After a successful commit,
// it executes all after-commit hooks.
func (u *UoW) Do(ctx context.Context, fn TxFunc) error {
	return u.DoWithOpts(ctx, nil, fn)
}

// DoWithOpts runs fn inside the transaction with the given options. Retryable
// failures replay fn from scratch, dropping hooks registered by the failed attempt.
func (u *UoW) DoWithOpts(ctx context.Context, opts *pgx.TxOptions, fn TxFunc) error {
	const op = "uow.UoW.Do"

	var (
		hooks []AfterCommit
		err   error
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		hooks = hooks[:0]

		err = u.store.RunTx(ctx, opts, func(ctx context.Context, tx postgres.DB) error {
			return fn(ctx, u.store.Repos(tx), func(h AfterCommit) {
				hooks = append(hooks, h)
			})
		})
		if err == nil {
			break
		}

		if !postgres.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
	}

	if err != nil {
		return fmt.Errorf("%s: retries exhausted: %w", op, err)
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
