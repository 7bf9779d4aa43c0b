// Package memory is an in-process implementation of the repositories and the
// unit of work. Transactions are serialised by one lock and rolled back by
// restoring a snapshot, which gives the same observable guarantees as
// row-level locking for a single process.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/repository"
	"github.com/kirinyoku/tripgo/internal/uow"
)

type state struct {
	bookings     map[uuid.UUID]domain.Booking
	references   map[string]uuid.UUID
	commissions  map[uuid.UUID]domain.Commission
	destinations map[int64]domain.Destination
	nextDestID   int64
}

func newState() *state {
	return &state{
		bookings:     make(map[uuid.UUID]domain.Booking),
		references:   make(map[string]uuid.UUID),
		commissions:  make(map[uuid.UUID]domain.Commission),
		destinations: make(map[int64]domain.Destination),
	}
}

func (s *state) clone() *state {
	cp := newState()
	for k, v := range s.bookings {
		cp.bookings[k] = v
	}
	for k, v := range s.references {
		cp.references[k] = v
	}
	for k, v := range s.commissions {
		cp.commissions[k] = v
	}
	for k, v := range s.destinations {
		cp.destinations[k] = copyDestination(v)
	}
	cp.nextDestID = s.nextDestID
	return cp
}

// Store satisfies uow.Store.
type Store struct {
	mu sync.Mutex
	st *state
}

var _ uow.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{st: newState()}
}

// Do runs fn while holding the store lock. Any error restores the state seen
// at the start of the call and discards the after-commit hooks.
func (s *Store) Do(ctx context.Context, fn uow.TxFunc) error {
	s.mu.Lock()

	snapshot := s.st.clone()
	var hooks []uow.AfterCommit

	err := fn(ctx, txRepos{st: s.st}, func(h uow.AfterCommit) {
		hooks = append(hooks, h)
	})
	if err != nil {
		s.st = snapshot
		s.mu.Unlock()
		return err
	}

	s.mu.Unlock()

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}

// Repos returns repositories that take the store lock per call.
func (s *Store) Repos() repository.Repos {
	return lockedRepos{s: s}
}

// SeedDestination stores d as is, keeping its ID, and is meant for tests and local runs.
func (s *Store) SeedDestination(d domain.Destination) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.destinations[d.ID] = copyDestination(d)
	if d.ID > s.st.nextDestID {
		s.st.nextDestID = d.ID
	}
}

// SeedBooking stores b as is, bypassing the state machine.
func (s *Store) SeedBooking(b domain.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.bookings[b.ID] = b
	s.st.references[b.Reference] = b.ID
}

type txRepos struct {
	st *state
}

func (r txRepos) Bookings() repository.BookingRepository         { return bookings{st: r.st} }
func (r txRepos) Commissions() repository.CommissionRepository   { return commissions{st: r.st} }
func (r txRepos) Destinations() repository.DestinationRepository { return destinations{st: r.st} }

type lockedRepos struct {
	s *Store
}

func (r lockedRepos) Bookings() repository.BookingRepository {
	return lockedBookings{s: r.s}
}

func (r lockedRepos) Commissions() repository.CommissionRepository {
	return lockedCommissions{s: r.s}
}

func (r lockedRepos) Destinations() repository.DestinationRepository {
	return lockedDestinations{s: r.s}
}

// within runs fn under the store lock against the live state.
func within[T any](s *Store, fn func(st *state) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

type lockedBookings struct{ s *Store }

func (l lockedBookings) Create(ctx context.Context, b *domain.Booking) error {
	_, err := within(l.s, func(st *state) (struct{}, error) {
		return struct{}{}, bookings{st: st}.Create(ctx, b)
	})
	return err
}

func (l lockedBookings) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return within(l.s, func(st *state) (*domain.Booking, error) {
		return bookings{st: st}.Get(ctx, id)
	})
}

func (l lockedBookings) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	return within(l.s, func(st *state) (*domain.Booking, error) {
		return bookings{st: st}.GetByReference(ctx, reference)
	})
}

func (l lockedBookings) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return l.Get(ctx, id)
}

func (l lockedBookings) Update(ctx context.Context, b *domain.Booking) error {
	_, err := within(l.s, func(st *state) (struct{}, error) {
		return struct{}{}, bookings{st: st}.Update(ctx, b)
	})
	return err
}

func (l lockedBookings) ListStalePending(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	return within(l.s, func(st *state) ([]uuid.UUID, error) {
		return bookings{st: st}.ListStalePending(ctx, before, limit)
	})
}

type lockedCommissions struct{ s *Store }

func (l lockedCommissions) Create(ctx context.Context, c *domain.Commission) error {
	_, err := within(l.s, func(st *state) (struct{}, error) {
		return struct{}{}, commissions{st: st}.Create(ctx, c)
	})
	return err
}

func (l lockedCommissions) GetByBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Commission, error) {
	return within(l.s, func(st *state) (*domain.Commission, error) {
		return commissions{st: st}.GetByBooking(ctx, bookingID)
	})
}

func (l lockedCommissions) GetByBookingForUpdate(ctx context.Context, bookingID uuid.UUID) (*domain.Commission, error) {
	return l.GetByBooking(ctx, bookingID)
}

func (l lockedCommissions) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) error {
	_, err := within(l.s, func(st *state) (struct{}, error) {
		return struct{}{}, commissions{st: st}.MarkPaid(ctx, id, paidAt)
	})
	return err
}

type lockedDestinations struct{ s *Store }

func (l lockedDestinations) Get(ctx context.Context, id int64) (*domain.Destination, error) {
	return within(l.s, func(st *state) (*domain.Destination, error) {
		return destinations{st: st}.Get(ctx, id)
	})
}

func (l lockedDestinations) Create(ctx context.Context, d *domain.Destination) (int64, error) {
	return within(l.s, func(st *state) (int64, error) {
		return destinations{st: st}.Create(ctx, d)
	})
}

func (l lockedDestinations) Update(ctx context.Context, d *domain.Destination) error {
	_, err := within(l.s, func(st *state) (struct{}, error) {
		return struct{}{}, destinations{st: st}.Update(ctx, d)
	})
	return err
}
