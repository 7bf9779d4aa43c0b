package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/repository"
	redisrepo "github.com/kirinyoku/tripgo/internal/repository/redis"
	"github.com/kirinyoku/tripgo/internal/service/routing"
	"github.com/kirinyoku/tripgo/internal/uow"
)

type Config struct {
	CacheTTL time.Duration
	// DefaultCurrency applies to destinations written without a currency.
	DefaultCurrency string
	Now             func() time.Time
}

// Cache is the read-through destination cache. *redisrepo.DestinationCache implements it.
type Cache interface {
	Get(ctx context.Context, id int64, ttl time.Duration, load func(ctx context.Context) (*domain.Destination, error)) (*domain.Destination, error)
	Invalidate(ctx context.Context, id int64) error
}

var _ Cache = (*redisrepo.DestinationCache)(nil)

// Service is the destination catalog: cached lookups, the routing pre-check
// and destination maintenance.
type Service struct {
	store    uow.Store
	cache    Cache
	policy   *routing.Policy
	validate *validator.Validate
	logger   *slog.Logger
	cfg      Config
}

// New builds the catalog. cache may be nil, in which case every read goes to the store.
func New(store uow.Store, cache Cache, policy *routing.Policy, logger *slog.Logger, cfg Config) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "usd"
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		store:    store,
		cache:    cache,
		policy:   policy,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		cfg:      cfg,
	}
}

// Get returns a destination, served from the cache when possible.
//
// Parameters:
//   - ctx: request-scoped context.
//   - id: destination ID.
//
// Returns:
//   - *domain.Destination: the destination including blackout periods.
//   - error: domain.ErrDestinationNotFound if the destination does not exist.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Destination, error) {
	const op = "service.catalog.Get"

	load := func(ctx context.Context) (*domain.Destination, error) {
		d, err := s.store.Repos().Destinations().Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, domain.ErrDestinationNotFound
			}
			return nil, err
		}
		return d, nil
	}

	if s.cache == nil {
		d, err := load(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		return d, nil
	}

	d, err := s.cache.Get(ctx, id, s.cfg.CacheTTL, load)
	if errors.Is(err, redisrepo.ErrCacheUnavailable) {
		s.logger.Warn("destination cache unavailable, reading from store", "destination_id", id, "error", err)
		d, err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return d, nil
}

type AvailabilityInput struct {
	TravelDate time.Time  `validate:"required"`
	ReturnDate *time.Time `validate:"omitempty"`
	PartySize  int        `validate:"required,gt=0"`
}

// Availability is the side-effect free pre-check: which path a booking would
// take and whether the destination can take it at all.
//
// Returns:
//   - domain.RoutingDecision: path, availability, reason and suggested dates.
//   - error: domain.ErrDestinationNotFound, or a *domain.ValidationError for bad input.
func (s *Service) Availability(ctx context.Context, destinationID int64, in AvailabilityInput) (domain.RoutingDecision, error) {
	const op = "service.catalog.Availability"

	if err := s.validate.Struct(in); err != nil {
		return domain.RoutingDecision{}, fmt.Errorf("%s:%w", op, ValidationErr(err))
	}

	d, err := s.Get(ctx, destinationID)
	if err != nil {
		return domain.RoutingDecision{}, fmt.Errorf("%s:%w", op, err)
	}

	dec, err := s.policy.Decide(d, routing.Request{
		TravelDate: in.TravelDate,
		ReturnDate: in.ReturnDate,
		PartySize:  in.PartySize,
		Today:      s.cfg.Now(),
	})
	if err != nil {
		return domain.RoutingDecision{}, fmt.Errorf("%s:%w", op, err)
	}

	return dec, nil
}

type DestinationInput struct {
	Name                  string `validate:"required,max=200"`
	Category              string `validate:"required,oneof=standard premium"`
	PricePerTravelerCents int64  `validate:"gte=0"`
	Currency              string `validate:"required,len=3,lowercase"`
	Capacity              int    `validate:"gte=0"`
	MinTravelers          int    `validate:"gte=0"`
	MaxTravelers          int    `validate:"gte=0,gtefield=MinTravelers"`
	MultiLeg              bool
	RequiresAgent         bool
	Active                bool
	Blackouts             []domain.DateRange
}

func (in DestinationInput) toDomain(id int64) (*domain.Destination, error) {
	blackouts := make([]domain.DateRange, 0, len(in.Blackouts))
	for i, r := range in.Blackouts {
		from, to := domain.Day(r.From), domain.Day(r.To)
		if from.IsZero() || to.Before(from) {
			return nil, domain.NewValidationError(fmt.Sprintf("blackouts[%d]", i), "range must have from <= to")
		}
		blackouts = append(blackouts, domain.DateRange{From: from, To: to})
	}

	return &domain.Destination{
		ID:                    id,
		Name:                  in.Name,
		Category:              domain.DestinationCategory(in.Category),
		PricePerTravelerCents: in.PricePerTravelerCents,
		Currency:              in.Currency,
		Capacity:              in.Capacity,
		MinTravelers:          in.MinTravelers,
		MaxTravelers:          in.MaxTravelers,
		MultiLeg:              in.MultiLeg,
		RequiresAgent:         in.RequiresAgent,
		Active:                in.Active,
		Blackouts:             blackouts,
	}, nil
}

// CreateDestination stores a new destination and returns its ID.
//
// Returns:
//   - error: catalog.ErrDestinationConflict if the name is taken.
func (s *Service) CreateDestination(ctx context.Context, in DestinationInput) (int64, error) {
	const op = "service.catalog.CreateDestination"

	if in.Currency == "" {
		in.Currency = s.cfg.DefaultCurrency
	}

	if err := s.validate.Struct(in); err != nil {
		return 0, fmt.Errorf("%s:%w", op, ValidationErr(err))
	}

	d, err := in.toDomain(0)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	var id int64
	err = s.store.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		var err error
		id, err = tx.Destinations().Create(ctx, d)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrDestinationConflict
			}
			return err
		}

		after(func(ctx context.Context) { s.invalidate(ctx, id) })
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}

// UpdateDestination replaces a destination and drops its cached copy.
// Existing bookings keep the price they were created with.
func (s *Service) UpdateDestination(ctx context.Context, id int64, in DestinationInput) error {
	const op = "service.catalog.UpdateDestination"

	if in.Currency == "" {
		in.Currency = s.cfg.DefaultCurrency
	}

	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%s:%w", op, ValidationErr(err))
	}

	d, err := in.toDomain(id)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	err = s.store.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		if err := tx.Destinations().Update(ctx, d); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.ErrDestinationNotFound
			}
			if errors.Is(err, repository.ErrConflict) {
				return ErrDestinationConflict
			}
			return err
		}

		after(func(ctx context.Context) { s.invalidate(ctx, id) })

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// invalidate drops a cached destination, including a cached miss for a new ID.
func (s *Service) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("invalidate destination cache", "destination_id", id, "error", err)
	}
}
