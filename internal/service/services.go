package service

import (
	"log/slog"

	"github.com/kirinyoku/tripgo/internal/events"
	"github.com/kirinyoku/tripgo/internal/payment"
	"github.com/kirinyoku/tripgo/internal/service/agent"
	"github.com/kirinyoku/tripgo/internal/service/booking"
	"github.com/kirinyoku/tripgo/internal/service/cancellation"
	"github.com/kirinyoku/tripgo/internal/service/catalog"
	"github.com/kirinyoku/tripgo/internal/service/orchestrator"
	"github.com/kirinyoku/tripgo/internal/service/routing"
	"github.com/kirinyoku/tripgo/internal/uow"
)

type Services struct {
	Catalog      *catalog.Service
	Bookings     *booking.Service
	Agents       *agent.Service
	Payments     *orchestrator.Service
	Cancellation *cancellation.Service
}

type Config struct {
	Routing      routing.Config
	Catalog      catalog.Config
	Booking      booking.Config
	Agent        agent.Config
	Payments     orchestrator.Config
	Cancellation cancellation.Config
}

// NewServices wires the booking core. cache and limiter may be nil.
func NewServices(
	store uow.Store,
	cache catalog.Cache,
	limiter booking.Limiter,
	gw payment.Gateway,
	emitter *events.Emitter,
	logger *slog.Logger,
	cfg Config,
) *Services {
	policy := routing.New(cfg.Routing)

	catalogSvc := catalog.New(store, cache, policy, logger.With("service", "catalog"), cfg.Catalog)
	agents := agent.New(store, emitter, logger.With("service", "agent"), cfg.Agent)

	return &Services{
		Catalog:      catalogSvc,
		Bookings:     booking.New(store, catalogSvc, policy, limiter, emitter, logger.With("service", "booking"), cfg.Booking),
		Agents:       agents,
		Payments:     orchestrator.New(store, gw, agents, emitter, logger.With("service", "payments"), cfg.Payments),
		Cancellation: cancellation.New(store, gw, emitter, logger.With("service", "cancellation"), cfg.Cancellation),
	}
}
