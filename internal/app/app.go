package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirinyoku/tripgo/internal/config"
	"github.com/kirinyoku/tripgo/internal/events"
	"github.com/kirinyoku/tripgo/internal/kafka"
	"github.com/kirinyoku/tripgo/internal/payment"
	"github.com/kirinyoku/tripgo/internal/payment/mockgw"
	"github.com/kirinyoku/tripgo/internal/payment/stripegw"
	"github.com/kirinyoku/tripgo/internal/postgres"
	"github.com/kirinyoku/tripgo/internal/redis"
	"github.com/kirinyoku/tripgo/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/tripgo/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/tripgo/internal/repository/redis"
	"github.com/kirinyoku/tripgo/internal/service"
	"github.com/kirinyoku/tripgo/internal/service/agent"
	"github.com/kirinyoku/tripgo/internal/service/booking"
	"github.com/kirinyoku/tripgo/internal/service/catalog"
	"github.com/kirinyoku/tripgo/internal/service/orchestrator"
	httpgin "github.com/kirinyoku/tripgo/internal/transport/http/gin"
	"github.com/kirinyoku/tripgo/internal/uow"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	services   *service.Services
	pubsub     *redisrepo.EventsPubSub
	httpServer *http.Server
	closers    []func() error
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	store, err := a.initStore()
	if err != nil {
		a.Close()
		return nil, err
	}

	var (
		cache   catalog.Cache
		limiter booking.Limiter
		idem    httpgin.IdempotencyStore
	)

	if !cfg.Redis.Disabled {
		rdb, err := redis.New(context.Background(), redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)

		cache = redisrepo.NewDestinationCache(rdb)
		limiter = redisrepo.NewSlidingWindowLimiter(rdb, "booking.create", cfg.Booking.CreateLimit, cfg.Booking.CreateWindow)
		idem = redisrepo.NewIdempotencyStore(rdb, cfg.Booking.IdemTTL)
		a.pubsub = redisrepo.NewEventsPubSub(rdb)
	}

	publisher, err := a.initPublisher()
	if err != nil {
		a.Close()
		return nil, err
	}

	gw := payment.NewGuarded(a.initGateway(), payment.BreakerConfig{
		Timeout:     cfg.Payment.Timeout,
		MaxFailures: cfg.Payment.BreakerFailures,
		OpenFor:     cfg.Payment.BreakerOpenFor,
	}, logger)

	emitter := events.NewEmitter(publisher, logger, cfg.Events.PublishTimeout)

	a.services = service.NewServices(store, cache, limiter, gw, emitter, logger, service.Config{
		Routing: cfg.Routing,
		Catalog: catalog.Config{CacheTTL: cfg.Booking.CacheTTL, DefaultCurrency: cfg.Payment.Currency},
		Booking: booking.Config{PendingTTL: cfg.Booking.PendingTTL},
		Agent:   agent.Config{CommissionRateBps: cfg.Booking.CommissionRateBps},
		Payments: orchestrator.Config{
			MinChargeMinor: cfg.Payment.MinChargeMinor,
			MaxAttempts:    cfg.Booking.MaxPaymentAttempts,
			SuccessURL:     cfg.Payment.SuccessURL,
			CancelURL:      cfg.Payment.CancelURL,
		},
	})

	router := httpgin.NewRouter(a.services, idem, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) initStore() (uow.Store, error) {
	if a.cfg.Store == "memory" {
		a.logger.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), nil
	}

	pool, err := postgres.New(context.Background(), postgres.Config{
		DSN:      a.cfg.Postgres.DSN(),
		MaxConns: a.cfg.Postgres.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	return uow.NewUoW(postgresrepo.NewStore(pool)), nil
}

func (a *App) initGateway() payment.Gateway {
	if a.cfg.Payment.Provider == "stripe" {
		return stripegw.New(stripegw.Config{
			SecretKey:   a.cfg.Payment.SecretKey,
			HTTPTimeout: a.cfg.Payment.Timeout,
		})
	}

	a.logger.Warn("using mock payment gateway")
	return mockgw.New()
}

func (a *App) initPublisher() (events.Publisher, error) {
	var pubs events.Multi

	sink := a.cfg.Events.Sink
	if sink == "kafka" || sink == "both" {
		producer := kafka.NewProducer(kafka.Config{Brokers: a.cfg.Kafka.Brokers, Topic: a.cfg.Kafka.Topic})
		a.closers = append(a.closers, producer.Close)
		pubs = append(pubs, producer)
	}

	if sink == "redis" || sink == "both" {
		if a.pubsub == nil {
			return nil, errors.New("events sink redis needs redis enabled")
		}
		pubs = append(pubs, a.pubsub)
	}

	if len(pubs) == 0 {
		return events.Nop{}, nil
	}

	return pubs, nil
}

// Run serves HTTP until ctx is cancelled or the process is signalled.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

// Close releases connections opened by New, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
