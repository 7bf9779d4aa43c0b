package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirinyoku/tripgo/internal/domain"
	"golang.org/x/sync/errgroup"
)

// RunWorker expires stale unpaid bookings on a timer and, when redis is
// enabled, tails the booking event channel into the log.
func (a *App) RunWorker(ctx context.Context) error {
	defer a.Close()

	if a.cfg.Store == "memory" {
		a.logger.Warn("worker runs against its own in-memory store and will find nothing to expire")
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.expireLoop(gCtx, a.cfg.Booking.ExpireInterval)
	})

	if a.pubsub != nil {
		g.Go(func() error {
			err := a.pubsub.Subscribe(gCtx, func(_ context.Context, ev domain.Event) {
				a.logger.Info("booking event",
					"type", ev.Type,
					"booking_id", ev.BookingID,
					"reference", ev.Reference,
					"status", ev.Status,
					"payment_status", ev.PaymentStatus,
				)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

func (a *App) expireLoop(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = 5 * time.Minute
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	a.logger.Info("expiry sweep started", "interval", every, "pending_ttl", a.cfg.Booking.PendingTTL)

	for {
		n, err := a.services.Bookings.ExpireStale(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			a.logger.Error("expiry sweep failed", "expired", n, "error", err)
		case n > 0:
			a.logger.Info("expired stale bookings", "count", n)
		}

		select {
		case <-ctx.Done():
			a.logger.Info("expiry sweep stopped")
			return nil
		case <-ticker.C:
		}
	}
}
