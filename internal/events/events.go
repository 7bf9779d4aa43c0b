// Package events hands booking lifecycle facts to the notification side.
// Delivery is best effort: publishing happens after the owning transaction has
// committed and a failed publish never undoes a state change.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kirinyoku/tripgo/internal/domain"
)

type Publisher interface {
	Publish(ctx context.Context, events ...domain.Event) error
}

// Multi fans out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, events ...domain.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, ...domain.Event) error { return nil }

// Emitter publishes with a bounded timeout and logs failures instead of returning them.
type Emitter struct {
	pub     Publisher
	logger  *slog.Logger
	timeout time.Duration
}

func NewEmitter(pub Publisher, logger *slog.Logger, timeout time.Duration) *Emitter {
	if pub == nil {
		pub = Nop{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Emitter{pub: pub, logger: logger, timeout: timeout}
}

func (e *Emitter) Emit(ctx context.Context, events ...domain.Event) {
	if len(events) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	if err := e.pub.Publish(ctx, events...); err != nil {
		types := make([]string, 0, len(events))
		for _, ev := range events {
			types = append(types, string(ev.Type))
		}
		e.logger.Error("publish booking events",
			"error", err,
			"booking_id", events[0].BookingID,
			"types", types,
		)
	}
}

// Recorder keeps published events in memory. It backs local runs without a
// broker and is handy for asserting on emitted events.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *Recorder) Publish(_ context.Context, events ...domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// Count returns how many events of type t were published.
func (r *Recorder) Count(t domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}
