package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/redis/go-redis/v9"
)

// EventsPubSub broadcasts booking lifecycle events on a redis channel for
// listeners that do not consume from kafka.
type EventsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewEventsPubSub(rdb *redis.Client) *EventsPubSub {
	return &EventsPubSub{
		rdb:     rdb,
		channel: ChannelBookingEvents(),
	}
}

func (p *EventsPubSub) Publish(ctx context.Context, events ...domain.Event) error {
	const op = "redis.EventsPubSub.Publish"

	if len(events) == 0 {
		return nil
	}

	pipe := p.rdb.Pipeline()
	for _, ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("%s: marshal %s: %w", op, ev.Type, err)
		}
		pipe.Publish(ctx, p.channel, b)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Subscribe delivers decoded events to handler until ctx is done.
// Undecodable payloads are skipped.
func (p *EventsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, ev domain.Event)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev domain.Event
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil && ev.Type != "" {
				handler(ctx, ev)
			}
		}
	}
}
