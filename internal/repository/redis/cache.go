package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ErrCacheUnavailable marks redis failures. Callers fall back to the store.
var ErrCacheUnavailable = errors.New("destination cache unavailable")

// missingMarker is stored for destinations the store does not know.
const missingMarker = "-"

// DestinationCache is a read-through cache of catalog destinations.
// Concurrent misses on one destination share a single load.
type DestinationCache struct {
	rdb        *redis.Client
	sf         singleflight.Group
	missingTTL time.Duration
}

func NewDestinationCache(client *redis.Client) *DestinationCache {
	return &DestinationCache{rdb: client, missingTTL: 30 * time.Second}
}

// Get returns the cached destination, or loads it and caches the result for ttl.
//
// Returns:
//   - *domain.Destination: a copy the caller may modify.
//   - error: domain.ErrDestinationNotFound, also served from the cache for a short while.
//   - error: ErrCacheUnavailable when redis could not be read.
//   - error: any error of load.
func (c *DestinationCache) Get(
	ctx context.Context,
	id int64,
	ttl time.Duration,
	load func(ctx context.Context) (*domain.Destination, error),
) (*domain.Destination, error) {
	const op = "redis.DestinationCache.Get"

	key := KeyDestination(id)

	if d, hit, err := c.read(ctx, key); hit || err != nil {
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		return d, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		if d, hit, err := c.read(ctx, key); hit || err != nil {
			return d, err
		}

		d, err := load(ctx)
		if errors.Is(err, domain.ErrDestinationNotFound) {
			_ = c.rdb.Set(ctx, key, missingMarker, c.missingTTL).Err()
			return nil, err
		}
		if err != nil {
			return nil, err
		}

		if b, err := json.Marshal(d); err == nil {
			_ = c.rdb.Set(ctx, key, b, ttl).Err()
		}

		return d, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	d, ok := v.(*domain.Destination)
	if !ok || d == nil {
		return nil, fmt.Errorf("%s: unexpected %T for destination %d", op, v, id)
	}

	return clone(d), nil
}

// Invalidate drops the cached destination so the next read goes to the store.
func (c *DestinationCache) Invalidate(ctx context.Context, id int64) error {
	return c.rdb.Del(ctx, KeyDestination(id)).Err()
}

// read reports hit for cached destinations and for cached misses. A corrupt
// entry counts as a miss and is overwritten by the next load.
func (c *DestinationCache) read(ctx context.Context, key string) (*domain.Destination, bool, error) {
	s, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}

	if s == missingMarker {
		return nil, true, domain.ErrDestinationNotFound
	}

	var d domain.Destination
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return nil, false, nil
	}

	return &d, true, nil
}

func clone(d *domain.Destination) *domain.Destination {
	cp := *d
	cp.Blackouts = slices.Clone(d.Blackouts)
	return &cp
}
