package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockValue    = "LOCK"
	resultPrefix = "RES:"
)

// StoredResponse is a completed response replayed for a repeated Idempotency-Key.
type StoredResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// IdempotencyStore keeps one slot per key: either an in-flight LOCK marker
// or the final response of the first request that used the key.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// AcquireLock claims key for the caller. It reports false when another request
// holds the key or has already stored a result.
func (s *IdempotencyStore) AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, lockValue, lockTTL).Result()
}

func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, res StoredResponse) error {
	const op = "redis.IdempotencyStore.SaveResult"

	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return s.rdb.Set(ctx, key, resultPrefix+string(b), s.ttl).Err()
}

// GetResult returns the stored response for key. ok is false while the key is
// unknown or still locked.
func (s *IdempotencyStore) GetResult(ctx context.Context, key string) (res StoredResponse, ok bool, err error) {
	const op = "redis.IdempotencyStore.GetResult"

	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return res, false, nil
	}
	if err != nil {
		return res, false, fmt.Errorf("%s:%w", op, err)
	}

	payload, found := strings.CutPrefix(v, resultPrefix)
	if !found {
		return res, false, nil
	}

	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return res, false, fmt.Errorf("%s:%w", op, err)
	}

	return res, true, nil
}

// Release frees a key whose request failed, so the client may retry with it.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
