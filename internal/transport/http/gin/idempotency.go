package httpgin

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redisrepo "github.com/kirinyoku/tripgo/internal/repository/redis"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"

	idemLockTTL = 60 * time.Second
)

// IdempotencyStore keeps the first response per Idempotency-Key.
// *redisrepo.IdempotencyStore implements it.
type IdempotencyStore interface {
	AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	SaveResult(ctx context.Context, key string, res redisrepo.StoredResponse) error
	GetResult(ctx context.Context, key string) (redisrepo.StoredResponse, bool, error)
	Release(ctx context.Context, key string) error
}

var _ IdempotencyStore = (*redisrepo.IdempotencyStore)(nil)

// handlerFunc produces the response for an idempotent request.
type handlerFunc func() (status int, body any, err error)

// idempotent runs fn at most once per (scope, resource, actor, Idempotency-Key)
// and replays the stored response for repeats. resource is the booking the
// request acts on, so one key reused on another booking runs again. Without a key or a store, fn
// simply runs. Failed requests release the key so the client may retry.
func idempotent(c *gin.Context, idem IdempotencyStore, scope, resource string, actorID int64, fn handlerFunc) {
	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if idem == nil || key == "" {
		status, body, err := fn()
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(status, body)
		return
	}

	ctx := c.Request.Context()
	storageKey := redisrepo.KeyIdempotency(scope, resource, strconv.FormatInt(actorID, 10), key)

	if res, ok, _ := idem.GetResult(ctx, storageKey); ok {
		replay(c, key, res)
		return
	}

	locked, err := idem.AcquireLock(ctx, storageKey, idemLockTTL)
	if err != nil {
		respondErr(c, err)
		return
	}
	if !locked {
		if res, ok, _ := idem.GetResult(ctx, storageKey); ok {
			replay(c, key, res)
			return
		}
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "idempotency key in progress",
			Code:  "idempotency_in_progress",
		})
		return
	}

	status, body, err := fn()
	if err != nil {
		_ = idem.Release(ctx, storageKey)
		respondErr(c, err)
		return
	}

	b, err := json.Marshal(body)
	if err != nil {
		_ = idem.Release(ctx, storageKey)
		respondErr(c, err)
		return
	}

	if err := idem.SaveResult(ctx, storageKey, redisrepo.StoredResponse{Status: status, Body: b}); err != nil {
		_ = c.Error(err)
	}

	c.Header(HeaderIdempotencyKey, key)
	c.Data(status, "application/json; charset=utf-8", b)
}

func replay(c *gin.Context, key string, res redisrepo.StoredResponse) {
	c.Header(HeaderIdempotencyKey, key)
	c.Header("Idempotent-Replayed", "true")
	c.Data(res.Status, "application/json; charset=utf-8", res.Body)
}
