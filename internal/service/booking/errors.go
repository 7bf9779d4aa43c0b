package booking

import (
	"fmt"
	"time"

	"github.com/kirinyoku/tripgo/internal/domain"
)

// UnavailableError is returned by Create when the routing policy finds the
// destination cannot take the requested stay. It carries the decision so the
// caller can offer the suggested dates.
type UnavailableError struct {
	Decision domain.RoutingDecision
}

func (e *UnavailableError) Error() string {
	return "destination unavailable: " + e.Decision.Reason
}

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many bookings, retry in %s", e.RetryAfter.Round(time.Second))
}
