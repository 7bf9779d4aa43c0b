package redis

import "fmt"

const ns = "tripgo:v1"

func KeyDestination(destinationID int64) string {
	return fmt.Sprintf("%s:destination:%d", ns, destinationID)
}

// KeyIdempotency scopes a client key to the operation, the resource it acts on and the caller.
func KeyIdempotency(scope, resource, actor, idemKey string) string {
	return fmt.Sprintf("%s:idem:%s:%s:%s:%s", ns, scope, resource, actor, idemKey)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelBookingEvents() string {
	return ns + ":bookings:events"
}
