package httpgin

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tripgo/internal/domain"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	actorKey = "actor"
)

var errUnauthenticated = errors.New("unauthenticated")

// ActorMiddleware reads the caller identity forwarded by the identity gateway.
// Requests without identity headers pass through anonymously; malformed ones
// are rejected.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		rawRole := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole)))

		if rawID == "" && rawRole == "" {
			c.Next()
			return
		}

		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || id <= 0 {
			abortUnauthenticated(c, "invalid "+HeaderUserID)
			return
		}

		role := domain.Role(rawRole)
		switch role {
		case domain.RoleCustomer, domain.RoleAgent, domain.RoleAdmin:
		default:
			abortUnauthenticated(c, "invalid "+HeaderUserRole)
			return
		}

		c.Set(actorKey, domain.Actor{ID: id, Role: role})
		c.Next()
	}
}

// RequireRole rejects anonymous callers and callers whose role is not listed.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actorFrom(c)
		if !ok {
			c.Abort()
			return
		}

		for _, r := range roles {
			if a.Role == r {
				c.Next()
				return
			}
		}

		respondErr(c, domain.ErrForbidden)
		c.Abort()
	}
}

// actorFrom returns the authenticated caller, answering 401 when there is none.
func actorFrom(c *gin.Context) (domain.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		respondErr(c, errUnauthenticated)
		return domain.Actor{}, false
	}

	a, ok := v.(domain.Actor)
	if !ok {
		respondErr(c, errUnauthenticated)
		return domain.Actor{}, false
	}

	return a, true
}

func abortUnauthenticated(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: msg, Code: "unauthenticated"})
}

func isAdmin(a domain.Actor) bool {
	return a.Role == domain.RoleAdmin
}

func isOwner(a domain.Actor, b *domain.Booking) bool {
	return a.Role == domain.RoleCustomer && a.ID == b.CustomerID
}

func isAssignedAgent(a domain.Actor, b *domain.Booking) bool {
	return a.Role == domain.RoleAgent && b.AgentID != nil && *b.AgentID == a.ID
}

// canView: the owner, the assigned agent, any agent while an AGENT booking is
// still unassigned, and admins.
func canView(a domain.Actor, b *domain.Booking) bool {
	switch {
	case isAdmin(a), isOwner(a, b), isAssignedAgent(a, b):
		return true
	case a.Role == domain.RoleAgent:
		return b.Type == domain.BookingAgent && b.AgentID == nil
	default:
		return false
	}
}

func canEdit(a domain.Actor, b *domain.Booking) bool {
	return isAdmin(a) || isOwner(a, b)
}

// canManage covers lifecycle actions shared by the customer and the agent
// handling the booking: complete and cancel.
func canManage(a domain.Actor, b *domain.Booking) bool {
	return isAdmin(a) || isOwner(a, b) || isAssignedAgent(a, b)
}
