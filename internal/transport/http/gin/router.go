package httpgin

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/service"
	"github.com/kirinyoku/tripgo/internal/service/booking"
	"github.com/kirinyoku/tripgo/internal/service/catalog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// NewRouter builds the HTTP API. idem may be nil, in which case
// Idempotency-Key headers are ignored.
func NewRouter(
	svcs *service.Services,
	idem IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS(), ActorMiddleware())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// catalog
	r.GET("/destinations/:id", handleGetDestination(svcs))
	r.GET("/destinations/:id/availability", handleGetAvailability(svcs))

	// bookings
	r.POST("/bookings", handleCreateBooking(svcs, idem))
	r.GET("/bookings", handleGetBookingByReference(svcs))
	r.GET("/bookings/:id", handleGetBooking(svcs))
	r.PATCH("/bookings/:id", handleUpdateBooking(svcs))
	r.POST("/bookings/:id/assign", handleAssignAgent(svcs))
	r.POST("/bookings/:id/confirm", handleConfirmBooking(svcs))
	r.POST("/bookings/:id/complete", handleCompleteBooking(svcs))
	r.POST("/bookings/:id/finalize", handleFinalizeBooking(svcs))
	r.POST("/bookings/:id/cancel", handleCancelBooking(svcs, idem))
	r.GET("/bookings/:id/commission", handleGetCommission(svcs))

	// payments
	r.POST("/bookings/:id/payments/checkout", handleStartCheckout(svcs, idem))
	r.POST("/bookings/:id/payments/checkout/verify", handleVerifyCheckout(svcs, idem))
	r.POST("/bookings/:id/payments/intent", handleStartIntent(svcs, idem))
	r.POST("/bookings/:id/payments/intent/verify", handleConfirmIntent(svcs, idem))

	admin := r.Group("/admin", RequireRole(domain.RoleAdmin))
	{
		admin.POST("/destinations", handleCreateDestination(svcs))
		admin.PUT("/destinations/:id", handleUpdateDestination(svcs))
		admin.POST("/bookings/expire", handleExpireBookings(svcs))
	}

	return r
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		respondErr(c, domain.NewValidationError(name, "must be a positive integer"))
		return 0, false
	}
	return v, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondErr(c, domain.NewValidationError(name, "must be a UUID"))
		return uuid.Nil, false
	}
	return v, true
}

// bindJSON decodes the request body into req. An empty body is accepted when
// optional is set.
func bindJSON(c *gin.Context, req any, optional bool) bool {
	err := c.ShouldBindJSON(req)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		respondErr(c, catalog.ValidationErr(err))
		return false
	}

	respondErr(c, domain.NewValidationError("", "malformed JSON body"))
	return false
}

// respondErr maps the error taxonomy onto HTTP statuses. Unexpected errors are
// attached to the context for the access log and answered with a bare 500.
func respondErr(c *gin.Context, err error) {
	var (
		ve  *domain.ValidationError
		te  *domain.InvalidTransitionError
		pe  *domain.PaymentNotCompletedError
		ge  *domain.PaymentGatewayError
		ue  *booking.UnavailableError
		rle *booking.RateLimitedError
	)

	switch {
	case errors.Is(err, errUnauthenticated):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required", Code: "unauthenticated"})

	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ve.Error(), Code: "validation_error", Field: ve.Field})

	case errors.As(err, &te):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: te.Error(),
			Code:  "invalid_transition",
			From:  string(te.From),
			To:    string(te.To),
		})

	case errors.Is(err, domain.ErrAlreadyAssigned):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: domain.ErrAlreadyAssigned.Error(), Code: "already_assigned"})

	case errors.Is(err, domain.ErrAlreadyPaid):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: domain.ErrAlreadyPaid.Error(), Code: "already_paid"})

	case errors.Is(err, domain.ErrPaymentStyleMismatch):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: domain.ErrPaymentStyleMismatch.Error(), Code: "payment_style_mismatch"})

	case errors.Is(err, domain.ErrPaymentAttemptsExceeded):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: domain.ErrPaymentAttemptsExceeded.Error(), Code: "payment_attempts_exceeded"})

	case errors.Is(err, domain.ErrPaymentReferenceMismatch):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: domain.ErrPaymentReferenceMismatch.Error(), Code: "payment_reference_mismatch"})

	case errors.Is(err, domain.ErrPaymentRestarted):
		c.JSON(http.StatusConflict, ErrorResponse{Error: domain.ErrPaymentRestarted.Error(), Code: "payment_restarted"})

	case errors.As(err, &pe):
		c.JSON(http.StatusPaymentRequired, ErrorResponse{
			Error:         pe.Error(),
			Code:          "payment_not_completed",
			PaymentStatus: pe.Status,
		})

	case errors.As(err, &ge):
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "payment processor unavailable, retry later", Code: "payment_gateway_error"})

	case errors.As(err, &ue):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:          ue.Error(),
			Code:           "unavailable",
			Reason:         ue.Decision.Reason,
			SuggestedDates: formatDates(ue.Decision.SuggestedDates),
		})

	case errors.As(err, &rle):
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rle.RetryAfter.Seconds()))))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: rle.Error(), Code: "rate_limited"})

	case errors.Is(err, domain.ErrBookingNotFound),
		errors.Is(err, domain.ErrDestinationNotFound),
		errors.Is(err, domain.ErrCommissionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: rootMessage(err), Code: "not_found"})

	case errors.Is(err, domain.ErrNotAssignedAgent):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: domain.ErrNotAssignedAgent.Error(), Code: "not_assigned_agent"})

	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: domain.ErrForbidden.Error(), Code: "forbidden"})

	case errors.Is(err, catalog.ErrDestinationConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: catalog.ErrDestinationConflict.Error(), Code: "conflict"})

	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "internal"})
	}
}

func rootMessage(err error) string {
	for _, target := range []error{
		domain.ErrBookingNotFound,
		domain.ErrDestinationNotFound,
		domain.ErrCommissionNotFound,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}
