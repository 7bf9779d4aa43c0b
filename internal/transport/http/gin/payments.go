package httpgin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tripgo/internal/service"
	"github.com/kirinyoku/tripgo/internal/service/orchestrator"
)

// @Summary  Start hosted checkout
// @Description Opens a checkout session for the booking total. AGENT bookings must be confirmed first.
// @Tags     payments
// @Param    id               path    string  true   "Booking ID (uuid)"
// @Param    Idempotency-Key  header  string  false  "Replays the first response for repeats"
// @Success  201  {object}  CheckoutResponse
// @Failure  400  {object}  ErrorResponse  "already_paid, payment_style_mismatch, payment_attempts_exceeded"
// @Failure  502  {object}  ErrorResponse  "payment processor unavailable"
// @Router   /bookings/{id}/payments/checkout [post]
func handleStartCheckout(svcs *service.Services, idem IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, b, ok := loadBooking(c, svcs, canEdit)
		if !ok {
			return
		}

		idempotent(c, idem, "payment.checkout", b.ID.String(), a.ID, func() (int, any, error) {
			res, err := svcs.Payments.StartCheckout(c.Request.Context(), b.ID)
			if err != nil {
				return 0, nil, err
			}
			return http.StatusCreated, CheckoutResponse{
				SessionID:   res.SessionID,
				CheckoutURL: res.CheckoutURL,
				Booking:     toBookingResponse(res.Booking),
			}, nil
		})
	}
}

// @Summary  Verify hosted checkout
// @Description Confirms the booking once the processor reports the session paid. Safe to repeat.
// @Tags     payments
// @Param    id   path  string                 true  "Booking ID (uuid)"
// @Param    req  body  VerifyCheckoutRequest  true  "session_id"
// @Success  200  {object}  VerifyResponse
// @Failure  402  {object}  ErrorResponse  "payment_not_completed with the processor status"
// @Failure  502  {object}  ErrorResponse  "payment processor unavailable"
// @Router   /bookings/{id}/payments/checkout/verify [post]
func handleVerifyCheckout(svcs *service.Services, idem IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, b, ok := loadBooking(c, svcs, canEdit)
		if !ok {
			return
		}

		var req VerifyCheckoutRequest
		if !bindJSON(c, &req, false) {
			return
		}

		idempotent(c, idem, "payment.checkout.verify", b.ID.String(), a.ID, func() (int, any, error) {
			res, err := svcs.Payments.VerifyCheckout(c.Request.Context(), b.ID, strings.TrimSpace(req.SessionID))
			if err != nil {
				return 0, nil, err
			}
			return http.StatusOK, toVerifyResponse(res), nil
		})
	}
}

// @Summary  Start payment intent
// @Description Creates a payment intent for the booking total and returns its client secret.
// @Tags     payments
// @Param    id               path    string  true   "Booking ID (uuid)"
// @Param    Idempotency-Key  header  string  false  "Replays the first response for repeats"
// @Success  201  {object}  IntentResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  502  {object}  ErrorResponse
// @Router   /bookings/{id}/payments/intent [post]
func handleStartIntent(svcs *service.Services, idem IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, b, ok := loadBooking(c, svcs, canEdit)
		if !ok {
			return
		}

		idempotent(c, idem, "payment.intent", b.ID.String(), a.ID, func() (int, any, error) {
			res, err := svcs.Payments.StartIntent(c.Request.Context(), b.ID)
			if err != nil {
				return 0, nil, err
			}
			return http.StatusCreated, IntentResponse{
				IntentID:     res.IntentID,
				ClientSecret: res.ClientSecret,
				Booking:      toBookingResponse(res.Booking),
			}, nil
		})
	}
}

// @Summary  Confirm payment intent
// @Tags     payments
// @Param    id   path  string                true  "Booking ID (uuid)"
// @Param    req  body  ConfirmIntentRequest  true  "intent_id"
// @Success  200  {object}  VerifyResponse
// @Failure  402  {object}  ErrorResponse
// @Failure  502  {object}  ErrorResponse
// @Router   /bookings/{id}/payments/intent/verify [post]
func handleConfirmIntent(svcs *service.Services, idem IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, b, ok := loadBooking(c, svcs, canEdit)
		if !ok {
			return
		}

		var req ConfirmIntentRequest
		if !bindJSON(c, &req, false) {
			return
		}

		idempotent(c, idem, "payment.intent.verify", b.ID.String(), a.ID, func() (int, any, error) {
			res, err := svcs.Payments.ConfirmIntent(c.Request.Context(), b.ID, strings.TrimSpace(req.IntentID))
			if err != nil {
				return 0, nil, err
			}
			return http.StatusOK, toVerifyResponse(res), nil
		})
	}
}

func toVerifyResponse(res orchestrator.VerifyResult) VerifyResponse {
	resp := VerifyResponse{
		Booking:     toBookingResponse(res.Booking),
		AlreadyPaid: res.AlreadyPaid,
	}

	if res.Commission != nil {
		cm := toCommissionResponse(res.Commission)
		resp.Commission = &cm
	}

	return resp
}
