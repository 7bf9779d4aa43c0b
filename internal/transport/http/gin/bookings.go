package httpgin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/service"
	"github.com/kirinyoku/tripgo/internal/service/booking"
)

// loadBooking resolves the caller and the booking named by the :id parameter
// and checks allow. It answers the request itself when it returns false.
func loadBooking(
	c *gin.Context,
	svcs *service.Services,
	allow func(domain.Actor, *domain.Booking) bool,
) (domain.Actor, *domain.Booking, bool) {
	a, ok := actorFrom(c)
	if !ok {
		return a, nil, false
	}

	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return a, nil, false
	}

	b, err := svcs.Bookings.Get(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return a, nil, false
	}

	if !allow(a, b) {
		respondErr(c, domain.ErrForbidden)
		return a, nil, false
	}

	return a, b, true
}

// @Summary  Create booking
// @Description Routes the request to the DIRECT or AGENT path and stores a PENDING booking.
// @Tags     bookings
// @Param    X-User-ID        header  int     true   "Caller ID"
// @Param    X-User-Role      header  string  true   "customer|admin"
// @Param    Idempotency-Key  header  string  false  "Replays the first response for repeats"
// @Param    req  body  CreateBookingRequest  true  "payload"
// @Success  201  {object}  CreateBookingResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse  "destination not found"
// @Failure  409  {object}  ErrorResponse  "unavailable or idempotency key in progress"
// @Failure  429  {object}  ErrorResponse  "rate limited"
// @Router   /bookings [post]
func handleCreateBooking(svcs *service.Services, idem IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actorFrom(c)
		if !ok {
			return
		}
		if a.Role != domain.RoleCustomer && a.Role != domain.RoleAdmin {
			respondErr(c, domain.ErrForbidden)
			return
		}

		var req CreateBookingRequest
		if !bindJSON(c, &req, false) {
			return
		}

		travel, err := parseDate("travel_date", req.TravelDate)
		if err != nil {
			respondErr(c, err)
			return
		}
		ret, err := parseOptionalDate("return_date", req.ReturnDate)
		if err != nil {
			respondErr(c, err)
			return
		}

		in := booking.CreateInput{
			DestinationID:   req.DestinationID,
			TravelDate:      travel,
			ReturnDate:      ret,
			Travelers:       req.Travelers,
			ContactEmail:    strings.TrimSpace(req.ContactEmail),
			ContactPhone:    strings.TrimSpace(req.ContactPhone),
			SpecialRequests: req.SpecialRequests,
		}

		idempotent(c, idem, "booking.create", "new", a.ID, func() (int, any, error) {
			res, err := svcs.Bookings.Create(c.Request.Context(), a.ID, in)
			if err != nil {
				return 0, nil, err
			}
			return http.StatusCreated, CreateBookingResponse{
				Booking:            toBookingResponse(res.Booking),
				RequiresPaymentNow: res.RequiresPaymentNow,
			}, nil
		})
	}
}

// @Summary  Get booking
// @Tags     bookings
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200  {object}  BookingResponse
// @Failure  403  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /bookings/{id} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, b, ok := loadBooking(c, svcs, canView)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, toBookingResponse(b))
	}
}

// @Summary  Find booking by reference
// @Tags     bookings
// @Param    reference  query  string  true  "Booking reference, e.g. TRV-7K2QMX9D"
// @Success  200  {object}  BookingResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /bookings [get]
func handleGetBookingByReference(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actorFrom(c)
		if !ok {
			return
		}

		ref := strings.TrimSpace(c.Query("reference"))
		if ref == "" {
			respondErr(c, domain.NewValidationError("reference", "is required"))
			return
		}

		b, err := svcs.Bookings.GetByReference(c.Request.Context(), ref)
		if err != nil {
			respondErr(c, err)
			return
		}
		if !canView(a, b) {
			respondErr(c, domain.ErrForbidden)
			return
		}

		c.JSON(http.StatusOK, toBookingResponse(b))
	}
}

// @Summary  Update booking
// @Description Edits dates, party size and contact details. Price and booking type never change.
// @Tags     bookings
// @Param    id   path  string                true  "Booking ID (uuid)"
// @Param    req  body  UpdateBookingRequest  true  "fields to change"
// @Success  200  {object}  BookingResponse
// @Failure  400  {object}  ErrorResponse
// @Router   /bookings/{id} [patch]
func handleUpdateBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, b, ok := loadBooking(c, svcs, canEdit)
		if !ok {
			return
		}

		var req UpdateBookingRequest
		if !bindJSON(c, &req, false) {
			return
		}

		in := booking.UpdateInput{
			ClearReturnDate: req.ClearReturnDate,
			Travelers:       req.Travelers,
			ContactEmail:    req.ContactEmail,
			ContactPhone:    req.ContactPhone,
			SpecialRequests: req.SpecialRequests,
		}

		if req.TravelDate != nil {
			t, err := parseDate("travel_date", *req.TravelDate)
			if err != nil {
				respondErr(c, err)
				return
			}
			in.TravelDate = &t
		}
		if req.ReturnDate != nil {
			t, err := parseDate("return_date", *req.ReturnDate)
			if err != nil {
				respondErr(c, err)
				return
			}
			in.ReturnDate = &t
		}

		updated, err := svcs.Bookings.Update(c.Request.Context(), b.ID, in)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, toBookingResponse(updated))
	}
}

// @Summary  Assign agent
// @Description Agents claim an unassigned AGENT booking; admins assign the agent named in the body.
// @Tags     agents
// @Param    id   path  string         true   "Booking ID (uuid)"
// @Param    req  body  AssignRequest  false  "agent_id, required for admins"
// @Success  200  {object}  AssignResponse
// @Failure  400  {object}  ErrorResponse  "already_assigned"
// @Failure  403  {object}  ErrorResponse
// @Router   /bookings/{id}/assign [post]
func handleAssignAgent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actorFrom(c)
		if !ok {
			return
		}

		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req AssignRequest
		if !bindJSON(c, &req, true) {
			return
		}

		var agentID int64
		switch a.Role {
		case domain.RoleAgent:
			if req.AgentID != 0 && req.AgentID != a.ID {
				respondErr(c, domain.ErrForbidden)
				return
			}
			agentID = a.ID
		case domain.RoleAdmin:
			if req.AgentID <= 0 {
				respondErr(c, domain.NewValidationError("agent_id", "is required"))
				return
			}
			agentID = req.AgentID
		default:
			respondErr(c, domain.ErrForbidden)
			return
		}

		b, cm, err := svcs.Agents.Assign(c.Request.Context(), id, agentID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, AssignResponse{
			Booking:    toBookingResponse(b),
			Commission: toCommissionResponse(cm),
		})
	}
}

// @Summary  Confirm AGENT booking
// @Tags     agents
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200  {object}  BookingResponse
// @Failure  400  {object}  ErrorResponse  "invalid_transition"
// @Failure  403  {object}  ErrorResponse  "not_assigned_agent"
// @Router   /bookings/{id}/confirm [post]
func handleConfirmBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, b, ok := loadBooking(c, svcs, func(a domain.Actor, b *domain.Booking) bool {
			return isAdmin(a) || a.Role == domain.RoleAgent
		})
		if !ok {
			return
		}

		agentID := a.ID
		if isAdmin(a) {
			agentID = 0
			if b.AgentID != nil {
				agentID = *b.AgentID
			}
		}

		confirmed, err := svcs.Agents.Confirm(c.Request.Context(), b.ID, agentID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, toBookingResponse(confirmed))
	}
}

// @Summary  Complete booking
// @Tags     bookings
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200  {object}  BookingResponse
// @Failure  400  {object}  ErrorResponse  "invalid_transition"
// @Router   /bookings/{id}/complete [post]
func handleCompleteBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, b, ok := loadBooking(c, svcs, canManage)
		if !ok {
			return
		}

		done, err := svcs.Bookings.Complete(c.Request.Context(), b.ID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, toBookingResponse(done))
	}
}

// @Summary  Finalize booking
// @Description Appends agent or admin notes to a PENDING or CONFIRMED booking.
// @Tags     agents
// @Param    id   path  string           true  "Booking ID (uuid)"
// @Param    req  body  FinalizeRequest  true  "notes"
// @Success  200  {object}  BookingResponse
// @Router   /bookings/{id}/finalize [post]
func handleFinalizeBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, b, ok := loadBooking(c, svcs, func(a domain.Actor, b *domain.Booking) bool {
			return isAdmin(a) || isAssignedAgent(a, b)
		})
		if !ok {
			return
		}

		var req FinalizeRequest
		if !bindJSON(c, &req, false) {
			return
		}

		done, err := svcs.Bookings.Finalize(c.Request.Context(), b.ID, req.Notes)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, toBookingResponse(done))
	}
}

// @Summary  Cancel booking
// @Description Cancels a PENDING or CONFIRMED booking and refunds it when paid.
// @Description A failed refund does not fail the cancellation; the message says so.
// @Tags     bookings
// @Param    id               path    string         true   "Booking ID (uuid)"
// @Param    Idempotency-Key  header  string         false  "Replays the first response for repeats"
// @Param    req              body    CancelRequest  false  "reason"
// @Success  200  {object}  CancelResponse
// @Failure  400  {object}  ErrorResponse  "invalid_transition"
// @Router   /bookings/{id}/cancel [post]
func handleCancelBooking(svcs *service.Services, idem IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, b, ok := loadBooking(c, svcs, canManage)
		if !ok {
			return
		}

		var req CancelRequest
		if !bindJSON(c, &req, true) {
			return
		}

		idempotent(c, idem, "booking.cancel", b.ID.String(), a.ID, func() (int, any, error) {
			out, err := svcs.Cancellation.Cancel(c.Request.Context(), b.ID, req.Reason)
			if err != nil {
				return 0, nil, err
			}
			return http.StatusOK, toCancelResponse(out), nil
		})
	}
}

// @Summary  Get booking commission
// @Tags     agents
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200  {object}  CommissionResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /bookings/{id}/commission [get]
func handleGetCommission(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, b, ok := loadBooking(c, svcs, func(a domain.Actor, b *domain.Booking) bool {
			return isAdmin(a) || isAssignedAgent(a, b)
		})
		if !ok {
			return
		}

		cm, err := svcs.Agents.GetCommission(c.Request.Context(), b.ID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, toCommissionResponse(cm))
	}
}
