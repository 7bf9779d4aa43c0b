package httpgin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/service"
	"github.com/kirinyoku/tripgo/internal/service/catalog"
)

// @Summary  Get destination
// @Tags     destinations
// @Param    id  path  int  true  "Destination ID"
// @Success  200  {object}  domain.Destination
// @Failure  404  {object}  ErrorResponse
// @Router   /destinations/{id} [get]
func handleGetDestination(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		d, err := svcs.Catalog.Get(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeCachedJSON(c, d, "public, max-age=60")
	}
}

// @Summary  Check availability
// @Description Side-effect free routing pre-check: which path a booking would take and whether it fits.
// @Tags     destinations
// @Param    id           path   int     true   "Destination ID"
// @Param    travel_date  query  string  true   "YYYY-MM-DD"
// @Param    return_date  query  string  false  "YYYY-MM-DD"
// @Param    travelers    query  int     true   "party size"
// @Success  200  {object}  AvailabilityResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /destinations/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		travel, err := parseDate("travel_date", c.Query("travel_date"))
		if err != nil {
			respondErr(c, err)
			return
		}
		ret, err := parseOptionalDate("return_date", c.Query("return_date"))
		if err != nil {
			respondErr(c, err)
			return
		}
		party, err := strconv.Atoi(c.Query("travelers"))
		if err != nil {
			respondErr(c, domain.NewValidationError("travelers", "must be an integer"))
			return
		}

		dec, err := svcs.Catalog.Availability(c.Request.Context(), id, catalog.AvailabilityInput{
			TravelDate: travel,
			ReturnDate: ret,
			PartySize:  party,
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		writeCachedJSON(c, toAvailabilityResponse(id, dec), "public, max-age=15")
	}
}

// @Summary  Create destination
// @Tags     admin
// @Param    req  body  DestinationRequest  true  "payload"
// @Success  201  {object}  CreateDestinationResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse  "name taken"
// @Router   /admin/destinations [post]
func handleCreateDestination(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DestinationRequest
		if !bindJSON(c, &req, false) {
			return
		}

		in, err := req.toInput()
		if err != nil {
			respondErr(c, err)
			return
		}

		id, err := svcs.Catalog.CreateDestination(c.Request.Context(), in)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, CreateDestinationResponse{DestinationID: id})
	}
}

// @Summary  Replace destination
// @Description Existing bookings keep the price they were created with.
// @Tags     admin
// @Param    id   path  int                 true  "Destination ID"
// @Param    req  body  DestinationRequest  true  "payload"
// @Success  204
// @Failure  400  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /admin/destinations/{id} [put]
func handleUpdateDestination(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var req DestinationRequest
		if !bindJSON(c, &req, false) {
			return
		}

		in, err := req.toInput()
		if err != nil {
			respondErr(c, err)
			return
		}

		if err := svcs.Catalog.UpdateDestination(c.Request.Context(), id, in); err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// @Summary  Expire stale bookings
// @Description Cancels unpaid PENDING bookings older than the pending TTL. The worker runs this on a timer.
// @Tags     admin
// @Success  200  {object}  ExpireResponse
// @Router   /admin/bookings/expire [post]
func handleExpireBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := svcs.Bookings.ExpireStale(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, ExpireResponse{Expired: n})
	}
}
