package httpgin

import (
	"time"

	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/kirinyoku/tripgo/internal/service/cancellation"
	"github.com/kirinyoku/tripgo/internal/service/catalog"
)

const dateLayout = "2006-01-02"

type ErrorResponse struct {
	Error          string   `json:"error"`
	Code           string   `json:"code,omitempty"`
	Field          string   `json:"field,omitempty"`
	From           string   `json:"from,omitempty"`
	To             string   `json:"to,omitempty"`
	PaymentStatus  string   `json:"payment_status,omitempty"`
	Reason         string   `json:"reason,omitempty"`
	SuggestedDates []string `json:"suggested_dates,omitempty"`
}

type CreateBookingRequest struct {
	DestinationID   int64  `json:"destination_id"`
	TravelDate      string `json:"travel_date" example:"2026-06-01"`
	ReturnDate      string `json:"return_date,omitempty" example:"2026-06-08"`
	Travelers       int    `json:"travelers"`
	ContactEmail    string `json:"contact_email"`
	ContactPhone    string `json:"contact_phone,omitempty"`
	SpecialRequests string `json:"special_requests,omitempty"`
}

type CreateBookingResponse struct {
	Booking            BookingResponse `json:"booking"`
	RequiresPaymentNow bool            `json:"requires_payment_now"`
}

// UpdateBookingRequest only touches the fields that are present.
type UpdateBookingRequest struct {
	TravelDate      *string `json:"travel_date,omitempty"`
	ReturnDate      *string `json:"return_date,omitempty"`
	ClearReturnDate bool    `json:"clear_return_date,omitempty"`
	Travelers       *int    `json:"travelers,omitempty"`
	ContactEmail    *string `json:"contact_email,omitempty"`
	ContactPhone    *string `json:"contact_phone,omitempty"`
	SpecialRequests *string `json:"special_requests,omitempty"`
}

// AssignRequest names the agent. Agents may omit it to claim the booking themselves.
type AssignRequest struct {
	AgentID int64 `json:"agent_id"`
}

type AssignResponse struct {
	Booking    BookingResponse    `json:"booking"`
	Commission CommissionResponse `json:"commission"`
}

type FinalizeRequest struct {
	Notes string `json:"notes" binding:"required,max=5000"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type RefundResponse struct {
	Attempted bool   `json:"attempted"`
	Confirmed bool   `json:"confirmed"`
	ID        string `json:"id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type CancelResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Booking BookingResponse `json:"booking"`
	Refund  *RefundResponse `json:"refund,omitempty"`
}

type CheckoutResponse struct {
	SessionID   string          `json:"session_id"`
	CheckoutURL string          `json:"checkout_url"`
	Booking     BookingResponse `json:"booking"`
}

type IntentResponse struct {
	IntentID     string          `json:"intent_id"`
	ClientSecret string          `json:"client_secret"`
	Booking      BookingResponse `json:"booking"`
}

type VerifyCheckoutRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

type ConfirmIntentRequest struct {
	IntentID string `json:"intent_id" binding:"required"`
}

type VerifyResponse struct {
	Booking     BookingResponse     `json:"booking"`
	Commission  *CommissionResponse `json:"commission,omitempty"`
	AlreadyPaid bool                `json:"already_paid"`
}

type CommissionResponse struct {
	ID          string       `json:"id"`
	BookingID   string       `json:"booking_id"`
	AgentID     int64        `json:"agent_id"`
	Amount      domain.Money `json:"amount"`
	RateBasisPt int          `json:"rate_basis_points"`
	Status      string       `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	PaidAt      *time.Time   `json:"paid_at,omitempty"`
}

type DateRangeRequest struct {
	From string `json:"from" binding:"required" example:"2026-07-01"`
	To   string `json:"to" binding:"required" example:"2026-07-05"`
}

type DestinationRequest struct {
	Name                  string             `json:"name"`
	Category              string             `json:"category" example:"standard"`
	PricePerTravelerCents int64              `json:"price_per_traveler_cents"`
	Currency              string             `json:"currency" example:"usd"`
	Capacity              int                `json:"capacity"`
	MinTravelers          int                `json:"min_travelers"`
	MaxTravelers          int                `json:"max_travelers"`
	MultiLeg              bool               `json:"multi_leg"`
	RequiresAgent         bool               `json:"requires_agent"`
	Active                bool               `json:"active"`
	Blackouts             []DateRangeRequest `json:"blackouts" binding:"dive"`
}

type CreateDestinationResponse struct {
	DestinationID int64 `json:"destination_id"`
}

type AvailabilityResponse struct {
	DestinationID  int64    `json:"destination_id"`
	Path           string   `json:"path"`
	Available      bool     `json:"available"`
	Reason         string   `json:"reason,omitempty"`
	SuggestedDates []string `json:"suggested_dates,omitempty"`
}

type ExpireResponse struct {
	Expired int `json:"expired"`
}

type PaymentReferenceResponse struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type BookingResponse struct {
	ID                 string                    `json:"id"`
	Reference          string                    `json:"reference"`
	DestinationID      int64                     `json:"destination_id"`
	CustomerID         int64                     `json:"customer_id"`
	AgentID            *int64                    `json:"agent_id,omitempty"`
	TravelDate         string                    `json:"travel_date"`
	ReturnDate         string                    `json:"return_date,omitempty"`
	Travelers          int                       `json:"travelers"`
	TotalPrice         domain.Money              `json:"total_price"`
	BookingType        string                    `json:"booking_type"`
	Status             string                    `json:"status"`
	PaymentStatus      string                    `json:"payment_status"`
	Payment            *PaymentReferenceResponse `json:"payment,omitempty"`
	PaymentAttempts    int                       `json:"payment_attempts"`
	ContactEmail       string                    `json:"contact_email"`
	ContactPhone       string                    `json:"contact_phone,omitempty"`
	SpecialRequests    string                    `json:"special_requests,omitempty"`
	Notes              string                    `json:"notes,omitempty"`
	CancellationReason string                    `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time                 `json:"created_at"`
	UpdatedAt          time.Time                 `json:"updated_at"`
	ConfirmedAt        *time.Time                `json:"confirmed_at,omitempty"`
	CompletedAt        *time.Time                `json:"completed_at,omitempty"`
	CancelledAt        *time.Time                `json:"cancelled_at,omitempty"`
}

func toBookingResponse(b *domain.Booking) BookingResponse {
	resp := BookingResponse{
		ID:                 b.ID.String(),
		Reference:          b.Reference,
		DestinationID:      b.DestinationID,
		CustomerID:         b.CustomerID,
		AgentID:            b.AgentID,
		TravelDate:         b.TravelDate.Format(dateLayout),
		Travelers:          b.Travelers,
		TotalPrice:         b.TotalPrice,
		BookingType:        string(b.Type),
		Status:             string(b.Status),
		PaymentStatus:      string(b.PaymentStatus),
		PaymentAttempts:    b.PaymentAttempts,
		ContactEmail:       b.ContactEmail,
		ContactPhone:       b.ContactPhone,
		SpecialRequests:    b.SpecialRequests,
		Notes:              b.Notes,
		CancellationReason: b.CancellationReason,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
		ConfirmedAt:        b.ConfirmedAt,
		CompletedAt:        b.CompletedAt,
		CancelledAt:        b.CancelledAt,
	}

	if b.ReturnDate != nil {
		resp.ReturnDate = b.ReturnDate.Format(dateLayout)
	}

	if !b.Payment.IsZero() {
		resp.Payment = &PaymentReferenceResponse{Kind: string(b.Payment.Kind), ID: b.Payment.ID}
	}

	return resp
}

func toCommissionResponse(c *domain.Commission) CommissionResponse {
	return CommissionResponse{
		ID:          c.ID.String(),
		BookingID:   c.BookingID.String(),
		AgentID:     c.AgentID,
		Amount:      c.Amount,
		RateBasisPt: c.RateBasisPt,
		Status:      string(c.Status),
		CreatedAt:   c.CreatedAt,
		PaidAt:      c.PaidAt,
	}
}

func toCancelResponse(out cancellation.Outcome) CancelResponse {
	resp := CancelResponse{
		Success: true,
		Message: out.Message,
		Booking: toBookingResponse(out.Booking),
	}

	if out.WasPaid {
		resp.Refund = &RefundResponse{
			Attempted: out.RefundAttempted,
			Confirmed: out.RefundConfirmed,
			ID:        out.RefundID,
			Error:     out.RefundError,
		}
	}

	return resp
}

func toAvailabilityResponse(destinationID int64, d domain.RoutingDecision) AvailabilityResponse {
	return AvailabilityResponse{
		DestinationID:  destinationID,
		Path:           string(d.Path),
		Available:      d.Available,
		Reason:         d.Reason,
		SuggestedDates: formatDates(d.SuggestedDates),
	}
}

func (r DestinationRequest) toInput() (catalog.DestinationInput, error) {
	in := catalog.DestinationInput{
		Name:                  r.Name,
		Category:              r.Category,
		PricePerTravelerCents: r.PricePerTravelerCents,
		Currency:              r.Currency,
		Capacity:              r.Capacity,
		MinTravelers:          r.MinTravelers,
		MaxTravelers:          r.MaxTravelers,
		MultiLeg:              r.MultiLeg,
		RequiresAgent:         r.RequiresAgent,
		Active:                r.Active,
		Blackouts:             make([]domain.DateRange, 0, len(r.Blackouts)),
	}

	for _, br := range r.Blackouts {
		from, err := parseDate("blackouts.from", br.From)
		if err != nil {
			return in, err
		}
		to, err := parseDate("blackouts.to", br.To)
		if err != nil {
			return in, err
		}
		in.Blackouts = append(in.Blackouts, domain.DateRange{From: from, To: to})
	}

	return in, nil
}

// parseDate parses a calendar day (YYYY-MM-DD) in UTC.
func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, "must be a date in YYYY-MM-DD format")
	}
	return t, nil
}

func parseOptionalDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseDate(field, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatDates(ts []time.Time) []string {
	if len(ts) == 0 {
		return nil
	}
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Format(dateLayout)
	}
	return out
}
