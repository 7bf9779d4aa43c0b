package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventBookingCreated    EventType = "booking.created"
	EventBookingUpdated    EventType = "booking.updated"
	EventBookingAssigned   EventType = "booking.assigned"
	EventBookingConfirmed  EventType = "booking.confirmed"
	EventBookingPaid       EventType = "booking.paid"
	EventBookingCompleted  EventType = "booking.completed"
	EventBookingFinalized  EventType = "booking.finalized"
	EventBookingCancelled  EventType = "booking.cancelled"
	EventBookingExpired    EventType = "booking.expired"
	EventCommissionCreated EventType = "commission.created"
	EventCommissionPaid    EventType = "commission.paid"
	EventRefundFailed      EventType = "refund.failed"
)

// Event is a booking lifecycle fact handed to the notification collaborator.
type Event struct {
	Type          EventType     `json:"type"`
	BookingID     uuid.UUID     `json:"booking_id"`
	Reference     string        `json:"reference"`
	CustomerID    int64         `json:"customer_id"`
	AgentID       *int64        `json:"agent_id,omitempty"`
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Email         string        `json:"email,omitempty"`
	Amount        *Money        `json:"amount,omitempty"`
	Detail        string        `json:"detail,omitempty"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

func NewBookingEvent(t EventType, b *Booking, at time.Time) Event {
	return Event{
		Type:          t,
		BookingID:     b.ID,
		Reference:     b.Reference,
		CustomerID:    b.CustomerID,
		AgentID:       b.AgentID,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		Email:         b.ContactEmail,
		OccurredAt:    at,
	}
}
