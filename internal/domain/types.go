package domain

import (
	"time"

	"github.com/google/uuid"
)

type BookingType string

const (
	BookingDirect BookingType = "DIRECT"
	BookingAgent  BookingType = "AGENT"
)

type BookingStatus string

const (
	StatusPending   BookingStatus = "PENDING"
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusCompleted BookingStatus = "COMPLETED"
	StatusCancelled BookingStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentRefunded  PaymentStatus = "REFUNDED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

type CommissionStatus string

const (
	CommissionPending CommissionStatus = "PENDING"
	CommissionPaid    CommissionStatus = "PAID"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleAdmin    Role = "admin"
)

// Actor is the authenticated caller as resolved by the identity collaborator.
type Actor struct {
	ID   int64
	Role Role
}

// Money is an amount in minor currency units.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// MinorUnits returns the chargeable amount, floored at the processor minimum.
func (m Money) MinorUnits(minCharge int64) int64 {
	if m.Amount < minCharge {
		return minCharge
	}
	return m.Amount
}

type Booking struct {
	ID            uuid.UUID
	Reference     string
	DestinationID int64
	CustomerID    int64
	AgentID       *int64

	TravelDate time.Time
	ReturnDate *time.Time
	Travelers  int

	TotalPrice    Money
	Type          BookingType
	Status        BookingStatus
	PaymentStatus PaymentStatus

	Payment         PaymentReference
	ChargeID        string
	PaymentAttempts int

	ContactEmail       string
	ContactPhone       string
	SpecialRequests    string
	Notes              string
	CancellationReason string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

type Commission struct {
	ID          uuid.UUID
	BookingID   uuid.UUID
	AgentID     int64
	Amount      Money
	RateBasisPt int
	Status      CommissionStatus
	CreatedAt   time.Time
	PaidAt      *time.Time
}

type DestinationCategory string

const (
	CategoryStandard DestinationCategory = "standard"
	CategoryPremium  DestinationCategory = "premium"
)

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r DateRange) Overlaps(from, to time.Time) bool {
	return !to.Before(r.From) && !from.After(r.To)
}

type Destination struct {
	ID                    int64               `json:"id"`
	Name                  string              `json:"name"`
	Category              DestinationCategory `json:"category"`
	PricePerTravelerCents int64               `json:"price_per_traveler_cents"`
	Currency              string              `json:"currency"`
	Capacity              int                 `json:"capacity"`
	MinTravelers          int                 `json:"min_travelers"`
	MaxTravelers          int                 `json:"max_travelers"`
	MultiLeg              bool                `json:"multi_leg"`
	RequiresAgent         bool                `json:"requires_agent"`
	Active                bool                `json:"active"`
	Blackouts             []DateRange         `json:"blackouts"`
}

// RoutingDecision is the outcome of the routing policy. It is never persisted.
type RoutingDecision struct {
	Path           BookingType `json:"path"`
	Available      bool        `json:"available"`
	Reason         string      `json:"reason,omitempty"`
	SuggestedDates []time.Time `json:"suggested_dates,omitempty"`
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
