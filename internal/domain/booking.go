package domain

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
	"time"
)

const referencePrefix = "TRV-"

var refEncoding = base32.NewEncoding("ABCDEFGHJKLMNPQRSTUVWXYZ23456789").WithPadding(base32.NoPadding)

// NewReference generates a human-readable booking reference such as TRV-7K2QMX9D.
// Uniqueness is enforced by the store; callers regenerate on conflict.
func NewReference() string {
	b := make([]byte, 5)
	_, _ = rand.Read(b)
	return referencePrefix + refEncoding.EncodeToString(b)
}

// BookingUpdate holds the customer-editable fields. Nil means unchanged.
type BookingUpdate struct {
	TravelDate      *time.Time
	ReturnDate      *time.Time
	ClearReturnDate bool
	Travelers       *int
	ContactEmail    *string
	ContactPhone    *string
	SpecialRequests *string
}

func (b *Booking) IsTerminal() bool {
	return b.Status == StatusCancelled || b.Status == StatusCompleted
}

// CanTransitionTo reports whether the booking status may move to target.
//
// Valid transitions are:
//   - PENDING   -> CONFIRMED, CANCELLED
//   - CONFIRMED -> COMPLETED, CANCELLED
//
// CANCELLED and COMPLETED are terminal.
func (b *Booking) CanTransitionTo(target BookingStatus) error {
	switch b.Status {
	case StatusPending:
		if target == StatusConfirmed || target == StatusCancelled {
			return nil
		}
	case StatusConfirmed:
		if target == StatusCompleted || target == StatusCancelled {
			return nil
		}
	}

	if b.IsTerminal() {
		return NewInvalidTransitionError(b.Status, target, "booking is "+strings.ToLower(string(b.Status)))
	}

	return NewInvalidTransitionError(b.Status, target, "")
}

// ApplyUpdate changes scheduling and contact fields. Destination, owner, price
// and status are never touched here.
func (b *Booking) ApplyUpdate(u BookingUpdate, now time.Time) error {
	if b.IsTerminal() {
		return NewInvalidTransitionError(b.Status, b.Status, "terminal bookings cannot be edited")
	}

	travel := b.TravelDate
	if u.TravelDate != nil {
		travel = Day(*u.TravelDate)
	}

	ret := b.ReturnDate
	if u.ClearReturnDate {
		ret = nil
	}
	if u.ReturnDate != nil {
		d := Day(*u.ReturnDate)
		ret = &d
	}

	if ret != nil && ret.Before(travel) {
		return NewValidationError("return_date", "must not be before travel date")
	}

	if u.Travelers != nil && *u.Travelers <= 0 {
		return NewValidationError("travelers", "must be positive")
	}

	b.TravelDate = travel
	b.ReturnDate = ret
	if u.Travelers != nil {
		b.Travelers = *u.Travelers
	}
	if u.ContactEmail != nil {
		b.ContactEmail = *u.ContactEmail
	}
	if u.ContactPhone != nil {
		b.ContactPhone = *u.ContactPhone
	}
	if u.SpecialRequests != nil {
		b.SpecialRequests = *u.SpecialRequests
	}
	b.UpdatedAt = now

	return nil
}

// AssignAgent sets the agent of an AGENT booking. First assignment wins.
func (b *Booking) AssignAgent(agentID int64, now time.Time) error {
	if b.Type != BookingAgent {
		return NewValidationError("booking_type", "only AGENT bookings can be assigned to an agent")
	}
	if b.IsTerminal() {
		return NewInvalidTransitionError(b.Status, b.Status, "cannot assign an agent to a "+strings.ToLower(string(b.Status))+" booking")
	}
	if b.AgentID != nil {
		return ErrAlreadyAssigned
	}

	b.AgentID = &agentID
	b.UpdatedAt = now

	return nil
}

// ConfirmByAgent is the explicit agent confirmation of an AGENT booking.
// Payment may still be pending. It reports false when the booking was already confirmed.
func (b *Booking) ConfirmByAgent(agentID int64, now time.Time) (bool, error) {
	if b.Type != BookingAgent {
		return false, NewInvalidTransitionError(b.Status, StatusConfirmed, "DIRECT bookings are confirmed by payment")
	}
	if b.AgentID == nil || *b.AgentID != agentID {
		return false, ErrNotAssignedAgent
	}
	if b.Status == StatusConfirmed {
		return false, nil
	}
	if err := b.CanTransitionTo(StatusConfirmed); err != nil {
		return false, err
	}

	b.Status = StatusConfirmed
	b.ConfirmedAt = &now
	b.UpdatedAt = now

	return true, nil
}

// CanStartPayment checks the preconditions for opening a checkout session or
// payment intent of the given kind.
func (b *Booking) CanStartPayment(kind PaymentRefKind, maxAttempts int) error {
	if b.IsTerminal() {
		return NewInvalidTransitionError(b.Status, StatusConfirmed, "cannot pay for a "+strings.ToLower(string(b.Status))+" booking")
	}
	if b.PaymentStatus == PaymentPaid {
		return ErrAlreadyPaid
	}
	if b.Type == BookingAgent && b.Status != StatusConfirmed {
		return NewInvalidTransitionError(b.Status, StatusConfirmed, "agent confirmation is required before payment")
	}
	if !b.Payment.IsZero() && b.Payment.Kind != kind {
		return ErrPaymentStyleMismatch
	}
	if maxAttempts > 0 && b.PaymentAttempts >= maxAttempts {
		return ErrPaymentAttemptsExceeded
	}

	return nil
}

// AttachPayment records a freshly created session or intent as the booking's payment reference.
func (b *Booking) AttachPayment(ref PaymentReference, maxAttempts int, now time.Time) error {
	if ref.IsZero() {
		return NewValidationError("payment_reference", "is required")
	}
	if err := b.CanStartPayment(ref.Kind, maxAttempts); err != nil {
		return err
	}

	b.Payment = ref
	b.PaymentAttempts++
	if b.PaymentStatus == PaymentFailed {
		b.PaymentStatus = PaymentPending
	}
	b.UpdatedAt = now

	return nil
}

// ConfirmPayment marks the booking paid with proof of capture. DIRECT bookings are
// confirmed at the same time; AGENT bookings must already be agent-confirmed.
// It reports false when the booking was already paid.
func (b *Booking) ConfirmPayment(proof string, now time.Time) (bool, error) {
	if b.PaymentStatus == PaymentPaid && b.Status != StatusCancelled {
		return false, nil
	}
	if b.IsTerminal() {
		return false, NewInvalidTransitionError(b.Status, StatusConfirmed, "cannot confirm payment of a "+strings.ToLower(string(b.Status))+" booking")
	}
	if proof == "" {
		return false, NewValidationError("payment_reference", "proof of payment is required")
	}
	if b.Payment.IsZero() {
		return false, NewValidationError("payment_reference", "booking has no payment in progress")
	}

	switch b.Type {
	case BookingDirect:
		if b.Status == StatusPending {
			b.Status = StatusConfirmed
			b.ConfirmedAt = &now
		}
	case BookingAgent:
		if b.Status != StatusConfirmed {
			return false, NewInvalidTransitionError(b.Status, StatusConfirmed, "agent confirmation is required before payment")
		}
	}

	b.PaymentStatus = PaymentPaid
	b.ChargeID = proof
	b.UpdatedAt = now

	return true, nil
}

// MarkPaymentFailed records a terminal processor failure. The booking stays payable.
func (b *Booking) MarkPaymentFailed(now time.Time) bool {
	if b.IsTerminal() || b.PaymentStatus != PaymentPending {
		return false
	}

	b.PaymentStatus = PaymentFailed
	b.UpdatedAt = now

	return true
}

func (b *Booking) Complete(now time.Time) error {
	if err := b.CanTransitionTo(StatusCompleted); err != nil {
		return err
	}

	b.Status = StatusCompleted
	b.CompletedAt = &now
	b.UpdatedAt = now

	return nil
}

// Finalize attaches agent or admin notes without changing status.
func (b *Booking) Finalize(notes string, now time.Time) error {
	if b.Status != StatusPending && b.Status != StatusConfirmed {
		return NewInvalidTransitionError(b.Status, b.Status, "only pending or confirmed bookings can be finalized")
	}
	if strings.TrimSpace(notes) == "" {
		return NewValidationError("notes", "is required")
	}

	if b.Notes == "" {
		b.Notes = notes
	} else {
		b.Notes = b.Notes + "\n" + notes
	}
	b.UpdatedAt = now

	return nil
}

// Cancel moves the booking to CANCELLED. refunded marks a confirmed refund of a paid booking.
func (b *Booking) Cancel(reason string, refunded bool, now time.Time) error {
	if err := b.CanTransitionTo(StatusCancelled); err != nil {
		return err
	}

	b.Status = StatusCancelled
	b.CancellationReason = reason
	b.CancelledAt = &now
	if refunded && b.PaymentStatus == PaymentPaid {
		b.PaymentStatus = PaymentRefunded
	}
	b.UpdatedAt = now

	return nil
}

// Expire cancels an unpaid pending booking whose payment window has passed.
func (b *Booking) Expire(now time.Time) error {
	if b.Status != StatusPending {
		return NewInvalidTransitionError(b.Status, StatusCancelled, "only pending bookings expire")
	}
	if b.PaymentStatus != PaymentPending && b.PaymentStatus != PaymentFailed {
		return NewInvalidTransitionError(b.Status, StatusCancelled, "booking has a settled payment")
	}

	if err := b.Cancel("expired: payment not received", false, now); err != nil {
		return err
	}
	b.PaymentStatus = PaymentCancelled

	return nil
}

// CommissionFor returns round(price * rate) where rate is in basis points.
func CommissionFor(price Money, rateBasisPt int) Money {
	return Money{
		Amount:   (price.Amount*int64(rateBasisPt) + 5000) / 10000,
		Currency: price.Currency,
	}
}
