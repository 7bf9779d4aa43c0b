package domain

import (
	"errors"
	"fmt"
)

var (
	ErrBookingNotFound          = errors.New("booking not found")
	ErrDestinationNotFound      = errors.New("destination not found")
	ErrCommissionNotFound       = errors.New("commission not found")
	ErrAlreadyAssigned          = errors.New("booking already has an agent")
	ErrAlreadyPaid              = errors.New("booking already paid")
	ErrNotAssignedAgent         = errors.New("agent is not assigned to this booking")
	ErrPaymentStyleMismatch     = errors.New("booking is already being paid with another payment style")
	ErrPaymentAttemptsExceeded  = errors.New("too many payment attempts for booking")
	ErrPaymentReferenceMismatch = errors.New("payment reference does not belong to booking")
	ErrPaymentRestarted         = errors.New("another payment was started for booking meanwhile")
	ErrForbidden                = errors.New("forbidden")
)

// ValidationError reports bad or missing input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidTransitionError reports a state machine guard violation.
type InvalidTransitionError struct {
	From BookingStatus
	To   BookingStatus
	Why  string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
	if e.Why != "" {
		msg += ": " + e.Why
	}
	return msg
}

func NewInvalidTransitionError(from, to BookingStatus, why string) error {
	return &InvalidTransitionError{From: from, To: to, Why: why}
}

// PaymentNotCompletedError carries the raw processor status of an unpaid session or intent.
type PaymentNotCompletedError struct {
	Status string
}

func (e *PaymentNotCompletedError) Error() string {
	return "payment not completed: " + e.Status
}

// PaymentGatewayError means the processor was unreachable or answered with garbage.
// The booking is left untouched and the call is safe to retry.
type PaymentGatewayError struct {
	Op  string
	Err error
}

func (e *PaymentGatewayError) Error() string {
	return fmt.Sprintf("payment gateway: %s: %v", e.Op, e.Err)
}

func (e *PaymentGatewayError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}

func IsPaymentGateway(err error) bool {
	var ge *PaymentGatewayError
	return errors.As(err, &ge)
}
