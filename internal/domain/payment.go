package domain

import "strings"

type PaymentRefKind string

const (
	PaymentRefNone            PaymentRefKind = ""
	PaymentRefCheckoutSession PaymentRefKind = "checkout_session"
	PaymentRefIntent          PaymentRefKind = "payment_intent"
	// PaymentRefUnknown marks references imported without their origin.
	PaymentRefUnknown PaymentRefKind = "unknown"
)

// PaymentReference is the processor object a booking is being paid through.
// A booking only ever carries one kind.
type PaymentReference struct {
	Kind PaymentRefKind `json:"kind,omitempty"`
	ID   string         `json:"id,omitempty"`
}

func CheckoutSessionRef(id string) PaymentReference {
	return PaymentReference{Kind: PaymentRefCheckoutSession, ID: id}
}

func PaymentIntentRef(id string) PaymentReference {
	return PaymentReference{Kind: PaymentRefIntent, ID: id}
}

func (r PaymentReference) IsZero() bool {
	return r.ID == ""
}

// ParsePaymentReference restores a reference from its stored kind and id.
// Unrecognised kinds are guessed from the processor id prefix.
func ParsePaymentReference(kind, id string) PaymentReference {
	if id == "" {
		return PaymentReference{}
	}

	switch PaymentRefKind(kind) {
	case PaymentRefCheckoutSession, PaymentRefIntent:
		return PaymentReference{Kind: PaymentRefKind(kind), ID: id}
	}

	switch {
	case strings.HasPrefix(id, "cs_"):
		return CheckoutSessionRef(id)
	case strings.HasPrefix(id, "pi_"):
		return PaymentIntentRef(id)
	}

	return PaymentReference{Kind: PaymentRefUnknown, ID: id}
}
