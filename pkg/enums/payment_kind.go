package enums

import "fmt"

// PaymentKind names the three ways money is collected for an appointment.
type PaymentKind string

const (
	PaymentKindDeposit   PaymentKind = "deposit"
	PaymentKindFull      PaymentKind = "full"
	PaymentKindRemaining PaymentKind = "remaining"
)

var validPaymentKinds = []PaymentKind{
	PaymentKindDeposit,
	PaymentKindFull,
	PaymentKindRemaining,
}

// String implements fmt.Stringer.
func (p PaymentKind) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentKind.
func (p PaymentKind) IsValid() bool {
	for _, candidate := range validPaymentKinds {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentKind converts raw input into a PaymentKind.
func ParsePaymentKind(value string) (PaymentKind, error) {
	for _, candidate := range validPaymentKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment kind %q", value)
}
