package enums

import "fmt"

// AppointmentStatus tracks the lifecycle of a transaction appointment.
type AppointmentStatus string

const (
	AppointmentStatusPending                  AppointmentStatus = "pending"
	AppointmentStatusConfirmed                AppointmentStatus = "confirmed"
	AppointmentStatusAwaitingRemainingPayment AppointmentStatus = "awaiting_remaining_payment"
	AppointmentStatusCompleted                AppointmentStatus = "completed"
	AppointmentStatusCancelled                AppointmentStatus = "cancelled"
	AppointmentStatusRescheduled              AppointmentStatus = "rescheduled"
)

var validAppointmentStatuses = []AppointmentStatus{
	AppointmentStatusPending,
	AppointmentStatusConfirmed,
	AppointmentStatusAwaitingRemainingPayment,
	AppointmentStatusCompleted,
	AppointmentStatusCancelled,
	AppointmentStatusRescheduled,
}

// String implements fmt.Stringer.
func (a AppointmentStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AppointmentStatus.
func (a AppointmentStatus) IsValid() bool {
	for _, candidate := range validAppointmentStatuses {
		if candidate == a {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may leave this status.
func (a AppointmentStatus) IsTerminal() bool {
	return a == AppointmentStatusCompleted || a == AppointmentStatusCancelled
}

// ParseAppointmentStatus converts raw input into an AppointmentStatus.
func ParseAppointmentStatus(value string) (AppointmentStatus, error) {
	for _, candidate := range validAppointmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid appointment status %q", value)
}
