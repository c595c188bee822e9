package enums

import "fmt"

// AppointmentType distinguishes what a scheduled meeting is for.
type AppointmentType string

const (
	AppointmentTypeVehicleInspection    AppointmentType = "vehicle_inspection"
	AppointmentTypeContractSigning      AppointmentType = "contract_signing"
	AppointmentTypeContractNotarization AppointmentType = "contract_notarization"
	AppointmentTypeHandover             AppointmentType = "handover"
	AppointmentTypeDelivery             AppointmentType = "delivery"
	AppointmentTypeOther                AppointmentType = "other"
)

var validAppointmentTypes = []AppointmentType{
	AppointmentTypeVehicleInspection,
	AppointmentTypeContractSigning,
	AppointmentTypeContractNotarization,
	AppointmentTypeHandover,
	AppointmentTypeDelivery,
	AppointmentTypeOther,
}

// String implements fmt.Stringer.
func (a AppointmentType) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AppointmentType.
func (a AppointmentType) IsValid() bool {
	for _, candidate := range validAppointmentTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAppointmentType converts raw input into an AppointmentType.
func ParseAppointmentType(value string) (AppointmentType, error) {
	for _, candidate := range validAppointmentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid appointment type %q", value)
}
