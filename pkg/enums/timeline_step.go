package enums

import "fmt"

// TimelineStep names one of the five fixed contract execution phases.
// Steps are addressed by name, never by position.
type TimelineStep string

const (
	TimelineStepSignContract         TimelineStep = "sign_contract"
	TimelineStepNotarization         TimelineStep = "notarization"
	TimelineStepTransferOwnership    TimelineStep = "transfer_ownership"
	TimelineStepHandoverPapersAndCar TimelineStep = "handover_papers_and_car"
	TimelineStepCompleted            TimelineStep = "completed"
)

// TimelineStepOrder is the canonical presentation order of the five steps.
var TimelineStepOrder = []TimelineStep{
	TimelineStepSignContract,
	TimelineStepNotarization,
	TimelineStepTransferOwnership,
	TimelineStepHandoverPapersAndCar,
	TimelineStepCompleted,
}

// String implements fmt.Stringer.
func (s TimelineStep) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TimelineStep.
func (s TimelineStep) IsValid() bool {
	for _, candidate := range TimelineStepOrder {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseTimelineStep converts raw input into a TimelineStep.
func ParseTimelineStep(value string) (TimelineStep, error) {
	for _, candidate := range TimelineStepOrder {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid timeline step %q", value)
}
