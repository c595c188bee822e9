package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateAppointment   OutboxAggregateType = "appointment"
	AggregateContract      OutboxAggregateType = "contract"
	AggregatePaymentIntent OutboxAggregateType = "payment_intent"
	AggregateEvidence      OutboxAggregateType = "evidence"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateAppointment,
	AggregateContract,
	AggregatePaymentIntent,
	AggregateEvidence,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventAppointmentConfirmed   OutboxEventType = "appointment_confirmed"
	EventAppointmentCancelled   OutboxEventType = "appointment_cancelled"
	EventAppointmentCompleted   OutboxEventType = "appointment_completed"
	EventContractCreated        OutboxEventType = "contract_created"
	EventContractSigned         OutboxEventType = "contract_signed"
	EventContractNotarized      OutboxEventType = "contract_notarized"
	EventDepositSucceeded       OutboxEventType = "deposit_succeeded"
	EventPaymentSettled         OutboxEventType = "payment_settled"
	EventPayoutReleaseRequested OutboxEventType = "payout_release_requested"
	EventTimelineStepUpdated    OutboxEventType = "timeline_step_updated"
	EventEvidenceUploaded       OutboxEventType = "evidence_uploaded"
)

var validEventTypes = []OutboxEventType{
	EventAppointmentConfirmed,
	EventAppointmentCancelled,
	EventAppointmentCompleted,
	EventContractCreated,
	EventContractSigned,
	EventContractNotarized,
	EventDepositSucceeded,
	EventPaymentSettled,
	EventPayoutReleaseRequested,
	EventTimelineStepUpdated,
	EventEvidenceUploaded,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason classifies why a row was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
}

// IsValid reports whether the value matches the canonical DLQ reason enum.
func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validOutboxDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
