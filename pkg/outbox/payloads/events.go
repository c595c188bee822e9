package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/otodealz/otodealz-backend/pkg/enums"
)

// AppointmentConfirmedEvent fires when both parties have confirmed a meeting.
type AppointmentConfirmedEvent struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	VehicleID     uuid.UUID `json:"vehicle_id"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	SellerID      uuid.UUID `json:"seller_id"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

// AppointmentCancelledEvent records a cancellation and its stated reason.
type AppointmentCancelledEvent struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Reason        string    `json:"reason"`
	CancelledAt   time.Time `json:"cancelled_at"`
}

// AppointmentCompletedEvent signals the transaction reached its terminal state.
type AppointmentCompletedEvent struct {
	AppointmentID uuid.UUID  `json:"appointment_id"`
	ContractID    *uuid.UUID `json:"contract_id,omitempty"`
	CompletedAt   time.Time  `json:"completed_at"`
}

// ContractCreatedEvent carries the derived contract terms.
type ContractCreatedEvent struct {
	ContractID         uuid.UUID          `json:"contract_id"`
	AppointmentID      uuid.UUID          `json:"appointment_id"`
	Type               enums.ContractType `json:"type"`
	VehiclePriceVND    int64              `json:"vehicle_price_vnd"`
	DepositAmountVND   int64              `json:"deposit_amount_vnd"`
	RemainingAmountVND int64              `json:"remaining_amount_vnd"`
}

// ContractSignedEvent fires after signing evidence for both sides is stored.
type ContractSignedEvent struct {
	ContractID    uuid.UUID `json:"contract_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	SignedAt      time.Time `json:"signed_at"`
}

// ContractNotarizedEvent fires after notarization proof is stored.
type ContractNotarizedEvent struct {
	ContractID    uuid.UUID `json:"contract_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	NotarizedAt   time.Time `json:"notarized_at"`
}

// DepositSucceededEvent is emitted when a deposit intent settles.
type DepositSucceededEvent struct {
	PaymentIntentID uuid.UUID `json:"payment_intent_id"`
	AppointmentID   uuid.UUID `json:"appointment_id"`
	AmountVND       int64     `json:"amount_vnd"`
	OrderCode       int64     `json:"order_code"`
	SettledAt       time.Time `json:"settled_at"`
}

// PaymentSettledEvent is emitted for every settled intent regardless of kind.
type PaymentSettledEvent struct {
	PaymentIntentID uuid.UUID         `json:"payment_intent_id"`
	AppointmentID   uuid.UUID         `json:"appointment_id"`
	Kind            enums.PaymentKind `json:"kind"`
	AmountVND       int64             `json:"amount_vnd"`
	OrderCode       int64             `json:"order_code"`
	GatewayTxnID    string            `json:"gateway_txn_id,omitempty"`
	SettledAt       time.Time         `json:"settled_at"`
}

// PayoutReleaseRequestedEvent asks the payout system to pay the seller.
type PayoutReleaseRequestedEvent struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	SellerID      uuid.UUID `json:"seller_id"`
	AmountVND     int64     `json:"amount_vnd"`
	RequestedAt   time.Time `json:"requested_at"`
}

// TimelineStepUpdatedEvent reports a step status change on a contract.
type TimelineStepUpdatedEvent struct {
	ContractID    uuid.UUID          `json:"contract_id"`
	AppointmentID uuid.UUID          `json:"appointment_id"`
	Step          enums.TimelineStep `json:"step"`
	Status        enums.StepStatus   `json:"status"`
	UpdatedBy     *uuid.UUID         `json:"updated_by,omitempty"`
}

// EvidenceUploadedEvent reports one persisted all-or-nothing batch.
type EvidenceUploadedEvent struct {
	AppointmentID uuid.UUID          `json:"appointment_id"`
	ContractID    *uuid.UUID         `json:"contract_id,omitempty"`
	Step          enums.TimelineStep `json:"step"`
	Kind          enums.EvidenceKind `json:"kind"`
	BatchID       uuid.UUID          `json:"batch_id"`
	Count         int                `json:"count"`
}
