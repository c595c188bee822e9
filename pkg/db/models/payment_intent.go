package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/otodealz/otodealz-backend/pkg/enums"
)

// PaymentIntent mirrors one gateway payment request for an appointment.
// OrderCode is the numeric identifier the gateway echoes back on webhooks.
type PaymentIntent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AppointmentID uuid.UUID                 `gorm:"column:appointment_id;type:uuid;not null;index"`
	Kind          enums.PaymentKind         `gorm:"column:kind;type:payment_kind;not null"`
	Status        enums.PaymentIntentStatus `gorm:"column:status;type:payment_intent_status;not null;default:'pending'"`
	AmountVND     int64                     `gorm:"column:amount_vnd;not null"`
	OrderCode     int64                     `gorm:"column:order_code;not null;uniqueIndex"`
	QRCode        *string                   `gorm:"column:qr_code"`
	PaymentURL    *string                   `gorm:"column:payment_url"`
	GatewayTxnID  *string                   `gorm:"column:gateway_txn_id"`
	FailureCode   *string                   `gorm:"column:failure_code"`
	FailureReason *string                   `gorm:"column:failure_reason"`
	SettledAt     *time.Time                `gorm:"column:settled_at"`
	SupersededAt  *time.Time                `gorm:"column:superseded_at"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
