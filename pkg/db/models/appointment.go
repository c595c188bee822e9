package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/otodealz/otodealz-backend/pkg/enums"
)

// Appointment is the aggregate root of a vehicle sale transaction. Money
// amounts are whole VND and the vehicle price is snapshotted at creation so
// later listing edits cannot change an agreed deal.
type Appointment struct {
	ID                 uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VehicleID          uuid.UUID               `gorm:"column:vehicle_id;type:uuid;not null;index"`
	BuyerID            uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID           uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;index"`
	StaffID            *uuid.UUID              `gorm:"column:staff_id;type:uuid"`
	Type               enums.AppointmentType   `gorm:"column:type;type:appointment_type;not null"`
	Status             enums.AppointmentStatus `gorm:"column:status;type:appointment_status;not null;default:'pending'"`
	ScheduledAt        time.Time               `gorm:"column:scheduled_at;not null"`
	Location           *string                 `gorm:"column:location"`
	Notes              *string                 `gorm:"column:notes"`
	VehiclePriceVND    int64                   `gorm:"column:vehicle_price_vnd;not null"`
	DepositAmountVND   int64                   `gorm:"column:deposit_amount_vnd;not null;default:0"`
	PaidAmountVND      int64                   `gorm:"column:paid_amount_vnd;not null;default:0"`
	RemainingAmountVND int64                   `gorm:"column:remaining_amount_vnd;not null"`
	CancelReason       *string                 `gorm:"column:cancel_reason"`
	BuyerConfirmedAt   *time.Time              `gorm:"column:buyer_confirmed_at"`
	SellerConfirmedAt  *time.Time              `gorm:"column:seller_confirmed_at"`
	ConfirmedAt        *time.Time              `gorm:"column:confirmed_at"`
	CompletedAt        *time.Time              `gorm:"column:completed_at"`
	CancelledAt        *time.Time              `gorm:"column:cancelled_at"`
	Contract           *Contract               `gorm:"foreignKey:AppointmentID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
