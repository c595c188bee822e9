package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/otodealz/otodealz-backend/pkg/enums"
)

// Contract is the sale agreement generated for a confirmed appointment.
// Type is derived once at creation and is immutable afterwards.
type Contract struct {
	ID                 uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AppointmentID      uuid.UUID            `gorm:"column:appointment_id;type:uuid;not null;uniqueIndex"`
	Type               enums.ContractType   `gorm:"column:type;type:contract_type;not null"`
	Status             enums.ContractStatus `gorm:"column:status;type:contract_status;not null;default:'draft'"`
	VehiclePriceVND    int64                `gorm:"column:vehicle_price_vnd;not null"`
	DepositAmountVND   int64                `gorm:"column:deposit_amount_vnd;not null;default:0"`
	RemainingAmountVND int64                `gorm:"column:remaining_amount_vnd;not null"`
	Terms              *string              `gorm:"column:terms"`
	GeneratedPdfURL    *string              `gorm:"column:generated_pdf_url"`
	SignedAt           *time.Time           `gorm:"column:signed_at"`
	NotarizedAt        *time.Time           `gorm:"column:notarized_at"`
	CompletedAt        *time.Time           `gorm:"column:completed_at"`
	Steps              []TimelineStep       `gorm:"foreignKey:ContractID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
