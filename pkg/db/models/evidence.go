package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/otodealz/otodealz-backend/pkg/enums"
)

// Evidence is one uploaded artifact backing a timeline step. Rows sharing a
// BatchID were persisted in the same all-or-nothing upload.
type Evidence struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AppointmentID uuid.UUID          `gorm:"column:appointment_id;type:uuid;not null;index"`
	ContractID    *uuid.UUID         `gorm:"column:contract_id;type:uuid"`
	Step          enums.TimelineStep `gorm:"column:step;type:timeline_step;not null"`
	Kind          enums.EvidenceKind `gorm:"column:kind;type:evidence_kind;not null"`
	BatchID       uuid.UUID          `gorm:"column:batch_id;type:uuid;not null;index"`
	ObjectURL     string             `gorm:"column:object_url;not null"`
	ContentType   string             `gorm:"column:content_type;not null"`
	SizeBytes     int64              `gorm:"column:size_bytes;not null"`
	Description   *string            `gorm:"column:description"`
	UploadedBy    uuid.UUID          `gorm:"column:uploaded_by;type:uuid;not null"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the plural form GORM would otherwise mangle.
func (Evidence) TableName() string {
	return "evidence"
}
