package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/otodealz/otodealz-backend/pkg/enums"
)

// TimelineStep is one of the five fixed execution phases of a contract.
// All five rows are created together with the contract.
type TimelineStep struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ContractID uuid.UUID          `gorm:"column:contract_id;type:uuid;not null;uniqueIndex:idx_timeline_contract_step"`
	Step       enums.TimelineStep `gorm:"column:step;type:timeline_step;not null;uniqueIndex:idx_timeline_contract_step"`
	Status     enums.StepStatus   `gorm:"column:status;type:step_status;not null;default:'pending'"`
	Note       *string            `gorm:"column:note"`
	DueDate    *time.Time         `gorm:"column:due_date"`
	UpdatedBy  *uuid.UUID         `gorm:"column:updated_by;type:uuid"`
	StartedAt  *time.Time         `gorm:"column:started_at"`
	DoneAt     *time.Time         `gorm:"column:done_at"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName keeps the historical table name for the step rows.
func (TimelineStep) TableName() string {
	return "timeline_steps"
}
