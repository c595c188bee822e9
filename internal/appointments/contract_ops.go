package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/otodealz/otodealz-backend/internal/contracts"
	"github.com/otodealz/otodealz-backend/pkg/db/models"
	"github.com/otodealz/otodealz-backend/pkg/enums"
	pkgerrors "github.com/otodealz/otodealz-backend/pkg/errors"
)

// CreateContractInput attaches a contract to an appointment. Type is usually
// left nil and derived from the appointment's money amounts.
type CreateContractInput struct {
	AppointmentID uuid.UUID
	Type          *enums.ContractType
	Terms         *string
	ActorID       uuid.UUID
	ActorRole     enums.ActorRole
}

// ContractInfo bundles the contract with its five timeline steps.
// FullyExecuted is derived from the steps on every read, never stored.
type ContractInfo struct {
	Contract      models.Contract       `json:"contract"`
	Timeline      []models.TimelineStep `json:"timeline"`
	FullyExecuted bool                  `json:"fully_executed"`
}

// CreateContract attaches a contract under the appointment lock. Repeated
// calls return the existing contract unchanged.
func (s *service) CreateContract(ctx context.Context, input CreateContractInput) (*models.Contract, error) {
	if input.AppointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}

	var result *models.Contract
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		appointment, err := s.lock(ctx, tx, input.AppointmentID)
		if err != nil {
			return err
		}
		if appointment.Status.IsTerminal() {
			return stateConflict(appointment.Status, "cannot attach a contract to a closed appointment")
		}

		contract, _, err := s.contracts.CreateContract(ctx, tx, contracts.CreateParams{
			Appointment: appointment,
			Type:        input.Type,
			Terms:       input.Terms,
			Actor:       actorRef(input.ActorID, input.ActorRole),
		})
		if err != nil {
			return err
		}
		result = contract
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TimelineStepInput patches one timeline step by contract id. Staff may move a
// step backwards to correct a mistake. Attachments are ids of already uploaded
// evidence rows to link to the step.
type TimelineStepInput struct {
	ContractID  uuid.UUID
	Step        enums.TimelineStep
	Status      enums.StepStatus
	Note        *string
	DueDate     *time.Time
	Attachments []uuid.UUID
	ActorID     uuid.UUID
	ActorRole   enums.ActorRole
}

// ContractTimeline returns the five steps for a contract.
func (s *service) ContractTimeline(ctx context.Context, contractID uuid.UUID) ([]models.TimelineStep, error) {
	return s.contracts.GetTimeline(ctx, contractID)
}

// UpdateTimelineStep patches one step transactionally so the step-updated
// event commits with the row.
func (s *service) UpdateTimelineStep(ctx context.Context, input TimelineStepInput) ([]models.TimelineStep, error) {
	if input.ContractID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contract id required")
	}

	var steps []models.TimelineStep
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		steps, err = s.contracts.UpdateStep(ctx, tx, contracts.UpdateStepParams{
			ContractID: input.ContractID,
			Step:       input.Step,
			Status:     input.Status,
			Note:       input.Note,
			DueDate:    input.DueDate,
			UpdatedBy:  input.ActorID,
			Actor:      actorRef(input.ActorID, input.ActorRole),
		})
		if err != nil {
			return err
		}
		return s.evidence.AttachToStep(ctx, tx, input.ContractID, input.Step, input.Attachments)
	})
	if err != nil {
		return nil, err
	}
	return steps, nil
}

func (s *service) GetContractInfo(ctx context.Context, appointmentID uuid.UUID) (*ContractInfo, error) {
	if appointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}
	contract, err := s.contracts.GetByAppointment(ctx, nil, appointmentID)
	if err != nil {
		return nil, err
	}
	timeline, err := s.contracts.GetTimeline(ctx, contract.ID)
	if err != nil {
		return nil, err
	}
	return &ContractInfo{
		Contract:      *contract,
		Timeline:      timeline,
		FullyExecuted: contracts.IsFullyExecuted(timeline),
	}, nil
}
