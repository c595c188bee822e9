package contracts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/otodealz/otodealz-backend/pkg/db/models"
	"github.com/otodealz/otodealz-backend/pkg/enums"
	pkgerrors "github.com/otodealz/otodealz-backend/pkg/errors"
	"github.com/otodealz/otodealz-backend/pkg/outbox"
	"github.com/otodealz/otodealz-backend/pkg/outbox/payloads"
)

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service owns the contract entity and its five-step timeline.
type Service interface {
	CreateContract(ctx context.Context, tx *gorm.DB, params CreateParams) (*models.Contract, bool, error)
	GetByAppointment(ctx context.Context, tx *gorm.DB, appointmentID uuid.UUID) (*models.Contract, error)
	GetTimeline(ctx context.Context, contractID uuid.UUID) ([]models.TimelineStep, error)
	FullyExecuted(ctx context.Context, tx *gorm.DB, contractID uuid.UUID) (bool, error)
	UpdateStep(ctx context.Context, tx *gorm.DB, params UpdateStepParams) ([]models.TimelineStep, error)
	MarkSigned(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, at time.Time) error
	MarkNotarized(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, at time.Time) error
	MarkCompleted(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, at time.Time) error
	SetStepDone(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, step enums.TimelineStep, updatedBy uuid.UUID, at time.Time) error
}

type service struct {
	repo   Repository
	outbox outboxPublisher
}

// CreateParams carries the appointment snapshot the type rule reads. The
// orchestrator passes the row it already holds a lock on.
type CreateParams struct {
	Appointment *models.Appointment
	Type        *enums.ContractType
	Terms       *string
	Actor       *outbox.ActorRef
}

// UpdateStepParams patches one named step without touching the others.
type UpdateStepParams struct {
	ContractID uuid.UUID
	Step       enums.TimelineStep
	Status     enums.StepStatus
	Note       *string
	DueDate    *time.Time
	UpdatedBy  uuid.UUID
	Actor      *outbox.ActorRef
}

// NewService wires the contract engine dependencies.
func NewService(repo Repository, publisher outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("contracts repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, outbox: publisher}, nil
}

// DeriveType decides the contract type once at creation time. Full payment
// means the deal carries no remaining balance: either the deposit already
// equals the price or nothing is left to pay.
func DeriveType(vehiclePriceVND, depositVND, remainingVND int64) enums.ContractType {
	if vehiclePriceVND > 0 && (depositVND == vehiclePriceVND || remainingVND == 0) {
		return enums.ContractTypeFullPayment
	}
	return enums.ContractTypeDeposit
}

// IsFullyExecuted reports whether every one of the five steps is done.
func IsFullyExecuted(steps []models.TimelineStep) bool {
	if len(steps) != len(enums.TimelineStepOrder) {
		return false
	}
	for _, step := range steps {
		if step.Status != enums.StepStatusDone {
			return false
		}
	}
	return true
}

// CreateContract returns the existing contract when the appointment already
// has one, never a duplicate. The five step rows are created together with
// the contract.
func (s *service) CreateContract(ctx context.Context, tx *gorm.DB, params CreateParams) (*models.Contract, bool, error) {
	if tx == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	appointment := params.Appointment
	if appointment == nil || appointment.ID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "appointment required")
	}
	if params.Type != nil && !params.Type.IsValid() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "invalid contract type")
	}

	repo := s.repo.WithTx(tx)
	existing, err := repo.FindByAppointment(ctx, appointment.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load contract")
	}

	contractType := DeriveType(appointment.VehiclePriceVND, appointment.DepositAmountVND, appointment.RemainingAmountVND)
	if params.Type != nil {
		contractType = *params.Type
	}

	contract := &models.Contract{
		AppointmentID:      appointment.ID,
		Type:               contractType,
		Status:             enums.ContractStatusDraft,
		VehiclePriceVND:    appointment.VehiclePriceVND,
		DepositAmountVND:   appointment.DepositAmountVND,
		RemainingAmountVND: appointment.RemainingAmountVND,
		Terms:              params.Terms,
	}
	if err := repo.Create(ctx, contract); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create contract")
	}

	steps := make([]models.TimelineStep, 0, len(enums.TimelineStepOrder))
	for _, name := range enums.TimelineStepOrder {
		steps = append(steps, models.TimelineStep{
			ContractID: contract.ID,
			Step:       name,
			Status:     enums.StepStatusPending,
		})
	}
	if err := repo.CreateSteps(ctx, steps); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create timeline steps")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventContractCreated,
		AggregateType: enums.AggregateContract,
		AggregateID:   contract.ID,
		Version:       1,
		Actor:         params.Actor,
		Data: payloads.ContractCreatedEvent{
			ContractID:         contract.ID,
			AppointmentID:      appointment.ID,
			Type:               contractType,
			VehiclePriceVND:    contract.VehiclePriceVND,
			DepositAmountVND:   contract.DepositAmountVND,
			RemainingAmountVND: contract.RemainingAmountVND,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit contract created")
	}
	return contract, true, nil
}

// GetByAppointment reads the contract for an appointment. Passing the open
// transaction makes the read consistent with rows locked inside it; callers
// outside a transaction pass nil.
func (s *service) GetByAppointment(ctx context.Context, tx *gorm.DB, appointmentID uuid.UUID) (*models.Contract, error) {
	if appointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	contract, err := repo.FindByAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "contract not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load contract")
	}
	return contract, nil
}

// GetTimeline returns all five steps in their canonical order.
func (s *service) GetTimeline(ctx context.Context, contractID uuid.UUID) ([]models.TimelineStep, error) {
	if contractID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contract id required")
	}
	if _, err := s.repo.FindByID(ctx, contractID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "contract not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load contract")
	}
	steps, err := s.repo.ListSteps(ctx, contractID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list timeline steps")
	}
	sortSteps(steps)
	return steps, nil
}

// FullyExecuted reports whether every one of the contract's five steps is
// done. Contract-level completion is derived from the steps, never stored
// ahead of them.
func (s *service) FullyExecuted(ctx context.Context, tx *gorm.DB, contractID uuid.UUID) (bool, error) {
	if contractID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "contract id required")
	}
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	steps, err := repo.ListSteps(ctx, contractID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list timeline steps")
	}
	return IsFullyExecuted(steps), nil
}

// UpdateStep replaces only the targeted step's record. Earlier steps are not
// required to be done first; staff may correct retroactively.
func (s *service) UpdateStep(ctx context.Context, tx *gorm.DB, params UpdateStepParams) ([]models.TimelineStep, error) {
	if params.ContractID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contract id required")
	}
	if !params.Step.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown timeline step")
	}
	if !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid step status")
	}

	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}

	contract, err := repo.FindByID(ctx, params.ContractID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "contract not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load contract")
	}

	row, err := repo.FindStep(ctx, params.ContractID, params.Step)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "timeline step not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load timeline step")
	}

	now := time.Now().UTC()
	row.Status = params.Status
	if params.Note != nil {
		row.Note = params.Note
	}
	if params.DueDate != nil {
		row.DueDate = params.DueDate
	}
	if params.UpdatedBy != uuid.Nil {
		updatedBy := params.UpdatedBy
		row.UpdatedBy = &updatedBy
	}
	switch params.Status {
	case enums.StepStatusInProgress:
		if row.StartedAt == nil {
			row.StartedAt = &now
		}
	case enums.StepStatusDone:
		if row.StartedAt == nil {
			row.StartedAt = &now
		}
		row.DoneAt = &now
	default:
		row.DoneAt = nil
	}

	if err := repo.SaveStep(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save timeline step")
	}

	if tx != nil {
		event := outbox.DomainEvent{
			EventType:     enums.EventTimelineStepUpdated,
			AggregateType: enums.AggregateContract,
			AggregateID:   params.ContractID,
			Version:       1,
			Actor:         params.Actor,
			Data: payloads.TimelineStepUpdatedEvent{
				ContractID:    params.ContractID,
				AppointmentID: contract.AppointmentID,
				Step:          params.Step,
				Status:        params.Status,
				UpdatedBy:     row.UpdatedBy,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit step updated")
		}
	}

	steps, err := repo.ListSteps(ctx, params.ContractID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list timeline steps")
	}
	sortSteps(steps)
	return steps, nil
}

// MarkSigned flips the contract active and records the signing time.
func (s *service) MarkSigned(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, at time.Time) error {
	return s.updateContract(ctx, tx, contractID, map[string]any{
		"status":    enums.ContractStatusActive,
		"signed_at": at,
	})
}

func (s *service) MarkNotarized(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, at time.Time) error {
	return s.updateContract(ctx, tx, contractID, map[string]any{
		"notarized_at": at,
	})
}

func (s *service) MarkCompleted(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, at time.Time) error {
	return s.updateContract(ctx, tx, contractID, map[string]any{
		"status":       enums.ContractStatusCompleted,
		"completed_at": at,
	})
}

// SetStepDone marks one step done without the full patch surface, used by the
// orchestrator when evidence satisfies a step.
func (s *service) SetStepDone(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, step enums.TimelineStep, updatedBy uuid.UUID, at time.Time) error {
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	row, err := repo.FindStep(ctx, contractID, step)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "timeline step not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load timeline step")
	}
	row.Status = enums.StepStatusDone
	if row.StartedAt == nil {
		row.StartedAt = &at
	}
	row.DoneAt = &at
	if updatedBy != uuid.Nil {
		row.UpdatedBy = &updatedBy
	}
	if err := repo.SaveStep(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save timeline step")
	}
	return nil
}

func (s *service) updateContract(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, fields map[string]any) error {
	if contractID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "contract id required")
	}
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	if err := repo.UpdateFields(ctx, contractID, fields); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update contract")
	}
	return nil
}

var stepRank = func() map[enums.TimelineStep]int {
	ranks := make(map[enums.TimelineStep]int, len(enums.TimelineStepOrder))
	for i, step := range enums.TimelineStepOrder {
		ranks[step] = i
	}
	return ranks
}()

func sortSteps(steps []models.TimelineStep) {
	sort.SliceStable(steps, func(i, j int) bool {
		return stepRank[steps[i].Step] < stepRank[steps[j].Step]
	})
}
