package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/otodealz/otodealz-backend/internal/contracts"
	"github.com/otodealz/otodealz-backend/internal/evidence"
	"github.com/otodealz/otodealz-backend/pkg/db/models"
	"github.com/otodealz/otodealz-backend/pkg/enums"
	pkgerrors "github.com/otodealz/otodealz-backend/pkg/errors"
	"github.com/otodealz/otodealz-backend/pkg/logger"
	"github.com/otodealz/otodealz-backend/pkg/outbox"
	"github.com/otodealz/otodealz-backend/pkg/outbox/payloads"
	"github.com/otodealz/otodealz-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type contractEngine interface {
	CreateContract(ctx context.Context, tx *gorm.DB, params contracts.CreateParams) (*models.Contract, bool, error)
	GetByAppointment(ctx context.Context, tx *gorm.DB, appointmentID uuid.UUID) (*models.Contract, error)
	GetTimeline(ctx context.Context, contractID uuid.UUID) ([]models.TimelineStep, error)
	FullyExecuted(ctx context.Context, tx *gorm.DB, contractID uuid.UUID) (bool, error)
	UpdateStep(ctx context.Context, tx *gorm.DB, params contracts.UpdateStepParams) ([]models.TimelineStep, error)
	MarkSigned(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, at time.Time) error
	MarkNotarized(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, at time.Time) error
	MarkCompleted(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, at time.Time) error
	SetStepDone(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, step enums.TimelineStep, updatedBy uuid.UUID, at time.Time) error
}

type evidenceStore interface {
	StageSigningBatch(ctx context.Context, params evidence.SigningBatchParams) (*evidence.StagedBatch, error)
	StageProofBatch(ctx context.Context, params evidence.ProofBatchParams) (*evidence.StagedBatch, error)
	Persist(ctx context.Context, tx *gorm.DB, batch *evidence.StagedBatch) error
	List(ctx context.Context, appointmentID uuid.UUID) ([]models.Evidence, error)
	CountByKinds(ctx context.Context, tx *gorm.DB, appointmentID uuid.UUID, kinds ...enums.EvidenceKind) (map[enums.EvidenceKind]int64, error)
	AttachToStep(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, step enums.TimelineStep, evidenceIDs []uuid.UUID) error
}

type paymentProvider interface {
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.PaymentIntent, error)
	VoidPending(ctx context.Context, tx *gorm.DB, appointmentID uuid.UUID) ([]int64, error)
	CancelLinks(ctx context.Context, orderCodes []int64, reason string)
}

type vehicleMarker interface {
	MarkSold(ctx context.Context, tx *gorm.DB, id uuid.UUID, soldAt time.Time) error
}

// Service is the orchestrator: every appointment and contract mutation is
// funneled through it under the per-appointment row lock.
type Service interface {
	Confirm(ctx context.Context, input ConfirmInput) (*models.Appointment, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Appointment, error)
	Complete(ctx context.Context, input CompleteInput) (*models.Appointment, error)
	Reschedule(ctx context.Context, input RescheduleInput) (*models.Appointment, error)
	Detail(ctx context.Context, appointmentID uuid.UUID) (*DetailResult, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)

	CreateContract(ctx context.Context, input CreateContractInput) (*models.Contract, error)
	GetContractInfo(ctx context.Context, appointmentID uuid.UUID) (*ContractInfo, error)
	ContractTimeline(ctx context.Context, contractID uuid.UUID) ([]models.TimelineStep, error)
	UpdateTimelineStep(ctx context.Context, input TimelineStepInput) ([]models.TimelineStep, error)
	UploadContractPhotos(ctx context.Context, input ContractPhotosInput) (*models.Contract, error)
	UploadNotarizationProof(ctx context.Context, input ProofInput) ([]models.Evidence, error)
	UploadHandoverProof(ctx context.Context, input ProofInput) ([]models.Evidence, error)
	ListEvidence(ctx context.Context, appointmentID uuid.UUID) ([]models.Evidence, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	contracts contractEngine
	evidence  evidenceStore
	payments  paymentProvider
	vehicles  vehicleMarker
	logg      *logger.Logger
}

// ServiceParams bundles the orchestrator dependencies.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Contracts contractEngine
	Evidence  evidenceStore
	Payments  paymentProvider
	Vehicles  vehicleMarker
	Logger    *logger.Logger
}

// NewService wires the appointment state machine.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("appointments repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Contracts == nil {
		return nil, fmt.Errorf("contract engine required")
	}
	if params.Evidence == nil {
		return nil, fmt.Errorf("evidence store required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment provider required")
	}
	if params.Vehicles == nil {
		return nil, fmt.Errorf("vehicle marker required")
	}
	if params.Logger == nil {
		params.Logger = logger.New(logger.Options{ServiceName: "appointments"})
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		contracts: params.Contracts,
		evidence:  params.Evidence,
		payments:  params.Payments,
		vehicles:  params.Vehicles,
		logg:      params.Logger,
	}, nil
}

// ConfirmInput identifies who is confirming the appointment.
type ConfirmInput struct {
	AppointmentID uuid.UUID
	ActorID       uuid.UUID
	ActorRole     enums.ActorRole
}

// CancelInput carries the mandatory cancellation reason.
type CancelInput struct {
	AppointmentID uuid.UUID
	ActorID       uuid.UUID
	ActorRole     enums.ActorRole
	Reason        string
}

// CompleteInput is the explicit staff completion action.
type CompleteInput struct {
	AppointmentID uuid.UUID
	ActorID       uuid.UUID
}

// RescheduleInput moves the meeting to a new slot.
type RescheduleInput struct {
	AppointmentID uuid.UUID
	ActorID       uuid.UUID
	ScheduledAt   time.Time
}

// ListParams filters the staff appointment list.
type ListParams struct {
	Status  *enums.AppointmentStatus
	StaffID *uuid.UUID
	Limit   int
	Cursor  string
}

// ListResult wraps appointments and the cursor for the next page.
type ListResult struct {
	Items  []models.Appointment `json:"items"`
	Cursor string               `json:"cursor"`
}

// DetailResult is the staff view of one transaction: the appointment plus
// everything hanging off it.
type DetailResult struct {
	Appointment models.Appointment     `json:"appointment"`
	Contract    *models.Contract       `json:"contract,omitempty"`
	Timeline    []models.TimelineStep  `json:"timeline,omitempty"`
	Intents     []models.PaymentIntent `json:"intents"`
	Evidence    []models.Evidence      `json:"evidence"`
}

// Confirm records one party's confirmation. An inspection appointment flips
// to confirmed only once both buyer and seller have confirmed; staff confirm
// other types directly.
func (s *service) Confirm(ctx context.Context, input ConfirmInput) (*models.Appointment, error) {
	if input.AppointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}
	if !input.ActorRole.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid actor role")
	}

	var result *models.Appointment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		appointment, err := s.lock(ctx, tx, input.AppointmentID)
		if err != nil {
			return err
		}
		if appointment.Status != enums.AppointmentStatusPending && appointment.Status != enums.AppointmentStatusRescheduled {
			return stateConflict(appointment.Status, "appointment cannot be confirmed from its current state")
		}

		now := time.Now().UTC()
		fields := map[string]any{}
		switch input.ActorRole {
		case enums.ActorRoleBuyer:
			if appointment.BuyerID != input.ActorID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "appointment does not belong to buyer")
			}
			if appointment.BuyerConfirmedAt == nil {
				appointment.BuyerConfirmedAt = &now
				fields["buyer_confirmed_at"] = now
			}
		case enums.ActorRoleSeller:
			if appointment.SellerID != input.ActorID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "appointment does not belong to seller")
			}
			if appointment.SellerConfirmedAt == nil {
				appointment.SellerConfirmedAt = &now
				fields["seller_confirmed_at"] = now
			}
		case enums.ActorRoleStaff:
			if appointment.Type == enums.AppointmentTypeVehicleInspection {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "inspection appointments require both parties to confirm")
			}
		}

		confirmed := false
		if appointment.Type == enums.AppointmentTypeVehicleInspection {
			confirmed = appointment.BuyerConfirmedAt != nil && appointment.SellerConfirmedAt != nil
		} else {
			confirmed = input.ActorRole == enums.ActorRoleStaff
		}
		if confirmed {
			appointment.Status = enums.AppointmentStatusConfirmed
			appointment.ConfirmedAt = &now
			fields["status"] = enums.AppointmentStatusConfirmed
			fields["confirmed_at"] = now
		}

		if len(fields) > 0 {
			if err := s.repo.UpdateFields(ctx, tx, appointment.ID, fields); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update appointment")
			}
		}

		if confirmed {
			event := outbox.DomainEvent{
				EventType:     enums.EventAppointmentConfirmed,
				AggregateType: enums.AggregateAppointment,
				AggregateID:   appointment.ID,
				Version:       1,
				Actor:         actorRef(input.ActorID, input.ActorRole),
				Data: payloads.AppointmentConfirmedEvent{
					AppointmentID: appointment.ID,
					VehicleID:     appointment.VehicleID,
					BuyerID:       appointment.BuyerID,
					SellerID:      appointment.SellerID,
					ConfirmedAt:   now,
				},
			}
			if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit appointment confirmed")
			}
		}
		result = appointment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Cancel moves any non-terminal appointment to cancelled. The reason is
// mandatory; pending payment intents are voided and their links closed.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Appointment, error) {
	if input.AppointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason required")
	}

	var result *models.Appointment
	var orderCodes []int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		appointment, err := s.lock(ctx, tx, input.AppointmentID)
		if err != nil {
			return err
		}
		if appointment.Status.IsTerminal() {
			return stateConflict(appointment.Status, "appointment is already in a terminal state")
		}

		now := time.Now().UTC()
		if err := s.repo.UpdateFields(ctx, tx, appointment.ID, map[string]any{
			"status":        enums.AppointmentStatusCancelled,
			"cancel_reason": reason,
			"cancelled_at":  now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel appointment")
		}
		appointment.Status = enums.AppointmentStatusCancelled
		appointment.CancelReason = &reason
		appointment.CancelledAt = &now

		orderCodes, err = s.payments.VoidPending(ctx, tx, appointment.ID)
		if err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventAppointmentCancelled,
			AggregateType: enums.AggregateAppointment,
			AggregateID:   appointment.ID,
			Version:       1,
			Actor:         actorRef(input.ActorID, input.ActorRole),
			Data: payloads.AppointmentCancelledEvent{
				AppointmentID: appointment.ID,
				Reason:        reason,
				CancelledAt:   now,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit appointment cancelled")
		}
		result = appointment
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(orderCodes) > 0 {
		s.payments.CancelLinks(ctx, orderCodes, "appointment cancelled: "+reason)
	}
	s.logg.Info(s.logg.WithAppointmentID(ctx, input.AppointmentID.String()), "appointment cancelled")
	return result, nil
}

// Complete is the explicit staff completion. The type-specific evidence or
// payment precondition must already hold.
func (s *service) Complete(ctx context.Context, input CompleteInput) (*models.Appointment, error) {
	if input.AppointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}

	var result *models.Appointment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		appointment, err := s.lock(ctx, tx, input.AppointmentID)
		if err != nil {
			return err
		}
		if appointment.Status.IsTerminal() {
			return stateConflict(appointment.Status, "appointment is already in a terminal state")
		}
		if appointment.Status == enums.AppointmentStatusPending {
			return stateConflict(appointment.Status, "appointment must be confirmed before completion")
		}
		if err := s.checkCompletionPrecondition(ctx, tx, appointment); err != nil {
			return err
		}
		return s.finishAppointment(ctx, tx, appointment, input.ActorID, &result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reschedule moves a pending or confirmed appointment to a new slot. Slot
// renegotiation itself happens outside this system.
func (s *service) Reschedule(ctx context.Context, input RescheduleInput) (*models.Appointment, error) {
	if input.AppointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}
	if input.ScheduledAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "new scheduled time required")
	}

	var result *models.Appointment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		appointment, err := s.lock(ctx, tx, input.AppointmentID)
		if err != nil {
			return err
		}
		switch appointment.Status {
		case enums.AppointmentStatusPending, enums.AppointmentStatusConfirmed, enums.AppointmentStatusRescheduled:
		default:
			return stateConflict(appointment.Status, "appointment cannot be rescheduled from its current state")
		}

		if err := s.repo.UpdateFields(ctx, tx, appointment.ID, map[string]any{
			"status":              enums.AppointmentStatusRescheduled,
			"scheduled_at":        input.ScheduledAt,
			"buyer_confirmed_at":  nil,
			"seller_confirmed_at": nil,
			"confirmed_at":        nil,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reschedule appointment")
		}
		appointment.Status = enums.AppointmentStatusRescheduled
		appointment.ScheduledAt = input.ScheduledAt
		appointment.BuyerConfirmedAt = nil
		appointment.SellerConfirmedAt = nil
		appointment.ConfirmedAt = nil
		result = appointment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Detail(ctx context.Context, appointmentID uuid.UUID) (*DetailResult, error) {
	if appointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}
	appointment, err := s.repo.FindByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "appointment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load appointment")
	}

	detail := &DetailResult{Appointment: *appointment}
	contract, err := s.contracts.GetByAppointment(ctx, nil, appointmentID)
	if err == nil {
		detail.Contract = contract
		timeline, err := s.contracts.GetTimeline(ctx, contract.ID)
		if err != nil {
			return nil, err
		}
		detail.Timeline = timeline
	} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		return nil, err
	}

	intents, err := s.payments.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	detail.Intents = intents

	artifacts, err := s.evidence.List(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	detail.Evidence = artifacts
	return detail, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listAppointmentsParams{
		Status:  params.Status,
		StaffID: params.StaffID,
		Limit:   pagination.NormalizeLimit(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}
	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list appointments")
	}
	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

// checkCompletionPrecondition enforces the per-type completion table. Counts
// run against the same transaction that holds the appointment lock so they
// reflect the persisted rows, not a stale snapshot.
func (s *service) checkCompletionPrecondition(ctx context.Context, tx *gorm.DB, appointment *models.Appointment) error {
	switch appointment.Type {
	case enums.AppointmentTypeVehicleInspection:
		if appointment.PaidAmountVND <= 0 || appointment.RemainingAmountVND > 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment must be settled in full before completion").
				WithDetails(map[string]any{"remaining_vnd": appointment.RemainingAmountVND})
		}
	case enums.AppointmentTypeContractSigning:
		counts, err := s.evidence.CountByKinds(ctx, tx, appointment.ID,
			enums.EvidenceKindSellerSignature, enums.EvidenceKindBuyerSignature)
		if err != nil {
			return err
		}
		if counts[enums.EvidenceKindSellerSignature] < evidence.SigningPhotosPerSide ||
			counts[enums.EvidenceKindBuyerSignature] < evidence.SigningPhotosPerSide {
			return pkgerrors.New(pkgerrors.CodeInsufficientEvidence,
				fmt.Sprintf("3 of 3 photos required per side, received %d seller and %d buyer",
					counts[enums.EvidenceKindSellerSignature], counts[enums.EvidenceKindBuyerSignature]))
		}
	case enums.AppointmentTypeContractNotarization:
		counts, err := s.evidence.CountByKinds(ctx, tx, appointment.ID, enums.EvidenceKindNotarizationProof)
		if err != nil {
			return err
		}
		if counts[enums.EvidenceKindNotarizationProof] < evidence.MinProofArtifacts {
			return pkgerrors.New(pkgerrors.CodeInsufficientEvidence, "at least 1 notarization proof required")
		}
	case enums.AppointmentTypeHandover, enums.AppointmentTypeDelivery:
		counts, err := s.evidence.CountByKinds(ctx, tx, appointment.ID, enums.EvidenceKindHandoverProof)
		if err != nil {
			return err
		}
		if counts[enums.EvidenceKindHandoverProof] < evidence.MinProofArtifacts {
			return pkgerrors.New(pkgerrors.CodeInsufficientEvidence, "at least 1 handover proof required")
		}
	}
	return nil
}

// finishAppointment flips the locked row to completed and emits the terminal
// event. Contract completion and vehicle sale follow when they apply.
func (s *service) finishAppointment(ctx context.Context, tx *gorm.DB, appointment *models.Appointment, actorID uuid.UUID, out **models.Appointment) error {
	now := time.Now().UTC()
	if err := s.repo.UpdateFields(ctx, tx, appointment.ID, map[string]any{
		"status":       enums.AppointmentStatusCompleted,
		"completed_at": now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete appointment")
	}
	appointment.Status = enums.AppointmentStatusCompleted
	appointment.CompletedAt = &now

	var contractID *uuid.UUID
	if contract, err := s.contracts.GetByAppointment(ctx, tx, appointment.ID); err == nil {
		contractID = &contract.ID
		if appointment.RemainingAmountVND <= 0 && appointment.PaidAmountVND > 0 {
			if err := s.contracts.SetStepDone(ctx, tx, contract.ID, enums.TimelineStepCompleted, actorID, now); err != nil {
				return err
			}
			// Contract completion is derived from the steps: the stamp lands
			// only once all five are done, not on money alone.
			done, err := s.contracts.FullyExecuted(ctx, tx, contract.ID)
			if err != nil {
				return err
			}
			if done {
				if err := s.contracts.MarkCompleted(ctx, tx, contract.ID, now); err != nil {
					return err
				}
			}
		}
	} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		return err
	}

	if appointment.RemainingAmountVND <= 0 && appointment.PaidAmountVND > 0 {
		if err := s.vehicles.MarkSold(ctx, tx, appointment.VehicleID, now); err != nil {
			return err
		}
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventAppointmentCompleted,
		AggregateType: enums.AggregateAppointment,
		AggregateID:   appointment.ID,
		Version:       1,
		Actor:         actorRef(actorID, enums.ActorRoleStaff),
		Data: payloads.AppointmentCompletedEvent{
			AppointmentID: appointment.ID,
			ContractID:    contractID,
			CompletedAt:   now,
		},
	}
	if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit appointment completed")
	}
	if out != nil {
		*out = appointment
	}
	return nil
}

func (s *service) lock(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Appointment, error) {
	appointment, err := s.repo.FindForUpdate(ctx, tx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "appointment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load appointment")
	}
	return appointment, nil
}

func stateConflict(current enums.AppointmentStatus, message string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).
		WithDetails(map[string]any{"current_status": current})
}

func actorRef(userID uuid.UUID, role enums.ActorRole) *outbox.ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, Role: string(role)}
}
