package appointments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/otodealz/otodealz-backend/internal/evidence"
	"github.com/otodealz/otodealz-backend/pkg/db/models"
	"github.com/otodealz/otodealz-backend/pkg/enums"
	pkgerrors "github.com/otodealz/otodealz-backend/pkg/errors"
	"github.com/otodealz/otodealz-backend/pkg/outbox"
	"github.com/otodealz/otodealz-backend/pkg/outbox/payloads"
)

// ContractPhotosInput is the combined signing upload: both sides in one call.
type ContractPhotosInput struct {
	AppointmentID uuid.UUID
	ActorID       uuid.UUID
	ActorRole     enums.ActorRole
	SellerPhotos  []evidence.Artifact
	BuyerPhotos   []evidence.Artifact
}

// ProofInput is a notarization or handover proof upload. Note is an optional
// caption stored with every photo of the batch.
type ProofInput struct {
	AppointmentID uuid.UUID
	ActorID       uuid.UUID
	ActorRole     enums.ActorRole
	Photos        []evidence.Artifact
	Note          *string
}

// UploadContractPhotos stores the 3+3 signing batch, marks the contract
// signed and completes a contract-signing appointment in one transaction.
// The bytes go to object storage before the lock is taken; the database rows
// land atomically with the contract transition.
func (s *service) UploadContractPhotos(ctx context.Context, input ContractPhotosInput) (*models.Contract, error) {
	if input.AppointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}
	contract, err := s.contracts.GetByAppointment(ctx, nil, input.AppointmentID)
	if err != nil {
		return nil, err
	}
	if contract.SignedAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "contract is already signed")
	}

	batch, err := s.evidence.StageSigningBatch(ctx, evidence.SigningBatchParams{
		AppointmentID: input.AppointmentID,
		ContractID:    contract.ID,
		UploadedBy:    input.ActorID,
		SellerPhotos:  input.SellerPhotos,
		BuyerPhotos:   input.BuyerPhotos,
	})
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		appointment, err := s.lock(ctx, tx, input.AppointmentID)
		if err != nil {
			return err
		}
		if appointment.Status.IsTerminal() {
			return stateConflict(appointment.Status, "appointment is already in a terminal state")
		}

		// The pre-lock read can race a concurrent upload. Re-check the signed
		// flag and the persisted signature count under the lock so only one
		// batch ever lands.
		current, err := s.contracts.GetByAppointment(ctx, tx, input.AppointmentID)
		if err != nil {
			return err
		}
		if current.SignedAt != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "contract is already signed")
		}
		counts, err := s.evidence.CountByKinds(ctx, tx, input.AppointmentID,
			enums.EvidenceKindSellerSignature, enums.EvidenceKindBuyerSignature)
		if err != nil {
			return err
		}
		if counts[enums.EvidenceKindSellerSignature] > 0 || counts[enums.EvidenceKindBuyerSignature] > 0 {
			return pkgerrors.New(pkgerrors.CodeTooManyArtifacts, "signing photos already persisted for this contract")
		}

		if err := s.evidence.Persist(ctx, tx, batch); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := s.contracts.SetStepDone(ctx, tx, contract.ID, enums.TimelineStepSignContract, input.ActorID, now); err != nil {
			return err
		}
		if err := s.contracts.MarkSigned(ctx, tx, contract.ID, now); err != nil {
			return err
		}
		contract.Status = enums.ContractStatusActive
		contract.SignedAt = &now

		actor := actorRef(input.ActorID, input.ActorRole)
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventContractSigned,
			AggregateType: enums.AggregateContract,
			AggregateID:   contract.ID,
			Version:       1,
			Actor:         actor,
			Data: payloads.ContractSignedEvent{
				ContractID:    contract.ID,
				AppointmentID: input.AppointmentID,
				SignedAt:      now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit contract signed")
		}
		for _, kind := range []enums.EvidenceKind{enums.EvidenceKindSellerSignature, enums.EvidenceKindBuyerSignature} {
			if err := s.emitEvidenceUploaded(ctx, tx, actor, batch, input.AppointmentID, &contract.ID, enums.TimelineStepSignContract, kind); err != nil {
				return err
			}
		}

		if appointment.Type == enums.AppointmentTypeContractSigning {
			return s.finishAppointment(ctx, tx, appointment, input.ActorID, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return contract, nil
}

// UploadNotarizationProof stores 1..10 notarization photos and marks the
// contract notarized.
func (s *service) UploadNotarizationProof(ctx context.Context, input ProofInput) ([]models.Evidence, error) {
	if input.AppointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}
	contract, err := s.contracts.GetByAppointment(ctx, nil, input.AppointmentID)
	if err != nil {
		return nil, err
	}
	if contract.SignedAt == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "contract must be signed before notarization")
	}

	batch, err := s.evidence.StageProofBatch(ctx, evidence.ProofBatchParams{
		AppointmentID: input.AppointmentID,
		ContractID:    &contract.ID,
		UploadedBy:    input.ActorID,
		Step:          enums.TimelineStepNotarization,
		Kind:          enums.EvidenceKindNotarizationProof,
		Photos:        input.Photos,
		Note:          input.Note,
	})
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		appointment, err := s.lock(ctx, tx, input.AppointmentID)
		if err != nil {
			return err
		}
		if appointment.Status.IsTerminal() {
			return stateConflict(appointment.Status, "appointment is already in a terminal state")
		}

		current, err := s.contracts.GetByAppointment(ctx, tx, input.AppointmentID)
		if err != nil {
			return err
		}
		if current.SignedAt == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "contract must be signed before notarization")
		}
		if err := s.checkProofCap(ctx, tx, input.AppointmentID, enums.EvidenceKindNotarizationProof, len(batch.Rows)); err != nil {
			return err
		}

		if err := s.evidence.Persist(ctx, tx, batch); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := s.contracts.SetStepDone(ctx, tx, contract.ID, enums.TimelineStepNotarization, input.ActorID, now); err != nil {
			return err
		}
		if err := s.contracts.MarkNotarized(ctx, tx, contract.ID, now); err != nil {
			return err
		}

		actor := actorRef(input.ActorID, input.ActorRole)
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventContractNotarized,
			AggregateType: enums.AggregateContract,
			AggregateID:   contract.ID,
			Version:       1,
			Actor:         actor,
			Data: payloads.ContractNotarizedEvent{
				ContractID:    contract.ID,
				AppointmentID: input.AppointmentID,
				NotarizedAt:   now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit contract notarized")
		}
		if err := s.emitEvidenceUploaded(ctx, tx, actor, batch, input.AppointmentID, &contract.ID, enums.TimelineStepNotarization, enums.EvidenceKindNotarizationProof); err != nil {
			return err
		}

		if appointment.Type == enums.AppointmentTypeContractNotarization {
			return s.finishAppointment(ctx, tx, appointment, input.ActorID, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch.Rows, nil
}

// UploadHandoverProof stores 1..10 handover photos, finishes the physical
// handover step and requests the seller payout exactly once.
func (s *service) UploadHandoverProof(ctx context.Context, input ProofInput) ([]models.Evidence, error) {
	if input.AppointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}

	var contractID *uuid.UUID
	contract, err := s.contracts.GetByAppointment(ctx, nil, input.AppointmentID)
	if err == nil {
		contractID = &contract.ID
	} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		return nil, err
	}

	batch, err := s.evidence.StageProofBatch(ctx, evidence.ProofBatchParams{
		AppointmentID: input.AppointmentID,
		ContractID:    contractID,
		UploadedBy:    input.ActorID,
		Step:          enums.TimelineStepHandoverPapersAndCar,
		Kind:          enums.EvidenceKindHandoverProof,
		Photos:        input.Photos,
		Note:          input.Note,
	})
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		appointment, err := s.lock(ctx, tx, input.AppointmentID)
		if err != nil {
			return err
		}
		if appointment.Status.IsTerminal() {
			return stateConflict(appointment.Status, "appointment is already in a terminal state")
		}
		if err := s.checkProofCap(ctx, tx, input.AppointmentID, enums.EvidenceKindHandoverProof, len(batch.Rows)); err != nil {
			return err
		}

		if err := s.evidence.Persist(ctx, tx, batch); err != nil {
			return err
		}
		now := time.Now().UTC()
		if contractID != nil {
			if err := s.contracts.SetStepDone(ctx, tx, *contractID, enums.TimelineStepHandoverPapersAndCar, input.ActorID, now); err != nil {
				return err
			}
		}

		actor := actorRef(input.ActorID, input.ActorRole)
		if err := s.emitEvidenceUploaded(ctx, tx, actor, batch, input.AppointmentID, contractID, enums.TimelineStepHandoverPapersAndCar, enums.EvidenceKindHandoverProof); err != nil {
			return err
		}

		// One payout request per appointment, no matter how many times the
		// handover proof is re-uploaded.
		if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutReleaseRequested,
			AggregateType: enums.AggregateAppointment,
			AggregateID:   appointment.ID,
			Version:       1,
			Actor:         actor,
			Data: payloads.PayoutReleaseRequestedEvent{
				AppointmentID: appointment.ID,
				SellerID:      appointment.SellerID,
				AmountVND:     appointment.PaidAmountVND,
				RequestedAt:   now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payout release requested")
		}

		if appointment.Type == enums.AppointmentTypeHandover || appointment.Type == enums.AppointmentTypeDelivery {
			return s.finishAppointment(ctx, tx, appointment, input.ActorID, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch.Rows, nil
}

func (s *service) ListEvidence(ctx context.Context, appointmentID uuid.UUID) ([]models.Evidence, error) {
	if appointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}
	if _, err := s.repo.FindByID(ctx, appointmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "appointment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load appointment")
	}
	return s.evidence.List(ctx, appointmentID)
}

// checkProofCap enforces the 1..10 proof bound against the persisted rows,
// counted inside the transaction that holds the appointment lock. The staged
// batch alone was already bounded; this catches repeated uploads.
func (s *service) checkProofCap(ctx context.Context, tx *gorm.DB, appointmentID uuid.UUID, kind enums.EvidenceKind, incoming int) error {
	counts, err := s.evidence.CountByKinds(ctx, tx, appointmentID, kind)
	if err != nil {
		return err
	}
	if counts[kind]+int64(incoming) > evidence.MaxProofArtifacts {
		return pkgerrors.New(pkgerrors.CodeTooManyArtifacts, "at most 10 proof photos allowed per appointment").
			WithDetails(map[string]any{"persisted": counts[kind], "incoming": incoming})
	}
	return nil
}

func (s *service) emitEvidenceUploaded(ctx context.Context, tx *gorm.DB, actor *outbox.ActorRef, batch *evidence.StagedBatch, appointmentID uuid.UUID, contractID *uuid.UUID, step enums.TimelineStep, kind enums.EvidenceKind) error {
	count := 0
	for _, row := range batch.Rows {
		if row.Kind == kind {
			count++
		}
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventEvidenceUploaded,
		AggregateType: enums.AggregateEvidence,
		AggregateID:   batch.BatchID,
		Version:       1,
		Actor:         actor,
		Data: payloads.EvidenceUploadedEvent{
			AppointmentID: appointmentID,
			ContractID:    contractID,
			Step:          step,
			Kind:          kind,
			BatchID:       batch.BatchID,
			Count:         count,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit evidence uploaded")
	}
	return nil
}
