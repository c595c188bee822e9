package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/otodealz/otodealz-backend/internal/contracts"
	"github.com/otodealz/otodealz-backend/internal/evidence"
	"github.com/otodealz/otodealz-backend/pkg/db/models"
	"github.com/otodealz/otodealz-backend/pkg/enums"
	pkgerrors "github.com/otodealz/otodealz-backend/pkg/errors"
	"github.com/otodealz/otodealz-backend/pkg/outbox"
	"github.com/otodealz/otodealz-backend/pkg/pagination"
)

type stubTxRunner struct{}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubAppointmentsRepo struct {
	rows map[uuid.UUID]*models.Appointment
}

func newStubAppointmentsRepo() *stubAppointmentsRepo {
	return &stubAppointmentsRepo{rows: map[uuid.UUID]*models.Appointment{}}
}

func (s *stubAppointmentsRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubAppointmentsRepo) Create(ctx context.Context, appointment *models.Appointment) error {
	s.rows[appointment.ID] = appointment
	return nil
}

func (s *stubAppointmentsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error) {
	row, ok := s.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (s *stubAppointmentsRepo) FindForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Appointment, error) {
	return s.FindByID(ctx, id)
}

func (s *stubAppointmentsRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	row, ok := s.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for key, value := range fields {
		switch key {
		case "status":
			row.Status = value.(enums.AppointmentStatus)
		case "cancel_reason":
			reason := value.(string)
			row.CancelReason = &reason
		case "scheduled_at":
			row.ScheduledAt = value.(time.Time)
		case "buyer_confirmed_at":
			row.BuyerConfirmedAt = timePtrOrNil(value)
		case "seller_confirmed_at":
			row.SellerConfirmedAt = timePtrOrNil(value)
		case "confirmed_at":
			row.ConfirmedAt = timePtrOrNil(value)
		case "completed_at":
			row.CompletedAt = timePtrOrNil(value)
		case "cancelled_at":
			row.CancelledAt = timePtrOrNil(value)
		}
	}
	return nil
}

func (s *stubAppointmentsRepo) List(ctx context.Context, params listAppointmentsParams) ([]models.Appointment, *pagination.Cursor, error) {
	out := make([]models.Appointment, 0, len(s.rows))
	for _, row := range s.rows {
		if params.Status != nil && row.Status != *params.Status {
			continue
		}
		out = append(out, *row)
	}
	return out, nil, nil
}

func timePtrOrNil(value any) *time.Time {
	if value == nil {
		return nil
	}
	at := value.(time.Time)
	return &at
}

type eventSink struct {
	emitted   []outbox.DomainEvent
	deduped   []outbox.DomainEvent
	dedupeHit map[enums.OutboxEventType]bool
}

func newEventSink() *eventSink {
	return &eventSink{dedupeHit: map[enums.OutboxEventType]bool{}}
}

func (s *eventSink) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.emitted = append(s.emitted, event)
	return nil
}

func (s *eventSink) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if s.dedupeHit[event.EventType] {
		return nil
	}
	s.dedupeHit[event.EventType] = true
	s.deduped = append(s.deduped, event)
	return nil
}

func (s *eventSink) types() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, 0, len(s.emitted)+len(s.deduped))
	for _, event := range s.emitted {
		out = append(out, event.EventType)
	}
	for _, event := range s.deduped {
		out = append(out, event.EventType)
	}
	return out
}

type stubContractEngine struct {
	byAppointment map[uuid.UUID]*models.Contract
	stepsDone     []enums.TimelineStep
	signed        bool
	notarized     bool
	completed     bool
	fullyExecuted bool
	getCalls      int
	// signOnSecondRead makes the second and later reads return a signed
	// contract, simulating a concurrent signing that commits between the
	// staging read and the locked re-read.
	signOnSecondRead bool
}

func newStubContractEngine() *stubContractEngine {
	return &stubContractEngine{byAppointment: map[uuid.UUID]*models.Contract{}}
}

func (s *stubContractEngine) CreateContract(ctx context.Context, tx *gorm.DB, params contracts.CreateParams) (*models.Contract, bool, error) {
	if existing, ok := s.byAppointment[params.Appointment.ID]; ok {
		return existing, false, nil
	}
	contract := &models.Contract{
		ID:            uuid.New(),
		AppointmentID: params.Appointment.ID,
		Type:          contracts.DeriveType(params.Appointment.VehiclePriceVND, params.Appointment.DepositAmountVND, params.Appointment.RemainingAmountVND),
		Status:        enums.ContractStatusDraft,
	}
	s.byAppointment[params.Appointment.ID] = contract
	return contract, true, nil
}

func (s *stubContractEngine) GetByAppointment(ctx context.Context, tx *gorm.DB, appointmentID uuid.UUID) (*models.Contract, error) {
	contract, ok := s.byAppointment[appointmentID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "contract not found")
	}
	s.getCalls++
	if s.signOnSecondRead && s.getCalls >= 2 && contract.SignedAt == nil {
		signed := *contract
		at := time.Now().UTC()
		signed.SignedAt = &at
		signed.Status = enums.ContractStatusActive
		return &signed, nil
	}
	return contract, nil
}

func (s *stubContractEngine) FullyExecuted(ctx context.Context, tx *gorm.DB, contractID uuid.UUID) (bool, error) {
	return s.fullyExecuted, nil
}

func (s *stubContractEngine) GetTimeline(ctx context.Context, contractID uuid.UUID) ([]models.TimelineStep, error) {
	return nil, nil
}

func (s *stubContractEngine) UpdateStep(ctx context.Context, tx *gorm.DB, params contracts.UpdateStepParams) ([]models.TimelineStep, error) {
	return []models.TimelineStep{{ContractID: params.ContractID, Step: params.Step, Status: params.Status}}, nil
}

func (s *stubContractEngine) MarkSigned(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, at time.Time) error {
	s.signed = true
	return nil
}

func (s *stubContractEngine) MarkNotarized(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, at time.Time) error {
	s.notarized = true
	return nil
}

func (s *stubContractEngine) MarkCompleted(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, at time.Time) error {
	s.completed = true
	return nil
}

func (s *stubContractEngine) SetStepDone(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, step enums.TimelineStep, updatedBy uuid.UUID, at time.Time) error {
	s.stepsDone = append(s.stepsDone, step)
	return nil
}

type stubEvidenceStore struct {
	counts    map[enums.EvidenceKind]int64
	persisted [][]models.Evidence
	attached  []uuid.UUID
	stageErr  error
}

func (s *stubEvidenceStore) StageSigningBatch(ctx context.Context, params evidence.SigningBatchParams) (*evidence.StagedBatch, error) {
	if s.stageErr != nil {
		return nil, s.stageErr
	}
	batch := &evidence.StagedBatch{BatchID: uuid.New()}
	for range params.SellerPhotos {
		batch.Rows = append(batch.Rows, models.Evidence{Kind: enums.EvidenceKindSellerSignature})
	}
	for range params.BuyerPhotos {
		batch.Rows = append(batch.Rows, models.Evidence{Kind: enums.EvidenceKindBuyerSignature})
	}
	return batch, nil
}

func (s *stubEvidenceStore) StageProofBatch(ctx context.Context, params evidence.ProofBatchParams) (*evidence.StagedBatch, error) {
	if s.stageErr != nil {
		return nil, s.stageErr
	}
	batch := &evidence.StagedBatch{BatchID: uuid.New()}
	for range params.Photos {
		batch.Rows = append(batch.Rows, models.Evidence{Kind: params.Kind, Step: params.Step})
	}
	return batch, nil
}

func (s *stubEvidenceStore) Persist(ctx context.Context, tx *gorm.DB, batch *evidence.StagedBatch) error {
	s.persisted = append(s.persisted, batch.Rows)
	return nil
}

func (s *stubEvidenceStore) List(ctx context.Context, appointmentID uuid.UUID) ([]models.Evidence, error) {
	return nil, nil
}

func (s *stubEvidenceStore) CountByKinds(ctx context.Context, tx *gorm.DB, appointmentID uuid.UUID, kinds ...enums.EvidenceKind) (map[enums.EvidenceKind]int64, error) {
	if s.counts == nil {
		return map[enums.EvidenceKind]int64{}, nil
	}
	return s.counts, nil
}

func (s *stubEvidenceStore) AttachToStep(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, step enums.TimelineStep, evidenceIDs []uuid.UUID) error {
	s.attached = append(s.attached, evidenceIDs...)
	return nil
}

type stubPayments struct {
	pendingCodes []int64
	voided       []uuid.UUID
	cancelled    []int64
}

func (s *stubPayments) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.PaymentIntent, error) {
	return nil, nil
}

func (s *stubPayments) VoidPending(ctx context.Context, tx *gorm.DB, appointmentID uuid.UUID) ([]int64, error) {
	s.voided = append(s.voided, appointmentID)
	return s.pendingCodes, nil
}

func (s *stubPayments) CancelLinks(ctx context.Context, orderCodes []int64, reason string) {
	s.cancelled = append(s.cancelled, orderCodes...)
}

type stubVehicleMarker struct {
	soldIDs []uuid.UUID
}

func (s *stubVehicleMarker) MarkSold(ctx context.Context, tx *gorm.DB, id uuid.UUID, soldAt time.Time) error {
	s.soldIDs = append(s.soldIDs, id)
	return nil
}

type fixture struct {
	svc       Service
	repo      *stubAppointmentsRepo
	events    *eventSink
	contracts *stubContractEngine
	evidence  *stubEvidenceStore
	payments  *stubPayments
	vehicles  *stubVehicleMarker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      newStubAppointmentsRepo(),
		events:    newEventSink(),
		contracts: newStubContractEngine(),
		evidence:  &stubEvidenceStore{},
		payments:  &stubPayments{},
		vehicles:  &stubVehicleMarker{},
	}
	svc, err := NewService(ServiceParams{
		Repo:      f.repo,
		Tx:        &stubTxRunner{},
		Outbox:    f.events,
		Contracts: f.contracts,
		Evidence:  f.evidence,
		Payments:  f.payments,
		Vehicles:  f.vehicles,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) seed(appointmentType enums.AppointmentType, status enums.AppointmentStatus) *models.Appointment {
	appointment := &models.Appointment{
		ID:                 uuid.New(),
		VehicleID:          uuid.New(),
		BuyerID:            uuid.New(),
		SellerID:           uuid.New(),
		Type:               appointmentType,
		Status:             status,
		ScheduledAt:        time.Now().Add(48 * time.Hour),
		VehiclePriceVND:    1_000_000_000,
		RemainingAmountVND: 1_000_000_000,
	}
	f.repo.rows[appointment.ID] = appointment
	return appointment
}

func TestConfirmInspectionNeedsBothParties(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeVehicleInspection, enums.AppointmentStatusPending)

	result, err := f.svc.Confirm(context.Background(), ConfirmInput{
		AppointmentID: appointment.ID,
		ActorID:       appointment.BuyerID,
		ActorRole:     enums.ActorRoleBuyer,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.AppointmentStatusPending, result.Status)
	assert.NotNil(t, result.BuyerConfirmedAt)
	assert.Empty(t, f.events.types())

	result, err = f.svc.Confirm(context.Background(), ConfirmInput{
		AppointmentID: appointment.ID,
		ActorID:       appointment.SellerID,
		ActorRole:     enums.ActorRoleSeller,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.AppointmentStatusConfirmed, result.Status)
	assert.NotNil(t, result.ConfirmedAt)
	assert.Equal(t, []enums.OutboxEventType{enums.EventAppointmentConfirmed}, f.events.types())
}

func TestConfirmRejectsForeignBuyer(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeVehicleInspection, enums.AppointmentStatusPending)

	_, err := f.svc.Confirm(context.Background(), ConfirmInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleBuyer,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeForbidden, typed.Code())
}

func TestStaffConfirmsNonInspectionDirectly(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeContractSigning, enums.AppointmentStatusPending)

	result, err := f.svc.Confirm(context.Background(), ConfirmInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.AppointmentStatusConfirmed, result.Status)
}

func TestStaffCannotShortcutInspectionConfirm(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeVehicleInspection, enums.AppointmentStatusPending)

	_, err := f.svc.Confirm(context.Background(), ConfirmInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestCancelRequiresReason(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeVehicleInspection, enums.AppointmentStatusConfirmed)

	_, err := f.svc.Cancel(context.Background(), CancelInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
		Reason:        "   ",
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestCancelVoidsPendingIntentsAndClosesLinks(t *testing.T) {
	f := newFixture(t)
	f.payments.pendingCodes = []int64{17550001, 17550002}
	appointment := f.seed(enums.AppointmentTypeVehicleInspection, enums.AppointmentStatusConfirmed)

	result, err := f.svc.Cancel(context.Background(), CancelInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
		Reason:        "buyer walked away",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.AppointmentStatusCancelled, result.Status)
	require.NotNil(t, result.CancelReason)
	assert.Equal(t, "buyer walked away", *result.CancelReason)
	assert.Equal(t, []uuid.UUID{appointment.ID}, f.payments.voided)
	assert.Equal(t, []int64{17550001, 17550002}, f.payments.cancelled)
	assert.Equal(t, []enums.OutboxEventType{enums.EventAppointmentCancelled}, f.events.types())
}

func TestCancelTerminalAppointmentConflicts(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeVehicleInspection, enums.AppointmentStatusCompleted)

	_, err := f.svc.Cancel(context.Background(), CancelInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
		Reason:        "too late",
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, enums.AppointmentStatusCompleted, details["current_status"])
}

func TestCompleteInspectionRequiresSettledPayment(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeVehicleInspection, enums.AppointmentStatusAwaitingRemainingPayment)
	appointment.PaidAmountVND = 100_000_000
	appointment.RemainingAmountVND = 900_000_000

	_, err := f.svc.Complete(context.Background(), CompleteInput{AppointmentID: appointment.ID, ActorID: uuid.New()})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(900_000_000), details["remaining_vnd"])
}

func TestCompleteInspectionMarksVehicleSold(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeVehicleInspection, enums.AppointmentStatusAwaitingRemainingPayment)
	appointment.PaidAmountVND = 1_000_000_000
	appointment.RemainingAmountVND = 0

	result, err := f.svc.Complete(context.Background(), CompleteInput{AppointmentID: appointment.ID, ActorID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, enums.AppointmentStatusCompleted, result.Status)
	assert.NotNil(t, result.CompletedAt)
	assert.Equal(t, []uuid.UUID{appointment.VehicleID}, f.vehicles.soldIDs)
	assert.Contains(t, f.events.types(), enums.EventAppointmentCompleted)
}

func TestCompleteStampsContractOnlyWhenAllStepsDone(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeVehicleInspection, enums.AppointmentStatusAwaitingRemainingPayment)
	appointment.PaidAmountVND = 1_000_000_000
	appointment.RemainingAmountVND = 0
	f.contracts.byAppointment[appointment.ID] = &models.Contract{
		ID:            uuid.New(),
		AppointmentID: appointment.ID,
		Status:        enums.ContractStatusActive,
	}
	f.contracts.fullyExecuted = false

	result, err := f.svc.Complete(context.Background(), CompleteInput{AppointmentID: appointment.ID, ActorID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, enums.AppointmentStatusCompleted, result.Status)
	assert.Contains(t, f.contracts.stepsDone, enums.TimelineStepCompleted)
	// Money settled but other steps still open: contract stays uncompleted.
	assert.False(t, f.contracts.completed)
}

func TestCompleteStampsContractWhenFullyExecuted(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeVehicleInspection, enums.AppointmentStatusAwaitingRemainingPayment)
	appointment.PaidAmountVND = 1_000_000_000
	appointment.RemainingAmountVND = 0
	f.contracts.byAppointment[appointment.ID] = &models.Contract{
		ID:            uuid.New(),
		AppointmentID: appointment.ID,
		Status:        enums.ContractStatusActive,
	}
	f.contracts.fullyExecuted = true

	_, err := f.svc.Complete(context.Background(), CompleteInput{AppointmentID: appointment.ID, ActorID: uuid.New()})
	require.NoError(t, err)
	assert.True(t, f.contracts.completed)
}

func TestUpdateTimelineStepAttachesEvidence(t *testing.T) {
	f := newFixture(t)
	attachments := []uuid.UUID{uuid.New(), uuid.New()}

	_, err := f.svc.UpdateTimelineStep(context.Background(), TimelineStepInput{
		ContractID:  uuid.New(),
		Step:        enums.TimelineStepNotarization,
		Status:      enums.StepStatusDone,
		Attachments: attachments,
		ActorID:     uuid.New(),
		ActorRole:   enums.ActorRoleStaff,
	})
	require.NoError(t, err)
	assert.Equal(t, attachments, f.evidence.attached)
}

func TestCompleteSigningWithoutPhotosIsRejected(t *testing.T) {
	f := newFixture(t)
	f.evidence.counts = map[enums.EvidenceKind]int64{
		enums.EvidenceKindSellerSignature: 3,
		enums.EvidenceKindBuyerSignature:  2,
	}
	appointment := f.seed(enums.AppointmentTypeContractSigning, enums.AppointmentStatusConfirmed)

	_, err := f.svc.Complete(context.Background(), CompleteInput{AppointmentID: appointment.ID, ActorID: uuid.New()})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientEvidence, typed.Code())
}

func TestCreateContractIsIdempotentThroughOrchestrator(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeContractSigning, enums.AppointmentStatusConfirmed)

	first, err := f.svc.CreateContract(context.Background(), CreateContractInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
	})
	require.NoError(t, err)
	second, err := f.svc.CreateContract(context.Background(), CreateContractInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, enums.ContractTypeDeposit, first.Type)
}

func TestUploadContractPhotosSignsAndCompletesSigningAppointment(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeContractSigning, enums.AppointmentStatusConfirmed)
	_, err := f.svc.CreateContract(context.Background(), CreateContractInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
	})
	require.NoError(t, err)

	photos := make([]evidence.Artifact, 3)
	contract, err := f.svc.UploadContractPhotos(context.Background(), ContractPhotosInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
		SellerPhotos:  photos,
		BuyerPhotos:   photos,
	})
	require.NoError(t, err)
	assert.NotNil(t, contract.SignedAt)
	assert.True(t, f.contracts.signed)
	assert.Contains(t, f.contracts.stepsDone, enums.TimelineStepSignContract)
	require.Len(t, f.evidence.persisted, 1)
	assert.Len(t, f.evidence.persisted[0], 6)
	assert.Equal(t, enums.AppointmentStatusCompleted, f.repo.rows[appointment.ID].Status)
	assert.Contains(t, f.events.types(), enums.EventContractSigned)
	assert.Contains(t, f.events.types(), enums.EventEvidenceUploaded)
	assert.Contains(t, f.events.types(), enums.EventAppointmentCompleted)
	// Nothing was paid through this appointment, so the vehicle stays listed.
	assert.Empty(t, f.vehicles.soldIDs)
}

func TestUploadContractPhotosWithoutContract(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeContractSigning, enums.AppointmentStatusConfirmed)

	_, err := f.svc.UploadContractPhotos(context.Background(), ContractPhotosInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
		SellerPhotos:  make([]evidence.Artifact, 3),
		BuyerPhotos:   make([]evidence.Artifact, 3),
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
	assert.Empty(t, f.evidence.persisted)
}

func TestUploadContractPhotosLosesRaceToConcurrentSigning(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeContractSigning, enums.AppointmentStatusConfirmed)
	_, err := f.svc.CreateContract(context.Background(), CreateContractInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
	})
	require.NoError(t, err)
	f.contracts.signOnSecondRead = true

	photos := make([]evidence.Artifact, 3)
	_, err = f.svc.UploadContractPhotos(context.Background(), ContractPhotosInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
		SellerPhotos:  photos,
		BuyerPhotos:   photos,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	assert.Empty(t, f.evidence.persisted)
	assert.False(t, f.contracts.signed)
	assert.Equal(t, enums.AppointmentStatusConfirmed, f.repo.rows[appointment.ID].Status)
}

func TestUploadContractPhotosRejectsSecondPersistedBatch(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeContractSigning, enums.AppointmentStatusConfirmed)
	_, err := f.svc.CreateContract(context.Background(), CreateContractInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
	})
	require.NoError(t, err)
	f.evidence.counts = map[enums.EvidenceKind]int64{
		enums.EvidenceKindSellerSignature: 3,
		enums.EvidenceKindBuyerSignature:  3,
	}

	photos := make([]evidence.Artifact, 3)
	_, err = f.svc.UploadContractPhotos(context.Background(), ContractPhotosInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
		SellerPhotos:  photos,
		BuyerPhotos:   photos,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeTooManyArtifacts, typed.Code())
	assert.Empty(t, f.evidence.persisted)
	assert.False(t, f.contracts.signed)
}

func TestUploadNotarizationProofEnforcesPersistedCap(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeContractNotarization, enums.AppointmentStatusConfirmed)
	_, err := f.svc.CreateContract(context.Background(), CreateContractInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
	})
	require.NoError(t, err)
	signedAt := time.Now().UTC()
	f.contracts.byAppointment[appointment.ID].SignedAt = &signedAt
	f.evidence.counts = map[enums.EvidenceKind]int64{
		enums.EvidenceKindNotarizationProof: 8,
	}

	_, err = f.svc.UploadNotarizationProof(context.Background(), ProofInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
		Photos:        make([]evidence.Artifact, 5),
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeTooManyArtifacts, typed.Code())
	assert.Empty(t, f.evidence.persisted)
	assert.False(t, f.contracts.notarized)
}

func TestUploadHandoverProofRequestsPayoutOnce(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeHandover, enums.AppointmentStatusConfirmed)
	appointment.PaidAmountVND = 1_000_000_000
	appointment.RemainingAmountVND = 0

	rows, err := f.svc.UploadHandoverProof(context.Background(), ProofInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
		Photos:        make([]evidence.Artifact, 2),
	})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, enums.AppointmentStatusCompleted, f.repo.rows[appointment.ID].Status)

	payoutEvents := 0
	for _, event := range f.events.deduped {
		if event.EventType == enums.EventPayoutReleaseRequested {
			payoutEvents++
		}
	}
	assert.Equal(t, 1, payoutEvents)
}

func TestUploadNotarizationProofRequiresSignedContract(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeContractNotarization, enums.AppointmentStatusConfirmed)
	_, err := f.svc.CreateContract(context.Background(), CreateContractInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
	})
	require.NoError(t, err)

	_, err = f.svc.UploadNotarizationProof(context.Background(), ProofInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
		Photos:        make([]evidence.Artifact, 1),
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestUploadNotarizationProofCompletesNotarizationAppointment(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeContractNotarization, enums.AppointmentStatusConfirmed)
	_, err := f.svc.CreateContract(context.Background(), CreateContractInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
	})
	require.NoError(t, err)
	signedAt := time.Now().UTC()
	f.contracts.byAppointment[appointment.ID].SignedAt = &signedAt

	rows, err := f.svc.UploadNotarizationProof(context.Background(), ProofInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ActorRole:     enums.ActorRoleStaff,
		Photos:        make([]evidence.Artifact, 4),
	})
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.True(t, f.contracts.notarized)
	assert.Contains(t, f.contracts.stepsDone, enums.TimelineStepNotarization)
	assert.Equal(t, enums.AppointmentStatusCompleted, f.repo.rows[appointment.ID].Status)
	assert.Contains(t, f.events.types(), enums.EventContractNotarized)
}

func TestRescheduleClearsConfirmations(t *testing.T) {
	f := newFixture(t)
	appointment := f.seed(enums.AppointmentTypeVehicleInspection, enums.AppointmentStatusConfirmed)
	now := time.Now().UTC()
	appointment.BuyerConfirmedAt = &now
	appointment.SellerConfirmedAt = &now
	appointment.ConfirmedAt = &now

	newSlot := time.Now().Add(96 * time.Hour).UTC()
	result, err := f.svc.Reschedule(context.Background(), RescheduleInput{
		AppointmentID: appointment.ID,
		ActorID:       uuid.New(),
		ScheduledAt:   newSlot,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.AppointmentStatusRescheduled, result.Status)
	assert.Nil(t, result.BuyerConfirmedAt)
	assert.Nil(t, result.SellerConfirmedAt)
	assert.Nil(t, result.ConfirmedAt)
	assert.Equal(t, newSlot, result.ScheduledAt)
}
