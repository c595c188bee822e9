package evidence

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/otodealz/otodealz-backend/pkg/db/models"
	"github.com/otodealz/otodealz-backend/pkg/enums"
	pkgerrors "github.com/otodealz/otodealz-backend/pkg/errors"
)

// Artifact count rules: signing uploads carry exactly three photos per side,
// proof uploads between one and ten.
const (
	SigningPhotosPerSide = 3
	MinProofArtifacts    = 1
	MaxProofArtifacts    = 10
)

var allowedContentTypes = []string{"image/png", "image/jpeg", "image/webp"}

type uploader interface {
	Upload(ctx context.Context, bucket, object, contentType string, data []byte) (string, error)
}

// Artifact is one uploaded file before it is stored.
type Artifact struct {
	FileName    string
	ContentType string
	Data        []byte
}

// StagedBatch carries rows whose bytes are already in object storage but whose
// database rows are not yet written. Persist runs inside the orchestrator's
// transaction so the rows land atomically with the state change they prove.
type StagedBatch struct {
	BatchID uuid.UUID
	Rows    []models.Evidence
}

// SigningBatchParams describes a contract-signing upload: both sides at once.
type SigningBatchParams struct {
	AppointmentID uuid.UUID
	ContractID    uuid.UUID
	UploadedBy    uuid.UUID
	SellerPhotos  []Artifact
	BuyerPhotos   []Artifact
}

// ProofBatchParams describes a notarization or handover proof upload. Note is
// an optional caption stored on every row of the batch.
type ProofBatchParams struct {
	AppointmentID uuid.UUID
	ContractID    *uuid.UUID
	UploadedBy    uuid.UUID
	Step          enums.TimelineStep
	Kind          enums.EvidenceKind
	Photos        []Artifact
	Note          *string
}

// Service stores and reads proof artifacts.
type Service interface {
	StageSigningBatch(ctx context.Context, params SigningBatchParams) (*StagedBatch, error)
	StageProofBatch(ctx context.Context, params ProofBatchParams) (*StagedBatch, error)
	Persist(ctx context.Context, tx *gorm.DB, batch *StagedBatch) error
	List(ctx context.Context, appointmentID uuid.UUID) ([]models.Evidence, error)
	CountByKinds(ctx context.Context, tx *gorm.DB, appointmentID uuid.UUID, kinds ...enums.EvidenceKind) (map[enums.EvidenceKind]int64, error)
	AttachToStep(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, step enums.TimelineStep, evidenceIDs []uuid.UUID) error
}

type service struct {
	repo           Repository
	storage        uploader
	bucket         string
	maxUploadBytes int64
}

// ServiceParams bundles the evidence service dependencies.
type ServiceParams struct {
	Repo           Repository
	Storage        uploader
	Bucket         string
	MaxUploadBytes int64
}

// NewService wires evidence dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("evidence repository required")
	}
	if params.Storage == nil {
		return nil, fmt.Errorf("storage client required")
	}
	if params.Bucket == "" {
		return nil, fmt.Errorf("storage bucket required")
	}
	if params.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("max upload size must be positive")
	}
	return &service{
		repo:           params.Repo,
		storage:        params.Storage,
		bucket:         params.Bucket,
		maxUploadBytes: params.MaxUploadBytes,
	}, nil
}

// StageSigningBatch validates the exactly-3-per-side rule before a single
// byte is stored, then uploads all six photos and returns the unsaved rows.
func (s *service) StageSigningBatch(ctx context.Context, params SigningBatchParams) (*StagedBatch, error) {
	if params.AppointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}
	if params.UploadedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "uploader identity required")
	}
	if err := requireExactCount("seller", len(params.SellerPhotos)); err != nil {
		return nil, err
	}
	if err := requireExactCount("buyer", len(params.BuyerPhotos)); err != nil {
		return nil, err
	}
	for _, artifact := range append(append([]Artifact{}, params.SellerPhotos...), params.BuyerPhotos...) {
		if err := s.validateArtifact(artifact); err != nil {
			return nil, err
		}
	}

	batch := &StagedBatch{BatchID: uuid.New()}
	contractID := params.ContractID
	for i, artifact := range params.SellerPhotos {
		row, err := s.uploadOne(ctx, params.AppointmentID, batch.BatchID, i, artifact, enums.EvidenceKindSellerSignature)
		if err != nil {
			return nil, err
		}
		row.ContractID = &contractID
		row.Step = enums.TimelineStepSignContract
		row.UploadedBy = params.UploadedBy
		batch.Rows = append(batch.Rows, *row)
	}
	for i, artifact := range params.BuyerPhotos {
		row, err := s.uploadOne(ctx, params.AppointmentID, batch.BatchID, SigningPhotosPerSide+i, artifact, enums.EvidenceKindBuyerSignature)
		if err != nil {
			return nil, err
		}
		row.ContractID = &contractID
		row.Step = enums.TimelineStepSignContract
		row.UploadedBy = params.UploadedBy
		batch.Rows = append(batch.Rows, *row)
	}
	return batch, nil
}

// StageProofBatch validates the 1..10 bound, uploads the photos and returns
// the unsaved rows.
func (s *service) StageProofBatch(ctx context.Context, params ProofBatchParams) (*StagedBatch, error) {
	if params.AppointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}
	if params.UploadedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "uploader identity required")
	}
	if !params.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid evidence kind")
	}
	if len(params.Photos) < MinProofArtifacts {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientEvidence,
			fmt.Sprintf("at least %d photo required, received %d", MinProofArtifacts, len(params.Photos)))
	}
	if len(params.Photos) > MaxProofArtifacts {
		return nil, pkgerrors.New(pkgerrors.CodeTooManyArtifacts,
			fmt.Sprintf("at most %d photos allowed, received %d", MaxProofArtifacts, len(params.Photos)))
	}
	for _, artifact := range params.Photos {
		if err := s.validateArtifact(artifact); err != nil {
			return nil, err
		}
	}

	batch := &StagedBatch{BatchID: uuid.New()}
	for i, artifact := range params.Photos {
		row, err := s.uploadOne(ctx, params.AppointmentID, batch.BatchID, i, artifact, params.Kind)
		if err != nil {
			return nil, err
		}
		row.ContractID = params.ContractID
		row.Step = params.Step
		row.UploadedBy = params.UploadedBy
		row.Description = params.Note
		batch.Rows = append(batch.Rows, *row)
	}
	return batch, nil
}

// Persist writes the staged rows inside the caller's transaction.
func (s *service) Persist(ctx context.Context, tx *gorm.DB, batch *StagedBatch) error {
	if batch == nil || len(batch.Rows) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "empty evidence batch")
	}
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	if err := repo.CreateBatch(ctx, batch.Rows); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist evidence batch")
	}
	return nil
}

func (s *service) List(ctx context.Context, appointmentID uuid.UUID) ([]models.Evidence, error) {
	if appointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}
	rows, err := s.repo.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list evidence")
	}
	return rows, nil
}

// CountByKinds counts persisted rows per kind. Inside a transaction the count
// reflects rows written by that transaction, which is what completion checks
// and duplicate-upload guards need.
func (s *service) CountByKinds(ctx context.Context, tx *gorm.DB, appointmentID uuid.UUID, kinds ...enums.EvidenceKind) (map[enums.EvidenceKind]int64, error) {
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	counts, err := repo.CountByKinds(ctx, appointmentID, kinds...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count evidence")
	}
	return counts, nil
}

// AttachToStep links already-persisted evidence rows to a contract timeline
// step. Rows must belong to the contract's appointment; anything else fails
// the whole attach.
func (s *service) AttachToStep(ctx context.Context, tx *gorm.DB, contractID uuid.UUID, step enums.TimelineStep, evidenceIDs []uuid.UUID) error {
	if len(evidenceIDs) == 0 {
		return nil
	}
	if contractID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "contract id required")
	}
	if !step.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown timeline step")
	}
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	attached, err := repo.AttachToStep(ctx, contractID, step, evidenceIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach evidence to step")
	}
	if attached != int64(len(evidenceIDs)) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "one or more evidence rows do not belong to this contract").
			WithDetails(map[string]any{"requested": len(evidenceIDs), "attached": attached})
	}
	return nil
}

func (s *service) uploadOne(ctx context.Context, appointmentID, batchID uuid.UUID, index int, artifact Artifact, kind enums.EvidenceKind) (*models.Evidence, error) {
	object := buildObjectKey(appointmentID, batchID, index, artifact.FileName)
	url, err := s.storage.Upload(ctx, s.bucket, object, artifact.ContentType, artifact.Data)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload evidence artifact")
	}
	return &models.Evidence{
		AppointmentID: appointmentID,
		Kind:          kind,
		BatchID:       batchID,
		ObjectURL:     url,
		ContentType:   artifact.ContentType,
		SizeBytes:     int64(len(artifact.Data)),
	}, nil
}

func (s *service) validateArtifact(artifact Artifact) error {
	if len(artifact.Data) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "empty file")
	}
	if int64(len(artifact.Data)) > s.maxUploadBytes {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("file exceeds %d byte limit", s.maxUploadBytes))
	}
	contentType := strings.TrimSpace(artifact.ContentType)
	for _, allowed := range allowedContentTypes {
		if strings.EqualFold(allowed, contentType) {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "content type not allowed for evidence")
}

func requireExactCount(side string, got int) error {
	if got == SigningPhotosPerSide {
		return nil
	}
	message := fmt.Sprintf("%d of %d %s photos required, received %d", SigningPhotosPerSide, SigningPhotosPerSide, side, got)
	if got < SigningPhotosPerSide {
		return pkgerrors.New(pkgerrors.CodeInsufficientEvidence, message)
	}
	return pkgerrors.New(pkgerrors.CodeTooManyArtifacts, message)
}

func buildObjectKey(appointmentID, batchID uuid.UUID, index int, fileName string) string {
	base := path.Base(strings.TrimSpace(fileName))
	if base == "." || base == "/" || base == "" {
		base = "artifact"
	}
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, base)
	return fmt.Sprintf("evidence/%s/%s/%02d-%s", appointmentID, batchID, index, base)
}
