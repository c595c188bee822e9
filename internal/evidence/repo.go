package evidence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/otodealz/otodealz-backend/pkg/db/models"
	"github.com/otodealz/otodealz-backend/pkg/enums"
)

// Repository exposes persistence helpers for evidence artifacts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBatch(ctx context.Context, rows []models.Evidence) error
	CountByKinds(ctx context.Context, appointmentID uuid.UUID, kinds ...enums.EvidenceKind) (map[enums.EvidenceKind]int64, error)
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.Evidence, error)
	AttachToStep(ctx context.Context, contractID uuid.UUID, step enums.TimelineStep, evidenceIDs []uuid.UUID) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an evidence repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// CreateBatch inserts every row in one statement so a failed batch persists
// nothing.
func (r *repositoryImpl) CreateBatch(ctx context.Context, rows []models.Evidence) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *repositoryImpl) CountByKinds(ctx context.Context, appointmentID uuid.UUID, kinds ...enums.EvidenceKind) (map[enums.EvidenceKind]int64, error) {
	type kindCount struct {
		Kind  enums.EvidenceKind
		Count int64
	}
	var rows []kindCount
	query := r.db.WithContext(ctx).
		Model(&models.Evidence{}).
		Select("kind, COUNT(*) AS count").
		Where("appointment_id = ?", appointmentID)
	if len(kinds) > 0 {
		query = query.Where("kind IN ?", kinds)
	}
	if err := query.Group("kind").Find(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[enums.EvidenceKind]int64, len(rows))
	for _, row := range rows {
		counts[row.Kind] = row.Count
	}
	return counts, nil
}

// AttachToStep stamps contract and step onto existing rows. The subquery pins
// the rows to the contract's own appointment so an id from another deal
// cannot be attached.
func (r *repositoryImpl) AttachToStep(ctx context.Context, contractID uuid.UUID, step enums.TimelineStep, evidenceIDs []uuid.UUID) (int64, error) {
	if len(evidenceIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.Evidence{}).
		Where("id IN ?", evidenceIDs).
		Where("appointment_id = (?)", r.db.Model(&models.Contract{}).Select("appointment_id").Where("id = ?", contractID)).
		Updates(map[string]any{"contract_id": contractID, "step": step})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repositoryImpl) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.Evidence, error) {
	var rows []models.Evidence
	err := r.db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}
