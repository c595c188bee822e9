package contracts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/otodealz/otodealz-backend/pkg/db/models"
	"github.com/otodealz/otodealz-backend/pkg/enums"
)

// Repository exposes persistence helpers for contracts and their timeline.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, contract *models.Contract) error
	CreateSteps(ctx context.Context, steps []models.TimelineStep) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	FindByAppointment(ctx context.Context, appointmentID uuid.UUID) (*models.Contract, error)
	ListSteps(ctx context.Context, contractID uuid.UUID) ([]models.TimelineStep, error)
	FindStep(ctx context.Context, contractID uuid.UUID, step enums.TimelineStep) (*models.TimelineStep, error)
	SaveStep(ctx context.Context, step *models.TimelineStep) error
	UpdateFields(ctx context.Context, contractID uuid.UUID, fields map[string]any) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a contracts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, contract *models.Contract) error {
	return r.db.WithContext(ctx).Create(contract).Error
}

func (r *repositoryImpl) CreateSteps(ctx context.Context, steps []models.TimelineStep) error {
	if len(steps) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&steps).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&contract).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

func (r *repositoryImpl) FindByAppointment(ctx context.Context, appointmentID uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	if err := r.db.WithContext(ctx).Where("appointment_id = ?", appointmentID).First(&contract).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

func (r *repositoryImpl) ListSteps(ctx context.Context, contractID uuid.UUID) ([]models.TimelineStep, error) {
	var steps []models.TimelineStep
	err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Find(&steps).Error
	return steps, err
}

func (r *repositoryImpl) FindStep(ctx context.Context, contractID uuid.UUID, step enums.TimelineStep) (*models.TimelineStep, error) {
	var row models.TimelineStep
	err := r.db.WithContext(ctx).
		Where("contract_id = ? AND step = ?", contractID, step).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repositoryImpl) SaveStep(ctx context.Context, step *models.TimelineStep) error {
	return r.db.WithContext(ctx).Save(step).Error
}

func (r *repositoryImpl) UpdateFields(ctx context.Context, contractID uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("id = ?", contractID).
		Updates(fields).Error
}
