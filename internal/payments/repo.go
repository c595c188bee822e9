package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/otodealz/otodealz-backend/pkg/db/models"
	"github.com/otodealz/otodealz-backend/pkg/enums"
)

// Repository exposes persistence helpers for payment intents.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.PaymentIntent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	FindByOrderCode(ctx context.Context, orderCode int64) (*models.PaymentIntent, error)
	FindActive(ctx context.Context, appointmentID uuid.UUID, kind enums.PaymentKind) (*models.PaymentIntent, error)
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.PaymentIntent, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentIntent, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repositoryImpl) FindByOrderCode(ctx context.Context, orderCode int64) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("order_code = ?", orderCode).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

// FindActive returns the one pending intent for the appointment and kind, if
// any. The partial unique index guarantees at most one row matches.
func (r *repositoryImpl) FindActive(ctx context.Context, appointmentID uuid.UUID, kind enums.PaymentKind) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("appointment_id = ? AND kind = ? AND status = ?", appointmentID, kind, enums.PaymentIntentStatusPending).
		First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repositoryImpl) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Order("created_at DESC, id DESC").
		Find(&intents).Error
	return intents, err
}

// ListPendingBefore feeds the settlement poller with intents the webhook has
// not resolved within the grace window.
func (r *repositoryImpl) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	query := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.PaymentIntentStatusPending, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&intents).Error
	return intents, err
}

func (r *repositoryImpl) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ?", id).
		Updates(fields).Error
}
