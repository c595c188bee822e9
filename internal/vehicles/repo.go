package vehicles

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/otodealz/otodealz-backend/pkg/db/models"
	"github.com/otodealz/otodealz-backend/pkg/pagination"
)

// Repository exposes persistence helpers for vehicle listings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	ListBySeller(ctx context.Context, params listVehiclesParams) ([]models.Vehicle, *pagination.Cursor, error)
	MarkSold(ctx context.Context, id uuid.UUID, soldAt time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a vehicles repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listVehiclesParams struct {
	SellerID   uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
	ListedOnly bool
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&vehicle).Error; err != nil {
		return nil, err
	}
	return &vehicle, nil
}

func (r *repositoryImpl) ListBySeller(ctx context.Context, params listVehiclesParams) ([]models.Vehicle, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Vehicle{}).Where("seller_id = ?", params.SellerID)
	if params.ListedOnly {
		query = query.Where("is_listed = TRUE AND sold_at IS NULL")
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var vehicles []models.Vehicle
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&vehicles).Error; err != nil {
		return nil, nil, err
	}

	if len(vehicles) > normalized {
		next := vehicles[normalized]
		vehicles = vehicles[:normalized]
		return vehicles, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return vehicles, nil, nil
}

func (r *repositoryImpl) MarkSold(ctx context.Context, id uuid.UUID, soldAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Vehicle{}).
		Where("id = ? AND sold_at IS NULL", id).
		Updates(map[string]any{"sold_at": soldAt, "is_listed": false})
	return result.RowsAffected, result.Error
}
