package vehicles

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/otodealz/otodealz-backend/pkg/db/models"
	pkgerrors "github.com/otodealz/otodealz-backend/pkg/errors"
	"github.com/otodealz/otodealz-backend/pkg/pagination"
)

// Service exposes vehicle reads for the transaction workflow.
type Service interface {
	GetVehicle(ctx context.Context, id uuid.UUID) (*VehicleInfo, error)
	ListForSeller(ctx context.Context, params ListParams) (*ListResult, error)
	MarkSold(ctx context.Context, tx *gorm.DB, id uuid.UUID, soldAt time.Time) error
}

type service struct {
	repo Repository
}

// VehicleInfo is the collaborator shape consumed by the orchestrator.
type VehicleInfo struct {
	ID       uuid.UUID `json:"id"`
	SellerID uuid.UUID `json:"sellerId"`
	Make     string    `json:"make"`
	Model    string    `json:"model"`
	Year     int       `json:"year"`
	PriceVND int64     `json:"priceVnd"`
	IsListed bool      `json:"isListed"`
}

// ListParams configures pagination for a seller's listings.
type ListParams struct {
	SellerID   uuid.UUID
	Limit      int
	Cursor     string
	ListedOnly bool
}

// ListResult wraps returned vehicles and the cursor for the next page.
type ListResult struct {
	Items  []models.Vehicle `json:"items"`
	Cursor string           `json:"cursor"`
}

// NewService wires vehicles dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "vehicles repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetVehicle(ctx context.Context, id uuid.UUID) (*VehicleInfo, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vehicle id required")
	}
	vehicle, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vehicle not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vehicle")
	}
	return &VehicleInfo{
		ID:       vehicle.ID,
		SellerID: vehicle.SellerID,
		Make:     vehicle.Make,
		Model:    vehicle.Model,
		Year:     vehicle.Year,
		PriceVND: vehicle.PriceVND,
		IsListed: vehicle.IsListed,
	}, nil
}

func (s *service) ListForSeller(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}

	query := listVehiclesParams{
		SellerID:   params.SellerID,
		Limit:      pagination.NormalizeLimit(params.Limit),
		ListedOnly: params.ListedOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListBySeller(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vehicles")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

// MarkSold flips the listing off once a transaction completes. Runs inside
// the orchestrator's transaction; marking an already sold vehicle is a no-op.
func (s *service) MarkSold(ctx context.Context, tx *gorm.DB, id uuid.UUID, soldAt time.Time) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "vehicle id required")
	}
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	if _, err := repo.MarkSold(ctx, id, soldAt); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark vehicle sold")
	}
	return nil
}
