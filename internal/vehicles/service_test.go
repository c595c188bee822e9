package vehicles

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/otodealz/otodealz-backend/pkg/db/models"
	pkgerrors "github.com/otodealz/otodealz-backend/pkg/errors"
	"github.com/otodealz/otodealz-backend/pkg/pagination"
)

type stubVehicleRepo struct {
	vehicles map[uuid.UUID]*models.Vehicle
	listed   []models.Vehicle
	next     *pagination.Cursor
	soldIDs  []uuid.UUID
	soldRows int64
	txCalls  int
	lastList listVehiclesParams
}

func (s *stubVehicleRepo) WithTx(tx *gorm.DB) Repository {
	s.txCalls++
	return s
}

func (s *stubVehicleRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	vehicle, ok := s.vehicles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return vehicle, nil
}

func (s *stubVehicleRepo) ListBySeller(ctx context.Context, params listVehiclesParams) ([]models.Vehicle, *pagination.Cursor, error) {
	s.lastList = params
	return s.listed, s.next, nil
}

func (s *stubVehicleRepo) MarkSold(ctx context.Context, id uuid.UUID, soldAt time.Time) (int64, error) {
	s.soldIDs = append(s.soldIDs, id)
	return s.soldRows, nil
}

func TestGetVehicleReturnsCollaboratorShape(t *testing.T) {
	id := uuid.New()
	sellerID := uuid.New()
	repo := &stubVehicleRepo{vehicles: map[uuid.UUID]*models.Vehicle{
		id: {
			ID:       id,
			SellerID: sellerID,
			Make:     "Toyota",
			Model:    "Vios",
			Year:     2021,
			PriceVND: 465_000_000,
			IsListed: true,
		},
	}}
	svc, err := NewService(repo)
	require.NoError(t, err)

	info, err := svc.GetVehicle(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, sellerID, info.SellerID)
	assert.Equal(t, "Toyota", info.Make)
	assert.Equal(t, int64(465_000_000), info.PriceVND)
	assert.True(t, info.IsListed)
}

func TestGetVehicleNotFound(t *testing.T) {
	svc, err := NewService(&stubVehicleRepo{vehicles: map[uuid.UUID]*models.Vehicle{}})
	require.NoError(t, err)

	_, err = svc.GetVehicle(context.Background(), uuid.New())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestGetVehicleRejectsNilID(t *testing.T) {
	svc, err := NewService(&stubVehicleRepo{})
	require.NoError(t, err)

	_, err = svc.GetVehicle(context.Background(), uuid.Nil)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestListForSellerEncodesNextCursor(t *testing.T) {
	next := &pagination.Cursor{CreatedAt: time.Now().UTC(), ID: uuid.New()}
	repo := &stubVehicleRepo{
		listed: []models.Vehicle{{ID: uuid.New()}, {ID: uuid.New()}},
		next:   next,
	}
	svc, err := NewService(repo)
	require.NoError(t, err)

	result, err := svc.ListForSeller(context.Background(), ListParams{
		SellerID:   uuid.New(),
		Limit:      2,
		ListedOnly: true,
	})
	require.NoError(t, err)
	assert.Len(t, result.Items, 2)
	assert.NotEmpty(t, result.Cursor)
	assert.True(t, repo.lastList.ListedOnly)

	decoded, err := pagination.ParseCursor(result.Cursor)
	require.NoError(t, err)
	assert.Equal(t, next.ID, decoded.ID)
}

func TestListForSellerRequiresSellerID(t *testing.T) {
	svc, err := NewService(&stubVehicleRepo{})
	require.NoError(t, err)

	_, err = svc.ListForSeller(context.Background(), ListParams{})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestListForSellerRejectsBadCursor(t *testing.T) {
	svc, err := NewService(&stubVehicleRepo{})
	require.NoError(t, err)

	_, err = svc.ListForSeller(context.Background(), ListParams{
		SellerID: uuid.New(),
		Cursor:   "not-a-cursor",
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestMarkSoldUsesTransactionScope(t *testing.T) {
	repo := &stubVehicleRepo{soldRows: 1}
	svc, err := NewService(repo)
	require.NoError(t, err)

	tx := &gorm.DB{}
	id := uuid.New()
	require.NoError(t, svc.MarkSold(context.Background(), tx, id, time.Now().UTC()))
	assert.Equal(t, 1, repo.txCalls)
	assert.Equal(t, []uuid.UUID{id}, repo.soldIDs)
}

func TestMarkSoldAlreadySoldIsNoOp(t *testing.T) {
	repo := &stubVehicleRepo{soldRows: 0}
	svc, err := NewService(repo)
	require.NoError(t, err)

	require.NoError(t, svc.MarkSold(context.Background(), nil, uuid.New(), time.Now().UTC()))
	assert.Equal(t, 0, repo.txCalls)
}
