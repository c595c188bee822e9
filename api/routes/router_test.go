package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/otodealz/otodealz-backend/api/controllers"
	"github.com/otodealz/otodealz-backend/internal/appointments"
	"github.com/otodealz/otodealz-backend/internal/auth"
	"github.com/otodealz/otodealz-backend/internal/payments"
	"github.com/otodealz/otodealz-backend/internal/users"
	"github.com/otodealz/otodealz-backend/internal/vehicles"
	pkgAuth "github.com/otodealz/otodealz-backend/pkg/auth"
	"github.com/otodealz/otodealz-backend/pkg/config"
	"github.com/otodealz/otodealz-backend/pkg/db/models"
	"github.com/otodealz/otodealz-backend/pkg/enums"
	"github.com/otodealz/otodealz-backend/pkg/logger"
	"github.com/otodealz/otodealz-backend/pkg/payos"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubAuthService struct{}

func (stubAuthService) Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
	return &auth.LoginResponse{AccessToken: "token"}, nil
}

type stubRegisterService struct{}

func (stubRegisterService) Register(ctx context.Context, req auth.RegisterRequest) (*users.UserDTO, error) {
	return &users.UserDTO{Email: req.Email}, nil
}

type stubAppointmentsService struct{}

func (stubAppointmentsService) Confirm(ctx context.Context, input appointments.ConfirmInput) (*models.Appointment, error) {
	return &models.Appointment{ID: input.AppointmentID}, nil
}

func (stubAppointmentsService) Cancel(ctx context.Context, input appointments.CancelInput) (*models.Appointment, error) {
	return &models.Appointment{ID: input.AppointmentID}, nil
}

func (stubAppointmentsService) Complete(ctx context.Context, input appointments.CompleteInput) (*models.Appointment, error) {
	return &models.Appointment{ID: input.AppointmentID}, nil
}

func (stubAppointmentsService) Reschedule(ctx context.Context, input appointments.RescheduleInput) (*models.Appointment, error) {
	return &models.Appointment{ID: input.AppointmentID}, nil
}

func (stubAppointmentsService) Detail(ctx context.Context, appointmentID uuid.UUID) (*appointments.DetailResult, error) {
	return &appointments.DetailResult{Appointment: models.Appointment{ID: appointmentID}}, nil
}

func (stubAppointmentsService) List(ctx context.Context, params appointments.ListParams) (*appointments.ListResult, error) {
	return &appointments.ListResult{}, nil
}

func (stubAppointmentsService) CreateContract(ctx context.Context, input appointments.CreateContractInput) (*models.Contract, error) {
	return &models.Contract{AppointmentID: input.AppointmentID}, nil
}

func (stubAppointmentsService) GetContractInfo(ctx context.Context, appointmentID uuid.UUID) (*appointments.ContractInfo, error) {
	return &appointments.ContractInfo{}, nil
}

func (stubAppointmentsService) ContractTimeline(ctx context.Context, contractID uuid.UUID) ([]models.TimelineStep, error) {
	return nil, nil
}

func (stubAppointmentsService) UpdateTimelineStep(ctx context.Context, input appointments.TimelineStepInput) ([]models.TimelineStep, error) {
	return nil, nil
}

func (stubAppointmentsService) UploadContractPhotos(ctx context.Context, input appointments.ContractPhotosInput) (*models.Contract, error) {
	return &models.Contract{AppointmentID: input.AppointmentID}, nil
}

func (stubAppointmentsService) UploadNotarizationProof(ctx context.Context, input appointments.ProofInput) ([]models.Evidence, error) {
	return nil, nil
}

func (stubAppointmentsService) UploadHandoverProof(ctx context.Context, input appointments.ProofInput) ([]models.Evidence, error) {
	return nil, nil
}

func (stubAppointmentsService) ListEvidence(ctx context.Context, appointmentID uuid.UUID) ([]models.Evidence, error) {
	return nil, nil
}

type stubPaymentsService struct{}

func (stubPaymentsService) CreateDeposit(ctx context.Context, input payments.CreateIntentInput) (*models.PaymentIntent, error) {
	return &models.PaymentIntent{AppointmentID: input.AppointmentID}, nil
}

func (stubPaymentsService) CreateFullPayment(ctx context.Context, input payments.CreateFullPaymentInput) (*models.PaymentIntent, error) {
	return &models.PaymentIntent{AppointmentID: input.AppointmentID}, nil
}

func (stubPaymentsService) CreateRemaining(ctx context.Context, input payments.CreateIntentInput) (*models.PaymentIntent, error) {
	return &models.PaymentIntent{AppointmentID: input.AppointmentID}, nil
}

func (stubPaymentsService) ApplySettlement(ctx context.Context, input payments.SettlementInput) (*payments.SettlementResult, error) {
	return &payments.SettlementResult{}, nil
}

func (stubPaymentsService) ReconcileWithGateway(ctx context.Context, orderCode int64) (*payments.SettlementResult, error) {
	return nil, nil
}

func (stubPaymentsService) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.PaymentIntent, error) {
	return nil, nil
}

func (stubPaymentsService) VoidPending(ctx context.Context, tx *gorm.DB, appointmentID uuid.UUID) ([]int64, error) {
	return nil, nil
}

func (stubPaymentsService) CancelLinks(ctx context.Context, orderCodes []int64, reason string) {
}

type stubVehiclesService struct{}

func (s stubVehiclesService) GetVehicle(ctx context.Context, id uuid.UUID) (*vehicles.VehicleInfo, error) {
	return &vehicles.VehicleInfo{ID: id}, nil
}

func (s stubVehiclesService) ListForSeller(ctx context.Context, params vehicles.ListParams) (*vehicles.ListResult, error) {
	return &vehicles.ListResult{}, nil
}

func (s stubVehiclesService) MarkSold(ctx context.Context, tx *gorm.DB, id uuid.UUID, soldAt time.Time) error {
	return nil
}

type stubWebhookService struct {
	called bool
}

func (s *stubWebhookService) HandleWebhook(ctx context.Context, payload *payos.WebhookPayload) (*payments.SettlementResult, error) {
	s.called = true
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Env: "test", Port: "0"},
		JWT:      config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60},
		Evidence: config.EvidenceConfig{MaxUploadMB: 20},
	}
}

func newTestRouter(cfg *config.Config) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Output: io.Discard})
	return NewRouter(Deps{
		Config:       cfg,
		Logger:       logg,
		Ready:        controllers.ReadyDeps{DB: stubPinger{}, Redis: stubPinger{}},
		Auth:         stubAuthService{},
		Register:     stubRegisterService{},
		Appointments: stubAppointmentsService{},
		Payments:     stubPaymentsService{},
		PayOSWebhook: &stubWebhookService{},
		Vehicles:     stubVehiclesService{},
	})
}

func buildToken(t *testing.T, cfg *config.Config, role enums.ActorRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
		JTI:    uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLiveIsPublic(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestAppointmentRoutesRejectMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/"+uuid.NewString(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestAppointmentDetailAllowsAuthenticatedBuyer(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleBuyer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestAppointmentListRequiresStaffRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	buyer := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	buyer.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleBuyer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, buyer)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for buyer got %d", resp.Code)
	}

	staff := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	staff.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleStaff))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, staff)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for staff got %d", resp.Code)
	}
}

func TestAppointmentCompleteRequiresStaffRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	url := "/api/v1/appointments/" + uuid.NewString() + "/complete"
	seller := httptest.NewRequest(http.MethodPost, url, nil)
	seller.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleSeller))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, seller)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for seller got %d", resp.Code)
	}

	staff := httptest.NewRequest(http.MethodPost, url, nil)
	staff.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleStaff))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, staff)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for staff got %d", resp.Code)
	}
}

func TestTimelineStepPatchRequiresStaffRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	url := "/api/v1/contracts/" + uuid.NewString() + "/timeline/notarization"
	buyer := httptest.NewRequest(http.MethodPatch, url, strings.NewReader(`{"status":"done"}`))
	buyer.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleBuyer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, buyer)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for buyer got %d", resp.Code)
	}
}

func TestPayOSWebhookIsPublic(t *testing.T) {
	cfg := testConfig()
	webhook := &stubWebhookService{}
	logg := logger.New(logger.Options{ServiceName: "test-routing", Output: io.Discard})
	router := NewRouter(Deps{
		Config:       cfg,
		Logger:       logg,
		Auth:         stubAuthService{},
		Register:     stubRegisterService{},
		Appointments: stubAppointmentsService{},
		Payments:     stubPaymentsService{},
		PayOSWebhook: webhook,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payos", strings.NewReader(`{"code":"00","success":true}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !webhook.called {
		t.Fatal("expected webhook service invoked")
	}
}

func TestLoginRouteIsPublic(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"a@b.vn","password":"secretpass"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestVehicleRoutesAllowAuthenticatedSeller(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	list := httptest.NewRequest(http.MethodGet, "/api/v1/vehicles", nil)
	list.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleSeller))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, list)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	detail := httptest.NewRequest(http.MethodGet, "/api/v1/vehicles/"+uuid.NewString(), nil)
	detail.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleSeller))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, detail)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}
