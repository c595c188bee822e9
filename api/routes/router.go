package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/otodealz/otodealz-backend/api/controllers"
	"github.com/otodealz/otodealz-backend/api/middleware"
	"github.com/otodealz/otodealz-backend/internal/appointments"
	"github.com/otodealz/otodealz-backend/internal/auth"
	"github.com/otodealz/otodealz-backend/internal/payments"
	"github.com/otodealz/otodealz-backend/internal/vehicles"
	"github.com/otodealz/otodealz-backend/pkg/config"
	"github.com/otodealz/otodealz-backend/pkg/enums"
	"github.com/otodealz/otodealz-backend/pkg/logger"
	"github.com/otodealz/otodealz-backend/pkg/maps"
	"github.com/otodealz/otodealz-backend/pkg/redis"
)

// Deps carries everything the HTTP surface needs. Nil optional entries
// degrade the matching routes instead of failing startup.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	Redis        *redis.Client
	Ready        controllers.ReadyDeps
	Auth         auth.Service
	Register     auth.RegisterService
	Appointments appointments.Service
	Payments     payments.Service
	PayOSWebhook controllers.PayOSWebhookService
	Vehicles     vehicles.Service
	Maps         *maps.Client
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	maxUploadBytes := int64(cfg.Evidence.MaxUploadMB) << 20

	// A nil *redis.Client must not become a non-nil interface inside the
	// middleware, so the conversion is explicit.
	var idemStore redis.IdempotencyStore
	var rateStore middleware.RateLimiterStore
	if deps.Redis != nil {
		idemStore = deps.Redis
		rateStore = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Ready, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payos", controllers.PayOSWebhook(deps.PayOSWebhook, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, rateStore, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, rateStore, logg)).Post("/register", controllers.AuthRegister(deps.Register, deps.Auth, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Get("/locations/autocomplete", controllers.LocationAutocomplete(deps.Maps, logg))

		r.Route("/appointments", func(r chi.Router) {
			r.Route("/{appointmentId}", func(r chi.Router) {
				r.Get("/", controllers.AppointmentDetail(deps.Appointments, logg))
				r.Post("/confirm", controllers.AppointmentConfirm(deps.Appointments, logg))
				r.Post("/cancel", controllers.AppointmentCancel(deps.Appointments, logg))
				r.Get("/evidence", controllers.AppointmentEvidence(deps.Appointments, logg))

				r.Post("/contract", controllers.ContractCreate(deps.Appointments, logg))
				r.Get("/contract", controllers.ContractGet(deps.Appointments, logg))
				r.Post("/contract/photos", controllers.ContractPhotosUpload(deps.Appointments, maxUploadBytes, logg))

				r.Route("/payments", func(r chi.Router) {
					r.Post("/deposit", controllers.PaymentCreateDeposit(deps.Payments, logg))
					r.Post("/full", controllers.PaymentCreateFull(deps.Payments, logg))
					r.Post("/remaining", controllers.PaymentCreateRemaining(deps.Payments, logg))
				})

				r.Post("/notarization-proof", controllers.NotarizationProofUpload(deps.Appointments, maxUploadBytes, logg))
				r.Post("/handover-proof", controllers.HandoverProofUpload(deps.Appointments, maxUploadBytes, logg))

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(string(enums.ActorRoleStaff), logg))
					r.Post("/complete", controllers.AppointmentComplete(deps.Appointments, logg))
					r.Post("/reschedule", controllers.AppointmentReschedule(deps.Appointments, logg))
				})
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(string(enums.ActorRoleStaff), logg))
				r.Get("/", controllers.AppointmentList(deps.Appointments, logg))
			})
		})

		r.Route("/vehicles", func(r chi.Router) {
			r.Get("/", controllers.VehicleList(deps.Vehicles, logg))
			r.Get("/{vehicleId}", controllers.VehicleDetail(deps.Vehicles, logg))
		})

		r.Route("/contracts/{contractId}", func(r chi.Router) {
			r.Get("/timeline", controllers.ContractTimeline(deps.Appointments, logg))
			r.With(middleware.RequireRole(string(enums.ActorRoleStaff), logg)).
				Patch("/timeline/{step}", controllers.ContractTimelineStepUpdate(deps.Appointments, logg))
		})
	})

	return r
}
