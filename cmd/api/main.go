package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/otodealz/otodealz-backend/api/controllers"
	"github.com/otodealz/otodealz-backend/api/routes"
	"github.com/otodealz/otodealz-backend/internal/appointments"
	"github.com/otodealz/otodealz-backend/internal/auth"
	"github.com/otodealz/otodealz-backend/internal/contracts"
	"github.com/otodealz/otodealz-backend/internal/evidence"
	"github.com/otodealz/otodealz-backend/internal/payments"
	"github.com/otodealz/otodealz-backend/internal/users"
	"github.com/otodealz/otodealz-backend/internal/vehicles"
	payoswebhook "github.com/otodealz/otodealz-backend/internal/webhooks/payos"
	"github.com/otodealz/otodealz-backend/pkg/config"
	"github.com/otodealz/otodealz-backend/pkg/db"
	"github.com/otodealz/otodealz-backend/pkg/logger"
	"github.com/otodealz/otodealz-backend/pkg/maps"
	"github.com/otodealz/otodealz-backend/pkg/migrate"
	"github.com/otodealz/otodealz-backend/pkg/outbox"
	"github.com/otodealz/otodealz-backend/pkg/payos"
	"github.com/otodealz/otodealz-backend/pkg/redis"
	"github.com/otodealz/otodealz-backend/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap cloud storage", err)
		os.Exit(1)
	}
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing cloud storage", err)
		}
	}()

	payosClient, err := payos.NewClient(cfg.PayOS, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payos client", err)
		os.Exit(1)
	}

	// Autocomplete is optional; the controller degrades to a dependency
	// error when no key is configured.
	var mapsClient *maps.Client
	if cfg.Maps.APIKey != "" {
		mapsClient, err = maps.NewClient(cfg.Maps.APIKey)
		if err != nil {
			logg.Error(context.Background(), "failed to create maps client", err)
			os.Exit(1)
		}
	}

	userRepo := users.NewRepository(dbClient.DB())
	appointmentRepo := appointments.NewRepository(dbClient.DB())
	contractRepo := contracts.NewRepository(dbClient.DB())
	evidenceRepo := evidence.NewRepository(dbClient.DB())
	paymentRepo := payments.NewRepository(dbClient.DB())
	vehicleRepo := vehicles.NewRepository(dbClient.DB())

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	vehicleService, err := vehicles.NewService(vehicleRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create vehicles service", err)
		os.Exit(1)
	}

	contractService, err := contracts.NewService(contractRepo, outboxService)
	if err != nil {
		logg.Error(context.Background(), "failed to create contracts service", err)
		os.Exit(1)
	}

	evidenceService, err := evidence.NewService(evidence.ServiceParams{
		Repo:           evidenceRepo,
		Storage:        gcsClient,
		Bucket:         cfg.GCS.BucketName,
		MaxUploadBytes: int64(cfg.Evidence.MaxUploadMB) << 20,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create evidence service", err)
		os.Exit(1)
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:         paymentRepo,
		Tx:           dbClient,
		Outbox:       outboxService,
		Gateway:      payosClient,
		Appointments: appointmentRepo,
		Vehicles:     vehicleService,
		Policy:       cfg.Payments,
		PayOS:        cfg.PayOS,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	appointmentService, err := appointments.NewService(appointments.ServiceParams{
		Repo:      appointmentRepo,
		Tx:        dbClient,
		Outbox:    outboxService,
		Contracts: contractService,
		Evidence:  evidenceService,
		Payments:  paymentService,
		Vehicles:  vehicleService,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create appointments service", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:  userRepo,
		JWTConfig: cfg.JWT,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		DB:             dbClient,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create register service", err)
		os.Exit(1)
	}

	webhookService, err := payoswebhook.NewService(payoswebhook.ServiceParams{
		Payments:    paymentService,
		Redis:       redisClient,
		ChecksumKey: cfg.PayOS.ChecksumKey,
		DedupeTTL:   cfg.Eventing.WebhookIdempotencyTTL,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payos webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config: cfg,
			Logger: logg,
			Redis:  redisClient,
			Ready: controllers.ReadyDeps{
				DB:      dbClient,
				Redis:   redisClient,
				Storage: gcsClient,
			},
			Auth:         authService,
			Register:     registerService,
			Appointments: appointmentService,
			Payments:     paymentService,
			PayOSWebhook: webhookService,
			Vehicles:     vehicleService,
			Maps:         mapsClient,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
