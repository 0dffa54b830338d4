package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/bookwell/backend/internal/auth"
	"github.com/bookwell/backend/internal/bookings"
	"github.com/bookwell/backend/internal/config"
	"github.com/bookwell/backend/internal/dashboard"
	"github.com/bookwell/backend/internal/db"
	"github.com/bookwell/backend/internal/disputes"
	"github.com/bookwell/backend/internal/gateway"
	"github.com/bookwell/backend/internal/handlers"
	"github.com/bookwell/backend/internal/ledger"
	"github.com/bookwell/backend/internal/notify"
	"github.com/bookwell/backend/internal/obs"
	"github.com/bookwell/backend/internal/payouts"
	"github.com/bookwell/backend/internal/repository"
	"github.com/bookwell/backend/internal/router"
	"github.com/bookwell/backend/internal/scheduler"
	"github.com/bookwell/backend/internal/webhooks"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if cfg.OTelEnabled {
		shutdown, err := obs.InitTracer(ctx, cfg.ServiceName, cfg.OTelEndpoint, cfg.Env)
		if err != nil {
			slog.Warn("Tracing disabled", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := db.Migrate(ctx, pool); err != nil {
		slog.Error("Schema migration failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Repositories
	accountRepo := repository.NewAccountRepo(pool)
	bookingRepo := repository.NewBookingRepo(pool)
	payoutRepo := repository.NewPayoutRepo(pool)
	recipientRepo := repository.NewRecipientRepo(pool)
	disputeRepo := repository.NewDisputeRepo(pool)
	settingsRepo := repository.NewSettingsRepo(pool)
	escrow := ledger.NewRepository(pool)

	// Gateway
	var gw gateway.Gateway
	var omiseEvents webhooks.EventDecoder
	switch cfg.GatewayProvider {
	case config.GatewayOmise:
		o, err := gateway.NewOmise(cfg.OmisePublicKey, cfg.OmiseSecretKey)
		if err != nil {
			slog.Error("Omise client init failed", "error", err)
			os.Exit(1)
		}
		gw, omiseEvents = o, o
	default:
		gw = gateway.NewPaystack(cfg.PaystackBaseURL, cfg.PaystackSecretKey, cfg.Currency)
	}
	slog.Info("Payment gateway selected", "provider", cfg.GatewayProvider)

	// Notifications
	var notifier notify.Notifier = notify.LogNotifier{Logger: logger}
	if cfg.RabbitURL != "" {
		pub, err := notify.NewPublisher(cfg.RabbitURL, cfg.NotifyExchange, logger)
		if err != nil {
			slog.Warn("RabbitMQ unavailable, notifications go to the log", "error", err)
		} else {
			defer pub.Close()
			notifier = pub
		}
	}

	// Services
	settler := payouts.NewSettler(payoutRepo, recipientRepo, gw, logger)
	recipients := payouts.NewRecipients(recipientRepo, gw)
	bookingSvc := bookings.NewService(bookings.Deps{
		Bookings:   bookingRepo,
		Accounts:   accountRepo,
		Recipients: recipientRepo,
		Settings:   settingsRepo,
		Settler:    settler,
		Payouts:    payoutRepo,
		Payments:   gw,
		Notifier:   notifier,
		Logger:     logger,
	})
	disputeSvc := disputes.NewService(disputeRepo, bookingSvc, logger)
	reconciler := webhooks.NewReconciler(payoutRepo, bookingSvc, accountRepo, settingsRepo, gw, logger)
	validator, err := webhooks.NewEventValidator()
	if err != nil {
		slog.Error("Webhook schema compile failed", "error", err)
		os.Exit(1)
	}

	// Scheduler
	sweeper := scheduler.NewSweeper(bookingRepo, bookingSvc, recipientRepo, settingsRepo, cfg.PayoutRetryBackoff, logger)
	workers := river.NewWorkers()
	river.AddWorker(workers, scheduler.NewAutoReleaseWorker(sweeper))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
		Workers:      workers,
		PeriodicJobs: []*river.PeriodicJob{scheduler.PeriodicJob(cfg.AutoReleaseInterval)},
		Logger:       logger,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	// HTTP
	authSvc := auth.NewService(accountRepo, cfg.JWTSecret)
	apiV1Router := router.New(router.Handlers{
		Auth: auth.NewHandler(authSvc, logger),
		Bookings: &handlers.BookingHandler{
			Bookings: bookingSvc,
			Disputes: disputeSvc,
			Escrow:   escrow,
			Logger:   logger,
		},
		Payouts: &handlers.PayoutHandler{
			Recipients: recipients,
			Banks:      gw,
			Logger:     logger,
		},
		Dashboard: dashboard.NewHandler(accountRepo, settingsRepo, disputeSvc, bookingSvc, reconciler, logger),
	}, authSvc)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiV1Router)
	RegisterWebhookRoutes(mux, &webhooks.Handler{
		Reconciler: reconciler,
		Validator:  validator,
		Omise:      omiseEvents,
		Logger:     logger,
	}, cfg.PaystackSecretKey, logger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(mux)

	// Start River client (runs the auto-release sweep)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
