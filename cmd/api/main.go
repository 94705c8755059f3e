package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/booklinehq/bookline-platform/internal/api/router"
	"github.com/booklinehq/bookline-platform/internal/app/bootstrap"
	"github.com/booklinehq/bookline-platform/internal/bookings"
	"github.com/booklinehq/bookline-platform/internal/business"
	appconfig "github.com/booklinehq/bookline-platform/internal/config"
	"github.com/booklinehq/bookline-platform/internal/conversation"
	"github.com/booklinehq/bookline-platform/internal/events"
	"github.com/booklinehq/bookline-platform/internal/http/handlers"
	"github.com/booklinehq/bookline-platform/internal/messaging"
	observemetrics "github.com/booklinehq/bookline-platform/internal/observability/metrics"
	"github.com/booklinehq/bookline-platform/internal/reminders"
	"github.com/booklinehq/bookline-platform/internal/reschedule"
	"github.com/booklinehq/bookline-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting bookline API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// The reschedule tracker runs on database/sql; everything else uses pgx.
	sqlDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open sql connection", "error", err)
		os.Exit(1)
	}
	defer func() { _ = sqlDB.Close() }()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	var profiles conversation.ProfileSource = business.DefaultSource{}
	if store := bootstrap.BuildProfileStore(redisClient); store != nil {
		profiles = store
	}
	gateway, providerName := bootstrap.BuildGateway(cfg, logger)
	if gateway != nil {
		logger.Info("sms gateway ready", "provider", providerName)
	}

	metrics := observemetrics.NewPlatformMetrics(nil)
	eventLog := events.NewAutomationLog(pool, logger)
	processed := events.NewProcessedStore(pool)

	convStore := conversation.NewStore(pool)
	bookingRepo := bookings.NewRepository(pool)
	reminderStore := reminders.NewStore(pool)
	numbers := business.NewNumberDirectory(pool)
	tracker := reschedule.NewTracker(sqlDB, logger)

	sweepWorker := reminders.NewWorker(reminderStore, bookingRepo, profiles, convStore,
		gateway, eventLog, cfg.ReminderBatchSize, logger)

	engine := conversation.NewEngine(conversation.EngineConfig{
		Store:       convStore,
		Bookings:    bookingRepo,
		Tracker:     tracker,
		Reminders:   reminderStore,
		Profiles:    profiles,
		Numbers:     numbers,
		Events:      eventLog,
		SlotCount:   cfg.SlotCount,
		HorizonDays: cfg.SlotHorizonDays,
		Logger:      logger,
	})

	webhookCfg := handlers.SMSWebhookConfig{
		Engine:    engine,
		Processed: processed,
		Gateway:   gateway,
		Events:    eventLog,
		Logger:    logger,
		Metrics:   metrics,
	}
	if cfg.TelnyxWebhookSecret != "" {
		webhookCfg.Verifier = messaging.NewWebhookVerifier(cfg.TelnyxWebhookSecret)
	} else {
		logger.Warn("webhook signature verification disabled: TELNYX_WEBHOOK_SECRET not set")
	}
	webhooks := handlers.NewSMSWebhookHandler(webhookCfg)
	staff := handlers.NewStaffHandler(tracker, sweepWorker, metrics, logger)

	r := router.New(&router.Config{
		Logger:          logger,
		SMSWebhooks:     webhooks,
		Staff:           staff,
		StaffAuthSecret: cfg.StaffAPIToken,
		MetricsHandler:  promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
