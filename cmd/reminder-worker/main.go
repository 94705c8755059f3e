package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/booklinehq/bookline-platform/internal/app/bootstrap"
	"github.com/booklinehq/bookline-platform/internal/bookings"
	"github.com/booklinehq/bookline-platform/internal/business"
	appconfig "github.com/booklinehq/bookline-platform/internal/config"
	"github.com/booklinehq/bookline-platform/internal/conversation"
	"github.com/booklinehq/bookline-platform/internal/events"
	observemetrics "github.com/booklinehq/bookline-platform/internal/observability/metrics"
	"github.com/booklinehq/bookline-platform/internal/reminders"
	"github.com/booklinehq/bookline-platform/internal/reschedule"
	"github.com/booklinehq/bookline-platform/internal/worker/sweeper"
	"github.com/booklinehq/bookline-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting bookline reminder worker",
		"env", cfg.Env,
		"sweep_every", cfg.ReminderSweepEvery,
		"escalation_every", cfg.EscalationEvery,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
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

	sqlDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open sql connection", "error", err)
		os.Exit(1)
	}
	defer func() { _ = sqlDB.Close() }()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	var profiles reminders.ProfileSource = business.DefaultSource{}
	if store := bootstrap.BuildProfileStore(redisClient); store != nil {
		profiles = store
	}
	gateway, providerName := bootstrap.BuildGateway(cfg, logger)
	if gateway == nil {
		logger.Error("reminder worker requires an sms gateway")
		os.Exit(1)
	}
	logger.Info("sms gateway ready", "provider", providerName)

	metrics := observemetrics.NewPlatformMetrics(nil)
	eventLog := events.NewAutomationLog(pool, logger)
	convStore := conversation.NewStore(pool)
	bookingRepo := bookings.NewRepository(pool)
	reminderStore := reminders.NewStore(pool)
	numbers := business.NewNumberDirectory(pool)
	tracker := reschedule.NewTracker(sqlDB, logger)

	sweepWorker := reminders.NewWorker(reminderStore, bookingRepo, profiles, convStore,
		gateway, eventLog, cfg.ReminderBatchSize, logger)

	reminderLoop := sweeper.NewReminderLoop(sweepWorker, numbers, eventLog, metrics, logger).
		WithInterval(cfg.ReminderSweepEvery)
	escalationLoop := sweeper.NewEscalationLoop(tracker, numbers, metrics, logger).
		WithInterval(cfg.EscalationEvery)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		reminderLoop.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		escalationLoop.Run(ctx)
	}()

	<-ctx.Done()
	logger.Info("shutting down reminder worker...")
	wg.Wait()
	logger.Info("reminder worker stopped")
}
