package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slotwise/booking-engine/internal/booking"
	"github.com/slotwise/booking-engine/internal/config"
	"github.com/slotwise/booking-engine/internal/db"
	"github.com/slotwise/booking-engine/internal/directory"
	"github.com/slotwise/booking-engine/internal/events"
	redisclient "github.com/slotwise/booking-engine/internal/redis"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "reminder-worker")
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load error", "err", err)
		os.Exit(1)
	}
	logger.Info("starting up", "env", cfg.Env, "interval", cfg.ReminderInterval.String(), "window", cfg.ReminderWindow.String())

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "err", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Error("redis connection error", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", "err", err)
		}
	}()

	var emitter events.Emitter = events.NopEmitter{}
	if cfg.KafkaBrokers != "" {
		emitter = events.NewKafkaEmitter(cfg.KafkaBrokers, cfg.KafkaTopic)
	} else {
		logger.Warn("no kafka brokers configured, reminder events go to the durable log only")
	}
	defer emitter.Close()

	dirRepo := directory.NewPgRepository(pgPool)
	dirSvc := directory.NewService(dirRepo, logger, directory.RetryPolicy{
		Attempts: cfg.ReconcileAttempts,
		Backoff:  cfg.ReconcileBackoff,
	})

	repo := booking.NewPgRepository(pgPool, cfg.Location())
	locker := redisclient.NewRedisDayLocker(rdb, cfg.LockTTL)
	svc := booking.NewService(repo, locker, dirSvc, emitter, logger, cfg.ReminderWindow)

	// Run once at startup
	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.ReminderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, logger *slog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	sent, err := svc.DispatchReminders(runCtx)
	if err != nil {
		logger.Error("reminder run error", "err", err)
		return
	}
	logger.Info("reminder run complete", "sent", sent, "duration", time.Since(start).String())
}
