package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slotwise/booking-engine/internal/api"
	"github.com/slotwise/booking-engine/internal/booking"
	"github.com/slotwise/booking-engine/internal/config"
	"github.com/slotwise/booking-engine/internal/db"
	"github.com/slotwise/booking-engine/internal/directory"
	"github.com/slotwise/booking-engine/internal/events"
	redisclient "github.com/slotwise/booking-engine/internal/redis"
)

const version = "1.0.0"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "api-server")
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load error", "err", err)
		os.Exit(1)
	}
	logger.Info("starting up", "env", cfg.Env, "http_port", cfg.HTTPPort)

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
	logger.Info("connected to Redis")

	var emitter events.Emitter = events.NopEmitter{}
	var kafkaCheck func(context.Context) error
	if cfg.KafkaBrokers != "" {
		emitter = events.NewKafkaEmitter(cfg.KafkaBrokers, cfg.KafkaTopic)
		kafkaCheck = events.ReadyCheck(cfg.KafkaBrokers)
		logger.Info("kafka emission enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Warn("no kafka brokers configured, events go to the durable log only")
	}
	defer emitter.Close()

	dirRepo := directory.NewPgRepository(pgPool)
	dirSvc := directory.NewService(dirRepo, logger, directory.RetryPolicy{
		Attempts: cfg.ReconcileAttempts,
		Backoff:  cfg.ReconcileBackoff,
	})

	bookRepo := booking.NewPgRepository(pgPool, cfg.Location())
	locker := redisclient.NewRedisDayLocker(rdb, cfg.LockTTL)
	bookSvc := booking.NewService(bookRepo, locker, dirSvc, emitter, logger, cfg.ReminderWindow)

	router := api.NewRouter(api.RouterConfig{
		Booking:    bookSvc,
		Directory:  dirSvc,
		PgPool:     pgPool,
		Redis:      rdb,
		KafkaCheck: kafkaCheck,
		Logger:     logger,
		RateRPS:    cfg.RateRPS,
		RateBurst:  cfg.RateBurst,
		Env:        cfg.Env,
		Version:    version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server error", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	logger.Info("api-server stopped")
}
