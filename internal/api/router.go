package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/slotwise/booking-engine/internal/booking"
	"github.com/slotwise/booking-engine/internal/directory"
)

type RouterConfig struct {
	Booking    *booking.Service
	Directory  *directory.Service
	PgPool     *pgxpool.Pool
	Redis      *redis.Client
	KafkaCheck func(context.Context) error
	Logger     *slog.Logger
	RateRPS    float64
	RateBurst  int
	Env        string
	Version    string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.KafkaCheck, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/services", listServicesHandler(cfg.Booking))
	r.Get("/availability", availabilityHandler(cfg.Booking))

	// Booking submissions come from untrusted clients; throttle them.
	limiter := NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
	r.With(limiter.Middleware).Post("/appointments", createAppointmentHandler(cfg.Booking))

	r.Get("/appointments", listAppointmentsHandler(cfg.Booking))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Booking))
	r.Post("/appointments/{id}/status", transitionHandler(cfg.Booking))
	r.Delete("/appointments/{id}", deleteAppointmentHandler(cfg.Booking))

	r.Get("/clients", listClientsHandler(cfg.Directory))
	r.Get("/clients/{email}", getClientHandler(cfg.Directory))
	r.Post("/clients/{email}/recalculate", recalculateHandler(cfg.Directory))

	r.Post("/account-links", linkAccountHandler(cfg.Directory))

	return r
}
