package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports liveness and the health of the engine's
// dependencies. Kafka is optional and only degrades readiness.
type HealthHandler struct {
	pgPool     *pgxpool.Pool
	redis      *redis.Client
	kafkaCheck func(context.Context) error
	env        string
	version    string
}

func NewHealthHandler(pgPool *pgxpool.Pool, rdb *redis.Client, kafkaCheck func(context.Context) error, env, version string) *HealthHandler {
	return &HealthHandler{
		pgPool:     pgPool,
		redis:      rdb,
		kafkaCheck: kafkaCheck,
		env:        env,
		version:    version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string)
	status := "ok"

	pgCtx, pgCancel := context.WithTimeout(ctx, time.Second)
	err := h.pgPool.Ping(pgCtx)
	pgCancel()
	if err != nil {
		deps["postgres"] = "down"
		status = "error"
	} else {
		deps["postgres"] = "ok"
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, time.Second)
	err = h.redis.Ping(redisCtx).Err()
	redisCancel()
	if err != nil {
		deps["redis"] = "down"
		// Without the locker no booking can be serialized.
		status = "error"
	} else {
		deps["redis"] = "ok"
	}

	if h.kafkaCheck != nil {
		kafkaCtx, kafkaCancel := context.WithTimeout(ctx, time.Second)
		err = h.kafkaCheck(kafkaCtx)
		kafkaCancel()
		if err != nil {
			deps["kafka"] = "down"
			if status == "ok" {
				status = "degraded"
			}
		} else {
			deps["kafka"] = "ok"
		}
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	})
}
