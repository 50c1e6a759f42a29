package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slotwise/booking-engine/internal/config"
	"github.com/slotwise/booking-engine/internal/db"
)

// The simulator hammers the booking endpoint with many workers racing
// for a deliberately small set of future slots. A correct engine books
// each slot at most once; everyone else sees a conflict.

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	SlotCount    int
	DayOffset    int
	ServiceLimit int
	PostgresDSN  string
}

type slot struct {
	start time.Time
}

type DataPool struct {
	Services []uuid.UUID
	Slots    []slot
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Rejected  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case status == http.StatusTooManyRequests || status == http.StatusBadRequest:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[len(latencies)*50/100]
	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics OperationMetrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d slots=%d", cfg.Duration, cfg.Workers, cfg.SlotCount)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d services, %d contested slots", len(dataPool.Services), len(dataPool.Slots))

	gofakeit.Seed(time.Now().UnixNano())

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	return SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		SlotCount:    getInt("SIM_SLOT_COUNT", 16),
		DayOffset:    getInt("SIM_DAY_OFFSET", 7),
		ServiceLimit: getInt("SIM_SERVICE_LIMIT", 8),
		PostgresDSN:  baseCfg.PostgresDSN,
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.SlotCount <= 0 {
		return fmt.Errorf("SIM_SLOT_COUNT must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id FROM services WHERE active LIMIT $1
	`, cfg.ServiceLimit)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Services = append(dataPool.Services, id)
	}
	if len(dataPool.Services) == 0 {
		return nil, fmt.Errorf("no active services loaded, run cmd/seed first")
	}

	// Contested slots: half-hour starts on one future day, so many
	// workers fight over each of them.
	day := time.Now().UTC().AddDate(0, 0, cfg.DayOffset).Truncate(24 * time.Hour)
	for i := 0; i < cfg.SlotCount; i++ {
		dataPool.Slots = append(dataPool.Slots, slot{
			start: day.Add(9*time.Hour + time.Duration(i)*30*time.Minute),
		})
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx)
		}()
	}
	wg.Wait()
}

func (s *Simulator) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.attemptBooking(ctx)
	}
}

func (s *Simulator) attemptBooking(ctx context.Context) {
	serviceID := s.pool.Services[rand.Intn(len(s.pool.Services))]
	target := s.pool.Slots[rand.Intn(len(s.pool.Slots))]
	now := time.Now().UTC()

	body, err := json.Marshal(map[string]any{
		"service_id":             serviceID.String(),
		"start":                  target.start.Format(time.RFC3339),
		"first_name":             gofakeit.FirstName(),
		"last_name":              gofakeit.LastName(),
		"email":                  gofakeit.Email(),
		"phone":                  gofakeit.Phone(),
		"terms_acknowledged":     true,
		"terms_acknowledged_at":  now.Format(time.RFC3339),
		"policy_acknowledged":    true,
		"policy_acknowledged_at": now.Format(time.RFC3339),
		"policy_version":         "sim",
	})
	if err != nil {
		log.Printf("marshal booking: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			s.metrics.Record(latency, 0)
		}
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	s.metrics.Record(latency, resp.StatusCode)
}

func (s *Simulator) PrintReport() {
	m := &s.metrics
	avg, min, max, p50, p95 := m.Stats()

	fmt.Println()
	fmt.Println("=== booking race report ===")
	fmt.Printf("total requests:   %d\n", m.Total)
	fmt.Printf("booked:           %d\n", m.Success)
	fmt.Printf("slot conflicts:   %d\n", m.Conflict)
	fmt.Printf("rejected:         %d\n", m.Rejected)
	fmt.Printf("errors:           %d\n", m.Error)
	fmt.Printf("latency avg=%s min=%s max=%s p50=%s p95=%s\n", avg, min, max, p50, p95)

	if int(m.Success) > s.config.SlotCount {
		fmt.Printf("DOUBLE BOOKING SUSPECTED: %d slots, %d bookings succeeded\n", s.config.SlotCount, m.Success)
	} else {
		fmt.Println("no slot was booked more than once")
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
