package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slotwise/booking-engine/internal/booking"
	"github.com/slotwise/booking-engine/internal/db"
	"github.com/slotwise/booking-engine/internal/directory"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := ensureSchema(context.Background(), pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	serviceIDs, err := seedServices(context.Background(), pool)
	if err != nil {
		log.Fatalf("seed services: %v", err)
	}
	if err := seedWorkingHours(context.Background(), pool); err != nil {
		log.Fatalf("seed working hours: %v", err)
	}
	if err := seedHistory(context.Background(), pool, serviceIDs, 2000); err != nil {
		log.Fatalf("seed appointment history: %v", err)
	}

	log.Println("seed complete")
}

// ensureSchema creates the tables when absent. The unique index on
// clients.email is load-bearing: it is what makes concurrent reconciles
// for a new email converge on one record.
func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	log.Println("ensuring schema")

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS services (
			id            uuid PRIMARY KEY,
			name          text NOT NULL,
			duration_min  int NOT NULL,
			buffer_min    int NOT NULL DEFAULT 0,
			price_cents   bigint NOT NULL DEFAULT 0,
			deposit_cents bigint NOT NULL DEFAULT 0,
			active        boolean NOT NULL DEFAULT true,
			created_at    timestamptz NOT NULL DEFAULT now(),
			updated_at    timestamptz NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS working_hours (
			weekday      int NOT NULL,
			name         text NOT NULL,
			open_minute  int NOT NULL,
			close_minute int NOT NULL
		);

		CREATE TABLE IF NOT EXISTS time_off (
			id         uuid PRIMARY KEY,
			reason     text NOT NULL DEFAULT '',
			start_time timestamptz NOT NULL,
			end_time   timestamptz NOT NULL,
			weekly     boolean NOT NULL DEFAULT false
		);

		CREATE TABLE IF NOT EXISTS appointments (
			id                   uuid PRIMARY KEY,
			service_id           uuid NOT NULL REFERENCES services(id),
			service_name         text NOT NULL,
			first_name           text NOT NULL,
			last_name            text NOT NULL DEFAULT '',
			email                text NOT NULL,
			phone                text NOT NULL DEFAULT '',
			start_time           timestamptz NOT NULL,
			end_time             timestamptz NOT NULL,
			status               text NOT NULL,
			disclosures          jsonb NOT NULL DEFAULT '{}',
			terms_acked          boolean NOT NULL,
			terms_acked_at       timestamptz NOT NULL,
			policy_acked         boolean NOT NULL,
			policy_acked_at      timestamptz NOT NULL,
			policy_version       text NOT NULL DEFAULT '',
			deposit_cents        bigint NOT NULL DEFAULT 0,
			tip_cents            bigint NOT NULL DEFAULT 0,
			user_id              uuid,
			confirmation_sent_at timestamptz,
			reminder_sent_at     timestamptz,
			reconciled_at        timestamptz,
			created_at           timestamptz NOT NULL DEFAULT now(),
			updated_at           timestamptz NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS appointments_occupied_idx
			ON appointments (start_time, end_time)
			WHERE status IN ('confirmed', 'arrived');
		CREATE INDEX IF NOT EXISTS appointments_email_idx
			ON appointments (lower(btrim(email)));

		CREATE TABLE IF NOT EXISTS clients (
			id                  uuid PRIMARY KEY,
			first_name          text NOT NULL DEFAULT '',
			last_name           text NOT NULL DEFAULT '',
			email               text NOT NULL,
			phone               text NOT NULL DEFAULT '',
			total_appointments  int NOT NULL DEFAULT 0,
			completed_count     int NOT NULL DEFAULT 0,
			no_show_count       int NOT NULL DEFAULT 0,
			total_spent_cents   bigint NOT NULL DEFAULT 0,
			last_appointment_at timestamptz,
			user_id             uuid,
			created_at          timestamptz NOT NULL DEFAULT now(),
			updated_at          timestamptz NOT NULL DEFAULT now()
		);

		CREATE UNIQUE INDEX IF NOT EXISTS clients_email_key ON clients (email);

		CREATE TABLE IF NOT EXISTS event_logs (
			id                uuid PRIMARY KEY,
			event_type        text NOT NULL,
			appointment_id    uuid,
			client_email      text NOT NULL DEFAULT '',
			appointment_start timestamptz,
			previous_status   text NOT NULL DEFAULT '',
			new_status        text NOT NULL DEFAULT '',
			detail            text NOT NULL DEFAULT '',
			created_at        timestamptz NOT NULL DEFAULT now()
		);
	`)
	return err
}

type seedService struct {
	name        string
	durationMin int
	bufferMin   int
	priceCents  int64
	deposit     int64
}

func seedServices(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	catalog := []seedService{
		{"Consultation", 30, 0, 0, 0},
		{"Classic Facial", 60, 15, 9500, 2500},
		{"Deep Tissue Massage", 60, 15, 11000, 3000},
		{"Hot Stone Massage", 90, 15, 14500, 3000},
		{"Manicure", 45, 10, 4500, 1000},
		{"Pedicure", 60, 10, 5500, 1000},
		{"Full Highlights", 120, 20, 18500, 5000},
		{"Cut and Blow Dry", 60, 10, 7500, 2000},
	}

	log.Printf("seeding %d services", len(catalog))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(catalog))
	for _, s := range catalog {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, name, duration_min, buffer_min, price_cents, deposit_cents, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, true, now(), now())
		`, id, s.name, s.durationMin, s.bufferMin, s.priceCents, s.deposit)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("services seeded")
	return ids, nil
}

func seedWorkingHours(ctx context.Context, pool *pgxpool.Pool) error {
	log.Println("seeding working hours")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Tuesday to Saturday, 09:00-13:00 and 14:00-18:00.
	for weekday := int(time.Tuesday); weekday <= int(time.Saturday); weekday++ {
		for _, w := range []struct {
			name        string
			open, close int
		}{
			{"morning", 9 * 60, 13 * 60},
			{"afternoon", 14 * 60, 18 * 60},
		} {
			_, err := tx.Exec(ctx, `
				INSERT INTO working_hours (weekday, name, open_minute, close_minute)
				VALUES ($1, $2, $3, $4)
			`, weekday, w.name, w.open, w.close)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("working hours seeded")
	return nil
}

// seedHistory writes past appointments with a realistic status mix and
// the matching client directory rows, so counters line up from day one.
func seedHistory(ctx context.Context, pool *pgxpool.Pool, serviceIDs []uuid.UUID, count int) error {
	log.Printf("seeding %d historical appointments", count)

	const batchSize = 250
	statuses := []booking.Status{
		booking.StatusCompleted, booking.StatusCompleted, booking.StatusCompleted,
		booking.StatusCompleted, booking.StatusNoShow, booking.StatusCanceled,
	}

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			serviceID := serviceIDs[gofakeit.Number(0, len(serviceIDs)-1)]
			status := statuses[gofakeit.Number(0, len(statuses)-1)]

			first := gofakeit.FirstName()
			last := gofakeit.LastName()
			email := directory.CanonicalEmail(gofakeit.Email())
			phone := gofakeit.Phone()

			daysAgo := gofakeit.Number(1, 180)
			hour := gofakeit.Number(9, 17)
			start := time.Now().UTC().AddDate(0, 0, -daysAgo).Truncate(time.Hour).Add(time.Duration(hour) * time.Hour)
			finish := start.Add(time.Duration(gofakeit.Number(30, 90)) * time.Minute)

			deposit := int64(gofakeit.Number(0, 50)) * 100
			tip := int64(0)
			if status == booking.StatusCompleted {
				tip = int64(gofakeit.Number(0, 30)) * 100
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (
					id, service_id, service_name, first_name, last_name, email, phone,
					start_time, end_time, status,
					disclosures, terms_acked, terms_acked_at, policy_acked, policy_acked_at, policy_version,
					deposit_cents, tip_cents, reconciled_at, created_at, updated_at
				)
				VALUES ($1, $2, 'seeded', $3, $4, $5, $6, $7, $8, $9,
				        '{}', true, $7, true, $7, 'seed', $10, $11, now(), now(), now())
			`, uuid.New(), serviceID, first, last, email, phone, start, finish, status, deposit, tip)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("appointments seeded: %d/%d", end, count)
	}

	// Build the directory from the history the same way a repair pass
	// would, instead of trusting incremental counters.
	_, err := pool.Exec(ctx, `
		INSERT INTO clients (
			id, first_name, last_name, email, phone,
			total_appointments, completed_count, no_show_count, total_spent_cents,
			last_appointment_at, created_at, updated_at
		)
		SELECT gen_random_uuid(),
		       min(first_name), min(last_name), lower(btrim(email)), min(phone),
		       count(*),
		       count(*) FILTER (WHERE status = 'completed'),
		       count(*) FILTER (WHERE status = 'noShow'),
		       COALESCE(sum(deposit_cents + tip_cents) FILTER (WHERE status = 'completed'), 0),
		       max(start_time) FILTER (WHERE status = 'completed'),
		       now(), now()
		FROM appointments
		GROUP BY lower(btrim(email))
		ON CONFLICT (email) DO NOTHING
	`)
	if err != nil {
		return err
	}

	log.Println("appointment history seeded")
	return nil
}
