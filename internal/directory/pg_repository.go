package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const clientColumns = `id, first_name, last_name, email, phone,
	total_appointments, completed_count, no_show_count, total_spent_cents,
	last_appointment_at, user_id, created_at, updated_at`

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	err := row.Scan(
		&c.ID,
		&c.FirstName,
		&c.LastName,
		&c.Email,
		&c.Phone,
		&c.TotalAppointments,
		&c.CompletedCount,
		&c.NoShowCount,
		&c.TotalSpentCents,
		&c.LastAppointmentAt,
		&c.UserID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *PgRepository) GetByEmail(ctx context.Context, email string) (*Client, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE email = $1
	`, CanonicalEmail(email))
	return scanClient(row)
}

func (r *PgRepository) List(ctx context.Context, limit, offset int) ([]Client, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		ORDER BY last_name, first_name, email
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

// ReconcileAppointment runs the create-or-update and the idempotency
// marker in one transaction. The unique index on clients.email makes
// concurrent reconciles for the same new email converge on a single
// row; ON CONFLICT turns the losing insert into the counter update.
// Contact fields are first-write-wins, counters last-write-wins.
func (r *PgRepository) ReconcileAppointment(ctx context.Context, in ReconcileInput) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin reconcile: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET reconciled_at = now(),
		    updated_at = now()
		WHERE id = $1
		  AND reconciled_at IS NULL
	`, in.AppointmentID)
	if err != nil {
		return false, fmt.Errorf("mark appointment reconciled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already reconciled; a retry must not double-count.
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO clients (
			id, first_name, last_name, email, phone,
			total_appointments, completed_count, no_show_count, total_spent_cents,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, 1, 0, 0, 0, now(), now())
		ON CONFLICT (email) DO UPDATE SET
			first_name = COALESCE(NULLIF(clients.first_name, ''), EXCLUDED.first_name),
			last_name  = COALESCE(NULLIF(clients.last_name, ''), EXCLUDED.last_name),
			phone      = COALESCE(NULLIF(clients.phone, ''), EXCLUDED.phone),
			total_appointments = clients.total_appointments + 1,
			updated_at = now()
	`, uuid.New(), in.FirstName, in.LastName, CanonicalEmail(in.Email), in.Phone)
	if err != nil {
		return false, fmt.Errorf("upsert client: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit reconcile: %w", err)
	}
	return true, nil
}

func (r *PgRepository) ApplyDelta(ctx context.Context, email string, d CounterDelta) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE clients
		SET total_appointments = total_appointments + $2,
		    completed_count = completed_count + $3,
		    no_show_count = no_show_count + $4,
		    total_spent_cents = total_spent_cents + $5,
		    last_appointment_at = COALESCE($6, last_appointment_at),
		    updated_at = now()
		WHERE email = $1
	`, CanonicalEmail(email), d.Total, d.Completed, d.NoShows, d.SpentCents, d.LastVisit)
	if err != nil {
		return fmt.Errorf("apply counter delta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}

func (r *PgRepository) RecalculateStats(ctx context.Context, email string) (*Client, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE clients c
		SET total_appointments = s.total,
		    completed_count = s.completed,
		    no_show_count = s.no_shows,
		    total_spent_cents = s.spent,
		    last_appointment_at = s.last_visit,
		    updated_at = now()
		FROM (
			SELECT count(*) AS total,
			       count(*) FILTER (WHERE status = 'completed') AS completed,
			       count(*) FILTER (WHERE status = 'noShow') AS no_shows,
			       COALESCE(sum(deposit_cents + tip_cents) FILTER (WHERE status = 'completed'), 0) AS spent,
			       max(start_time) FILTER (WHERE status = 'completed') AS last_visit
			FROM appointments
			WHERE lower(btrim(email)) = $1
		) s
		WHERE c.email = $1
		RETURNING `+prefixColumns("c")+`
	`, CanonicalEmail(email))
	return scanClient(row)
}

func (r *PgRepository) LinkClient(ctx context.Context, userID uuid.UUID, email string) (*Client, error) {
	// The guarded upsert never replaces an existing different linkage;
	// the returned row tells us whether the stamp took.
	row := r.pool.QueryRow(ctx, `
		INSERT INTO clients (
			id, first_name, last_name, email, phone,
			total_appointments, completed_count, no_show_count, total_spent_cents,
			user_id, created_at, updated_at
		)
		VALUES ($1, '', '', $2, '', 0, 0, 0, 0, $3, now(), now())
		ON CONFLICT (email) DO UPDATE SET
			user_id = COALESCE(clients.user_id, EXCLUDED.user_id),
			updated_at = now()
		RETURNING `+clientColumns+`
	`, uuid.New(), CanonicalEmail(email), userID)

	c, err := scanClient(row)
	if err != nil {
		return nil, fmt.Errorf("link client: %w", err)
	}
	if c.UserID == nil || *c.UserID != userID {
		return c, ErrLinkingConflict
	}
	return c, nil
}

func (r *PgRepository) LinkAppointments(ctx context.Context, userID uuid.UUID, email string) (int64, int64, error) {
	canonical := CanonicalEmail(email)

	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET user_id = $2,
		    updated_at = now()
		WHERE lower(btrim(email)) = $1
		  AND user_id IS NULL
	`, canonical, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("link appointments: %w", err)
	}

	var skipped int64
	err = r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE lower(btrim(email)) = $1
		  AND user_id IS NOT NULL
		  AND user_id <> $2
	`, canonical, userID).Scan(&skipped)
	if err != nil {
		return tag.RowsAffected(), 0, fmt.Errorf("count conflicting appointments: %w", err)
	}

	return tag.RowsAffected(), skipped, nil
}

func prefixColumns(alias string) string {
	return alias + ".id, " + alias + ".first_name, " + alias + ".last_name, " +
		alias + ".email, " + alias + ".phone, " +
		alias + ".total_appointments, " + alias + ".completed_count, " +
		alias + ".no_show_count, " + alias + ".total_spent_cents, " +
		alias + ".last_appointment_at, " + alias + ".user_id, " +
		alias + ".created_at, " + alias + ".updated_at"
}
