package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slotwise/booking-engine/internal/directory"
	"github.com/slotwise/booking-engine/internal/events"
	"github.com/slotwise/booking-engine/internal/schedule"
)

type PgRepository struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

func NewPgRepository(pool *pgxpool.Pool, loc *time.Location) *PgRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &PgRepository{pool: pool, loc: loc}
}

const appointmentColumns = `id, service_id, service_name,
	first_name, last_name, email, phone,
	start_time, end_time, status,
	disclosures, terms_acked, terms_acked_at, policy_acked, policy_acked_at, policy_version,
	deposit_cents, tip_cents, user_id,
	confirmation_sent_at, reminder_sent_at, reconciled_at,
	created_at, updated_at`

// occupyingStatuses is the SQL form of the occupies-a-slot status set.
const occupyingStatuses = `('confirmed', 'arrived')`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.ServiceID,
		&a.ServiceName,
		&a.FirstName,
		&a.LastName,
		&a.Email,
		&a.Phone,
		&a.Start,
		&a.End,
		&a.Status,
		&a.Compliance.Disclosures,
		&a.Compliance.TermsAcknowledged,
		&a.Compliance.TermsAckAt,
		&a.Compliance.PolicyAcknowledged,
		&a.Compliance.PolicyAckAt,
		&a.Compliance.PolicyVersion,
		&a.DepositCents,
		&a.TipCents,
		&a.UserID,
		&a.ConfirmationSentAt,
		&a.ReminderSentAt,
		&a.ReconciledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanService(row pgx.Row) (*Offering, error) {
	var s Offering
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.DurationMin,
		&s.BufferMin,
		&s.PriceCents,
		&s.DepositCents,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *PgRepository) GetService(ctx context.Context, id uuid.UUID) (*Offering, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, duration_min, buffer_min, price_cents, deposit_cents, active, created_at, updated_at
		FROM services
		WHERE id = $1
	`, id)
	return scanService(row)
}

func (r *PgRepository) ListServices(ctx context.Context, activeOnly bool) ([]Offering, error) {
	q := `
		SELECT id, name, duration_min, buffer_min, price_cents, deposit_cents, active, created_at, updated_at
		FROM services`
	if activeOnly {
		q += `
		WHERE active`
	}
	q += `
		ORDER BY name`

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Offering
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *PgRepository) LoadSchedule(ctx context.Context) (*schedule.Snapshot, error) {
	snap := &schedule.Snapshot{Location: r.loc}

	rows, err := r.pool.Query(ctx, `
		SELECT weekday, name, open_minute, close_minute
		FROM working_hours
		ORDER BY weekday, open_minute
	`)
	if err != nil {
		return nil, fmt.Errorf("load working hours: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var weekday int
		var w schedule.Window
		if err := rows.Scan(&weekday, &w.Name, &w.OpenMinute, &w.CloseMinute); err != nil {
			return nil, err
		}
		if snap.Hours == nil {
			snap.Hours = schedule.WeekHours{}
		}
		day := time.Weekday(weekday)
		snap.Hours[day] = append(snap.Hours[day], w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	offRows, err := r.pool.Query(ctx, `
		SELECT id, reason, start_time, end_time, weekly
		FROM time_off
		ORDER BY start_time
	`)
	if err != nil {
		return nil, fmt.Errorf("load time off: %w", err)
	}
	defer offRows.Close()

	for offRows.Next() {
		var t schedule.TimeOff
		if err := offRows.Scan(&t.ID, &t.Reason, &t.Start, &t.End, &t.Weekly); err != nil {
			return nil, err
		}
		snap.TimeOff = append(snap.TimeOff, t)
	}
	return snap, offRows.Err()
}

func (r *PgRepository) BusyIntervals(ctx context.Context, from, to time.Time) ([]schedule.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE status IN `+occupyingStatuses+`
		  AND start_time < $2
		  AND end_time > $1
		ORDER BY start_time
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var busy []schedule.Interval
	for rows.Next() {
		var iv schedule.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		busy = append(busy, iv)
	}
	return busy, rows.Err()
}

// CreateIfFree performs the final overlap check and the insert inside
// one transaction, so no check-then-act window exists between "slot
// looks free" and "appointment persisted".
func (r *PgRepository) CreateIfFree(ctx context.Context, a *Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin booking: %w", err)
	}
	defer tx.Rollback(ctx)

	var taken bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM appointments
			WHERE status IN `+occupyingStatuses+`
			  AND start_time < $2
			  AND end_time > $1
		)
	`, a.Start, a.End).Scan(&taken)
	if err != nil {
		return fmt.Errorf("final overlap check: %w", err)
	}
	if taken {
		return ErrSlotConflict
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (
			id, service_id, service_name,
			first_name, last_name, email, phone,
			start_time, end_time, status,
			disclosures, terms_acked, terms_acked_at, policy_acked, policy_acked_at, policy_version,
			deposit_cents, tip_cents,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, now(), now())
		RETURNING `+appointmentColumns+`
	`,
		a.ID, a.ServiceID, a.ServiceName,
		a.FirstName, a.LastName, a.Email, a.Phone,
		a.Start, a.End, a.Status,
		a.Compliance.Disclosures, a.Compliance.TermsAcknowledged, a.Compliance.TermsAckAt,
		a.Compliance.PolicyAcknowledged, a.Compliance.PolicyAckAt, a.Compliance.PolicyVersion,
		a.DepositCents, a.TipCents,
	)

	created, err := scanAppointment(row)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit booking: %w", err)
	}

	*a = *created
	return nil
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListByRange(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_time < $2 AND end_time > $1
		ORDER BY start_time
	`, from, to)
}

func (r *PgRepository) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1
		ORDER BY start_time
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
}

func (r *PgRepository) ListByEmail(ctx context.Context, email string) ([]Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE lower(btrim(email)) = $1
		ORDER BY start_time
	`, directory.CanonicalEmail(email))
}

func (r *PgRepository) list(ctx context.Context, q string, args ...any) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		// Distinguish a vanished row from a lost compare-and-set.
		if _, getErr := r.GetAppointment(ctx, id); getErr == nil {
			return nil, ErrStaleStatus
		}
		return nil, ErrAppointmentNotFound
	}
	return a, err
}

func (r *PgRepository) UpdateTip(ctx context.Context, id uuid.UUID, tipCents int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET tip_cents = $2,
		    updated_at = now()
		WHERE id = $1 AND status <> 'completed'
	`, id, tipCents)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Row missing, or it completed since the caller's read.
		if _, getErr := r.GetAppointment(ctx, id); getErr != nil {
			return getErr
		}
		return ErrStaleStatus
	}
	return nil
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) FindDueReminders(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
		  AND reminder_sent_at IS NULL
		  AND start_time >= $1
		  AND start_time < $2
		ORDER BY start_time
	`, from, to)
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	return r.setMarker(ctx, id, "reminder_sent_at")
}

func (r *PgRepository) MarkConfirmationSent(ctx context.Context, id uuid.UUID) error {
	return r.setMarker(ctx, id, "confirmation_sent_at")
}

func (r *PgRepository) setMarker(ctx context.Context, id uuid.UUID, column string) error {
	// Markers are idempotency guards: setting one that is already set is
	// a no-op, not an error.
	_, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET `+column+` = now(),
		    updated_at = now()
		WHERE id = $1
		  AND `+column+` IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev events.Event) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (id, event_type, appointment_id, client_email, appointment_start, previous_status, new_status, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ev.ID, ev.Type, ev.AppointmentID, ev.ClientEmail, ev.Start, ev.PreviousStatus, ev.NewStatus, ev.Detail, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}
