package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/slotwise/booking-engine/internal/events"
	"github.com/slotwise/booking-engine/internal/schedule"
)

var (
	ErrServiceNotFound     = errors.New("service not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrSlotConflict means the requested interval is not bookable at
	// commit time. Routine, caller picks another slot.
	ErrSlotConflict = errors.New("slot is no longer available")
	// ErrStaleStatus means a concurrent edit changed the appointment
	// status between read and write.
	ErrStaleStatus = errors.New("appointment status changed concurrently")
)

// ValidationError rejects a booking request before any write. Fully
// recoverable by resubmitting corrected data.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid booking request: " + e.Field + " " + e.Reason
}

// Repository contains all schedule-store interactions needed by the
// booking service.
type Repository interface {
	GetService(ctx context.Context, id uuid.UUID) (*Offering, error)
	ListServices(ctx context.Context, activeOnly bool) ([]Offering, error)

	// LoadSchedule returns the calendar constraints as an immutable
	// snapshot. Hours is nil when no working hours are configured.
	LoadSchedule(ctx context.Context) (*schedule.Snapshot, error)

	// BusyIntervals returns the time ranges of appointments in the
	// occupies-a-slot status set intersecting [from, to).
	BusyIntervals(ctx context.Context, from, to time.Time) ([]schedule.Interval, error)

	// CreateIfFree re-checks the overlap inside the same transaction
	// that inserts the appointment. Returns ErrSlotConflict when an
	// occupying appointment intersects the range at commit time.
	CreateIfFree(ctx context.Context, a *Appointment) error

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByRange(ctx context.Context, from, to time.Time) ([]Appointment, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Appointment, error)
	ListByEmail(ctx context.Context, email string) ([]Appointment, error)

	// UpdateStatus is a compare-and-set: it only applies when the stored
	// status still equals from, returning ErrStaleStatus otherwise.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// UpdateTip refuses to touch a completed appointment, whose tip is
	// already baked into total-spent. Returns ErrStaleStatus when the
	// appointment completed between the caller's read and this write.
	UpdateTip(ctx context.Context, id uuid.UUID, tipCents int64) error
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	// Reminder surface for the scheduled trigger: confirmed appointments
	// starting within [from, to) that carry no reminder marker yet.
	FindDueReminders(ctx context.Context, from, to time.Time) ([]Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) error
	MarkConfirmationSent(ctx context.Context, id uuid.UUID) error

	// InsertEvent appends to the durable event log.
	InsertEvent(ctx context.Context, ev events.Event) error
}

// Locker serializes booking attempts that touch the same calendar days.
type Locker interface {
	WithRangeLock(ctx context.Context, start, end time.Time, fn func(ctx context.Context) error) error
}
