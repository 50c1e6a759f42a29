package directory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client is a deduplicated directory record. At most one exists per
// canonical email.
type Client struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Email     string
	Phone     string

	TotalAppointments int
	CompletedCount    int
	NoShowCount       int
	TotalSpentCents   int64
	LastAppointmentAt *time.Time

	UserID *uuid.UUID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanonicalEmail is the dedup key form: trimmed and lower-cased.
func CanonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CounterDelta is the signed change to a client's aggregates produced
// by an appointment status transition or deletion.
type CounterDelta struct {
	Total      int
	Completed  int
	NoShows    int
	SpentCents int64

	// Set when the transition establishes a new last-appointment time.
	LastVisit *time.Time
}

func (d CounterDelta) IsZero() bool {
	return d.Total == 0 && d.Completed == 0 && d.NoShows == 0 && d.SpentCents == 0 && d.LastVisit == nil
}

// Invert returns the delta that cancels d. LastVisit is not inverted;
// stale last-visit values are repaired by RecalculateStats.
func (d CounterDelta) Invert() CounterDelta {
	return CounterDelta{
		Total:      -d.Total,
		Completed:  -d.Completed,
		NoShows:    -d.NoShows,
		SpentCents: -d.SpentCents,
	}
}

// ReconcileInput is the appointment snapshot the reconciler consumes.
type ReconcileInput struct {
	AppointmentID uuid.UUID
	FirstName     string
	LastName      string
	Email         string
	Phone         string
}

// LinkResult reports the outcome of linking an account to its history.
type LinkResult struct {
	Client             *Client
	AppointmentsLinked int64
	// Appointments already linked to a different account, left untouched
	// and reported for manual review.
	AppointmentsSkipped int64
}
