package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusArrived   Status = "arrived"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "noShow"
	StatusCanceled  Status = "canceled"
)

// ValidStatus reports whether s is a known appointment status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusConfirmed, StatusArrived, StatusCompleted, StatusNoShow, StatusCanceled:
		return true
	}
	return false
}

// OccupiesSlot reports whether an appointment in this status blocks its
// time range from being rebooked. Canceled and no-show appointments
// release the slot; completed appointments are historical and are never
// re-checked for overlap.
func (s Status) OccupiesSlot() bool {
	return s == StatusConfirmed || s == StatusArrived
}

// Offering is a bookable service from the catalog. Its duration, price
// and deposit are copied into the appointment at booking time so later
// edits never alter historical records.
type Offering struct {
	ID           uuid.UUID
	Name         string
	DurationMin  int
	BufferMin    int
	PriceCents   int64
	DepositCents int64
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Compliance is the disclosure snapshot captured at submission time.
// It is never re-derived from later policy text.
type Compliance struct {
	Disclosures        map[string]string
	TermsAcknowledged  bool
	TermsAckAt         time.Time
	PolicyAcknowledged bool
	PolicyAckAt        time.Time
	PolicyVersion      string
}

type Appointment struct {
	ID uuid.UUID

	ServiceID   uuid.UUID
	ServiceName string

	// Denormalized contact fields: the booking flow may run before any
	// client record exists.
	FirstName string
	LastName  string
	Email     string
	Phone     string

	// End includes the service buffer.
	Start time.Time
	End   time.Time

	Status Status

	Compliance Compliance

	DepositCents int64
	TipCents     int64

	// Set at most once by the account linker, or never.
	UserID *uuid.UUID

	// Idempotency markers for outbound dispatch, not business state.
	ConfirmationSentAt *time.Time
	ReminderSentAt     *time.Time
	ReconciledAt       *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *Appointment) ClientName() string {
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// Request is a validated booking submission from the booking UI. Field
// formats are assumed already validated; the engine only enforces
// required-field presence.
type Request struct {
	ServiceID  uuid.UUID
	Start      time.Time
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Compliance Compliance
}
