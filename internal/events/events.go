package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypeAppointmentCreated  = "appointment.created"
	TypeStatusChanged       = "appointment.status_changed"
	TypeAppointmentCanceled = "appointment.canceled"
	TypeAppointmentDeleted  = "appointment.deleted"
	TypeReminderDue         = "appointment.reminder_due"
	TypeReconcileFailed     = "directory.reconcile_failed"
)

// Event is the record handed to the notification collaborator on every
// appointment creation, status transition and cancellation. Emission
// failure never rolls back the triggering state change.
type Event struct {
	ID             uuid.UUID  `json:"id"`
	Type           string     `json:"type"`
	AppointmentID  *uuid.UUID `json:"appointment_id,omitempty"`
	ClientName     string     `json:"client_name,omitempty"`
	ClientEmail    string     `json:"client_email,omitempty"`
	Start          *time.Time `json:"appointment_start,omitempty"`
	PreviousStatus string     `json:"previous_status,omitempty"`
	NewStatus      string     `json:"new_status,omitempty"`
	Detail         string     `json:"detail,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// New fills in identity and timestamp for an outbound event.
func New(eventType string) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		CreatedAt: time.Now().UTC(),
	}
}

// Emitter delivers events to the notification collaborator.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
	Close() error
}

// NopEmitter drops every event. Used when no brokers are configured.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Event) error { return nil }
func (NopEmitter) Close() error                      { return nil }
