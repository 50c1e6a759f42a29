package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/slotwise/booking-engine/internal/booking"
	"github.com/slotwise/booking-engine/internal/directory"
)

type CreateAppointmentRequest struct {
	ServiceID string    `json:"service_id"`
	Start     time.Time `json:"start"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`

	Disclosures        map[string]string `json:"disclosures,omitempty"`
	TermsAcknowledged  bool              `json:"terms_acknowledged"`
	TermsAckAt         time.Time         `json:"terms_acknowledged_at"`
	PolicyAcknowledged bool              `json:"policy_acknowledged"`
	PolicyAckAt        time.Time         `json:"policy_acknowledged_at"`
	PolicyVersion      string            `json:"policy_version"`
}

type TransitionRequest struct {
	Status   string `json:"status"`
	TipCents *int64 `json:"tip_cents,omitempty"`
}

type LinkAccountRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type AppointmentResponse struct {
	ID           uuid.UUID  `json:"id"`
	ServiceID    uuid.UUID  `json:"service_id"`
	ServiceName  string     `json:"service_name"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	Start        time.Time  `json:"start"`
	End          time.Time  `json:"end"`
	Status       string     `json:"status"`
	DepositCents int64      `json:"deposit_cents"`
	TipCents     int64      `json:"tip_cents"`
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		ServiceID:    a.ServiceID,
		ServiceName:  a.ServiceName,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Email:        a.Email,
		Phone:        a.Phone,
		Start:        a.Start,
		End:          a.End,
		Status:       string(a.Status),
		DepositCents: a.DepositCents,
		TipCents:     a.TipCents,
		UserID:       a.UserID,
		CreatedAt:    a.CreatedAt,
	}
}

type ServiceResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	DurationMin  int       `json:"duration_min"`
	BufferMin    int       `json:"buffer_min"`
	PriceCents   int64     `json:"price_cents"`
	DepositCents int64     `json:"deposit_cents"`
	Active       bool      `json:"active"`
}

type ClientResponse struct {
	ID                uuid.UUID  `json:"id"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	Email             string     `json:"email"`
	Phone             string     `json:"phone"`
	TotalAppointments int        `json:"total_appointments"`
	CompletedCount    int        `json:"completed_count"`
	NoShowCount       int        `json:"no_show_count"`
	TotalSpentCents   int64      `json:"total_spent_cents"`
	LastAppointmentAt *time.Time `json:"last_appointment_at,omitempty"`
	UserID            *uuid.UUID `json:"user_id,omitempty"`
}

func toClientResponse(c *directory.Client) ClientResponse {
	return ClientResponse{
		ID:                c.ID,
		FirstName:         c.FirstName,
		LastName:          c.LastName,
		Email:             c.Email,
		Phone:             c.Phone,
		TotalAppointments: c.TotalAppointments,
		CompletedCount:    c.CompletedCount,
		NoShowCount:       c.NoShowCount,
		TotalSpentCents:   c.TotalSpentCents,
		LastAppointmentAt: c.LastAppointmentAt,
		UserID:            c.UserID,
	}
}

type AvailabilityResponse struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Bookable bool      `json:"bookable"`
}

type LinkAccountResponse struct {
	Client              ClientResponse `json:"client"`
	AppointmentsLinked  int64          `json:"appointments_linked"`
	AppointmentsSkipped int64          `json:"appointments_skipped"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
