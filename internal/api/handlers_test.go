package api

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/slotwise/booking-engine/internal/booking"
	"github.com/slotwise/booking-engine/internal/directory"
	redisclient "github.com/slotwise/booking-engine/internal/redis"
)

func TestHandleBookingError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", &booking.ValidationError{Field: "email", Reason: "is required"}, 400, "validation_error"},
		{"service missing", booking.ErrServiceNotFound, 404, "service_not_found"},
		{"appointment missing", booking.ErrAppointmentNotFound, 404, "appointment_not_found"},
		{"slot conflict", booking.ErrSlotConflict, 409, "slot_conflict"},
		{"lock contention", redisclient.ErrLockNotAcquired, 409, "slot_being_booked"},
		{"wrapped lock contention", errors.Join(errors.New("book"), redisclient.ErrLockNotAcquired), 409, "slot_being_booked"},
		{"stale status", booking.ErrStaleStatus, 409, "stale_status"},
		{"unknown", errors.New("pool exhausted"), 500, "internal_error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		handleBookingError(rec, tc.err)
		if rec.Code != tc.wantStatus {
			t.Fatalf("%s: status = %d, want %d", tc.name, rec.Code, tc.wantStatus)
		}
		var body ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("%s: decode body: %v", tc.name, err)
		}
		if body.Error != tc.wantCode {
			t.Fatalf("%s: code = %q, want %q", tc.name, body.Error, tc.wantCode)
		}
	}
}

func TestHandleDirectoryError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"missing client", directory.ErrClientNotFound, 404, "client_not_found"},
		{"linking conflict", directory.ErrLinkingConflict, 409, "linking_conflict"},
		{"unknown", errors.New("pool exhausted"), 500, "internal_error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		handleDirectoryError(rec, tc.err)
		if rec.Code != tc.wantStatus {
			t.Fatalf("%s: status = %d, want %d", tc.name, rec.Code, tc.wantStatus)
		}
		var body ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("%s: decode body: %v", tc.name, err)
		}
		if body.Error != tc.wantCode {
			t.Fatalf("%s: code = %q, want %q", tc.name, body.Error, tc.wantCode)
		}
	}
}
