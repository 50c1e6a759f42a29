package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/slotwise/booking-engine/internal/booking"
	"github.com/slotwise/booking-engine/internal/directory"
	redisclient "github.com/slotwise/booking-engine/internal/redis"
)

func createAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		serviceID, err := uuid.Parse(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), booking.Request{
			ServiceID: serviceID,
			Start:     req.Start,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Phone:     req.Phone,
			Compliance: booking.Compliance{
				Disclosures:        req.Disclosures,
				TermsAcknowledged:  req.TermsAcknowledged,
				TermsAckAt:         req.TermsAckAt,
				PolicyAcknowledged: req.PolicyAcknowledged,
				PolicyAckAt:        req.PolicyAckAt,
				PolicyVersion:      req.PolicyVersion,
			},
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func availabilityHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, ok := parseTimeParam(w, r, "start")
		if !ok {
			return
		}
		end, ok := parseTimeParam(w, r, "end")
		if !ok {
			return
		}
		if !end.After(start) {
			writeError(w, http.StatusBadRequest, "invalid_range", "end must be after start")
			return
		}

		bookable, err := svc.IsBookable(r.Context(), start, end)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{Start: start, End: end, Bookable: bookable})
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var (
			appts []booking.Appointment
			err   error
		)
		switch {
		case q.Get("email") != "":
			appts, err = svc.ListByEmail(r.Context(), q.Get("email"))
		case q.Get("status") != "":
			limit, _ := strconv.Atoi(q.Get("limit"))
			offset, _ := strconv.Atoi(q.Get("offset"))
			appts, err = svc.ListByStatus(r.Context(), booking.Status(q.Get("status")), limit, offset)
		default:
			from, ok := parseTimeParam(w, r, "from")
			if !ok {
				return
			}
			to, ok := parseTimeParam(w, r, "to")
			if !ok {
				return
			}
			appts, err = svc.ListByRange(r.Context(), from, to)
		}
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func transitionHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req TransitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Transition(r.Context(), id, booking.Status(req.Status), req.TipCents)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func deleteAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.DeleteAppointment(r.Context(), id); err != nil {
			handleBookingError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listServicesHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all := r.URL.Query().Get("include_inactive") == "true"
		services, err := svc.ListServices(r.Context(), !all)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]ServiceResponse, 0, len(services))
		for _, s := range services {
			resp = append(resp, ServiceResponse{
				ID:           s.ID,
				Name:         s.Name,
				DurationMin:  s.DurationMin,
				BufferMin:    s.BufferMin,
				PriceCents:   s.PriceCents,
				DepositCents: s.DepositCents,
				Active:       s.Active,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listClientsHandler(dir *directory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		clients, err := dir.List(r.Context(), limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]ClientResponse, 0, len(clients))
		for i := range clients {
			resp = append(resp, toClientResponse(&clients[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getClientHandler(dir *directory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := chi.URLParam(r, "email")
		client, err := dir.GetByEmail(r.Context(), email)
		if err != nil {
			handleDirectoryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toClientResponse(client))
	}
}

func recalculateHandler(dir *directory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := chi.URLParam(r, "email")
		client, err := dir.RecalculateStats(r.Context(), email)
		if err != nil {
			handleDirectoryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toClientResponse(client))
	}
}

func linkAccountHandler(dir *directory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LinkAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be a valid UUID")
			return
		}
		if directory.CanonicalEmail(req.Email) == "" {
			writeError(w, http.StatusBadRequest, "invalid_email", "email is required")
			return
		}

		result, err := dir.LinkAccountToHistory(r.Context(), userID, req.Email)
		if err != nil {
			handleDirectoryError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, LinkAccountResponse{
			Client:              toClientResponse(result.Client),
			AppointmentsLinked:  result.AppointmentsLinked,
			AppointmentsSkipped: result.AppointmentsSkipped,
		})
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	var verr *booking.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_error", verr.Error())
	case errors.Is(err, booking.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", "slot is no longer available, choose another time")
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, booking.ErrStaleStatus):
		writeError(w, http.StatusConflict, "stale_status", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleDirectoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, directory.ErrClientNotFound):
		writeError(w, http.StatusNotFound, "client_not_found", err.Error())
	case errors.Is(err, directory.ErrLinkingConflict):
		writeError(w, http.StatusConflict, "linking_conflict", "client is linked to a different account, flagged for review")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseTimeParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing_"+name, name+" query parameter is required (RFC 3339)")
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be RFC 3339")
		return time.Time{}, false
	}
	return t, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
