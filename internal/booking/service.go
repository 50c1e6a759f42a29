package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/slotwise/booking-engine/internal/directory"
	"github.com/slotwise/booking-engine/internal/events"
	"github.com/slotwise/booking-engine/internal/schedule"
)

// Service orchestrates the booking transaction, the lifecycle state
// machine and the reminder surface. It is the only component that
// creates appointments and the only one that changes their status.
type Service struct {
	repo    Repository
	locker  Locker
	dir     *directory.Service
	emitter events.Emitter
	logger  *slog.Logger

	reminderWindow time.Duration
}

func NewService(repo Repository, locker Locker, dir *directory.Service, emitter events.Emitter, logger *slog.Logger, reminderWindow time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if reminderWindow <= 0 {
		reminderWindow = 24 * time.Hour
	}
	return &Service{
		repo:           repo,
		locker:         locker,
		dir:            dir,
		emitter:        emitter,
		logger:         logger,
		reminderWindow: reminderWindow,
	}
}

// IsBookable runs the advisory availability check: working-hours
// containment, time-off exclusion, then overlap exclusion, in order,
// short-circuiting on the first failure. It reads possibly-stale state;
// the booking transaction repeats the overlap check under the lock.
func (s *Service) IsBookable(ctx context.Context, start, end time.Time) (bool, error) {
	snap, err := s.repo.LoadSchedule(ctx)
	if err != nil {
		return false, fmt.Errorf("load schedule: %w", err)
	}
	if !snap.HoursConfigured() {
		// Fail open: missing configuration must not brick booking. The
		// condition is surfaced to operators, not clients.
		s.logger.Warn("no working hours configured, skipping hours check")
	} else if !snap.WithinHours(start, end) {
		return false, nil
	}

	if snap.BlockedByTimeOff(start, end) {
		return false, nil
	}

	busy, err := s.repo.BusyIntervals(ctx, start, end)
	if err != nil {
		return false, fmt.Errorf("load busy intervals: %w", err)
	}
	return !schedule.OverlapsAny(start, end, busy), nil
}

// CreateAppointment validates the request, checks availability, then
// re-checks the overlap inside the serialized unit of work that writes
// the appointment. Two simultaneous requests for the same slot cannot
// both succeed: one gets the appointment, the other ErrSlotConflict.
//
// Directory reconciliation runs after commit from this privileged path,
// never from the submitter's trust boundary, and its failure never
// fails the booking.
func (s *Service) CreateAppointment(ctx context.Context, req Request) (*Appointment, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	svc, err := s.repo.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("load service: %w", err)
	}
	if !svc.Active {
		return nil, &ValidationError{Field: "service_id", Reason: "service is not bookable"}
	}

	start := req.Start.UTC()
	// The buffer is encoded into the stored end time.
	end := start.Add(time.Duration(svc.DurationMin+svc.BufferMin) * time.Minute)

	ok, err := s.IsBookable(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSlotConflict
	}

	appt := &Appointment{
		ID:           uuid.New(),
		ServiceID:    svc.ID,
		ServiceName:  svc.Name,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		Phone:        req.Phone,
		Start:        start,
		End:          end,
		Status:       StatusConfirmed,
		Compliance:   req.Compliance,
		DepositCents: svc.DepositCents,
	}

	err = s.locker.WithRangeLock(ctx, start, end, func(lockCtx context.Context) error {
		return s.repo.CreateIfFree(lockCtx, appt)
	})
	if err != nil {
		return nil, err
	}

	// The appointment is committed. Everything below is best-effort and
	// must survive the caller disconnecting.
	detached := context.WithoutCancel(ctx)

	s.reconcile(detached, appt)

	ev := events.New(events.TypeAppointmentCreated)
	ev.AppointmentID = &appt.ID
	ev.ClientName = appt.ClientName()
	ev.ClientEmail = appt.Email
	t := appt.Start
	ev.Start = &t
	if s.publish(detached, ev) {
		if err := s.repo.MarkConfirmationSent(detached, appt.ID); err != nil {
			s.logger.Warn("mark confirmation sent failed", "appointment_id", appt.ID, "err", err)
		}
	}

	return appt, nil
}

// reconcile hands the committed appointment to the directory. Failure
// is logged and recorded durably, never propagated: the booking stands
// and RecalculateStats can repair the directory later.
func (s *Service) reconcile(ctx context.Context, appt *Appointment) {
	err := s.dir.Reconcile(ctx, directory.ReconcileInput{
		AppointmentID: appt.ID,
		FirstName:     appt.FirstName,
		LastName:      appt.LastName,
		Email:         appt.Email,
		Phone:         appt.Phone,
	})
	if err == nil {
		return
	}

	s.logger.Error("directory reconciliation failed",
		"appointment_id", appt.ID, "email", directory.CanonicalEmail(appt.Email), "err", err)

	ev := events.New(events.TypeReconcileFailed)
	ev.AppointmentID = &appt.ID
	ev.ClientEmail = directory.CanonicalEmail(appt.Email)
	ev.Detail = err.Error()
	if logErr := s.repo.InsertEvent(ctx, ev); logErr != nil {
		s.logger.Error("failed to record reconciliation failure", "appointment_id", appt.ID, "err", logErr)
	}
}

// Transition moves an appointment to newStatus and applies the
// resulting counter delta to the client record. An optional tip is
// recorded before the delta is computed so that entering completed
// credits deposit plus tip. The schedule is authoritative: a missing
// client never fails the transition.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, newStatus Status, tipCents *int64) (*Appointment, error) {
	if !ValidStatus(newStatus) {
		return nil, &ValidationError{Field: "status", Reason: "unknown status " + string(newStatus)}
	}

	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if tipCents != nil && *tipCents != appt.TipCents {
		if appt.Status == StatusCompleted {
			// The stored tip is baked into total-spent; changing it now
			// would desync the aggregates until the next recalculate.
			return nil, &ValidationError{Field: "tip_cents", Reason: "cannot change on a completed appointment"}
		}
		if err := s.repo.UpdateTip(ctx, id, *tipCents); err != nil {
			return nil, fmt.Errorf("update tip: %w", err)
		}
		appt.TipCents = *tipCents
	}

	prev := appt.Status
	if prev == newStatus {
		return appt, nil
	}

	var updated *Appointment
	if newStatus.OccupiesSlot() && !prev.OccupiesSlot() {
		// Re-entering the schedule races against bookings made while
		// the slot was free, so the overlap check and the status write
		// run under the same day lock the booking path takes. The
		// appointment itself is not in the busy set: prev does not
		// occupy a slot here.
		err = s.locker.WithRangeLock(ctx, appt.Start, appt.End, func(lockCtx context.Context) error {
			busy, busyErr := s.repo.BusyIntervals(lockCtx, appt.Start, appt.End)
			if busyErr != nil {
				return fmt.Errorf("load busy intervals: %w", busyErr)
			}
			if schedule.OverlapsAny(appt.Start, appt.End, busy) {
				return ErrSlotConflict
			}
			updated, busyErr = s.repo.UpdateStatus(lockCtx, id, prev, newStatus)
			if busyErr != nil {
				return fmt.Errorf("update status: %w", busyErr)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		updated, err = s.repo.UpdateStatus(ctx, id, prev, newStatus)
		if err != nil {
			return nil, fmt.Errorf("update status: %w", err)
		}
	}

	detached := context.WithoutCancel(ctx)

	delta := StatDelta(prev, newStatus, updated.Amounts(), updated.Start)
	s.applyDelta(detached, updated, delta)

	evType := events.TypeStatusChanged
	if newStatus == StatusCanceled {
		evType = events.TypeAppointmentCanceled
	}
	ev := events.New(evType)
	ev.AppointmentID = &updated.ID
	ev.ClientName = updated.ClientName()
	ev.ClientEmail = updated.Email
	t := updated.Start
	ev.Start = &t
	ev.PreviousStatus = string(prev)
	ev.NewStatus = string(newStatus)
	s.publish(detached, ev)

	return updated, nil
}

// DeleteAppointment removes an appointment outright, applying the
// inverse of its current status plus the total-appointments decrement.
func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}

	if err := s.repo.DeleteAppointment(ctx, id); err != nil {
		return err
	}

	detached := context.WithoutCancel(ctx)

	s.applyDelta(detached, appt, DeletionDelta(appt.Status, appt.Amounts()))

	ev := events.New(events.TypeAppointmentDeleted)
	ev.AppointmentID = &appt.ID
	ev.ClientName = appt.ClientName()
	ev.ClientEmail = appt.Email
	t := appt.Start
	ev.Start = &t
	ev.PreviousStatus = string(appt.Status)
	s.publish(detached, ev)

	return nil
}

func (s *Service) applyDelta(ctx context.Context, appt *Appointment, delta directory.CounterDelta) {
	if delta.IsZero() {
		return
	}
	err := s.dir.ApplyDelta(ctx, appt.Email, delta)
	if err == nil {
		return
	}

	if errors.Is(err, directory.ErrClientNotFound) {
		s.logger.Warn("no client record for transitioned appointment",
			"appointment_id", appt.ID, "email", directory.CanonicalEmail(appt.Email))
	} else {
		s.logger.Error("counter delta failed",
			"appointment_id", appt.ID, "email", directory.CanonicalEmail(appt.Email), "err", err)
	}

	ev := events.New(events.TypeReconcileFailed)
	ev.AppointmentID = &appt.ID
	ev.ClientEmail = directory.CanonicalEmail(appt.Email)
	ev.Detail = "counter delta not applied: " + err.Error()
	if logErr := s.repo.InsertEvent(ctx, ev); logErr != nil {
		s.logger.Error("failed to record delta failure", "appointment_id", appt.ID, "err", logErr)
	}
}

// publish writes the event to the durable log and hands it to the
// notification collaborator. Both are fire-and-forget with logging.
// Returns whether the outbound emission succeeded.
func (s *Service) publish(ctx context.Context, ev events.Event) bool {
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error("event log write failed", "event_type", ev.Type, "err", err)
	}
	if err := s.emitter.Emit(ctx, ev); err != nil {
		s.logger.Error("event emission failed", "event_type", ev.Type, "err", err)
		return false
	}
	return true
}

// DispatchReminders finds confirmed appointments starting within the
// reminder window that carry no reminder marker, emits a reminder-due
// event for each and sets the marker once emission succeeds.
func (s *Service) DispatchReminders(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	due, err := s.repo.FindDueReminders(ctx, now, now.Add(s.reminderWindow))
	if err != nil {
		return 0, fmt.Errorf("find due reminders: %w", err)
	}

	sent := 0
	for _, appt := range due {
		ev := events.New(events.TypeReminderDue)
		ev.AppointmentID = &appt.ID
		ev.ClientName = appt.ClientName()
		ev.ClientEmail = appt.Email
		t := appt.Start
		ev.Start = &t
		if !s.publish(ctx, ev) {
			continue
		}
		if err := s.repo.MarkReminderSent(ctx, appt.ID); err != nil {
			s.logger.Error("mark reminder sent failed", "appointment_id", appt.ID, "err", err)
			continue
		}
		sent++
	}
	return sent, nil
}

// Read queries, pure passthroughs with bounds.

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

func (s *Service) ListByRange(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	return s.repo.ListByRange(ctx, from, to)
}

func (s *Service) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Appointment, error) {
	if !ValidStatus(status) {
		return nil, &ValidationError{Field: "status", Reason: "unknown status " + string(status)}
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByStatus(ctx, status, limit, offset)
}

func (s *Service) ListByEmail(ctx context.Context, email string) ([]Appointment, error) {
	return s.repo.ListByEmail(ctx, email)
}

func (s *Service) ListServices(ctx context.Context, activeOnly bool) ([]Offering, error) {
	return s.repo.ListServices(ctx, activeOnly)
}

func validateRequest(req Request) error {
	switch {
	case req.ServiceID == uuid.Nil:
		return &ValidationError{Field: "service_id", Reason: "is required"}
	case req.Start.IsZero():
		return &ValidationError{Field: "start", Reason: "is required"}
	case req.FirstName == "":
		return &ValidationError{Field: "first_name", Reason: "is required"}
	case directory.CanonicalEmail(req.Email) == "":
		return &ValidationError{Field: "email", Reason: "is required"}
	case !req.Compliance.TermsAcknowledged:
		return &ValidationError{Field: "terms_acknowledged", Reason: "must be accepted"}
	case !req.Compliance.PolicyAcknowledged:
		return &ValidationError{Field: "policy_acknowledged", Reason: "cancellation policy must be acknowledged"}
	}
	return nil
}
