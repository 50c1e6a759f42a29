package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RetryPolicy bounds the automatic retries applied to directory writes
// that happen after an appointment is already committed. Slot conflicts
// are never retried here; they surface to the caller.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Backoff <= 0 {
		p.Backoff = 200 * time.Millisecond
	}
	return p
}

// Service owns every write to client aggregate fields. Nothing else in
// the engine mutates the clients collection.
type Service struct {
	repo   Repository
	logger *slog.Logger
	retry  RetryPolicy
}

func NewService(repo Repository, logger *slog.Logger, retry RetryPolicy) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		logger: logger,
		retry:  retry.normalized(),
	}
}

// Reconcile creates or updates the client record for an appointment.
// It is idempotent under repeated invocation with the same appointment
// and retries transient failures up to the configured bound. The final
// error is wrapped in ErrReconciliationFailed and must be durably
// logged by the caller, never swallowed.
func (s *Service) Reconcile(ctx context.Context, in ReconcileInput) error {
	if CanonicalEmail(in.Email) == "" {
		return fmt.Errorf("%w: empty email", ErrReconciliationFailed)
	}

	var lastErr error
	for attempt := 1; attempt <= s.retry.Attempts; attempt++ {
		applied, err := s.repo.ReconcileAppointment(ctx, in)
		if err == nil {
			if !applied {
				s.logger.Info("appointment already reconciled",
					"appointment_id", in.AppointmentID, "email", CanonicalEmail(in.Email))
			}
			return nil
		}
		lastErr = err
		s.logger.Warn("reconcile attempt failed",
			"appointment_id", in.AppointmentID, "attempt", attempt, "err", err)

		if attempt < s.retry.Attempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", ErrReconciliationFailed, ctx.Err())
			case <-time.After(s.retry.Backoff):
			}
		}
	}
	return fmt.Errorf("%w: %w", ErrReconciliationFailed, lastErr)
}

// ApplyDelta applies a counter delta for email. A missing client is not
// fatal to the triggering transition; the caller logs it and a later
// RecalculateStats repairs the aggregates.
func (s *Service) ApplyDelta(ctx context.Context, email string, d CounterDelta) error {
	if d.IsZero() {
		return nil
	}
	return s.repo.ApplyDelta(ctx, email, d)
}

// RecalculateStats recomputes every aggregate for email from the full
// appointment history. Safe to run at any time, any number of times.
func (s *Service) RecalculateStats(ctx context.Context, email string) (*Client, error) {
	c, err := s.repo.RecalculateStats(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("recalculate stats for %s: %w", CanonicalEmail(email), err)
	}
	s.logger.Info("client stats recalculated",
		"email", c.Email,
		"total", c.TotalAppointments,
		"completed", c.CompletedCount,
		"no_shows", c.NoShowCount,
		"spent_cents", c.TotalSpentCents)
	return c, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*Client, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]Client, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// LinkAccountToHistory stamps a durable user id onto the client record
// for email and onto every historical appointment with that exact
// email. Matching is by exact email equality only; each stamp is
// idempotent, so the operation is safely re-runnable after partial
// failure.
func (s *Service) LinkAccountToHistory(ctx context.Context, userID uuid.UUID, email string) (*LinkResult, error) {
	client, err := s.repo.LinkClient(ctx, userID, email)
	if err != nil {
		if errors.Is(err, ErrLinkingConflict) {
			s.logger.Warn("account linking conflict",
				"email", CanonicalEmail(email), "user_id", userID, "existing_user_id", client.UserID)
			return &LinkResult{Client: client}, err
		}
		return nil, err
	}

	linked, skipped, err := s.repo.LinkAppointments(ctx, userID, email)
	if err != nil {
		// The client stamp already committed; re-running finishes the job.
		return &LinkResult{Client: client}, fmt.Errorf("link appointment history: %w", err)
	}
	if skipped > 0 {
		s.logger.Warn("appointments linked to a different account left untouched",
			"email", CanonicalEmail(email), "skipped", skipped)
	}

	return &LinkResult{
		Client:              client,
		AppointmentsLinked:  linked,
		AppointmentsSkipped: skipped,
	}, nil
}
