package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository mirroring the storage-level
// invariants: one client per canonical email, reconcile-once per
// appointment, guarded link stamps, counters recomputable from the
// recorded appointment history.
type memRepo struct {
	clients    map[string]*Client
	reconciled map[uuid.UUID]bool
	appts      map[uuid.UUID]*memAppointment

	// remaining forced failures for ReconcileAppointment
	failures int
}

// memAppointment is the slice of the schedule store the directory
// aggregates read.
type memAppointment struct {
	email      string
	userID     *uuid.UUID
	status     string
	spentCents int64
	start      time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{
		clients:    make(map[string]*Client),
		reconciled: make(map[uuid.UUID]bool),
		appts:      make(map[uuid.UUID]*memAppointment),
	}
}

// complete marks a recorded appointment completed with the given spend,
// standing in for the lifecycle transitions the booking side performs.
func (m *memRepo) complete(id uuid.UUID, spentCents int64, start time.Time) {
	a := m.appts[id]
	a.status = "completed"
	a.spentCents = spentCents
	a.start = start
}

func (m *memRepo) GetByEmail(_ context.Context, email string) (*Client, error) {
	c, ok := m.clients[CanonicalEmail(email)]
	if !ok {
		return nil, ErrClientNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) List(_ context.Context, limit, offset int) ([]Client, error) {
	var out []Client
	for _, c := range m.clients {
		out = append(out, *c)
	}
	return out, nil
}

func (m *memRepo) ReconcileAppointment(_ context.Context, in ReconcileInput) (bool, error) {
	if m.failures > 0 {
		m.failures--
		return false, errors.New("transient store failure")
	}
	if m.reconciled[in.AppointmentID] {
		return false, nil
	}
	m.reconciled[in.AppointmentID] = true
	m.appts[in.AppointmentID] = &memAppointment{
		email:  CanonicalEmail(in.Email),
		status: "confirmed",
	}

	key := CanonicalEmail(in.Email)
	c, ok := m.clients[key]
	if !ok {
		c = &Client{
			ID:        uuid.New(),
			Email:     key,
			FirstName: in.FirstName,
			LastName:  in.LastName,
			Phone:     in.Phone,
		}
		m.clients[key] = c
	} else {
		if c.FirstName == "" {
			c.FirstName = in.FirstName
		}
		if c.LastName == "" {
			c.LastName = in.LastName
		}
		if c.Phone == "" {
			c.Phone = in.Phone
		}
	}
	c.TotalAppointments++
	return true, nil
}

func (m *memRepo) ApplyDelta(_ context.Context, email string, d CounterDelta) error {
	c, ok := m.clients[CanonicalEmail(email)]
	if !ok {
		return ErrClientNotFound
	}
	c.TotalAppointments += d.Total
	c.CompletedCount += d.Completed
	c.NoShowCount += d.NoShows
	c.TotalSpentCents += d.SpentCents
	if d.LastVisit != nil {
		t := *d.LastVisit
		c.LastAppointmentAt = &t
	}
	return nil
}

func (m *memRepo) RecalculateStats(_ context.Context, email string) (*Client, error) {
	key := CanonicalEmail(email)
	c, ok := m.clients[key]
	if !ok {
		return nil, ErrClientNotFound
	}

	total, completed, noShows := 0, 0, 0
	var spent int64
	var last *time.Time
	for _, a := range m.appts {
		if a.email != key {
			continue
		}
		total++
		switch a.status {
		case "completed":
			completed++
			spent += a.spentCents
			if last == nil || a.start.After(*last) {
				t := a.start
				last = &t
			}
		case "no_show":
			noShows++
		}
	}

	c.TotalAppointments = total
	c.CompletedCount = completed
	c.NoShowCount = noShows
	c.TotalSpentCents = spent
	c.LastAppointmentAt = last
	cp := *c
	return &cp, nil
}

func (m *memRepo) LinkClient(_ context.Context, userID uuid.UUID, email string) (*Client, error) {
	key := CanonicalEmail(email)
	c, ok := m.clients[key]
	if !ok {
		c = &Client{ID: uuid.New(), Email: key}
		m.clients[key] = c
	}
	if c.UserID != nil && *c.UserID != userID {
		cp := *c
		return &cp, ErrLinkingConflict
	}
	u := userID
	c.UserID = &u
	cp := *c
	return &cp, nil
}

func (m *memRepo) LinkAppointments(_ context.Context, userID uuid.UUID, email string) (int64, int64, error) {
	key := CanonicalEmail(email)
	var linked, skipped int64
	for _, a := range m.appts {
		if a.email != key {
			continue
		}
		switch {
		case a.userID == nil:
			u := userID
			a.userID = &u
			linked++
		case *a.userID != userID:
			skipped++
		}
	}
	return linked, skipped, nil
}

func fastRetry() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: time.Millisecond}
}

func input(email string) ReconcileInput {
	return ReconcileInput{
		AppointmentID: uuid.New(),
		FirstName:     "Dana",
		LastName:      "Reid",
		Email:         email,
		Phone:         "555-0100",
	}
}

func TestReconcileCreatesClient(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, fastRetry())

	if err := svc.Reconcile(context.Background(), input("Dana@Example.com ")); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	c, err := svc.GetByEmail(context.Background(), "dana@example.com")
	if err != nil {
		t.Fatalf("get by canonical email: %v", err)
	}
	if c.TotalAppointments != 1 {
		t.Fatalf("total = %d, want 1", c.TotalAppointments)
	}
	if c.FirstName != "Dana" || c.Phone != "555-0100" {
		t.Fatalf("contact not captured: %+v", c)
	}
}

func TestReconcileDeduplicatesByCanonicalEmail(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, fastRetry())
	ctx := context.Background()

	if err := svc.Reconcile(ctx, input("dana@example.com")); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	second := ReconcileInput{
		AppointmentID: uuid.New(),
		FirstName:     "Danielle",
		Email:         "  DANA@EXAMPLE.COM",
	}
	if err := svc.Reconcile(ctx, second); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	if len(repo.clients) != 1 {
		t.Fatalf("client records = %d, want 1", len(repo.clients))
	}
	c := repo.clients["dana@example.com"]
	if c.TotalAppointments != 2 {
		t.Fatalf("total = %d, want 2", c.TotalAppointments)
	}
	if c.FirstName != "Dana" {
		t.Fatalf("first write wins for contact fields, got %q", c.FirstName)
	}
}

func TestReconcileIdempotentPerAppointment(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, fastRetry())
	ctx := context.Background()

	in := input("dana@example.com")
	for i := 0; i < 3; i++ {
		if err := svc.Reconcile(ctx, in); err != nil {
			t.Fatalf("reconcile attempt %d: %v", i, err)
		}
	}

	if got := repo.clients["dana@example.com"].TotalAppointments; got != 1 {
		t.Fatalf("total after repeats = %d, want 1", got)
	}
}

func TestReconcileRetriesTransientFailures(t *testing.T) {
	repo := newMemRepo()
	repo.failures = 2
	svc := NewService(repo, nil, fastRetry())

	if err := svc.Reconcile(context.Background(), input("dana@example.com")); err != nil {
		t.Fatalf("should recover within retry budget: %v", err)
	}

	repo.failures = 10
	err := svc.Reconcile(context.Background(), input("other@example.com"))
	if !errors.Is(err, ErrReconciliationFailed) {
		t.Fatalf("exhausted retries should wrap ErrReconciliationFailed, got %v", err)
	}
	if _, lookupErr := svc.GetByEmail(context.Background(), "other@example.com"); !errors.Is(lookupErr, ErrClientNotFound) {
		t.Fatalf("failed reconcile must not create a record")
	}
}

func TestReconcileRejectsEmptyEmail(t *testing.T) {
	svc := NewService(newMemRepo(), nil, fastRetry())
	err := svc.Reconcile(context.Background(), ReconcileInput{AppointmentID: uuid.New(), Email: "   "})
	if !errors.Is(err, ErrReconciliationFailed) {
		t.Fatalf("want ErrReconciliationFailed for blank email, got %v", err)
	}
}

func TestApplyDeltaSkipsZero(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, fastRetry())

	// A zero delta must not touch the repo, even with no client present.
	if err := svc.ApplyDelta(context.Background(), "ghost@example.com", CounterDelta{}); err != nil {
		t.Fatalf("zero delta: %v", err)
	}

	err := svc.ApplyDelta(context.Background(), "ghost@example.com", CounterDelta{Completed: 1})
	if !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("want ErrClientNotFound, got %v", err)
	}
}

func TestRecalculateRepairsDriftedCounters(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, fastRetry())
	ctx := context.Background()

	inputs := []ReconcileInput{input("dana@example.com"), input("dana@example.com"), input("dana@example.com")}
	for _, in := range inputs {
		if err := svc.Reconcile(ctx, in); err != nil {
			t.Fatalf("seed reconcile: %v", err)
		}
	}
	visit := time.Date(2026, 5, 2, 14, 0, 0, 0, time.UTC)
	repo.complete(inputs[0].AppointmentID, 3000, visit.Add(-48*time.Hour))
	repo.complete(inputs[1].AppointmentID, 4500, visit)

	// Drift the stored counters away from the history, as a lost delta
	// would.
	c := repo.clients["dana@example.com"]
	c.CompletedCount = 7
	c.TotalSpentCents = 99
	c.LastAppointmentAt = nil

	repaired, err := svc.RecalculateStats(ctx, "Dana@Example.com")
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if repaired.TotalAppointments != 3 || repaired.CompletedCount != 2 || repaired.NoShowCount != 0 {
		t.Fatalf("repaired counters = %+v", repaired)
	}
	if repaired.TotalSpentCents != 7500 {
		t.Fatalf("spent = %d, want sum over completed history", repaired.TotalSpentCents)
	}
	if repaired.LastAppointmentAt == nil || !repaired.LastAppointmentAt.Equal(visit) {
		t.Fatalf("last visit = %v, want %v", repaired.LastAppointmentAt, visit)
	}
}

func TestLinkAccountToHistory(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, fastRetry())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.Reconcile(ctx, input("dana@example.com")); err != nil {
			t.Fatalf("seed reconcile: %v", err)
		}
	}

	userID := uuid.New()
	res, err := svc.LinkAccountToHistory(ctx, userID, "Dana@Example.com")
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if res.AppointmentsLinked != 3 || res.AppointmentsSkipped != 0 {
		t.Fatalf("linked=%d skipped=%d, want 3/0", res.AppointmentsLinked, res.AppointmentsSkipped)
	}
	if res.Client.UserID == nil || *res.Client.UserID != userID {
		t.Fatalf("client not stamped: %+v", res.Client)
	}

	// Re-running with the same account is a no-op, not an error.
	res, err = svc.LinkAccountToHistory(ctx, userID, "dana@example.com")
	if err != nil {
		t.Fatalf("repeat link: %v", err)
	}
	if res.AppointmentsLinked != 0 || res.AppointmentsSkipped != 0 {
		t.Fatalf("repeat link should stamp nothing, got linked=%d skipped=%d", res.AppointmentsLinked, res.AppointmentsSkipped)
	}
}

func TestLinkAccountConflict(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, fastRetry())
	ctx := context.Background()

	if err := svc.Reconcile(ctx, input("dana@example.com")); err != nil {
		t.Fatalf("seed reconcile: %v", err)
	}

	first := uuid.New()
	if _, err := svc.LinkAccountToHistory(ctx, first, "dana@example.com"); err != nil {
		t.Fatalf("first link: %v", err)
	}

	res, err := svc.LinkAccountToHistory(ctx, uuid.New(), "dana@example.com")
	if !errors.Is(err, ErrLinkingConflict) {
		t.Fatalf("want ErrLinkingConflict, got %v", err)
	}
	if res == nil || res.Client == nil || res.Client.UserID == nil || *res.Client.UserID != first {
		t.Fatalf("conflict result should carry the existing record")
	}
}

func TestLinkAccountWithNoHistory(t *testing.T) {
	svc := NewService(newMemRepo(), nil, fastRetry())

	res, err := svc.LinkAccountToHistory(context.Background(), uuid.New(), "new@example.com")
	if err != nil {
		t.Fatalf("link with no history: %v", err)
	}
	if res.AppointmentsLinked != 0 {
		t.Fatalf("nothing to link, got %d", res.AppointmentsLinked)
	}
	if res.Client == nil || res.Client.Email != "new@example.com" {
		t.Fatalf("link should create the directory record: %+v", res.Client)
	}
}
