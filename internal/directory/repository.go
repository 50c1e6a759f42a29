package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrClientNotFound = errors.New("client not found")
	// ErrLinkingConflict means the directory record is already linked to
	// a different durable user id. Never silently overwritten.
	ErrLinkingConflict = errors.New("client linked to a different account")
	// ErrReconciliationFailed wraps a directory write that failed after
	// the appointment was already committed. Non-fatal to the booking,
	// repairable via RecalculateStats.
	ErrReconciliationFailed = errors.New("directory reconciliation failed")
)

// Repository contains all directory DB interactions. Implementations
// must enforce the one-client-per-email invariant at the storage level
// (unique constraint on the canonical email) so concurrent reconcile
// calls for the same new email cannot produce two records.
type Repository interface {
	GetByEmail(ctx context.Context, email string) (*Client, error)
	List(ctx context.Context, limit, offset int) ([]Client, error)

	// ReconcileAppointment atomically marks the appointment reconciled
	// and creates or updates the client record. It returns applied=false
	// without touching counters when the appointment was already
	// reconciled, which makes retries idempotent.
	ReconcileAppointment(ctx context.Context, in ReconcileInput) (applied bool, err error)

	// ApplyDelta adds a counter delta to the client record for email.
	// Returns ErrClientNotFound when no record exists.
	ApplyDelta(ctx context.Context, email string, d CounterDelta) error

	// RecalculateStats recomputes every aggregate from the full
	// appointment history for email and overwrites the stored counters.
	RecalculateStats(ctx context.Context, email string) (*Client, error)

	// LinkClient stamps userID onto the client record for email,
	// creating the record when absent. Returns ErrLinkingConflict when
	// the record carries a different user id.
	LinkClient(ctx context.Context, userID uuid.UUID, email string) (*Client, error)

	// LinkAppointments stamps userID onto every unlinked appointment for
	// email and reports how many were stamped and how many were skipped
	// because they belong to a different account.
	LinkAppointments(ctx context.Context, userID uuid.UUID, email string) (linked, skipped int64, err error)
}
