package booking

import (
	"time"

	"github.com/slotwise/booking-engine/internal/directory"
)

// statusAbsent models an appointment that is being deleted outright.
const statusAbsent Status = ""

// Amounts carries the money attached to an appointment, in integer
// minor-currency units.
type Amounts struct {
	DepositCents int64
	TipCents     int64
}

func (a *Appointment) Amounts() Amounts {
	return Amounts{DepositCents: a.DepositCents, TipCents: a.TipCents}
}

// StatDelta returns the client-counter change produced by moving an
// appointment from prev to next. Deltas are symmetric: entering a state
// and leaving it again cancel out exactly, which is what makes admin
// re-transitions (noShow back to completed, and so on) safe.
func StatDelta(prev, next Status, am Amounts, startedAt time.Time) directory.CounterDelta {
	var d directory.CounterDelta
	if prev == next {
		return d
	}

	amount := am.DepositCents + am.TipCents

	if next == StatusCompleted && prev != StatusCompleted {
		d.Completed++
		d.SpentCents += amount
		t := startedAt
		d.LastVisit = &t
	}
	if prev == StatusCompleted && next != StatusCompleted {
		d.Completed--
		d.SpentCents -= amount
	}

	if next == StatusNoShow && prev != StatusNoShow {
		d.NoShows++
	}
	if prev == StatusNoShow && next != StatusNoShow {
		d.NoShows--
	}

	// Entering or leaving canceled carries no counter effect of its own;
	// the slot release is handled by the occupies-a-slot status set.
	return d
}

// DeletionDelta is the counter change for removing an appointment
// outright: the inverse of its current status plus the only decrement
// of total-appointments in the system. Plain transitions never change
// the total; only creation and deletion do.
func DeletionDelta(current Status, am Amounts) directory.CounterDelta {
	d := StatDelta(current, statusAbsent, am, time.Time{})
	d.Total = -1
	return d
}
