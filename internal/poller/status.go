package poller

import (
	"time"

	"burgerbot/internal/slots"
)

// Tracker keeps the latest PollStatus per service. It is not synchronized;
// Engine guards it with its own lock.
type Tracker struct {
	last map[slots.ServiceID]slots.PollStatus
}

func NewTracker() *Tracker {
	return &Tracker{last: map[slots.ServiceID]slots.PollStatus{}}
}

func (t *Tracker) Record(id slots.ServiceID, kind slots.StatusKind, at time.Time) {
	t.last[id] = slots.PollStatus{At: at, Kind: kind}
}

// Get never fails: unknown services report NoneYet stamped with now.
func (t *Tracker) Get(id slots.ServiceID, now time.Time) slots.PollStatus {
	if st, ok := t.last[id]; ok {
		return st
	}
	return slots.PollStatus{At: now, Kind: slots.NoneYet}
}

func (t *Tracker) Snapshot() map[slots.ServiceID]slots.PollStatus {
	out := make(map[slots.ServiceID]slots.PollStatus, len(t.last))
	for id, st := range t.last {
		out[id] = st
	}
	return out
}
