// Package phase derives the time-based voting phase from an election schedule.
// Everything here is pure and safe for concurrent use.
package phase

import (
	"time"

	"ballot-engine/internal/domain"
)

// Phase is the time-derived voting window state
type Phase string

const (
	Unscheduled Phase = "unscheduled"
	Scheduled   Phase = "scheduled"
	Active      Phase = "active"
	Ended       Phase = "ended"
)

var order = map[Phase]int{
	Unscheduled: 0,
	Scheduled:   1,
	Active:      2,
	Ended:       3,
}

// Of computes the phase of schedule at now. A schedule with only an end is
// active until that end; one with only a start is active from then on.
func Of(now time.Time, schedule domain.Schedule) Phase {
	start, end := schedule.Start, schedule.End
	switch {
	case start == nil && end == nil:
		return Unscheduled
	case start != nil && now.Before(*start):
		return Scheduled
	case end != nil && !now.Before(*end):
		return Ended
	default:
		return Active
	}
}

// Before reports whether p comes strictly earlier in the voting lifecycle than q
func (p Phase) Before(q Phase) bool {
	return order[p] < order[q]
}

// Status maps a phase to the operational election status it implies for an
// approved election
func (p Phase) Status() domain.ElectionStatus {
	switch p {
	case Scheduled:
		return domain.StatusScheduled
	case Active:
		return domain.StatusActive
	case Ended:
		return domain.StatusEnded
	}
	return domain.StatusDraft
}

// Derive returns the status an election should carry at now and whether it
// differs from what is stored. Declared elections and elections that are not
// approved are never changed.
func Derive(now time.Time, e *domain.Election) (domain.ElectionStatus, bool) {
	if e.Status == domain.StatusDeclared || !e.IsApproved() {
		return e.Status, false
	}
	p := Of(now, e.Schedule)
	if p == Unscheduled {
		return e.Status, false
	}
	next := p.Status()
	return next, next != e.Status
}
