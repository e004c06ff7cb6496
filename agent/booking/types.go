// Package booking is the appointment engine: slot exclusivity, status
// lifecycle, and the per-caller schedule lookups the receptionists use.
package booking

import "time"

// Status is the appointment lifecycle state.
type Status string

const (
	StatusBooked      Status = "Booked"
	StatusScheduled   Status = "Scheduled"
	StatusRescheduled Status = "Rescheduled"
	StatusCompleted   Status = "Completed"
	StatusCancelled   Status = "Cancelled"
	StatusNoShow      Status = "NoShow"
)

// Active reports whether the status holds its slot. Only active appointments
// participate in the exclusivity rule; Cancelled and NoShow free the slot, and
// Completed keeps the history without blocking rebooking.
func (s Status) Active() bool {
	switch s {
	case StatusBooked, StatusScheduled, StatusRescheduled:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	return s.Active() || s.Terminal()
}

// CanTransition reports whether from may move to to by a plain status change.
// Active statuses may settle into any terminal state; terminal statuses are
// final. Rescheduled is never a plain transition target: it is only reachable
// through Reschedule, which moves the slot and re-checks exclusivity.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from.Terminal() {
		return false
	}
	switch to {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Appointment is one booked slot for a resource (a doctor, a stylist, a room).
type Appointment struct {
	ID         string
	CallerID   string
	ResourceID string
	Service    string
	SlotStart  time.Time
	SlotEnd    time.Time
	Status     Status
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
