package booking

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSlotTaken means another active appointment already holds the
	// (resource, slot) pair. This is an expected outcome, not a fault.
	ErrSlotTaken = errors.New("slot already taken")

	ErrNotFound      = errors.New("appointment not found")
	ErrBadTransition = errors.New("invalid status transition")
	ErrUnavailable   = errors.New("booking store unavailable")
)

// DefaultSlotLength fills SlotEnd when a request only names a start time.
const DefaultSlotLength = 30 * time.Minute

// CreateParams describes a new appointment request. A zero SlotEnd defaults
// to SlotStart plus DefaultSlotLength.
type CreateParams struct {
	CallerID   string
	ResourceID string
	Service    string
	SlotStart  time.Time
	SlotEnd    time.Time
	Notes      string
}

// Engine is the appointment contract. Implementations must make Create and
// Reschedule atomic with respect to the slot exclusivity rule: under
// concurrent requests for the same (resource, slot), exactly one wins and the
// rest get ErrSlotTaken.
type Engine interface {
	Create(ctx context.Context, params CreateParams) (Appointment, error)
	Get(ctx context.Context, id string) (Appointment, error)
	Transition(ctx context.Context, id string, to Status) (Appointment, error)
	Reschedule(ctx context.Context, id string, newSlot time.Time) (Appointment, error)
	FindUpcoming(ctx context.Context, callerID string, from time.Time) ([]Appointment, error)
	SlotFree(ctx context.Context, resourceID string, slot time.Time) (bool, error)
}
