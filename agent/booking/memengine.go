package booking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	contractx "github.com/waritk/frontdesk/agent/contract"
)

// MemEngine keeps appointments in process memory. It enforces the same slot
// exclusivity rule as the Postgres engine under one mutex, which makes it the
// fallback when no database is configured and the double for session tests.
type MemEngine struct {
	mu   sync.Mutex
	rows map[string]*Appointment
	now  func() time.Time
}

var _ Engine = (*MemEngine)(nil)

func NewMemEngine() *MemEngine {
	return &MemEngine{
		rows: make(map[string]*Appointment),
		now:  time.Now,
	}
}

func (e *MemEngine) Create(ctx context.Context, params CreateParams) (Appointment, error) {
	if err := validateCreate(params); err != nil {
		return Appointment{}, err
	}

	slot := params.SlotStart.UTC()
	resource := strings.TrimSpace(params.ResourceID)
	now := e.now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.slotHeldLocked(resource, slot, "") {
		return Appointment{}, fmt.Errorf("%w: resource=%s slot=%s",
			ErrSlotTaken, resource, slot.Format(time.RFC3339))
	}

	appt := &Appointment{
		ID:         uuid.NewString(),
		CallerID:   strings.TrimSpace(params.CallerID),
		ResourceID: resource,
		Service:    strings.TrimSpace(params.Service),
		SlotStart:  slot,
		SlotEnd:    slotEndOrDefault(params).UTC(),
		Status:     StatusBooked,
		Notes:      strings.TrimSpace(params.Notes),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	e.rows[appt.ID] = appt

	return *appt, nil
}

func (e *MemEngine) Get(ctx context.Context, id string) (Appointment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	appt, err := e.fetchLocked(id)
	if err != nil {
		return Appointment{}, err
	}
	return *appt, nil
}

func (e *MemEngine) Transition(ctx context.Context, id string, to Status) (Appointment, error) {
	if !to.Valid() {
		return Appointment{}, fmt.Errorf("%w: status=%s", ErrBadTransition, to)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	appt, err := e.fetchLocked(id)
	if err != nil {
		return Appointment{}, err
	}
	if !CanTransition(appt.Status, to) {
		return Appointment{}, fmt.Errorf("%w: %s -> %s", ErrBadTransition, appt.Status, to)
	}

	appt.Status = to
	appt.UpdatedAt = e.now().UTC()
	return *appt, nil
}

func (e *MemEngine) Reschedule(ctx context.Context, id string, newSlot time.Time) (Appointment, error) {
	if newSlot.IsZero() {
		return Appointment{}, fmt.Errorf("%w: new slot is zero", contractx.ErrValidation)
	}

	slot := newSlot.UTC()

	e.mu.Lock()
	defer e.mu.Unlock()

	appt, err := e.fetchLocked(id)
	if err != nil {
		return Appointment{}, err
	}
	if !appt.Status.Active() {
		return Appointment{}, fmt.Errorf("%w: %s -> %s", ErrBadTransition, appt.Status, StatusRescheduled)
	}
	if e.slotHeldLocked(appt.ResourceID, slot, appt.ID) {
		return Appointment{}, fmt.Errorf("%w: slot=%s", ErrSlotTaken, slot.Format(time.RFC3339))
	}

	length := appt.SlotEnd.Sub(appt.SlotStart)
	appt.SlotStart = slot
	appt.SlotEnd = slot.Add(length)
	appt.Status = StatusRescheduled
	appt.UpdatedAt = e.now().UTC()
	return *appt, nil
}

func (e *MemEngine) FindUpcoming(ctx context.Context, callerID string, from time.Time) ([]Appointment, error) {
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return nil, fmt.Errorf("%w: caller id is empty", contractx.ErrValidation)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Appointment
	for _, appt := range e.rows {
		if appt.CallerID != callerID || !appt.Status.Active() {
			continue
		}
		if appt.SlotStart.Before(from.UTC()) {
			continue
		}
		out = append(out, *appt)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].SlotStart.Before(out[j].SlotStart)
	})
	return out, nil
}

func (e *MemEngine) SlotFree(ctx context.Context, resourceID string, slot time.Time) (bool, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return false, fmt.Errorf("%w: resource id is empty", contractx.ErrValidation)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.slotHeldLocked(resourceID, slot.UTC(), ""), nil
}

func (e *MemEngine) fetchLocked(id string) (*Appointment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: appointment id is empty", contractx.ErrValidation)
	}
	appt, ok := e.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: id=%s", ErrNotFound, id)
	}
	return appt, nil
}

func (e *MemEngine) slotHeldLocked(resourceID string, slot time.Time, excludeID string) bool {
	for _, appt := range e.rows {
		if appt.ID == excludeID {
			continue
		}
		if appt.ResourceID == resourceID && appt.SlotStart.Equal(slot) && appt.Status.Active() {
			return true
		}
	}
	return false
}
