package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	contractx "github.com/waritk/frontdesk/agent/contract"
)

type appointmentRow struct {
	bun.BaseModel `bun:"table:appointments,alias:appointments"`

	ID         string    `bun:"id,pk"`
	CallerID   string    `bun:"caller_id,notnull"`
	ResourceID string    `bun:"resource_id,notnull"`
	Service    string    `bun:"service"`
	SlotStart  time.Time `bun:"slot_start,notnull"`
	SlotEnd    time.Time `bun:"slot_end,notnull"`
	Status     string    `bun:"status,notnull"`
	Notes      string    `bun:"notes"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// activeSlotIndex is what actually enforces slot exclusivity. Every code path
// that claims a slot goes through an insert or update that this index guards,
// so two racing requests can never both hold the same (resource, slot).
const activeSlotIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_appointments_active_slot
ON appointments (resource_id, slot_start)
WHERE status IN ('Booked', 'Scheduled', 'Rescheduled')`

// PostgresEngine enforces the booking invariants in Postgres. Safe for
// concurrent use.
type PostgresEngine struct {
	db  *bun.DB
	now func() time.Time
}

var _ Engine = (*PostgresEngine)(nil)

func NewPostgresEngine(db *bun.DB) (*PostgresEngine, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: nil bun db", contractx.ErrConfiguration)
	}
	return &PostgresEngine{db: db, now: time.Now}, nil
}

// EnsureSchema creates the appointments table and the partial unique index
// over active statuses.
func (e *PostgresEngine) EnsureSchema(ctx context.Context) error {
	if _, err := e.db.NewCreateTable().
		Model((*appointmentRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("%w: create appointments table: %v", ErrUnavailable, err)
	}
	if _, err := e.db.ExecContext(ctx, activeSlotIndex); err != nil {
		return fmt.Errorf("%w: create active slot index: %v", ErrUnavailable, err)
	}
	return nil
}

func (e *PostgresEngine) Create(ctx context.Context, params CreateParams) (Appointment, error) {
	if err := validateCreate(params); err != nil {
		return Appointment{}, err
	}

	now := e.now().UTC()
	row := &appointmentRow{
		ID:         uuid.NewString(),
		CallerID:   strings.TrimSpace(params.CallerID),
		ResourceID: strings.TrimSpace(params.ResourceID),
		Service:    strings.TrimSpace(params.Service),
		SlotStart:  params.SlotStart.UTC(),
		SlotEnd:    slotEndOrDefault(params).UTC(),
		Status:     string(StatusBooked),
		Notes:      strings.TrimSpace(params.Notes),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if _, err := e.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return Appointment{}, fmt.Errorf("%w: resource=%s slot=%s",
				ErrSlotTaken, row.ResourceID, row.SlotStart.Format(time.RFC3339))
		}
		return Appointment{}, fmt.Errorf("%w: insert appointment: %v", ErrUnavailable, err)
	}

	return row.toAppointment(), nil
}

func (e *PostgresEngine) Get(ctx context.Context, id string) (Appointment, error) {
	row, err := e.fetch(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	return row.toAppointment(), nil
}

// Transition moves an appointment to a terminal or rescheduled status. The
// update is conditioned on the status read first, so a concurrent transition
// loses cleanly instead of overwriting.
func (e *PostgresEngine) Transition(ctx context.Context, id string, to Status) (Appointment, error) {
	if !to.Valid() {
		return Appointment{}, fmt.Errorf("%w: status=%s", ErrBadTransition, to)
	}

	row, err := e.fetch(ctx, id)
	if err != nil {
		return Appointment{}, err
	}

	from := Status(row.Status)
	if !CanTransition(from, to) {
		return Appointment{}, fmt.Errorf("%w: %s -> %s", ErrBadTransition, from, to)
	}

	now := e.now().UTC()
	res, err := e.db.NewUpdate().
		Model((*appointmentRow)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return Appointment{}, fmt.Errorf("%w: transition appointment=%s: %v", ErrUnavailable, id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return Appointment{}, fmt.Errorf("%w: %s -> %s raced with another update", ErrBadTransition, from, to)
	}

	row.Status = string(to)
	row.UpdatedAt = now
	return row.toAppointment(), nil
}

// Reschedule moves an active appointment to a new slot. The slot change and
// the status change are one statement, so the partial index arbitrates races
// against both creates and other reschedules.
func (e *PostgresEngine) Reschedule(ctx context.Context, id string, newSlot time.Time) (Appointment, error) {
	if newSlot.IsZero() {
		return Appointment{}, fmt.Errorf("%w: new slot is zero", contractx.ErrValidation)
	}

	now := e.now().UTC()
	res, err := e.db.NewUpdate().
		Model((*appointmentRow)(nil)).
		Set("slot_start = ?", newSlot.UTC()).
		Set("slot_end = ? + (slot_end - slot_start)", newSlot.UTC()).
		Set("status = ?", string(StatusRescheduled)).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(activeStatuses())).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return Appointment{}, fmt.Errorf("%w: slot=%s", ErrSlotTaken, newSlot.UTC().Format(time.RFC3339))
		}
		return Appointment{}, fmt.Errorf("%w: reschedule appointment=%s: %v", ErrUnavailable, id, err)
	}

	if affected, _ := res.RowsAffected(); affected == 0 {
		row, err := e.fetch(ctx, id)
		if err != nil {
			return Appointment{}, err
		}
		return Appointment{}, fmt.Errorf("%w: %s -> %s", ErrBadTransition, row.Status, StatusRescheduled)
	}

	row, err := e.fetch(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	return row.toAppointment(), nil
}

func (e *PostgresEngine) FindUpcoming(ctx context.Context, callerID string, from time.Time) ([]Appointment, error) {
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return nil, fmt.Errorf("%w: caller id is empty", contractx.ErrValidation)
	}

	var rows []appointmentRow
	err := e.db.NewSelect().
		Model(&rows).
		Where("caller_id = ?", callerID).
		Where("slot_start >= ?", from.UTC()).
		Where("status IN (?)", bun.In(activeStatuses())).
		Order("slot_start ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: find upcoming caller=%s: %v", ErrUnavailable, callerID, err)
	}

	out := make([]Appointment, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toAppointment())
	}
	return out, nil
}

func (e *PostgresEngine) SlotFree(ctx context.Context, resourceID string, slot time.Time) (bool, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return false, fmt.Errorf("%w: resource id is empty", contractx.ErrValidation)
	}

	count, err := e.db.NewSelect().
		Model((*appointmentRow)(nil)).
		Where("resource_id = ?", resourceID).
		Where("slot_start = ?", slot.UTC()).
		Where("status IN (?)", bun.In(activeStatuses())).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: slot check resource=%s: %v", ErrUnavailable, resourceID, err)
	}
	return count == 0, nil
}

func (e *PostgresEngine) fetch(ctx context.Context, id string) (*appointmentRow, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: appointment id is empty", contractx.ErrValidation)
	}

	row := new(appointmentRow)
	err := e.db.NewSelect().
		Model(row).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id=%s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: fetch appointment=%s: %v", ErrUnavailable, id, err)
	}
	return row, nil
}

func (r *appointmentRow) toAppointment() Appointment {
	return Appointment{
		ID:         r.ID,
		CallerID:   r.CallerID,
		ResourceID: r.ResourceID,
		Service:    r.Service,
		SlotStart:  r.SlotStart,
		SlotEnd:    r.SlotEnd,
		Status:     Status(r.Status),
		Notes:      r.Notes,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func validateCreate(params CreateParams) error {
	if strings.TrimSpace(params.CallerID) == "" {
		return fmt.Errorf("%w: caller id is empty", contractx.ErrValidation)
	}
	if strings.TrimSpace(params.ResourceID) == "" {
		return fmt.Errorf("%w: resource id is empty", contractx.ErrValidation)
	}
	if params.SlotStart.IsZero() {
		return fmt.Errorf("%w: slot start is zero", contractx.ErrValidation)
	}
	if !params.SlotEnd.IsZero() && !params.SlotEnd.After(params.SlotStart) {
		return fmt.Errorf("%w: slot end precedes slot start", contractx.ErrValidation)
	}
	return nil
}

func slotEndOrDefault(params CreateParams) time.Time {
	if params.SlotEnd.IsZero() {
		return params.SlotStart.Add(DefaultSlotLength)
	}
	return params.SlotEnd
}

func activeStatuses() []string {
	return []string{string(StatusBooked), string(StatusScheduled), string(StatusRescheduled)}
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}
