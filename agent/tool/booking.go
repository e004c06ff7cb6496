package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	bookingx "github.com/waritk/frontdesk/agent/booking"
	contractx "github.com/waritk/frontdesk/agent/contract"
)

func executeUpdateProfile(rc *RunContext, req contractx.ToolRequest) contractx.ToolResult {
	name, err := stringArg(req.Args, "name")
	if err != nil {
		return failure(req, err)
	}

	rc.SetCallerName(name)
	return contractx.ToolResult{
		ID:     req.ID,
		Name:   req.Name,
		Result: fmt.Sprintf("Noted, the caller's name is %s.", name),
	}
}

func executeCheckSlot(ctx context.Context, deps Deps, rc *RunContext, req contractx.ToolRequest) contractx.ToolResult {
	resourceID, err := stringArg(req.Args, "resource_id")
	if err != nil {
		return failure(req, err)
	}
	slot, err := timeArg(req.Args, "slot_start")
	if err != nil {
		return failure(req, err)
	}

	rc.DisallowInterruptions()
	rc.SpeakFiller("One moment while I check that time...")

	free, err := deps.Booking.SlotFree(ctx, resourceID, slot)
	if err != nil {
		return failure(req, err)
	}

	if !free {
		return result(req, fmt.Sprintf("%s is not available at %s. Offer a different time.", resourceID, speakTime(slot)))
	}
	return result(req, fmt.Sprintf("%s is available at %s.", resourceID, speakTime(slot)))
}

func executeCreate(ctx context.Context, deps Deps, rc *RunContext, req contractx.ToolRequest) contractx.ToolResult {
	resourceID, err := stringArg(req.Args, "resource_id")
	if err != nil {
		return failure(req, err)
	}
	slot, err := timeArg(req.Args, "slot_start")
	if err != nil {
		return failure(req, err)
	}
	service := optionalStringArg(req.Args, "service")
	notes := optionalStringArg(req.Args, "notes")
	slotEnd, err := optionalTimeArg(req.Args, "slot_end")
	if err != nil {
		return failure(req, err)
	}

	rc.DisallowInterruptions()
	rc.SpeakFiller("One moment while I book that for you...")

	appt, err := deps.Booking.Create(ctx, bookingx.CreateParams{
		CallerID:   deps.CallerID,
		ResourceID: resourceID,
		Service:    service,
		SlotStart:  slot,
		SlotEnd:    slotEnd,
		Notes:      notes,
	})
	if errors.Is(err, bookingx.ErrSlotTaken) {
		return result(req, fmt.Sprintf("That time was just taken: %s at %s is no longer free. Apologize and offer another time.",
			resourceID, speakTime(slot)))
	}
	if err != nil {
		return failure(req, err)
	}

	return result(req, fmt.Sprintf("Booked: %s with %s at %s. Confirmation id %s.",
		orDefault(appt.Service, "appointment"), appt.ResourceID, speakTime(appt.SlotStart), appt.ID))
}

func executeCancel(ctx context.Context, deps Deps, rc *RunContext, req contractx.ToolRequest) contractx.ToolResult {
	id, err := stringArg(req.Args, "appointment_id")
	if err != nil {
		return failure(req, err)
	}

	rc.DisallowInterruptions()
	rc.SpeakFiller("One moment while I cancel that...")

	appt, err := deps.Booking.Transition(ctx, id, bookingx.StatusCancelled)
	if errors.Is(err, bookingx.ErrNotFound) {
		return result(req, "No appointment with that id was found. Ask the caller to confirm which booking they mean.")
	}
	if errors.Is(err, bookingx.ErrBadTransition) {
		return result(req, "That appointment is already closed and cannot be cancelled.")
	}
	if err != nil {
		return failure(req, err)
	}

	return result(req, fmt.Sprintf("Cancelled the %s with %s at %s.",
		orDefault(appt.Service, "appointment"), appt.ResourceID, speakTime(appt.SlotStart)))
}

func executeReschedule(ctx context.Context, deps Deps, rc *RunContext, req contractx.ToolRequest) contractx.ToolResult {
	id, err := stringArg(req.Args, "appointment_id")
	if err != nil {
		return failure(req, err)
	}
	slot, err := timeArg(req.Args, "slot_start")
	if err != nil {
		return failure(req, err)
	}

	rc.DisallowInterruptions()
	rc.SpeakFiller("One moment while I move that booking...")

	appt, err := deps.Booking.Reschedule(ctx, id, slot)
	if errors.Is(err, bookingx.ErrSlotTaken) {
		return result(req, fmt.Sprintf("The new time %s is already taken. Apologize and offer another time.", speakTime(slot)))
	}
	if errors.Is(err, bookingx.ErrNotFound) {
		return result(req, "No appointment with that id was found. Ask the caller to confirm which booking they mean.")
	}
	if errors.Is(err, bookingx.ErrBadTransition) {
		return result(req, "That appointment is already closed and cannot be moved.")
	}
	if err != nil {
		return failure(req, err)
	}

	return result(req, fmt.Sprintf("Rescheduled to %s with %s. Confirmation id %s.",
		speakTime(appt.SlotStart), appt.ResourceID, appt.ID))
}

func executeFind(ctx context.Context, deps Deps, rc *RunContext, req contractx.ToolRequest) contractx.ToolResult {
	rc.DisallowInterruptions()
	rc.SpeakFiller("Let me pull up your bookings...")

	appts, err := deps.Booking.FindUpcoming(ctx, deps.CallerID, deps.Now())
	if err != nil {
		return failure(req, err)
	}

	if len(appts) == 0 {
		return result(req, "The caller has no upcoming appointments.")
	}

	var b strings.Builder
	b.WriteString("Upcoming appointments: ")
	for i, appt := range appts {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s with %s at %s (id %s)",
			orDefault(appt.Service, "appointment"), appt.ResourceID, speakTime(appt.SlotStart), appt.ID)
	}
	return result(req, b.String())
}

func result(req contractx.ToolRequest, text string) contractx.ToolResult {
	return contractx.ToolResult{ID: req.ID, Name: req.Name, Result: text}
}

func failure(req contractx.ToolRequest, err error) contractx.ToolResult {
	return contractx.ToolResult{ID: req.ID, Name: req.Name, Error: err.Error()}
}

func stringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%s is empty", key)
	}
	return value, nil
}

func optionalStringArg(args map[string]any, key string) string {
	if raw, ok := args[key]; ok {
		if value, ok := raw.(string); ok {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func optionalTimeArg(args map[string]any, key string) (time.Time, error) {
	if _, ok := args[key]; !ok {
		return time.Time{}, nil
	}
	return timeArg(args, key)
}

func timeArg(args map[string]any, key string) (time.Time, error) {
	value, err := stringArg(args, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC3339 time, got %q", key, value)
	}
	return t.UTC(), nil
}

func speakTime(t time.Time) string {
	return t.UTC().Format("Monday, January 2 at 3:04 PM")
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
