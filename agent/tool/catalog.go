// Package tool defines the receptionist tool surface: the schema the model
// sees and the executors that back it with the booking engine and caller
// memory.
package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	bookingx "github.com/waritk/frontdesk/agent/booking"
	contractx "github.com/waritk/frontdesk/agent/contract"
)

const (
	ToolEndCall       = "call.end"
	ToolUpdateProfile = "caller.update_profile"
	ToolCheckSlot     = "booking.check_slot"
	ToolCreate        = "booking.create"
	ToolCancel        = "booking.cancel"
	ToolReschedule    = "booking.reschedule"
	ToolFind          = "booking.find"

	// ToolSuggestSpecialty is hospital-only: it maps described symptoms to a
	// department before the model offers a doctor.
	ToolSuggestSpecialty = "hospital.suggest_specialty"
)

// Executor runs one tool request. It never returns an error: failures are
// reported through ToolResult.Error so the model can recover conversationally.
type Executor func(ctx context.Context, rc *RunContext, req contractx.ToolRequest) contractx.ToolResult

// Deps binds one call's executor to its collaborators. Profile updates flow
// through the RunContext so the session folds them into its single
// end-of-call memory write.
type Deps struct {
	CallerID string
	Booking  bookingx.Engine
	Now      func() time.Time
}

func NewExecutor(deps Deps) Executor {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return func(ctx context.Context, rc *RunContext, req contractx.ToolRequest) contractx.ToolResult {
		switch req.Name {
		case ToolEndCall:
			rc.EndCall()
			return contractx.ToolResult{ID: req.ID, Name: req.Name, Result: "Ending the call after this reply."}
		case ToolUpdateProfile:
			return executeUpdateProfile(rc, req)
		case ToolCheckSlot:
			return executeCheckSlot(ctx, deps, rc, req)
		case ToolCreate:
			return executeCreate(ctx, deps, rc, req)
		case ToolCancel:
			return executeCancel(ctx, deps, rc, req)
		case ToolReschedule:
			return executeReschedule(ctx, deps, rc, req)
		case ToolFind:
			return executeFind(ctx, deps, rc, req)
		case ToolSuggestSpecialty:
			return executeSuggestSpecialty(req)
		default:
			return contractx.ToolResult{
				ID:    req.ID,
				Name:  req.Name,
				Error: fmt.Sprintf("tool=%s is not available", req.Name),
			}
		}
	}
}

// InfosFor maps a variant's tool set to the schema handed to the model.
// Unknown names are skipped so a variant cannot advertise a tool that has no
// executor.
func InfosFor(toolSet []string) []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, 0, len(toolSet))
	for _, name := range toolSet {
		if info, ok := toolInfos[name]; ok {
			out = append(out, info)
		}
	}
	return out
}

var toolInfos = map[string]*schema.ToolInfo{
	ToolEndCall: {
		Name: ToolEndCall,
		Desc: "End the call politely once the caller is done. Say goodbye in the same reply.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"reason": {Type: schema.String, Desc: "Short reason the call is ending"},
		}),
	},
	ToolUpdateProfile: {
		Name: ToolUpdateProfile,
		Desc: "Record the caller's name when they introduce themselves.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"name": {Type: schema.String, Desc: "The caller's name as they said it", Required: true},
		}),
	},
	ToolCheckSlot: {
		Name: ToolCheckSlot,
		Desc: "Check whether a resource is free at a given time before promising it.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"resource_id": {Type: schema.String, Desc: "Doctor, stylist, or room identifier", Required: true},
			"slot_start":  {Type: schema.String, Desc: "Slot start time in RFC3339, e.g. 2026-03-12T10:00:00Z", Required: true},
		}),
	},
	ToolCreate: {
		Name: ToolCreate,
		Desc: "Book an appointment after the caller has confirmed the details.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"resource_id": {Type: schema.String, Desc: "Doctor, stylist, or room identifier", Required: true},
			"slot_start":  {Type: schema.String, Desc: "Slot start time in RFC3339", Required: true},
			"slot_end":    {Type: schema.String, Desc: "Slot end time in RFC3339, defaults to thirty minutes after the start"},
			"service":     {Type: schema.String, Desc: "Service being booked"},
			"notes":       {Type: schema.String, Desc: "Extra notes from the caller"},
		}),
	},
	ToolCancel: {
		Name: ToolCancel,
		Desc: "Cancel one of the caller's appointments after they confirm which one.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"appointment_id": {Type: schema.String, Desc: "Identifier from booking.find", Required: true},
		}),
	},
	ToolReschedule: {
		Name: ToolReschedule,
		Desc: "Move one of the caller's appointments to a new time after they confirm.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"appointment_id": {Type: schema.String, Desc: "Identifier from booking.find", Required: true},
			"slot_start":     {Type: schema.String, Desc: "New slot start time in RFC3339", Required: true},
		}),
	},
	ToolFind: {
		Name:        ToolFind,
		Desc:        "List the caller's upcoming appointments.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	},
	ToolSuggestSpecialty: {
		Name: ToolSuggestSpecialty,
		Desc: "Map the caller's symptoms to a medical department. Use before offering a doctor when the caller has not named one.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"symptoms": {Type: schema.String, Desc: "The symptoms in the caller's own words", Required: true},
		}),
	},
}
