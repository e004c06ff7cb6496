package variant

import (
	promptx "github.com/waritk/frontdesk/agent/prompt"
)

var commonTools = []string{
	"call.end",
	"caller.update_profile",
	"booking.check_slot",
	"booking.create",
	"booking.cancel",
	"booking.reschedule",
	"booking.find",
}

// NewBuiltinRegistry wires the built-in receptionists and their aliases. The
// hospital variant doubles as the default so an unset or generic deployment
// tag still resolves.
func NewBuiltinRegistry() (*Registry, error) {
	prompts := promptx.LoadPromptSet()
	registry := NewRegistry()

	// Only the hospital routes symptoms to a department before booking.
	hospitalTools := append(append([]string{}, commonTools...), "hospital.suggest_specialty")

	variants := []Variant{
		{
			TypeTag:           "hospital",
			SystemPrompt:      prompts.Hospital,
			Greeting:          "Thank you for calling City Health Clinic. How may I help you today?",
			ReturningGreeting: "Hi {name}, welcome back to City Health Clinic! How can I assist you today?",
			ToolSet:           hospitalTools,
		},
		{
			TypeTag:           "salon",
			SystemPrompt:      prompts.Salon,
			Greeting:          "Thank you for calling Luxe Salon and Spa. What can I do for you today?",
			ReturningGreeting: "Hi {name}, lovely to hear from you again! What can I do for you today?",
			ToolSet:           commonTools,
		},
		{
			TypeTag:           "hotel",
			SystemPrompt:      prompts.Hotel,
			Greeting:          "Thank you for calling The Azure Vista Resort. How may I make your day exceptional?",
			ReturningGreeting: "Welcome back, {name}! It's wonderful to hear from you again. How may I assist you today?",
			ToolSet:           commonTools,
		},
	}

	for _, v := range variants {
		if err := registry.Register(v); err != nil {
			return nil, err
		}
	}

	aliases := map[string]string{
		"medical":     "hospital",
		"clinic":      "hospital",
		"default":     "hospital",
		"beauty":      "salon",
		"spa":         "salon",
		"resort":      "hotel",
		"hospitality": "hotel",
	}

	for alias, tag := range aliases {
		if err := registry.RegisterAlias(alias, tag); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
