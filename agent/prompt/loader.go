package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/hospital.txt
	hospitalRaw string

	//go:embed template/salon.txt
	salonRaw string

	//go:embed template/hotel.txt
	hotelRaw string

	//go:embed template/voice_rules.txt
	voiceRulesRaw string

	//go:embed template/returning.txt
	returningRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Hospital   string
	Salon      string
	Hotel      string
	VoiceRules string
	Returning  string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// This is safe to call concurrently; the embed is compile-time, and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Hospital:   strings.TrimSpace(hospitalRaw),
		Salon:      strings.TrimSpace(salonRaw),
		Hotel:      strings.TrimSpace(hotelRaw),
		VoiceRules: strings.TrimSpace(voiceRulesRaw),
		Returning:  strings.TrimSpace(returningRaw),
	}
}
