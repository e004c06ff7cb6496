package prompt

import (
	"strings"

	contractx "github.com/waritk/frontdesk/agent/contract"
)

const defaultTopicHint = "what we discussed last time"

// BuildInstructions assembles the full system prompt for one call: the variant
// prompt, the voice rules, and returning-caller context when a memory record
// with a known name exists.
func BuildInstructions(variantPrompt string, rec *contractx.MemoryRecord) string {
	prompts := LoadPromptSet()

	parts := []string{strings.TrimSpace(variantPrompt), prompts.VoiceRules}

	if rec != nil && strings.TrimSpace(rec.DisplayName) != "" {
		lastSummary := strings.TrimSpace(rec.LastSummary)
		if lastSummary == "" {
			lastSummary = "their previous inquiry"
		}

		injected := prompts.Returning
		injected = strings.ReplaceAll(injected, "{name}", strings.TrimSpace(rec.DisplayName))
		injected = strings.ReplaceAll(injected, "{last_summary}", lastSummary)
		injected = strings.ReplaceAll(injected, "{topic_hint}", TopicHint(lastSummary))
		parts = append(parts, injected)
	}

	return strings.Join(parts, "\n\n")
}

// TopicHint extracts a short phrase from the last call summary for the warm-up
// greeting.
func TopicHint(summary string) string {
	summary = strings.TrimSpace(summary)
	if len(summary) < 10 {
		return defaultTopicHint
	}

	hint := summary
	if len(hint) > 50 {
		hint = strings.TrimSpace(hint[:50])
		for _, sep := range []string{",", ".", " - ", " and "} {
			if idx := strings.Index(hint, sep); idx >= 0 {
				hint = strings.TrimSpace(hint[:idx])
				break
			}
		}
		hint = strings.TrimRight(hint, ".,;:")
	}

	if hint == "" {
		return defaultTopicHint
	}
	return strings.ToLower(hint)
}
