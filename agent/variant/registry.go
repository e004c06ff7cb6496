// Package variant holds the per-deployment receptionist definitions and the
// registry that resolves a configured type tag to one of them.
package variant

import (
	"errors"
	"fmt"
	"strings"

	contractx "github.com/waritk/frontdesk/agent/contract"
)

var (
	ErrDuplicateVariant = errors.New("duplicate variant registration")
	ErrUnknownVariant   = errors.New("unknown variant")
)

// Variant describes one receptionist personality: its prompt, greetings, and
// the tool names exposed to the model.
type Variant struct {
	TypeTag           string
	SystemPrompt      string
	Greeting          string
	ReturningGreeting string
	ToolSet           []string
}

// GreetingFor picks the greeting for a caller. A returning caller with a known
// name gets the returning greeting with {name} substituted.
func (v Variant) GreetingFor(rec *contractx.MemoryRecord) string {
	if rec != nil && strings.TrimSpace(rec.DisplayName) != "" && v.ReturningGreeting != "" {
		return strings.ReplaceAll(v.ReturningGreeting, "{name}", strings.TrimSpace(rec.DisplayName))
	}
	return v.Greeting
}

// Registry maps type tags and aliases to variants. All registration happens
// during startup wiring; Resolve is read-only afterwards, so no locking.
type Registry struct {
	byTag map[string]Variant
}

func NewRegistry() *Registry {
	return &Registry{byTag: make(map[string]Variant)}
}

func (r *Registry) Register(v Variant) error {
	tag := strings.ToLower(strings.TrimSpace(v.TypeTag))
	if tag == "" {
		return fmt.Errorf("%w: variant type tag is empty", contractx.ErrConfiguration)
	}
	if _, ok := r.byTag[tag]; ok {
		return fmt.Errorf("%w: tag=%s", ErrDuplicateVariant, tag)
	}

	v.TypeTag = tag
	r.byTag[tag] = v
	return nil
}

// RegisterAlias makes alias resolve to the variant already registered under
// tag.
func (r *Registry) RegisterAlias(alias, tag string) error {
	alias = strings.ToLower(strings.TrimSpace(alias))
	tag = strings.ToLower(strings.TrimSpace(tag))

	if alias == "" {
		return fmt.Errorf("%w: alias is empty", contractx.ErrConfiguration)
	}
	target, ok := r.byTag[tag]
	if !ok {
		return fmt.Errorf("%w: alias target tag=%s", ErrUnknownVariant, tag)
	}
	if _, ok := r.byTag[alias]; ok {
		return fmt.Errorf("%w: alias=%s", ErrDuplicateVariant, alias)
	}

	r.byTag[alias] = target
	return nil
}

func (r *Registry) Resolve(tag string) (Variant, error) {
	v, ok := r.byTag[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return Variant{}, fmt.Errorf("%w: tag=%s", ErrUnknownVariant, tag)
	}
	return v, nil
}

// Tags returns the registered tags and aliases, for startup logging.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.byTag))
	for tag := range r.byTag {
		tags = append(tags, tag)
	}
	return tags
}
