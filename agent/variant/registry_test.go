package variant

import (
	"errors"
	"testing"

	contractx "github.com/waritk/frontdesk/agent/contract"
)

func TestRegistryRegisterAndResolve(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	if err := registry.Register(Variant{TypeTag: "Hospital", Greeting: "hello"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := registry.Resolve("hospital")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Greeting != "hello" {
		t.Fatalf("got greeting %q, want %q", got.Greeting, "hello")
	}

	// Tags are case-insensitive on both sides.
	if _, err := registry.Resolve(" HOSPITAL "); err != nil {
		t.Fatalf("resolve uppercase: %v", err)
	}
}

func TestRegistryDuplicateTag(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	if err := registry.Register(Variant{TypeTag: "salon"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := registry.Register(Variant{TypeTag: "salon"})
	if !errors.Is(err, ErrDuplicateVariant) {
		t.Fatalf("got %v, want ErrDuplicateVariant", err)
	}
}

func TestRegistryUnknownTag(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	if _, err := registry.Resolve("garage"); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("got %v, want ErrUnknownVariant", err)
	}
}

func TestRegistryAlias(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	if err := registry.Register(Variant{TypeTag: "hotel", Greeting: "welcome"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.RegisterAlias("resort", "hotel"); err != nil {
		t.Fatalf("register alias: %v", err)
	}

	got, err := registry.Resolve("resort")
	if err != nil {
		t.Fatalf("resolve alias: %v", err)
	}
	if got.TypeTag != "hotel" {
		t.Fatalf("alias resolved to %q, want hotel", got.TypeTag)
	}

	if err := registry.RegisterAlias("lodge", "missing"); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("alias to missing tag: got %v, want ErrUnknownVariant", err)
	}
	if err := registry.RegisterAlias("hotel", "hotel"); !errors.Is(err, ErrDuplicateVariant) {
		t.Fatalf("alias shadowing tag: got %v, want ErrDuplicateVariant", err)
	}
}

func TestBuiltinRegistryAliases(t *testing.T) {
	t.Parallel()

	registry, err := NewBuiltinRegistry()
	if err != nil {
		t.Fatalf("builtin registry: %v", err)
	}

	cases := map[string]string{
		"hospital": "hospital",
		"medical":  "hospital",
		"clinic":   "hospital",
		"default":  "hospital",
		"salon":    "salon",
		"beauty":   "salon",
		"spa":      "salon",
		"hotel":    "hotel",
		"resort":   "hotel",
	}

	for tag, want := range cases {
		got, err := registry.Resolve(tag)
		if err != nil {
			t.Fatalf("resolve %q: %v", tag, err)
		}
		if got.TypeTag != want {
			t.Fatalf("resolve %q = %q, want %q", tag, got.TypeTag, want)
		}
		if got.SystemPrompt == "" {
			t.Fatalf("variant %q has an empty system prompt", want)
		}
		if len(got.ToolSet) == 0 {
			t.Fatalf("variant %q has an empty tool set", want)
		}
	}
}

func TestGreetingFor(t *testing.T) {
	t.Parallel()

	v := Variant{
		Greeting:          "Hello, how can I help?",
		ReturningGreeting: "Hi {name}, welcome back!",
	}

	if got := v.GreetingFor(nil); got != v.Greeting {
		t.Fatalf("new caller greeting = %q, want %q", got, v.Greeting)
	}
	if got := v.GreetingFor(&contractx.MemoryRecord{}); got != v.Greeting {
		t.Fatalf("nameless record greeting = %q, want %q", got, v.Greeting)
	}
	if got := v.GreetingFor(&contractx.MemoryRecord{DisplayName: "Omar"}); got != "Hi Omar, welcome back!" {
		t.Fatalf("returning greeting = %q", got)
	}
}
