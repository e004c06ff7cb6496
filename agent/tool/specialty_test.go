package tool

import (
	"context"
	"strings"
	"testing"

	contractx "github.com/waritk/frontdesk/agent/contract"
)

func TestDetectSpecialty(t *testing.T) {
	t.Parallel()

	cases := []struct {
		symptoms string
		want     string
	}{
		{"I have chest pain and feel dizzy when I walk", "Cardiology"},
		{"my knee pain got worse after the fall", "Orthopedic"},
		{"the baby needs a vaccination", "Pediatrics"},
		{"I keep getting migraine attacks", "Neurology"},
		{"burning skin rash on my arm", "Dermatology"},
		{"I need an MRI scan of my shoulder", "Radiology"},
		{"I have had a fever since Monday", "General Physician"},
		{"shortness of breath climbing stairs", "Cardiology"},
		{"my car broke down", ""},
		{"   ", ""},
	}

	for _, tc := range cases {
		if got := detectSpecialty(tc.symptoms); got != tc.want {
			t.Errorf("detectSpecialty(%q) = %q, want %q", tc.symptoms, got, tc.want)
		}
	}
}

func TestExecutorSuggestSpecialty(t *testing.T) {
	t.Parallel()

	exec, _ := newTestExecutor(t)
	ctx := context.Background()

	res := exec(ctx, NewRunContext(Hooks{}), contractx.ToolRequest{
		ID:   "t1",
		Name: ToolSuggestSpecialty,
		Args: map[string]any{"symptoms": "my stomach pain will not stop"},
	})
	if res.Error != "" {
		t.Fatalf("suggest specialty: %s", res.Error)
	}
	if !strings.Contains(res.Result, "Gastroenterology") {
		t.Fatalf("result = %q", res.Result)
	}

	// Unmatched symptoms must not fall back to a default department.
	vague := exec(ctx, NewRunContext(Hooks{}), contractx.ToolRequest{
		ID:   "t2",
		Name: ToolSuggestSpecialty,
		Args: map[string]any{"symptoms": "I just feel off somehow"},
	})
	if vague.Error != "" {
		t.Fatalf("vague symptoms: %s", vague.Error)
	}
	if strings.Contains(vague.Result, "General Physician") || !strings.Contains(vague.Result, "No department") {
		t.Fatalf("vague result = %q", vague.Result)
	}

	missing := exec(ctx, NewRunContext(Hooks{}), contractx.ToolRequest{
		ID:   "t3",
		Name: ToolSuggestSpecialty,
	})
	if !strings.Contains(missing.Error, "symptoms is required") {
		t.Fatalf("missing arg error = %q", missing.Error)
	}
}
