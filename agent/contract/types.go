package contract

import "time"

// MemoryRecord is the persisted per-caller record. The caller identity is an
// opaque stable string (phone number or account email) and is never reused
// across distinct callers.
type MemoryRecord struct {
	CallerID    string            `json:"caller_identity"`
	DisplayName string            `json:"display_name,omitempty"`
	LastSummary string            `json:"last_summary,omitempty"`
	LastCallAt  time.Time         `json:"last_call_at"`
	CallCount   int               `json:"call_count"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TranscriptEvent is a recognized text fragment from the speech collaborator.
// The session acts only on final fragments; interim fragments signal that the
// caller is speaking (barge-in).
type TranscriptEvent struct {
	Text    string    `json:"text"`
	IsFinal bool      `json:"is_final"`
	At      time.Time `json:"at"`
}

// AudioFrame is one chunk of caller audio as delivered by the transport.
type AudioFrame struct {
	Data       []byte
	SampleRate int
}

// ToolRequest is a domain action requested by the model layer. Arguments are
// validated against the tool's declared parameter schema before execution.
type ToolRequest struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult carries the outcome of one invocation back to the model layer.
// Failures travel as the Error string, never as a raw Go error.
type ToolResult struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Reply is one model-layer response: spoken text, tool calls, or both.
type Reply struct {
	Text      string
	ToolCalls []ToolRequest
}
