package contract

import "context"

// Transport is the real-time room collaborator. The session joins by an
// external room identifier, consumes caller audio, publishes synthesized
// audio, and is notified of caller disconnects asynchronously.
type Transport interface {
	Join(ctx context.Context, roomID string) error
	CallerIdentity() string
	CallerAudio() <-chan AudioFrame
	PublishAudio(ctx context.Context, audio []byte) error
	Disconnected() <-chan struct{}
	Leave(ctx context.Context) error
}

// Recognizer streams recognized text for the active call.
type Recognizer interface {
	Start(ctx context.Context, audio <-chan AudioFrame) error
	Events() <-chan TranscriptEvent
	Close() error
}

// Synthesizer turns agent text into audio for the transport.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Replier is the language-model collaborator scoped to one call. Reply feeds
// a new caller utterance; ResolveTools feeds the results of the tool calls the
// previous reply requested, producing the next spoken response. A Replier is
// used from a single session goroutine and need not be safe for concurrent
// use.
type Replier interface {
	Reply(ctx context.Context, userText string) (Reply, error)
	ResolveTools(ctx context.Context, results []ToolResult) (Reply, error)
}

// Summarizer produces the bounded end-of-call summary persisted to memory.
type Summarizer interface {
	Summarize(ctx context.Context, transcript []string) (string, error)
}
