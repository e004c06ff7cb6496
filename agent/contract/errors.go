package contract

import "errors"

var (
	// ErrConfiguration is fatal and startup-only: an unknown variant tag or
	// missing collaborator credentials. The process must not start.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrPipelineTimeout marks a conversation stage (recognition, model,
	// synthesis, tool I/O) that exceeded its per-stage deadline.
	ErrPipelineTimeout = errors.New("pipeline stage timed out")

	// ErrToolFailure wraps an invocation error before it is flattened into
	// the failure string handed back to the model layer.
	ErrToolFailure = errors.New("tool execution failed")

	// ErrTransportClosed means the caller left or the room dropped the
	// connection. Terminal for the session.
	ErrTransportClosed = errors.New("transport disconnected")

	ErrModelInvoke = errors.New("model invoke failed")
	ErrValidation  = errors.New("validation failed")
)
