package tool

import "sync"

// Hooks are the session capabilities a tool invocation may use. All funcs are
// optional; a nil hook makes the corresponding call a no-op.
type Hooks struct {
	// Speak enqueues a filler utterance while the tool works.
	Speak func(text string)
	// Suppress and Release bracket an interruption-suppressed window.
	Suppress func()
	Release  func()
	// EndCall asks the session to wind down after the current reply.
	EndCall func()
	// SetCallerName records a name the caller gave during the conversation.
	SetCallerName func(name string)
}

// RunContext is handed to exactly one tool invocation. Suppression requested
// through it is scoped to that invocation: Settle releases it no matter how
// the tool exited, so a tool can never leave the session uninterruptible.
type RunContext struct {
	hooks Hooks

	mu         sync.Mutex
	suppressed bool
	settled    bool
}

func NewRunContext(hooks Hooks) *RunContext {
	return &RunContext{hooks: hooks}
}

// SpeakFiller speaks a short acknowledgment without waiting for the tool.
func (rc *RunContext) SpeakFiller(text string) {
	if rc.hooks.Speak != nil && text != "" {
		rc.hooks.Speak(text)
	}
}

// DisallowInterruptions keeps barge-ins from cancelling speech until the
// invocation settles. Idempotent within one invocation.
func (rc *RunContext) DisallowInterruptions() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.settled || rc.suppressed {
		return
	}
	rc.suppressed = true
	if rc.hooks.Suppress != nil {
		rc.hooks.Suppress()
	}
}

// EndCall marks the call for termination after the pending reply is spoken.
func (rc *RunContext) EndCall() {
	if rc.hooks.EndCall != nil {
		rc.hooks.EndCall()
	}
}

// SetCallerName stores the caller's self-reported name for the end-of-call
// memory write.
func (rc *RunContext) SetCallerName(name string) {
	if rc.hooks.SetCallerName != nil && name != "" {
		rc.hooks.SetCallerName(name)
	}
}

// Settle releases any suppression this invocation holds. The session calls it
// after the tool returns; calling it twice is safe.
func (rc *RunContext) Settle() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.settled {
		return
	}
	rc.settled = true
	if rc.suppressed {
		rc.suppressed = false
		if rc.hooks.Release != nil {
			rc.hooks.Release()
		}
	}
}
