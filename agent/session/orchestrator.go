package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	bookingx "github.com/waritk/frontdesk/agent/booking"
	contractx "github.com/waritk/frontdesk/agent/contract"
	memoryx "github.com/waritk/frontdesk/agent/memory"
	promptx "github.com/waritk/frontdesk/agent/prompt"
	toolx "github.com/waritk/frontdesk/agent/tool"
	variantx "github.com/waritk/frontdesk/agent/variant"
	logx "github.com/waritk/frontdesk/pkg/logger"
)

const (
	apologyText   = "I'm sorry, I'm having trouble on my end. Could you say that again?"
	maxToolRounds = 4

	defaultStageTimeout = 15 * time.Second
	defaultDrainTimeout = 5 * time.Second
	summaryDeadline     = 2 * time.Minute
)

// ReplierFactory builds the per-call replier once the instructions are known.
// Instructions depend on the memory lookup, so the replier cannot exist before
// the session runs.
type ReplierFactory func(ctx context.Context, instructions string) (contractx.Replier, error)

type Deps struct {
	Transport   contractx.Transport
	Recognizer  contractx.Recognizer
	Synthesizer contractx.Synthesizer
	NewReplier  ReplierFactory
	Summarizer  contractx.Summarizer
	Memory      memoryx.Store
	Booking     bookingx.Engine
	Variant     variantx.Variant

	Now           func() time.Time
	StageTimeout  time.Duration
	DrainTimeout  time.Duration
	RetryBackoff  time.Duration
	UpsertRetries int
}

func (d *Deps) validate() error {
	switch {
	case d.Transport == nil:
		return fmt.Errorf("%w: transport is required", contractx.ErrConfiguration)
	case d.Recognizer == nil:
		return fmt.Errorf("%w: recognizer is required", contractx.ErrConfiguration)
	case d.Synthesizer == nil:
		return fmt.Errorf("%w: synthesizer is required", contractx.ErrConfiguration)
	case d.NewReplier == nil:
		return fmt.Errorf("%w: replier factory is required", contractx.ErrConfiguration)
	case d.Memory == nil:
		return fmt.Errorf("%w: memory store is required", contractx.ErrConfiguration)
	case d.Booking == nil:
		return fmt.Errorf("%w: booking engine is required", contractx.ErrConfiguration)
	case d.Variant.TypeTag == "":
		return fmt.Errorf("%w: variant is required", contractx.ErrConfiguration)
	}

	if d.Now == nil {
		d.Now = time.Now
	}
	if d.StageTimeout <= 0 {
		d.StageTimeout = defaultStageTimeout
	}
	if d.DrainTimeout <= 0 {
		d.DrainTimeout = defaultDrainTimeout
	}
	if d.UpsertRetries <= 0 {
		d.UpsertRetries = 3
	}
	return nil
}

// Session drives one call. Run owns the whole lifecycle; Done closes once the
// background memory write has settled, which is after Run has already
// returned.
type Session struct {
	id       string
	deps     Deps
	log      zerolog.Logger
	speaker  *Speaker
	executor toolx.Executor

	mu           sync.Mutex
	state        State
	callerID     string
	transcript   []string
	callerName   string
	endRequested bool

	done chan struct{}
}

func New(deps Deps) (*Session, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	s := &Session{
		id:    uuid.NewString(),
		deps:  deps,
		state: StateConnecting,
		done:  make(chan struct{}),
	}
	s.log = logx.Session(s.id, deps.Variant.TypeTag)
	s.speaker = NewSpeaker(deps.Synthesizer, deps.Transport, s.log)
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done closes once the session is fully closed, including the background
// summary write. Run returning does not imply Done.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run serves the call from room join to teardown. The summary write continues
// in the background after Run returns; watch Done for full completion.
func (s *Session) Run(ctx context.Context, roomID string) error {
	if err := s.deps.Transport.Join(ctx, roomID); err != nil {
		s.closeWithoutSummary()
		return fmt.Errorf("%w: join room=%s: %v", contractx.ErrTransportClosed, roomID, err)
	}

	s.mu.Lock()
	s.callerID = s.deps.Transport.CallerIdentity()
	s.mu.Unlock()
	s.log = s.log.With().Str("caller_id", s.callerID).Logger()
	s.log.Info().Str("room_id", roomID).Msg("call connected")

	s.speaker.Start(ctx)

	if err := s.deps.Recognizer.Start(ctx, s.deps.Transport.CallerAudio()); err != nil {
		s.log.Error().Err(err).Msg("recognizer failed to start")
		s.teardown(ctx)
		s.finishAsync()
		return fmt.Errorf("start recognizer: %w", err)
	}

	rec := s.lookupMemory(ctx)

	replier, err := s.deps.NewReplier(ctx, promptx.BuildInstructions(s.deps.Variant.SystemPrompt, rec))
	if err != nil {
		s.log.Error().Err(err).Msg("replier construction failed")
		s.teardown(ctx)
		s.finishAsync()
		return fmt.Errorf("build replier: %w", err)
	}

	s.transition(StateGreeting)
	greeting := s.deps.Variant.GreetingFor(rec)
	s.record("agent", greeting)
	s.speaker.Say(greeting)

	s.transition(StateConversing)
	s.converse(ctx, replier)

	s.teardown(ctx)
	s.finishAsync()
	return nil
}

// lookupMemory fetches the caller record before the greeting. A store outage
// degrades to a first-time greeting rather than failing the call.
func (s *Session) lookupMemory(ctx context.Context) *contractx.MemoryRecord {
	s.transition(StateMemoryLookup)

	fetchCtx, cancel := context.WithTimeout(ctx, s.deps.StageTimeout)
	defer cancel()

	rec, ok, err := s.deps.Memory.Fetch(fetchCtx, s.callerID)
	if err != nil {
		s.log.Warn().Err(err).Msg("memory fetch failed, treating caller as new")
		return nil
	}
	if !ok {
		s.log.Info().Msg("first call from this caller")
		return nil
	}

	s.log.Info().
		Int("call_count", rec.CallCount).
		Str("display_name", rec.DisplayName).
		Msg("returning caller")

	s.mu.Lock()
	s.callerName = rec.DisplayName
	s.mu.Unlock()
	return rec
}

func (s *Session) converse(ctx context.Context, replier contractx.Replier) {
	events := s.deps.Recognizer.Events()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("call cancelled")
			return
		case <-s.deps.Transport.Disconnected():
			s.log.Info().Msg("caller disconnected")
			return
		case ev, ok := <-events:
			if !ok {
				s.log.Info().Msg("recognizer stream ended")
				return
			}

			// Barge-in: any caller speech pre-empts whatever the agent is
			// saying, unless a tool holds a suppression.
			s.speaker.Interrupt()

			if !ev.IsFinal || strings.TrimSpace(ev.Text) == "" {
				continue
			}

			s.handleUtterance(ctx, replier, strings.TrimSpace(ev.Text))
			if s.isEndRequested() {
				return
			}
		}
	}
}

func (s *Session) handleUtterance(ctx context.Context, replier contractx.Replier, text string) {
	s.record("caller", text)
	if name := extractName(text); name != "" {
		s.setCallerName(name)
	}

	reply, ok := s.invokeReply(ctx, func(c context.Context) (contractx.Reply, error) {
		return replier.Reply(c, text)
	})
	if !ok {
		s.speaker.Say(apologyText)
		return
	}

	for round := 0; len(reply.ToolCalls) > 0; round++ {
		if round >= maxToolRounds {
			s.log.Warn().Int("rounds", round).Msg("tool round limit reached")
			s.speaker.Say(apologyText)
			return
		}

		results := s.runTools(ctx, reply.ToolCalls)
		if s.disconnected() {
			s.log.Info().Msg("caller hung up during tool invocation")
			return
		}

		reply, ok = s.invokeReply(ctx, func(c context.Context) (contractx.Reply, error) {
			return replier.ResolveTools(c, results)
		})
		if !ok {
			s.speaker.Say(apologyText)
			return
		}
	}

	if reply.Text != "" && !s.disconnected() {
		s.record("agent", reply.Text)
		s.speaker.Say(reply.Text)
	}
}

// disconnected reports, without blocking, whether the caller has hung up.
// Tool invocations always settle, but once the line is dead there is nobody
// to speak to: no further model rounds, no further utterances.
func (s *Session) disconnected() bool {
	select {
	case <-s.deps.Transport.Disconnected():
		return true
	default:
		return false
	}
}

// runTools executes the requested invocations in order. Each gets a fresh
// RunContext and is settled before the next starts, so one tool's suppression
// can never leak into another's window. Disconnects are never observed here:
// an in-flight invocation always settles, and the caller of runTools decides
// whether anything may still be said afterwards.
func (s *Session) runTools(ctx context.Context, calls []contractx.ToolRequest) []contractx.ToolResult {
	if s.executor == nil {
		s.executor = toolx.NewExecutor(toolx.Deps{
			CallerID: s.callerID,
			Booking:  s.deps.Booking,
			Now:      s.deps.Now,
		})
	}

	results := make([]contractx.ToolResult, 0, len(calls))
	for _, call := range calls {
		s.log.Info().Str("tool", call.Name).Msg("tool invocation")

		rc := toolx.NewRunContext(toolx.Hooks{
			Speak:         s.speaker.Say,
			Suppress:      s.speaker.Suppress,
			Release:       s.speaker.Release,
			EndCall:       s.requestEnd,
			SetCallerName: s.setCallerName,
		})
		res := s.executor(ctx, rc, call)
		rc.Settle()

		if res.Error != "" {
			s.log.Warn().Str("tool", call.Name).Str("error", res.Error).Msg("tool failed")
		}
		results = append(results, res)
	}
	return results
}

// invokeReply applies the per-stage timeout with one retry. A second failure
// surfaces as an apology upstream, never as a dead call.
func (s *Session) invokeReply(ctx context.Context, fn func(context.Context) (contractx.Reply, error)) (contractx.Reply, bool) {
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return contractx.Reply{}, false
			case <-time.After(s.retryBackoff(attempt)):
			}
		}

		replyCtx, cancel := context.WithTimeout(ctx, s.deps.StageTimeout)
		reply, err := fn(replyCtx)
		timedOut := errors.Is(replyCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			return reply, true
		}
		if timedOut {
			err = fmt.Errorf("%w: %v", contractx.ErrPipelineTimeout, err)
		}
		s.log.Warn().Err(err).Int("attempt", attempt+1).Msg("model reply failed")
	}
	return contractx.Reply{}, false
}

func (s *Session) teardown(ctx context.Context) {
	s.transition(StateTerminating)

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deps.DrainTimeout)
	if err := s.speaker.Drain(drainCtx); err != nil {
		s.log.Debug().Err(err).Msg("speech drain cut short")
	}
	cancel()

	if err := s.deps.Recognizer.Close(); err != nil {
		s.log.Debug().Err(err).Msg("recognizer close")
	}

	leaveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deps.DrainTimeout)
	if err := s.deps.Transport.Leave(leaveCtx); err != nil {
		s.log.Warn().Err(err).Msg("transport leave")
	}
	cancel()

	s.speaker.Close()
	s.log.Info().Msg("call torn down")
}

// finishAsync hands the summary work to a background goroutine so room
// teardown never waits on the model or the store.
func (s *Session) finishAsync() {
	s.transition(StateSummaryPending)

	s.mu.Lock()
	transcript := append([]string(nil), s.transcript...)
	callerName := s.callerName
	callerID := s.callerID
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		defer s.transition(StateClosed)

		if callerID == "" {
			return
		}

		bg, cancel := context.WithTimeout(context.Background(), summaryDeadline)
		defer cancel()
		s.persistSummary(bg, transcript, callerName)
	}()
}

func (s *Session) closeWithoutSummary() {
	s.transition(StateTerminating)
	s.transition(StateSummaryPending)
	s.transition(StateClosed)
	close(s.done)
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CanTransition(to) {
		// The lifecycle map is wired by this package; a bad edge is a bug.
		s.log.Error().
			Stringer("from", s.state).
			Stringer("to", to).
			Msg("illegal state transition")
		return
	}

	s.log.Debug().Stringer("from", s.state).Stringer("to", to).Msg("state transition")
	s.state = to
}

func (s *Session) record(speaker, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, speaker+": "+text)
}

func (s *Session) setCallerName(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callerName = name
}

func (s *Session) requestEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endRequested = true
}

func (s *Session) isEndRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endRequested
}

// extractName pulls a self-introduction out of an utterance, so the memory
// record gets a name even when the model never calls caller.update_profile.
func extractName(text string) string {
	// Lowercasing can change byte lengths (e.g. a dotted capital I), so the
	// marker offset comes from a fold-insensitive scan of the original text.
	const marker = "my name is "
	idx := -1
	for i := 0; i+len(marker) <= len(text); i++ {
		if strings.EqualFold(text[i:i+len(marker)], marker) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ""
	}

	rest := strings.TrimSpace(text[idx+len(marker):])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ""
	}

	name := strings.Trim(fields[0], ".,!?;:")
	if len(fields) > 1 {
		second := strings.Trim(fields[1], ".,!?;:")
		if r, _ := utf8.DecodeRuneInString(second); second != "" && unicode.IsUpper(r) {
			name += " " + second
		}
	}

	if name == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + name[size:]
}
