package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	bookingx "github.com/waritk/frontdesk/agent/booking"
	contractx "github.com/waritk/frontdesk/agent/contract"
	memoryx "github.com/waritk/frontdesk/agent/memory"
	toolx "github.com/waritk/frontdesk/agent/tool"
	variantx "github.com/waritk/frontdesk/agent/variant"
)

type fakeRecognizer struct {
	events    chan contractx.TranscriptEvent
	closeOnce sync.Once
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{events: make(chan contractx.TranscriptEvent, 16)}
}

func (r *fakeRecognizer) Start(ctx context.Context, audio <-chan contractx.AudioFrame) error {
	return nil
}

func (r *fakeRecognizer) Events() <-chan contractx.TranscriptEvent { return r.events }

func (r *fakeRecognizer) Close() error {
	r.closeOnce.Do(func() { close(r.events) })
	return nil
}

func (r *fakeRecognizer) hear(text string) {
	r.events <- contractx.TranscriptEvent{Text: text, IsFinal: true, At: time.Now()}
}

type fakeReplier struct {
	replyFn   func(ctx context.Context, text string) (contractx.Reply, error)
	resolveFn func(ctx context.Context, results []contractx.ToolResult) (contractx.Reply, error)
}

func (f *fakeReplier) Reply(ctx context.Context, text string) (contractx.Reply, error) {
	return f.replyFn(ctx, text)
}

func (f *fakeReplier) ResolveTools(ctx context.Context, results []contractx.ToolResult) (contractx.Reply, error) {
	if f.resolveFn == nil {
		return contractx.Reply{Text: "done"}, nil
	}
	return f.resolveFn(ctx, results)
}

type fakeSummarizer struct {
	fn func(ctx context.Context, transcript []string) (string, error)
}

func (f *fakeSummarizer) Summarize(ctx context.Context, transcript []string) (string, error) {
	if f.fn == nil {
		return "model summary", nil
	}
	return f.fn(ctx, transcript)
}

// blockingStore wraps a MemStore so tests can hold an upsert open and observe
// that teardown never waits on it.
type blockingStore struct {
	*memoryx.MemStore
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingStore() *blockingStore {
	return &blockingStore{
		MemStore: memoryx.NewMemStore(),
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (s *blockingStore) Upsert(ctx context.Context, params memoryx.UpsertParams) error {
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.MemStore.Upsert(ctx, params)
}

func testVariant(t *testing.T) variantx.Variant {
	t.Helper()
	registry, err := variantx.NewBuiltinRegistry()
	if err != nil {
		t.Fatalf("builtin registry: %v", err)
	}
	v, err := registry.Resolve("hospital")
	if err != nil {
		t.Fatalf("resolve hospital: %v", err)
	}
	return v
}

func testDeps(t *testing.T, transport *recordingTransport, recognizer *fakeRecognizer, replier contractx.Replier) Deps {
	t.Helper()
	return Deps{
		Transport:   transport,
		Recognizer:  recognizer,
		Synthesizer: newGatedSynth(false),
		NewReplier: func(ctx context.Context, instructions string) (contractx.Replier, error) {
			return replier, nil
		},
		Summarizer:   &fakeSummarizer{},
		Memory:       memoryx.NewMemStore(),
		Booking:      bookingx.NewMemEngine(),
		Variant:      testVariant(t),
		StageTimeout: 2 * time.Second,
		DrainTimeout: 2 * time.Second,
		RetryBackoff: time.Millisecond,
	}
}

func waitPublished(transport *recordingTransport, n int) {
	deadline := time.After(5 * time.Second)
	for len(transport.snapshot()) < n {
		select {
		case <-deadline:
			return
		case <-time.After(time.Millisecond):
		}
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session never closed")
	}
}

func TestRunGreetsNewCallerAndSavesMemory(t *testing.T) {
	t.Parallel()

	transport := newRecordingTransport("caller-1")
	recognizer := newFakeRecognizer()
	replier := &fakeReplier{
		replyFn: func(ctx context.Context, text string) (contractx.Reply, error) {
			if strings.Contains(text, "bye") {
				return contractx.Reply{ToolCalls: []contractx.ToolRequest{{ID: "t1", Name: toolx.ToolEndCall}}}, nil
			}
			return contractx.Reply{Text: "We are open nine to five."}, nil
		},
		resolveFn: func(ctx context.Context, results []contractx.ToolResult) (contractx.Reply, error) {
			return contractx.Reply{Text: "Goodbye, have a great day!"}, nil
		},
	}

	deps := testDeps(t, transport, recognizer, replier)
	s, err := New(deps)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	// Speak only after the greeting has played, otherwise barge-in would
	// flush it before the first assertion can see it.
	go func() {
		waitPublished(transport, 1)
		recognizer.hear("what are your hours")
		waitPublished(transport, 2)
		recognizer.hear("ok bye")
	}()

	if err := s.Run(context.Background(), "room-1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	waitDone(t, s)

	published := transport.snapshot()
	if len(published) == 0 || !strings.Contains(published[0], "Thank you for calling City Health Clinic") {
		t.Fatalf("greeting not spoken first: %v", published)
	}
	if published[len(published)-1] != "Goodbye, have a great day!" {
		t.Fatalf("goodbye not spoken last: %v", published)
	}
	if !transport.left {
		t.Fatalf("transport never left the room")
	}
	if got := s.State(); got != StateClosed {
		t.Fatalf("state = %s, want closed", got)
	}

	rec, ok, err := deps.Memory.Fetch(context.Background(), "caller-1")
	if err != nil || !ok {
		t.Fatalf("memory after call: ok=%v err=%v", ok, err)
	}
	if rec.CallCount != 1 || rec.LastSummary != "model summary" {
		t.Fatalf("memory record = %+v", rec)
	}
}

func TestRunReturningCallerGreeting(t *testing.T) {
	t.Parallel()

	transport := newRecordingTransport("caller-7")
	recognizer := newFakeRecognizer()
	replier := &fakeReplier{
		replyFn: func(ctx context.Context, text string) (contractx.Reply, error) {
			return contractx.Reply{Text: "ok"}, nil
		},
	}

	deps := testDeps(t, transport, recognizer, replier)
	if err := deps.Memory.Upsert(context.Background(), memoryx.UpsertParams{
		CallerID:    "caller-7",
		DisplayName: "Priya",
		Summary:     "Asked about flu shots.",
	}); err != nil {
		t.Fatalf("seed memory: %v", err)
	}

	var gotInstructions string
	deps.NewReplier = func(ctx context.Context, instructions string) (contractx.Replier, error) {
		gotInstructions = instructions
		return replier, nil
	}

	s, err := New(deps)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		transport.hangUp()
	}()

	if err := s.Run(context.Background(), "room-1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	waitDone(t, s)

	published := transport.snapshot()
	if len(published) == 0 || !strings.Contains(published[0], "Priya") {
		t.Fatalf("returning greeting missing name: %v", published)
	}
	if !strings.Contains(gotInstructions, "RETURNING CALLER CONTEXT") || !strings.Contains(gotInstructions, "flu shots") {
		t.Fatalf("instructions missing returning context: %q", gotInstructions)
	}

	rec, _, err := deps.Memory.Fetch(context.Background(), "caller-7")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if rec.CallCount != 2 {
		t.Fatalf("call count = %d, want 2", rec.CallCount)
	}
	if rec.DisplayName != "Priya" {
		t.Fatalf("display name = %q", rec.DisplayName)
	}
}

func TestRunMemoryOutageDegradesToNewCaller(t *testing.T) {
	t.Parallel()

	transport := newRecordingTransport("caller-9")
	recognizer := newFakeRecognizer()
	replier := &fakeReplier{
		replyFn: func(ctx context.Context, text string) (contractx.Reply, error) {
			return contractx.Reply{Text: "ok"}, nil
		},
	}

	deps := testDeps(t, transport, recognizer, replier)
	deps.Memory = failingFetchStore{}

	s, err := New(deps)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		transport.hangUp()
	}()

	if err := s.Run(context.Background(), "room-1"); err != nil {
		t.Fatalf("run must not fail on a store outage: %v", err)
	}
	waitDone(t, s)

	published := transport.snapshot()
	if len(published) == 0 || strings.Contains(published[0], "welcome back") {
		t.Fatalf("outage must yield the first-time greeting: %v", published)
	}
}

type failingFetchStore struct{}

func (failingFetchStore) Fetch(ctx context.Context, callerID string) (*contractx.MemoryRecord, bool, error) {
	return nil, false, memoryx.ErrStoreUnavailable
}

func (failingFetchStore) Upsert(ctx context.Context, params memoryx.UpsertParams) error {
	return memoryx.ErrStoreUnavailable
}

func TestRunTeardownDoesNotWaitForSummary(t *testing.T) {
	t.Parallel()

	transport := newRecordingTransport("caller-3")
	recognizer := newFakeRecognizer()
	replier := &fakeReplier{
		replyFn: func(ctx context.Context, text string) (contractx.Reply, error) {
			return contractx.Reply{Text: "ok"}, nil
		},
	}

	deps := testDeps(t, transport, recognizer, replier)
	store := newBlockingStore()
	deps.Memory = store

	s, err := New(deps)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		transport.hangUp()
	}()

	if err := s.Run(context.Background(), "room-1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Run returned while the upsert is still in flight.
	select {
	case <-store.started:
	case <-time.After(2 * time.Second):
		t.Fatal("upsert never started")
	}
	if got := s.State(); got != StateSummaryPending {
		t.Fatalf("state after run = %s, want summary_pending", got)
	}
	select {
	case <-s.Done():
		t.Fatal("done closed before the store finished")
	default:
	}

	close(store.release)
	waitDone(t, s)

	if got := s.State(); got != StateClosed {
		t.Fatalf("state = %s, want closed", got)
	}
	rec, ok, err := store.MemStore.Fetch(context.Background(), "caller-3")
	if err != nil || !ok {
		t.Fatalf("memory after release: ok=%v err=%v", ok, err)
	}
	if rec.CallCount != 1 {
		t.Fatalf("call count = %d, want 1", rec.CallCount)
	}
}

func TestRunModelFailureSpeaksApology(t *testing.T) {
	t.Parallel()

	transport := newRecordingTransport("caller-4")
	recognizer := newFakeRecognizer()

	var attempts int
	var mu sync.Mutex
	replier := &fakeReplier{
		replyFn: func(ctx context.Context, text string) (contractx.Reply, error) {
			mu.Lock()
			attempts++
			mu.Unlock()
			return contractx.Reply{}, contractx.ErrModelInvoke
		},
	}

	deps := testDeps(t, transport, recognizer, replier)
	s, err := New(deps)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	recognizer.hear("hello there")
	go func() {
		time.Sleep(100 * time.Millisecond)
		transport.hangUp()
	}()

	if err := s.Run(context.Background(), "room-1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	waitDone(t, s)

	mu.Lock()
	gotAttempts := attempts
	mu.Unlock()
	if gotAttempts != 2 {
		t.Fatalf("reply attempts = %d, want exactly one retry", gotAttempts)
	}

	published := transport.snapshot()
	var apologized bool
	for _, text := range published {
		if text == apologyText {
			apologized = true
		}
	}
	if !apologized {
		t.Fatalf("no apology spoken after model failure: %v", published)
	}
}

func TestRunConcurrentBookingConflict(t *testing.T) {
	t.Parallel()

	engine := bookingx.NewMemEngine()
	slotArg := "2026-03-12T10:00:00Z"

	runCaller := func(callerID string) (*Session, *recordingTransport, error) {
		transport := newRecordingTransport(callerID)
		recognizer := newFakeRecognizer()
		replier := &fakeReplier{
			replyFn: func(ctx context.Context, text string) (contractx.Reply, error) {
				return contractx.Reply{ToolCalls: []contractx.ToolRequest{{
					ID:   "t1",
					Name: toolx.ToolCreate,
					Args: map[string]any{"resource_id": "dr-1", "slot_start": slotArg},
				}}}, nil
			},
			resolveFn: func(ctx context.Context, results []contractx.ToolResult) (contractx.Reply, error) {
				return contractx.Reply{Text: results[0].Result}, nil
			},
		}

		deps := testDeps(t, transport, recognizer, replier)
		deps.Booking = engine

		s, err := New(deps)
		if err != nil {
			return nil, nil, err
		}

		recognizer.hear("book me with doctor one at ten")
		go func() {
			time.Sleep(150 * time.Millisecond)
			transport.hangUp()
		}()
		return s, transport, s.Run(context.Background(), "room-"+callerID)
	}

	var wg sync.WaitGroup
	sessions := make([]*Session, 2)
	transports := make([]*recordingTransport, 2)
	errs := make([]error, 2)
	for i, caller := range []string{"caller-a", "caller-b"} {
		wg.Add(1)
		go func(i int, caller string) {
			defer wg.Done()
			sessions[i], transports[i], errs[i] = runCaller(caller)
		}(i, caller)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("session %d: %v", i, err)
		}
		waitDone(t, sessions[i])
	}

	// Exactly one active appointment exists for the contested slot.
	slot := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)
	free, err := engine.SlotFree(context.Background(), "dr-1", slot)
	if err != nil {
		t.Fatalf("slot check: %v", err)
	}
	if free {
		t.Fatal("slot still free after two booking attempts")
	}

	var booked, refused int
	for _, transport := range transports {
		for _, text := range transport.snapshot() {
			if strings.Contains(text, "Booked:") {
				booked++
			}
			if strings.Contains(text, "no longer free") {
				refused++
			}
		}
	}
	if booked != 1 || refused != 1 {
		t.Fatalf("booked=%d refused=%d, want exactly one of each", booked, refused)
	}
}

func TestRunDisconnectDuringToolSettlesSilently(t *testing.T) {
	t.Parallel()

	transport := newRecordingTransport("caller-5")
	recognizer := newFakeRecognizer()

	engine := &gatedEngine{Engine: bookingx.NewMemEngine(), gate: make(chan struct{})}

	var resolves int
	var mu sync.Mutex
	replier := &fakeReplier{
		replyFn: func(ctx context.Context, text string) (contractx.Reply, error) {
			return contractx.Reply{ToolCalls: []contractx.ToolRequest{{
				ID:   "t1",
				Name: toolx.ToolCreate,
				Args: map[string]any{"resource_id": "dr-1", "slot_start": "2026-03-12T10:00:00Z"},
			}}}, nil
		},
		resolveFn: func(ctx context.Context, results []contractx.ToolResult) (contractx.Reply, error) {
			mu.Lock()
			resolves++
			mu.Unlock()
			return contractx.Reply{Text: "All set, see you then."}, nil
		},
	}

	deps := testDeps(t, transport, recognizer, replier)
	deps.Booking = engine

	s, err := New(deps)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	recognizer.hear("book me in")
	go func() {
		// Hang up while the create is blocked, then let it finish.
		<-engine.entered()
		transport.hangUp()
		close(engine.gate)
	}()

	if err := s.Run(context.Background(), "room-1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	waitDone(t, s)

	// The in-flight create settles even though the caller is gone.
	slot := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)
	free, err := engine.SlotFree(context.Background(), "dr-1", slot)
	if err != nil {
		t.Fatalf("slot check: %v", err)
	}
	if free {
		t.Fatal("tool invocation did not settle: slot never booked")
	}

	// But a dead line gets no further model rounds and no further speech.
	mu.Lock()
	got := resolves
	mu.Unlock()
	if got != 0 {
		t.Fatalf("model re-invoked %d time(s) after the caller hung up", got)
	}
	for _, text := range transport.snapshot() {
		if strings.Contains(text, "All set") {
			t.Fatalf("agent spoke after the caller hung up: %q", text)
		}
	}
}

type gatedEngine struct {
	bookingx.Engine
	gate    chan struct{}
	enterMu sync.Mutex
	enterCh chan struct{}
	seen    bool
}

func (e *gatedEngine) entered() <-chan struct{} {
	e.enterMu.Lock()
	defer e.enterMu.Unlock()
	if e.enterCh == nil {
		e.enterCh = make(chan struct{})
	}
	return e.enterCh
}

func (e *gatedEngine) Create(ctx context.Context, params bookingx.CreateParams) (bookingx.Appointment, error) {
	e.enterMu.Lock()
	if e.enterCh == nil {
		e.enterCh = make(chan struct{})
	}
	if !e.seen {
		e.seen = true
		close(e.enterCh)
	}
	e.enterMu.Unlock()

	<-e.gate
	return e.Engine.Create(ctx, params)
}

func TestRunJoinFailure(t *testing.T) {
	t.Parallel()

	transport := newRecordingTransport("caller-6")
	transport.joinErr = errors.New("room full")
	recognizer := newFakeRecognizer()
	replier := &fakeReplier{
		replyFn: func(ctx context.Context, text string) (contractx.Reply, error) {
			return contractx.Reply{Text: "ok"}, nil
		},
	}

	s, err := New(testDeps(t, transport, recognizer, replier))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	err = s.Run(context.Background(), "room-1")
	if !errors.Is(err, contractx.ErrTransportClosed) {
		t.Fatalf("run error = %v, want ErrTransportClosed", err)
	}
	waitDone(t, s)
	if got := s.State(); got != StateClosed {
		t.Fatalf("state = %s, want closed", got)
	}
}

func TestRunSummarizerFailureFallsBack(t *testing.T) {
	t.Parallel()

	transport := newRecordingTransport("caller-8")
	recognizer := newFakeRecognizer()
	replier := &fakeReplier{
		replyFn: func(ctx context.Context, text string) (contractx.Reply, error) {
			return contractx.Reply{Text: "Sure, noted."}, nil
		},
	}

	deps := testDeps(t, transport, recognizer, replier)
	deps.Summarizer = &fakeSummarizer{
		fn: func(ctx context.Context, transcript []string) (string, error) {
			return "", contractx.ErrModelInvoke
		},
	}

	s, err := New(deps)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	recognizer.hear("I would like to reschedule my cleaning")
	go func() {
		time.Sleep(100 * time.Millisecond)
		transport.hangUp()
	}()

	if err := s.Run(context.Background(), "room-1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	waitDone(t, s)

	rec, ok, err := deps.Memory.Fetch(context.Background(), "caller-8")
	if err != nil || !ok {
		t.Fatalf("memory: ok=%v err=%v", ok, err)
	}
	if !strings.Contains(rec.LastSummary, "reschedule my cleaning") {
		t.Fatalf("fallback summary = %q", rec.LastSummary)
	}
}

func TestRunCapturesSpokenName(t *testing.T) {
	t.Parallel()

	transport := newRecordingTransport("caller-10")
	recognizer := newFakeRecognizer()
	replier := &fakeReplier{
		replyFn: func(ctx context.Context, text string) (contractx.Reply, error) {
			return contractx.Reply{Text: "Nice to meet you."}, nil
		},
	}

	deps := testDeps(t, transport, recognizer, replier)
	s, err := New(deps)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	recognizer.hear("hello, my name is Omar")
	go func() {
		time.Sleep(100 * time.Millisecond)
		transport.hangUp()
	}()

	if err := s.Run(context.Background(), "room-1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	waitDone(t, s)

	rec, ok, err := deps.Memory.Fetch(context.Background(), "caller-10")
	if err != nil || !ok {
		t.Fatalf("memory: ok=%v err=%v", ok, err)
	}
	if rec.DisplayName != "Omar" {
		t.Fatalf("display name = %q, want Omar", rec.DisplayName)
	}
}
