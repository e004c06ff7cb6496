package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	contractx "github.com/waritk/frontdesk/agent/contract"
)

// Speaker serializes agent speech. Utterances play strictly in enqueue order,
// which is what keeps a tool's filler ahead of the tool's result. Interrupt
// drops the current utterance and the queue unless a tool invocation is
// holding a suppression.
type Speaker struct {
	synth     contractx.Synthesizer
	transport contractx.Transport
	log       zerolog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []string
	playing   bool
	suppress  int
	cancelCur context.CancelFunc
	closed    bool

	loopDone chan struct{}
}

func NewSpeaker(synth contractx.Synthesizer, transport contractx.Transport, log zerolog.Logger) *Speaker {
	s := &Speaker{
		synth:     synth,
		transport: transport,
		log:       log,
		loopDone:  make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start runs the playback loop until Close or ctx cancellation.
func (s *Speaker) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-s.loopDone:
		}
	}()
	go s.run(ctx)
}

// Say enqueues one utterance. Returns immediately.
func (s *Speaker) Say(text string) {
	if text == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, text)
	s.cond.Broadcast()
}

// Interrupt is the barge-in path: it stops the current utterance and flushes
// everything queued. While a suppression is held it does nothing.
func (s *Speaker) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.suppress > 0 {
		return
	}

	s.queue = nil
	if s.cancelCur != nil {
		s.cancelCur()
	}
}

// Suppress blocks barge-ins until the matching Release. Counted, so nested
// holders compose.
func (s *Speaker) Suppress() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppress++
}

func (s *Speaker) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.suppress > 0 {
		s.suppress--
	}
}

// Drain blocks until everything enqueued so far has played or ctx expires.
// Used before teardown so the goodbye is actually heard.
func (s *Speaker) Drain(ctx context.Context) error {
	// Broadcasting under the lock closes the lost-wakeup window between the
	// ctx check and the cond wait.
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for (len(s.queue) > 0 || s.playing) && !s.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	return nil
}

// Close stops the loop and drops anything still queued.
func (s *Speaker) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	if s.cancelCur != nil {
		s.cancelCur()
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	<-s.loopDone
}

func (s *Speaker) run(ctx context.Context) {
	defer close(s.loopDone)

	for {
		uttCtx, cancel := context.WithCancel(ctx)
		text, ok := s.next(ctx, cancel)
		if !ok {
			cancel()
			return
		}

		s.play(uttCtx, text)

		cancel()
		s.mu.Lock()
		s.cancelCur = nil
		s.playing = false
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// next blocks for the next utterance. The dequeue, the playing mark, and the
// cancel registration happen under one lock so Interrupt and Drain always see
// a consistent picture.
func (s *Speaker) next(ctx context.Context, cancel context.CancelFunc) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) == 0 {
		if s.closed || ctx.Err() != nil {
			return "", false
		}
		s.cond.Wait()
	}
	if s.closed {
		return "", false
	}

	text := s.queue[0]
	s.queue = s.queue[1:]
	s.playing = true
	s.cancelCur = cancel
	return text, true
}

func (s *Speaker) play(ctx context.Context, text string) {
	start := time.Now()

	audio, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		s.log.Debug().Err(err).Msg("utterance dropped during synthesis")
		return
	}
	if err := s.transport.PublishAudio(ctx, audio); err != nil {
		s.log.Debug().Err(err).Msg("utterance dropped during publish")
		return
	}

	s.log.Debug().
		Dur("elapsed", time.Since(start)).
		Int("chars", len(text)).
		Msg("utterance played")
}
