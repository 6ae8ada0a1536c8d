package session

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voxcast/pkg/types"
)

// DefaultStubDelay is how long a [StubSession] pretends to listen.
const DefaultStubDelay = 500 * time.Millisecond

// StubSession resolves with a fixed phrase after a delay. Audio is ignored
// and Finish resolves immediately.
type StubSession struct {
	actor  types.ActorID
	phrase string
	delay  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	finish chan struct{}

	finishOnce sync.Once
}

var _ SpeechSession = (*StubSession)(nil)

// NewStubSession returns a stub that answers with phrase after delay. A
// delay <= 0 selects [DefaultStubDelay].
func NewStubSession(actor types.ActorID, phrase string, delay time.Duration) *StubSession {
	if delay <= 0 {
		delay = DefaultStubDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &StubSession{
		actor:  actor,
		phrase: phrase,
		delay:  delay,
		ctx:    ctx,
		cancel: cancel,
		finish: make(chan struct{}),
	}
	return s
}

// Start implements [SpeechSession].
func (s *StubSession) Start(onResult ResultFunc) {
	go func() {
		defer s.cancel()
		t := time.NewTimer(s.delay)
		defer t.Stop()
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
		case <-s.finish:
		}
		if s.ctx.Err() != nil {
			return
		}
		onResult(types.RecognitionResult{Transcript: s.phrase, SessionActor: s.actor})
	}()
}

// Feed implements [SpeechSession]; the stub ignores audio.
func (s *StubSession) Feed([]byte) {}

// Finish implements [SpeechSession].
func (s *StubSession) Finish() {
	s.finishOnce.Do(func() { close(s.finish) })
}

// Cancel implements [SpeechSession].
func (s *StubSession) Cancel() { s.cancel() }
