// Package mock provides test doubles for the stt package interfaces.
//
// A [Session] is driven by the test: transcripts pushed with [Session.Partial]
// or queued in FlushFinals are delivered exactly like a real provider would,
// with the flushed finals emitted on Close.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxcast/pkg/provider/stt"
	"github.com/MrWong99/voxcast/pkg/types"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// NewSession builds the session returned by StartStream. When nil a
	// fresh [Session] from [NewSession] is returned.
	NewSession func() *Session

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	StartStreamCalls []StartStreamCall
	sessions         []*Session
}

// StartStream records the call and returns a new session or StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	var s *Session
	if p.NewSession != nil {
		s = p.NewSession()
	} else {
		s = NewSession()
	}
	p.sessions = append(p.sessions, s)
	return s, nil
}

// CallCount returns the number of StartStream calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

// Sessions returns every session handed out so far.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.SessionHandle.
type Session struct {
	// FlushFinals are emitted on Finals when Close is called, before the
	// channels are closed.
	FlushFinals []types.Transcript

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	partials chan types.Transcript
	finals   chan types.Transcript

	mu         sync.Mutex
	closed     bool
	chunks     [][]byte
	closeCalls int
}

// NewSession returns a session with buffered channels.
func NewSession(flush ...types.Transcript) *Session {
	return &Session{
		FlushFinals: flush,
		partials:    make(chan types.Transcript, 16),
		finals:      make(chan types.Transcript, 16),
	}
}

// Partial emits text on the Partials channel. It is a no-op after Close.
func (s *Session) Partial(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.partials <- types.Transcript{Text: text}
}

// SendAudio records a copy of chunk.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.chunks = append(s.chunks, cp)
	return nil
}

// Partials returns the interim transcript channel.
func (s *Session) Partials() <-chan types.Transcript { return s.partials }

// Finals returns the final transcript channel.
func (s *Session) Finals() <-chan types.Transcript { return s.finals }

// Close emits FlushFinals and closes both channels. Later calls only count.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	if s.closed {
		return nil
	}
	s.closed = true
	for _, t := range s.FlushFinals {
		t.IsFinal = true
		s.finals <- t
	}
	close(s.partials)
	close(s.finals)
	return nil
}

// Chunks returns the audio chunks received so far.
func (s *Session) Chunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// CloseCallCount returns how often Close was called.
func (s *Session) CloseCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

var _ stt.SessionHandle = (*Session)(nil)
