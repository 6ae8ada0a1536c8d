package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/voxcast/internal/transcript"
	"github.com/MrWong99/voxcast/pkg/provider/stt"
	"github.com/MrWong99/voxcast/pkg/types"
)

// DefaultMaxListen caps a listening session.
const DefaultMaxListen = 6 * time.Second

// EngineConfig configures engine sessions.
type EngineConfig struct {
	Provider stt.Provider
	Stream   stt.StreamConfig

	// MaxListen bounds the session. Zero selects [DefaultMaxListen].
	MaxListen time.Duration

	// Recognises reports whether a normalized partial transcript already
	// resolves to a spell, which ends the session early. May be nil.
	Recognises func(normalized string) bool

	// Notify receives problems worth telling the actor about. May be nil.
	Notify NoticeFunc
}

// EngineSession streams audio to an STT provider. The result is the first
// partial that resolves to a spell or, once listening ends, the joined
// finals.
type EngineSession struct {
	actor types.ActorID
	cfg   EngineConfig

	frames chan []byte
	finish chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	finishOnce sync.Once
}

var _ SpeechSession = (*EngineSession)(nil)

// NewEngineSession returns an unstarted session for actor.
func NewEngineSession(actor types.ActorID, cfg EngineConfig) *EngineSession {
	if cfg.MaxListen <= 0 {
		cfg.MaxListen = DefaultMaxListen
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EngineSession{
		actor:  actor,
		cfg:    cfg,
		frames: make(chan []byte, 64),
		finish: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start implements [SpeechSession].
func (s *EngineSession) Start(onResult ResultFunc) {
	go s.run(onResult)
}

// Feed implements [SpeechSession]. Frames arriving faster than the provider
// accepts them are dropped.
func (s *EngineSession) Feed(chunk []byte) {
	select {
	case s.frames <- chunk:
	case <-s.ctx.Done():
	default:
		slog.Debug("session: audio frame dropped", "actor", s.actor)
	}
}

// Finish implements [SpeechSession].
func (s *EngineSession) Finish() {
	s.finishOnce.Do(func() { close(s.finish) })
}

// Cancel implements [SpeechSession].
func (s *EngineSession) Cancel() {
	s.cancel()
}

func (s *EngineSession) run(onResult ResultFunc) {
	defer s.cancel()

	handle, err := s.cfg.Provider.StartStream(s.ctx, s.cfg.Stream)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		slog.Warn("session: speech engine failed to start", "actor", s.actor, "err", err)
		s.notify("Speech engine error: " + err.Error())
		s.deliver(onResult, "")
		return
	}

	timer := time.NewTimer(s.cfg.MaxListen)
	defer timer.Stop()

	var (
		audioBytes int
		partials   = handle.Partials()
	)
	for {
		select {
		case <-s.ctx.Done():
			_ = handle.Close()
			return

		case chunk := <-s.frames:
			audioBytes += len(chunk)
			if err := handle.SendAudio(chunk); err != nil {
				slog.Debug("session: send audio failed", "actor", s.actor, "err", err)
			}

		case p, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			text := transcript.RecoverEncoding(p.Text)
			if s.cfg.Recognises != nil && s.cfg.Recognises(transcript.Normalize(text)) {
				slog.Debug("session: partial resolved early", "actor", s.actor, "partial", text)
				s.deliver(onResult, text)
				_ = handle.Close()
				return
			}

		case <-timer.C:
			s.finishWith(handle, audioBytes, onResult)
			return

		case <-s.finish:
			s.finishWith(handle, audioBytes, onResult)
			return
		}
	}
}

// finishWith closes the stream and resolves with the flushed finals.
func (s *EngineSession) finishWith(handle stt.SessionHandle, audioBytes int, onResult ResultFunc) {
	// Frames still queued belong to the utterance.
	for drained := false; !drained; {
		select {
		case chunk := <-s.frames:
			audioBytes += len(chunk)
			_ = handle.SendAudio(chunk)
		default:
			drained = true
		}
	}
	_ = handle.Close()

	var parts []string
	for t := range handle.Finals() {
		if text := strings.TrimSpace(t.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if audioBytes == 0 {
		slog.Warn("session: no audio captured", "actor", s.actor)
		s.notify("No audio was captured. Check your microphone input and sample rate.")
	}
	s.deliver(onResult, transcript.RecoverEncoding(strings.Join(parts, " ")))
}

func (s *EngineSession) deliver(onResult ResultFunc, text string) {
	if s.ctx.Err() != nil {
		return
	}
	onResult(types.RecognitionResult{Transcript: text, SessionActor: s.actor})
}

func (s *EngineSession) notify(msg string) {
	if s.cfg.Notify != nil {
		s.cfg.Notify(s.actor, msg)
	}
}
