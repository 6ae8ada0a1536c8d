// Package whisper provides an STT provider that runs whisper.cpp in-process
// through its CGO bindings. libwhisper.a and whisper.h must be reachable via
// LIBRARY_PATH and C_INCLUDE_PATH at build time.
//
// Whisper has no streaming mode, so a session buffers speech and runs one
// inference per utterance: when a pause follows speech, when the buffer hits
// its cap, or when the session is closed. Each result is emitted as a partial
// and as a final.
package whisper

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/voxcast/pkg/provider/stt"
	"github.com/MrWong99/voxcast/pkg/types"
)

const (
	defaultLanguage     = "ru"
	defaultSampleRate   = 16000
	defaultPauseMs      = 600
	defaultMaxUtterance = 8000
)

var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider with a whisper.cpp model loaded
// once and shared by all sessions.
type NativeProvider struct {
	model          whisperlib.Model
	language       string
	sampleRate     int
	pauseMs        int
	maxUtteranceMs int
}

// NativeOption configures a [NativeProvider].
type NativeOption func(*NativeProvider)

// WithLanguage sets the default recognition language (e.g. "ru", "en").
func WithLanguage(lang string) NativeOption {
	return func(p *NativeProvider) {
		if lang != "" {
			p.language = lang
		}
	}
}

// WithSampleRate sets the default PCM sample rate in Hz.
func WithSampleRate(rate int) NativeOption {
	return func(p *NativeProvider) {
		if rate > 0 {
			p.sampleRate = rate
		}
	}
}

// WithPauseMs sets how much trailing silence ends an utterance.
func WithPauseMs(ms int) NativeOption {
	return func(p *NativeProvider) {
		if ms > 0 {
			p.pauseMs = ms
		}
	}
}

// WithMaxUtteranceMs caps the buffered speech before inference is forced.
func WithMaxUtteranceMs(ms int) NativeOption {
	return func(p *NativeProvider) {
		if ms > 0 {
			p.maxUtteranceMs = ms
		}
	}
}

// NewNative loads the model at modelPath. Call Close to release it.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &NativeProvider{
		model:          model,
		language:       defaultLanguage,
		sampleRate:     defaultSampleRate,
		pauseMs:        defaultPauseMs,
		maxUtteranceMs: defaultMaxUtterance,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// StartStream opens a session. Keyword boosts are not supported by
// whisper.cpp and are ignored.
func (p *NativeProvider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: start stream: %w", err)
	}
	s := &nativeSession{
		model:          p.model,
		language:       cmp.Or(cfg.Language, p.language),
		sampleRate:     p.sampleRate,
		channels:       1,
		pauseMs:        p.pauseMs,
		maxUtteranceMs: p.maxUtteranceMs,
		audio:          make(chan []byte, 256),
		partials:       make(chan types.Transcript, 16),
		finals:         make(chan types.Transcript, 16),
		stop:           make(chan struct{}),
	}
	if cfg.SampleRate > 0 {
		s.sampleRate = cfg.SampleRate
	}
	if cfg.Channels > 0 {
		s.channels = cfg.Channels
	}
	s.transcribe = s.infer
	s.wg.Add(1)
	go s.run(ctx)
	return s, nil
}

type nativeSession struct {
	model          whisperlib.Model
	language       string
	sampleRate     int
	channels       int
	pauseMs        int
	maxUtteranceMs int
	transcribe     func(pcm []byte) (string, error)

	audio    chan []byte
	partials chan types.Transcript
	finals   chan types.Transcript

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

var _ stt.SessionHandle = (*nativeSession)(nil)

func (s *nativeSession) SendAudio(chunk []byte) error {
	select {
	case <-s.stop:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.stop:
		return stt.ErrSessionClosed
	}
}

func (s *nativeSession) Partials() <-chan types.Transcript { return s.partials }

func (s *nativeSession) Finals() <-chan types.Transcript { return s.finals }

// Close runs inference on any buffered speech before closing the channels.
func (s *nativeSession) Close() error {
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
	return nil
}

// utterance accumulates speech between pauses. It is owned by run.
type utterance struct {
	pcm       []byte
	speechMs  int
	silenceMs int
}

func (s *nativeSession) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var u utterance
	for {
		select {
		case <-ctx.Done():
			s.flush(&u)
			return
		case <-s.stop:
			for {
				select {
				case chunk := <-s.audio:
					s.consume(&u, chunk)
				default:
					s.flush(&u)
					return
				}
			}
		case chunk := <-s.audio:
			s.consume(&u, chunk)
		}
	}
}

// consume adds chunk to the utterance. Leading silence is discarded.
func (s *nativeSession) consume(u *utterance, chunk []byte) {
	ms := durationMs(chunk, s.sampleRate, s.channels)
	if rms(chunk) < speechRMS {
		if u.speechMs == 0 {
			return
		}
		u.pcm = append(u.pcm, chunk...)
		u.silenceMs += ms
		if u.silenceMs >= s.pauseMs {
			s.flush(u)
		}
		return
	}
	u.pcm = append(u.pcm, chunk...)
	u.speechMs += ms
	u.silenceMs = 0
	if u.speechMs >= s.maxUtteranceMs {
		s.flush(u)
	}
}

func (s *nativeSession) flush(u *utterance) {
	pcm, hadSpeech := u.pcm, u.speechMs > 0
	*u = utterance{}
	if !hadSpeech {
		return
	}

	text, err := s.transcribe(pcm)
	if err != nil {
		slog.Error("whisper: inference failed", "err", err)
		return
	}
	if text == "" {
		return
	}
	for _, out := range []struct {
		ch    chan types.Transcript
		final bool
	}{{s.partials, false}, {s.finals, true}} {
		select {
		case out.ch <- types.Transcript{Text: text, IsFinal: out.final}:
		default:
			slog.Warn("whisper: transcript dropped, consumer too slow", "final", out.final)
		}
	}
}

// infer runs whisper.cpp on pcm using a context of its own; contexts are
// not safe for concurrent use but the model is.
func (s *nativeSession) infer(pcm []byte) (string, error) {
	wctx, err := s.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(s.language); err != nil {
		slog.Warn("whisper: unsupported language, using model default", "language", s.language, "err", err)
	}
	samples := resample(toMonoFloat32(pcm, s.channels), s.sampleRate, modelRate)
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
