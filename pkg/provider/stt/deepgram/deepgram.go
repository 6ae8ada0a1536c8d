// Package deepgram provides an STT provider backed by the Deepgram streaming
// WebSocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxcast/pkg/provider/stt"
	"github.com/MrWong99/voxcast/pkg/types"
)

const (
	defaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "ru"
	defaultSampleRate = 16000

	// closeTimeout bounds how long Close waits for Deepgram to flush finals
	// after CloseStream.
	closeTimeout = 3 * time.Second
)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel sets the Deepgram model (e.g. "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithLanguage sets the default recognition language.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		if language != "" {
			p.language = language
		}
	}
}

// WithSampleRate sets the default sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		if rate > 0 {
			p.sampleRate = rate
		}
	}
}

// WithEndpoint overrides the streaming endpoint, e.g. for a self-hosted
// deployment. An empty value keeps the default.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		if endpoint != "" {
			p.endpoint = endpoint
		}
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	sampleRate int
}

var _ stt.Provider = (*Provider)(nil)

// New creates a Deepgram provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream dials Deepgram and returns a live session. The connection lives
// until Close; ctx only bounds the dial.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		conn:     conn,
		cancel:   cancel,
		partials: make(chan types.Transcript, 64),
		finals:   make(chan types.Transcript, 64),
		audio:    make(chan []byte, 256),
		stop:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	go s.readLoop(connCtx)
	s.writeWG.Add(1)
	go s.writeLoop(connCtx)
	return s, nil
}

func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = p.sampleRate
	}
	channels := cfg.Channels
	if channels <= 0 {
		channels = 1
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("channels", strconv.Itoa(channels))
	q.Set("interim_results", "true")
	q.Set("punctuate", "false")
	for _, kw := range cfg.Keywords {
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// result is the subset of a Deepgram "Results" event the session needs.
type result struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type session struct {
	conn   *websocket.Conn
	cancel context.CancelFunc

	partials chan types.Transcript
	finals   chan types.Transcript
	audio    chan []byte

	stop     chan struct{}
	readDone chan struct{}
	writeWG  sync.WaitGroup
	once     sync.Once
}

func (s *session) SendAudio(chunk []byte) error {
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

func (s *session) Partials() <-chan types.Transcript { return s.partials }

func (s *session) Finals() <-chan types.Transcript { return s.finals }

// Close drains queued audio, asks Deepgram to flush with CloseStream and
// waits up to closeTimeout for the remaining finals.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.stop)
		s.writeWG.Wait()

		select {
		case <-s.readDone:
		case <-time.After(closeTimeout):
			slog.Warn("deepgram: timed out waiting for final results")
		}
		s.cancel()
		<-s.readDone
		_ = s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

func (s *session) writeLoop(ctx context.Context) {
	defer s.writeWG.Done()
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				slog.Debug("deepgram: write audio failed", "err", err)
				return
			}
		case <-s.stop:
			for {
				select {
				case chunk := <-s.audio:
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					_ = s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
					return
				}
			}
		}
	}
}

func (s *session) readLoop(ctx context.Context) {
	defer close(s.readDone)
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		t, ok := parseResult(msg)
		if !ok {
			continue
		}
		out := s.partials
		if t.IsFinal {
			out = s.finals
		}
		select {
		case out <- t:
		default:
			slog.Warn("deepgram: transcript dropped, consumer too slow", "final", t.IsFinal)
		}
	}
}

// parseResult converts a Deepgram message into a transcript. Messages other
// than non-empty Results are ignored.
func parseResult(data []byte) (types.Transcript, bool) {
	var r result
	if err := json.Unmarshal(data, &r); err != nil {
		return types.Transcript{}, false
	}
	if r.Type != "Results" || len(r.Channel.Alternatives) == 0 {
		return types.Transcript{}, false
	}
	alt := r.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return types.Transcript{}, false
	}
	return types.Transcript{
		Text:       alt.Transcript,
		IsFinal:    r.IsFinal,
		Confidence: alt.Confidence,
		Timestamp:  time.Duration(r.Start * float64(time.Second)),
		Duration:   time.Duration(r.Duration * float64(time.Second)),
	}, true
}
