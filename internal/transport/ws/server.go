// Package ws serves the client protocol over WebSocket.
//
// A connection starts with a hello message. Once the world accepts the actor,
// the server answers with a welcome and then runs two loops: a writer
// draining the actor's outbound queue and a reader routing JSON messages to
// the world and binary PCM frames to the audio sink.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxcast/internal/protocol"
	"github.com/MrWong99/voxcast/internal/world"
	"github.com/MrWong99/voxcast/pkg/types"
)

const (
	defaultHelloTimeout = 5 * time.Second
	defaultIdleTimeout  = 60 * time.Second
	defaultWriteTimeout = 5 * time.Second
	defaultQueueSize    = 64
	defaultReadLimit    = 256 * 1024
)

// World is the part of the world loop a connection talks to.
// Implemented by *world.World.
type World interface {
	Join(ctx context.Context, actor types.ActorID, name string, out chan []byte) (protocol.WelcomeMsg, error)
	Leave(actor types.ActorID)
	SubmitCast(actor types.ActorID, req types.CastRequest) bool
	SetEligible(actor types.ActorID, eligible bool)
	Listen(actor types.ActorID, action string)
}

// AudioSink receives PCM frames of a listening session.
// Implemented by *session.Listener.
type AudioSink interface {
	Feed(actor types.ActorID, chunk []byte)
}

var _ World = (*world.World)(nil)

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithTokens maps bearer tokens to actor ids. With a non-empty map every
// hello must carry a known token; otherwise the announced actor id is
// trusted.
func WithTokens(tokens map[string]string) Option {
	return func(s *Server) { s.tokens = tokens }
}

// WithAudio routes binary frames to sink. Without it binary frames are
// dropped.
func WithAudio(sink AudioSink) Option {
	return func(s *Server) { s.audio = sink }
}

// WithIdleTimeout closes connections that send nothing for d.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithOriginPatterns restricts the accepted browser origins. By default any
// origin is accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

// Server is an [http.Handler] upgrading requests to protocol connections.
type Server struct {
	world          World
	audio          AudioSink
	tokens         map[string]string
	originPatterns []string

	helloTimeout time.Duration
	idleTimeout  time.Duration
	writeTimeout time.Duration
}

// NewServer returns a Server attached to w.
func NewServer(w World, opts ...Option) *Server {
	s := &Server{
		world:        w,
		helloTimeout: defaultHelloTimeout,
		idleTimeout:  defaultIdleTimeout,
		writeTimeout: defaultWriteTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	acceptOpts := &websocket.AcceptOptions{OriginPatterns: s.originPatterns}
	if len(s.originPatterns) == 0 {
		acceptOpts.InsecureSkipVerify = true
	}
	conn, err := websocket.Accept(rw, r, acceptOpts)
	if err != nil {
		slog.Debug("ws: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(defaultReadLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	actor, out, err := s.handshake(ctx, conn)
	if err != nil {
		slog.Info("ws: handshake rejected", "remote", r.RemoteAddr, "err", err)
		return
	}
	log := slog.With("actor", actor)
	log.Info("ws: connected", "remote", r.RemoteAddr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		s.writeLoop(ctx, conn, out)
	}()

	err = s.readLoop(ctx, conn, actor, out)
	s.world.Leave(actor)
	cancel()
	<-writerDone

	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		log.Info("ws: disconnected")
	case errors.Is(err, context.Canceled):
		log.Info("ws: connection closed by server")
	default:
		log.Info("ws: connection lost", "err", err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// handshake reads the hello, resolves the actor and joins the world. It
// writes the welcome on success and an error message before closing on
// failure.
func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (types.ActorID, chan []byte, error) {
	helloCtx, cancel := context.WithTimeout(ctx, s.helloTimeout)
	defer cancel()

	typ, msg, err := conn.Read(helloCtx)
	if err != nil {
		return "", nil, err
	}
	if typ != websocket.MessageText {
		return "", nil, s.reject(ctx, conn, protocol.ErrBadRequest, "expected hello")
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		return "", nil, s.reject(ctx, conn, protocol.ErrBadRequest, "expected hello")
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil, s.reject(ctx, conn, protocol.ErrBadRequest, "malformed hello")
	}
	if hello.ProtocolVersion != protocol.Version {
		return "", nil, s.reject(ctx, conn, protocol.ErrBadRequest, "unsupported protocol_version")
	}

	actor, ok := s.resolveActor(hello)
	if !ok {
		return "", nil, s.reject(ctx, conn, protocol.ErrUnauthorized, "unknown token or actor")
	}

	out := make(chan []byte, defaultQueueSize)
	welcome, err := s.world.Join(helloCtx, actor, strings.TrimSpace(hello.Name), out)
	switch {
	case errors.Is(err, world.ErrAlreadyConnected):
		return "", nil, s.reject(ctx, conn, protocol.ErrConflict, "actor already connected")
	case err != nil:
		return "", nil, s.reject(ctx, conn, protocol.ErrUnavailable, "world unavailable")
	}
	if err := s.write(ctx, conn, welcome); err != nil {
		s.world.Leave(actor)
		return "", nil, err
	}
	return actor, out, nil
}

func (s *Server) resolveActor(hello protocol.HelloMsg) (types.ActorID, bool) {
	claimed := strings.TrimSpace(hello.ActorID)
	if len(s.tokens) == 0 {
		return types.ActorID(claimed), claimed != ""
	}
	actor, ok := s.tokens[hello.Token]
	if !ok || (claimed != "" && claimed != actor) {
		return "", false
	}
	return types.ActorID(actor), true
}

func (s *Server) reject(ctx context.Context, conn *websocket.Conn, code, message string) error {
	_ = s.write(ctx, conn, protocol.NewError(code, message))
	_ = conn.Close(websocket.StatusPolicyViolation, message)
	return errors.New(strings.ToLower(code) + ": " + message)
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-out:
			wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, b)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, actor types.ActorID, out chan []byte) error {
	for {
		rctx, cancel := context.WithTimeout(ctx, s.idleTimeout)
		typ, msg, err := conn.Read(rctx)
		cancel()
		if err != nil {
			return err
		}
		if typ == websocket.MessageBinary {
			if s.audio != nil {
				s.audio.Feed(actor, msg)
			}
			continue
		}
		if perr := s.route(actor, msg); perr != nil {
			enqueue(out, *perr)
		}
	}
}

// route dispatches one text message. A non-nil result is reported back to
// the client; the connection stays open.
func (s *Server) route(actor types.ActorID, msg []byte) *protocol.ErrorMsg {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return errorRef(protocol.ErrBadRequest, "malformed message")
	}
	switch base.Type {
	case protocol.TypeCast:
		var m protocol.CastMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return errorRef(protocol.ErrBadRequest, "malformed cast")
		}
		if !s.world.SubmitCast(actor, m.CastRequest) {
			return errorRef(protocol.ErrUnavailable, "server busy, cast dropped")
		}
	case protocol.TypeListen:
		var m protocol.ListenMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return errorRef(protocol.ErrBadRequest, "malformed listen")
		}
		switch m.Action {
		case protocol.ListenStart, protocol.ListenStop, protocol.ListenCancel:
			s.world.Listen(actor, m.Action)
		default:
			return errorRef(protocol.ErrBadRequest, "unknown listen action")
		}
	case protocol.TypeStatus:
		var m protocol.StatusMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return errorRef(protocol.ErrBadRequest, "malformed status")
		}
		s.world.SetEligible(actor, m.Eligible)
	default:
		return errorRef(protocol.ErrBadRequest, "unsupported message type "+base.Type)
	}
	return nil
}

func errorRef(code, message string) *protocol.ErrorMsg {
	m := protocol.NewError(code, message)
	return &m
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, b)
}

// enqueue queues v on out without blocking.
func enqueue(out chan []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}
