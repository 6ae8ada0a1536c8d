// Package world runs the authoritative tick loop.
//
// A [World] is single threaded: joins, leaves, cast requests, status reports,
// listen controls, recognition results and config reloads are queued on
// channels and applied at the next tick boundary, in that order. All cast
// state (mana, replay guard, shared-cast windows) is therefore touched by one
// goroutine only, and a reloaded alias table never changes in the middle of
// a tick.
package world

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxcast/internal/arbiter"
	"github.com/MrWong99/voxcast/internal/cast"
	"github.com/MrWong99/voxcast/internal/config"
	"github.com/MrWong99/voxcast/internal/intent"
	"github.com/MrWong99/voxcast/internal/mana"
	"github.com/MrWong99/voxcast/internal/observe"
	"github.com/MrWong99/voxcast/internal/protocol"
	"github.com/MrWong99/voxcast/internal/transcript/phonetic"
	"github.com/MrWong99/voxcast/pkg/types"
)

// ErrAlreadyConnected is returned by [World.Join] when the actor already
// has a live connection.
var ErrAlreadyConnected = errors.New("world: actor already connected")

// ErrStopped is returned when the world loop is no longer running.
var ErrStopped = errors.New("world: stopped")

// Listener manages listening sessions. Implemented by *session.Listener.
type Listener interface {
	Start(actor types.ActorID) uuid.UUID
	Finish(actor types.ActorID)
	Cancel(actor types.ActorID)
	Results() <-chan types.RecognitionResult
}

// Deps are the collaborators of a [World].
type Deps struct {
	Policy  cast.Policy
	Matcher *intent.Matcher

	// Listener may be nil when server-side recognition is disabled.
	Listener Listener

	// Suggester produces "did you mean" hints for unmatched transcripts.
	// May be nil.
	Suggester *phonetic.Suggester
}

// Option configures a [World].
type Option func(*World)

// WithClock replaces the millisecond wall clock.
func WithClock(now func() int64) Option {
	return func(w *World) { w.now = now }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(w *World) { w.metrics = m }
}

// JoinRequest registers a connection. Out receives encoded JSON messages;
// the world never blocks on it and drops messages when it is full.
type JoinRequest struct {
	Actor types.ActorID
	Name  string
	Out   chan []byte
	Resp  chan JoinResponse

	claim *atomic.Int32
}

// Join request states. The loop moves a pending request to applied; a
// caller that gives up moves it to abandoned. Whichever happens first wins.
const (
	joinPending int32 = iota
	joinApplied
	joinAbandoned
)

func newJoinRequest(actor types.ActorID, name string, out chan []byte) JoinRequest {
	return JoinRequest{
		Actor: actor,
		Name:  name,
		Out:   out,
		Resp:  make(chan JoinResponse, 1),
		claim: new(atomic.Int32),
	}
}

// abandon withdraws a request the loop has not applied yet. It reports false
// when the join already took effect.
func (r JoinRequest) abandon() bool {
	return r.claim.CompareAndSwap(joinPending, joinAbandoned)
}

// JoinResponse answers a [JoinRequest].
type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	Err     error
}

type castEnvelope struct {
	actor types.ActorID
	req   types.CastRequest
}

type controlEnvelope struct {
	actor    types.ActorID
	listen   string
	eligible *bool
	notice   string
}

type actorState struct {
	name         string
	connectionID uuid.UUID
	out          chan []byte
	eligible     bool

	// nonce is the highest nonce seen from or issued for this actor.
	nonce      int64
	lastSentMs int64
}

// World is the authoritative loop. Its methods other than Run may be called
// from any goroutine.
type World struct {
	cfg       *config.Config
	gate      *mana.Gate
	orch      *cast.Orchestrator
	matcher   *intent.Matcher
	listener  Listener
	suggester *phonetic.Suggester
	metrics   *observe.Metrics
	now       func() int64

	actors map[types.ActorID]*actorState

	join    chan JoinRequest
	leave   chan types.ActorID
	inbox   chan castEnvelope
	control chan controlEnvelope
	reload  chan *config.Config
	stopped chan struct{}

	tick       atomic.Uint64
	lastTickAt atomic.Int64
}

// New builds a world for cfg. The replay guard, arbitrator, mana gate and
// cast orchestrator are owned by the world.
func New(cfg *config.Config, deps Deps, opts ...Option) *World {
	w := &World{
		cfg:       cfg,
		matcher:   deps.Matcher,
		listener:  deps.Listener,
		suggester: deps.Suggester,
		now:       func() int64 { return time.Now().UnixMilli() },
		actors:    make(map[types.ActorID]*actorState),
		join:      make(chan JoinRequest, 64),
		leave:     make(chan types.ActorID, 64),
		inbox:     make(chan castEnvelope, 1024),
		control:   make(chan controlEnvelope, 256),
		reload:    make(chan *config.Config, 1),
		stopped:   make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	if w.metrics == nil {
		w.metrics = observe.DefaultMetrics()
	}

	w.gate = mana.NewGate(manaSettings(cfg))
	w.orch = cast.New(cast.Deps{
		Gate:     w.gate,
		Guard:    arbiter.NewReplayGuard(arbiter.DefaultGraceMs),
		Arbiter:  arbiter.New(arbiter.WithNotices(w.debugNotice)),
		Policy:   deps.Policy,
		Roster:   w,
		Costs:    w,
		Executor: w,
		Notifier: w,
	}, cast.WithClock(w.now), cast.WithMetrics(w.metrics))
	w.matcher.SetConfigured(cfg.Voice.Phrases)
	return w
}

func manaSettings(cfg *config.Config) mana.Settings {
	return mana.Settings{
		Max:         cfg.Mana.Max,
		RegenPerSec: cfg.Mana.RegenPerSec,
		TicksPerSec: cfg.Server.TickRateHz,
	}
}

// Run drives the loop until ctx is cancelled.
func (w *World) Run(ctx context.Context) error {
	defer close(w.stopped)

	interval := time.Second / time.Duration(w.cfg.Server.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var results <-chan types.RecognitionResult
	if w.listener != nil {
		results = w.listener.Results()
	}

	var (
		joins    []JoinRequest
		leaves   []types.ActorID
		casts    []castEnvelope
		controls []controlEnvelope
		heard    []types.RecognitionResult
		reload   *config.Config
	)
	w.lastTickAt.Store(time.Now().UnixNano())
	slog.Info("world: loop started", "tick_rate_hz", w.cfg.Server.TickRateHz)

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return nil
		case req := <-w.join:
			joins = append(joins, req)
		case id := <-w.leave:
			leaves = append(leaves, id)
		case env := <-w.inbox:
			casts = append(casts, env)
		case env := <-w.control:
			controls = append(controls, env)
		case r := <-results:
			heard = append(heard, r)
		case cfg := <-w.reload:
			reload = cfg
		case <-ticker.C:
			w.step(ctx, reload, joins, leaves, controls, heard, casts)
			reload = nil
			joins = joins[:0]
			leaves = leaves[:0]
			controls = controls[:0]
			heard = heard[:0]
			casts = casts[:0]
		}
	}
}

func (w *World) step(ctx context.Context, reload *config.Config, joins []JoinRequest, leaves []types.ActorID,
	controls []controlEnvelope, heard []types.RecognitionResult, casts []castEnvelope) {
	start := time.Now()

	if reload != nil {
		w.applyConfig(reload)
	}
	for _, id := range leaves {
		w.handleLeave(ctx, id)
	}
	for _, req := range joins {
		w.handleJoin(ctx, req)
	}
	for _, env := range controls {
		w.handleControl(env)
	}
	for _, r := range heard {
		w.handleRecognition(ctx, r)
	}
	for _, env := range casts {
		w.handleCast(ctx, env)
	}

	w.gate.Tick()
	n := w.tick.Add(1)
	if every := uint64(w.cfg.Server.SyncEveryTicks); every > 0 && n%every == 0 {
		for id := range w.actors {
			w.syncMana(id)
		}
	}

	w.lastTickAt.Store(time.Now().UnixNano())
	w.metrics.TickDuration.Record(ctx, time.Since(start).Seconds())
}

func (w *World) applyConfig(cfg *config.Config) {
	w.cfg = cfg
	w.gate.SetSettings(manaSettings(cfg))
	w.matcher.SetConfigured(cfg.Voice.Phrases)
	slog.Info("world: configuration applied", "tick", w.tick.Load())
}

func (w *World) handleJoin(ctx context.Context, req JoinRequest) {
	if _, ok := w.actors[req.Actor]; ok {
		req.Resp <- JoinResponse{Err: ErrAlreadyConnected}
		return
	}
	if req.claim != nil && !req.claim.CompareAndSwap(joinPending, joinApplied) {
		slog.Debug("world: abandoned join skipped", "actor", req.Actor)
		return
	}
	a := &actorState{
		name:         req.Name,
		connectionID: uuid.New(),
		out:          req.Out,
	}
	if a.name == "" {
		a.name = string(req.Actor)
	}
	w.actors[req.Actor] = a
	w.gate.Ensure(req.Actor)
	w.metrics.ActorsConnected.Add(ctx, 1)

	req.Resp <- JoinResponse{Welcome: protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ActorID:         string(req.Actor),
		ConnectionID:    a.connectionID.String(),
		TickRateHz:      w.cfg.Server.TickRateHz,
		SampleRate:      w.cfg.Voice.SampleRate,
	}}
	slog.Info("world: actor joined", "actor", req.Actor, "connection", a.connectionID)
	w.syncMana(req.Actor)
}

func (w *World) handleLeave(ctx context.Context, id types.ActorID) {
	if _, ok := w.actors[id]; !ok {
		return
	}
	if w.listener != nil {
		w.listener.Cancel(id)
	}
	w.orch.Disconnect(id)
	delete(w.actors, id)
	w.metrics.ActorsConnected.Add(ctx, -1)
	slog.Info("world: actor left", "actor", id)
}

func (w *World) handleControl(env controlEnvelope) {
	a, ok := w.actors[env.actor]
	if !ok {
		return
	}
	if env.notice != "" {
		w.Notify(env.actor, env.notice)
	}
	if env.eligible != nil {
		a.eligible = *env.eligible
		if !a.eligible && w.listener != nil {
			w.listener.Cancel(env.actor)
		}
	}
	if w.listener == nil || env.listen == "" {
		return
	}
	switch env.listen {
	case protocol.ListenStart:
		if !a.eligible {
			slog.Debug("world: listen ignored, actor not eligible", "actor", env.actor)
			return
		}
		w.listener.Start(env.actor)
	case protocol.ListenStop:
		w.listener.Finish(env.actor)
	case protocol.ListenCancel:
		w.listener.Cancel(env.actor)
	}
}

// handleCast drops requests from actors that left earlier in the tick so
// their replay state is not rebuilt after Disconnect.
func (w *World) handleCast(ctx context.Context, env castEnvelope) {
	a, ok := w.actors[env.actor]
	if !ok {
		slog.Debug("world: cast from disconnected actor dropped", "actor", env.actor, "nonce", env.req.Nonce)
		return
	}
	if env.req.ActorID == env.actor && env.req.Nonce > a.nonce {
		a.nonce = env.req.Nonce
	}
	w.orch.Handle(ctx, env.req, env.actor)
}

func (w *World) syncMana(id types.ActorID) {
	w.send(id, protocol.ManaMsg{Type: protocol.TypeMana, Sync: w.gate.Snapshot(id)})
}

// send encodes v and queues it for id without blocking.
func (w *World) send(id types.ActorID, v any) bool {
	a, ok := w.actors[id]
	if !ok || a.out == nil {
		return false
	}
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("world: encode message", "actor", id, "err", err)
		return false
	}
	select {
	case a.out <- b:
		return true
	default:
		slog.Warn("world: outbound queue full, message dropped", "actor", id)
		return false
	}
}

func (w *World) shutdown() {
	for id := range w.actors {
		w.orch.Disconnect(id)
	}
	clear(w.actors)
	slog.Info("world: loop stopped", "ticks", w.tick.Load())
}
