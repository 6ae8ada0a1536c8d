package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/voxcast/internal/observe"
	"github.com/MrWong99/voxcast/pkg/types"
)

type activeSession struct {
	id      uuid.UUID
	session SpeechSession
	started time.Time
}

// Listener keeps at most one live session per actor and funnels results
// into a single-element channel read by the world loop. Results from
// sessions that were replaced or cancelled are discarded.
type Listener struct {
	factory Factory
	kind    string
	metrics *observe.Metrics

	results chan types.RecognitionResult
	done    chan struct{}
	once    sync.Once

	mu     sync.Mutex
	active map[types.ActorID]activeSession
}

// ListenerOption configures a [Listener].
type ListenerOption func(*Listener)

// WithMetrics records started sessions on m.
func WithMetrics(m *observe.Metrics) ListenerOption {
	return func(l *Listener) { l.metrics = m }
}

// NewListener returns a listener creating sessions with factory. kind is
// used as the metric label.
func NewListener(factory Factory, kind string, opts ...ListenerOption) *Listener {
	l := &Listener{
		factory: factory,
		kind:    kind,
		results: make(chan types.RecognitionResult, 1),
		done:    make(chan struct{}),
		active:  make(map[types.ActorID]activeSession),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Kind reports the session kind the listener creates.
func (l *Listener) Kind() string { return l.kind }

// Results delivers one result per finished session.
func (l *Listener) Results() <-chan types.RecognitionResult { return l.results }

// Start begins a new session for actor, cancelling the previous one.
func (l *Listener) Start(actor types.ActorID) uuid.UUID {
	id := uuid.New()
	s := l.factory(actor)

	l.mu.Lock()
	prev, hadPrev := l.active[actor]
	l.active[actor] = activeSession{id: id, session: s, started: time.Now()}
	l.mu.Unlock()

	if hadPrev {
		prev.session.Cancel()
		slog.Debug("session: replaced running session", "actor", actor, "previous", prev.id)
	}
	if l.metrics != nil {
		l.metrics.RecordListenSession(context.Background(), l.kind)
	}
	slog.Debug("session: listening", "actor", actor, "session", id, "kind", l.kind)

	s.Start(func(r types.RecognitionResult) { l.complete(actor, id, r) })
	return id
}

func (l *Listener) complete(actor types.ActorID, id uuid.UUID, r types.RecognitionResult) {
	l.mu.Lock()
	cur, ok := l.active[actor]
	if !ok || cur.id != id {
		l.mu.Unlock()
		slog.Debug("session: discarding late result", "actor", actor, "session", id)
		return
	}
	delete(l.active, actor)
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.STTDuration.Record(context.Background(), time.Since(cur.started).Seconds(),
			metric.WithAttributes(attribute.String("kind", l.kind)))
	}
	select {
	case l.results <- r:
	case <-l.done:
	}
}

// Feed forwards audio to actor's live session, if any.
func (l *Listener) Feed(actor types.ActorID, chunk []byte) {
	if s, ok := l.lookup(actor); ok {
		s.Feed(chunk)
	}
}

// Finish asks actor's live session to resolve now.
func (l *Listener) Finish(actor types.ActorID) {
	if s, ok := l.lookup(actor); ok {
		s.Finish()
	}
}

// Cancel abandons actor's live session without a result.
func (l *Listener) Cancel(actor types.ActorID) {
	l.mu.Lock()
	cur, ok := l.active[actor]
	delete(l.active, actor)
	l.mu.Unlock()
	if ok {
		cur.session.Cancel()
	}
}

// Listening reports whether actor has a live session.
func (l *Listener) Listening(actor types.ActorID) bool {
	_, ok := l.lookup(actor)
	return ok
}

// Close cancels all sessions and unblocks pending deliveries.
func (l *Listener) Close() {
	l.once.Do(func() { close(l.done) })
	l.mu.Lock()
	sessions := l.active
	l.active = make(map[types.ActorID]activeSession)
	l.mu.Unlock()
	for _, s := range sessions {
		s.session.Cancel()
	}
}

func (l *Listener) lookup(actor types.ActorID) (SpeechSession, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.active[actor]
	return cur.session, ok
}
