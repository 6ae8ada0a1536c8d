package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxcast/internal/protocol"
	"github.com/MrWong99/voxcast/internal/world"
	"github.com/MrWong99/voxcast/pkg/types"
)

// ── helpers ──────────────────────────────────────────────────────────────────

type calls struct {
	joined   []types.ActorID
	names    []string
	left     []types.ActorID
	casts    []types.CastRequest
	listens  []string
	statuses []bool
}

type fakeWorld struct {
	joinErr error
	busy    bool

	mu sync.Mutex
	c  calls
}

func (f *fakeWorld) Join(_ context.Context, actor types.ActorID, name string, out chan []byte) (protocol.WelcomeMsg, error) {
	if f.joinErr != nil {
		return protocol.WelcomeMsg{}, f.joinErr
	}
	f.mu.Lock()
	f.c.joined = append(f.c.joined, actor)
	f.c.names = append(f.c.names, name)
	f.mu.Unlock()
	out <- []byte(`{"type":"mana","mana":100,"max":100,"cooldown_ticks":0,"regen_per_sec":5}`)
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ActorID:         string(actor),
		ConnectionID:    "conn-1",
	}, nil
}

func (f *fakeWorld) Leave(actor types.ActorID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.left = append(f.c.left, actor)
}

func (f *fakeWorld) SubmitCast(_ types.ActorID, req types.CastRequest) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.casts = append(f.c.casts, req)
	return !f.busy
}

func (f *fakeWorld) SetEligible(_ types.ActorID, eligible bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.statuses = append(f.c.statuses, eligible)
}

func (f *fakeWorld) Listen(_ types.ActorID, action string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.listens = append(f.c.listens, action)
}

func (f *fakeWorld) snapshot() calls {
	f.mu.Lock()
	defer f.mu.Unlock()
	return calls{
		joined:   slices.Clone(f.c.joined),
		names:    slices.Clone(f.c.names),
		left:     slices.Clone(f.c.left),
		casts:    slices.Clone(f.c.casts),
		listens:  slices.Clone(f.c.listens),
		statuses: slices.Clone(f.c.statuses),
	}
}

type fakeAudio struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (a *fakeAudio) Feed(_ types.ActorID, chunk []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chunks = append(a.chunks, chunk)
}

func (a *fakeAudio) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.chunks)
}

func dial(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func recv(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, b, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return m
}

func hello(actor, token string) protocol.HelloMsg {
	return protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ActorID:         actor,
		Name:            "  Alice ",
		Token:           token,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ── handshake ────────────────────────────────────────────────────────────────

func TestHandshake_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		world    *fakeWorld
		tokens   map[string]string
		hello    any
		wantCode string
	}{
		{
			name:     "not a hello",
			world:    &fakeWorld{},
			hello:    protocol.ListenMsg{Type: protocol.TypeListen, Action: protocol.ListenStart},
			wantCode: protocol.ErrBadRequest,
		},
		{
			name:     "wrong version",
			world:    &fakeWorld{},
			hello:    protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: "0", ActorID: "alice"},
			wantCode: protocol.ErrBadRequest,
		},
		{
			name:     "missing actor without tokens",
			world:    &fakeWorld{},
			hello:    hello("", ""),
			wantCode: protocol.ErrUnauthorized,
		},
		{
			name:     "unknown token",
			world:    &fakeWorld{},
			tokens:   map[string]string{"secret": "alice"},
			hello:    hello("alice", "guess"),
			wantCode: protocol.ErrUnauthorized,
		},
		{
			name:     "token for another actor",
			world:    &fakeWorld{},
			tokens:   map[string]string{"secret": "alice"},
			hello:    hello("bob", "secret"),
			wantCode: protocol.ErrUnauthorized,
		},
		{
			name:     "already connected",
			world:    &fakeWorld{joinErr: world.ErrAlreadyConnected},
			hello:    hello("alice", ""),
			wantCode: protocol.ErrConflict,
		},
		{
			name:     "world stopped",
			world:    &fakeWorld{joinErr: world.ErrStopped},
			hello:    hello("alice", ""),
			wantCode: protocol.ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			conn := dial(t, NewServer(tt.world, WithTokens(tt.tokens)))
			send(t, conn, tt.hello)

			m := recv(t, conn)
			if m["type"] != protocol.TypeError || m["code"] != tt.wantCode {
				t.Errorf("got %v, want error %s", m, tt.wantCode)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, _, err := conn.Read(ctx)
			if got := websocket.CloseStatus(err); got != websocket.StatusPolicyViolation {
				t.Errorf("close status = %v (err %v), want policy violation", got, err)
			}
			if len(tt.world.snapshot().joined) != 0 {
				t.Error("actor joined despite rejection")
			}
		})
	}
}

func TestHandshake_TokenResolvesActor(t *testing.T) {
	t.Parallel()
	fw := &fakeWorld{}
	conn := dial(t, NewServer(fw, WithTokens(map[string]string{"secret": "alice"})))

	send(t, conn, hello("", "secret"))
	welcome := recv(t, conn)
	if welcome["type"] != protocol.TypeWelcome || welcome["actor_id"] != "alice" {
		t.Fatalf("welcome = %v", welcome)
	}
	snap := fw.snapshot()
	if len(snap.joined) != 1 || snap.joined[0] != "alice" || snap.names[0] != "Alice" {
		t.Errorf("joined = %v names = %q", snap.joined, snap.names)
	}
}

// ── session ──────────────────────────────────────────────────────────────────

func TestSession_RoutesMessages(t *testing.T) {
	t.Parallel()
	fw := &fakeWorld{}
	audio := &fakeAudio{}
	conn := dial(t, NewServer(fw, WithAudio(audio)))

	send(t, conn, hello("alice", ""))
	if m := recv(t, conn); m["type"] != protocol.TypeWelcome {
		t.Fatalf("first message = %v, want welcome", m)
	}
	if m := recv(t, conn); m["type"] != protocol.TypeMana {
		t.Fatalf("second message = %v, want queued mana sync", m)
	}

	send(t, conn, protocol.StatusMsg{Type: protocol.TypeStatus, Eligible: true})
	send(t, conn, protocol.ListenMsg{Type: protocol.TypeListen, Action: protocol.ListenStart})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageBinary, make([]byte, 640)); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	send(t, conn, protocol.CastMsg{Type: protocol.TypeCast, CastRequest: types.CastRequest{
		ActorID: "alice", SpellID: "web", Transcript: "паутина", Nonce: 7,
	}})

	waitFor(t, "cast routed", func() bool { return len(fw.snapshot().casts) == 1 })
	snap := fw.snapshot()
	if snap.casts[0].SpellID != "web" || snap.casts[0].Nonce != 7 || snap.casts[0].ActorID != "alice" {
		t.Errorf("cast = %+v", snap.casts[0])
	}
	if len(snap.statuses) != 1 || !snap.statuses[0] {
		t.Errorf("statuses = %v", snap.statuses)
	}
	if len(snap.listens) != 1 || snap.listens[0] != protocol.ListenStart {
		t.Errorf("listens = %v", snap.listens)
	}
	if audio.count() != 1 {
		t.Errorf("audio chunks = %d, want 1", audio.count())
	}
}

func TestSession_BadMessagesKeepConnection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  string
	}{
		{name: "not json", msg: `{oops`},
		{name: "unknown type", msg: `{"type":"dance"}`},
		{name: "bad listen action", msg: `{"type":"listen","action":"shout"}`},
		{name: "malformed cast", msg: `{"type":"cast","nonce":"seven"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fw := &fakeWorld{}
			conn := dial(t, NewServer(fw))
			send(t, conn, hello("alice", ""))
			recv(t, conn) // welcome
			recv(t, conn) // mana

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := conn.Write(ctx, websocket.MessageText, []byte(tt.msg)); err != nil {
				t.Fatal(err)
			}
			m := recv(t, conn)
			if m["type"] != protocol.TypeError || m["code"] != protocol.ErrBadRequest {
				t.Errorf("got %v, want bad request error", m)
			}

			// Still usable.
			send(t, conn, protocol.StatusMsg{Type: protocol.TypeStatus, Eligible: true})
			waitFor(t, "status routed", func() bool { return len(fw.snapshot().statuses) == 1 })
		})
	}
}

func TestSession_BusyInbox(t *testing.T) {
	t.Parallel()
	fw := &fakeWorld{busy: true}
	conn := dial(t, NewServer(fw))
	send(t, conn, hello("alice", ""))
	recv(t, conn)
	recv(t, conn)

	send(t, conn, protocol.CastMsg{Type: protocol.TypeCast, CastRequest: types.CastRequest{ActorID: "alice", SpellID: "web", Nonce: 1}})
	m := recv(t, conn)
	if m["code"] != protocol.ErrUnavailable {
		t.Errorf("got %v, want unavailable error", m)
	}
}

func TestSession_DisconnectLeaves(t *testing.T) {
	t.Parallel()
	fw := &fakeWorld{}
	conn := dial(t, NewServer(fw))
	send(t, conn, hello("alice", ""))
	recv(t, conn)

	if err := conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Logf("close: %v", err)
	}
	waitFor(t, "leave", func() bool {
		left := fw.snapshot().left
		return len(left) == 1 && left[0] == "alice"
	})
}

func TestSession_IdleTimeout(t *testing.T) {
	t.Parallel()
	fw := &fakeWorld{}
	conn := dial(t, NewServer(fw, WithIdleTimeout(50*time.Millisecond)))
	send(t, conn, hello("alice", ""))
	recv(t, conn)
	recv(t, conn)

	waitFor(t, "idle leave", func() bool { return len(fw.snapshot().left) == 1 })
}
