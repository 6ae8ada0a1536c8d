package session_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/MrWong99/voxcast/internal/session"
	"github.com/MrWong99/voxcast/pkg/provider/stt"
	"github.com/MrWong99/voxcast/pkg/provider/stt/mock"
	"github.com/MrWong99/voxcast/pkg/types"
)

type noticeLog struct {
	mu   sync.Mutex
	msgs []string
}

func (n *noticeLog) notify(_ types.ActorID, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *noticeLog) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

func collect(t *testing.T) (session.ResultFunc, <-chan types.RecognitionResult) {
	t.Helper()
	ch := make(chan types.RecognitionResult, 2)
	return func(r types.RecognitionResult) { ch <- r }, ch
}

func await(t *testing.T, ch <-chan types.RecognitionResult) types.RecognitionResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("no result delivered")
		return types.RecognitionResult{}
	}
}

func recognises(words ...string) func(string) bool {
	return func(normalized string) bool {
		for _, w := range words {
			if normalized == w {
				return true
			}
		}
		return false
	}
}

func engineWith(sess *mock.Session, cfg session.EngineConfig) (*mock.Provider, session.EngineConfig) {
	p := &mock.Provider{NewSession: func() *mock.Session { return sess }}
	cfg.Provider = p
	return p, cfg
}

func TestEngineSession_PartialEndsEarly(t *testing.T) {
	t.Parallel()
	sess := mock.NewSession()
	_, cfg := engineWith(sess, session.EngineConfig{
		MaxListen:  time.Minute,
		Recognises: recognises("молния"),
	})

	s := session.NewEngineSession("alice", cfg)
	onResult, results := collect(t)
	s.Start(onResult)
	s.Feed([]byte{1, 2, 3, 4})
	sess.Partial("мол")
	sess.Partial("Молния!")

	r := await(t, results)
	if r.Transcript != "Молния!" || r.SessionActor != "alice" {
		t.Errorf("result = %+v", r)
	}
	deadline := time.Now().Add(time.Second)
	for sess.CloseCallCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sess.CloseCallCount() == 0 {
		t.Error("stream not closed after early exit")
	}
}

func TestEngineSession_FinishJoinsFinals(t *testing.T) {
	t.Parallel()
	sess := mock.NewSession(types.Transcript{Text: "ударная"}, types.Transcript{Text: " волна "})
	p, cfg := engineWith(sess, session.EngineConfig{
		MaxListen: time.Minute,
		Stream:    stt.StreamConfig{Language: "ru", SampleRate: 16000},
	})
	notes := &noticeLog{}
	cfg.Notify = notes.notify

	s := session.NewEngineSession("bob", cfg)
	onResult, results := collect(t)
	s.Start(onResult)
	s.Feed(make([]byte, 640))
	s.Finish()

	r := await(t, results)
	if r.Transcript != "ударная волна" {
		t.Errorf("transcript = %q", r.Transcript)
	}
	if len(sess.Chunks()) != 1 {
		t.Errorf("chunks sent = %d, want 1", len(sess.Chunks()))
	}
	if got := p.StartStreamCalls[0].Cfg.Language; got != "ru" {
		t.Errorf("stream language = %q", got)
	}
	if len(notes.all()) != 0 {
		t.Errorf("unexpected notices %v", notes.all())
	}
}

func TestEngineSession_TimeoutWithoutAudio(t *testing.T) {
	t.Parallel()
	sess := mock.NewSession(types.Transcript{Text: "щит"})
	_, cfg := engineWith(sess, session.EngineConfig{MaxListen: 30 * time.Millisecond})
	notes := &noticeLog{}
	cfg.Notify = notes.notify

	s := session.NewEngineSession("carol", cfg)
	onResult, results := collect(t)
	s.Start(onResult)

	if r := await(t, results); r.Transcript != "щит" {
		t.Errorf("transcript = %q", r.Transcript)
	}
	if msgs := notes.all(); len(msgs) != 1 {
		t.Errorf("notices = %v, want one zero-audio notice", msgs)
	}
}

func TestEngineSession_RecoversEncoding(t *testing.T) {
	t.Parallel()
	garbled, err := charmap.Windows1251.NewDecoder().String("купол")
	if err != nil {
		t.Fatalf("garble: %v", err)
	}
	sess := mock.NewSession(types.Transcript{Text: garbled})
	_, cfg := engineWith(sess, session.EngineConfig{})

	s := session.NewEngineSession("dave", cfg)
	onResult, results := collect(t)
	s.Start(onResult)
	s.Feed([]byte{0, 0})
	s.Finish()

	if r := await(t, results); r.Transcript != "купол" {
		t.Errorf("transcript = %q, want купол", r.Transcript)
	}
}

func TestEngineSession_StartFailure(t *testing.T) {
	t.Parallel()
	notes := &noticeLog{}
	cfg := session.EngineConfig{
		Provider: &mock.Provider{StartStreamErr: errors.New("unauthorized")},
		Notify:   notes.notify,
	}
	s := session.NewEngineSession("erin", cfg)
	onResult, results := collect(t)
	s.Start(onResult)

	if r := await(t, results); r.Transcript != "" || r.SessionActor != "erin" {
		t.Errorf("result = %+v, want empty transcript", r)
	}
	if len(notes.all()) != 1 {
		t.Errorf("notices = %v", notes.all())
	}
}

func TestEngineSession_CancelDeliversNothing(t *testing.T) {
	t.Parallel()
	sess := mock.NewSession(types.Transcript{Text: "метеор"})
	_, cfg := engineWith(sess, session.EngineConfig{MaxListen: time.Minute})

	s := session.NewEngineSession("frank", cfg)
	onResult, results := collect(t)
	s.Start(onResult)
	s.Cancel()

	select {
	case r := <-results:
		t.Fatalf("cancelled session delivered %+v", r)
	case <-time.After(100 * time.Millisecond):
	}
	// Finish after Cancel must not panic or deliver.
	s.Finish()
	s.Feed([]byte{1})
}
