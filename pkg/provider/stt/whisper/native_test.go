package whisper

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxcast/pkg/provider/stt"
	"github.com/MrWong99/voxcast/pkg/types"
)

// 20 ms of 16 kHz mono.
const frameBytes = 640

func speech(frames int) []byte {
	b := make([]int16, frames*frameBytes/2)
	for i := range b {
		if i%2 == 0 {
			b[i] = 12000
		} else {
			b[i] = -12000
		}
	}
	return pcm16(b...)
}

func silence(frames int) []byte { return make([]byte, frames*frameBytes) }

type fakeTranscriber struct {
	mu    sync.Mutex
	calls []int
	text  string
}

func (f *fakeTranscriber) transcribe(pcm []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, len(pcm))
	return f.text, nil
}

func (f *fakeTranscriber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestSession(f *fakeTranscriber) *nativeSession {
	s := &nativeSession{
		language:       "ru",
		sampleRate:     16000,
		channels:       1,
		pauseMs:        100,
		maxUtteranceMs: 1000,
		transcribe:     f.transcribe,
		audio:          make(chan []byte, 256),
		partials:       make(chan types.Transcript, 16),
		finals:         make(chan types.Transcript, 16),
		stop:           make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run(context.Background())
	return s
}

func drain(ch <-chan types.Transcript) []types.Transcript {
	var out []types.Transcript
	for t := range ch {
		out = append(out, t)
	}
	return out
}

func TestSession_PauseEndsUtterance(t *testing.T) {
	t.Parallel()
	f := &fakeTranscriber{text: "молния"}
	s := newTestSession(f)

	_ = s.SendAudio(speech(10))
	_ = s.SendAudio(silence(5))

	select {
	case p := <-s.Partials():
		if p.Text != "молния" || p.IsFinal {
			t.Errorf("partial = %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no partial after pause")
	}
	_ = s.Close()

	finals := drain(s.Finals())
	if len(finals) != 1 || !finals[0].IsFinal || finals[0].Text != "молния" {
		t.Errorf("finals = %+v", finals)
	}
	if f.count() != 1 {
		t.Errorf("transcribe calls = %d, want 1", f.count())
	}
}

func TestSession_SilenceOnlyNeverTranscribes(t *testing.T) {
	t.Parallel()
	f := &fakeTranscriber{text: "x"}
	s := newTestSession(f)

	_ = s.SendAudio(silence(50))
	_ = s.Close()

	if got := drain(s.Finals()); len(got) != 0 {
		t.Errorf("finals = %+v", got)
	}
	if f.count() != 0 {
		t.Errorf("transcribe calls = %d, want 0", f.count())
	}
}

func TestSession_CloseFlushesPendingSpeech(t *testing.T) {
	t.Parallel()
	f := &fakeTranscriber{text: "купол"}
	s := newTestSession(f)

	_ = s.SendAudio(speech(3))
	_ = s.Close()

	finals := drain(s.Finals())
	if len(finals) != 1 || finals[0].Text != "купол" {
		t.Errorf("finals = %+v", finals)
	}
	if f.calls[0] != 3*frameBytes {
		t.Errorf("transcribed %d bytes, want %d", f.calls[0], 3*frameBytes)
	}
}

func TestSession_MaxUtteranceForcesInference(t *testing.T) {
	t.Parallel()
	f := &fakeTranscriber{text: "щит"}
	s := newTestSession(f)

	// 60 frames of 20 ms is 1.2 s of speech; the cap is 1 s.
	_ = s.SendAudio(speech(60))
	select {
	case <-s.Partials():
	case <-time.After(2 * time.Second):
		t.Fatal("no partial after utterance cap")
	}
	_ = s.Close()
	if f.count() != 1 {
		t.Errorf("transcribe calls = %d, want 1", f.count())
	}
}

func TestSession_EmptyTextEmitsNothing(t *testing.T) {
	t.Parallel()
	f := &fakeTranscriber{}
	s := newTestSession(f)

	_ = s.SendAudio(speech(5))
	_ = s.Close()
	if got := drain(s.Finals()); len(got) != 0 {
		t.Errorf("finals = %+v", got)
	}
}

func TestSession_SendAfterClose(t *testing.T) {
	t.Parallel()
	s := newTestSession(&fakeTranscriber{})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.SendAudio(speech(1)); err != stt.ErrSessionClosed {
		t.Errorf("SendAudio = %v, want ErrSessionClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestNewNative_EmptyPath(t *testing.T) {
	t.Parallel()
	if _, err := NewNative(""); err == nil {
		t.Fatal("expected error for empty model path")
	}
}

// testModelPath skips unless WHISPER_MODEL_PATH points at a model file.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	return p
}

func TestNativeProvider_Integration(t *testing.T) {
	modelPath := testModelPath(t)
	p, err := NewNative(modelPath, WithLanguage("ru"), WithPauseMs(200))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.StartStream(cancelled, stt.StreamConfig{}); err == nil {
		t.Error("expected error for cancelled context")
	}

	h, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	_ = h.SendAudio(speech(50))
	_ = h.SendAudio(silence(20))
	_ = h.Close()
	for tr := range h.Finals() {
		t.Logf("transcribed text: %q", tr.Text)
	}
}
