// Package session runs listening sessions: one bounded attempt to hear a
// spell phrase from an actor, ending in exactly one
// [types.RecognitionResult] unless the session is cancelled first.
//
// [EngineSession] streams the actor's audio to an STT provider. [StubSession]
// answers with a fixed phrase and exists for setups without an engine.
// [Probe] chooses between them once at startup and [Listener] keeps at most
// one live session per actor.
package session

import (
	"errors"

	"github.com/MrWong99/voxcast/pkg/types"
)

// ErrNoEngine is returned by an engine builder when no STT provider is
// configured. [Probe] treats it as an expected fallback to the stub.
var ErrNoEngine = errors.New("session: no speech engine configured")

// Session kinds reported in metrics and logs.
const (
	KindEngine = "engine"
	KindStub   = "stub"
)

// ResultFunc receives the outcome of a session. It is called from the
// session's own goroutine.
type ResultFunc func(types.RecognitionResult)

// SpeechSession is a single listening attempt.
type SpeechSession interface {
	// Start begins listening. onResult is called at most once.
	Start(onResult ResultFunc)

	// Feed delivers captured PCM. Sessions that do not consume audio ignore it.
	Feed(chunk []byte)

	// Finish ends listening early and resolves with what was heard so far.
	Finish()

	// Cancel abandons the session; onResult is not called afterwards.
	Cancel()
}

// Factory creates a new, not yet started session for actor.
type Factory func(actor types.ActorID) SpeechSession

// NoticeFunc sends a human readable message to an actor.
type NoticeFunc func(actor types.ActorID, message string)
