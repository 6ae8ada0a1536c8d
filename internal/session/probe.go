package session

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrWong99/voxcast/pkg/provider/stt"
	"github.com/MrWong99/voxcast/pkg/types"
)

// ProbeConfig carries everything needed to build either session kind.
type ProbeConfig struct {
	// Engine is used for every engine session. Provider is ignored.
	Engine EngineConfig

	// TestPhrase and StubDelay configure the stub fallback.
	TestPhrase string
	StubDelay  time.Duration
}

// Probe builds the speech engine once and returns a factory for engine
// sessions, or for stub sessions when build fails. The second return value
// is the chosen kind ([KindEngine] or [KindStub]).
func Probe(build func() (stt.Provider, error), cfg ProbeConfig) (Factory, string) {
	provider, err := build()
	switch {
	case err == nil && provider != nil:
		engine := cfg.Engine
		engine.Provider = provider
		slog.Info("session: speech engine ready")
		return func(actor types.ActorID) SpeechSession {
			return NewEngineSession(actor, engine)
		}, KindEngine
	case errors.Is(err, ErrNoEngine) || (err == nil && provider == nil):
		slog.Info("session: no speech engine configured, using stub sessions", "test_phrase", cfg.TestPhrase)
	default:
		slog.Warn("session: speech engine unavailable, using stub sessions", "err", err)
	}
	return func(actor types.ActorID) SpeechSession {
		return NewStubSession(actor, cfg.TestPhrase, cfg.StubDelay)
	}, KindStub
}
