// Package arbiter holds the per-actor bookkeeping that decides whether a cast
// request is fresh and whether the caster owns the phrase it spoke.
//
// [ReplayGuard] drops duplicate and reordered deliveries of the same request.
// [Arbitrator] makes sure that when several actors utter the same trigger
// phrase within a short window only the first one is credited.
//
// Neither type is safe for concurrent use. Both are owned by the single
// authoritative loop that runs the cast pipeline.
package arbiter

import "github.com/MrWong99/voxcast/pkg/types"

// DefaultGraceMs is the trust window for non-increasing nonces.
const DefaultGraceMs int64 = 10_000

type replayState struct {
	lastNonce         int64
	lastProcessedAtMs int64
}

// ReplayGuard tracks the last accepted nonce per actor.
type ReplayGuard struct {
	graceMs int64
	actors  map[types.ActorID]*replayState
}

// NewReplayGuard returns a guard with the given grace window in milliseconds.
// A non-positive grace selects [DefaultGraceMs].
func NewReplayGuard(graceMs int64) *ReplayGuard {
	if graceMs <= 0 {
		graceMs = DefaultGraceMs
	}
	return &ReplayGuard{
		graceMs: graceMs,
		actors:  make(map[types.ActorID]*replayState),
	}
}

// Accept reports whether a request with nonce from actor at nowMs is fresh.
// A nonce that does not exceed the last accepted one is rejected while the
// last acceptance is younger than the grace window. After the window has
// elapsed any nonce is accepted, which tolerates client counters that reset
// on reconnect. Accepting records nonce and nowMs.
func (g *ReplayGuard) Accept(actor types.ActorID, nonce, nowMs int64) bool {
	st, ok := g.actors[actor]
	if !ok {
		st = &replayState{lastNonce: -1}
		g.actors[actor] = st
	}
	if nonce <= st.lastNonce && nowMs-st.lastProcessedAtMs < g.graceMs {
		return false
	}
	st.lastNonce = nonce
	st.lastProcessedAtMs = nowMs
	return true
}

// Forget drops the state for actor.
func (g *ReplayGuard) Forget(actor types.ActorID) {
	delete(g.actors, actor)
}

// Len returns the number of tracked actors.
func (g *ReplayGuard) Len() int { return len(g.actors) }
