package world

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/voxcast/internal/cast"
	"github.com/MrWong99/voxcast/internal/config"
	"github.com/MrWong99/voxcast/internal/protocol"
	"github.com/MrWong99/voxcast/pkg/types"
)

var (
	_ cast.Roster   = (*World)(nil)
	_ cast.Costs    = (*World)(nil)
	_ cast.Executor = (*World)(nil)
	_ cast.Notifier = (*World)(nil)
)

// Join registers a connection and waits for the next tick to accept it.
func (w *World) Join(ctx context.Context, actor types.ActorID, name string, out chan []byte) (protocol.WelcomeMsg, error) {
	req := newJoinRequest(actor, name, out)
	select {
	case w.join <- req:
	case <-ctx.Done():
		return protocol.WelcomeMsg{}, ctx.Err()
	case <-w.stopped:
		return protocol.WelcomeMsg{}, ErrStopped
	}
	select {
	case resp := <-req.Resp:
		return resp.Welcome, resp.Err
	case <-ctx.Done():
		if !req.abandon() {
			// Already applied on an earlier tick; undo it on a later one.
			w.Leave(actor)
		}
		return protocol.WelcomeMsg{}, ctx.Err()
	case <-w.stopped:
		return protocol.WelcomeMsg{}, ErrStopped
	}
}

// Leave queues the removal of actor.
func (w *World) Leave(actor types.ActorID) {
	select {
	case w.leave <- actor:
	case <-w.stopped:
	}
}

// SubmitCast queues a cast request received from actor's connection. It
// returns false when the inbox is full and the request was dropped.
func (w *World) SubmitCast(actor types.ActorID, req types.CastRequest) bool {
	select {
	case <-w.stopped:
		return false
	default:
	}
	select {
	case w.inbox <- castEnvelope{actor: actor, req: req}:
		return true
	case <-w.stopped:
		return false
	default:
		return false
	}
}

// SetEligible records whether actor currently meets the casting
// precondition. Losing eligibility cancels a running listening session.
func (w *World) SetEligible(actor types.ActorID, eligible bool) {
	w.queueControl(controlEnvelope{actor: actor, eligible: &eligible})
}

// Listen queues a listen control action (start, stop or cancel).
func (w *World) Listen(actor types.ActorID, action string) {
	w.queueControl(controlEnvelope{actor: actor, listen: action})
}

// Post queues a notice for actor. Unlike [World.Notify] it may be called
// from any goroutine; speech sessions use it to report engine problems.
func (w *World) Post(actor types.ActorID, message string) {
	w.queueControl(controlEnvelope{actor: actor, notice: message})
}

func (w *World) queueControl(env controlEnvelope) {
	select {
	case w.control <- env:
	case <-w.stopped:
	}
}

// Reload swaps in cfg at the next tick boundary. When several reloads arrive
// within one tick the last one wins.
func (w *World) Reload(cfg *config.Config) {
	for {
		select {
		case w.reload <- cfg:
			return
		case <-w.stopped:
			return
		default:
		}
		// Replace a reload that has not been applied yet.
		select {
		case <-w.reload:
		default:
		}
	}
}

// Tick returns the number of completed ticks.
func (w *World) Tick() uint64 { return w.tick.Load() }

// CheckAlive returns an error when the loop has not completed a tick within
// maxAge.
func (w *World) CheckAlive(maxAge time.Duration) error {
	select {
	case <-w.stopped:
		return ErrStopped
	default:
	}
	last := w.lastTickAt.Load()
	if last == 0 {
		return fmt.Errorf("world: loop not started")
	}
	if age := time.Since(time.Unix(0, last)); age > maxAge {
		return fmt.Errorf("world: last tick %s ago", age.Round(time.Millisecond))
	}
	return nil
}

// The methods below are called by the orchestrator on the loop goroutine.

// IsEligibleToCast implements [cast.Roster].
func (w *World) IsEligibleToCast(actor types.ActorID) bool {
	a, ok := w.actors[actor]
	return ok && a.eligible
}

// DisplayName implements [cast.Roster].
func (w *World) DisplayName(actor types.ActorID) string {
	if a, ok := w.actors[actor]; ok {
		return a.name
	}
	return string(actor)
}

// CostOf implements [cast.Costs] against the active configuration.
func (w *World) CostOf(spellID string) (int, bool) { return w.cfg.CostOf(spellID) }

// CooldownTicks implements [cast.Costs].
func (w *World) CooldownTicks() int { return w.cfg.CooldownTicks() }

// ExecuteAction implements [cast.Executor] by queueing the action message on
// the caster's connection.
func (w *World) ExecuteAction(_ context.Context, actor types.ActorID, spellID string, req types.CastRequest) bool {
	return w.send(actor, protocol.ActionMsg{
		Type:       protocol.TypeAction,
		Spell:      spellID,
		Params:     w.cfg.SpellParams(spellID),
		Transcript: req.Transcript,
		Nonce:      req.Nonce,
	})
}

// Notify implements [cast.Notifier].
func (w *World) Notify(actor types.ActorID, message string) {
	w.send(actor, protocol.NoticeMsg{Type: protocol.TypeNotice, Text: message})
}

func (w *World) debugNotice(actor types.ActorID, message string) {
	if w.cfg.Server.DebugNotices {
		w.Notify(actor, message)
	}
}
