// Package cast turns authenticated cast requests into spell executions.
//
// The [Orchestrator] runs the full decision pipeline synchronously on the
// caller's goroutine: identity check, replay guard, spell policy, caster
// eligibility, mana, shared-cast arbitration and finally the action itself.
// Every rejection is reported as an [Outcome]; nothing in the pipeline returns
// an error for bad request data.
//
// The orchestrator and the state it owns are not safe for concurrent use.
// Callers must serialise Handle, Disconnect and the mana tick on one
// goroutine.
package cast

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/voxcast/internal/arbiter"
	"github.com/MrWong99/voxcast/internal/mana"
	"github.com/MrWong99/voxcast/internal/observe"
	"github.com/MrWong99/voxcast/internal/transcript"
	"github.com/MrWong99/voxcast/pkg/types"
)

// Policy decides whether a spell may be cast by an actor.
type Policy interface {
	IsIntentEnabled(actor types.ActorID, spellID string) bool
}

// Roster answers questions about connected actors.
type Roster interface {
	// IsEligibleToCast reports whether actor currently meets the in-world
	// precondition for casting (for example holding the spell book).
	IsEligibleToCast(actor types.ActorID) bool

	// DisplayName returns the name shown to other actors.
	DisplayName(actor types.ActorID) string
}

// Costs provides spell prices and the global cooldown.
type Costs interface {
	// CostOf returns the mana cost of spellID. ok is false for unknown spells.
	CostOf(spellID string) (cost int, ok bool)

	// CooldownTicks returns the global cooldown armed after a successful cast.
	CooldownTicks() int
}

// Executor performs the in-world effect of a spell. It returns false when the
// effect could not be applied.
type Executor interface {
	ExecuteAction(ctx context.Context, actor types.ActorID, spellID string, req types.CastRequest) bool
}

// Notifier delivers user-visible text to an actor.
type Notifier interface {
	Notify(actor types.ActorID, message string)
}

// Deps are the collaborators of an [Orchestrator]. All fields are required.
type Deps struct {
	Gate     *mana.Gate
	Guard    *arbiter.ReplayGuard
	Arbiter  *arbiter.Arbitrator
	Policy   Policy
	Roster   Roster
	Costs    Costs
	Executor Executor
	Notifier Notifier
}

// Option is a functional option for configuring an [Orchestrator].
type Option func(*Orchestrator)

// WithClock replaces the millisecond clock used for replay and arbitration
// windows. The default is wall-clock Unix milliseconds.
func WithClock(now func() int64) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator composes the cast pipeline.
type Orchestrator struct {
	deps    Deps
	now     func() int64
	metrics *observe.Metrics
}

// New returns an Orchestrator over deps.
func New(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps: deps,
		now:  func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Handle runs req through the pipeline on behalf of the authenticated actor
// authActor and reports what happened.
func (o *Orchestrator) Handle(ctx context.Context, req types.CastRequest, authActor types.ActorID) Outcome {
	ctx, span := observe.StartCastSpan(ctx, string(authActor), req.Nonce)

	spellID := strings.ToLower(strings.TrimSpace(req.SpellID))
	out := o.handle(ctx, req, spellID, authActor)

	label := spellID
	if _, known := o.deps.Costs.CostOf(spellID); !known {
		label = "unknown"
	}
	observe.EndCastSpan(span, label, out.String())
	o.metrics.RecordCast(ctx, out.String(), label)
	return out
}

func (o *Orchestrator) handle(ctx context.Context, req types.CastRequest, spellID string, actor types.ActorID) Outcome {
	log := observe.Logger(ctx).With("actor", actor, "spell", spellID, "nonce", req.Nonce)

	if req.ActorID != actor {
		log.Warn("cast: identity mismatch", "claimed", req.ActorID)
		return OutcomeIdentityMismatch
	}

	now := o.now()
	if !o.deps.Guard.Accept(actor, req.Nonce, now) {
		log.Debug("cast: duplicate request dropped")
		return OutcomeReplay
	}

	cost, known := o.deps.Costs.CostOf(spellID)
	if !known {
		log.Debug("cast: unknown spell")
		return OutcomeUnknownSpell
	}
	if !o.deps.Policy.IsIntentEnabled(actor, spellID) {
		o.deps.Notifier.Notify(actor, fmt.Sprintf("Spell '%s' is disabled.", spellID))
		return OutcomeDisabled
	}
	if !o.deps.Roster.IsEligibleToCast(actor) {
		log.Debug("cast: actor not eligible")
		return OutcomeIneligible
	}
	if !o.deps.Gate.TryConsume(actor, cost) {
		log.Debug("cast: insufficient mana or on cooldown", "cost", cost)
		return OutcomeInsufficient
	}

	canonical := transcript.Normalize(req.Transcript)
	if !o.deps.Arbiter.Claim(actor, o.deps.Roster.DisplayName(actor), spellID, canonical, now) {
		o.deps.Gate.RefundLast(actor)
		o.metrics.RecordRefund(ctx, "suppressed")
		log.Debug("cast: suppressed shared cast", "transcript", canonical)
		return OutcomeSuppressed
	}

	if !o.deps.Executor.ExecuteAction(ctx, actor, spellID, req) {
		o.deps.Gate.RefundLast(actor)
		o.metrics.RecordRefund(ctx, "action_failed")
		log.Warn("cast: action failed, mana refunded", "cost", cost)
		return OutcomeFailed
	}

	o.deps.Gate.ArmGlobalCooldown(actor, o.deps.Costs.CooldownTicks())
	log.Info("cast: spell cast", "cost", cost, "transcript", canonical)
	return OutcomeCast
}

// Disconnect releases everything held for actor: its replay state, its
// shared-cast windows and its mana pool.
func (o *Orchestrator) Disconnect(actor types.ActorID) {
	o.deps.Guard.Forget(actor)
	o.deps.Arbiter.ReleaseAll(actor)
	o.deps.Gate.Release(actor)
}
