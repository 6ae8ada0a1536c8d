// Package mock provides test doubles for the collaborator interfaces of the
// cast package.
//
// All doubles are safe for concurrent use and record what they were asked.
// The zero value of each type is usable: every spell is enabled, no actor is
// eligible, no spell is known and every action succeeds.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxcast/internal/cast"
	"github.com/MrWong99/voxcast/pkg/types"
)

// Policy is a mock implementation of cast.Policy.
type Policy struct {
	mu sync.Mutex

	// Disabled lists spell ids that are denied for everybody.
	Disabled map[string]bool

	// Calls counts IsIntentEnabled invocations.
	Calls int
}

// IsIntentEnabled reports whether spellID is absent from Disabled.
func (p *Policy) IsIntentEnabled(_ types.ActorID, spellID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls++
	return !p.Disabled[spellID]
}

// Roster is a mock implementation of cast.Roster.
type Roster struct {
	mu sync.Mutex

	// Eligible marks actors that may cast.
	Eligible map[types.ActorID]bool

	// Names maps actors to display names. Missing actors use their id.
	Names map[types.ActorID]string
}

// SetEligible updates the eligibility of actor. Thread-safe.
func (r *Roster) SetEligible(actor types.ActorID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Eligible == nil {
		r.Eligible = make(map[types.ActorID]bool)
	}
	r.Eligible[actor] = ok
}

// IsEligibleToCast returns Eligible[actor].
func (r *Roster) IsEligibleToCast(actor types.ActorID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Eligible[actor]
}

// DisplayName returns Names[actor] or the actor id.
func (r *Roster) DisplayName(actor types.ActorID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.Names[actor]; ok {
		return n
	}
	return string(actor)
}

// Costs is a mock implementation of cast.Costs.
type Costs struct {
	// Table maps spell ids to costs.
	Table map[string]int

	// Cooldown is returned by CooldownTicks.
	Cooldown int
}

// CostOf looks spellID up in Table.
func (c *Costs) CostOf(spellID string) (int, bool) {
	cost, ok := c.Table[spellID]
	return cost, ok
}

// CooldownTicks returns Cooldown.
func (c *Costs) CooldownTicks() int { return c.Cooldown }

// ExecuteCall records a single invocation of Executor.ExecuteAction.
type ExecuteCall struct {
	Actor   types.ActorID
	SpellID string
	Req     types.CastRequest
}

// Executor is a mock implementation of cast.Executor.
type Executor struct {
	mu sync.Mutex

	// Fail makes every ExecuteAction report failure.
	Fail bool

	// Calls records every call to ExecuteAction.
	Calls []ExecuteCall
}

// ExecuteAction records the call and returns !Fail.
func (e *Executor) ExecuteAction(_ context.Context, actor types.ActorID, spellID string, req types.CastRequest) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, ExecuteCall{Actor: actor, SpellID: spellID, Req: req})
	return !e.Fail
}

// CallCount returns the number of recorded calls. Thread-safe.
func (e *Executor) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Calls)
}

// Notice is one delivered message.
type Notice struct {
	Actor   types.ActorID
	Message string
}

// Notifier is a mock implementation of cast.Notifier.
type Notifier struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify records the message.
func (n *Notifier) Notify(actor types.ActorID, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, Notice{Actor: actor, Message: message})
}

// Notices returns a copy of the recorded messages. Thread-safe.
func (n *Notifier) Notices() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notice, len(n.notices))
	copy(out, n.notices)
	return out
}

// Ensure the doubles implement the cast interfaces at compile time.
var (
	_ cast.Policy   = (*Policy)(nil)
	_ cast.Roster   = (*Roster)(nil)
	_ cast.Costs    = (*Costs)(nil)
	_ cast.Executor = (*Executor)(nil)
	_ cast.Notifier = (*Notifier)(nil)
)
