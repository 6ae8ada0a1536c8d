// Package mana implements the per-actor resource gate: a regenerating mana
// pool plus a global cooldown that blocks every cast while it runs.
//
// Regeneration is quantized to the authoritative tick. Fractional regen is
// accumulated in a carry so that low rates still produce whole points without
// floating drift in the pool itself.
//
// A [Gate] is not safe for concurrent use; it is owned by the tick loop.
package mana

import (
	"math"

	"github.com/MrWong99/voxcast/pkg/types"
)

// Default settings.
const (
	DefaultMax         = 100
	DefaultRegenPerSec = 5.0
	DefaultTicksPerSec = 20
)

// Settings configures a [Gate].
type Settings struct {
	// Max is the pool size. New actors start full.
	Max int

	// RegenPerSec is the mana regenerated per second.
	RegenPerSec float64

	// TicksPerSec is the rate at which [Gate.Tick] is called.
	TicksPerSec int
}

func (s Settings) withDefaults() Settings {
	if s.Max <= 0 {
		s.Max = DefaultMax
	}
	if s.RegenPerSec < 0 {
		s.RegenPerSec = 0
	}
	if s.TicksPerSec <= 0 {
		s.TicksPerSec = DefaultTicksPerSec
	}
	return s
}

// CooldownTicks converts a cooldown in seconds to whole ticks at tps.
func CooldownTicks(sec float64, tps int) int {
	if sec <= 0 || tps <= 0 {
		return 0
	}
	return int(math.Round(sec * float64(tps)))
}

// Sync is the resource snapshot reported to an actor.
type Sync struct {
	Mana          int     `json:"mana"`
	Max           int     `json:"max"`
	CooldownTicks int     `json:"cooldown_ticks"`
	RegenPerSec   float64 `json:"regen_per_sec"`
}

type state struct {
	mana          int
	cooldownTicks int
	lastSpent     int
	regenCarry    float64
}

// Gate holds the resource state of every connected actor.
type Gate struct {
	settings Settings
	actors   map[types.ActorID]*state
}

// NewGate returns an empty Gate.
func NewGate(s Settings) *Gate {
	return &Gate{
		settings: s.withDefaults(),
		actors:   make(map[types.ActorID]*state),
	}
}

// Settings returns the active settings.
func (g *Gate) Settings() Settings { return g.settings }

// SetSettings replaces the settings. Existing pools are clamped to the new
// maximum; nothing else is reset.
func (g *Gate) SetSettings(s Settings) {
	g.settings = s.withDefaults()
	for _, st := range g.actors {
		st.mana = min(st.mana, g.settings.Max)
	}
}

func (g *Gate) get(actor types.ActorID) *state {
	st, ok := g.actors[actor]
	if !ok {
		st = &state{mana: g.settings.Max}
		g.actors[actor] = st
	}
	return st
}

// Ensure creates the state for actor if it does not exist yet.
func (g *Gate) Ensure(actor types.ActorID) { g.get(actor) }

// Tick advances every tracked actor by one step: the global cooldown counts
// down and regeneration accrues into the carry. Whole points of the carry are
// moved into the pool (capped at the maximum) and the remainder stays.
func (g *Gate) Tick() {
	perTick := g.settings.RegenPerSec / float64(g.settings.TicksPerSec)
	for _, st := range g.actors {
		if st.cooldownTicks > 0 {
			st.cooldownTicks--
		}
		st.regenCarry += perTick
		if st.regenCarry >= 1 {
			whole := math.Floor(st.regenCarry)
			st.regenCarry -= whole
			st.mana = min(g.settings.Max, st.mana+int(whole))
		}
	}
}

// TryConsume spends cost from actor's pool. It fails without changing state
// when the global cooldown is running or the pool holds less than cost.
func (g *Gate) TryConsume(actor types.ActorID, cost int) bool {
	st := g.get(actor)
	if cost < 0 {
		cost = 0
	}
	if st.cooldownTicks > 0 || st.mana < cost {
		return false
	}
	st.mana -= cost
	st.lastSpent = cost
	return true
}

// RefundLast returns the most recent spend to actor's pool and clears it.
func (g *Gate) RefundLast(actor types.ActorID) {
	st, ok := g.actors[actor]
	if !ok {
		return
	}
	st.mana = min(g.settings.Max, st.mana+st.lastSpent)
	st.lastSpent = 0
}

// ArmGlobalCooldown extends actor's cooldown to at least ticks. A shorter
// request never shortens a running cooldown.
func (g *Gate) ArmGlobalCooldown(actor types.ActorID, ticks int) {
	st := g.get(actor)
	st.cooldownTicks = max(st.cooldownTicks, ticks)
}

// Snapshot reports actor's current resources.
func (g *Gate) Snapshot(actor types.ActorID) Sync {
	st := g.get(actor)
	return Sync{
		Mana:          st.mana,
		Max:           g.settings.Max,
		CooldownTicks: st.cooldownTicks,
		RegenPerSec:   g.settings.RegenPerSec,
	}
}

// Carry returns actor's fractional regeneration carry.
func (g *Gate) Carry(actor types.ActorID) float64 {
	if st, ok := g.actors[actor]; ok {
		return st.regenCarry
	}
	return 0
}

// LastSpent returns the amount the next [Gate.RefundLast] would restore.
func (g *Gate) LastSpent(actor types.ActorID) int {
	if st, ok := g.actors[actor]; ok {
		return st.lastSpent
	}
	return 0
}

// Release forgets actor. A later access starts again from a full pool.
func (g *Gate) Release(actor types.ActorID) { delete(g.actors, actor) }

// Actors returns the number of tracked actors.
func (g *Gate) Actors() int { return len(g.actors) }
