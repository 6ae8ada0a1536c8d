// Package access decides whether an actor may cast a given spell.
//
// Overrides exist at two levels: global (all actors) and per actor. The
// per-actor override wins, then the global one; a spell without overrides is
// enabled. Overrides are cached in memory so [Policy.IsIntentEnabled] never
// touches the backing [Store] and is safe to call from the tick loop. Writes
// go to the store first and only reach the cache when persisted.
package access

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/voxcast/pkg/types"
)

// ErrUnknownSpell is returned when an override names a spell that is not
// configured.
var ErrUnknownSpell = errors.New("access: unknown spell")

// Override enables or disables one spell. An empty Actor makes it global.
type Override struct {
	Actor   types.ActorID `json:"actor,omitempty"`
	Spell   string        `json:"spell"`
	Enabled bool          `json:"enabled"`
}

// Store persists overrides.
type Store interface {
	// Load returns every stored override.
	Load(ctx context.Context) ([]Override, error)

	// Put inserts or replaces the override for (Actor, Spell).
	Put(ctx context.Context, o Override) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// Policy is the cached view over a [Store]. It is safe for concurrent use.
type Policy struct {
	store Store
	known func(spellID string) bool

	mu     sync.RWMutex
	global map[string]bool
	actors map[types.ActorID]map[string]bool
}

// NewPolicy loads all overrides from store. known reports whether a spell id
// is configured; overrides for unknown spells are rejected on write but kept
// on load so a temporarily removed spell keeps its state.
func NewPolicy(ctx context.Context, store Store, known func(spellID string) bool) (*Policy, error) {
	p := &Policy{
		store:  store,
		known:  known,
		global: make(map[string]bool),
		actors: make(map[types.ActorID]map[string]bool),
	}
	overrides, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("access: load overrides: %w", err)
	}
	for _, o := range overrides {
		p.apply(o)
	}
	slog.Info("access: overrides loaded", "count", len(overrides))
	return p, nil
}

// IsIntentEnabled reports whether actor may cast spellID.
func (p *Policy) IsIntentEnabled(actor types.ActorID, spellID string) bool {
	spellID = normalizeSpell(spellID)
	p.mu.RLock()
	defer p.mu.RUnlock()
	if enabled, ok := p.actors[actor][spellID]; ok {
		return enabled
	}
	if enabled, ok := p.global[spellID]; ok {
		return enabled
	}
	return true
}

// SetGlobal enables or disables spellID for every actor without a personal
// override.
func (p *Policy) SetGlobal(ctx context.Context, spellID string, enabled bool) error {
	return p.set(ctx, Override{Spell: spellID, Enabled: enabled})
}

// SetActor enables or disables spellID for one actor.
func (p *Policy) SetActor(ctx context.Context, actor types.ActorID, spellID string, enabled bool) error {
	if actor == "" {
		return errors.New("access: actor must not be empty")
	}
	return p.set(ctx, Override{Actor: actor, Spell: spellID, Enabled: enabled})
}

func (p *Policy) set(ctx context.Context, o Override) error {
	o.Spell = normalizeSpell(o.Spell)
	if p.known != nil && !p.known(o.Spell) {
		return fmt.Errorf("%w: %q", ErrUnknownSpell, o.Spell)
	}
	if err := p.store.Put(ctx, o); err != nil {
		return fmt.Errorf("access: persist override: %w", err)
	}
	p.mu.Lock()
	p.apply(o)
	p.mu.Unlock()
	slog.Info("access: override set", "actor", o.Actor, "spell", o.Spell, "enabled", o.Enabled)
	return nil
}

// apply writes o into the cache. The caller holds mu or owns p exclusively.
func (p *Policy) apply(o Override) {
	spell := normalizeSpell(o.Spell)
	if o.Actor == "" {
		p.global[spell] = o.Enabled
		return
	}
	m, ok := p.actors[o.Actor]
	if !ok {
		m = make(map[string]bool)
		p.actors[o.Actor] = m
	}
	m[spell] = o.Enabled
}

// List returns all cached overrides, global ones first, ordered by actor and
// spell.
func (p *Policy) List() []Override {
	p.mu.RLock()
	out := make([]Override, 0, len(p.global))
	for spell, enabled := range p.global {
		out = append(out, Override{Spell: spell, Enabled: enabled})
	}
	for actor, m := range p.actors {
		for spell, enabled := range m {
			out = append(out, Override{Actor: actor, Spell: spell, Enabled: enabled})
		}
	}
	p.mu.RUnlock()

	slices.SortFunc(out, func(a, b Override) int {
		return cmp.Or(cmp.Compare(a.Actor, b.Actor), cmp.Compare(a.Spell, b.Spell))
	})
	return out
}

// Ping checks the backing store.
func (p *Policy) Ping(ctx context.Context) error {
	return p.store.Ping(ctx)
}

func normalizeSpell(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
