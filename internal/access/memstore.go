package access

import (
	"context"
	"sync"

	"github.com/MrWong99/voxcast/pkg/types"
)

type overrideKey struct {
	actor types.ActorID
	spell string
}

// MemStore keeps overrides in process memory. They are lost on restart.
type MemStore struct {
	mu   sync.Mutex
	rows map[overrideKey]bool
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[overrideKey]bool)}
}

// Load implements [Store].
func (m *MemStore) Load(_ context.Context) ([]Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Override, 0, len(m.rows))
	for k, enabled := range m.rows {
		out = append(out, Override{Actor: k.actor, Spell: k.spell, Enabled: enabled})
	}
	return out, nil
}

// Put implements [Store].
func (m *MemStore) Put(_ context.Context, o Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[overrideKey{o.Actor, o.Spell}] = o.Enabled
	return nil
}

// Ping implements [Store]. It always succeeds.
func (m *MemStore) Ping(context.Context) error { return nil }
