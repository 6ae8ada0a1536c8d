package intent

import (
	"slices"
	"strings"
	"sync/atomic"

	"github.com/MrWong99/voxcast/internal/transcript"
)

// configuredAlias is one normalized phrase of the configured layer.
type configuredAlias struct {
	phrase  string
	spellID string
}

// Matcher resolves normalized transcripts against the built-in table and the
// configured alias layer. Match is safe for concurrent use with SetConfigured.
type Matcher struct {
	builtin    *Table
	configured atomic.Pointer[[]configuredAlias]
}

// NewMatcher returns a Matcher over builtin with an empty configured layer.
// A nil builtin is treated as an empty table.
func NewMatcher(builtin *Table) *Matcher {
	if builtin == nil {
		builtin = NewTable(nil)
	}
	m := &Matcher{builtin: builtin}
	m.configured.Store(&[]configuredAlias{})
	return m
}

// SetConfigured replaces the configured alias layer. Spell ids are visited in
// sorted order and each spell's phrases in the order given, which fixes the
// precedence between overlapping configured phrases.
func (m *Matcher) SetConfigured(phrases map[string][]string) {
	ids := make([]string, 0, len(phrases))
	for id := range phrases {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	layer := make([]configuredAlias, 0, len(phrases)*3)
	for _, id := range ids {
		for _, p := range phrases[id] {
			if norm := transcript.Normalize(p); norm != "" {
				layer = append(layer, configuredAlias{phrase: norm, spellID: id})
			}
		}
	}
	m.configured.Store(&layer)
}

// Match returns the spell id for an already normalized transcript. The
// built-in table is tried first (whole string, tokens, substring); the
// configured layer is consulted only when it has no answer.
func (m *Matcher) Match(normalized string) (string, bool) {
	if normalized == "" {
		return "", false
	}
	if id, ok := m.builtin.match(normalized); ok {
		return id, true
	}

	padded := " " + normalized + " "
	for _, a := range *m.configured.Load() {
		if normalized == a.phrase || strings.Contains(padded, " "+a.phrase+" ") {
			return a.spellID, true
		}
	}
	return "", false
}

// Resolve repairs the encoding of raw, normalizes it and matches it. The
// normalized text is returned even when nothing matched.
func (m *Matcher) Resolve(raw string) (normalized, spellID string, ok bool) {
	normalized = transcript.Normalize(transcript.RecoverEncoding(raw))
	spellID, ok = m.Match(normalized)
	return normalized, spellID, ok
}

// Phrases returns every phrase known to the matcher, built-in first, without
// duplicates. It feeds suggestion hints and STT keyword boosting.
func (m *Matcher) Phrases() []string {
	out := m.builtin.Phrases()
	seen := make(map[string]struct{}, len(out))
	for _, p := range out {
		seen[p] = struct{}{}
	}
	for _, a := range *m.configured.Load() {
		if _, dup := seen[a.phrase]; dup {
			continue
		}
		seen[a.phrase] = struct{}{}
		out = append(out, a.phrase)
	}
	return out
}
