// Package intent resolves normalized transcripts to spell ids.
//
// Matching is layered. A built-in [Table] of seed aliases is consulted first
// (whole string, then each token, then substring containment). When it has no
// answer the configured alias layer is checked for whole-phrase or
// whole-token hits. The built-in table is immutable; the configured layer is
// replaced atomically as a unit, so a lookup always sees one consistent
// version of it.
package intent

import (
	"cmp"
	"slices"
	"strings"

	"github.com/MrWong99/voxcast/internal/transcript"
)

// Alias maps a spoken phrase to a spell id.
type Alias struct {
	Phrase  string
	SpellID string
}

// Table is an immutable normalized-phrase → spell id lookup. Build it with
// [NewTable]; the zero value is an empty table.
type Table struct {
	exact map[string]string

	// ordered holds the keys in substring-probe order: longest first, ties
	// broken lexicographically.
	ordered []string
}

// NewTable builds a Table from aliases in declaration order. Each phrase is
// normalized; phrases that normalize to the empty string are skipped, and
// when two aliases normalize to the same text the first one wins.
func NewTable(aliases []Alias) *Table {
	t := &Table{exact: make(map[string]string, len(aliases))}
	for _, a := range aliases {
		key := transcript.Normalize(a.Phrase)
		if key == "" || a.SpellID == "" {
			continue
		}
		if _, dup := t.exact[key]; dup {
			continue
		}
		t.exact[key] = a.SpellID
		t.ordered = append(t.ordered, key)
	}
	slices.SortFunc(t.ordered, func(a, b string) int {
		if c := cmp.Compare(len([]rune(b)), len([]rune(a))); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return t
}

// Len returns the number of distinct normalized phrases in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.exact)
}

// Lookup returns the spell id registered for the exact normalized phrase.
func (t *Table) Lookup(normalized string) (string, bool) {
	if t == nil {
		return "", false
	}
	id, ok := t.exact[normalized]
	return id, ok
}

// Phrases returns the table's normalized phrases in substring-probe order.
func (t *Table) Phrases() []string {
	if t == nil {
		return nil
	}
	return slices.Clone(t.ordered)
}

// match runs the three built-in stages against an already normalized string.
func (t *Table) match(normalized string) (string, bool) {
	if id, ok := t.Lookup(normalized); ok {
		return id, true
	}
	for _, tok := range transcript.Tokens(normalized) {
		if id, ok := t.Lookup(tok); ok {
			return id, true
		}
	}
	for _, key := range t.ordered {
		if strings.Contains(normalized, key) {
			return t.exact[key], true
		}
	}
	return "", false
}
