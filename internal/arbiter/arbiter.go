package arbiter

import (
	"fmt"

	"github.com/MrWong99/voxcast/pkg/types"
)

const (
	// DefaultShareWindowMs is how long a successful cast covers the same
	// phrase for its owner and blocks everybody else.
	DefaultShareWindowMs int64 = 400

	// DefaultNoticeIntervalMs rate-limits suppression notices per actor.
	DefaultNoticeIntervalMs int64 = 2_000
)

// NoticeFunc delivers a user-visible message to an actor.
type NoticeFunc func(actor types.ActorID, message string)

type windowKey struct {
	spellID   string
	canonical string
}

type window struct {
	owner       types.ActorID
	ownerName   string
	expiresAtMs int64
}

// Option is a functional option for configuring an [Arbitrator].
type Option func(*Arbitrator)

// WithShareWindow sets the share window in milliseconds.
func WithShareWindow(ms int64) Option {
	return func(a *Arbitrator) {
		if ms > 0 {
			a.shareMs = ms
		}
	}
}

// WithNoticeInterval sets the minimum spacing of suppression notices to one
// actor in milliseconds.
func WithNoticeInterval(ms int64) Option {
	return func(a *Arbitrator) {
		if ms > 0 {
			a.noticeMs = ms
		}
	}
}

// WithNotices enables suppression notices delivered through fn. Without it
// suppressions are silent.
func WithNotices(fn NoticeFunc) Option {
	return func(a *Arbitrator) { a.notify = fn }
}

// Arbitrator grants ownership of (spell, canonical transcript) keys for a
// short window.
type Arbitrator struct {
	shareMs  int64
	noticeMs int64
	notify   NoticeFunc

	windows    map[windowKey]window
	lastNotice map[types.ActorID]int64
}

// New returns an Arbitrator configured with opts.
func New(opts ...Option) *Arbitrator {
	a := &Arbitrator{
		shareMs:    DefaultShareWindowMs,
		noticeMs:   DefaultNoticeIntervalMs,
		windows:    make(map[windowKey]window),
		lastNotice: make(map[types.ActorID]int64),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Claim reports whether actor may proceed with spellID for the canonical
// transcript at nowMs. Expired windows are purged first. A live window owned
// by actor is extended and the claim succeeds; a live window owned by someone
// else suppresses the claim. Without a live window actor becomes the owner.
func (a *Arbitrator) Claim(actor types.ActorID, displayName, spellID, canonical string, nowMs int64) bool {
	a.purge(nowMs)

	key := windowKey{spellID: spellID, canonical: canonical}
	if w, ok := a.windows[key]; ok {
		if w.owner == actor {
			w.expiresAtMs = nowMs + a.shareMs
			a.windows[key] = w
			return true
		}
		a.noticeSuppressed(actor, spellID, w.ownerName, nowMs)
		return false
	}

	a.windows[key] = window{
		owner:       actor,
		ownerName:   displayName,
		expiresAtMs: nowMs + a.shareMs,
	}
	return true
}

// ReleaseAll removes every window owned by actor and its notice bookkeeping.
func (a *Arbitrator) ReleaseAll(actor types.ActorID) {
	for k, w := range a.windows {
		if w.owner == actor {
			delete(a.windows, k)
		}
	}
	delete(a.lastNotice, actor)
}

// Live returns the number of windows still alive at nowMs.
func (a *Arbitrator) Live(nowMs int64) int {
	a.purge(nowMs)
	return len(a.windows)
}

func (a *Arbitrator) purge(nowMs int64) {
	for k, w := range a.windows {
		if w.expiresAtMs <= nowMs {
			delete(a.windows, k)
		}
	}
}

func (a *Arbitrator) noticeSuppressed(actor types.ActorID, spellID, ownerName string, nowMs int64) {
	if a.notify == nil {
		return
	}
	if last, ok := a.lastNotice[actor]; ok && nowMs-last < a.noticeMs {
		return
	}
	a.lastNotice[actor] = nowMs
	a.notify(actor, fmt.Sprintf("Spell '%s' was already cast by %s.", spellID, ownerName))
}
