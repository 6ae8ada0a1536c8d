package world

import (
	"context"
	"fmt"

	"github.com/MrWong99/voxcast/pkg/types"
)

// handleRecognition turns a finished listening session into a cast request
// for the session's actor. Transcripts that resolve to no spell are echoed
// when debug notices are on and dropped.
func (w *World) handleRecognition(ctx context.Context, r types.RecognitionResult) {
	a, ok := w.actors[r.SessionActor]
	if !ok {
		return
	}

	shown := r.Transcript
	if shown == "" {
		shown = "(silence)"
	}

	normalized, spellID, ok := w.matcher.Resolve(r.Transcript)
	if !ok {
		w.debugNotice(r.SessionActor, w.noMatchText(shown, normalized))
		return
	}
	w.debugNotice(r.SessionActor, fmt.Sprintf("%s -> %s", shown, spellID))

	now := w.now()
	cooldownMs := int64(w.cfg.GlobalCooldownSec * 1000)
	if a.lastSentMs > 0 && now-a.lastSentMs < cooldownMs {
		w.debugNotice(r.SessionActor, "Cooldown: spell not sent.")
		return
	}
	a.lastSentMs = now
	a.nonce++

	req := types.CastRequest{
		ActorID:     r.SessionActor,
		SpellID:     spellID,
		Transcript:  r.Transcript,
		TimestampMs: now,
		Nonce:       a.nonce,
	}
	w.orch.Handle(ctx, req, r.SessionActor)
}

func (w *World) noMatchText(shown, normalized string) string {
	if w.suggester != nil && normalized != "" {
		if phrase, _, ok := w.suggester.Suggest(normalized, w.matcher.Phrases()); ok {
			return fmt.Sprintf("%s (no match, did you mean '%s'?)", shown, phrase)
		}
	}
	return shown + " (no match)"
}
