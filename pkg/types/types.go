// Package types defines the shared types used across all voxcast packages.
//
// They form the lingua franca between the speech providers, the listening
// sessions, the transport and the cast pipeline. Each package keeps its own
// domain types; only cross-cutting data structures live here to avoid import
// cycles.
package types

import "time"

// ActorID identifies a connected participant whose requests are arbitrated.
type ActorID string

// String returns the identifier as a plain string.
func (a ActorID) String() string { return string(a) }

// CastRequest is a request to cast a spell. It arrives over an untrusted
// channel: ActorID must be cross-checked against the authenticated sender
// before anything else is done with it.
type CastRequest struct {
	// ActorID is the actor the sender claims to be.
	ActorID ActorID `json:"actor_id"`

	// SpellID is the claimed spell id, already resolved by the sender.
	SpellID string `json:"spell_id"`

	// Transcript is the raw text the spell was resolved from. Its normalized
	// form is the arbitration key.
	Transcript string `json:"transcript"`

	// TimestampMs is the sender's wall clock in Unix milliseconds.
	TimestampMs int64 `json:"timestamp_ms"`

	// Nonce is a per-actor counter used for replay protection.
	Nonce int64 `json:"nonce"`
}

// RecognitionResult is produced once per listening session. Transcript may be
// empty when nothing was heard.
type RecognitionResult struct {
	Transcript   string
	SessionActor ActorID
}

// AudioFrame is a chunk of raw 16-bit little-endian PCM captured for an actor.
type AudioFrame struct {
	// Data holds the PCM samples.
	Data []byte

	// SampleRate in Hz (16000 for most STT engines).
	SampleRate int

	// Channels is 1 for mono.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Transcript is a speech-to-text result from an STT provider. Both partial
// (interim) and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial
	// (interim) transcript.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report it.
	Confidence float64

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// KeywordBoost is a vocabulary hint that raises the recognition probability of
// a spell phrase.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "молния").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}
