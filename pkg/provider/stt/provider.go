// Package stt defines the Provider interface for speech-to-text backends.
//
// A provider wraps a streaming recognition service (Deepgram, a local
// whisper.cpp model) behind a uniform session abstraction: once opened, a
// [SessionHandle] accepts raw PCM chunks and emits interim partials and
// authoritative finals. Listening sessions use partials to stop early once a
// spell phrase is recognised and finals to resolve the utterance when the
// listening window closes.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/voxcast/pkg/types"
)

// ErrSessionClosed is returned by [SessionHandle.SendAudio] after Close.
var ErrSessionClosed = errors.New("stt: session is closed")

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the PCM sample rate in Hz. Zero selects the provider default.
	SampleRate int

	// Channels is the number of interleaved channels. Zero means mono.
	Channels int

	// Language is the BCP-47 tag used for recognition (e.g. "ru").
	Language string

	// Keywords are vocabulary hints for spell phrases the engine is likely to
	// mishear. Providers without keyword support ignore them.
	Keywords []types.KeywordBoost
}

// SessionHandle is an open streaming recognition session.
//
// Close flushes buffered audio: finals produced by the flush are delivered
// before the Finals channel is closed, so callers should keep draining Finals
// after calling Close. All methods are safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of 16-bit little-endian PCM.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. Closed when the session ends.
	Partials() <-chan types.Transcript

	// Finals emits committed transcripts. Closed when the session ends.
	Finals() <-chan types.Transcript

	// Close ends the session. Calling it more than once is safe.
	Close() error
}

// Provider opens recognition sessions. Implementations must support several
// concurrent sessions, one per listening actor.
type Provider interface {
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
