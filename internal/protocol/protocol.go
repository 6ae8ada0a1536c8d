// Package protocol defines the JSON messages exchanged with actors over the
// realtime connection. Every message carries a "type" discriminator; binary
// frames are raw 16-bit PCM for the actor's live listening session.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/MrWong99/voxcast/internal/mana"
	"github.com/MrWong99/voxcast/pkg/types"
)

// Version is the protocol version a client must announce in its hello.
const Version = "1"

// Message types.
const (
	TypeHello   = "hello"
	TypeWelcome = "welcome"
	TypeCast    = "cast"
	TypeListen  = "listen"
	TypeStatus  = "status"
	TypeMana    = "mana"
	TypeNotice  = "notice"
	TypeAction  = "action"
	TypeError   = "error"
)

// Listen actions.
const (
	ListenStart  = "start"
	ListenStop   = "stop"
	ListenCancel = "cancel"
)

// Error codes.
const (
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrUnauthorized = "E_UNAUTHORIZED"
	ErrConflict     = "E_CONFLICT"
	ErrUnavailable  = "E_UNAVAILABLE"
)

// Base is decoded first to route a message by type.
type Base struct {
	Type string `json:"type"`
}

// DecodeBase extracts the type of a message.
func DecodeBase(b []byte) (Base, error) {
	var base Base
	if err := json.Unmarshal(b, &base); err != nil {
		return Base{}, err
	}
	if base.Type == "" {
		return Base{}, errors.New("protocol: missing type")
	}
	return base, nil
}

// HelloMsg opens a connection (client -> server). Token is checked against
// the configured actor tokens; without tokens the claimed ActorID is trusted.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ActorID         string `json:"actor_id,omitempty"`
	Name            string `json:"name,omitempty"`
	Token           string `json:"token,omitempty"`
}

// WelcomeMsg acknowledges a hello (server -> client).
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ActorID         string `json:"actor_id"`
	ConnectionID    string `json:"connection_id"`
	TickRateHz      int    `json:"tick_rate_hz"`
	SampleRate      int    `json:"sample_rate"`
}

// CastMsg is a cast request resolved by the client (client -> server).
type CastMsg struct {
	Type string `json:"type"`
	types.CastRequest
}

// ListenMsg starts, finishes or abandons server-side listening
// (client -> server).
type ListenMsg struct {
	Type   string `json:"type"`
	Action string `json:"action"`
}

// StatusMsg reports in-world state that gates casting (client -> server).
type StatusMsg struct {
	Type     string `json:"type"`
	Eligible bool   `json:"eligible"`
}

// ManaMsg is the periodic resource sync (server -> client).
type ManaMsg struct {
	Type string `json:"type"`
	mana.Sync
}

// NoticeMsg is user-visible text (server -> client).
type NoticeMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ActionMsg tells the client to apply a spell effect (server -> client).
type ActionMsg struct {
	Type       string         `json:"type"`
	Spell      string         `json:"spell"`
	Params     map[string]any `json:"params,omitempty"`
	Transcript string         `json:"transcript,omitempty"`
	Nonce      int64          `json:"nonce"`
}

// ErrorMsg reports a protocol level failure (server -> client).
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewError builds an [ErrorMsg].
func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, Code: code, Message: message}
}
