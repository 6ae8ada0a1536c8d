// Package config provides the configuration schema, loader, hot-reload
// watcher and STT provider registry for the voxcast server.
package config

import (
	"math"
	"strings"
)

// LogLevel controls log verbosity for the voxcast server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Mana   ManaConfig   `yaml:"mana"`

	// GlobalCooldownSec is the cooldown armed after every successful cast.
	// It is converted to whole ticks by [Config.CooldownTicks].
	GlobalCooldownSec float64 `yaml:"global_cooldown_sec"`

	// Spells maps lower-case spell ids to their price and action parameters.
	Spells map[string]SpellConfig `yaml:"spells"`

	Voice     VoiceConfig     `yaml:"voice"`
	Providers ProvidersConfig `yaml:"providers"`
	Access    AccessConfig    `yaml:"access"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network, logging and tick loop settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TickRateHz is the number of authoritative ticks per second.
	TickRateHz int `yaml:"tick_rate_hz"`

	// SyncEveryTicks is the cadence of mana sync messages.
	SyncEveryTicks int `yaml:"sync_every_ticks"`

	// DebugNotices enables transcript echo and shared-cast notices.
	DebugNotices bool `yaml:"debug_notices"`

	// ActorTokens maps bearer tokens to actor ids. When empty, the identity
	// announced by the client is trusted.
	ActorTokens map[string]string `yaml:"actor_tokens"`
}

// ManaConfig configures the resource pool.
type ManaConfig struct {
	Max         int     `yaml:"max"`
	RegenPerSec float64 `yaml:"regen_per_sec"`
}

// SpellConfig is the server-side definition of one spell.
type SpellConfig struct {
	// ManaCost is deducted when the spell is cast.
	ManaCost int `yaml:"mana_cost"`

	// Params are forwarded verbatim to the client in the action message.
	Params map[string]any `yaml:"params"`
}

// VoiceConfig configures listening sessions and the configured alias layer.
type VoiceConfig struct {
	// Language is the BCP-47 code handed to the STT provider.
	Language string `yaml:"language"`

	// SampleRate of the PCM the clients stream, in Hz.
	SampleRate int `yaml:"sample_rate"`

	// MaxListenSec caps one listening session.
	MaxListenSec float64 `yaml:"max_listen_sec"`

	// TestPhrase is returned by the stub session when no STT provider is
	// available.
	TestPhrase string `yaml:"test_phrase"`

	// Hotwords are extra keyword boosts for the STT provider.
	Hotwords []string `yaml:"hotwords"`

	// Phrases is the configured alias layer: spell id -> phrases.
	Phrases map[string][]string `yaml:"phrases"`
}

// ProvidersConfig declares the STT provider and its fallbacks. Each entry
// selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	STT          ProviderEntry   `yaml:"stt"`
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
}

// ProviderEntry is the common configuration block of a provider.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider; for whisper-native it is
	// the path to the ggml model file.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// AccessConfig configures the spell access store.
type AccessConfig struct {
	// PostgresDSN selects the PostgreSQL store. Empty keeps overrides in
	// memory only.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
}

// CostOf returns the mana cost of spellID. ok is false for unknown spells.
func (c *Config) CostOf(spellID string) (cost int, ok bool) {
	s, ok := c.Spells[strings.ToLower(spellID)]
	if !ok {
		return 0, false
	}
	return s.ManaCost, true
}

// CooldownTicks returns the global cooldown in ticks of the configured rate.
func (c *Config) CooldownTicks() int {
	if c.GlobalCooldownSec <= 0 || c.Server.TickRateHz <= 0 {
		return 0
	}
	return int(math.Round(c.GlobalCooldownSec * float64(c.Server.TickRateHz)))
}

// SpellParams returns the action parameters of spellID, or nil.
func (c *Config) SpellParams(spellID string) map[string]any {
	return c.Spells[strings.ToLower(spellID)].Params
}
