package config

import (
	"maps"
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PhrasesChanged is set when the configured alias layer differs.
	PhrasesChanged bool

	// SpellsChanged is set when any spell cost or parameter differs.
	SpellsChanged bool

	// ManaChanged covers mana.max, mana.regen_per_sec and the cooldown.
	ManaChanged bool

	DebugNoticesChanged bool

	// RestartRequired lists changed keys that only take effect after a
	// restart.
	RestartRequired []string
}

// HotReloadable reports whether d contains anything that can be applied
// without a restart.
func (d ConfigDiff) HotReloadable() bool {
	return d.LogLevelChanged || d.PhrasesChanged || d.SpellsChanged || d.ManaChanged || d.DebugNoticesChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.PhrasesChanged = !maps.EqualFunc(old.Voice.Phrases, new.Voice.Phrases, func(a, b []string) bool {
		return slices.Equal(a, b)
	})
	d.SpellsChanged = !reflect.DeepEqual(old.Spells, new.Spells)
	d.ManaChanged = old.Mana != new.Mana || old.GlobalCooldownSec != new.GlobalCooldownSec
	d.DebugNoticesChanged = old.Server.DebugNotices != new.Server.DebugNotices

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Server.TickRateHz != new.Server.TickRateHz {
		d.RestartRequired = append(d.RestartRequired, "server.tick_rate_hz")
	}
	if old.Server.SyncEveryTicks != new.Server.SyncEveryTicks {
		d.RestartRequired = append(d.RestartRequired, "server.sync_every_ticks")
	}
	if !maps.Equal(old.Server.ActorTokens, new.Server.ActorTokens) {
		d.RestartRequired = append(d.RestartRequired, "server.actor_tokens")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Voice.Language != new.Voice.Language || old.Voice.SampleRate != new.Voice.SampleRate ||
		old.Voice.MaxListenSec != new.Voice.MaxListenSec || old.Voice.TestPhrase != new.Voice.TestPhrase ||
		!slices.Equal(old.Voice.Hotwords, new.Voice.Hotwords) {
		d.RestartRequired = append(d.RestartRequired, "voice")
	}
	if old.Access != new.Access {
		d.RestartRequired = append(d.RestartRequired, "access.postgres_dsn")
	}

	return d
}
