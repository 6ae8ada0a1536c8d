package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidSTTProviders lists the STT provider names known to the server.
// Used by [Validate] to warn about unrecognised provider names.
var ValidSTTProviders = []string{"deepgram", "whisper-native"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Defaults],
// repairs corrupted alias phrases and validates the result. An empty input
// yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	cfg.Spells = lowerKeys(cfg.Spells)
	cfg.Voice.Phrases = lowerKeys(cfg.Voice.Phrases)
	if repaired := RepairPhrases(cfg.Voice.Phrases); len(repaired) > 0 {
		slog.Warn("config: restored default phrases", "spells", repaired)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TickRateHz < 1 || cfg.Server.TickRateHz > 1000 {
		errs = append(errs, fmt.Errorf("server.tick_rate_hz %d is out of range [1, 1000]", cfg.Server.TickRateHz))
	}
	if cfg.Server.SyncEveryTicks < 1 {
		errs = append(errs, fmt.Errorf("server.sync_every_ticks must be positive, got %d", cfg.Server.SyncEveryTicks))
	}
	seenActors := make(map[string]bool, len(cfg.Server.ActorTokens))
	for token, actor := range cfg.Server.ActorTokens {
		if token == "" || actor == "" {
			errs = append(errs, errors.New("server.actor_tokens: tokens and actor ids must be non-empty"))
			continue
		}
		if seenActors[actor] {
			errs = append(errs, fmt.Errorf("server.actor_tokens: actor %q has more than one token", actor))
		}
		seenActors[actor] = true
	}

	// Mana
	if cfg.Mana.Max <= 0 {
		errs = append(errs, fmt.Errorf("mana.max must be positive, got %d", cfg.Mana.Max))
	}
	if cfg.Mana.RegenPerSec < 0 {
		errs = append(errs, fmt.Errorf("mana.regen_per_sec must not be negative, got %.2f", cfg.Mana.RegenPerSec))
	}
	if cfg.GlobalCooldownSec < 0 {
		errs = append(errs, fmt.Errorf("global_cooldown_sec must not be negative, got %.2f", cfg.GlobalCooldownSec))
	}

	// Spells
	for _, id := range sortedKeys(cfg.Spells) {
		s := cfg.Spells[id]
		if s.ManaCost < 0 {
			errs = append(errs, fmt.Errorf("spells.%s.mana_cost must not be negative, got %d", id, s.ManaCost))
		}
		if s.ManaCost > cfg.Mana.Max && cfg.Mana.Max > 0 {
			slog.Warn("config: spell costs more than the mana pool and can never be cast",
				"spell", id, "cost", s.ManaCost, "max", cfg.Mana.Max)
		}
	}

	// Voice
	if cfg.Voice.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("voice.sample_rate must be positive, got %d", cfg.Voice.SampleRate))
	}
	if cfg.Voice.MaxListenSec <= 0 {
		errs = append(errs, fmt.Errorf("voice.max_listen_sec must be positive, got %.2f", cfg.Voice.MaxListenSec))
	}
	for _, id := range sortedKeys(cfg.Voice.Phrases) {
		if _, ok := cfg.Spells[id]; !ok {
			slog.Warn("config: phrases configured for an unknown spell", "spell", id)
		}
	}

	// Providers
	validateProviderName("providers.stt", cfg.Providers.STT.Name)
	for i, fb := range cfg.Providers.STTFallbacks {
		prefix := fmt.Sprintf("providers.stt_fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateProviderName(prefix, fb.Name)
	}
	if len(cfg.Providers.STTFallbacks) > 0 && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt_fallbacks requires providers.stt to be configured"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not one of
// [ValidSTTProviders].
func validateProviderName(field, name string) {
	if name == "" || slices.Contains(ValidSTTProviders, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"field", field,
		"name", name,
		"known", ValidSTTProviders,
	)
}

// lowerKeys normalizes map keys. Keys that had to be rewritten win over an
// already normalized key, so "Lightning" in a file overrides the default
// "lightning".
func lowerKeys[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	var rewritten []string
	for k, v := range m {
		norm := strings.ToLower(strings.TrimSpace(k))
		if norm != k {
			rewritten = append(rewritten, k)
			continue
		}
		out[k] = v
	}
	slices.Sort(rewritten)
	for _, k := range rewritten {
		out[strings.ToLower(strings.TrimSpace(k))] = m[k]
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
