package config_test

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/voxcast/internal/config"
	"github.com/MrWong99/voxcast/pkg/provider/stt"
	"github.com/MrWong99/voxcast/pkg/provider/stt/mock"
)

const validYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  tick_rate_hz: 40
  debug_notices: false
  actor_tokens:
    secret-a: alice
mana:
  max: 120
  regen_per_sec: 2.5
global_cooldown_sec: 0.25
spells:
  Lightning:
    mana_cost: 40
    params:
      power: 3
  frost:
    mana_cost: 20
voice:
  test_phrase: молния
  hotwords: [экспеллиармус]
  phrases:
    frost: ["мороз", "холод"]
providers:
  stt:
    name: deepgram
    api_key: dg-key
    model: nova-2
  stt_fallbacks:
    - name: whisper-native
      model: /models/ggml-small.bin
access:
  postgres_dsn: "postgres://localhost/voxcast"
`

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, validYAML)

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.TickRateHz != 40 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.DebugNotices {
		t.Error("debug_notices should be false")
	}
	if cfg.Server.ActorTokens["secret-a"] != "alice" {
		t.Errorf("actor_tokens = %v", cfg.Server.ActorTokens)
	}
	if cfg.Mana.Max != 120 || cfg.Mana.RegenPerSec != 2.5 {
		t.Errorf("mana = %+v", cfg.Mana)
	}
	if got := cfg.CooldownTicks(); got != 10 {
		t.Errorf("CooldownTicks = %d, want 10 (0.25s at 40Hz)", got)
	}

	// Spell keys are lower-cased; defaults are merged with the file.
	if cost, ok := cfg.CostOf("LIGHTNING"); !ok || cost != 40 {
		t.Errorf("CostOf(lightning) = (%d, %v), want (40, true)", cost, ok)
	}
	if cost, ok := cfg.CostOf("frost"); !ok || cost != 20 {
		t.Errorf("CostOf(frost) = (%d, %v)", cost, ok)
	}
	if cost, ok := cfg.CostOf("meteor"); !ok || cost != 50 {
		t.Errorf("default meteor cost = (%d, %v), want (50, true)", cost, ok)
	}
	if _, ok := cfg.CostOf("nope"); ok {
		t.Error("unknown spell reported as known")
	}
	if p := cfg.SpellParams("lightning"); p["power"] != 3 {
		t.Errorf("lightning params = %v", p)
	}

	if !slices.Equal(cfg.Voice.Phrases["frost"], []string{"мороз", "холод"}) {
		t.Errorf("frost phrases = %v", cfg.Voice.Phrases["frost"])
	}
	if !slices.Contains(cfg.Voice.Phrases["shockwave"], "шоквейв") {
		t.Errorf("default shockwave phrases missing: %v", cfg.Voice.Phrases["shockwave"])
	}
	if cfg.Providers.STT.Name != "deepgram" || len(cfg.Providers.STTFallbacks) != 1 {
		t.Errorf("providers = %+v", cfg.Providers)
	}
}

func TestLoadFromReader_EmptyIsDefaults(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, "")

	if cfg.Server.ListenAddr != ":8080" || cfg.Server.TickRateHz != 20 || cfg.Server.SyncEveryTicks != 10 || !cfg.Server.DebugNotices {
		t.Errorf("server = %+v, want defaults", cfg.Server)
	}
	if cfg.Mana.Max != 100 || cfg.Mana.RegenPerSec != 5 {
		t.Errorf("mana = %+v", cfg.Mana)
	}
	if got := cfg.CooldownTicks(); got != 10 {
		t.Errorf("CooldownTicks = %d, want 10", got)
	}
	if len(cfg.Spells) != 14 {
		t.Errorf("spells = %d, want 14", len(cfg.Spells))
	}
	if cfg.Voice.SampleRate != 16000 || cfg.Voice.MaxListenSec != 6 || cfg.Voice.Language != "ru" {
		t.Errorf("voice = %+v", cfg.Voice)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  bogus: 1\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFromReader_RepairsCorruptedPhrases(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, "voice:\n  phrases:\n    dome: [\"�����\", \"dome\"]\n")

	if !slices.Equal(cfg.Voice.Phrases["dome"], []string{"купол", "щит", "dome"}) {
		t.Errorf("dome phrases = %v, want defaults", cfg.Voice.Phrases["dome"])
	}
}

func TestDefaults_Independent(t *testing.T) {
	t.Parallel()

	a := config.Defaults()
	a.Voice.Phrases["heal"][0] = "changed"
	a.Spells["web"].Params["cross_radius"] = 99

	b := config.Defaults()
	if b.Voice.Phrases["heal"][0] != "лечение" {
		t.Error("Defaults shares phrase slices between calls")
	}
	if b.Spells["web"].Params["cross_radius"] != 2 {
		t.Error("Defaults shares spell params between calls")
	}
}

func TestRepairPhrases(t *testing.T) {
	t.Parallel()

	phrases := config.DefaultPhrases()
	delete(phrases, "pull")
	phrases["web"] = []string{"па�ина"}
	phrases["heal"] = []string{"подлечи"}

	repaired := config.RepairPhrases(phrases)
	if !slices.Equal(repaired, []string{"web", "pull"}) {
		t.Errorf("repaired = %v, want [web pull]", repaired)
	}
	if phrases["heal"][0] != "подлечи" {
		t.Error("valid custom phrases must be kept")
	}
	if len(phrases["pull"]) != 3 {
		t.Errorf("pull = %v", phrases["pull"])
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"log level", func(c *config.Config) { c.Server.LogLevel = "bananas" }, "server.log_level"},
		{"tick rate", func(c *config.Config) { c.Server.TickRateHz = 0 }, "server.tick_rate_hz"},
		{"sync cadence", func(c *config.Config) { c.Server.SyncEveryTicks = 0 }, "server.sync_every_ticks"},
		{"mana max", func(c *config.Config) { c.Mana.Max = 0 }, "mana.max"},
		{"negative regen", func(c *config.Config) { c.Mana.RegenPerSec = -1 }, "mana.regen_per_sec"},
		{"negative cooldown", func(c *config.Config) { c.GlobalCooldownSec = -1 }, "global_cooldown_sec"},
		{"negative cost", func(c *config.Config) {
			c.Spells["push"] = config.SpellConfig{ManaCost: -5}
		}, "spells.push.mana_cost"},
		{"sample rate", func(c *config.Config) { c.Voice.SampleRate = 0 }, "voice.sample_rate"},
		{"listen cap", func(c *config.Config) { c.Voice.MaxListenSec = 0 }, "voice.max_listen_sec"},
		{"fallback without primary", func(c *config.Config) {
			c.Providers.STTFallbacks = []config.ProviderEntry{{Name: "deepgram"}}
		}, "requires providers.stt"},
		{"fallback without name", func(c *config.Config) {
			c.Providers.STT.Name = "deepgram"
			c.Providers.STTFallbacks = []config.ProviderEntry{{}}
		}, "stt_fallbacks[0].name"},
		{"duplicate actor token", func(c *config.Config) {
			c.Server.ActorTokens = map[string]string{"a": "alice", "b": "alice"}
		}, "more than one token"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Defaults()
			tc.mutate(cfg)
			err := config.Validate(cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Server.LogLevel = "loud"
	cfg.Mana.Max = -1
	cfg.Voice.SampleRate = -1

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.log_level", "mana.max", "voice.sample_rate"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestRegistry_UnknownSTT(t *testing.T) {
	t.Parallel()

	r := config.NewRegistry()
	_, err := r.CreateSTT(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_RegisteredSTT(t *testing.T) {
	t.Parallel()

	r := config.NewRegistry()
	want := &mock.Provider{}
	var gotEntry config.ProviderEntry
	r.RegisterSTT("mock", func(e config.ProviderEntry) (stt.Provider, error) {
		gotEntry = e
		return want, nil
	})
	r.RegisterSTT("deepgram", func(config.ProviderEntry) (stt.Provider, error) {
		return nil, errors.New("no key")
	})

	p, err := r.CreateSTT(config.ProviderEntry{Name: "mock", Model: "tiny"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p != want || gotEntry.Model != "tiny" {
		t.Errorf("factory not used correctly: p=%v entry=%+v", p, gotEntry)
	}

	if _, err := r.CreateSTT(config.ProviderEntry{Name: "deepgram"}); err == nil {
		t.Error("factory error not propagated")
	}
	if names := r.STTNames(); !slices.Equal(names, []string{"deepgram", "mock"}) {
		t.Errorf("STTNames = %v", names)
	}
}
