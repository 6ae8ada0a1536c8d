package config

import (
	"slices"
	"strings"
)

// spellDefault is the shipped definition of one spell.
type spellDefault struct {
	id      string
	cost    int
	params  map[string]any
	phrases []string
}

// spellDefaults is ordered; the order is the one phrases are repaired in.
var spellDefaults = []spellDefault{
	{"lightning", 35, nil, []string{"молния", "молнии", "lightning"}},
	{"web", 25, map[string]any{"lifetime_sec": 3.5, "cross_radius": 2}, []string{"паутина", "сеть", "web"}},
	{"heal", 30, map[string]any{"regen_sec": 3, "saturation_sec": 3}, []string{"лечение", "исцеление", "heal"}},
	{"ghost", 40, map[string]any{"duration_sec": 1.5}, []string{"призрак", "спектр", "ghost"}},
	{"wall", 35, map[string]any{"size": 6, "lifetime_sec": 4.0}, []string{"стена", "wall"}},
	{"fireball", 45, map[string]any{"power": 2.5, "block_damage": false}, []string{"огонь", "фаербол", "fireball"}},
	{"slime", 15, map[string]any{"lifetime_sec": 2.0}, []string{"слизь", "платформа", "slime"}},
	{"dome", 40, map[string]any{"lifetime_sec": 2.0, "size": 3}, []string{"купол", "щит", "dome"}},
	{"shockwave", 20, map[string]any{"power": 6.0}, []string{"ударная волна", "шоквейв", "shockwave"}},
	{"levitate", 25, map[string]any{"power": 15.0}, []string{"левитация", "подняться", "levitate"}},
	{"meteor", 50, map[string]any{"power": 20.0}, []string{"метеор", "звездный падение", "meteor"}},
	{"push", 10, map[string]any{"power": 1.5}, []string{"толчок", "рывок", "push"}},
	{"teleport", 35, map[string]any{"power": 10.0}, []string{"телепорт", "перенос", "teleport"}},
	{"pull", 25, map[string]any{"power": 5.0}, []string{"притяжение", "притяни", "pull"}},
}

// Defaults returns a fully populated configuration. [LoadFromReader] decodes
// on top of it, so every key missing from a file keeps its default. Map keys
// (spells, phrases) are merged rather than replaced.
func Defaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			ListenAddr:     ":8080",
			LogLevel:       LogInfo,
			TickRateHz:     20,
			SyncEveryTicks: 10,
			DebugNotices:   true,
		},
		Mana:              ManaConfig{Max: 100, RegenPerSec: 5},
		GlobalCooldownSec: 0.5,
		Spells:            make(map[string]SpellConfig, len(spellDefaults)),
		Voice: VoiceConfig{
			Language:     "ru",
			SampleRate:   16000,
			MaxListenSec: 6,
			Phrases:      DefaultPhrases(),
		},
		Telemetry: TelemetryConfig{ServiceName: "voxcast"},
	}
	for _, s := range spellDefaults {
		var params map[string]any
		if s.params != nil {
			params = make(map[string]any, len(s.params))
			for k, v := range s.params {
				params[k] = v
			}
		}
		cfg.Spells[s.id] = SpellConfig{ManaCost: s.cost, Params: params}
	}
	return cfg
}

// DefaultPhrases returns a fresh copy of the shipped alias phrases per spell.
func DefaultPhrases() map[string][]string {
	out := make(map[string][]string, len(spellDefaults))
	for _, s := range spellDefaults {
		out[s.id] = slices.Clone(s.phrases)
	}
	return out
}

// RepairPhrases restores the shipped phrases for every default spell whose
// entry is missing or contains text that was corrupted by a lossy encoding
// round trip (a U+FFFD replacement character). It returns the repaired spell
// ids in default order.
func RepairPhrases(phrases map[string][]string) []string {
	var repaired []string
	for _, s := range spellDefaults {
		existing, ok := phrases[s.id]
		if ok && !corrupted(existing) {
			continue
		}
		phrases[s.id] = slices.Clone(s.phrases)
		repaired = append(repaired, s.id)
	}
	return repaired
}

func corrupted(values []string) bool {
	return slices.ContainsFunc(values, func(v string) bool {
		return strings.ContainsRune(v, '\uFFFD')
	})
}
