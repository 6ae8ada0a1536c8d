// Package phonetic produces "did you mean" hints for transcripts that matched
// no spell phrase.
//
// A hint is informational only: it is shown to the speaking actor in debug
// mode and never authorizes a cast. Ranking uses Jaro-Winkler similarity over
// whole phrases, their space-stripped forms and individual words. Latin-script
// phrases additionally get a Double Metaphone pass, and a phonetic overlap lets
// a candidate through at a lower similarity threshold. Cyrillic words have no
// metaphone code and rely on Jaro-Winkler alone.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.75
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Suggester].
type Option func(*Suggester)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a candidate
// whose metaphone codes overlap the input. Default: 0.75.
func WithPhoneticThreshold(threshold float64) Option {
	return func(s *Suggester) { s.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a candidate
// without phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(s *Suggester) { s.fuzzyThreshold = threshold }
}

// Suggester is read-only after construction and safe for concurrent use.
type Suggester struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Suggester] configured with opts.
func New(opts ...Option) *Suggester {
	s := &Suggester{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Suggest returns the phrase from phrases that sounds most like normalized.
// Both inputs are expected in normalized form. ok is false when no phrase
// clears the configured thresholds; ties keep the earlier phrase.
func (s *Suggester) Suggest(normalized string, phrases []string) (phrase string, score float64, ok bool) {
	input := strings.Fields(normalized)
	if len(input) == 0 || len(phrases) == 0 {
		return "", 0, false
	}
	inputCodes := metaphoneCodes(input)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, p := range phrases {
		words := strings.Fields(p)
		if len(words) == 0 {
			continue
		}
		jw := similarity(input, words)
		if overlaps(inputCodes, metaphoneCodes(words)) {
			if jw >= s.phoneticThreshold && (!bestPhonetic || jw > bestScore) {
				best, bestScore, bestPhonetic = p, jw, true
			}
			continue
		}
		if !bestPhonetic && jw >= s.fuzzyThreshold && jw > bestScore {
			best, bestScore = p, jw
		}
	}
	if best == "" {
		return "", 0, false
	}
	return best, bestScore, true
}

// metaphoneCodes collects the non-empty Double Metaphone codes of the Latin
// words in words.
func metaphoneCodes(words []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(words)*2)
	for _, w := range words {
		if !isLatin(w) {
			continue
		}
		primary, secondary := matchr.DoubleMetaphone(w)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

func isLatin(w string) bool {
	for _, r := range w {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return w != ""
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score across the joined phrases, the
// space-stripped phrases and every word pair.
func similarity(input, phrase []string) float64 {
	score := matchr.JaroWinkler(strings.Join(input, " "), strings.Join(phrase, " "), false)
	if len(input) > 1 || len(phrase) > 1 {
		if v := matchr.JaroWinkler(strings.Join(input, ""), strings.Join(phrase, ""), false); v > score {
			score = v
		}
	}
	for _, a := range input {
		for _, b := range phrase {
			if v := matchr.JaroWinkler(a, b, false); v > score {
				score = v
			}
		}
	}
	return score
}
