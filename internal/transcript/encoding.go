package transcript

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// fallbackEncodings lists the legacy single-byte code pages tried by
// [RecoverEncoding], in order. The two regional Cyrillic pages come first;
// ISO-8859-1 maps every byte to the rune of the same value and therefore
// undoes a plain Latin-1 mis-tag byte for byte.
var fallbackEncodings = []struct {
	name string
	cm   *charmap.Charmap
}{
	{"ibm866", charmap.CodePage866},
	{"windows-1251", charmap.Windows1251},
	{"iso-8859-1", charmap.ISO8859_1},
}

// HasTargetAlphabet reports whether s contains at least one letter of the
// alphabet the spell dictionary is written in: lower-case Cyrillic а–я plus
// ё and Ё. Upper-case А–Я is deliberately excluded because windows-1251
// mojibake of UTF-8 text is full of 'Р' and 'С' lead characters.
func HasTargetAlphabet(s string) bool {
	for _, r := range s {
		if (r >= 'а' && r <= 'я') || r == 'ё' || r == 'Ё' {
			return true
		}
	}
	return false
}

// RecoverEncoding repairs mojibake produced by recognizers that emit UTF-8
// bytes labelled as a legacy code page. Text that already contains Cyrillic
// letters is returned unchanged. Otherwise the text is encoded back into each
// candidate code page and the resulting bytes are read as UTF-8; the first
// candidate that contains Cyrillic letters wins. If none does, raw is returned
// unchanged. RecoverEncoding never fails: a candidate that cannot be produced
// is skipped.
func RecoverEncoding(raw string) string {
	if raw == "" || HasTargetAlphabet(raw) {
		return raw
	}
	for _, fe := range fallbackEncodings {
		candidate, ok := reinterpret(raw, fe.cm)
		if ok && HasTargetAlphabet(candidate) {
			return candidate
		}
	}
	return raw
}

// reinterpret encodes s with cm and decodes the produced bytes as UTF-8.
// Runes that cm cannot represent are replaced rather than aborting, matching
// how legacy encoders substitute unknown characters.
func reinterpret(s string, cm *charmap.Charmap) (string, bool) {
	enc := encoding.ReplaceUnsupported(cm.NewEncoder())
	b, err := enc.String(s)
	if err != nil {
		return "", false
	}
	if !utf8.ValidString(b) {
		b = strings.ToValidUTF8(b, string(utf8.RuneError))
	}
	return b, true
}
