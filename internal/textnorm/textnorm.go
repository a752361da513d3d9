// Package textnorm holds the canonical string forms used for every name
// comparison and the spelled-out number vocabulary of sale messages.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Name returns the lookup key of a display name: diacritics stripped,
// lowercased, trimmed, inner whitespace collapsed.
func Name(s string) string {
	if s == "" {
		return ""
	}
	// transform.Chain keeps state, so it is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

// Equal reports whether two names share the same canonical form.
func Equal(a, b string) bool {
	return Name(a) == Name(b)
}

// HasPrefix compares canonical forms, so "CANCELAR" has prefix "cancel".
func HasPrefix(s, prefix string) bool {
	return strings.HasPrefix(Name(s), Name(prefix))
}

var numberWords = map[string]string{
	"um": "1", "uma": "1",
	"dois": "2", "duas": "2",
	"tres":   "3",
	"quatro": "4",
	"cinco":  "5",
	"seis":   "6",
	"sete":   "7",
	"oito":   "8",
	"nove":   "9",
	"dez":    "10",
}

// NumberWords replaces spelled-out cardinals with digits, token by token.
func NumberWords(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		if digit, ok := numberWords[Name(tok)]; ok {
			out[i] = digit
			continue
		}
		out[i] = tok
	}
	return out
}
