// Package textnorm canonicalizes chat display names, rule fields, and
// message bodies so that all matching is insensitive to case, diacritics,
// and formatting whitespace. Every comparison in the router goes through
// Normalize on both sides.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFD, drops combining marks (Mn), and recomposes.
// "Señal Única" and "Senal Unica" normalize to the same string.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// colonWS matches whitespace hugging a colon, so "Ops : urgent" and
// "Ops:urgent" compare equal. Group names in the wild carry both forms.
var colonWS = regexp.MustCompile(`\s*:\s*`)

// Normalize returns the canonical form of s: diacritics stripped, whitespace
// around colons removed, all remaining whitespace runs (including CRLF and
// bare newlines) collapsed to single spaces, trimmed, and lower-cased.
//
// Normalize is pure and idempotent: Normalize(Normalize(s)) == Normalize(s).
// The empty string is a valid result and only ever matches an empty field.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}

	s = colonWS.ReplaceAllString(s, ":")
	s = strings.Join(strings.Fields(s), " ")

	return strings.ToLower(s)
}
