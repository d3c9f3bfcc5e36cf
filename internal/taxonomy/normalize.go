package taxonomy

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// KeySeparator joins the segments of composite record keys (PROJECT#P-1#LINEITEM#MOD-ING)
const KeySeparator = "#"

var (
	nonKeyChars    = regexp.MustCompile(`[^a-z0-9-]+`)
	repeatedHyphen = regexp.MustCompile(`-{2,}`)
	whitespace     = regexp.MustCompile(`\s+`)
)

// NormalizeKey turns a raw identifier into the comparison key shared by every
// lookup in the engine. Only the last #-segment is kept, diacritics are
// dropped, and anything outside [a-z0-9-] collapses into a single hyphen.
// The empty key is returned for empty input and never matches anything.
func NormalizeKey(raw string) string {
	if i := strings.LastIndex(raw, KeySeparator); i >= 0 {
		raw = raw[i+len(KeySeparator):]
	}
	if raw == "" {
		return ""
	}

	key := stripDiacritics(strings.ToLower(raw))
	key = nonKeyChars.ReplaceAllString(key, "-")
	key = repeatedHyphen.ReplaceAllString(key, "-")
	return strings.Trim(key, "-")
}

// NormalizeText folds free text for equality checks: diacritics, case and
// whitespace runs are ignored. Structure is otherwise preserved.
func NormalizeText(s string) string {
	s = stripDiacritics(strings.ToLower(s))
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(func(r rune) bool {
		return unicode.Is(unicode.Mn, r)
	}), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}
