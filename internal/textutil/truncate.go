// Package textutil holds small UTF-8-safe string helpers built on Go's
// own rune handling.
package textutil

// maxTitleRunes is the display budget for a ticket title before an
// ellipsis is appended.
const maxTitleRunes = 50

// TruncateTitle shortens s to at most maxTitleRunes runes, appending "…"
// when truncated. Iterating over s as []rune (rather than byte-slicing)
// guarantees a multi-byte rune — including astral-plane emoji, which are
// themselves encoded as a single rune in Go's UTF-8-aware range/[]rune
// conversion — is never split.
func TruncateTitle(s string) string {
	runes := []rune(s)
	if len(runes) <= maxTitleRunes {
		return s
	}
	return string(runes[:maxTitleRunes-1]) + "…"
}
