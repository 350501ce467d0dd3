package chunker

import (
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// Block-level tags become line breaks so heading structure survives
	// markup stripping; every other tag is dropped.
	blockTagRx = regexp.MustCompile(`(?i)<\s*(?:br\s*/?|/p|/div|/h[1-6]|/li|/tr)\s*>`)
	htmlTagRx  = regexp.MustCompile(`<[^<>]{1,256}>`)

	// A word broken across a line by a trailing hyphen: "hyper-\ntension".
	hyphenBreakRx = regexp.MustCompile(`(\p{L})-\s*\n\s*(\p{L})`)

	spaceRunRx   = regexp.MustCompile(`[ \t\f\r\x{00A0}]+`)
	blankRunRx   = regexp.MustCompile(`\n{3,}`)
	spacedEOLRx  = regexp.MustCompile(` *\n *`)
)

// Normalize canonicalizes raw abstract text: HTML is stripped, Unicode is
// NFKC-normalized, hyphenation line breaks are rejoined, and whitespace runs
// collapse to single spaces while line breaks are preserved. Case, numerals,
// units, and statistical symbols (%, ±, Δ, CI, p=) pass through untouched.
// Empty input passes through unchanged.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	s := blockTagRx.ReplaceAllString(raw, "\n")
	s = htmlTagRx.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)

	s = norm.NFKC.String(s)

	// Soft hyphens never carry meaning in abstracts.
	s = strings.ReplaceAll(s, "­", "")
	s = hyphenBreakRx.ReplaceAllString(s, "$1$2")

	s = spaceRunRx.ReplaceAllString(s, " ")
	s = spacedEOLRx.ReplaceAllString(s, "\n")
	s = blankRunRx.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}
