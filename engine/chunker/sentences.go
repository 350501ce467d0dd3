package chunker

import (
	"strings"
	"unicode"
)

// SentenceSplitter is the injected sentence-boundary collaborator. Split
// returns ordered, non-overlapping spans covering the sentences of text.
// Implementations must be deterministic and safe for concurrent use.
type SentenceSplitter interface {
	Split(text string) []Span
}

// Abbreviations that end with a period but never end a sentence.
var abbreviations = map[string]bool{
	"al": true, "vs": true, "e.g": true, "i.e": true, "cf": true,
	"fig": true, "figs": true, "ref": true, "refs": true, "no": true,
	"dr": true, "prof": true, "ca": true, "approx": true, "resp": true,
	"min": true, "max": true, "mg": true, "kg": true, "vol": true,
}

// RegexSplitter is the default sentence splitter: a punctuation scan tuned
// for biomedical prose. It will not break on decimal points ("p<0.001"),
// common abbreviations ("et al.", "vs."), or anywhere inside parentheses,
// where statistics routinely live.
type RegexSplitter struct{}

// Split implements SentenceSplitter.
func (RegexSplitter) Split(text string) []Span {
	var spans []Span
	start := 0
	depth := 0 // parenthesis/bracket nesting

	runes := []rune(text)
	byteOf := make([]int, len(runes)+1)
	{
		b := 0
		for i, r := range runes {
			byteOf[i] = b
			b += len(string(r))
		}
		byteOf[len(runes)] = len(text)
	}

	emit := func(endRune int) {
		s, e := byteOf[start], byteOf[endRune]
		if strings.TrimSpace(text[s:e]) != "" {
			spans = append(spans, Span{Start: s, End: e})
		}
		start = endRune
	}

	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '(', '[':
			depth++
			continue
		case ')', ']':
			if depth > 0 {
				depth--
			}
			continue
		case '\n':
			if depth == 0 {
				emit(i + 1)
			}
			continue
		case '.', '!', '?':
		default:
			continue
		}
		if depth > 0 {
			continue
		}
		// Terminator at end of text closes the final sentence.
		if i == len(runes)-1 {
			emit(i + 1)
			continue
		}
		next := runes[i+1]
		if !unicode.IsSpace(next) {
			continue // decimal point, version number, "p<0.001"
		}
		if runes[i] == '.' && isAbbreviation(runes, i) {
			continue
		}
		// Require the next sentence to open with something sentence-like.
		if j := nextNonSpace(runes, i+1); j >= 0 {
			r := runes[j]
			if !unicode.IsUpper(r) && !unicode.IsDigit(r) && r != '(' && r != '"' {
				continue
			}
		}
		emit(i + 1)
	}
	if start < len(runes) {
		emit(len(runes))
	}
	return spans
}

func nextNonSpace(runes []rune, from int) int {
	for j := from; j < len(runes); j++ {
		if !unicode.IsSpace(runes[j]) {
			return j
		}
	}
	return -1
}

// isAbbreviation reports whether the period at runes[i] terminates a known
// abbreviation rather than a sentence.
func isAbbreviation(runes []rune, i int) bool {
	j := i - 1
	for j >= 0 && (unicode.IsLetter(runes[j]) || runes[j] == '.') {
		j--
	}
	word := strings.ToLower(string(runes[j+1 : i]))
	if abbreviations[word] {
		return true
	}
	// Single capital letter, as in author initials: "J. Smith".
	if i-(j+1) == 1 && unicode.IsUpper(runes[j+1]) {
		return true
	}
	return false
}
