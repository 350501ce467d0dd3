package chunker

import (
	"regexp"
	"strings"
)

// The numeric guard keeps a statistic and its comparator in the same window.
// Detection is pattern-based, not semantic: a "statistic-bearing" sentence
// carries an effect size, confidence interval, or p-value token; a
// "comparator" sentence names what the number is measured against.
var (
	statRx = regexp.MustCompile(`(?i)` + strings.Join([]string{
		`\d+(?:\.\d+)?\s*%`,            // percentages
		`\bp\s*[=<>≤≥]\s*0?\.\d+`,      // p-values
		`\b(?:95|90|99)\s*%\s*CI\b`,    // confidence intervals
		`\bCI[ :]\s*[-−]?\d`,           //
		`\bconfidence interval\b`,      //
		`[Δδ]\s*[=<>]`,                 // deltas
		`±\s*\d`,                       //
		`\b(?:OR|HR|RR|IRR|MD|SMD)\s*[=,:]\s*[-−]?\d`, // named effect sizes
		`\b(?:odds|hazard|risk|rate) ratio\b`,
	}, `|`))

	comparatorRx = regexp.MustCompile(`(?i)\b(?:vs\.?|versus|compared (?:with|to)|relative to|placebo|control(?:s| group| arm)?|comparator|baseline|reference group)\b`)

	parenRx = regexp.MustCompile(`\([^()]*\)|\[[^\[\]]*\]`)
)

// boundaryRule is one ordered predicate over a window boundary: trailing is
// the last sentence of the earlier window, leading the first sentence of the
// later one. True means the boundary splits related material and must move.
type boundaryRule struct {
	name  string
	split func(trailing, leading string) bool
}

// guardRules is evaluated in order; the first rule that fires wins. New
// statistic patterns are added here without touching the windower.
var guardRules = []boundaryRule{
	{
		name: "statistic-then-comparator",
		split: func(trailing, leading string) bool {
			return statRx.MatchString(trailing) && comparatorRx.MatchString(leading)
		},
	},
	{
		name: "comparator-then-statistic",
		split: func(trailing, leading string) bool {
			return comparatorRx.MatchString(trailing) && statRx.MatchString(leading)
		},
	},
}

// splitBoundary reports whether any guard rule fires for the boundary.
func splitBoundary(trailing, leading string) bool {
	for _, r := range guardRules {
		if r.split(trailing, leading) {
			return true
		}
	}
	return false
}

// statParentheticals returns spans of parentheticals containing a statistic.
// These are atomic: no boundary adjustment or hard split may cut into them.
func statParentheticals(text string) []Span {
	var spans []Span
	for _, p := range parenRx.FindAllStringIndex(text, -1) {
		if statRx.MatchString(text[p[0]:p[1]]) {
			spans = append(spans, Span{Start: p[0], End: p[1]})
		}
	}
	return spans
}

// expandForNumericSafety moves window boundaries where a statistic has been
// separated from its comparator. Windows belong to a single unit and share
// its sentence indexing. The adjustment may push a window's token count past
// MaxTokens, up to the configured guard ceiling; a boundary that cannot be
// repaired within the ceiling is left in place.
func expandForNumericSafety(windows []Window, u unit, cfg Config) []Window {
	if len(windows) < 2 {
		return windows
	}
	ceiling := cfg.guardCeiling()

	out := make([]Window, 0, len(windows))
	out = append(out, windows[0])
	for i := 1; i < len(windows); i++ {
		prev := &out[len(out)-1]
		cur := windows[i]

		if prev.hardSplit || cur.hardSplit {
			out = append(out, cur)
			continue
		}
		trailing := u.Sentences[prev.End-1].Text
		leading := u.Sentences[cur.Start].Text
		// Overlap seeding may already carry the trailing sentence into the
		// current window; then both sentences co-occur and no move is needed.
		if cur.Start < prev.End || !splitBoundary(trailing, leading) {
			out = append(out, cur)
			continue
		}

		leadTokens := u.Sentences[cur.Start].Tokens
		tailTokens := u.Sentences[prev.End-1].Tokens

		switch {
		case cur.SentenceCount == 1 && prev.TokenCount+cur.TokenCount <= ceiling:
			// The following window is nothing but the leading sentence:
			// absorb it entirely.
			prev.End = cur.End
			prev.TokenCount += cur.TokenCount
			prev.SentenceCount += cur.SentenceCount
			prev.Text = joinSentences(u.Sentences[prev.Start:prev.End])
		case prev.TokenCount+leadTokens <= ceiling:
			// Pull the leading sentence back into the earlier window.
			prev.End++
			prev.TokenCount += leadTokens
			prev.SentenceCount++
			prev.Text = joinSentences(u.Sentences[prev.Start:prev.End])
			cur.Start++
			cur.TokenCount -= leadTokens
			cur.SentenceCount--
			cur.Text = joinSentences(u.Sentences[cur.Start:cur.End])
			out = append(out, cur)
		case cur.TokenCount+tailTokens <= ceiling && prev.SentenceCount > 1:
			// Push the trailing sentence forward instead.
			prev.End--
			prev.TokenCount -= tailTokens
			prev.SentenceCount--
			prev.Text = joinSentences(u.Sentences[prev.Start:prev.End])
			cur.Start--
			cur.TokenCount += tailTokens
			cur.SentenceCount++
			cur.Text = joinSentences(u.Sentences[cur.Start:cur.End])
			out = append(out, cur)
		default:
			// Both directions blow the ceiling; budget pressure wins.
			out = append(out, cur)
		}
	}

	for i := range out {
		out[i].WindowIdx = i
	}
	return out
}
