package chunker

import (
	"regexp"
	"strings"

	"github.com/AbstraktAI/abstrakt-mvp/engine/domain"
)

// SynonymTable maps lowercased heading labels to canonical section names.
// It is loaded once at configuration time and passed explicitly; the detector
// keeps no registry of its own.
type SynonymTable map[string]domain.SectionName

// DefaultSynonyms covers the heading vocabulary of PubMed structured
// abstracts, including the JAMA and BMJ house styles.
func DefaultSynonyms() SynonymTable {
	return SynonymTable{
		"background":   domain.SectionBackground,
		"introduction": domain.SectionBackground,
		"context":      domain.SectionBackground,
		"importance":   domain.SectionBackground,
		"rationale":    domain.SectionBackground,

		"objective":  domain.SectionObjective,
		"objectives": domain.SectionObjective,
		"aim":        domain.SectionObjective,
		"aims":       domain.SectionObjective,
		"purpose":    domain.SectionObjective,
		"goal":       domain.SectionObjective,
		"goals":      domain.SectionObjective,

		"methods":               domain.SectionMethods,
		"method":                domain.SectionMethods,
		"methodology":           domain.SectionMethods,
		"materials and methods": domain.SectionMethods,
		"patients and methods":  domain.SectionMethods,
		"design":                domain.SectionMethods,
		"study design":          domain.SectionMethods,
		"design and methods":    domain.SectionMethods,
		"setting":               domain.SectionMethods,
		"participants":          domain.SectionMethods,
		"interventions":         domain.SectionMethods,
		"exposures":             domain.SectionMethods,
		"main outcomes and measures": domain.SectionMethods,
		"outcome measures":           domain.SectionMethods,

		"results":      domain.SectionResults,
		"findings":     domain.SectionResults,
		"main results": domain.SectionResults,

		"conclusions":               domain.SectionConclusions,
		"conclusion":                domain.SectionConclusions,
		"interpretation":            domain.SectionConclusions,
		"discussion":                domain.SectionConclusions,
		"conclusions and relevance": domain.SectionConclusions,
		"relevance":                 domain.SectionConclusions,
		"significance":              domain.SectionConclusions,
	}
}

// Canonical resolves a raw heading label, reporting whether it is known.
func (t SynonymTable) Canonical(label string) (domain.SectionName, bool) {
	name, ok := t[strings.ToLower(strings.TrimSpace(label))]
	return name, ok
}

// headingRx finds candidate headings: a short capitalized label followed by
// a colon or dash separator, at text start, line start, or directly after a
// sentence terminator. Group 1 is the preceding context, group 2 the label.
var headingRx = regexp.MustCompile(`(^|\n|[.!?] )\s*([A-Z][A-Za-z]*(?:[ /&-][A-Za-z]+){0,4})\s*(?::|—|–| - )\s*`)

// maxHeadingWords bounds how long an unrecognized label may be and still be
// treated as heading-shaped.
const maxHeadingWords = 5

// DetectSections parses heading-delimited text into an ordered section list.
// Recognized labels map through the synonym table to canonical names;
// unrecognized but confidently heading-shaped labels keep their text inline
// inside an Unstructured section so no input is ever dropped. Text with no
// usable headings becomes a single Unstructured section. Repeated headings
// (two Results blocks) stay as separate entries in document order.
func DetectSections(text string, synonyms SynonymTable) []domain.Section {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if synonyms == nil {
		synonyms = DefaultSynonyms()
	}

	matches := headingRx.FindAllStringSubmatchIndex(text, -1)

	type cut struct {
		name      domain.SectionName
		prevEnd   int // body of the previous section ends here
		bodyStart int // this section's body starts here
	}
	var cuts []cut
	for _, m := range matches {
		label := text[m[4]:m[5]]
		name, known := synonyms.Canonical(label)
		if !known {
			if !headingShaped(label) {
				continue
			}
			name = domain.SectionUnstructured
		}
		c := cut{name: name, prevEnd: m[3], bodyStart: m[1]}
		if !known {
			// Preserve the unrecognized heading verbatim in the body.
			c.bodyStart = m[3]
		}
		cuts = append(cuts, c)
	}

	if len(cuts) == 0 {
		return []domain.Section{{Name: domain.SectionUnstructured, Body: text, Order: 0}}
	}

	var sections []domain.Section
	add := func(name domain.SectionName, body string) {
		body = strings.TrimSpace(body)
		if body == "" {
			return
		}
		sections = append(sections, domain.Section{Name: name, Body: body, Order: len(sections)})
	}

	// Preamble before the first heading keeps its text under Unstructured.
	if lead := text[:cuts[0].prevEnd]; strings.TrimSpace(lead) != "" {
		add(domain.SectionUnstructured, lead)
	}
	for i, c := range cuts {
		end := len(text)
		if i+1 < len(cuts) {
			end = cuts[i+1].prevEnd
		}
		add(c.name, text[c.bodyStart:end])
	}
	return sections
}

// headingShaped reports whether an unrecognized label still looks like a
// section heading: a handful of words, each capitalized or a connective.
func headingShaped(label string) bool {
	words := strings.FieldsFunc(label, func(r rune) bool {
		return r == ' ' || r == '/' || r == '&' || r == '-'
	})
	if len(words) == 0 || len(words) > maxHeadingWords {
		return false
	}
	for _, w := range words {
		switch strings.ToLower(w) {
		case "and", "of", "the", "in", "for":
			continue
		}
		r := []rune(w)[0]
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
