// Package pubnlp extracts study metadata from abstract text using regex
// patterns and a design-phrase table. No external dependencies.
package pubnlp

import (
	"regexp"
	"strconv"
	"strings"
)

// StudyMeta is what Extract pulls from one abstract.
type StudyMeta struct {
	// Design is the canonical study design, empty when none is recognized.
	Design string `json:"design,omitempty"`
	// RegistryIDs are trial registry identifiers in order of appearance.
	RegistryIDs []string `json:"registry_ids,omitempty"`
	// SampleSize is the largest enrollment figure found, 0 when none.
	SampleSize int `json:"sample_size,omitempty"`
}

// Meta keys used when StudyMeta is folded into a document's Meta map.
const (
	MetaStudyDesign = "study_design"
	MetaRegistryIDs = "registry_ids"
	MetaSampleSize  = "sample_size"
)

// Canonical study designs.
const (
	DesignRCT            = "randomized controlled trial"
	DesignMetaAnalysis   = "meta-analysis"
	DesignSystematic     = "systematic review"
	DesignCohort         = "cohort study"
	DesignCaseControl    = "case-control study"
	DesignCrossSectional = "cross-sectional study"
	DesignCaseReport     = "case report"
)

// designPhrases maps lowercase phrases to canonical designs, checked in
// order: the first match wins, so more specific designs come first.
var designPhrases = []struct {
	phrase string
	design string
}{
	{"meta-analysis", DesignMetaAnalysis},
	{"meta analysis", DesignMetaAnalysis},
	{"systematic review", DesignSystematic},
	{"randomized controlled trial", DesignRCT},
	{"randomised controlled trial", DesignRCT},
	{"randomized clinical trial", DesignRCT},
	{"randomised clinical trial", DesignRCT},
	{"double-blind", DesignRCT},
	{"placebo-controlled trial", DesignRCT},
	{"case-control study", DesignCaseControl},
	{"case control study", DesignCaseControl},
	{"cross-sectional study", DesignCrossSectional},
	{"cross sectional study", DesignCrossSectional},
	{"prospective cohort", DesignCohort},
	{"retrospective cohort", DesignCohort},
	{"cohort study", DesignCohort},
	{"case report", DesignCaseReport},
	{"case series", DesignCaseReport},
}

var registryRx = regexp.MustCompile(`\b(?:NCT\d{8}|ISRCTN\d{6,8}|ChiCTR[-\w]+\d|EudraCT\s+\d{4}-\d{6}-\d{2}|ACTRN\d{14})\b`)

var sampleRxs = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bn\s*=\s*(\d{1,3}(?:,\d{3})+|\d+)`),
	regexp.MustCompile(`(?i)\b(\d{1,3}(?:,\d{3})+|\d+)\s+(?:patients|participants|subjects|adults|individuals|women|men|children|infants)\b`),
	regexp.MustCompile(`(?i)\b(?:enrolled|randomized|randomised|recruited|included)\s+(\d{1,3}(?:,\d{3})+|\d+)\b`),
}

// Extract pulls study design, registry IDs, and sample size from text.
// Detection is pattern-based and conservative: a miss returns the zero
// value rather than a guess.
func Extract(text string) StudyMeta {
	var meta StudyMeta
	lower := strings.ToLower(text)

	for _, dp := range designPhrases {
		if strings.Contains(lower, dp.phrase) {
			meta.Design = dp.design
			break
		}
	}

	seen := map[string]bool{}
	for _, id := range registryRx.FindAllString(text, -1) {
		id = strings.Join(strings.Fields(id), " ")
		if !seen[id] {
			seen[id] = true
			meta.RegistryIDs = append(meta.RegistryIDs, id)
		}
	}

	for _, rx := range sampleRxs {
		for _, m := range rx.FindAllStringSubmatch(text, -1) {
			if n := parseCount(m[1]); n > meta.SampleSize {
				meta.SampleSize = n
			}
		}
	}

	return meta
}

// Fold merges extracted metadata into a document Meta map, leaving existing
// keys untouched.
func (m StudyMeta) Fold(into map[string]string) map[string]string {
	if into == nil {
		into = make(map[string]string, 3)
	}
	if m.Design != "" && into[MetaStudyDesign] == "" {
		into[MetaStudyDesign] = m.Design
	}
	if len(m.RegistryIDs) > 0 && into[MetaRegistryIDs] == "" {
		into[MetaRegistryIDs] = strings.Join(m.RegistryIDs, ",")
	}
	if m.SampleSize > 0 && into[MetaSampleSize] == "" {
		into[MetaSampleSize] = strconv.Itoa(m.SampleSize)
	}
	return into
}

func parseCount(s string) int {
	n, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	if err != nil || n <= 0 {
		return 0
	}
	// Years and p-value fragments sometimes slip into count positions; an
	// enrollment above ten million is noise.
	if n > 10_000_000 {
		return 0
	}
	return n
}
