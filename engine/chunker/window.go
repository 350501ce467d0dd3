package chunker

import (
	"fmt"
	"strings"

	"github.com/AbstraktAI/abstrakt-mvp/engine/domain"
)

// sentence is one splitter-produced sentence with its token count.
type sentence struct {
	Text   string
	Tokens int
}

// unit is a windowing scope: one section, or several short adjacent sections
// merged before windowing. SectionIdx is the order of the unit's first
// section in the document, which anchors chunk IDs against later edits.
type unit struct {
	Name       domain.SectionName
	SectionIdx int
	Sentences  []sentence
}

// Window is a token-bounded group of consecutive sentences, the intermediate
// artifact between windowing and chunk assembly.
type Window struct {
	Section       domain.SectionName
	SectionIdx    int
	WindowIdx     int // position within the unit
	Start, End    int // sentence range [Start, End) within the unit
	Text          string
	TokenCount    int
	SentenceCount int
	hardSplit     bool // piece of an oversized sentence; opaque to the guard
}

// windowUnit applies the greedy token-budget algorithm to one unit's
// sentences: accumulate while at or under TargetTokens; once past target,
// close only if MinTokens is met, otherwise keep filling until MinTokens or
// MaxTokens. Each window after the first is seeded with trailing sentences
// of its predecessor worth at most OverlapTokens, and always advances by at
// least one new sentence.
func windowUnit(u unit, cfg Config, tok Tokenizer) ([]Window, error) {
	sents := u.Sentences
	n := len(sents)
	var windows []Window

	start := 0
	consumed := 0 // sentences definitely emitted; overlap never stalls this
	for start < n {
		tokens := 0
		j := start
		for j < n {
			t := sents[j].Tokens
			if t > cfg.MaxTokens && tokens == 0 {
				// A single sentence over budget is hard-split on token
				// boundaries as a last resort.
				pieces, err := hardSplit(sents[j].Text, cfg, tok)
				if err != nil {
					return nil, err
				}
				for _, p := range pieces {
					windows = append(windows, Window{
						Section: u.Name, SectionIdx: u.SectionIdx,
						Start: j, End: j + 1,
						Text: p.Text, TokenCount: p.Tokens, SentenceCount: 1,
						hardSplit: true,
					})
				}
				j++
				consumed = j
				start = j
				tokens = 0
				continue
			}
			// Sentences re-seeded from the previous window, plus the first
			// genuinely new sentence, are unconditional: the window must
			// advance even under budget pressure.
			if j > consumed && tokens > 0 {
				if tokens+t > cfg.MaxTokens {
					break
				}
				if tokens+t > cfg.TargetTokens && tokens >= cfg.MinTokens {
					break
				}
			}
			tokens += t
			j++
		}
		if j == start { // nothing but hard-split output this round
			continue
		}

		windows = append(windows, Window{
			Section: u.Name, SectionIdx: u.SectionIdx,
			Start: start, End: j,
			Text:          joinSentences(sents[start:j]),
			TokenCount:    tokens,
			SentenceCount: j - start,
		})
		consumed = j
		if j >= n {
			break
		}

		// Overlap seed: walk backwards while the trailing sentences fit the
		// overlap budget and still leave room for the next new sentence.
		k := j
		overlap := 0
		for k > start {
			t := sents[k-1].Tokens
			if overlap+t > cfg.OverlapTokens {
				break
			}
			if overlap+t+sents[j].Tokens > cfg.MaxTokens {
				break
			}
			overlap += t
			k--
		}
		start = k
	}

	for i := range windows {
		windows[i].WindowIdx = i
	}
	return windows, nil
}

// hardSplit cuts an oversized sentence into target-sized pieces along token
// boundaries, moving any cut that would land inside a statistic-bearing
// parenthetical to the start of that parenthetical.
func hardSplit(text string, cfg Config, tok Tokenizer) ([]sentence, error) {
	offsets := tok.Offsets(text)
	if err := checkSpans(offsets, len(text)); err != nil {
		return nil, fmt.Errorf("token offsets: %w", err)
	}
	if len(offsets) == 0 {
		return nil, fmt.Errorf("%w: tokenizer returned no offsets for non-empty text", domain.ErrCollaborator)
	}

	atomic := statParentheticals(text)

	var pieces []sentence
	i := 0
	for i < len(offsets) {
		end := i + cfg.TargetTokens
		if end >= len(offsets) {
			end = len(offsets)
		} else {
			// Never cut inside an atomic parenthetical.
			cutByte := offsets[end].Start
			for _, span := range atomic {
				if cutByte > span.Start && cutByte < span.End {
					moved := tokenIndexAt(offsets, span.Start)
					if moved > i {
						end = moved
					}
					break
				}
			}
		}
		s := strings.TrimSpace(text[offsets[i].Start:offsets[end-1].End])
		if s != "" {
			pieces = append(pieces, sentence{Text: s, Tokens: end - i})
		}
		i = end
	}
	return pieces, nil
}

// tokenIndexAt returns the index of the first token starting at or after the
// given byte position.
func tokenIndexAt(offsets []Span, pos int) int {
	for i, o := range offsets {
		if o.Start >= pos {
			return i
		}
	}
	return len(offsets)
}

func joinSentences(sents []sentence) string {
	parts := make([]string, len(sents))
	for i, s := range sents {
		parts[i] = s.Text
	}
	return strings.Join(parts, " ")
}

// checkSpans validates collaborator-produced spans: in bounds, ordered, and
// non-overlapping.
func checkSpans(spans []Span, limit int) error {
	prev := 0
	for i, s := range spans {
		if s.Start < 0 || s.End > limit || s.Start > s.End {
			return fmt.Errorf("%w: span %d [%d,%d) out of bounds (limit %d)",
				domain.ErrCollaborator, i, s.Start, s.End, limit)
		}
		if s.Start < prev {
			return fmt.Errorf("%w: span %d [%d,%d) overlaps predecessor",
				domain.ErrCollaborator, i, s.Start, s.End)
		}
		prev = s.End
	}
	return nil
}

// buildUnits groups sections for windowing. Adjacent sections whose combined
// token total stays under MinTokens merge into one unit, except that short
// Results and Conclusions sections always merge with each other first: they
// jointly carry the outcome claim and must not be pulled apart by a greedy
// left-to-right merge with Methods.
func buildUnits(sections []domain.Section, sentsBySection [][]sentence, cfg Config) []unit {
	type block struct {
		name       domain.SectionName
		sectionIdx int
		sentences  []sentence
		tokens     int
	}
	blocks := make([]block, len(sections))
	for i, s := range sections {
		total := 0
		for _, sn := range sentsBySection[i] {
			total += sn.Tokens
		}
		blocks[i] = block{name: s.Name, sectionIdx: s.Order, sentences: sentsBySection[i], tokens: total}
	}

	merge := func(i int) {
		blocks[i].sentences = append(blocks[i].sentences, blocks[i+1].sentences...)
		blocks[i].tokens += blocks[i+1].tokens
		blocks = append(blocks[:i+1], blocks[i+2:]...)
	}

	// Priority pass: short Results + short Conclusions pairs.
	for i := 0; i+1 < len(blocks); i++ {
		if blocks[i].name == domain.SectionResults && blocks[i+1].name == domain.SectionConclusions &&
			blocks[i].tokens < cfg.MinTokens && blocks[i+1].tokens < cfg.MinTokens {
			merge(i)
		}
	}

	// General pass: greedy left-to-right merge of short adjacent blocks.
	for i := 0; i+1 < len(blocks); {
		if blocks[i].tokens+blocks[i+1].tokens < cfg.MinTokens {
			merge(i)
		} else {
			i++
		}
	}

	units := make([]unit, len(blocks))
	for i, b := range blocks {
		units[i] = unit{Name: b.name, SectionIdx: b.sectionIdx, Sentences: b.sentences}
	}
	return units
}
