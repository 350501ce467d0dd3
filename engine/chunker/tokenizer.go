package chunker

import (
	"fmt"
	"regexp"

	"github.com/pkoukk/tiktoken-go"

	"github.com/AbstraktAI/abstrakt-mvp/engine/domain"
)

// Span is a half-open byte range [Start, End) into a string.
type Span struct {
	Start int
	End   int
}

// Tokenizer is the injected token-counting collaborator. Implementations
// must be pure and deterministic for a given model version, and safe for
// concurrent use; the engine's own determinism depends on theirs.
type Tokenizer interface {
	// Count returns the number of tokens in text.
	Count(text string) int
	// Offsets returns the byte span of every token in order. Used only for
	// hard-splitting a single sentence that exceeds the max budget.
	Offsets(text string) []Span
}

// wordRx mirrors the GLiNER-style whitespace token scan: words (with inner
// hyphens/underscores) or single non-space symbols.
var wordRx = regexp.MustCompile(`\w+(?:[-_]\w+)*|\S`)

// HeuristicTokenizer approximates model tokenization with a word/symbol scan.
// It needs no vocabulary download and is the default for tests and offline
// tooling.
type HeuristicTokenizer struct{}

func (HeuristicTokenizer) Count(text string) int {
	return len(wordRx.FindAllStringIndex(text, -1))
}

func (HeuristicTokenizer) Offsets(text string) []Span {
	idx := wordRx.FindAllStringIndex(text, -1)
	spans := make([]Span, len(idx))
	for i, p := range idx {
		spans[i] = Span{Start: p[0], End: p[1]}
	}
	return spans
}

// TiktokenTokenizer counts tokens with a real BPE vocabulary so budgets line
// up with the embedding model's context window.
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads the named encoding (e.g. "cl100k_base"). The
// encoding is expensive to initialize: construct once per process and share.
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("chunker: load encoding %q: %w", encoding, err)
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

func (t *TiktokenTokenizer) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Offsets reconstructs token boundaries by decoding each BPE token in turn.
// cl100k-style encodings are byte-level, so the decoded pieces concatenate
// back to the input.
func (t *TiktokenTokenizer) Offsets(text string) []Span {
	ids := t.enc.Encode(text, nil, nil)
	spans := make([]Span, 0, len(ids))
	pos := 0
	for _, id := range ids {
		piece := t.enc.Decode([]int{id})
		end := pos + len(piece)
		if end > len(text) {
			end = len(text)
		}
		spans = append(spans, Span{Start: pos, End: end})
		pos = end
	}
	return spans
}

// checkedCount guards against a broken collaborator: a negative count is an
// internal inconsistency the engine cannot route around.
func checkedCount(tok Tokenizer, text string) (int, error) {
	n := tok.Count(text)
	if n < 0 {
		return 0, fmt.Errorf("%w: tokenizer returned negative count %d", domain.ErrCollaborator, n)
	}
	return n, nil
}
