package chunker

import (
	"fmt"
	"strings"

	"github.com/AbstraktAI/abstrakt-mvp/engine/domain"
)

// Chunker runs the full chunking pipeline for one document at a time. A
// Chunker is immutable after construction and safe for concurrent use, so a
// single instance is shared across all documents of a process.
type Chunker struct {
	cfg      Config
	tok      Tokenizer
	split    SentenceSplitter
	synonyms SynonymTable
}

// Option customizes a Chunker beyond its Config.
type Option func(*Chunker)

// WithSynonyms replaces the default section-heading synonym table.
func WithSynonyms(t SynonymTable) Option {
	return func(c *Chunker) { c.synonyms = t }
}

// New validates cfg and builds a Chunker around the injected collaborators.
// Collaborators must be deterministic: the engine's idempotence guarantee is
// only as strong as theirs.
func New(cfg Config, tok Tokenizer, split SentenceSplitter, opts ...Option) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tok == nil || split == nil {
		return nil, fmt.Errorf("%w: tokenizer and sentence splitter are required", domain.ErrConfiguration)
	}
	if cfg.TitleMode == "" {
		cfg.TitleMode = TitlePrefixFirstChunk
	}
	c := &Chunker{cfg: cfg, tok: tok, split: split, synonyms: DefaultSynonyms()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ChunkDocument transforms one document into its ordered chunk list. The
// result is all-or-nothing: on any error no chunks are returned. Re-running
// with the same document and configuration yields byte-identical output.
func (c *Chunker) ChunkDocument(doc domain.Document) ([]domain.Chunk, error) {
	if err := domain.ValidateDocument(doc); err != nil {
		return nil, err
	}

	sections, text, err := c.resolveSections(doc)
	if err != nil {
		return nil, err
	}

	if text == "" {
		return assembleMetadataOnly(doc, c.cfg, c.tok)
	}

	total, err := checkedCount(c.tok, text)
	if err != nil {
		return nil, err
	}

	if total <= c.cfg.ShortDocTokenThreshold {
		sents, err := c.splitSection(text)
		if err != nil {
			return nil, err
		}
		return assembleShort(doc, text, c.cfg, c.tok, len(sents))
	}

	unstructured := len(sections) == 1 && sections[0].Name == domain.SectionUnstructured

	// An unstructured document that already fits the max budget is emitted
	// whole: no splitting, no overlap.
	if unstructured && total <= c.cfg.MaxTokens {
		sents, err := c.splitSection(text)
		if err != nil {
			return nil, err
		}
		w := Window{
			Section:       domain.SectionUnstructured,
			Text:          text,
			TokenCount:    total,
			SentenceCount: len(sents),
			End:           len(sents),
		}
		return assemble(doc, []Window{w}, true, c.cfg, c.tok)
	}

	sentsBySection := make([][]sentence, len(sections))
	for i, s := range sections {
		sentsBySection[i], err = c.splitSection(s.Body)
		if err != nil {
			return nil, fmt.Errorf("section %d (%s): %w", i, s.Name, err)
		}
	}

	units := buildUnits(sections, sentsBySection, c.cfg)

	var windows []Window
	for _, u := range units {
		ws, err := windowUnit(u, c.cfg, c.tok)
		if err != nil {
			return nil, err
		}
		ws = expandForNumericSafety(ws, u, c.cfg)
		windows = append(windows, ws...)
	}

	return assemble(doc, windows, unstructured, c.cfg, c.tok)
}

// resolveSections normalizes the document text and produces its section
// list, honoring pre-parsed sections when the source supplied them.
func (c *Chunker) resolveSections(doc domain.Document) ([]domain.Section, string, error) {
	if len(doc.Sections) > 0 {
		sections := make([]domain.Section, 0, len(doc.Sections))
		var joined []string
		for i, s := range doc.Sections {
			body := Normalize(s.Body)
			if body == "" {
				continue
			}
			sections = append(sections, domain.Section{Name: s.Name, Body: body, Order: i})
			joined = append(joined, body)
		}
		return sections, strings.Join(joined, "\n"), nil
	}

	text := Normalize(doc.Text)
	if text == "" {
		return nil, "", nil
	}
	return DetectSections(text, c.synonyms), text, nil
}

// splitSection runs the sentence splitter over one body of text, validates
// the spans it returned, and attaches per-sentence token counts.
func (c *Chunker) splitSection(body string) ([]sentence, error) {
	spans := c.split.Split(body)
	if err := checkSpans(spans, len(body)); err != nil {
		return nil, fmt.Errorf("sentence spans: %w", err)
	}
	// A splitter that yields nothing for real text would drop the whole
	// section on the floor.
	if len(spans) == 0 && strings.TrimSpace(body) != "" {
		return nil, fmt.Errorf("%w: splitter returned no spans for non-empty section", domain.ErrCollaborator)
	}
	sents := make([]sentence, 0, len(spans))
	for _, sp := range spans {
		t := strings.TrimSpace(body[sp.Start:sp.End])
		if t == "" {
			continue
		}
		n, err := checkedCount(c.tok, t)
		if err != nil {
			return nil, err
		}
		sents = append(sents, sentence{Text: t, Tokens: n})
	}
	return sents, nil
}
