package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/AbstraktAI/abstrakt-mvp/engine/domain"
)

// ChunkNamespace is the fixed namespace for deterministic chunk UUIDs.
// Changing it invalidates every identifier already stored in the vector
// index; it must never change once documents have been indexed.
var ChunkNamespace = uuid.MustParse("8e2ab1c4-55fd-4b39-9c0a-d31e78a6f0b2")

// ChunkUUID derives the stable identifier for (parentUID, chunkID). The same
// inputs always produce the same UUID, which is what makes re-ingestion an
// upsert instead of a duplicate insert.
func ChunkUUID(parentUID, chunkID string) string {
	return uuid.NewSHA1(ChunkNamespace, []byte(parentUID+":"+chunkID)).String()
}

// Reserved chunk IDs for the special-case chunks.
const (
	ChunkIDTitle        = "title"
	ChunkIDMetadataOnly = "metadata_only"
)

// assemble turns guarded windows into the final ordered chunk list: chunk
// IDs from section/window positions, title handling per the configured mode,
// and a contiguous 0-based chunk index.
func assemble(doc domain.Document, windows []Window, unstructured bool, cfg Config, tok Tokenizer) ([]domain.Chunk, error) {
	chunks := make([]domain.Chunk, 0, len(windows)+1)

	separateTitle := cfg.TitleMode == TitleSeparateChunk && doc.Title != ""
	if separateTitle {
		n, err := checkedCount(tok, doc.Title)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, newChunk(doc, cfg, domain.Chunk{
			ChunkID:    ChunkIDTitle,
			Text:       doc.Title,
			TokenCount: n,
		}))
	}

	perSection := map[int]int{} // section index -> next window ordinal
	for i, w := range windows {
		id := fmt.Sprintf("s%d_%d", w.SectionIdx, perSection[w.SectionIdx])
		if unstructured {
			id = fmt.Sprintf("w%d", i)
		}
		perSection[w.SectionIdx]++

		text := w.Text
		tokens := w.TokenCount
		if i == 0 && !separateTitle && doc.Title != "" {
			text = headerText(doc.Title, w.Section, w.Text)
			// The header counts toward the first chunk's budget.
			n, err := checkedCount(tok, text)
			if err != nil {
				return nil, err
			}
			tokens = n
		}

		chunks = append(chunks, newChunk(doc, cfg, domain.Chunk{
			ChunkID:       id,
			Text:          text,
			Section:       w.Section,
			TokenCount:    tokens,
			SentenceCount: w.SentenceCount,
		}))
	}

	for i := range chunks {
		chunks[i].ChunkIndex = i
	}
	return chunks, nil
}

// headerText formats the enriched first chunk: title line, section label
// line, then the body.
func headerText(title string, section domain.SectionName, body string) string {
	return fmt.Sprintf("Title: %s\nSection: %s\n%s", title, section, body)
}

// assembleShort emits the single chunk for a document whose whole text falls
// under the short-document threshold: title plus full text, optionally
// suffixed with controlled-vocabulary terms from Meta.
func assembleShort(doc domain.Document, text string, cfg Config, tok Tokenizer, sentences int) ([]domain.Chunk, error) {
	body := text
	if doc.Title != "" {
		body = doc.Title + "\n" + body
	}
	if kw := strings.TrimSpace(doc.Meta[domain.MetaKeywords]); kw != "" {
		body = body + "\nKeywords: " + kw
	}
	n, err := checkedCount(tok, body)
	if err != nil {
		return nil, err
	}
	c := newChunk(doc, cfg, domain.Chunk{
		ChunkID:       "w0",
		Text:          body,
		Section:       domain.SectionUnstructured,
		TokenCount:    n,
		SentenceCount: sentences,
	})
	return []domain.Chunk{c}, nil
}

// assembleMetadataOnly emits the placeholder chunk for a document with no
// body text at all, keeping it citable in search results.
func assembleMetadataOnly(doc domain.Document, cfg Config, tok Tokenizer) ([]domain.Chunk, error) {
	text := doc.Title
	if text == "" {
		text = doc.UID
	}
	n, err := checkedCount(tok, text)
	if err != nil {
		return nil, err
	}
	c := newChunk(doc, cfg, domain.Chunk{
		ChunkID:    ChunkIDMetadataOnly,
		Text:       text,
		TokenCount: n,
	})
	return []domain.Chunk{c}, nil
}

// newChunk fills the document-derived fields shared by every chunk.
func newChunk(doc domain.Document, cfg Config, c domain.Chunk) domain.Chunk {
	c.UUID = ChunkUUID(doc.UID, c.ChunkID)
	c.ParentUID = doc.UID
	c.Source = doc.Source
	c.Title = doc.Title
	c.PublishedAt = doc.PublishedAt
	meta := make(map[string]string, len(doc.Meta)+1)
	for k, v := range doc.Meta {
		meta[k] = v
	}
	meta[domain.MetaChunkerVersion] = cfg.ChunkerVersion
	c.Meta = meta
	return c
}
