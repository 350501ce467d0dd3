package semantic

import (
	"fmt"

	"github.com/AbstraktAI/abstrakt-mvp/engine/domain"
)

// VectorRecord is a single point to store in Qdrant.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any
}

// SearchResult is a single vector search hit.
type SearchResult struct {
	ID         string            `json:"id"`
	Score      float32           `json:"score"`
	Content    string            `json:"content"`
	ChunkID    string            `json:"chunk_id"`
	ParentUID  string            `json:"parent_uid"`
	Source     string            `json:"source"`
	Section    string            `json:"section"`
	Meta       map[string]string `json:"meta"`
}

// Record converts a chunk and its embedding into the point stored in Qdrant.
// The point ID is the chunk's deterministic UUID, so re-ingesting a document
// overwrites its previous points instead of duplicating them.
func Record(c domain.Chunk, embedding []float32) VectorRecord {
	payload := map[string]any{
		"content":     c.Text,
		"chunk_id":    c.ChunkID,
		"parent_uid":  c.ParentUID,
		"source":      c.Source,
		"section":     string(c.Section),
		"chunk_index": c.ChunkIndex,
		"token_count": c.TokenCount,
	}
	if c.Title != "" {
		payload["title"] = c.Title
	}
	if !c.PublishedAt.IsZero() {
		payload["published_at"] = c.PublishedAt.UTC().Format("2006-01-02")
	}
	if v := c.Meta[domain.MetaChunkerVersion]; v != "" {
		payload["chunker_version"] = v
	}
	return VectorRecord{ID: c.UUID, Embedding: embedding, Payload: payload}
}

// Records pairs chunks with their embeddings. The two slices must be the
// same length.
func Records(chunks []domain.Chunk, embeddings [][]float32) ([]VectorRecord, error) {
	if len(chunks) != len(embeddings) {
		return nil, fmt.Errorf("semantic: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}
	out := make([]VectorRecord, len(chunks))
	for i, c := range chunks {
		out[i] = Record(c, embeddings[i])
	}
	return out, nil
}
