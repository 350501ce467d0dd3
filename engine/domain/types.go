// Package domain defines core domain types, constants, and validation for the
// Abstrakt engine pipeline. It acts as the validation gate at pipeline entry points.
package domain

import "time"

// SectionName is the canonical label of an abstract section.
type SectionName string

const (
	SectionBackground   SectionName = "Background"
	SectionObjective    SectionName = "Objective"
	SectionMethods      SectionName = "Methods"
	SectionResults      SectionName = "Results"
	SectionConclusions  SectionName = "Conclusions"
	SectionUnstructured SectionName = "Unstructured"
)

// ValidSectionNames is the closed set of canonical section labels.
var ValidSectionNames = map[SectionName]bool{
	SectionBackground: true, SectionObjective: true, SectionMethods: true,
	SectionResults: true, SectionConclusions: true, SectionUnstructured: true,
}

// Document is a single biomedical abstract as received from a source.
// It is immutable once ingested; the chunker never mutates it.
type Document struct {
	UID         string            `json:"uid"`    // globally unique, "source:external-id"
	Source      string            `json:"source"` // e.g. "pubmed", "medrxiv"
	Title       string            `json:"title,omitempty"`
	Text        string            `json:"text"`
	Sections    []Section         `json:"sections,omitempty"` // pre-parsed, optional
	PublishedAt time.Time         `json:"published_at,omitzero"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// Section is a labeled span of an abstract, produced by section detection
// (or supplied pre-parsed on the Document) and consumed by the windower.
type Section struct {
	Name  SectionName `json:"name"`
	Body  string      `json:"body"`
	Order int         `json:"order"`
}

// Chunk is the unit of record handed to the vector index. All fields are
// reproducible: re-chunking the same Document under the same configuration
// yields byte-identical chunks.
type Chunk struct {
	ChunkID       string            `json:"chunk_id"` // "s0_1", "w2", "title", "metadata_only"
	UUID          string            `json:"uuid"`     // deterministic, hashed from (parent_uid, chunk_id)
	ParentUID     string            `json:"parent_uid"`
	Source        string            `json:"source"`
	ChunkIndex    int               `json:"chunk_index"`
	Text          string            `json:"text"`
	Title         string            `json:"title,omitempty"`
	Section       SectionName       `json:"section,omitempty"` // empty for metadata-only chunks
	TokenCount    int               `json:"token_count"`
	SentenceCount int               `json:"sentence_count"`
	PublishedAt   time.Time         `json:"published_at,omitzero"`
	Meta          map[string]string `json:"meta,omitempty"` // carries chunker_version
}

// MetaChunkerVersion is the Meta key recording the configuration/algorithm
// version that produced a chunk.
const MetaChunkerVersion = "chunker_version"

// MetaKeywords is the optional Meta key holding controlled-vocabulary terms
// (comma-separated) appended to degenerate short-document chunks.
const MetaKeywords = "keywords"
