package ingest

import (
	"strings"

	"github.com/AbstraktAI/abstrakt-mvp/engine/domain"
	"github.com/AbstraktAI/abstrakt-mvp/pkg/fn"
	"github.com/AbstraktAI/abstrakt-mvp/pkg/pubnlp"
)

// ChunkedDoc is a document split into embeddable chunks.
type ChunkedDoc struct {
	Doc    domain.Document
	Chunks []domain.Chunk
}

// EmbeddedDoc is a chunked document with one embedding per chunk.
type EmbeddedDoc struct {
	ChunkedDoc
	Embeddings [][]float32
}

// enrich folds extracted study metadata into the document Meta map.
// The returned document shares everything else with the input.
func enrich(doc domain.Document) domain.Document {
	meta := pubnlp.Extract(doc.Title + "\n" + doc.Text)
	doc.Meta = meta.Fold(doc.Meta)
	return doc
}

// docTerms collects controlled-vocabulary terms for the knowledge graph:
// keywords, study design, and registry IDs, all from the Meta map.
func docTerms(doc domain.Document) []string {
	var terms []string
	if kw := doc.Meta[domain.MetaKeywords]; kw != "" {
		terms = fn.FilterMap(strings.Split(kw, ","), func(t string) (string, bool) {
			t = strings.TrimSpace(t)
			return t, t != ""
		})
	}
	if d := doc.Meta[pubnlp.MetaStudyDesign]; d != "" {
		terms = append(terms, d)
	}
	if ids := doc.Meta[pubnlp.MetaRegistryIDs]; ids != "" {
		terms = append(terms, strings.Split(ids, ",")...)
	}
	return fn.Unique(terms)
}
