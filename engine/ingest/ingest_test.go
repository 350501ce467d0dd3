package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/AbstraktAI/abstrakt-mvp/engine/chunker"
	"github.com/AbstraktAI/abstrakt-mvp/engine/domain"
	"github.com/AbstraktAI/abstrakt-mvp/engine/graph"
	"github.com/AbstraktAI/abstrakt-mvp/engine/semantic"
	"github.com/AbstraktAI/abstrakt-mvp/pkg/resilience"
)

func validDoc() domain.Document {
	return domain.Document{
		UID:    "pubmed:38001234",
		Source: "pubmed",
		Title:  "Aspirin for primary prevention of cardiovascular events",
		Text: "Background: Aspirin is widely used for secondary prevention. " +
			"Methods: In this randomized controlled trial, we enrolled 2,340 patients across 31 centers. " +
			"Results: Events occurred in 4.1% of the aspirin group versus 5.2% with placebo; p=0.04. " +
			"Conclusions: Low-dose aspirin reduced cardiovascular events.",
		PublishedAt: time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
		Meta:        map[string]string{"journal": "JAMA"},
	}
}

func testChunker(t *testing.T) *chunker.Chunker {
	t.Helper()
	c, err := chunker.New(chunker.DefaultConfig(), chunker.HeuristicTokenizer{}, chunker.RegexSplitter{})
	if err != nil {
		t.Fatalf("chunker: %v", err)
	}
	return c
}

// --- Fakes ---

type fakeEmbedder struct {
	batches [][]string
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, texts)
	out := make([][]float32, len(texts))
	for i, txt := range texts {
		out[i] = []float32{float32(len(txt))}
	}
	return out, nil
}

type fakeVectors struct {
	deleted  []string
	upserted []semantic.VectorRecord
	err      error
}

func (f *fakeVectors) DeleteByParentUID(_ context.Context, uid string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, uid)
	return nil
}

func (f *fakeVectors) Upsert(_ context.Context, records []semantic.VectorRecord) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, records...)
	return nil
}

type fakeGraph struct {
	articles []graph.Article
	terms    map[string][]string
	termsErr error
}

func (f *fakeGraph) SaveArticle(_ context.Context, a graph.Article) error {
	f.articles = append(f.articles, a)
	return nil
}

func (f *fakeGraph) SaveTerms(_ context.Context, uid string, terms []string) error {
	if f.termsErr != nil {
		return f.termsErr
	}
	if f.terms == nil {
		f.terms = map[string][]string{}
	}
	f.terms[uid] = terms
	return nil
}

// --- Stage tests ---

func TestValidateStage_Valid(t *testing.T) {
	if result := Validate(context.Background(), validDoc()); result.IsErr() {
		_, err := result.Unwrap()
		t.Fatalf("expected ok, got error: %v", err)
	}
}

func TestValidateStage_MissingUID(t *testing.T) {
	doc := validDoc()
	doc.UID = ""
	result := Validate(context.Background(), doc)
	if !result.IsErr() {
		t.Fatal("expected error for missing uid")
	}
	_, err := result.Unwrap()
	if !errors.Is(err, domain.ErrMalformedInput) {
		t.Fatalf("want ErrMalformedInput, got %v", err)
	}
}

func TestEnrichStage(t *testing.T) {
	result := Enrich(context.Background(), validDoc())
	doc, err := result.Unwrap()
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if got := doc.Meta["study_design"]; got != "randomized controlled trial" {
		t.Errorf("study_design = %q", got)
	}
	if got := doc.Meta["sample_size"]; got != "2340" {
		t.Errorf("sample_size = %q", got)
	}
	if doc.Meta["journal"] != "JAMA" {
		t.Error("existing meta key lost")
	}
}

func TestChunkStage(t *testing.T) {
	stage := NewChunk(testChunker(t))
	chunked, err := stage(context.Background(), validDoc()).Unwrap()
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(chunked.Chunks) == 0 {
		t.Fatal("expected chunks")
	}
	for _, c := range chunked.Chunks {
		if c.ParentUID != "pubmed:38001234" {
			t.Errorf("parent uid mismatch: %s", c.ParentUID)
		}
	}
}

func TestEmbedStage_Batching(t *testing.T) {
	emb := &fakeEmbedder{}
	stage := NewEmbed(emb)

	chunks := make([]domain.Chunk, EmbedBatchSize+5)
	for i := range chunks {
		chunks[i] = domain.Chunk{ChunkID: fmt.Sprintf("w%d", i), Text: strings.Repeat("x", i+1)}
	}
	doc := ChunkedDoc{Doc: validDoc(), Chunks: chunks}

	embedded, err := stage(context.Background(), doc).Unwrap()
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(emb.batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(emb.batches))
	}
	if len(emb.batches[0]) != EmbedBatchSize || len(emb.batches[1]) != 5 {
		t.Fatalf("batch sizes = %d, %d", len(emb.batches[0]), len(emb.batches[1]))
	}
	if len(embedded.Embeddings) != len(chunks) {
		t.Fatalf("embeddings = %d, want %d", len(embedded.Embeddings), len(chunks))
	}
	// Embedding order must match chunk order across batch boundaries.
	for i, e := range embedded.Embeddings {
		if e[0] != float32(i+1) {
			t.Fatalf("embedding %d out of order: %v", i, e)
		}
	}
}

func TestEmbedStage_Error(t *testing.T) {
	stage := NewEmbed(&fakeEmbedder{err: errors.New("model offline")})
	doc := ChunkedDoc{Doc: validDoc(), Chunks: []domain.Chunk{{Text: "x"}}}
	if result := stage(context.Background(), doc); !result.IsErr() {
		t.Fatal("expected error")
	}
}

func TestStoreStage(t *testing.T) {
	vs := &fakeVectors{}
	gs := &fakeGraph{}
	stage := NewStore(vs, gs, nil)

	doc := validDoc()
	doc = enrich(doc)
	doc.Meta[domain.MetaKeywords] = "aspirin, prevention"
	embedded := EmbeddedDoc{
		ChunkedDoc: ChunkedDoc{
			Doc: doc,
			Chunks: []domain.Chunk{
				{ChunkID: "s0_0", UUID: "u1", ParentUID: doc.UID, Text: "a", TokenCount: 1},
				{ChunkID: "s1_0", UUID: "u2", ParentUID: doc.UID, Text: "b", TokenCount: 1},
			},
		},
		Embeddings: [][]float32{{0.1}, {0.2}},
	}

	uid, err := stage(context.Background(), embedded).Unwrap()
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if uid != doc.UID {
		t.Errorf("uid = %q", uid)
	}
	if len(gs.articles) != 1 || gs.articles[0].ChunkCount != 2 || gs.articles[0].Journal != "JAMA" {
		t.Errorf("article = %+v", gs.articles)
	}
	terms := gs.terms[doc.UID]
	if len(terms) == 0 || terms[0] != "aspirin" {
		t.Errorf("terms = %v", terms)
	}
	if len(vs.deleted) != 1 || vs.deleted[0] != doc.UID {
		t.Errorf("deleted = %v", vs.deleted)
	}
	if len(vs.upserted) != 2 || vs.upserted[0].ID != "u1" {
		t.Errorf("upserted = %v", vs.upserted)
	}
}

func TestStoreStage_TermsErrorIsNonFatal(t *testing.T) {
	vs := &fakeVectors{}
	gs := &fakeGraph{termsErr: errors.New("neo4j down")}
	stage := NewStore(vs, gs, nil)

	doc := enrich(validDoc())
	embedded := EmbeddedDoc{
		ChunkedDoc: ChunkedDoc{Doc: doc, Chunks: []domain.Chunk{{ChunkID: "w0", UUID: "u1", Text: "a"}}},
		Embeddings: [][]float32{{0.1}},
	}
	if _, err := stage(context.Background(), embedded).Unwrap(); err != nil {
		t.Fatalf("terms failure should not fail the stage: %v", err)
	}
	if len(vs.upserted) != 1 {
		t.Fatal("vectors not written")
	}
}

func TestStoreStage_EmbeddingMismatch(t *testing.T) {
	stage := NewStore(&fakeVectors{}, &fakeGraph{}, nil)
	embedded := EmbeddedDoc{
		ChunkedDoc: ChunkedDoc{Doc: validDoc(), Chunks: []domain.Chunk{{ChunkID: "w0"}, {ChunkID: "w1"}}},
		Embeddings: [][]float32{{0.1}},
	}
	if result := stage(context.Background(), embedded); !result.IsErr() {
		t.Fatal("expected error for chunk/embedding mismatch")
	}
}

func TestDocTerms(t *testing.T) {
	doc := validDoc()
	doc.Meta["keywords"] = "aspirin, stroke , cohort study, "
	doc.Meta["study_design"] = "cohort study"
	doc.Meta["registry_ids"] = "NCT01234567"
	got := docTerms(doc)
	// The keyword duplicating the study design appears once.
	want := []string{"aspirin", "stroke", "cohort study", "NCT01234567"}
	if len(got) != len(want) {
		t.Fatalf("terms = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("terms[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	vs := &fakeVectors{}
	gs := &fakeGraph{}
	pipeline := NewPipeline(Deps{
		Chunker:     testChunker(t),
		Embedder:    &fakeEmbedder{},
		VectorStore: vs,
		GraphStore:  gs,
	})

	uid, err := pipeline(context.Background(), validDoc()).Unwrap()
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if uid != "pubmed:38001234" {
		t.Errorf("uid = %q", uid)
	}
	if len(gs.articles) != 1 {
		t.Fatalf("articles = %d", len(gs.articles))
	}
	if gs.articles[0].ChunkCount != len(vs.upserted) {
		t.Errorf("chunk count %d != upserted %d", gs.articles[0].ChunkCount, len(vs.upserted))
	}
	if len(vs.upserted) == 0 {
		t.Fatal("no vectors written")
	}
	// Enrichment must have run before storage.
	if len(gs.terms[uid]) == 0 {
		t.Error("no terms saved from enrichment")
	}
}

func TestPipelineBreakerTripsOnEmbedFailures(t *testing.T) {
	breaker := resilience.NewBreaker(resilience.BreakerOpts{
		FailThreshold: 2,
		Timeout:       time.Minute,
		HalfOpenMax:   1,
	})
	pipeline := NewPipeline(Deps{
		Chunker:      testChunker(t),
		Embedder:     &fakeEmbedder{err: errors.New("model offline")},
		VectorStore:  &fakeVectors{},
		GraphStore:   &fakeGraph{},
		EmbedBreaker: breaker,
	})

	for i := 0; i < 2; i++ {
		if result := pipeline(context.Background(), validDoc()); !result.IsErr() {
			t.Fatal("expected embed failure")
		}
	}
	if breaker.State() != resilience.StateOpen {
		t.Fatalf("breaker state = %v, want open", breaker.State())
	}
}

func TestPipelineStopsOnInvalidDoc(t *testing.T) {
	vs := &fakeVectors{}
	pipeline := NewPipeline(Deps{
		Chunker:     testChunker(t),
		Embedder:    &fakeEmbedder{},
		VectorStore: vs,
		GraphStore:  &fakeGraph{},
	})

	doc := validDoc()
	doc.Source = ""
	result := pipeline(context.Background(), doc)
	if !result.IsErr() {
		t.Fatal("expected error")
	}
	if len(vs.upserted) != 0 || len(vs.deleted) != 0 {
		t.Fatal("storage reached despite invalid input")
	}
}
