package graph

import (
	"context"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

func TestArticleMapRoundTrip(t *testing.T) {
	a := Article{
		UID:         "pmid:42",
		Title:       "Aspirin and Stroke Risk",
		Source:      "pubmed",
		Journal:     "Example Journal",
		PublishedAt: time.Date(2024, 11, 2, 0, 0, 0, 0, time.UTC),
		ChunkCount:  4,
	}
	m := articleToMap(a)
	if m["uid"] != "pmid:42" || m["journal"] != "Example Journal" {
		t.Fatalf("map: %v", m)
	}
	if m["published_at"] != "2024-11-02" {
		t.Fatalf("published_at: %v", m["published_at"])
	}

	rec := &neo4j.Record{Values: []any{dbtype.Node{Props: map[string]any{
		"uid":          "pmid:42",
		"title":        "Aspirin and Stroke Risk",
		"source":       "pubmed",
		"journal":      "Example Journal",
		"published_at": "2024-11-02",
		"chunk_count":  int64(4),
	}}}}
	got, err := articleFromRecord(rec)
	if err != nil {
		t.Fatal(err)
	}
	if got != a {
		t.Fatalf("round trip:\n got %+v\nwant %+v", got, a)
	}
}

func TestArticleMapOmitsEmpty(t *testing.T) {
	m := articleToMap(Article{UID: "pmid:1", Title: "T", Source: "pubmed"})
	if _, ok := m["journal"]; ok {
		t.Error("empty journal should be omitted")
	}
	if _, ok := m["published_at"]; ok {
		t.Error("zero published_at should be omitted")
	}
}

type capturedQuery struct {
	cypher string
	params map[string]any
}

func stubbedStore(records []*neo4j.Record) (*GraphStore, *[]capturedQuery) {
	var queries []capturedQuery
	g := &GraphStore{}
	g.runQuery = func(_ context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
		queries = append(queries, capturedQuery{cypher, params})
		return records, nil
	}
	return g, &queries
}

func TestSaveTermsNormalizes(t *testing.T) {
	g, queries := stubbedStore(nil)
	err := g.SaveTerms(context.Background(), "pmid:1", []string{" Aspirin ", "Stroke", "", "aspirin"})
	if err != nil {
		t.Fatal(err)
	}
	if len(*queries) != 1 {
		t.Fatalf("expected one query, got %d", len(*queries))
	}
	// The second "aspirin" collapses onto the first after lowercasing.
	terms := (*queries)[0].params["terms"].([]string)
	want := []string{"aspirin", "stroke"}
	if len(terms) != len(want) {
		t.Fatalf("terms %v", terms)
	}
	for i := range want {
		if terms[i] != want[i] {
			t.Errorf("term %d: %q, want %q", i, terms[i], want[i])
		}
	}
}

func TestSaveTermsSkipsEmpty(t *testing.T) {
	g, queries := stubbedStore(nil)
	if err := g.SaveTerms(context.Background(), "pmid:1", nil); err != nil {
		t.Fatal(err)
	}
	if err := g.SaveTerms(context.Background(), "pmid:1", []string{"  ", ""}); err != nil {
		t.Fatal(err)
	}
	if len(*queries) != 0 {
		t.Fatalf("no query should run for empty term lists, got %d", len(*queries))
	}
}

func TestArticlesByTerm(t *testing.T) {
	records := []*neo4j.Record{
		{Values: []any{dbtype.Node{Props: map[string]any{
			"uid": "pmid:7", "title": "A", "source": "pubmed",
		}}}},
	}
	g, queries := stubbedStore(records)

	got, err := g.ArticlesByTerm(context.Background(), " Aspirin ", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].UID != "pmid:7" {
		t.Fatalf("articles: %+v", got)
	}
	q := (*queries)[0]
	if q.params["term"] != "aspirin" {
		t.Errorf("term param %v", q.params["term"])
	}
	if q.params["limit"] != 50 {
		t.Errorf("default limit %v", q.params["limit"])
	}
}

func TestRelatedTerms(t *testing.T) {
	records := []*neo4j.Record{
		{Values: []any{"stroke", int64(12)}},
		{Values: []any{"prevention", int64(7)}},
	}
	g, _ := stubbedStore(records)

	got, err := g.RelatedTerms(context.Background(), "aspirin", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "stroke" || got[1] != "prevention" {
		t.Fatalf("terms: %v", got)
	}
}
