package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type fakeResult struct {
	records []*neo4j.Record
	pos     int
}

func (f *fakeResult) Next(context.Context) bool {
	if f.pos >= len(f.records) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeResult) Record() *neo4j.Record { return f.records[f.pos-1] }

type fakeRunner struct {
	cypher string
	params map[string]any
	result *fakeResult
	err    error
}

func (f *fakeRunner) Run(_ context.Context, cypher string, params map[string]any) (result, error) {
	f.cypher = cypher
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		f.result = &fakeResult{}
	}
	return f.result, nil
}

func (f *fakeRunner) Close(context.Context) error { return nil }

func testRepo(run *fakeRunner) *Neo4jRepo[map[string]any, string] {
	r := NewNeo4jRepo[map[string]any, string](
		nil,
		"Article",
		func(m map[string]any) map[string]any { return m },
		func(rec *neo4j.Record) (map[string]any, error) {
			return map[string]any{"uid": rec.Values[0]}, nil
		},
	)
	r.newSession = func(context.Context) runner { return run }
	return r
}

func TestNeo4jRepoDefaults(t *testing.T) {
	r := NewNeo4jRepo[map[string]any, string](nil, "Article", nil, nil)
	if r.idKey != "uid" {
		t.Fatalf("default id key %q", r.idKey)
	}
	r = NewNeo4jRepo[map[string]any, string](nil, "Article", nil, nil,
		WithIDKey[map[string]any, string]("pmid"))
	if r.idKey != "pmid" {
		t.Fatalf("custom id key %q", r.idKey)
	}
}

func TestNeo4jRepoGet(t *testing.T) {
	run := &fakeRunner{result: &fakeResult{records: []*neo4j.Record{
		{Values: []any{"pmid:1"}},
	}}}
	got, err := testRepo(run).Get(context.Background(), "pmid:1")
	if err != nil {
		t.Fatal(err)
	}
	if got["uid"] != "pmid:1" {
		t.Fatalf("got %v", got)
	}
	if run.params["id"] != "pmid:1" {
		t.Fatalf("query params %v", run.params)
	}
}

func TestNeo4jRepoGetNotFound(t *testing.T) {
	run := &fakeRunner{result: &fakeResult{}}
	_, err := testRepo(run).Get(context.Background(), "pmid:missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNeo4jRepoUpsertMerges(t *testing.T) {
	run := &fakeRunner{}
	err := testRepo(run).Upsert(context.Background(), map[string]any{"uid": "pmid:2", "title": "x"})
	if err != nil {
		t.Fatal(err)
	}
	if run.cypher != "MERGE (n:Article {uid: $id}) SET n += $props" {
		t.Fatalf("cypher %q", run.cypher)
	}
	if run.params["id"] != "pmid:2" {
		t.Fatalf("params %v", run.params)
	}
}

func TestNeo4jRepoListDefaultLimit(t *testing.T) {
	run := &fakeRunner{result: &fakeResult{}}
	_, err := testRepo(run).List(context.Background(), ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if run.params["limit"] != 100 {
		t.Fatalf("limit %v", run.params["limit"])
	}
}
