// Package graph provides Neo4j graph operations for the article catalog:
// Article nodes, controlled-vocabulary Term nodes, and the edges between
// them.
package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Article is the graph-side record of an ingested document.
type Article struct {
	UID         string    `json:"uid"`
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	Journal     string    `json:"journal,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	ChunkCount  int       `json:"chunk_count"`
}

// Term is a controlled-vocabulary descriptor (a MeSH heading or keyword).
type Term struct {
	Name string `json:"name"`
}

func articleToMap(a Article) map[string]any {
	m := map[string]any{
		"uid":         a.UID,
		"title":       a.Title,
		"source":      a.Source,
		"chunk_count": a.ChunkCount,
	}
	if a.Journal != "" {
		m["journal"] = a.Journal
	}
	if !a.PublishedAt.IsZero() {
		m["published_at"] = a.PublishedAt.UTC().Format("2006-01-02")
	}
	return m
}

func articleFromRecord(rec *neo4j.Record) (Article, error) {
	var a Article
	if len(rec.Values) == 0 {
		return a, nil
	}
	node, ok := rec.Values[0].(dbtype.Node)
	if !ok {
		return a, nil
	}
	props := node.Props
	a.UID, _ = props["uid"].(string)
	a.Title, _ = props["title"].(string)
	a.Source, _ = props["source"].(string)
	a.Journal, _ = props["journal"].(string)
	if n, ok := props["chunk_count"].(int64); ok {
		a.ChunkCount = int(n)
	}
	if s, ok := props["published_at"].(string); ok && s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			a.PublishedAt = t
		}
	}
	return a, nil
}
