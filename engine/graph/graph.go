package graph

import (
	"context"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/AbstraktAI/abstrakt-mvp/pkg/fn"
	"github.com/AbstraktAI/abstrakt-mvp/pkg/repo"
)

// GraphStore provides article and term operations on top of the generic
// Neo4j repository.
type GraphStore struct {
	driver   neo4j.DriverWithContext
	articles *repo.Neo4jRepo[Article, string]

	runQuery func(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error)
}

// New creates a GraphStore around an established driver.
func New(driver neo4j.DriverWithContext) *GraphStore {
	g := &GraphStore{
		driver: driver,
		articles: repo.NewNeo4jRepo[Article, string](
			driver, "Article", articleToMap, articleFromRecord,
		),
	}
	g.runQuery = g.runSession
	return g
}

func (g *GraphStore) runSession(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	sess := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	var records []*neo4j.Record
	for res.Next(ctx) {
		records = append(records, res.Record())
	}
	return records, nil
}

// GetArticle returns an article by UID.
func (g *GraphStore) GetArticle(ctx context.Context, uid string) (Article, error) {
	return g.articles.Get(ctx, uid)
}

// SaveArticle creates or updates an article node keyed by UID.
func (g *GraphStore) SaveArticle(ctx context.Context, a Article) error {
	return g.articles.Upsert(ctx, a)
}

// DeleteArticle removes an article and its term edges.
func (g *GraphStore) DeleteArticle(ctx context.Context, uid string) error {
	return g.articles.Delete(ctx, uid)
}

// ListArticles pages through the catalog in UID order.
func (g *GraphStore) ListArticles(ctx context.Context, opts repo.ListOpts) ([]Article, error) {
	return g.articles.List(ctx, opts)
}

// SaveTerms attaches controlled-vocabulary terms to an article, creating
// term nodes as needed. Terms are stored lowercased so "Aspirin" and
// "aspirin" land on the same node.
func (g *GraphStore) SaveTerms(ctx context.Context, uid string, terms []string) error {
	if len(terms) == 0 {
		return nil
	}
	names := fn.Unique(fn.FilterMap(terms, func(t string) (string, bool) {
		t = strings.ToLower(strings.TrimSpace(t))
		return t, t != ""
	}))
	if len(names) == 0 {
		return nil
	}

	cypher := `MATCH (a:Article {uid: $uid})
UNWIND $terms AS term
MERGE (t:Term {name: term})
MERGE (a)-[:HAS_TERM]->(t)`
	_, err := g.runQuery(ctx, cypher, map[string]any{"uid": uid, "terms": names})
	return err
}

// ArticlesByTerm returns articles tagged with the given term.
func (g *GraphStore) ArticlesByTerm(ctx context.Context, term string, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = 50
	}
	cypher := `MATCH (a:Article)-[:HAS_TERM]->(t:Term {name: $term})
RETURN a ORDER BY a.published_at DESC LIMIT $limit`
	records, err := g.runQuery(ctx, cypher, map[string]any{
		"term":  strings.ToLower(strings.TrimSpace(term)),
		"limit": limit,
	})
	if err != nil {
		return nil, err
	}

	articles := make([]Article, 0, len(records))
	for _, rec := range records {
		a, err := articleFromRecord(rec)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// RelatedTerms returns terms co-occurring with the given term across the
// catalog, most frequent first.
func (g *GraphStore) RelatedTerms(ctx context.Context, term string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	cypher := `MATCH (t:Term {name: $term})<-[:HAS_TERM]-(:Article)-[:HAS_TERM]->(other:Term)
WHERE other.name <> $term
RETURN other.name AS name, count(*) AS freq
ORDER BY freq DESC LIMIT $limit`
	records, err := g.runQuery(ctx, cypher, map[string]any{
		"term":  strings.ToLower(strings.TrimSpace(term)),
		"limit": limit,
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(records))
	for _, rec := range records {
		if len(rec.Values) > 0 {
			if name, ok := rec.Values[0].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names, nil
}
