// Package ingest provides the ingestion pipeline that processes abstracts
// through validation, enrichment, chunking, embedding, and storage stages.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/AbstraktAI/abstrakt-mvp/engine/chunker"
	"github.com/AbstraktAI/abstrakt-mvp/engine/domain"
	"github.com/AbstraktAI/abstrakt-mvp/engine/graph"
	"github.com/AbstraktAI/abstrakt-mvp/engine/semantic"
	"github.com/AbstraktAI/abstrakt-mvp/pkg/fn"
	"github.com/AbstraktAI/abstrakt-mvp/pkg/ollama"
	"github.com/AbstraktAI/abstrakt-mvp/pkg/resilience"
	"github.com/nats-io/nats.go"
)

const (
	// IngestSubject is the NATS subject for incoming documents.
	IngestSubject = "abstrakt.ingest"
	// DLQSubject is the dead letter queue subject for failed messages.
	DLQSubject = "abstrakt.ingest.dlq"
	// MaxRetries before sending to DLQ.
	MaxRetries = 3
	// EmbedBatchSize is the max chunks per embedding request.
	EmbedBatchSize = 32
)

// VectorWriter is the slice of the vector store the pipeline needs.
type VectorWriter interface {
	DeleteByParentUID(ctx context.Context, parentUID string) error
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
}

// GraphWriter is the slice of the graph store the pipeline needs.
type GraphWriter interface {
	SaveArticle(ctx context.Context, a graph.Article) error
	SaveTerms(ctx context.Context, uid string, terms []string) error
}

// Deps holds the external dependencies for the ingestion pipeline.
type Deps struct {
	Chunker     *chunker.Chunker
	Embedder    ollama.Embedder
	VectorStore VectorWriter
	GraphStore  GraphWriter
	// EmbedLimiter, when set, rate-limits calls to the embedder.
	EmbedLimiter *resilience.Limiter
	// EmbedBreaker, when set, trips on repeated embedder failures so a dead
	// model server fails documents fast instead of timing out each one.
	EmbedBreaker *resilience.Breaker
	// DeduplicateF returns true if the document was already ingested.
	DeduplicateF func(ctx context.Context, uid string) (bool, error)
	Logger       *slog.Logger
}

// --- Pipeline Stages ---

// Validate checks the Document contract before any work is done.
var Validate fn.Stage[domain.Document, domain.Document] = func(_ context.Context, doc domain.Document) fn.Result[domain.Document] {
	if err := domain.ValidateDocument(doc); err != nil {
		return fn.Err[domain.Document](err)
	}
	return fn.Ok(doc)
}

// Enrich extracts study metadata from the abstract text and folds it into
// the document's Meta map.
var Enrich fn.Stage[domain.Document, domain.Document] = func(_ context.Context, doc domain.Document) fn.Result[domain.Document] {
	return fn.Ok(enrich(doc))
}

// NewChunk creates a stage that runs the chunking engine over a document.
func NewChunk(c *chunker.Chunker) fn.Stage[domain.Document, ChunkedDoc] {
	return func(_ context.Context, doc domain.Document) fn.Result[ChunkedDoc] {
		chunks, err := c.ChunkDocument(doc)
		if err != nil {
			return fn.Errf[ChunkedDoc]("chunk %s: %w", doc.UID, err)
		}
		return fn.Ok(ChunkedDoc{Doc: doc, Chunks: chunks})
	}
}

// NewEmbed creates a stage that embeds chunk texts in batches.
func NewEmbed(emb ollama.Embedder) fn.Stage[ChunkedDoc, EmbeddedDoc] {
	return func(ctx context.Context, doc ChunkedDoc) fn.Result[EmbeddedDoc] {
		embeddings := make([][]float32, 0, len(doc.Chunks))

		for i := 0; i < len(doc.Chunks); i += EmbedBatchSize {
			end := i + EmbedBatchSize
			if end > len(doc.Chunks) {
				end = len(doc.Chunks)
			}

			texts := fn.Map(doc.Chunks[i:end], func(c domain.Chunk) string { return c.Text })

			batch, err := emb.EmbedBatch(ctx, texts)
			if err != nil {
				return fn.Errf[EmbeddedDoc]("embed %s: %w", doc.Doc.UID, err)
			}
			embeddings = append(embeddings, batch...)
		}

		return fn.Ok(EmbeddedDoc{ChunkedDoc: doc, Embeddings: embeddings})
	}
}

// NewStore creates a stage that writes to Neo4j and Qdrant. The vector
// delete-then-upsert makes re-ingestion of an updated document idempotent.
func NewStore(vs VectorWriter, gs GraphWriter, log *slog.Logger) fn.Stage[EmbeddedDoc, string] {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, doc EmbeddedDoc) fn.Result[string] {
		art := graph.Article{
			UID:         doc.Doc.UID,
			Title:       doc.Doc.Title,
			Source:      doc.Doc.Source,
			Journal:     doc.Doc.Meta["journal"],
			PublishedAt: doc.Doc.PublishedAt,
			ChunkCount:  len(doc.Chunks),
		}
		if err := gs.SaveArticle(ctx, art); err != nil {
			return fn.Errf[string]("graph save %s: %w", doc.Doc.UID, err)
		}

		if terms := docTerms(doc.Doc); len(terms) > 0 {
			if err := gs.SaveTerms(ctx, doc.Doc.UID, terms); err != nil {
				// Term links are secondary; the article and vectors still land.
				log.Warn("ingest: save terms", "error", err, "uid", doc.Doc.UID)
			}
		}

		records, err := semantic.Records(doc.Chunks, doc.Embeddings)
		if err != nil {
			return fn.Errf[string]("records %s: %w", doc.Doc.UID, err)
		}
		if err := vs.DeleteByParentUID(ctx, doc.Doc.UID); err != nil {
			return fn.Errf[string]("vector delete %s: %w", doc.Doc.UID, err)
		}
		if err := vs.Upsert(ctx, records); err != nil {
			return fn.Errf[string]("vector upsert %s: %w", doc.Doc.UID, err)
		}

		return fn.Ok(doc.Doc.UID)
	}
}

// LoggedTap returns a pass-through stage that logs entry and exit with duration.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Info("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Info("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// NewPipeline constructs the full ingestion pipeline with all stages wired.
func NewPipeline(deps Deps) fn.Stage[domain.Document, string] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	embed := NewEmbed(deps.Embedder)
	if deps.EmbedBreaker != nil {
		embed = resilience.BreakerStage(deps.EmbedBreaker, embed)
	}
	if deps.EmbedLimiter != nil {
		embed = resilience.LimiterStageWait(deps.EmbedLimiter, embed)
	}

	// Graph writes MERGE and vector writes delete-then-upsert, so the store
	// stage is idempotent and safe to retry on transient backend errors.
	store := fn.RetryStage(fn.RetryOpts{MaxAttempts: 2, InitialWait: time.Second, MaxWait: 5 * time.Second},
		NewStore(deps.VectorStore, deps.GraphStore, log))

	// Compose: Validate → Enrich → Chunk → Embed → Store
	// with logging taps and tracing spans between stages.
	validated := fn.Then(LoggedTap[domain.Document]("validate", log), fn.TracedStage("validate", Validate))
	enriched := fn.Then(validated, fn.TracedStage("enrich", Enrich))
	chunked := fn.Then(enriched, fn.Then(LoggedTap[domain.Document]("chunk", log), fn.TracedStage("chunk", NewChunk(deps.Chunker))))
	embedded := fn.Then(chunked, fn.Then(LoggedTap[ChunkedDoc]("embed", log), fn.TracedStage("embed", embed)))
	stored := fn.Then(embedded, fn.Then(LoggedTap[EmbeddedDoc]("store", log), fn.TracedStage("store", store)))

	return stored
}

// DeadLetter is published to the DLQ after a document exhausts its retries.
// Operators subscribe to DLQSubject to alert on and replay these.
type DeadLetter struct {
	Doc     domain.Document `json:"doc"`
	Error   string          `json:"error"`
	Retries int             `json:"retries"`
}

// StartConsumer starts a NATS consumer that runs incoming documents
// through the ingestion pipeline with retry and DLQ support.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return nc.Subscribe(IngestSubject, func(msg *nats.Msg) {
		var doc domain.Document
		if err := json.Unmarshal(msg.Data, &doc); err != nil {
			log.Error("ingest: unmarshal failed", "error", err)
			return
		}

		ctx := context.Background()

		if deps.DeduplicateF != nil {
			exists, err := deps.DeduplicateF(ctx, doc.UID)
			if err != nil {
				log.Warn("ingest: dedup check failed", "error", err)
			} else if exists {
				log.Info("ingest: skipping duplicate", "uid", doc.UID)
				if msg.Reply != "" {
					_ = msg.Ack()
				}
				return
			}
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get("X-Retry-Count"); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		result := pipeline(ctx, doc)
		if result.IsErr() {
			_, pipeErr := result.Unwrap()
			retries++
			log.Error("ingest: pipeline failed",
				"error", pipeErr,
				"uid", doc.UID,
				"retry", retries,
			)

			if retries >= MaxRetries {
				dlq := DeadLetter{Doc: doc, Error: pipeErr.Error(), Retries: retries}
				data, _ := json.Marshal(dlq)
				if err := nc.Publish(DLQSubject, data); err != nil {
					log.Error("ingest: DLQ publish failed", "error", err)
				}
			} else {
				retryMsg := nats.NewMsg(IngestSubject)
				retryMsg.Data = msg.Data
				retryMsg.Header = nats.Header{}
				retryMsg.Header.Set("X-Retry-Count", fmt.Sprintf("%d", retries))
				if err := nc.PublishMsg(retryMsg); err != nil {
					log.Error("ingest: retry publish failed", "error", err)
				}
			}
		} else {
			uid, _ := result.Unwrap()
			log.Info("ingest: success", "uid", uid)
		}

		if msg.Reply != "" {
			_ = msg.Ack()
		}
	})
}
