// Command ingest runs abstracts through the ingestion pipeline into Qdrant
// and Neo4j. Documents arrive either as JSON files dropped into a watched
// directory or over NATS.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AbstraktAI/abstrakt-mvp/engine/chunker"
	"github.com/AbstraktAI/abstrakt-mvp/engine/domain"
	"github.com/AbstraktAI/abstrakt-mvp/engine/graph"
	"github.com/AbstraktAI/abstrakt-mvp/engine/ingest"
	"github.com/AbstraktAI/abstrakt-mvp/engine/semantic"
	"github.com/AbstraktAI/abstrakt-mvp/pkg/fn"
	"github.com/AbstraktAI/abstrakt-mvp/pkg/metrics"
	"github.com/AbstraktAI/abstrakt-mvp/pkg/natsutil"
	"github.com/AbstraktAI/abstrakt-mvp/pkg/ollama"
	"github.com/AbstraktAI/abstrakt-mvp/pkg/resilience"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

var met = metrics.New()

// Ingest metrics
var (
	mDocsTotal      = func(source string) *metrics.Counter { return met.Counter(metrics.WithLabels("abstrakt_ingest_docs_total", "source", source), "Total documents ingested") }
	mErrorsTotal    = func(stage string) *metrics.Counter { return met.Counter(metrics.WithLabels("abstrakt_ingest_errors_total", "stage", stage), "Total ingestion errors") }
	mDocsSkipped    = met.Counter("abstrakt_ingest_docs_skipped_total", "Documents skipped by dedup")
	mFilesProcessed = met.Counter("abstrakt_ingest_files_processed_total", "Files processed")
	mActiveDocs     = met.Gauge("abstrakt_ingest_active_docs", "Currently processing documents")
	mLastScan       = met.Gauge("abstrakt_ingest_last_scan_timestamp", "Epoch of last directory scan")
	mPipelineDur    = met.Histogram("abstrakt_ingest_pipeline_duration_seconds", "Per-doc pipeline time", nil)
	mBytesProcessed = met.Counter("abstrakt_ingest_bytes_processed_total", "Total bytes of source files processed")
	mQueueDepth     = met.Gauge("abstrakt_ingest_queue_depth", "Files waiting to process")
	mDeadLetters    = met.Counter("abstrakt_ingest_dead_letters_total", "Documents that exhausted retries")
)

const vectorDims = 768 // nomic-embed-text

func main() {
	var (
		dataDir     = flag.String("dir", "/tmp/abstrakt-data", "directory to watch for JSON document files")
		natsURL     = flag.String("nats", "", "NATS URL; when set, also consume documents from "+ingest.IngestSubject)
		ollamaURL   = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		ollamaModel = flag.String("model", "nomic-embed-text", "Ollama embedding model")
		neo4jURL    = flag.String("neo4j", "neo4j://localhost:7687", "Neo4j bolt URL")
		neo4jUser   = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass   = flag.String("neo4j-pass", "abstrakt123", "Neo4j password")
		qdrantAddr  = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection  = flag.String("collection", "abstrakt", "Qdrant collection name")
		tokenizerF  = flag.String("tokenizer", "heuristic", "tokenizer: heuristic or a tiktoken encoding name")
		interval    = flag.Duration("interval", 30*time.Second, "scan interval")
		stateFile   = flag.String("state", "/tmp/abstrakt-data/.ingest-state.json", "processed files state")
		embedRPS    = flag.Float64("embed-rps", 20, "max embedding requests per second")
		workers     = flag.Int("workers", 4, "concurrent documents per file")
	)
	flag.Parse()

	met.ServeAsync(9091)

	log := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	driver, err := neo4j.NewDriverWithContext(*neo4jURL, neo4j.BasicAuth(*neo4jUser, *neo4jPass, ""))
	if err != nil {
		log.Error("neo4j connect failed", "error", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Error("neo4j verify failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Neo4j")

	vs, err := semantic.New(*qdrantAddr, *collection)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer vs.Close()
	if err := vs.EnsureCollection(ctx, vectorDims); err != nil {
		log.Error("qdrant ensure collection failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Qdrant", "collection", *collection, "dims", vectorDims)

	embedder := ollama.NewClient(*ollamaURL, *ollamaModel)
	log.Info("using Ollama embeddings", "model", *ollamaModel)

	ck, err := chunkerFor(*tokenizerF)
	if err != nil {
		log.Error("chunker init failed", "error", err)
		os.Exit(1)
	}

	gs := graph.New(driver)

	// Dedup map
	var mu sync.Mutex
	seen := make(map[string]bool)

	deps := ingest.Deps{
		Chunker:     ck,
		Embedder:    embedder,
		VectorStore: vs,
		GraphStore:  gs,
		EmbedLimiter: resilience.NewLimiter(resilience.LimiterOpts{
			Rate:  *embedRPS,
			Burst: 5,
		}),
		EmbedBreaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		DeduplicateF: func(_ context.Context, uid string) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			if seen[uid] {
				mDocsSkipped.Inc()
				return true, nil
			}
			seen[uid] = true
			return false, nil
		},
		Logger: log,
	}

	pipeline := ingest.NewPipeline(deps)

	if *natsURL != "" {
		nc, err := nats.Connect(*natsURL)
		if err != nil {
			log.Error("nats connect failed", "error", err)
			os.Exit(1)
		}
		defer nc.Close()
		sub, err := ingest.StartConsumer(nc, deps)
		if err != nil {
			log.Error("nats subscribe failed", "error", err)
			os.Exit(1)
		}
		defer sub.Unsubscribe()
		log.Info("consuming documents", "subject", ingest.IngestSubject)

		// Watch the dead letter queue so exhausted documents surface in
		// logs and metrics instead of vanishing into the subject.
		dlqSub, err := natsutil.Subscribe(nc, ingest.DLQSubject, func(_ context.Context, dl ingest.DeadLetter) {
			mDeadLetters.Inc()
			log.Error("document dead-lettered",
				"uid", dl.Doc.UID,
				"retries", dl.Retries,
				"error", dl.Error,
			)
		})
		if err != nil {
			log.Error("dlq subscribe failed", "error", err)
			os.Exit(1)
		}
		defer dlqSub.Unsubscribe()
	}

	processed := loadState(*stateFile)

	os.MkdirAll(*dataDir, 0o755)
	log.Info("watching for document files", "dir", *dataDir, "interval", *interval)

	scan := func() {
		mLastScan.Set(time.Now().Unix())
		entries, err := os.ReadDir(*dataDir)
		if err != nil {
			mErrorsTotal("scan").Inc()
			log.Error("readdir failed", "error", err)
			return
		}

		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || e.Name()[0] == '.' {
				continue
			}
			path := filepath.Join(*dataDir, e.Name())
			info, _ := e.Info()
			key := fmt.Sprintf("%s:%d", e.Name(), info.Size())

			if processed[key] {
				continue
			}

			mQueueDepth.Inc()
			log.Info("processing file", "file", e.Name())
			if info != nil {
				mBytesProcessed.Add(info.Size())
			}
			count, errs := processFile(ctx, path, pipeline, *workers)
			mQueueDepth.Dec()
			log.Info("file done", "file", e.Name(), "ingested", count, "errors", errs)
			mFilesProcessed.Inc()

			// Only mark as fully processed if no errors (allows retry on next scan)
			if errs == 0 {
				processed[key] = true
				saveState(*stateFile, processed)
			} else {
				log.Warn("file had errors, will retry on next scan", "file", e.Name(), "errors", errs)
			}
		}
	}

	scan()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			scan()
		}
	}
}

// chunkerFor builds a chunker with the selected tokenizer under the
// production configuration.
func chunkerFor(name string) (*chunker.Chunker, error) {
	var tok chunker.Tokenizer
	if name == "heuristic" {
		tok = chunker.HeuristicTokenizer{}
	} else {
		tt, err := chunker.NewTiktokenTokenizer(name)
		if err != nil {
			return nil, err
		}
		tok = tt
	}
	return chunker.New(chunker.DefaultConfig(), tok, chunker.RegexSplitter{})
}

func processFile(ctx context.Context, path string, pipeline fn.Stage[domain.Document, string], workers int) (int, int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 1
	}
	defer f.Close()

	// Files hold either a JSON array of documents or a stream of objects.
	var docs []domain.Document
	dec := json.NewDecoder(f)
	if err := dec.Decode(&docs); err != nil {
		f.Seek(0, 0)
		dec = json.NewDecoder(f)
		for {
			var doc domain.Document
			if err := dec.Decode(&doc); err != nil {
				break
			}
			docs = append(docs, doc)
		}
	}

	// Each document is independent, so fan them out. The embedding limiter
	// and breaker inside the pipeline still bound the upstream load.
	results := fn.ParMapResult(docs, workers, func(d domain.Document) fn.Result[string] {
		if err := ctx.Err(); err != nil {
			return fn.Err[string](err)
		}
		mActiveDocs.Inc()
		defer mActiveDocs.Dec()
		docStart := time.Now()
		defer mPipelineDur.Since(docStart)
		return pipeline(ctx, d)
	})

	count, errs := 0, 0
	log := slog.Default()
	for i, r := range results {
		if r.IsErr() {
			_, err := r.Unwrap()
			log.Error("pipeline error", "uid", docs[i].UID, "error", err)
			mErrorsTotal("pipeline").Inc()
			errs++
			continue
		}
		source := docs[i].Source
		if idx := strings.IndexByte(source, ':'); idx > 0 {
			source = source[:idx]
		}
		mDocsTotal(source).Inc()
		count++
	}
	return count, errs
}

func loadState(path string) map[string]bool {
	m := make(map[string]bool)
	data, err := os.ReadFile(path)
	if err != nil {
		return m
	}
	json.Unmarshal(data, &m)
	return m
}

func saveState(path string, m map[string]bool) {
	data, _ := json.Marshal(m)
	os.WriteFile(path, data, 0o644)
}
