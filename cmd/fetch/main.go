// Command fetch queries PubMed for abstracts and hands them to the ingest
// pipeline, either by publishing to NATS or by writing JSON files into the
// directory cmd/ingest watches. Without either sink it prints to stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/AbstraktAI/abstrakt-mvp/engine/domain"
	"github.com/AbstraktAI/abstrakt-mvp/engine/fetch"
	"github.com/AbstraktAI/abstrakt-mvp/engine/ingest"
	"github.com/AbstraktAI/abstrakt-mvp/pkg/metrics"
	"github.com/AbstraktAI/abstrakt-mvp/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

var met = metrics.New()

var (
	mDocsFetched = met.Counter("abstrakt_fetch_docs_total", "Documents fetched from PubMed")
	mErrorsTotal = met.Counter("abstrakt_fetch_errors_total", "Fetch errors")
	mLastRun     = met.Gauge("abstrakt_fetch_last_run_timestamp", "Epoch of last fetch run")
)

func main() {
	var (
		query     = flag.String("query", "", "PubMed search query (required)")
		max       = flag.Int("max", 100, "max results to fetch")
		apiKey    = flag.String("api-key", os.Getenv("NCBI_API_KEY"), "NCBI API key")
		email     = flag.String("email", "", "contact email sent to NCBI")
		natsURL   = flag.String("nats", "", "NATS URL to publish documents to")
		subject   = flag.String("subject", ingest.IngestSubject, "NATS subject")
		outputDir = flag.String("output-dir", "", "directory to write JSON document files to")
		interval  = flag.Duration("interval", 0, "re-run interval, 0 for a single run")
	)
	flag.Parse()

	if *query == "" {
		log.Fatal("-query is required")
	}

	met.ServeAsync(9092)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := []fetch.PubMedOption{}
	if *apiKey != "" {
		opts = append(opts, fetch.WithAPIKey(*apiKey))
	}
	client := fetch.NewPubMedClient("abstrakt-fetch", *email, opts...)

	var nc *nats.Conn
	if *natsURL != "" {
		var err error
		nc, err = nats.Connect(*natsURL)
		if err != nil {
			log.Fatalf("nats connect: %v", err)
		}
		defer nc.Close()
		log.Printf("publishing to NATS subject %s", *subject)
	}

	if *outputDir != "" {
		os.MkdirAll(*outputDir, 0o755)
		log.Printf("writing JSON files to %s", *outputDir)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	emit := func(docs []domain.Document) {
		for _, d := range docs {
			if nc != nil {
				if err := natsutil.Publish(ctx, nc, *subject, d); err != nil {
					log.Printf("nats publish error: %v", err)
					mErrorsTotal.Inc()
				}
			} else if *outputDir == "" {
				if err := enc.Encode(d); err != nil {
					log.Printf("encode: %v", err)
				}
			}
		}
		if *outputDir != "" && len(docs) > 0 {
			name := strings.ReplaceAll(docs[0].Source, ":", "-")
			filename := fmt.Sprintf("%s/%s-%d.json", *outputDir, name, time.Now().UnixNano())
			f, err := os.Create(filename)
			if err != nil {
				log.Printf("output-dir write error: %v", err)
				mErrorsTotal.Inc()
			} else {
				fenc := json.NewEncoder(f)
				for _, d := range docs {
					fenc.Encode(d)
				}
				f.Close()
				log.Printf("wrote %d documents to %s", len(docs), filename)
			}
		}
	}

	run := func() {
		mLastRun.Set(time.Now().Unix())
		var batch []domain.Document
		for r := range client.Stream(ctx, *query, *max) {
			doc, err := r.Unwrap()
			if err != nil {
				log.Printf("fetch error: %v", err)
				mErrorsTotal.Inc()
				continue
			}
			mDocsFetched.Inc()
			batch = append(batch, doc)
		}
		emit(batch)
		log.Printf("fetched %d documents for %q", len(batch), *query)
	}

	run()

	if *interval <= 0 {
		return
	}
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("shutting down")
			return
		case <-ticker.C:
			run()
		}
	}
}
