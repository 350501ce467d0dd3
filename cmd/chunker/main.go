// Command chunker runs the chunking engine over JSON documents read from a
// file or stdin and prints the resulting chunk records. Useful for debugging
// window boundaries and guard behavior without a running pipeline.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/AbstraktAI/abstrakt-mvp/engine/chunker"
	"github.com/AbstraktAI/abstrakt-mvp/engine/domain"
)

func main() {
	var (
		input     = flag.String("in", "-", "input file of JSON documents, - for stdin")
		tokenizer = flag.String("tokenizer", "heuristic", "tokenizer: heuristic or a tiktoken encoding name")
		target    = flag.Int("target", 0, "target tokens per chunk (0 = default)")
		maxTok    = flag.Int("max", 0, "max tokens per chunk (0 = default)")
		summary   = flag.Bool("summary", false, "print one line per chunk instead of JSON")
	)
	flag.Parse()

	cfg := chunker.DefaultConfig()
	if *target > 0 {
		cfg.TargetTokens = *target
	}
	if *maxTok > 0 {
		cfg.MaxTokens = *maxTok
	}

	var tok chunker.Tokenizer = chunker.HeuristicTokenizer{}
	if *tokenizer != "heuristic" {
		tt, err := chunker.NewTiktokenTokenizer(*tokenizer)
		if err != nil {
			log.Fatalf("tokenizer: %v", err)
		}
		tok = tt
	}

	ck, err := chunker.New(cfg, tok, chunker.RegexSplitter{})
	if err != nil {
		log.Fatalf("chunker: %v", err)
	}

	var r io.Reader = os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			log.Fatalf("open: %v", err)
		}
		defer f.Close()
		r = f
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	dec := json.NewDecoder(r)
	docs, errs := 0, 0
	for {
		var doc domain.Document
		if err := dec.Decode(&doc); err != nil {
			if err != io.EOF {
				log.Printf("decode: %v", err)
				errs++
			}
			break
		}
		docs++

		chunks, err := ck.ChunkDocument(doc)
		if err != nil {
			log.Printf("chunk %s: %v", doc.UID, err)
			errs++
			continue
		}

		if *summary {
			for _, c := range chunks {
				fmt.Printf("%s %s section=%s tokens=%d sentences=%d\n",
					c.ParentUID, c.ChunkID, c.Section, c.TokenCount, c.SentenceCount)
			}
		} else if err := enc.Encode(chunks); err != nil {
			log.Fatalf("encode: %v", err)
		}
	}

	log.Printf("done: %d documents, %d errors", docs, errs)
	if errs > 0 {
		os.Exit(1)
	}
}
