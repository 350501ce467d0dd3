// Package chunker implements the abstract chunking engine: normalization,
// section detection, token-budgeted windowing with overlap, numeric-safety
// boundary adjustment, and deterministic chunk assembly.
//
// The pipeline is a pure, synchronous, single-document transformation. It
// holds no mutable state and performs no I/O; tokenizer and sentence-splitter
// collaborators are injected and must themselves be safe for concurrent use.
package chunker

import (
	"fmt"

	"github.com/AbstraktAI/abstrakt-mvp/engine/domain"
)

// TitleMode selects how the document title is carried on output chunks.
type TitleMode string

const (
	// TitlePrefixFirstChunk prefixes title and section label onto the first
	// chunk's text as a structured header.
	TitlePrefixFirstChunk TitleMode = "prefix-first-chunk"
	// TitleSeparateChunk emits the title as its own minimal chunk with the
	// reserved chunk_id "title", always at chunk_index 0.
	TitleSeparateChunk TitleMode = "separate-chunk"
)

// Config holds the tunable chunking parameters. A Config value is threaded
// explicitly through every call; there is no process-wide chunker state, so
// concurrent chunking under different versions is safe.
type Config struct {
	// TargetTokens is the preferred window size.
	TargetTokens int
	// MaxTokens is the hard window ceiling, violated only by the numeric
	// guard and then by at most GuardSlack.
	MaxTokens int
	// MinTokens is the smallest window the windower will close voluntarily.
	MinTokens int
	// OverlapTokens is the budget for trailing sentences re-seeded into the
	// next window.
	OverlapTokens int
	// ShortDocTokenThreshold is the total-token cutoff below which a document
	// is emitted as a single title+text chunk.
	ShortDocTokenThreshold int
	// ChunkerVersion is an opaque tag stored on every output chunk's Meta.
	ChunkerVersion string
	// TitleMode selects title handling; defaults to TitlePrefixFirstChunk.
	TitleMode TitleMode
}

// GuardSlackPercent is the exact ceiling on numeric-guard expansion: an
// adjusted window may reach MaxTokens * 115 / 100 but never more. The source
// guideline of "10-15%" is pinned to 15 so chunk output stays reproducible.
const GuardSlackPercent = 15

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TargetTokens:           325,
		MaxTokens:              450,
		MinTokens:              120,
		OverlapTokens:          50,
		ShortDocTokenThreshold: 80,
		ChunkerVersion:         "v1.0.0",
		TitleMode:              TitlePrefixFirstChunk,
	}
}

// guardCeiling returns the absolute token cap for numeric-guard-adjusted
// windows.
func (c Config) guardCeiling() int {
	return c.MaxTokens * (100 + GuardSlackPercent) / 100
}

// Validate rejects contradictory budget values. It fails fast, before any
// document is processed.
func (c Config) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, fmt.Sprintf(format, args...))
	}
	if c.TargetTokens <= 0 || c.MaxTokens <= 0 || c.MinTokens <= 0 {
		return fail("token budgets must be positive (target=%d max=%d min=%d)",
			c.TargetTokens, c.MaxTokens, c.MinTokens)
	}
	if c.MinTokens > c.MaxTokens {
		return fail("min_tokens %d > max_tokens %d", c.MinTokens, c.MaxTokens)
	}
	if c.TargetTokens > c.MaxTokens {
		return fail("target_tokens %d > max_tokens %d", c.TargetTokens, c.MaxTokens)
	}
	if c.OverlapTokens < 0 {
		return fail("overlap_tokens %d is negative", c.OverlapTokens)
	}
	if c.OverlapTokens >= c.TargetTokens {
		return fail("overlap_tokens %d >= target_tokens %d", c.OverlapTokens, c.TargetTokens)
	}
	if c.ShortDocTokenThreshold < 0 {
		return fail("short_document_token_threshold %d is negative", c.ShortDocTokenThreshold)
	}
	switch c.TitleMode {
	case TitlePrefixFirstChunk, TitleSeparateChunk, "":
	default:
		return fail("unknown title_mode %q", c.TitleMode)
	}
	return nil
}
