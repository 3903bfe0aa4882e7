// Package search answers queries against an indexed project. A query is
// embedded and run against the vector store while the lexical sidecar
// runs a keyword match in parallel; the two rankings are merged with
// reciprocal rank fusion. Either source may fail or be absent: hybrid
// queries degrade to the surviving source with a warning, and only a
// query with no working source at all fails.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/embed"
	"github.com/weftlabs/weft/internal/history"
	"github.com/weftlabs/weft/internal/lexical"
	"github.com/weftlabs/weft/internal/vectorstore"
)

// Result is one ranked hit.
type Result struct {
	ChunkID   string `json:"chunk_id"`
	Path      string `json:"path"`
	Language  string `json:"language,omitempty"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Content   string `json:"content"`

	// Score is the fused rank score, normalized so the top hit is 1.
	Score float64 `json:"score"`

	// VectorScore and LexicalScore preserve the per-source scores; zero
	// when that source did not return the chunk.
	VectorScore  float64 `json:"vector_score,omitempty"`
	LexicalScore float64 `json:"lexical_score,omitempty"`

	// Matched lists the keyword terms found in the chunk.
	Matched []string `json:"matched,omitempty"`
}

// VectorSearcher is the vector side of a query. *vectorstore.Handle
// satisfies it.
type VectorSearcher interface {
	Search(ctx context.Context, query []float32, k int) ([]vectorstore.SearchResult, error)
}

// Lexical is the keyword side of a query. *lexical.Index satisfies it;
// a nil Lexical makes every query vector-only.
type Lexical interface {
	Search(ctx context.Context, query string, limit int) ([]lexical.Result, error)
}

// Recorder collects per-query summaries. *history.Store satisfies it.
type Recorder interface {
	SaveSearch(ctx context.Context, rec history.SearchRecord) error
}

var _ Recorder = (*history.Store)(nil)

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithRecorder sets a recorder for query summaries. Every completed
// search is recorded; recording failures are logged, never returned.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// Options tunes one query.
type Options struct {
	// Limit caps returned results; 0 uses the configured default.
	Limit int

	// VectorOnly skips the keyword side even when a sidecar is wired.
	VectorOnly bool
}

// Engine runs hybrid queries. Safe for concurrent use.
type Engine struct {
	embedder embed.Embedder
	vectors  VectorSearcher
	lexical  Lexical
	recorder Recorder
	k        int
	limit    int
	logger   *slog.Logger
}

// NewEngine builds an Engine. The lexical side may be nil; everything
// else is required. Result cap and RRF constant come from cfg.Search.
func NewEngine(embedder embed.Embedder, vectors VectorSearcher, lex Lexical, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if vectors == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := cfg.Search.MaxResults
	if limit <= 0 {
		limit = 10
	}
	k := cfg.Search.RRFConstant
	if k <= 0 {
		k = DefaultRRFConstant
	}

	e := &Engine{
		embedder: embedder,
		vectors:  vectors,
		lexical:  lex,
		k:        k,
		limit:    limit,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search runs one query and returns fused results, best first. A blank
// query returns no results and no error.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	start := time.Now()

	limit := opts.Limit
	if limit <= 0 {
		limit = e.limit
	}
	// Overfetch per source so fusion reranks a wider candidate pool than
	// the final cut.
	fetch := limit * 2

	useLexical := e.lexical != nil && !opts.VectorOnly

	var (
		vecHits []vectorstore.SearchResult
		lexHits []lexical.Result
		vecErr  error
		lexErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vector, err := e.embedder.Embed(gctx, query)
		if err != nil {
			vecErr = fmt.Errorf("embedding query: %w", err)
			return nil
		}
		vecHits, vecErr = e.vectors.Search(gctx, vector, fetch)
		return nil
	})
	if useLexical {
		g.Go(func() error {
			lexHits, lexErr = e.lexical.Search(gctx, query, fetch)
			return nil
		})
	}
	// Source errors are collected, not returned, so one side failing
	// never cancels the other; Wait only reports context cancellation.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if vecErr != nil && (!useLexical || lexErr != nil) {
		return nil, errors.Join(vecErr, lexErr)
	}
	if vecErr != nil {
		e.logger.Warn("vector_search_degraded",
			slog.String("query", query),
			slog.String("error", vecErr.Error()))
	}
	if lexErr != nil {
		e.logger.Warn("lexical_search_degraded",
			slog.String("query", query),
			slog.String("error", lexErr.Error()))
	}

	results := fuse(vecHits, lexHits, e.k)
	if len(results) > limit {
		results = results[:limit]
	}

	mode := "vector"
	if useLexical {
		mode = "hybrid"
	}
	e.recordSearch(ctx, query, mode, len(results), time.Since(start))

	e.logger.Debug("search_complete",
		slog.String("query", query),
		slog.Int("vector_hits", len(vecHits)),
		slog.Int("lexical_hits", len(lexHits)),
		slog.Int("returned", len(results)))
	return results, nil
}

// recordSearch saves a query summary when a recorder is wired. The mode
// reflects what was asked of the engine, not what survived degradation.
func (e *Engine) recordSearch(ctx context.Context, query, mode string, results int, took time.Duration) {
	if e.recorder == nil {
		return
	}
	rec := history.SearchRecord{
		At:        time.Now(),
		QueryHash: history.HashQuery(query),
		Mode:      mode,
		LatencyMS: took.Milliseconds(),
		Results:   results,
	}
	if err := e.recorder.SaveSearch(ctx, rec); err != nil {
		e.logger.Warn("search_record_failed", slog.String("error", err.Error()))
	}
}
