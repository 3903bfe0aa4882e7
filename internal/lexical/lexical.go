// Package lexical maintains the keyword sidecar index: a bleve index
// over chunk content, keyed by chunk ID, stored next to the vector index
// in the project data directory. The orchestrator feeds it best-effort on
// the same batch boundaries as the vector store, so it may briefly lag
// behind the manifest; search treats it as an optional second ranker and
// degrades to vector-only results when it is absent or failing.
package lexical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"

	weftErrors "github.com/weftlabs/weft/internal/errors"
	"github.com/weftlabs/weft/internal/vectorstore"
)

// DirName is the sidecar's directory name under the project data dir.
const DirName = "lexical.bleve"

// Result is one keyword hit. The display fields mirror the vector
// store's results so the search engine can render either kind without a
// second lookup.
type Result struct {
	ID        string
	Path      string
	Language  string
	StartLine int
	EndLine   int
	Content   string

	// Score is the raw BM25 score, comparable only within one query.
	Score float64

	// Matched lists the analyzed query terms found in the chunk.
	Matched []string
}

// Index is the bleve index handle. Safe for concurrent use.
type Index struct {
	mu     sync.RWMutex
	idx    bleve.Index
	path   string
	logger *slog.Logger
	closed bool
}

// document is the indexed shape of a chunk. Only content is analyzed;
// the rest are stored fields returned with hits.
type document struct {
	Content   string `json:"content"`
	Path      string `json:"path"`
	Language  string `json:"language"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// Open opens or creates the index directory at path. An empty path opens
// a memory-only index. A corrupt on-disk index is deleted and recreated
// empty rather than failing the caller; the next indexing run repopulates
// it.
func Open(path string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}

	im, err := buildMapping()
	if err != nil {
		return nil, weftErrors.Wrap(weftErrors.ErrCodeInternal, err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(im)
	} else {
		idx, err = openDisk(path, im, logger)
	}
	if err != nil {
		return nil, weftErrors.StorageError("opening lexical index", err).
			WithSuggestion("delete " + DirName + " and run 'weft index' to rebuild it")
	}

	return &Index{idx: idx, path: path, logger: logger}, nil
}

func buildMapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(analyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     tokenizerName,
		"token_filters": []string{lowercase.Name, stopFilterName},
	})
	if err != nil {
		return nil, fmt.Errorf("registering code analyzer: %w", err)
	}

	content := bleve.NewTextFieldMapping()
	content.Analyzer = analyzerName

	stored := bleve.NewTextFieldMapping()
	stored.Index = false
	stored.IncludeInAll = false

	storedNum := bleve.NewNumericFieldMapping()
	storedNum.Index = false
	storedNum.IncludeInAll = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", content)
	doc.AddFieldMappingsAt("path", stored)
	doc.AddFieldMappingsAt("language", stored)
	doc.AddFieldMappingsAt("start_line", storedNum)
	doc.AddFieldMappingsAt("end_line", storedNum)

	im.DefaultMapping = doc
	im.DefaultAnalyzer = analyzerName
	return im, nil
}

func openDisk(path string, im mapping.IndexMapping, logger *slog.Logger) (bleve.Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	if err := checkIntegrity(path); err != nil {
		logger.Warn("lexical_index_corrupt",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, fmt.Errorf("clearing corrupt index: %w", rmErr)
		}
		logger.Info("lexical_index_reset", slog.String("path", path))
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return bleve.New(path, im)
	}
	if err != nil && looksCorrupt(err) {
		logger.Warn("lexical_index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, fmt.Errorf("clearing corrupt index: %w", rmErr)
		}
		logger.Info("lexical_index_reset", slog.String("path", path))
		return bleve.New(path, im)
	}
	return idx, err
}

// checkIntegrity catches the common torn-write states bleve.Open reports
// confusingly or not at all: a missing or truncated index_meta.json.
func checkIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return err
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json unparseable: %w", err)
	}
	return nil
}

func looksCorrupt(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt") ||
		strings.Contains(msg, "no such file or directory")
}

// Index adds or replaces chunks, keyed by chunk ID.
func (ix *Index) Index(ctx context.Context, chunks []vectorstore.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := ix.idx.NewBatch()
	for _, c := range chunks {
		doc := document{
			Content:   c.Content,
			Path:      c.Path,
			Language:  c.Language,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
		}
		if err := batch.Index(c.ID, doc); err != nil {
			return fmt.Errorf("indexing chunk %s: %w", c.ID, err)
		}
	}
	if err := ix.idx.Batch(batch); err != nil {
		return weftErrors.StorageError("writing lexical batch", err)
	}
	return nil
}

// Delete removes chunks by ID. Absent IDs are not an error.
func (ix *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := ix.idx.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := ix.idx.Batch(batch); err != nil {
		return weftErrors.StorageError("deleting from lexical index", err)
	}
	return nil
}

// Search runs a match query over chunk content and returns up to limit
// hits in descending BM25 order. A blank query returns no hits.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	match := bleve.NewMatchQuery(query)
	match.SetField("content")

	req := bleve.NewSearchRequest(match)
	req.Size = limit
	req.Fields = []string{"path", "language", "start_line", "end_line", "content"}
	req.IncludeLocations = true

	res, err := ix.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, weftErrors.StorageError("lexical search", err)
	}

	hits := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		hits = append(hits, Result{
			ID:        hit.ID,
			Path:      fieldString(hit, "path"),
			Language:  fieldString(hit, "language"),
			StartLine: fieldInt(hit, "start_line"),
			EndLine:   fieldInt(hit, "end_line"),
			Content:   fieldString(hit, "content"),
			Score:     hit.Score,
			Matched:   matchedTerms(hit),
		})
	}
	return hits, nil
}

// AllIDs returns every indexed chunk ID, for cross-checks against the
// manifest.
func (ix *Index) AllIDs() ([]string, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}

	count, err := ix.idx.DocCount()
	if err != nil {
		return nil, weftErrors.StorageError("counting lexical documents", err)
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	res, err := ix.idx.Search(req)
	if err != nil {
		return nil, weftErrors.StorageError("listing lexical documents", err)
	}

	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Count returns the number of indexed chunks.
func (ix *Index) Count() (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return 0, fmt.Errorf("lexical index is closed")
	}

	n, err := ix.idx.DocCount()
	if err != nil {
		return 0, weftErrors.StorageError("counting lexical documents", err)
	}
	return int(n), nil
}

// Close releases the index. Close is idempotent; every other method
// fails after it.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	if ix.idx != nil {
		return ix.idx.Close()
	}
	return nil
}

func fieldString(hit *search.DocumentMatch, name string) string {
	if v, ok := hit.Fields[name].(string); ok {
		return v
	}
	return ""
}

func fieldInt(hit *search.DocumentMatch, name string) int {
	if v, ok := hit.Fields[name].(float64); ok {
		return int(v)
	}
	return 0
}

func matchedTerms(hit *search.DocumentMatch) []string {
	locations, ok := hit.Locations["content"]
	if !ok {
		return nil
	}
	terms := make([]string, 0, len(locations))
	for term := range locations {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}
