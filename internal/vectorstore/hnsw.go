package vectorstore

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWBackend stores vectors in an in-memory HNSW graph (pure Go, no
// CGO) and persists it with export/import plus a gob metadata sidecar
// holding the string-ID mapping and chunk payloads.
//
// Deletion is lazy: deleted nodes stay in the graph but lose their ID
// mapping, so they can never appear in results. Orphans accumulate
// until a forced reindex rebuilds the graph from scratch; Health
// reports the orphan count so callers can see when that is due.
type HNSWBackend struct {
	mu   sync.RWMutex
	path string

	graph *hnsw.Graph[uint64]
	dims  int

	idMap   map[string]uint64 // chunk ID -> internal key
	keyMap  map[uint64]string // internal key -> chunk ID
	payload map[string]chunkPayload
	nextKey uint64

	logger *slog.Logger
	closed bool
}

// chunkPayload is the non-vector part of a chunk, kept so search results
// carry their source context.
type chunkPayload struct {
	Path      string
	Language  string
	StartLine int
	EndLine   int
	Content   string
}

// hnswMeta is the gob sidecar written next to the graph file.
type hnswMeta struct {
	IDMap      map[string]uint64
	NextKey    uint64
	Dimensions int
	Payload    map[string]chunkPayload
}

var _ Backend = (*HNSWBackend)(nil)

// NewHNSWBackend creates an HNSW backend persisting to path (the sidecar
// goes to path+".meta"). dims may be zero, in which case the width of the
// first upserted vector is adopted.
func NewHNSWBackend(path string, dims int, logger *slog.Logger) *HNSWBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &HNSWBackend{
		path:    path,
		graph:   newGraph(),
		dims:    dims,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		payload: make(map[string]chunkPayload),
		logger:  logger,
	}
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 48
	g.Ml = 0.25
	return g
}

func (b *HNSWBackend) Name() string { return "hnsw" }

// Upsert inserts or replaces chunks. Vectors are copied and normalized to
// unit length so cosine distance behaves on raw embeddings.
func (b *HNSWBackend) Upsert(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, fmt.Errorf("hnsw backend is closed")
	}

	// Validate every vector before touching the graph so a bad batch
	// commits nothing.
	dims := b.dims
	for _, c := range chunks {
		if len(c.Vector) == 0 {
			return 0, ErrDimensionMismatch{Expected: dims, Got: 0}
		}
		if dims == 0 {
			dims = len(c.Vector)
		}
		if len(c.Vector) != dims {
			return 0, ErrDimensionMismatch{Expected: dims, Got: len(c.Vector)}
		}
	}
	b.dims = dims

	for _, c := range chunks {
		if oldKey, exists := b.idMap[c.ID]; exists {
			// Lazy replace: orphan the old node instead of deleting
			// from the graph.
			delete(b.keyMap, oldKey)
		}

		key := b.nextKey
		b.nextKey++

		vec := make([]float32, len(c.Vector))
		copy(vec, c.Vector)
		normalizeInPlace(vec)

		b.graph.Add(hnsw.MakeNode(key, vec))
		b.idMap[c.ID] = key
		b.keyMap[key] = c.ID
		b.payload[c.ID] = chunkPayload{
			Path:      c.Path,
			Language:  c.Language,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Content:   c.Content,
		}
	}

	return len(chunks), nil
}

// Delete removes chunks by ID via lazy deletion. Absent IDs are ignored.
func (b *HNSWBackend) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("hnsw backend is closed")
	}

	for _, id := range ids {
		if key, exists := b.idMap[id]; exists {
			delete(b.keyMap, key)
			delete(b.idMap, id)
			delete(b.payload, id)
		}
	}

	// An emptied store forgets its vector width and drops accumulated
	// orphans, so a rebuild may adopt a new embedding dimension.
	if len(b.idMap) == 0 {
		b.graph = newGraph()
		b.dims = 0
		b.nextKey = 0
	}
	return nil
}

// Search returns up to k nearest neighbors. The graph is over-queried by
// the current orphan count so lazy-deleted nodes cannot shrink the
// result set.
func (b *HNSWBackend) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("hnsw backend is closed")
	}
	if b.dims != 0 && len(query) != b.dims {
		return nil, ErrDimensionMismatch{Expected: b.dims, Got: len(query)}
	}
	if b.graph.Len() == 0 || k <= 0 {
		return []SearchResult{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	orphans := b.graph.Len() - len(b.idMap)
	nodes := b.graph.Search(normalized, k+orphans)

	results := make([]SearchResult, 0, k)
	for _, node := range nodes {
		id, live := b.keyMap[node.Key]
		if !live {
			continue
		}
		distance := b.graph.Distance(normalized, node.Value)
		p := b.payload[id]
		results = append(results, SearchResult{
			ID:        id,
			Path:      p.Path,
			Language:  p.Language,
			StartLine: p.StartLine,
			EndLine:   p.EndLine,
			Content:   p.Content,
			// Cosine distance ranges 0..2; fold into a 0..1 score.
			Score: 1.0 - distance/2.0,
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// AllIDs returns every live chunk ID.
func (b *HNSWBackend) AllIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("hnsw backend is closed")
	}
	ids := make([]string, 0, len(b.idMap))
	for id := range b.idMap {
		ids = append(ids, id)
	}
	return ids, nil
}

// Count returns the number of live chunks.
func (b *HNSWBackend) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, fmt.Errorf("hnsw backend is closed")
	}
	return len(b.idMap), nil
}

// Health reports the backend condition. An in-memory graph is healthy
// whenever it is open; the interesting signal is the orphan ratio.
func (b *HNSWBackend) Health(ctx context.Context) BackendHealth {
	start := time.Now()

	b.mu.RLock()
	defer b.mu.RUnlock()

	h := BackendHealth{Backend: b.Name(), Latency: time.Since(start)}
	if b.closed {
		h.Status = StatusUnavailable
		h.Message = "backend closed"
		return h
	}

	h.Status = StatusHealthy
	h.Vectors = len(b.idMap)
	if orphans := b.graph.Len() - len(b.idMap); orphans > 0 {
		h.Message = fmt.Sprintf("%d lazily deleted nodes retained in graph", orphans)
		if orphans > len(b.idMap) {
			// More dead nodes than live ones; searches still work but
			// over-fetch heavily.
			h.Status = StatusDegraded
			h.Message += "; a forced reindex would rebuild the graph"
		}
	}
	return h
}

// Save persists the graph and metadata atomically. Lazily deleted nodes
// are exported along with live ones; the sidecar's ID map is what
// decides liveness on reload.
func (b *HNSWBackend) Save() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("hnsw backend is closed")
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Graph file first, then the sidecar. A crash between the two leaves
	// a newer graph with an older ID map, which only means extra
	// orphans; the reverse order could map IDs to nodes that were never
	// exported.
	tmpPath := b.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := b.graph.Export(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	return b.saveMetaLocked()
}

func (b *HNSWBackend) saveMetaLocked() error {
	metaPath := b.path + ".meta"
	tmpPath := metaPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create metadata file: %w", err)
	}

	meta := hnswMeta{
		IDMap:      b.idMap,
		NextKey:    b.nextKey,
		Dimensions: b.dims,
		Payload:    b.payload,
	}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close metadata file: %w", err)
	}
	return os.Rename(tmpPath, metaPath)
}

// Load restores the graph and metadata from disk. Missing files mean a
// fresh start. A partially written or undecodable pair is cleared with a
// warning rather than surfaced: the index is derived data and the next
// run rebuilds it.
func (b *HNSWBackend) Load() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("hnsw backend is closed")
	}

	metaPath := b.path + ".meta"
	_, graphErr := os.Stat(b.path)
	_, metaErr := os.Stat(metaPath)
	if os.IsNotExist(graphErr) && os.IsNotExist(metaErr) {
		return nil
	}
	if os.IsNotExist(graphErr) || os.IsNotExist(metaErr) {
		b.logger.Warn("hnsw_index_partial_state_cleared",
			slog.String("path", b.path))
		b.resetLocked()
		return nil
	}

	if err := b.loadLocked(metaPath); err != nil {
		b.logger.Warn("hnsw_index_corrupted_cleared",
			slog.String("path", b.path),
			slog.String("error", err.Error()))
		b.resetLocked()
		return nil
	}

	b.logger.Debug("hnsw_index_loaded",
		slog.Int("vectors", len(b.idMap)),
		slog.Int("dimensions", b.dims))
	return nil
}

func (b *HNSWBackend) loadLocked(metaPath string) error {
	mf, err := os.Open(metaPath)
	if err != nil {
		return fmt.Errorf("failed to open metadata: %w", err)
	}
	var meta hnswMeta
	decodeErr := gob.NewDecoder(mf).Decode(&meta)
	_ = mf.Close()
	if decodeErr != nil {
		return fmt.Errorf("failed to decode metadata: %w", decodeErr)
	}

	gf, err := os.Open(b.path)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer func() { _ = gf.Close() }()

	graph := newGraph()
	// coder/hnsw Import requires an io.ByteReader.
	if err := graph.Import(bufio.NewReader(gf)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	b.graph = graph
	b.idMap = meta.IDMap
	b.nextKey = meta.NextKey
	b.dims = meta.Dimensions
	b.payload = meta.Payload
	if b.idMap == nil {
		b.idMap = make(map[string]uint64)
	}
	if b.payload == nil {
		b.payload = make(map[string]chunkPayload)
	}
	b.keyMap = make(map[uint64]string, len(b.idMap))
	for id, key := range b.idMap {
		b.keyMap[key] = id
	}
	return nil
}

func (b *HNSWBackend) resetLocked() {
	b.graph = newGraph()
	b.idMap = make(map[string]uint64)
	b.keyMap = make(map[uint64]string)
	b.payload = make(map[string]chunkPayload)
	b.nextKey = 0
	_ = os.Remove(b.path)
	_ = os.Remove(b.path + ".meta")
}

// Close releases the graph. Further calls fail.
func (b *HNSWBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.graph = nil
	return nil
}

// normalizeInPlace scales a vector to unit length. Zero vectors are left
// alone.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
