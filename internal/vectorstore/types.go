// Package vectorstore stores embedded chunks and serves nearest-neighbor
// queries over them. Two backends are provided: an in-memory HNSW graph
// persisted to disk, and a SQLite table searched by brute force. The
// Handle composes backends into one logical store with failover, so a
// backend outage degrades throughput, not correctness.
package vectorstore

import (
	"context"
	"fmt"
	"time"
)

// Chunk is one embedded unit of file content, addressable by its ID.
type Chunk struct {
	// ID is the globally unique chunk identifier from the manifest's ID
	// scheme.
	ID string

	// Path is the project-relative path of the source file.
	Path string

	// Language is the detected source language, empty if unknown.
	Language string

	// StartLine and EndLine are 1-based inclusive line bounds in the
	// source file.
	StartLine int
	EndLine   int

	// Content is the chunk text, stored so search results can be shown
	// without re-reading files.
	Content string

	// Vector is the embedding, of the store's configured dimension.
	Vector []float32
}

// SearchResult is one nearest-neighbor hit.
type SearchResult struct {
	ID        string
	Path      string
	Language  string
	StartLine int
	EndLine   int
	Content   string

	// Score is a normalized similarity in [0, 1], higher is closer.
	Score float32
}

// Status is the normalized backend condition. Every backend's private
// health representation collapses into this one type; nothing else ever
// crosses the Handle boundary.
type Status string

const (
	// StatusHealthy means the backend is serving requests normally.
	StatusHealthy Status = "healthy"

	// StatusDegraded means the backend responds but reported a problem
	// worth surfacing (slow, partially loaded).
	StatusDegraded Status = "degraded"

	// StatusUnavailable means the backend cannot serve requests right
	// now, including breaker-open cooldowns.
	StatusUnavailable Status = "unavailable"
)

// BackendHealth is the normalized per-backend health report.
type BackendHealth struct {
	// Backend is the backend name ("hnsw", "sqlite").
	Backend string `json:"backend"`

	// Status is the normalized condition.
	Status Status `json:"status"`

	// Vectors is the stored vector count, 0 when unknown.
	Vectors int `json:"vectors"`

	// Latency is how long the health probe took.
	Latency time.Duration `json:"latency"`

	// Message is a short human-readable detail, already normalized;
	// raw driver errors never appear here verbatim.
	Message string `json:"message,omitempty"`
}

// Backend is a single vector store implementation. All mutation and query
// methods take a context; Save, Load, and Close are local file-system
// operations and do not.
type Backend interface {
	// Name identifies the backend in logs and health reports.
	Name() string

	// Upsert inserts or replaces chunks by ID and returns the number of
	// chunks durably committed. An error means nothing from this call
	// was committed.
	Upsert(ctx context.Context, chunks []Chunk) (int, error)

	// Delete removes chunks by ID. Deleting absent IDs is not an error.
	Delete(ctx context.Context, ids []string) error

	// Search returns up to k nearest neighbors of the query vector.
	Search(ctx context.Context, query []float32, k int) ([]SearchResult, error)

	// AllIDs returns every stored chunk ID, for consistency checks.
	AllIDs(ctx context.Context) ([]string, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Health probes the backend and reports its normalized condition.
	Health(ctx context.Context) BackendHealth

	// Save persists the backend's state to its configured location.
	Save() error

	// Load restores state from the configured location. A missing file
	// is a fresh start, not an error.
	Load() error

	// Close releases resources. The backend is unusable afterwards.
	Close() error
}

// ErrDimensionMismatch indicates a vector of the wrong width. It is a
// data error: failing over to another backend cannot fix it, because the
// same vectors would be rejected there too.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	if e.Got == 0 {
		return "dimension mismatch: empty vector"
	}
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'weft index --force' after changing embedding models)", e.Expected, e.Got)
}
