// Package embed turns chunk text into vectors. Three providers share one
// interface: ollama (local HTTP server), openai (hosted API or compatible
// gateway), and static (deterministic hash projection, no network). The
// factory in this package selects a provider from configuration and wraps
// it with a small query cache.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// MaxBatchSize caps the number of texts per provider request.
	MaxBatchSize = 256

	// DefaultBatchSize is used when the configuration leaves the batch
	// size unset.
	DefaultBatchSize = 32

	// DefaultTimeout bounds a single embedding request against a warm
	// provider.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the per-request retry budget for transient
	// provider failures.
	DefaultMaxRetries = 3

	// DefaultStaticDimensions is the vector width of the static provider
	// when none is configured.
	DefaultStaticDimensions = 256
)

// Embedder generates vector embeddings for text. All providers return
// unit-length vectors so cosine scores are comparable across backends.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving
	// input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector width, or zero before it is known.
	Dimensions() int

	// ModelName returns the model identifier recorded in the manifest.
	ModelName() string

	// Available reports whether the provider can serve requests now.
	Available(ctx context.Context) bool

	// Close releases provider resources.
	Close() error
}

// normalizeVector scales a vector to unit length. Zero vectors are
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
