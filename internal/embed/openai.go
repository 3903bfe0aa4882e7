package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	weftErrors "github.com/weftlabs/weft/internal/errors"
)

// DefaultOpenAIModel is the default hosted embedding model.
const DefaultOpenAIModel = "text-embedding-3-small"

// openAIModelDimensions holds the native widths of the known models,
// used until the first response confirms the actual width.
var openAIModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	// APIKey authenticates requests. Required.
	APIKey string

	// BaseURL overrides the API endpoint for proxies and compatible
	// servers. Empty uses the SDK default.
	BaseURL string

	// Model is the embedding model to use.
	Model string

	// Dimensions requests a reduced vector width from models that
	// support it. Zero uses the model's native width.
	Dimensions int

	// BatchSize is the number of texts per request.
	BatchSize int

	// Timeout bounds a single request.
	Timeout time.Duration

	// MaxRetries is the SDK's retry budget for transient failures.
	MaxRetries int
}

// OpenAIEmbedder generates embeddings through the OpenAI API or an
// OpenAI-compatible gateway.
type OpenAIEmbedder struct {
	client openai.Client
	config OpenAIConfig
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	dims   int
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder builds the client. No network call is made until the
// first embedding request.
func NewOpenAIEmbedder(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIEmbedder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		return nil, weftErrors.New(weftErrors.ErrCodeEmbedderUnavailable,
			"OpenAI API key is not set", nil).
			WithSuggestion("export OPENAI_API_KEY or point embeddings.openai_key_env at the variable holding it")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	dims := cfg.Dimensions
	if dims == 0 {
		dims = openAIModelDimensions[cfg.Model]
	}

	return &OpenAIEmbedder{
		client: openai.NewClient(opts...),
		config: cfg,
		logger: logger,
		dims:   dims,
	}, nil
}

// Embed generates the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.Dimensions()), nil
	}

	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts. The SDK handles
// transport retries; this layer batches, classifies failures, and keeps
// every vector normalized.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexedText struct {
		idx  int
		text string
	}
	results := make([][]float32, len(texts))
	var pending []indexedText
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.Dimensions())
		} else {
			pending = append(pending, indexedText{i, text})
		}
	}

	for start := 0; start < len(pending); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + e.config.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		vecs, err := e.embedBatchOnce(ctx, batchTexts)
		if err != nil {
			return nil, err
		}
		for i, vec := range vecs {
			results[batch[i].idx] = vec
		}
	}

	return results, nil
}

// embedBatchOnce performs one API call for up to BatchSize texts.
func (e *OpenAIEmbedder) embedBatchOnce(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.config.Model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if e.config.Dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.config.Dimensions))
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	resp, err := e.client.Embeddings.New(callCtx, params)
	if err != nil {
		return nil, e.classifyError(ctx, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, weftErrors.New(weftErrors.ErrCodeMalformedResponse,
			fmt.Sprintf("OpenAI returned %d embeddings for %d texts", len(resp.Data), len(texts)), nil)
	}

	vecs := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || int(item.Index) >= len(vecs) {
			return nil, weftErrors.New(weftErrors.ErrCodeMalformedResponse,
				fmt.Sprintf("OpenAI returned out-of-range embedding index %d", item.Index), nil)
		}
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		vecs[item.Index] = normalizeVector(vec)
	}

	e.mu.Lock()
	if e.dims == 0 && len(vecs) > 0 {
		e.dims = len(vecs[0])
	}
	e.mu.Unlock()

	return vecs, nil
}

// classifyError maps SDK failures to typed errors. Rate limits and
// server faults are retryable; auth and request problems are not.
func (e *OpenAIEmbedder) classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return weftErrors.New(weftErrors.ErrCodeBackendTimeout,
			"OpenAI embedding request timed out", err)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := fmt.Sprintf("OpenAI returned status %d", apiErr.StatusCode)
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500:
			return weftErrors.New(weftErrors.ErrCodeBackendUnavailable, msg, err)
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return weftErrors.New(weftErrors.ErrCodeEmbedderUnavailable, msg, err).
				WithSuggestion("check that the API key is valid and has embedding access")
		default:
			return weftErrors.New(weftErrors.ErrCodeEmbeddingFailed, msg, err)
		}
	}

	return weftErrors.New(weftErrors.ErrCodeBackendUnavailable,
		"OpenAI embedding request failed", err)
}

func (e *OpenAIEmbedder) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return weftErrors.New(weftErrors.ErrCodeEmbedderUnavailable, "embedder is closed", nil)
	}
	return nil
}

// Dimensions returns the configured, known, or detected vector width.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// Available reports readiness. The API has no free health endpoint, so
// this checks local state only; a bad key surfaces on the first request.
func (e *OpenAIEmbedder) Available(_ context.Context) bool {
	return e.checkOpen() == nil
}

// Close marks the embedder closed.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
