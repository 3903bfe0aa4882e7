package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	weftErrors "github.com/weftlabs/weft/internal/errors"
)

const (
	// DefaultOllamaHost is the standard local Ollama endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model.
	DefaultOllamaModel = "nomic-embed-text"

	// ollamaConnectTimeout bounds the initial reachability probe. A dead
	// server must fail fast so the factory can fall back.
	ollamaConnectTimeout = 5 * time.Second

	// ollamaPoolSize is the HTTP connection pool size.
	ollamaPoolSize = 4

	// modelUnloadThreshold marks the model as cold again. Ollama unloads
	// models after roughly five minutes of inactivity, and a cold first
	// request pays the model load time.
	modelUnloadThreshold = 5 * time.Minute

	// coldTimeoutFactor stretches the request timeout when the model may
	// need loading.
	coldTimeoutFactor = 3
)

// fallbackOllamaModels are tried in order when the configured model is
// not installed.
var fallbackOllamaModels = []string{
	"nomic-embed-text",
	"mxbai-embed-large",
	"all-minilm",
}

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// Host is the Ollama base URL.
	Host string

	// Model is the embedding model to use.
	Model string

	// FallbackModels are tried in order if the primary is not installed.
	FallbackModels []string

	// Dimensions overrides auto-detection when non-zero.
	Dimensions int

	// BatchSize is the number of texts per request.
	BatchSize int

	// Timeout bounds a single request against a warm model.
	Timeout time.Duration

	// MaxRetries is the retry budget for transient failures.
	MaxRetries int

	// SkipHealthCheck skips the startup reachability and model probe.
	SkipHealthCheck bool
}

// ollamaEmbedRequest is the /api/embed request body. Input is a string
// for a single text or a []string for a batch.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

// ollamaEmbedResponse is the /api/embed response body.
type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// ollamaTagsResponse is the /api/tags response body.
type ollamaTagsResponse struct {
	Models []ollamaModelInfo `json:"models"`
}

type ollamaModelInfo struct {
	Name string `json:"name"`
}

// OllamaEmbedder generates embeddings through Ollama's HTTP API.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	modelName string
	logger    *slog.Logger

	mu       sync.RWMutex
	closed   bool
	dims     int
	lastCall time.Time
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder connects to Ollama, resolves an installed embedding
// model, and detects the vector width unless configured.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig, logger *slog.Logger) (*OllamaEmbedder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.FallbackModels == nil {
		cfg.FallbackModels = fallbackOllamaModels
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

	// Short idle timeout: indexing runs are short-lived and connections
	// should drain quickly after the run ends.
	transport := &http.Transport{
		MaxIdleConns:        ollamaPoolSize,
		MaxIdleConnsPerHost: ollamaPoolSize,
		MaxConnsPerHost:     ollamaPoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	// No client-level timeout: each request carries its own context
	// deadline so cold model loads can get a longer budget.
	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		modelName: cfg.Model,
		logger:    logger,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		probeCtx, cancel := context.WithTimeout(ctx, ollamaConnectTimeout)
		model, err := e.findInstalledModel(probeCtx)
		cancel()
		if err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
		e.modelName = model

		if e.dims == 0 {
			// The first embed may load the model, so give it the cold
			// budget rather than the probe budget.
			detectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout*coldTimeoutFactor)
			dims, err := e.detectDimensions(detectCtx)
			cancel()
			if err != nil {
				transport.CloseIdleConnections()
				return nil, err
			}
			e.dims = dims
		}

		logger.Debug("ollama_embedder_ready",
			slog.String("host", cfg.Host),
			slog.String("model", e.modelName),
			slog.Int("dimensions", e.dims))
	}

	return e, nil
}

// listModels fetches the installed models from /api/tags.
func (e *OllamaEmbedder) listModels(ctx context.Context) ([]ollamaModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, e.classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, e.classifyStatus(resp.StatusCode, body)
	}

	var result ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, weftErrors.New(weftErrors.ErrCodeMalformedResponse,
			"failed to decode Ollama model list", err)
	}
	return result.Models, nil
}

// findInstalledModel resolves the configured model (or a fallback)
// against the installed set. Tags are matched loosely: "nomic-embed-text"
// matches an installed "nomic-embed-text:latest".
func (e *OllamaEmbedder) findInstalledModel(ctx context.Context) (string, error) {
	models, err := e.listModels(ctx)
	if err != nil {
		return "", err
	}

	installed := make(map[string]string)
	for _, m := range models {
		name := strings.ToLower(m.Name)
		installed[name] = m.Name
		base := strings.Split(name, ":")[0]
		if _, ok := installed[base]; !ok {
			installed[base] = m.Name
		}
	}

	lookup := func(model string) (string, bool) {
		name := strings.ToLower(model)
		if actual, ok := installed[name]; ok {
			return actual, true
		}
		actual, ok := installed[strings.Split(name, ":")[0]]
		return actual, ok
	}

	if actual, ok := lookup(e.config.Model); ok {
		return actual, nil
	}
	for _, fallback := range e.config.FallbackModels {
		if actual, ok := lookup(fallback); ok {
			e.logger.Warn("ollama_model_fallback",
				slog.String("requested", e.config.Model),
				slog.String("using", actual))
			return actual, nil
		}
	}

	return "", weftErrors.New(weftErrors.ErrCodeEmbedderUnavailable,
		fmt.Sprintf("no embedding model installed (tried %s and %v)", e.config.Model, e.config.FallbackModels), nil).
		WithSuggestion(fmt.Sprintf("run 'ollama pull %s'", e.config.Model))
}

// detectDimensions reads the vector width from a probe embedding.
func (e *OllamaEmbedder) detectDimensions(ctx context.Context) (int, error) {
	embeddings, err := e.doEmbed(ctx, []string{"dimension detection"})
	if err != nil {
		return 0, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return 0, weftErrors.New(weftErrors.ErrCodeMalformedResponse,
			"Ollama returned an empty probe embedding", nil)
	}
	return len(embeddings[0]), nil
}

// Embed generates the embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		return make([]float32, e.Dimensions()), nil
	}

	embeddings, err := e.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, weftErrors.New(weftErrors.ErrCodeMalformedResponse,
			"Ollama returned no embedding", nil)
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts. Whitespace-only
// texts become zero vectors without a provider round trip; the rest are
// sent in batches of the configured size.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

		embeddings, err := e.embedWithRetry(ctx, batchTexts)
		if err != nil {
			return nil, err
		}
		if len(embeddings) != len(batch) {
			return nil, weftErrors.New(weftErrors.ErrCodeMalformedResponse,
				fmt.Sprintf("Ollama returned %d embeddings for %d texts", len(embeddings), len(batch)), nil)
		}
		for i, emb := range embeddings {
			results[batch[i].idx] = emb
		}
	}

	return results, nil
}

// requestTimeout returns the per-request budget: the configured timeout
// when the model is warm, stretched when it likely needs loading.
func (e *OllamaEmbedder) requestTimeout() time.Duration {
	e.mu.RLock()
	lastCall := e.lastCall
	e.mu.RUnlock()

	if lastCall.IsZero() || time.Since(lastCall) > modelUnloadThreshold {
		return e.config.Timeout * coldTimeoutFactor
	}
	return e.config.Timeout
}

// embedWithRetry performs an embed request with bounded retries for
// transient failures.
func (e *OllamaEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	retryCfg := weftErrors.RetryConfig{
		MaxRetries:   e.config.MaxRetries,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	return weftErrors.RetryWithResult(ctx, retryCfg, func() ([][]float32, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.requestTimeout())
		defer cancel()

		embeddings, err := e.doEmbed(callCtx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		e.mu.Lock()
		e.lastCall = time.Now()
		if e.dims == 0 && len(embeddings) > 0 {
			e.dims = len(embeddings[0])
		}
		e.mu.Unlock()
		return embeddings, nil
	})
}

// doEmbed performs one /api/embed call and normalizes the result.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	var input any
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.modelName, Input: input})
	if err != nil {
		return nil, weftErrors.Wrap(weftErrors.ErrCodeEmbeddingFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, e.classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, e.classifyStatus(resp.StatusCode, respBody)
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, weftErrors.New(weftErrors.ErrCodeMalformedResponse,
			"failed to decode Ollama embed response", err)
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		embeddings[i] = normalizeVector(vec)
	}
	return embeddings, nil
}

// classifyTransportError maps connection-level failures to typed errors.
// Context cancellation passes through untouched.
func (e *OllamaEmbedder) classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return weftErrors.New(weftErrors.ErrCodeBackendTimeout,
			fmt.Sprintf("embedding request to %s timed out", e.config.Host), err)
	}
	return weftErrors.New(weftErrors.ErrCodeBackendUnavailable,
		fmt.Sprintf("cannot reach Ollama at %s", e.config.Host), err).
		WithSuggestion("start Ollama with 'ollama serve' or set embeddings.provider to 'static'")
}

// classifyStatus maps HTTP status codes to typed errors: overload and
// server faults are retryable, everything else is a request problem.
func (e *OllamaEmbedder) classifyStatus(status int, body []byte) error {
	msg := fmt.Sprintf("Ollama returned status %d: %s", status, strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusRequestTimeout:
		return weftErrors.New(weftErrors.ErrCodeBackendTimeout, msg, nil)
	case status == http.StatusTooManyRequests || status >= 500:
		return weftErrors.New(weftErrors.ErrCodeBackendUnavailable, msg, nil)
	default:
		return weftErrors.New(weftErrors.ErrCodeEmbeddingFailed, msg, nil)
	}
}

func (e *OllamaEmbedder) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return weftErrors.New(weftErrors.ErrCodeEmbedderUnavailable, "embedder is closed", nil)
	}
	return nil
}

// Dimensions returns the detected or configured vector width.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the resolved model identifier.
func (e *OllamaEmbedder) ModelName() string {
	return e.modelName
}

// Available reports whether Ollama is reachable and the model installed.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	if e.checkOpen() != nil {
		return false
	}

	models, err := e.listModels(ctx)
	if err != nil {
		return false
	}
	want := strings.ToLower(e.modelName)
	for _, m := range models {
		name := strings.ToLower(m.Name)
		if strings.Contains(name, want) || strings.Contains(want, name) {
			return true
		}
	}
	return false
}

// Close releases pooled connections.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
