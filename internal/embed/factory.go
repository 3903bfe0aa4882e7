package embed

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Provider identifies an embedding provider.
type Provider string

const (
	// ProviderAuto probes Ollama and falls back to static vectors.
	ProviderAuto Provider = "auto"

	// ProviderOllama uses a local Ollama server.
	ProviderOllama Provider = "ollama"

	// ProviderOpenAI uses the OpenAI API or a compatible gateway.
	ProviderOpenAI Provider = "openai"

	// ProviderStatic uses deterministic hash-projection vectors.
	ProviderStatic Provider = "static"
)

// ParseProvider converts a configuration string to a Provider.
// Unrecognized values map to auto.
func ParseProvider(s string) Provider {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ollama":
		return ProviderOllama
	case "openai":
		return ProviderOpenAI
	case "static":
		return ProviderStatic
	default:
		return ProviderAuto
	}
}

// Config carries the provider selection and tuning knobs, mapped from
// the embeddings section of the configuration by the caller.
type Config struct {
	// Provider selects the implementation.
	Provider Provider

	// Model is passed through to the provider.
	Model string

	// Dimensions is the expected vector width; zero defers to the
	// provider.
	Dimensions int

	// BatchSize is the number of texts per provider request.
	BatchSize int

	// Timeout bounds a single provider request.
	Timeout time.Duration

	// OllamaHost is the Ollama base URL.
	OllamaHost string

	// OpenAIBaseURL overrides the OpenAI endpoint.
	OpenAIBaseURL string

	// OpenAIKey is the API key resolved from the environment.
	OpenAIKey string

	// Offline forces the static provider regardless of selection.
	Offline bool

	// CacheSize is the query cache capacity; zero uses the default.
	CacheSize int
}

// New builds the configured embedder, wrapped with the query cache.
//
// Explicit selections fail loudly when their provider is unusable, so a
// manifest is never silently built with the wrong model. Only "auto"
// falls back: it probes Ollama and degrades to static vectors with a
// warning when the probe fails.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderAuto
	}
	if cfg.Offline && provider != ProviderStatic {
		logger.Info("embeddings_offline", slog.String("forced_provider", "static"))
		provider = ProviderStatic
	}

	var inner Embedder
	switch provider {
	case ProviderStatic:
		inner = NewStaticEmbedder(cfg.Dimensions)

	case ProviderOpenAI:
		e, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.OpenAIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		inner = e

	case ProviderOllama:
		e, err := NewOllamaEmbedder(ctx, ollamaConfigFrom(cfg), logger)
		if err != nil {
			return nil, err
		}
		inner = e

	default: // ProviderAuto
		e, err := NewOllamaEmbedder(ctx, ollamaConfigFrom(cfg), logger)
		if err != nil {
			logger.Warn("ollama_unavailable_using_static",
				slog.String("error", err.Error()))
			inner = NewStaticEmbedder(cfg.Dimensions)
		} else {
			inner = e
		}
	}

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}

func ollamaConfigFrom(cfg Config) OllamaConfig {
	return OllamaConfig{
		Host:       cfg.OllamaHost,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		BatchSize:  cfg.BatchSize,
		Timeout:    cfg.Timeout,
	}
}
