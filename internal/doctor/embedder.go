package doctor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/embed"
)

// probeTimeout bounds the embedder probe. The configured embedding
// timeout is sized for batch work, far too long for a health check.
const probeTimeout = 5 * time.Second

// checkEmbedder builds the configured provider and asks it whether it
// can serve. Not required: indexing falls back to static vectors.
func checkEmbedder(ctx context.Context, cfg *config.Config, logger *slog.Logger) Result {
	r := Result{Name: "embedder", Required: false}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	ecfg := embed.Config{
		Provider:      embed.ParseProvider(cfg.Embeddings.Provider),
		Model:         cfg.Embeddings.Model,
		Dimensions:    cfg.Embeddings.Dimensions,
		BatchSize:     cfg.Embeddings.BatchSize,
		Timeout:       probeTimeout,
		OllamaHost:    cfg.Embeddings.OllamaHost,
		OpenAIBaseURL: cfg.Embeddings.OpenAIBaseURL,
	}
	if cfg.Embeddings.OpenAIKeyEnv != "" {
		ecfg.OpenAIKey = os.Getenv(cfg.Embeddings.OpenAIKeyEnv)
	}

	em, err := embed.New(ctx, ecfg, logger)
	if err != nil {
		r.Status = Warn
		r.Message = fmt.Sprintf("%s unavailable: %v", ecfg.Provider, err)
		r.Detail = embedderHint(ecfg.Provider, cfg)
		return r
	}
	defer func() { _ = em.Close() }()

	if !em.Available(ctx) {
		r.Status = Warn
		r.Message = fmt.Sprintf("%s configured but not responding", ecfg.Provider)
		r.Detail = embedderHint(ecfg.Provider, cfg)
		return r
	}

	// Auto quietly falls back to static vectors when Ollama is down;
	// that costs search quality, so say so.
	if ecfg.Provider == embed.ProviderAuto && em.ModelName() == "static" {
		r.Status = Warn
		r.Message = "auto resolved to static vectors"
		r.Detail = fmt.Sprintf("start Ollama at %s for semantic embeddings", cfg.Embeddings.OllamaHost)
		return r
	}

	r.Status = Pass
	r.Message = fmt.Sprintf("%s (%d dimensions)", em.ModelName(), em.Dimensions())
	return r
}

func embedderHint(provider embed.Provider, cfg *config.Config) string {
	switch provider {
	case embed.ProviderOllama:
		return fmt.Sprintf("start Ollama at %s, or set embeddings.provider to static", cfg.Embeddings.OllamaHost)
	case embed.ProviderOpenAI:
		return fmt.Sprintf("set %s, or set embeddings.provider to static", cfg.Embeddings.OpenAIKeyEnv)
	default:
		return "set embeddings.provider to static for fully offline indexing"
	}
}
