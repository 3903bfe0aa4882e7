package embed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	weftErrors "github.com/weftlabs/weft/internal/errors"
)

func TestParseProvider(t *testing.T) {
	cases := map[string]Provider{
		"ollama":  ProviderOllama,
		"OpenAI":  ProviderOpenAI,
		"static":  ProviderStatic,
		"auto":    ProviderAuto,
		"":        ProviderAuto,
		"unknown": ProviderAuto,
	}
	for input, want := range cases {
		assert.Equal(t, want, ParseProvider(input), input)
	}
}

func unwrap(t *testing.T, e Embedder) Embedder {
	t.Helper()
	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok, "factory should wrap with the query cache")
	return cached.Inner()
}

func TestFactoryStaticProvider(t *testing.T) {
	e, err := New(context.Background(), Config{Provider: ProviderStatic, Dimensions: 64}, nil)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	inner := unwrap(t, e)
	assert.IsType(t, &StaticEmbedder{}, inner)
	assert.Equal(t, 64, e.Dimensions())
	assert.Equal(t, "static", e.ModelName())
}

func TestFactoryOfflineForcesStatic(t *testing.T) {
	e, err := New(context.Background(), Config{
		Provider:   ProviderOllama,
		OllamaHost: "http://127.0.0.1:1",
		Offline:    true,
	}, nil)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.IsType(t, &StaticEmbedder{}, unwrap(t, e))
}

func TestFactoryAutoFallsBackToStatic(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	e, err := New(context.Background(), Config{Provider: ProviderAuto, OllamaHost: url}, nil)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.IsType(t, &StaticEmbedder{}, unwrap(t, e))
}

func TestFactoryAutoUsesOllamaWhenReachable(t *testing.T) {
	fake := &fakeOllama{models: []string{"nomic-embed-text"}, dims: 4}
	ts := fake.server(t)

	e, err := New(context.Background(), Config{Provider: ProviderAuto, OllamaHost: ts.URL}, nil)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.IsType(t, &OllamaEmbedder{}, unwrap(t, e))
	assert.Equal(t, 4, e.Dimensions())
}

func TestFactoryExplicitOllamaFailsWithoutFallback(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := New(context.Background(), Config{Provider: ProviderOllama, OllamaHost: url}, nil)
	require.Error(t, err)
	assert.Equal(t, weftErrors.ErrCodeBackendUnavailable, weftErrors.GetCode(err))
}

func TestFactoryOpenAIRequiresKey(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: ProviderOpenAI}, nil)
	require.Error(t, err)
	assert.Equal(t, weftErrors.ErrCodeEmbedderUnavailable, weftErrors.GetCode(err))
}

func TestFactoryOpenAIConstructs(t *testing.T) {
	e, err := New(context.Background(), Config{
		Provider:  ProviderOpenAI,
		OpenAIKey: "test-key",
	}, nil)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	inner := unwrap(t, e)
	assert.IsType(t, &OpenAIEmbedder{}, inner)
	assert.Equal(t, DefaultOpenAIModel, e.ModelName())
	assert.Equal(t, 1536, e.Dimensions())
}
