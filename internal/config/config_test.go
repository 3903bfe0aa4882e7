package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config dir at an empty temp dir so tests never
// read the developer's real ~/.config/weft.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ConfigVersion, cfg.Version)
	assert.Equal(t, []string{"."}, cfg.Paths.Include)
	assert.NotEmpty(t, cfg.Paths.Exclude)
	assert.Equal(t, 4, cfg.Indexing.Workers)
	assert.Equal(t, 32, cfg.Indexing.BatchSize)
	assert.Equal(t, "auto", cfg.Embeddings.Provider)
	assert.Equal(t, "hnsw", cfg.VectorStore.Primary)
	assert.Equal(t, "sqlite", cfg.VectorStore.Secondary)
	assert.True(t, cfg.Search.Lexical)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, "info", cfg.Logging.Level)

	// Defaults must pass their own validation.
	require.NoError(t, cfg.Validate())
}

func TestLoadWithoutAnyConfigFile(t *testing.T) {
	// Given a project root with no config files
	isolate(t)
	root := t.TempDir()

	// When loading
	cfg, err := Load(root)

	// Then defaults come back unchanged
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Indexing.BatchSize, cfg.Indexing.BatchSize)
	assert.Equal(t, "auto", cfg.Embeddings.Provider)
}

func TestLoadProjectConfigOverridesDefaults(t *testing.T) {
	// Given a project config that changes a few fields
	isolate(t)
	root := t.TempDir()
	yaml := `
indexing:
  batch_size: 8
  workers: 2
embeddings:
  provider: static
paths:
  exclude:
    - "docs/**"
`
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigName), []byte(yaml), 0o644))

	// When loading
	cfg, err := Load(root)
	require.NoError(t, err)

	// Then overridden fields change and the rest keep defaults
	assert.Equal(t, 8, cfg.Indexing.BatchSize)
	assert.Equal(t, 2, cfg.Indexing.Workers)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 3, cfg.Indexing.MaxRetries, "untouched field keeps default")

	// And project excludes extend the built-in list
	assert.Contains(t, cfg.Paths.Exclude, "docs/**")
	assert.Contains(t, cfg.Paths.Exclude, ".git/**")
}

func TestLoadAcceptsYmlSpelling(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".weft.yml"), []byte("indexing:\n  workers: 7\n"), 0o644))

	cfg, err := Load(root)

	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Indexing.Workers)
}

func TestLoadProjectBeatsUserConfig(t *testing.T) {
	// Given a user config and a project config that disagree
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	userDir := filepath.Join(xdg, "weft")
	require.NoError(t, os.MkdirAll(userDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "config.yaml"),
		[]byte("embeddings:\n  model: user-model\n  ollama_host: http://user:1234\n"), 0o644))

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigName),
		[]byte("embeddings:\n  model: project-model\n"), 0o644))

	// When loading
	cfg, err := Load(root)
	require.NoError(t, err)

	// Then the project file wins where both set a field
	assert.Equal(t, "project-model", cfg.Embeddings.Model)
	// And user-only fields still apply
	assert.Equal(t, "http://user:1234", cfg.Embeddings.OllamaHost)
}

func TestEnvOverridesBeatFiles(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigName),
		[]byte("embeddings:\n  provider: ollama\n"), 0o644))

	t.Setenv("WEFT_EMBEDDINGS_PROVIDER", "static")
	t.Setenv("WEFT_BATCH_SIZE", "16")
	t.Setenv("WEFT_LOG_LEVEL", "debug")
	t.Setenv("WEFT_LEXICAL", "false")

	cfg, err := Load(root)

	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 16, cfg.Indexing.BatchSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Search.Lexical)
}

func TestEmbedderAliasEnvVar(t *testing.T) {
	isolate(t)
	t.Setenv("WEFT_EMBEDDER", "openai")

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Embeddings.Provider)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigName),
		[]byte("indexing: [not: valid"), 0o644))

	_, err := Load(root)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "project config")
}

func TestLoadRejectsNewerConfigVersion(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigName),
		[]byte("version: 99\n"), 0o644))

	_, err := Load(root)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "config version 99")
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero workers", func(c *Config) { c.Indexing.Workers = 0 }, "indexing.workers"},
		{"zero batch", func(c *Config) { c.Indexing.BatchSize = 0 }, "indexing.batch_size"},
		{"overlap too large", func(c *Config) { c.Indexing.ChunkOverlap = c.Indexing.ChunkLines }, "chunk_overlap"},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "bedrock" }, "embeddings.provider"},
		{"bad timeout", func(c *Config) { c.Embeddings.Timeout = "soon" }, "embeddings.timeout"},
		{"unknown primary", func(c *Config) { c.VectorStore.Primary = "faiss" }, "vector_store.primary"},
		{"secondary equals primary", func(c *Config) { c.VectorStore.Secondary = "hnsw" }, "differ from primary"},
		{"bad cooldown", func(c *Config) { c.VectorStore.Cooldown = "later" }, "vector_store.cooldown"},
		{"zero max results", func(c *Config) { c.Search.MaxResults = 0 }, "search.max_results"},
		{"zero rrf", func(c *Config) { c.Search.RRFConstant = 0 }, "search.rrf_constant"},
		{"bad debounce", func(c *Config) { c.Watch.Debounce = "whenever" }, "watch.debounce"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateAllowsSecondaryNone(t *testing.T) {
	cfg := NewConfig()
	cfg.VectorStore.Secondary = "none"

	assert.NoError(t, cfg.Validate())
}

func TestIndexFingerprint(t *testing.T) {
	// Given two identical configs
	a := NewConfig()
	b := NewConfig()

	// Then fingerprints agree
	assert.Equal(t, a.IndexFingerprint(), b.IndexFingerprint())

	// And change when the embedding model changes
	b.Embeddings.Model = "text-embedding-3-small"
	assert.NotEqual(t, a.IndexFingerprint(), b.IndexFingerprint())

	// And when chunking geometry changes
	c := NewConfig()
	c.Indexing.ChunkLines = 80
	assert.NotEqual(t, a.IndexFingerprint(), c.IndexFingerprint())

	// But not when unrelated settings change
	d := NewConfig()
	d.Indexing.Workers = 16
	d.Search.MaxResults = 50
	assert.Equal(t, a.IndexFingerprint(), d.IndexFingerprint())
}

func TestFindProjectRoot(t *testing.T) {
	// Given a fake repo with a nested directory
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "internal", "deep")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	// When resolving from the nested directory
	got := FindProjectRoot(nested)

	// Then the repo root is found
	resolved, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)
	wantResolved, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Equal(t, wantResolved, resolved)
}

func TestFindProjectRootFallsBackToStart(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "plain")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	got := FindProjectRoot(sub)

	// No marker anywhere up the tree inside the temp dir, so unless a
	// parent happens to be a git repo the start dir comes back. Accept
	// either the start dir or one of its ancestors.
	assert.True(t, got == sub || strings.HasPrefix(sub, got+string(filepath.Separator)),
		"expected %s or an ancestor, got %s", sub, got)
}

func TestDataDir(t *testing.T) {
	assert.Equal(t, filepath.Join("/proj", ".weft"), DataDir("/proj"))
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	// Given a config with non-default values
	cfg := NewConfig()
	cfg.Embeddings.Model = "mxbai-embed-large"
	cfg.Indexing.BatchSize = 12

	// When writing and reloading it
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.WriteYAML(path))
	loaded, err := loadFromFile(path)
	require.NoError(t, err)

	// Then the values survive
	assert.Equal(t, "mxbai-embed-large", loaded.Embeddings.Model)
	assert.Equal(t, 12, loaded.Indexing.BatchSize)
}

func TestDurationHelpers(t *testing.T) {
	cfg := NewConfig()
	cfg.VectorStore.Cooldown = "45s"
	cfg.Watch.Debounce = "2s"
	cfg.Embeddings.Timeout = "90s"

	assert.Equal(t, "45s", cfg.CooldownDuration().String())
	assert.Equal(t, "2s", cfg.DebounceDuration().String())
	assert.Equal(t, "1m30s", cfg.EmbedTimeout().String())
}
