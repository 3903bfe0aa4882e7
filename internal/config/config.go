// Package config loads, merges, and validates weft configuration.
//
// Configuration sources are merged in precedence order:
//
//	1. Hardcoded defaults (NewConfig)
//	2. User config (~/.config/weft/config.yaml)
//	3. Project config (.weft.yaml at the project root)
//	4. Environment variables (WEFT_*)
//
// Later sources win field by field. Validate runs once, after the merge,
// so a project file only has to name the fields it changes.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigVersion is the current config schema version.
	ConfigVersion = 1

	// ProjectConfigName is the project-level config filename, checked in
	// the project root. A .yml spelling is also accepted.
	ProjectConfigName = ".weft.yaml"

	// DataDirName is the per-project data directory created next to the
	// project config. Manifest, checkpoint, vector stores, and logs all
	// live under it.
	DataDirName = ".weft"
)

// defaultExcludePatterns are directories and files skipped during scanning.
// Project config can extend but not shrink this list; the patterns here are
// never useful to index and frequently huge.
var defaultExcludePatterns = []string{
	".git/**",
	".weft/**",
	"node_modules/**",
	"vendor/**",
	"dist/**",
	"build/**",
	"target/**",
	".venv/**",
	"venv/**",
	"__pycache__/**",
	".idea/**",
	".vscode/**",
	"*.min.js",
	"*.min.css",
	"*.lock",
	"*.log",
}

// Config is the root configuration object.
type Config struct {
	// Version is the config schema version. Files written by newer weft
	// releases with a higher version are rejected at load time.
	Version int `yaml:"version" json:"version"`

	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Indexing    IndexingConfig    `yaml:"indexing" json:"indexing"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	VectorStore VectorStoreConfig `yaml:"vector_store" json:"vector_store"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Watch       WatchConfig       `yaml:"watch" json:"watch"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// PathsConfig controls which files the scanner visits.
type PathsConfig struct {
	// Include lists directories (relative to the project root) to scan.
	// Defaults to the whole root.
	Include []string `yaml:"include" json:"include"`

	// Exclude lists gitignore-style patterns skipped during scanning,
	// appended to the built-in defaults.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// IndexingConfig controls the indexing run itself.
type IndexingConfig struct {
	// Workers is the number of concurrent hash/chunk workers.
	Workers int `yaml:"workers" json:"workers"`

	// BatchSize is the number of files committed per batch. Each batch is
	// embedded, written to the vector store, and recorded in the manifest
	// before the next one starts.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// MaxFileSizeKB skips files larger than this during scanning.
	MaxFileSizeKB int `yaml:"max_file_size_kb" json:"max_file_size_kb"`

	// MaxRetries bounds retry attempts for transient backend failures.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// ChunkLines is the target chunk height in lines for the fallback
	// line chunker. Structure-aware chunkers use their own boundaries.
	ChunkLines int `yaml:"chunk_lines" json:"chunk_lines"`

	// ChunkOverlap is the number of lines repeated between adjacent
	// fallback chunks.
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
}

// EmbeddingsConfig selects and tunes the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of "auto", "ollama", "openai", or "static".
	// "auto" probes Ollama and falls back to static hashing vectors.
	Provider string `yaml:"provider" json:"provider"`

	// Model is the embedding model name, passed through to the provider.
	Model string `yaml:"model" json:"model"`

	// Dimensions is the expected vector width. Zero means "whatever the
	// provider returns"; non-zero is enforced.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// BatchSize is the number of texts sent per embedding request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// OllamaHost is the Ollama base URL.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// OpenAIBaseURL overrides the OpenAI API endpoint, for proxies and
	// compatible servers. Empty uses the SDK default.
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`

	// OpenAIKeyEnv names the environment variable holding the API key.
	// The key itself never appears in config files.
	OpenAIKeyEnv string `yaml:"openai_key_env" json:"openai_key_env"`

	// Timeout bounds a single embedding request, as a Go duration string.
	Timeout string `yaml:"timeout" json:"timeout"`
}

// VectorStoreConfig selects the vector backends.
type VectorStoreConfig struct {
	// Primary is the preferred backend: "hnsw" or "sqlite".
	Primary string `yaml:"primary" json:"primary"`

	// Secondary is the failover backend: "hnsw", "sqlite", or "none".
	Secondary string `yaml:"secondary" json:"secondary"`

	// MaxFailures is the consecutive-failure count that opens a
	// backend's circuit breaker.
	MaxFailures int `yaml:"max_failures" json:"max_failures"`

	// Cooldown is how long an open breaker waits before probing the
	// backend again, as a Go duration string.
	Cooldown string `yaml:"cooldown" json:"cooldown"`
}

// SearchConfig tunes query behavior.
type SearchConfig struct {
	// MaxResults caps the number of results returned per query.
	MaxResults int `yaml:"max_results" json:"max_results"`

	// Lexical enables the BM25 sidecar index and rank fusion.
	Lexical bool `yaml:"lexical" json:"lexical"`

	// RRFConstant is the k in reciprocal rank fusion; larger values
	// flatten the contribution of top ranks.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
}

// WatchConfig tunes watch mode.
type WatchConfig struct {
	// Debounce is how long to wait after the last filesystem event
	// before starting an incremental run, as a Go duration string.
	Debounce string `yaml:"debounce" json:"debounce"`
}

// LoggingConfig controls the log file.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level" json:"level"`

	// MaxSizeMB rotates the log file when it exceeds this size.
	MaxSizeMB int `yaml:"max_size_mb" json:"max_size_mb"`

	// MaxFiles is the number of rotated log files kept.
	MaxFiles int `yaml:"max_files" json:"max_files"`
}

// NewConfig returns a Config populated with defaults. The defaults are
// chosen so that `weft index` works in a fresh checkout with no config
// file at all.
func NewConfig() *Config {
	return &Config{
		Version: ConfigVersion,
		Paths: PathsConfig{
			Include: []string{"."},
			Exclude: defaultExcludePatterns,
		},
		Indexing: IndexingConfig{
			Workers:       4,
			BatchSize:     32,
			MaxFileSizeKB: 1024,
			MaxRetries:    3,
			ChunkLines:    120,
			ChunkOverlap:  20,
		},
		Embeddings: EmbeddingsConfig{
			Provider:     "auto",
			Model:        "nomic-embed-text",
			Dimensions:   768,
			BatchSize:    32,
			OllamaHost:   "http://localhost:11434",
			OpenAIKeyEnv: "OPENAI_API_KEY",
			Timeout:      "60s",
		},
		VectorStore: VectorStoreConfig{
			Primary:     "hnsw",
			Secondary:   "sqlite",
			MaxFailures: 3,
			Cooldown:    "30s",
		},
		Search: SearchConfig{
			MaxResults:  10,
			Lexical:     true,
			RRFConstant: 60,
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigDir returns the user-level config directory, honoring
// XDG_CONFIG_HOME.
func GetUserConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "weft")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "weft")
	}
	return filepath.Join(home, ".config", "weft")
}

// GetUserConfigPath returns the user-level config file path.
func GetUserConfigPath() string {
	return filepath.Join(GetUserConfigDir(), "config.yaml")
}

// UserConfigExists reports whether a user-level config file is present.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the effective configuration for a project root. Missing
// config files are fine; malformed ones are not.
func Load(projectRoot string) (*Config, error) {
	cfg := NewConfig()

	// User config first, so the project file can override it.
	if UserConfigExists() {
		user, err := loadFromFile(GetUserConfigPath())
		if err != nil {
			return nil, fmt.Errorf("user config: %w", err)
		}
		cfg.mergeWith(user)
	}

	projPath, ok := findProjectConfig(projectRoot)
	if ok {
		proj, err := loadFromFile(projPath)
		if err != nil {
			return nil, fmt.Errorf("project config: %w", err)
		}
		cfg.mergeWith(proj)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findProjectConfig returns the project config path, accepting both the
// .yaml and .yml spellings.
func findProjectConfig(projectRoot string) (string, bool) {
	for _, name := range []string{ProjectConfigName, ".weft.yml"} {
		p := filepath.Join(projectRoot, name)
		if fileExists(p) {
			return p, true
		}
	}
	return "", false
}

// loadFromFile reads and parses a single YAML config file.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cfg.Version > ConfigVersion {
		return nil, fmt.Errorf("%s has config version %d, this build understands up to %d", path, cfg.Version, ConfigVersion)
	}
	return &cfg, nil
}

// mergeWith overlays non-zero fields from other onto c. Zero values in
// other are treated as "not set" so sparse config files work.
func (c *Config) mergeWith(other *Config) {
	if other == nil {
		return
	}

	if other.Version != 0 {
		c.Version = other.Version
	}

	// Paths. Excludes extend the defaults instead of replacing them;
	// shrinking the built-in list is never what a user wants.
	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	// Indexing
	if other.Indexing.Workers != 0 {
		c.Indexing.Workers = other.Indexing.Workers
	}
	if other.Indexing.BatchSize != 0 {
		c.Indexing.BatchSize = other.Indexing.BatchSize
	}
	if other.Indexing.MaxFileSizeKB != 0 {
		c.Indexing.MaxFileSizeKB = other.Indexing.MaxFileSizeKB
	}
	if other.Indexing.MaxRetries != 0 {
		c.Indexing.MaxRetries = other.Indexing.MaxRetries
	}
	if other.Indexing.ChunkLines != 0 {
		c.Indexing.ChunkLines = other.Indexing.ChunkLines
	}
	if other.Indexing.ChunkOverlap != 0 {
		c.Indexing.ChunkOverlap = other.Indexing.ChunkOverlap
	}

	// Embeddings
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.OpenAIBaseURL != "" {
		c.Embeddings.OpenAIBaseURL = other.Embeddings.OpenAIBaseURL
	}
	if other.Embeddings.OpenAIKeyEnv != "" {
		c.Embeddings.OpenAIKeyEnv = other.Embeddings.OpenAIKeyEnv
	}
	if other.Embeddings.Timeout != "" {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}

	// Vector store
	if other.VectorStore.Primary != "" {
		c.VectorStore.Primary = other.VectorStore.Primary
	}
	if other.VectorStore.Secondary != "" {
		c.VectorStore.Secondary = other.VectorStore.Secondary
	}
	if other.VectorStore.MaxFailures != 0 {
		c.VectorStore.MaxFailures = other.VectorStore.MaxFailures
	}
	if other.VectorStore.Cooldown != "" {
		c.VectorStore.Cooldown = other.VectorStore.Cooldown
	}

	// Search
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	// Lexical is boolean - merge only when some other search setting was
	// provided, since yaml.Unmarshal leaves an absent bool as false.
	if other.Search.MaxResults != 0 || other.Search.RRFConstant != 0 {
		c.Search.Lexical = other.Search.Lexical
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}

	// Watch
	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies WEFT_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("WEFT_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	// WEFT_EMBEDDER is an alias for WEFT_EMBEDDINGS_PROVIDER
	if v := os.Getenv("WEFT_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("WEFT_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("WEFT_EMBEDDINGS_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.Dimensions = n
		}
	}
	if v := os.Getenv("WEFT_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("WEFT_OPENAI_BASE_URL"); v != "" {
		c.Embeddings.OpenAIBaseURL = v
	}
	if v := os.Getenv("WEFT_VECTOR_PRIMARY"); v != "" {
		c.VectorStore.Primary = v
	}
	if v := os.Getenv("WEFT_VECTOR_SECONDARY"); v != "" {
		c.VectorStore.Secondary = v
	}
	if v := os.Getenv("WEFT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.Workers = n
		}
	}
	if v := os.Getenv("WEFT_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.BatchSize = n
		}
	}
	if v := os.Getenv("WEFT_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.MaxResults = n
		}
	}
	if v := os.Getenv("WEFT_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.RRFConstant = n
		}
	}
	if v := os.Getenv("WEFT_LEXICAL"); v != "" {
		c.Search.Lexical = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("WEFT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the merged configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Indexing.Workers < 1 {
		return fmt.Errorf("indexing.workers must be at least 1, got %d", c.Indexing.Workers)
	}
	if c.Indexing.BatchSize < 1 {
		return fmt.Errorf("indexing.batch_size must be at least 1, got %d", c.Indexing.BatchSize)
	}
	if c.Indexing.MaxRetries < 0 {
		return fmt.Errorf("indexing.max_retries must be non-negative, got %d", c.Indexing.MaxRetries)
	}
	if c.Indexing.ChunkLines < 1 {
		return fmt.Errorf("indexing.chunk_lines must be at least 1, got %d", c.Indexing.ChunkLines)
	}
	if c.Indexing.ChunkOverlap < 0 || c.Indexing.ChunkOverlap >= c.Indexing.ChunkLines {
		return fmt.Errorf("indexing.chunk_overlap must be in [0, chunk_lines), got %d", c.Indexing.ChunkOverlap)
	}

	validProviders := map[string]bool{"auto": true, "ollama": true, "openai": true, "static": true}
	if c.Embeddings.Provider != "" && !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'auto', 'ollama', 'openai', or 'static', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize < 1 {
		return fmt.Errorf("embeddings.batch_size must be at least 1, got %d", c.Embeddings.BatchSize)
	}
	if _, err := time.ParseDuration(c.Embeddings.Timeout); err != nil {
		return fmt.Errorf("embeddings.timeout is not a valid duration: %s", c.Embeddings.Timeout)
	}

	validBackends := map[string]bool{"hnsw": true, "sqlite": true}
	primary := strings.ToLower(c.VectorStore.Primary)
	if !validBackends[primary] {
		return fmt.Errorf("vector_store.primary must be 'hnsw' or 'sqlite', got %s", c.VectorStore.Primary)
	}
	secondary := strings.ToLower(c.VectorStore.Secondary)
	if secondary != "" && secondary != "none" {
		if !validBackends[secondary] {
			return fmt.Errorf("vector_store.secondary must be 'hnsw', 'sqlite', or 'none', got %s", c.VectorStore.Secondary)
		}
		if secondary == primary {
			return fmt.Errorf("vector_store.secondary must differ from primary, both are %s", primary)
		}
	}
	if c.VectorStore.MaxFailures < 1 {
		return fmt.Errorf("vector_store.max_failures must be at least 1, got %d", c.VectorStore.MaxFailures)
	}
	if _, err := time.ParseDuration(c.VectorStore.Cooldown); err != nil {
		return fmt.Errorf("vector_store.cooldown is not a valid duration: %s", c.VectorStore.Cooldown)
	}

	if c.Search.MaxResults < 1 {
		return fmt.Errorf("search.max_results must be at least 1, got %d", c.Search.MaxResults)
	}
	if c.Search.RRFConstant < 1 {
		return fmt.Errorf("search.rrf_constant must be at least 1, got %d", c.Search.RRFConstant)
	}

	if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
		return fmt.Errorf("watch.debounce is not a valid duration: %s", c.Watch.Debounce)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// CooldownDuration returns the parsed breaker cooldown. Call after
// Validate; an unparseable value falls back to 30s.
func (c *Config) CooldownDuration() time.Duration {
	d, err := time.ParseDuration(c.VectorStore.Cooldown)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// DebounceDuration returns the parsed watch debounce window.
func (c *Config) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// EmbedTimeout returns the parsed per-request embedding timeout.
func (c *Config) EmbedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Embeddings.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// IndexFingerprint hashes the settings that determine what ends up in the
// index: embedding identity, vector width, and chunking geometry. Two
// configs with the same fingerprint produce interchangeable indexes; a
// changed fingerprint means the existing index must be rebuilt.
func (c *Config) IndexFingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "provider=%s\n", strings.ToLower(c.Embeddings.Provider))
	fmt.Fprintf(h, "model=%s\n", c.Embeddings.Model)
	fmt.Fprintf(h, "dimensions=%d\n", c.Embeddings.Dimensions)
	fmt.Fprintf(h, "chunk_lines=%d\n", c.Indexing.ChunkLines)
	fmt.Fprintf(h, "chunk_overlap=%d\n", c.Indexing.ChunkOverlap)
	return hex.EncodeToString(h.Sum(nil))
}

// FindProjectRoot walks up from startDir looking for a directory that
// contains .weft.yaml or .git, and returns startDir when neither is found.
func FindProjectRoot(startDir string) string {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return startDir
	}
	for {
		if fileExists(filepath.Join(dir, ProjectConfigName)) ||
			fileExists(filepath.Join(dir, ".weft.yml")) ||
			dirExists(filepath.Join(dir, ".git")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			abs, _ := filepath.Abs(startDir)
			return abs
		}
		dir = parent
	}
}

// DataDir returns the per-project data directory for a project root.
func DataDir(projectRoot string) string {
	return filepath.Join(projectRoot, DataDirName)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
