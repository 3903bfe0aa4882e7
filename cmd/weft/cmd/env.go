package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/weftlabs/weft/internal/checkpoint"
	"github.com/weftlabs/weft/internal/chunk"
	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/embed"
	"github.com/weftlabs/weft/internal/history"
	"github.com/weftlabs/weft/internal/index"
	"github.com/weftlabs/weft/internal/lexical"
	"github.com/weftlabs/weft/internal/logging"
	"github.com/weftlabs/weft/internal/manifest"
	"github.com/weftlabs/weft/internal/scanner"
	"github.com/weftlabs/weft/internal/search"
	"github.com/weftlabs/weft/internal/ui"
	"github.com/weftlabs/weft/internal/vectorstore"
)

// Vector index files under the project data directory. The manifest,
// checkpoint, and history stores name their own files.
const (
	hnswFileName   = "vectors.hnsw"
	sqliteFileName = "vectors.db"
)

// projectEnv is the resolved project a command operates on: its root,
// data directory, effective configuration, and a file-backed logger.
// Commands never log to stdout; serve additionally must not touch it
// because stdout carries JSON-RPC.
type projectEnv struct {
	root     string
	dataDir  string
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func()
}

// resolveProject locates the project root containing path (or the
// working directory), loads the effective configuration, and opens the
// per-project log file. Close releases the log writer.
func resolveProject(path string) (*projectEnv, error) {
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path %s: %w", path, err)
	}

	root := config.FindProjectRoot(abs)
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	env := &projectEnv{
		root:     root,
		dataDir:  config.DataDir(root),
		cfg:      cfg,
		closeLog: func() {},
	}

	// --debug already installed a verbose default logger; reuse it
	// instead of opening a second sink.
	if debugMode {
		env.logger = slog.Default()
		return env, nil
	}

	// Read-only commands in a never-indexed project should not create
	// .weft/ as a logging side effect; they log under the home dir.
	logPath := logging.ProjectLogPath(env.dataDir)
	if _, statErr := os.Stat(env.dataDir); statErr != nil {
		logPath = logging.DefaultLogPath()
	}

	logger, cleanup, err := logging.Setup(logging.Config{
		Level:     cfg.Logging.Level,
		FilePath:  logPath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	if err != nil {
		return nil, fmt.Errorf("open project log: %w", err)
	}
	env.logger = logger
	env.closeLog = cleanup
	return env, nil
}

// Close releases the project log writer.
func (e *projectEnv) Close() {
	e.closeLog()
}

func (e *projectEnv) newScanner() (*scanner.Scanner, error) {
	return scanner.New(scanner.Options{
		Root:        e.root,
		Include:     e.cfg.Paths.Include,
		Exclude:     e.cfg.Paths.Exclude,
		MaxFileSize: int64(e.cfg.Indexing.MaxFileSizeKB) * 1024,
		Logger:      e.logger,
	})
}

func (e *projectEnv) newChunker() chunk.Chunker {
	return chunk.New(chunk.Options{
		MaxLines:     e.cfg.Indexing.ChunkLines,
		OverlapLines: e.cfg.Indexing.ChunkOverlap,
	})
}

// newEmbedder builds the configured embedding provider. The OpenAI key
// is read from the environment variable the config names, never from
// the config file itself.
func (e *projectEnv) newEmbedder(ctx context.Context) (embed.Embedder, error) {
	cfg := embed.Config{
		Provider:      embed.ParseProvider(e.cfg.Embeddings.Provider),
		Model:         e.cfg.Embeddings.Model,
		Dimensions:    e.cfg.Embeddings.Dimensions,
		BatchSize:     e.cfg.Embeddings.BatchSize,
		Timeout:       e.cfg.EmbedTimeout(),
		OllamaHost:    e.cfg.Embeddings.OllamaHost,
		OpenAIBaseURL: e.cfg.Embeddings.OpenAIBaseURL,
	}
	if e.cfg.Embeddings.OpenAIKeyEnv != "" {
		cfg.OpenAIKey = os.Getenv(e.cfg.Embeddings.OpenAIKeyEnv)
	}
	return embed.New(ctx, cfg, e.logger)
}

// openVectorStore builds the configured backends, wraps them in a
// failover handle, and loads persisted state. The caller closes the
// handle.
func (e *projectEnv) openVectorStore() (*vectorstore.Handle, error) {
	backends := make([]vectorstore.Backend, 0, 2)

	primary, err := e.buildBackend(e.cfg.VectorStore.Primary)
	if err != nil {
		return nil, err
	}
	backends = append(backends, primary)

	if sec := strings.ToLower(e.cfg.VectorStore.Secondary); sec != "" && sec != "none" {
		secondary, err := e.buildBackend(sec)
		if err != nil {
			closeBackends(backends)
			return nil, err
		}
		backends = append(backends, secondary)
	}

	handle, err := vectorstore.NewHandle(backends, e.cfg.VectorStore.MaxFailures, e.cfg.CooldownDuration(), e.logger)
	if err != nil {
		closeBackends(backends)
		return nil, err
	}
	if err := handle.Load(); err != nil {
		_ = handle.Close()
		return nil, err
	}
	return handle, nil
}

func (e *projectEnv) buildBackend(name string) (vectorstore.Backend, error) {
	switch strings.ToLower(name) {
	case "hnsw":
		path := filepath.Join(e.dataDir, hnswFileName)
		return vectorstore.NewHNSWBackend(path, e.cfg.Embeddings.Dimensions, e.logger), nil
	case "sqlite":
		path := filepath.Join(e.dataDir, sqliteFileName)
		return vectorstore.NewSQLiteBackend(path, e.logger)
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", name)
	}
}

func closeBackends(backends []vectorstore.Backend) {
	for _, b := range backends {
		_ = b.Close()
	}
}

// openLexical opens the lexical sidecar, or returns nil when lexical
// search is disabled.
func (e *projectEnv) openLexical() (*lexical.Index, error) {
	if !e.cfg.Search.Lexical {
		return nil, nil
	}
	return lexical.Open(filepath.Join(e.dataDir, lexical.DirName), e.logger)
}

// openHistory opens the run-history store. History is advisory; callers
// treat a nil store as "run without history".
func (e *projectEnv) openHistory() (*history.Store, error) {
	return history.Open(filepath.Join(e.dataDir, history.FileName), e.logger)
}

func (e *projectEnv) manifests() *manifest.Store {
	return manifest.NewStore(e.dataDir, e.logger)
}

func (e *projectEnv) checkpoints() *checkpoint.Store {
	return checkpoint.NewStore(e.dataDir, e.logger)
}

// indexEnv bundles one indexing run's open dependencies so commands can
// close them in one place.
type indexEnv struct {
	orch   *index.Orchestrator
	sc     *scanner.Scanner
	handle *vectorstore.Handle
	lex    *lexical.Index
	hist   *history.Store
}

// buildIndexEnv opens every dependency an indexing run needs and wires
// the orchestrator. A history store that fails to open degrades to a
// warning; everything else is fatal.
func (e *projectEnv) buildIndexEnv(ctx context.Context, renderer ui.Renderer, warn func(string)) (*indexEnv, error) {
	sc, err := e.newScanner()
	if err != nil {
		return nil, err
	}

	embedder, err := e.newEmbedder(ctx)
	if err != nil {
		return nil, err
	}

	handle, err := e.openVectorStore()
	if err != nil {
		return nil, err
	}

	lex, err := e.openLexical()
	if err != nil {
		_ = handle.Close()
		return nil, err
	}

	hist, err := e.openHistory()
	if err != nil {
		if warn != nil {
			warn(fmt.Sprintf("run history unavailable: %v", err))
		}
		e.logger.Warn("history_unavailable", slog.String("error", err.Error()))
		hist = nil
	}

	deps := index.Deps{
		Config:      e.cfg,
		Scanner:     sc,
		Chunker:     e.newChunker(),
		Embedder:    embedder,
		Store:       handle,
		Manifests:   e.manifests(),
		Checkpoints: e.checkpoints(),
		Renderer:    renderer,
		Logger:      e.logger,
	}
	// Assign through locals so a nil *lexical.Index never becomes a
	// non-nil interface.
	if lex != nil {
		deps.Lexical = lex
	}
	if hist != nil {
		deps.History = hist
	}

	orch, err := index.New(e.root, deps)
	if err != nil {
		closeIndexEnv(handle, lex, hist)
		return nil, err
	}

	return &indexEnv{orch: orch, sc: sc, handle: handle, lex: lex, hist: hist}, nil
}

// Close flushes and closes the run's stores.
func (ie *indexEnv) Close() {
	closeIndexEnv(ie.handle, ie.lex, ie.hist)
}

func closeIndexEnv(handle *vectorstore.Handle, lex *lexical.Index, hist *history.Store) {
	if handle != nil {
		_ = handle.Close()
	}
	if lex != nil {
		_ = lex.Close()
	}
	if hist != nil {
		_ = hist.Close()
	}
}

// searchEnv bundles an open search pipeline: embedder, vector handle,
// optional lexical index, and the engine over them.
type searchEnv struct {
	engine   *search.Engine
	embedder embed.Embedder
	handle   *vectorstore.Handle
	lex      *lexical.Index
	hist     *history.Store
}

// buildSearchEnv opens the read side of the index and wires the search
// engine.
func (e *projectEnv) buildSearchEnv(ctx context.Context) (*searchEnv, error) {
	embedder, err := e.newEmbedder(ctx)
	if err != nil {
		return nil, err
	}

	handle, err := e.openVectorStore()
	if err != nil {
		return nil, err
	}

	lex, err := e.openLexical()
	if err != nil {
		_ = handle.Close()
		return nil, err
	}

	// Query summaries land in the same store as run history. Losing
	// them is not worth failing a search over.
	hist, err := e.openHistory()
	if err != nil {
		e.logger.Warn("history_unavailable", slog.String("error", err.Error()))
		hist = nil
	}

	var lexSide search.Lexical
	if lex != nil {
		lexSide = lex
	}
	var opts []search.Option
	if hist != nil {
		opts = append(opts, search.WithRecorder(hist))
	}

	engine, err := search.NewEngine(embedder, handle, lexSide, e.cfg, e.logger, opts...)
	if err != nil {
		closeIndexEnv(handle, lex, hist)
		return nil, err
	}

	return &searchEnv{engine: engine, embedder: embedder, handle: handle, lex: lex, hist: hist}, nil
}

// Close closes the search pipeline's stores.
func (se *searchEnv) Close() {
	if se.handle != nil {
		_ = se.handle.Close()
	}
	if se.lex != nil {
		_ = se.lex.Close()
	}
	if se.hist != nil {
		_ = se.hist.Close()
	}
}
