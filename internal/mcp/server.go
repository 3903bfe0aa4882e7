package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/weftlabs/weft/internal/checkpoint"
	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/embed"
	"github.com/weftlabs/weft/internal/manifest"
	"github.com/weftlabs/weft/internal/search"
	"github.com/weftlabs/weft/internal/vectorstore"
	"github.com/weftlabs/weft/pkg/version"
)

// maxSearchLimit caps how many results a single tool call may request.
const maxSearchLimit = 50

// Searcher runs ranked queries against the index.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

// StoreStatus reports vector backend health for diagnostics.
type StoreStatus interface {
	HealthCheck(ctx context.Context) []vectorstore.BackendHealth
}

var (
	_ Searcher    = (*search.Engine)(nil)
	_ StoreStatus = (*vectorstore.Handle)(nil)
)

// Deps carries everything the server needs. Engine, Store, Manifests,
// and Checkpoints are required; the rest have working defaults.
type Deps struct {
	Engine      Searcher
	Store       StoreStatus
	Manifests   *manifest.Store
	Checkpoints *checkpoint.Store
	Embedder    embed.Embedder // may be nil, reported as unavailable
	Config      *config.Config
	ProjectRoot string
	Logger      *slog.Logger
}

// Server is the MCP server for weft.
// It bridges AI clients (Claude Code, Cursor) with the hybrid search index
// over stdio.
type Server struct {
	mcp    *mcp.Server
	deps   Deps
	config *config.Config
	logger *slog.Logger
}

// NewServer creates a new MCP server and registers its tools.
// The embedder is used for capability signaling: AI clients can query the
// actual embedder state to adjust their search strategies.
func NewServer(deps Deps) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("search engine is required")
	}
	if deps.Store == nil {
		return nil, errors.New("vector store is required")
	}
	if deps.Manifests == nil {
		return nil, errors.New("manifest store is required")
	}
	if deps.Checkpoints == nil {
		return nil, errors.New("checkpoint store is required")
	}

	cfg := deps.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		deps:   deps,
		config: cfg,
		logger: logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "weft",
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools
	)

	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Search the indexed codebase by meaning and keywords. Instantly finds relevant code using a full-project index - faster and smarter than grep for anything beyond exact strings. Returns ranked snippets with file locations.",
	}, s.mcpSearch)
	s.logger.Debug("mcp_tool_registered", slog.String("name", "search"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Check whether the codebase index exists, what it holds, and which embedder and vector backends are active. Use before searching to verify the index is ready.",
	}, s.mcpIndexStatus)
	s.logger.Debug("mcp_tool_registered", slog.String("name", "index_status"))

	s.logger.Info("mcp_tools_registered", slog.Int("count", 2))
}

// handleSearch validates the request, refuses when no usable index exists,
// and runs the query. Split from the SDK adapter so tests can call it
// without a protocol round trip.
func (s *Server) handleSearch(ctx context.Context, input SearchInput) (SearchOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	query := strings.TrimSpace(input.Query)
	if query == "" {
		return SearchOutput{}, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	if err := s.checkIndexReady(ctx); err != nil {
		return SearchOutput{}, err
	}

	limit := clampLimit(input.Limit, s.config.Search.MaxResults, 1, maxSearchLimit)

	s.logger.Info("mcp_search_started",
		slog.String("request_id", requestID),
		slog.String("query", query),
		slog.Int("limit", limit),
		slog.Bool("vector_only", input.VectorOnly))

	results, err := s.deps.Engine.Search(ctx, query, search.Options{
		Limit:      limit,
		VectorOnly: input.VectorOnly,
	})
	if err != nil {
		s.logger.Warn("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchHit, 0, len(results)),
		Total:   len(results),
	}
	for _, r := range results {
		output.Results = append(output.Results, SearchHit{
			Path:         r.Path,
			StartLine:    r.StartLine,
			EndLine:      r.EndLine,
			Language:     r.Language,
			Content:      r.Content,
			Score:        r.Score,
			MatchedTerms: r.Matched,
		})
	}

	s.logger.Info("mcp_search_completed",
		slog.String("request_id", requestID),
		slog.Int("results", output.Total),
		slog.Duration("duration", time.Since(start)))

	return output, nil
}

// checkIndexReady refuses search until a manifest exists on disk. The
// checkpoint tells apart three flavors of "missing": a first index still
// in flight, a past index whose metadata has since been deleted, and a
// project never indexed at all.
func (s *Server) checkIndexReady(_ context.Context) error {
	if s.deps.Manifests.Exists() {
		return nil
	}

	cp, err := s.deps.Checkpoints.Load()
	if err != nil {
		s.logger.Warn("checkpoint_unreadable", slog.String("error", err.Error()))
	}

	switch {
	case cp != nil && cp.InFlight() && !cp.Stale(checkpoint.DefaultStaleAfter):
		return &MCPError{
			Code: ErrCodeIndexNotFound,
			Message: fmt.Sprintf("Indexing is in progress (%d/%d files). Try again shortly.",
				cp.FilesDone, cp.FilesTotal),
		}
	case cp.ManifestPresent():
		return &MCPError{
			Code:    ErrCodeIndexNotFound,
			Message: "The index metadata is missing. Run 'weft index --force' to rebuild it.",
		}
	default:
		return ErrIndexNotFound
	}
}

// handleIndexStatus assembles the index diagnostics snapshot.
func (s *Server) handleIndexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	s.logger.Info("mcp_index_status_started",
		slog.String("request_id", requestID))

	output := &IndexStatusOutput{
		Project: ProjectInfo{
			Name: filepath.Base(s.deps.ProjectRoot),
			Root: s.deps.ProjectRoot,
		},
		Index:    s.indexInfo(),
		Embedder: s.embedderInfo(ctx),
	}

	for _, h := range s.deps.Store.HealthCheck(ctx) {
		output.Backends = append(output.Backends, BackendInfo{
			Name:    h.Backend,
			Status:  string(h.Status),
			Vectors: h.Vectors,
			Message: h.Message,
		})
	}

	// The checkpoint is advisory. A corrupt one degrades the report, never
	// the tool.
	cp, err := s.deps.Checkpoints.Load()
	if err != nil {
		s.logger.Warn("checkpoint_unreadable", slog.String("error", err.Error()))
	}
	if cp != nil {
		output.LastRun = &RunInfo{
			Status:      string(cp.Status),
			Stage:       cp.Stage,
			Files:       cp.FilesDone,
			Chunks:      cp.ChunksWritten,
			FailedFiles: len(cp.FailedFiles),
			Duration:    cp.Duration().Round(time.Millisecond).String(),
			Error:       cp.LastError,
		}
	}

	s.logger.Info("mcp_index_status_completed",
		slog.String("request_id", requestID),
		slog.Bool("index_exists", output.Index.Exists),
		slog.Duration("duration", time.Since(start)))

	return output, nil
}

func (s *Server) indexInfo() IndexInfo {
	m, _, err := s.deps.Manifests.Load(s.deps.ProjectRoot)
	if err != nil {
		s.logger.Warn("manifest_unreadable", slog.String("error", err.Error()))
		return IndexInfo{Exists: s.deps.Manifests.Exists()}
	}
	if m == nil {
		return IndexInfo{}
	}
	return IndexInfo{
		Exists: true,
		Files:  m.FileCount(),
		Chunks: m.ChunkCount(),
	}
}

func (s *Server) embedderInfo(ctx context.Context) EmbedderInfo {
	if s.deps.Embedder == nil {
		return EmbedderInfo{Model: "none"}
	}
	return EmbedderInfo{
		Model:      s.deps.Embedder.ModelName(),
		Dimensions: s.deps.Embedder.Dimensions(),
		Available:  s.deps.Embedder.Available(ctx),
	}
}

// mcpSearch is the MCP SDK handler for the search tool.
func (s *Server) mcpSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	output, err := s.handleSearch(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	return nil, output, nil
}

// mcpIndexStatus is the MCP SDK handler for the index_status tool.
func (s *Server) mcpIndexStatus(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	output, err := s.handleIndexStatus(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, output, nil
}

// Serve runs the server over stdio until the context is canceled. Stdout
// carries JSON-RPC frames, so the logger must never write there.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_started",
		slog.String("project_root", s.deps.ProjectRoot),
		slog.String("version", version.Version))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_error", slog.String("error", err.Error()))
		return err
	}

	s.logger.Info("mcp_server_stopped")
	return nil
}

// clampLimit normalizes a client-supplied result limit.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
