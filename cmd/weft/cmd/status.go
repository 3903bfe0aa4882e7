package cmd

import (
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/checkpoint"
	"github.com/weftlabs/weft/internal/history"
	"github.com/weftlabs/weft/internal/lexical"
	"github.com/weftlabs/weft/internal/output"
	"github.com/weftlabs/weft/internal/profiling"
)

// recentRunLimit caps the run-history section of the status report.
const recentRunLimit = 5

type statusProject struct {
	Name string `json:"name"`
	Root string `json:"root"`
}

type statusIndex struct {
	Exists        bool   `json:"exists"`
	Files         int    `json:"files"`
	Chunks        int    `json:"chunks"`
	UpdatedAt     string `json:"updated_at,omitempty"`
	SettingsDrift bool   `json:"settings_drift,omitempty"`
	InProgress    bool   `json:"in_progress,omitempty"`
}

type statusEmbedder struct {
	Provider   string `json:"provider"`
	Model      string `json:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type statusBackend struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Vectors int    `json:"vectors"`
	Message string `json:"message,omitempty"`
}

type statusStorage struct {
	TotalBytes int64            `json:"total_bytes"`
	Files      map[string]int64 `json:"files"`
}

type statusRun struct {
	StartedAt string `json:"started_at"`
	Status    string `json:"status"`
	Added     int    `json:"added"`
	Updated   int    `json:"updated"`
	Removed   int    `json:"removed"`
	Unchanged int    `json:"unchanged"`
	Failed    int    `json:"failed"`
	Chunks    int    `json:"chunks"`
	Duration  string `json:"duration"`
	Error     string `json:"error,omitempty"`
}

type statusInfo struct {
	Project  statusProject        `json:"project"`
	Index    statusIndex          `json:"index"`
	Embedder statusEmbedder       `json:"embedder"`
	Backends []statusBackend      `json:"backends"`
	Storage  statusStorage        `json:"storage"`
	Runs     []statusRun          `json:"recent_runs,omitempty"`
	Searches *history.SearchStats `json:"searches,omitempty"`
}

// newStatusCmd creates the status command.
func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show index status",
		Long: `Show the state of the project's index: manifest statistics,
vector store backend health, on-disk sizes, and recent indexing runs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := ""
			if len(args) > 0 {
				path = args[0]
			}

			env, err := resolveProject(path)
			if err != nil {
				return err
			}
			defer env.Close()

			info := collectStatus(ctx, env)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			printStatus(output.New(cmd.OutOrStdout()), info)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")

	return cmd
}

// collectStatus gathers the report. Every section degrades
// independently; an unreadable store leaves its section empty rather
// than failing the command.
func collectStatus(ctx context.Context, env *projectEnv) statusInfo {
	info := statusInfo{
		Project: statusProject{
			Name: filepath.Base(env.root),
			Root: env.root,
		},
		Embedder: statusEmbedder{
			Provider:   env.cfg.Embeddings.Provider,
			Model:      env.cfg.Embeddings.Model,
			Dimensions: env.cfg.Embeddings.Dimensions,
		},
	}

	ms := env.manifests()
	if m, _, err := ms.Load(env.root); err != nil {
		env.logger.Warn("manifest_unreadable", slog.String("error", err.Error()))
		info.Index.Exists = ms.Exists()
	} else if m != nil {
		info.Index = statusIndex{
			Exists:        true,
			Files:         m.FileCount(),
			Chunks:        m.ChunkCount(),
			UpdatedAt:     m.UpdatedAt.Format(time.RFC3339),
			SettingsDrift: m.SettingsHash != env.cfg.IndexFingerprint(),
		}
	}

	if cp, err := env.checkpoints().Load(); err != nil {
		env.logger.Warn("checkpoint_unreadable", slog.String("error", err.Error()))
	} else if cp != nil && cp.InFlight() && !cp.Stale(checkpoint.DefaultStaleAfter) {
		info.Index.InProgress = true
	}

	info.Backends = collectBackendHealth(ctx, env)
	info.Storage = collectStorage(env.dataDir)
	info.Runs = collectRecentRuns(ctx, env)
	info.Searches = collectSearchStats(ctx, env)

	return info
}

func collectBackendHealth(ctx context.Context, env *projectEnv) []statusBackend {
	// Opening backends creates files; stay hands-off until a run has
	// made the data directory.
	if _, err := os.Stat(env.dataDir); err != nil {
		return nil
	}

	handle, err := env.openVectorStore()
	if err != nil {
		env.logger.Warn("vector_store_unavailable", slog.String("error", err.Error()))
		return nil
	}
	defer func() { _ = handle.Close() }()

	health := handle.HealthCheck(ctx)
	backends := make([]statusBackend, 0, len(health))
	for _, h := range health {
		backends = append(backends, statusBackend{
			Name:    h.Backend,
			Status:  string(h.Status),
			Vectors: h.Vectors,
			Message: h.Message,
		})
	}
	return backends
}

func collectStorage(dataDir string) statusStorage {
	storage := statusStorage{Files: map[string]int64{}}

	for _, name := range []string{
		"manifest.json",
		"checkpoint.json",
		hnswFileName,
		hnswFileName + ".meta",
		sqliteFileName,
		history.FileName,
	} {
		if size := fileSize(filepath.Join(dataDir, name)); size >= 0 {
			storage.Files[name] = size
			storage.TotalBytes += size
		}
	}
	if size := dirSize(filepath.Join(dataDir, lexical.DirName)); size > 0 {
		storage.Files[lexical.DirName] = size
		storage.TotalBytes += size
	}
	return storage
}

func collectRecentRuns(ctx context.Context, env *projectEnv) []statusRun {
	histPath := filepath.Join(env.dataDir, history.FileName)
	if fileSize(histPath) < 0 {
		return nil
	}

	hist, err := env.openHistory()
	if err != nil {
		env.logger.Warn("history_unavailable", slog.String("error", err.Error()))
		return nil
	}
	defer func() { _ = hist.Close() }()

	records, err := hist.Recent(ctx, recentRunLimit)
	if err != nil {
		env.logger.Warn("history_query_failed", slog.String("error", err.Error()))
		return nil
	}

	runs := make([]statusRun, 0, len(records))
	for _, rec := range records {
		runs = append(runs, statusRun{
			StartedAt: rec.StartedAt.Format(time.RFC3339),
			Status:    rec.Status,
			Added:     rec.Added,
			Updated:   rec.Updated,
			Removed:   rec.Removed,
			Unchanged: rec.Unchanged,
			Failed:    rec.Failed,
			Chunks:    rec.Chunks,
			Duration:  rec.Duration.Round(time.Millisecond).String(),
			Error:     rec.Error,
		})
	}
	return runs
}

// collectSearchStats summarizes recorded queries. Nil until at least
// one search has been recorded.
func collectSearchStats(ctx context.Context, env *projectEnv) *history.SearchStats {
	if fileSize(filepath.Join(env.dataDir, history.FileName)) < 0 {
		return nil
	}

	hist, err := env.openHistory()
	if err != nil {
		env.logger.Warn("history_unavailable", slog.String("error", err.Error()))
		return nil
	}
	defer func() { _ = hist.Close() }()

	stats, err := hist.SearchStats(ctx)
	if err != nil {
		env.logger.Warn("history_query_failed", slog.String("error", err.Error()))
		return nil
	}
	if stats.Total == 0 {
		return nil
	}
	return stats
}

func printStatus(out *output.Writer, info statusInfo) {
	out.Linef("Project: %s", info.Project.Name)
	out.Detailf("root: %s", info.Project.Root)
	out.Newline()

	switch {
	case !info.Index.Exists && info.Index.InProgress:
		out.Line("Index: building (first run in progress)")
	case !info.Index.Exists:
		out.Line("Index: not built (run 'weft index')")
	default:
		out.Linef("Index: %d files, %d chunks", info.Index.Files, info.Index.Chunks)
		if info.Index.UpdatedAt != "" {
			out.Detailf("updated: %s", info.Index.UpdatedAt)
		}
		if info.Index.InProgress {
			out.Detail("a run is in progress")
		}
		if info.Index.SettingsDrift {
			out.Detail("settings changed since last run; the next run rebuilds the index")
		}
	}
	out.Newline()

	out.Linef("Embedder: %s", info.Embedder.Provider)
	if info.Embedder.Model != "" {
		out.Detailf("model: %s", info.Embedder.Model)
	}
	if info.Embedder.Dimensions > 0 {
		out.Detailf("dimensions: %d", info.Embedder.Dimensions)
	}
	out.Newline()

	if len(info.Backends) > 0 {
		out.Line("Backends:")
		for _, b := range info.Backends {
			if b.Message != "" {
				out.Detailf("%s: %s, %d vectors (%s)", b.Name, b.Status, b.Vectors, b.Message)
			} else {
				out.Detailf("%s: %s, %d vectors", b.Name, b.Status, b.Vectors)
			}
		}
		out.Newline()
	}

	out.Linef("Storage: %s", profiling.FormatBytes(info.Storage.TotalBytes))
	for _, name := range sortedKeys(info.Storage.Files) {
		out.Detailf("%-16s %s", name, profiling.FormatBytes(info.Storage.Files[name]))
	}

	if len(info.Runs) > 0 {
		out.Newline()
		out.Line("Recent runs:")
		for _, r := range info.Runs {
			line := r.StartedAt + "  " + r.Status
			if r.Status == "failed" && r.Error != "" {
				out.Detailf("%s (%s)", line, r.Error)
				continue
			}
			out.Detailf("%s  +%d ~%d -%d =%d  %d chunks  %s",
				line, r.Added, r.Updated, r.Removed, r.Unchanged, r.Chunks, r.Duration)
		}
	}

	if info.Searches != nil {
		s := info.Searches
		out.Newline()
		out.Linef("Searches: %d recorded", s.Total)
		out.Detailf("avg latency: %dms, zero results: %d", s.AvgLatencyMS, s.ZeroResults)
		for _, mode := range sortedKeys(s.ByMode) {
			out.Detailf("%s: %d", mode, s.ByMode[mode])
		}
	}
}

// fileSize returns the file's size, or -1 when it does not exist.
func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return -1
	}
	return fi.Size()
}

// dirSize walks dir and sums regular file sizes. Missing dirs are 0.
func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		// Sizes are best effort; unreadable entries count as zero.
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += fi.Size()
		}
		return nil
	})
	return total
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
