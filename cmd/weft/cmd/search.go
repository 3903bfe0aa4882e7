package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/checkpoint"
	"github.com/weftlabs/weft/internal/output"
	"github.com/weftlabs/weft/internal/search"
)

// newSearchCmd creates the search command.
func newSearchCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
		vectorOnly bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Search the project's index with a natural language query.

Results combine semantic similarity with lexical matching when the
lexical index is enabled. Multiple words are treated as one query; no
shell quoting is needed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			query := strings.Join(args, " ")
			out := output.New(cmd.OutOrStdout())

			env, err := resolveProject("")
			if err != nil {
				return err
			}
			defer env.Close()

			if err := ensureIndexed(env, out); err != nil {
				return err
			}

			se, err := env.buildSearchEnv(ctx)
			if err != nil {
				return err
			}
			defer se.Close()

			start := time.Now()
			results, err := se.engine.Search(ctx, query, search.Options{
				Limit:      limit,
				VectorOnly: vectorOnly,
			})
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			printResults(out, query, results, elapsed)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum results (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVar(&vectorOnly, "vector-only", false, "Skip lexical matching, rank by vector similarity only")

	return cmd
}

// ensureIndexed refuses a query when no manifest exists, with guidance
// that depends on why it is absent.
func ensureIndexed(env *projectEnv, out *output.Writer) error {
	if env.manifests().Exists() {
		return nil
	}

	cp, err := env.checkpoints().Load()
	if err != nil {
		env.logger.Warn("checkpoint_unreadable", slog.String("error", err.Error()))
	}

	switch {
	case cp != nil && cp.InFlight() && !cp.Stale(checkpoint.DefaultStaleAfter):
		out.Error("indexing is in progress for this project")
		out.Detailf("%d/%d files done; try again shortly", cp.FilesDone, cp.FilesTotal)
	case cp.ManifestPresent():
		out.Error("the index metadata is missing")
		out.Detail("run 'weft index --force' to rebuild it")
	default:
		out.Error("no index found for this project")
		out.Detail("run 'weft index' to build one")
	}
	return fmt.Errorf("no usable index")
}

func printResults(out *output.Writer, query string, results []search.Result, elapsed time.Duration) {
	if len(results) == 0 {
		out.Linef("no results for %q", query)
		return
	}

	for i, r := range results {
		out.Linef("%d. %s:%d-%d  (%.3f)", i+1, r.Path, r.StartLine, r.EndLine, r.Score)
		if snippet := firstLine(r.Content); snippet != "" {
			out.Detail(snippet)
		}
	}
	out.Newline()
	out.Linef("%d results in %s", len(results), elapsed.Round(time.Millisecond))
}

// firstLine returns the first non-blank line of content, truncated for
// terminal display.
func firstLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		const maxLen = 100
		if runes := []rune(line); len(runes) > maxLen {
			return string(runes[:maxLen]) + "..."
		}
		return line
	}
	return ""
}
