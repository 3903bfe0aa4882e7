package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	weftErrors "github.com/weftlabs/weft/internal/errors"
	"github.com/weftlabs/weft/internal/index"
	"github.com/weftlabs/weft/internal/output"
	"github.com/weftlabs/weft/internal/ui"
)

// newIndexCmd creates the index command.
func newIndexCmd() *cobra.Command {
	var (
		force    bool
		noTUI    bool
		embedder string
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Build or update the search index",
		Long: `Build or update the search index for a project.

Scans the tree, chunks changed files, embeds them, and writes the
vectors and lexical index under .weft/. Unchanged files are skipped
via the content-hash manifest, so reruns only pay for what changed.

An interrupted run leaves a checkpoint; the next run picks up the
remaining work. Use --force to discard the index and rebuild from
scratch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Ctrl+C cancels the context; the orchestrator finishes the
			// in-flight batch and checkpoints before returning.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			if embedder != "" {
				os.Setenv("WEFT_EMBEDDER", embedder)
			}

			return runIndex(ctx, cmd, path, force, noTUI)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Discard the existing index and rebuild from scratch")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Plain text progress instead of the interactive UI")
	cmd.Flags().StringVar(&embedder, "embedder", "", "Embedding provider: auto (default), ollama, openai, or static")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, force, noTUI bool) error {
	out := output.New(cmd.OutOrStdout())

	env, err := resolveProject(path)
	if err != nil {
		return err
	}
	defer env.Close()

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(noTUI),
		ui.WithProjectDir(env.root)))

	ie, err := env.buildIndexEnv(ctx, renderer, out.Warning)
	if err != nil {
		return err
	}
	defer ie.Close()

	res, err := ie.orch.Run(ctx, index.Options{Force: force})
	switch {
	case err == nil:
		// The renderer already printed the completion summary.
		return nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Partial progress is checkpointed; the next run resumes.
		if res != nil {
			out.Warningf("interrupted after %d indexed files; rerun 'weft index' to finish", res.Added+res.Updated)
		} else {
			out.Warning("interrupted; rerun 'weft index' to finish")
		}
		return nil
	case weftErrors.GetCode(err) == weftErrors.ErrCodeRunInProgress:
		out.Error("another indexing run holds the lock for this project")
		out.Detail("wait for it to finish, or remove .weft/index.lock if no weft process is running")
		return err
	default:
		return err
	}
}
