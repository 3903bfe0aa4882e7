package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	weftErrors "github.com/weftlabs/weft/internal/errors"
	"github.com/weftlabs/weft/internal/index"
	"github.com/weftlabs/weft/internal/output"
	"github.com/weftlabs/weft/internal/ui"
	"github.com/weftlabs/weft/internal/watcher"
)

// newWatchCmd creates the watch command.
func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch the project and index changes continuously",
		Long: `Run an indexing pass, then watch the tree and index each batch of
changes once the configured quiet window passes.

Edits to .gitignore files refresh the exclusion rules on the fly;
edits to .weft.yaml take effect on restart. Press Ctrl+C to stop.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return runWatch(ctx, cmd, path)
		},
	}

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, path string) error {
	out := output.New(cmd.OutOrStdout())

	env, err := resolveProject(path)
	if err != nil {
		return err
	}
	defer env.Close()

	// Watch loops many short runs; line-oriented progress fits better
	// than the interactive UI.
	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(true),
		ui.WithProjectDir(env.root)))

	ie, err := env.buildIndexEnv(ctx, renderer, out.Warning)
	if err != nil {
		return err
	}
	defer ie.Close()

	// Catch-up pass first, so changes made while weft was not running
	// are reconciled before we trust filesystem events.
	if _, err := ie.orch.Run(ctx, index.Options{}); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	w, err := watcher.New(watcher.Options{
		Debounce:       env.cfg.DebounceDuration(),
		IgnorePatterns: env.cfg.Paths.Exclude,
		Logger:         env.logger,
	})
	if err != nil {
		return err
	}

	startErr := make(chan error, 1)
	go func() { startErr <- w.Start(ctx, env.root) }()
	defer func() { _ = w.Stop() }()

	out.Linef("watching %s (quiet window %s); Ctrl+C to stop", env.root, env.cfg.DebounceDuration())

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-startErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case batch, ok := <-w.Batches():
			if !ok {
				return nil
			}
			handleBatch(ctx, out, env, ie, batch)
		case werr, ok := <-w.Errors():
			if ok {
				env.logger.Warn("watch_error", slog.String("error", werr.Error()))
			}
		}
	}
}

// handleBatch reconciles the index after one debounced batch of file
// events. Failures are reported and watching continues.
func handleBatch(ctx context.Context, out *output.Writer, env *projectEnv, ie *indexEnv, batch []watcher.Event) {
	for _, ev := range batch {
		switch ev.Op {
		case watcher.OpIgnoreChange:
			// Exclusion rules changed; rescan must re-evaluate every
			// directory.
			ie.sc.InvalidateCache()
		case watcher.OpConfigChange:
			out.Warning(".weft.yaml changed; restart watch to apply the new settings")
		}
	}

	_, err := ie.orch.Run(ctx, index.Options{})
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
	case weftErrors.GetCode(err) == weftErrors.ErrCodeRunInProgress:
		// Another weft process holds the lock. Skipping is safe: every
		// run reconciles from a full scan, so the next one picks up
		// whatever this batch carried.
		env.logger.Info("watch_run_skipped_lock_held")
	default:
		out.Warningf("indexing failed: %v", err)
	}
}
