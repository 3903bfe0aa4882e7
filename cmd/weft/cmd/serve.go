package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/mcp"
)

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index to AI assistants over MCP",
		Long: `Start a Model Context Protocol server on stdio, exposing 'search'
and 'index_status' tools over the project's index.

stdout carries only JSON-RPC; diagnostics go to the project log file.
Register with an assistant, for example:

  claude mcp add weft -- weft serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}

	return cmd
}

func runServe(ctx context.Context) error {
	env, err := resolveProject("")
	if err != nil {
		return err
	}
	defer env.Close()

	se, err := env.buildSearchEnv(ctx)
	if err != nil {
		return err
	}
	defer se.Close()

	srv, err := mcp.NewServer(mcp.Deps{
		Engine:      se.engine,
		Store:       se.handle,
		Manifests:   env.manifests(),
		Checkpoints: env.checkpoints(),
		Embedder:    se.embedder,
		Config:      env.cfg,
		ProjectRoot: env.root,
		Logger:      env.logger,
	})
	if err != nil {
		return err
	}

	return srv.Serve(ctx)
}
