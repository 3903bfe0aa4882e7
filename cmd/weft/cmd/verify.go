package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/index"
	"github.com/weftlabs/weft/internal/output"
)

// issueSampleLimit caps how many individual issues verify prints.
const issueSampleLimit = 5

// newVerifyCmd creates the verify command.
func newVerifyCmd() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "verify [path]",
		Short: "Check index consistency",
		Long: `Cross-check the manifest against the vector store.

Reports chunks the store holds that no file references (orphans),
chunks the manifest references that the store lacks (missing), and
chunk IDs referenced by more than one file. With --repair, orphans are
deleted and files with missing chunks are cleared from the manifest so
the next run reindexes them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return runVerify(ctx, cmd, path, repair)
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Repair the issues found")

	return cmd
}

func runVerify(ctx context.Context, cmd *cobra.Command, path string, repair bool) error {
	out := output.New(cmd.OutOrStdout())

	env, err := resolveProject(path)
	if err != nil {
		return err
	}
	defer env.Close()

	if _, err := os.Stat(env.dataDir); err != nil {
		out.Line("nothing to verify; no index exists for this project")
		return nil
	}

	handle, err := env.openVectorStore()
	if err != nil {
		return err
	}
	defer func() { _ = handle.Close() }()

	lex, err := env.openLexical()
	if err != nil {
		return err
	}
	if lex != nil {
		defer func() { _ = lex.Close() }()
	}

	var lexSide index.Lexical
	if lex != nil {
		lexSide = lex
	}

	checker := index.NewChecker(env.manifests(), handle, lexSide, env.logger)

	result, err := checker.Check(ctx, env.root)
	if err != nil {
		return err
	}

	out.Linef("checked %d chunks in %s", result.ChunksChecked, result.Duration.Round(time.Millisecond))

	if result.Consistent() {
		out.Success("index is consistent")
		return nil
	}

	printIssues(out, result)

	if !repair {
		out.Newline()
		out.Line("run 'weft verify --repair' to fix")
		return fmt.Errorf("index is inconsistent")
	}

	// Repair rewrites the manifest and store; take the run lock so a
	// concurrent indexing run cannot interleave.
	lock, err := index.AcquireLock(env.dataDir, env.logger)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	repaired, err := checker.Repair(ctx, env.root, result)
	if err != nil {
		return err
	}

	out.Successf("repaired: %d orphan vectors deleted, %d files cleared", repaired.OrphansDeleted, repaired.FilesCleared)
	if repaired.FilesCleared > 0 {
		out.Detail("run 'weft index' to reindex the cleared files")
	}
	return nil
}

func printIssues(out *output.Writer, result *index.CheckResult) {
	out.Warningf("%d issues found", len(result.Issues))

	if n := result.Count(index.IssueOrphanVector); n > 0 {
		out.Detailf("%d orphan vectors (stored but unreferenced)", n)
	}
	if n := result.Count(index.IssueMissingVector); n > 0 {
		out.Detailf("%d missing vectors (referenced but not stored)", n)
	}
	if n := result.Count(index.IssueDuplicateChunkID); n > 0 {
		out.Detailf("%d chunk IDs referenced by more than one file", n)
	}

	out.Newline()
	for i, issue := range result.Issues {
		if i == issueSampleLimit {
			out.Detailf("... and %d more", len(result.Issues)-issueSampleLimit)
			break
		}
		if issue.Path != "" {
			out.Detailf("%s: %s (%s)", issue.Type, issue.ChunkID, issue.Path)
		} else {
			out.Detailf("%s: %s", issue.Type, issue.ChunkID)
		}
	}
}
