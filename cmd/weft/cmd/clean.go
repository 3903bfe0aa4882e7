package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/internal/history"
	"github.com/weftlabs/weft/internal/index"
	"github.com/weftlabs/weft/internal/lexical"
	"github.com/weftlabs/weft/internal/output"
)

// newCleanCmd creates the clean command.
func newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean [path]",
		Short: "Delete the project's index data",
		Long: `Delete the index data under .weft/: manifest, checkpoint, vector
indexes, lexical index, and run history.

Source files and .weft.yaml are never touched; logs are kept. The next
'weft index' rebuilds from scratch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return runClean(cmd, path)
		},
	}

	return cmd
}

func runClean(cmd *cobra.Command, path string) error {
	out := output.New(cmd.OutOrStdout())

	env, err := resolveProject(path)
	if err != nil {
		return err
	}
	defer env.Close()

	if _, err := os.Stat(env.dataDir); err != nil {
		out.Line("nothing to clean; no index exists for this project")
		return nil
	}

	// Refuse to pull files out from under a live indexing run.
	lock, err := index.AcquireLock(env.dataDir, env.logger)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	if err := env.manifests().Delete(); err != nil {
		return err
	}
	if err := env.checkpoints().Clear(); err != nil {
		return err
	}

	for _, name := range []string{
		hnswFileName,
		hnswFileName + ".meta",
		sqliteFileName,
		sqliteFileName + "-wal",
		sqliteFileName + "-shm",
		history.FileName,
	} {
		if err := os.Remove(filepath.Join(env.dataDir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	if err := os.RemoveAll(filepath.Join(env.dataDir, lexical.DirName)); err != nil {
		return err
	}

	// The lock file itself goes last; the held fd stays valid until the
	// deferred release.
	if err := os.Remove(filepath.Join(env.dataDir, index.LockFileName)); err != nil && !os.IsNotExist(err) {
		return err
	}

	out.Successf("removed index data from %s", env.dataDir)
	return nil
}
