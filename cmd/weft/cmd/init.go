package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weftlabs/weft/configs"
	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/output"
)

// newInitCmd creates the init command.
func newInitCmd() *cobra.Command {
	var (
		force bool
		user  bool
	)

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter .weft.yaml",
		Long: `Write a commented .weft.yaml template to the project root and add
.weft/ to .gitignore.

Weft works without a config file; init is only for projects that want
to tune paths, chunking, embeddings, or backends.

With --user, write the machine-level config template (Ollama host,
API endpoints) to ` + config.GetUserConfigPath() + ` instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			if user {
				return runInitUser(cmd, force)
			}
			return runInit(cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user-level config instead of a project one")

	return cmd
}

func runInit(cmd *cobra.Command, path string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path %s: %w", path, err)
	}

	cfgPath := filepath.Join(abs, config.ProjectConfigName)
	if _, err := os.Stat(cfgPath); err == nil && !force {
		out.Warningf("%s already exists; use --force to overwrite", cfgPath)
		return fmt.Errorf("config file exists")
	}

	if err := os.WriteFile(cfgPath, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", cfgPath, err)
	}
	out.Successf("wrote %s", cfgPath)

	added, err := ensureGitignore(abs)
	switch {
	case err != nil:
		out.Warningf("could not update .gitignore: %v", err)
	case added:
		out.Linef("added %s to .gitignore", config.DataDirName)
	}

	out.Detail("edit it, then run 'weft index' to apply")
	return nil
}

func runInitUser(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	cfgPath := config.GetUserConfigPath()
	if _, err := os.Stat(cfgPath); err == nil && !force {
		out.Warningf("%s already exists; use --force to overwrite", cfgPath)
		return fmt.Errorf("config file exists")
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(cfgPath, []byte(configs.UserConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", cfgPath, err)
	}

	out.Successf("wrote %s", cfgPath)
	out.Detail("settings here apply to every project on this machine")
	return nil
}

// ensureGitignore appends the data directory to .gitignore unless an
// equivalent entry is already there. Returns whether an entry was added.
func ensureGitignore(projectRoot string) (bool, error) {
	path := filepath.Join(projectRoot, ".gitignore")

	content, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}
	if hasDataDirIgnore(string(content)) {
		return false, nil
	}

	if len(content) > 0 && !bytes.HasSuffix(content, []byte("\n")) {
		content = append(content, '\n')
	}
	content = append(content, []byte(config.DataDirName+"/\n")...)

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// hasDataDirIgnore reports whether .gitignore already covers the data
// directory, in any of its spellings (.weft, .weft/, /.weft, /.weft/).
func hasDataDirIgnore(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		trimmed := strings.Trim(line, "/")
		if trimmed == config.DataDirName {
			return true
		}
	}
	return false
}
