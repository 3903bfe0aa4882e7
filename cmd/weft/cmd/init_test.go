package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/internal/config"
)

func TestInitCommand_WritesConfigTemplate(t *testing.T) {
	setHome(t)
	root := t.TempDir()

	out, err := runCmd(t, "init", root)
	require.NoError(t, err, out)
	assert.Contains(t, out, config.ProjectConfigName)

	cfgPath := filepath.Join(root, config.ProjectConfigName)
	require.FileExists(t, cfgPath)

	// The template is commented guidance, not a bare defaults dump.
	raw, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "# weft project configuration")

	// And it round-trips through the loader as pure defaults.
	cfg, err := config.Load(root)
	require.NoError(t, err)
	assert.Equal(t, config.NewConfig().Embeddings.Provider, cfg.Embeddings.Provider)
}

func TestInitCommand_AddsGitignoreEntry(t *testing.T) {
	setHome(t)
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "node_modules/\n")

	_, err := runCmd(t, "init", root)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), config.DataDirName+"/")
	assert.Contains(t, string(raw), "node_modules/")
}

func TestInitCommand_GitignoreEntryNotDuplicated(t *testing.T) {
	setHome(t)
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "/.weft/\n")

	_, err := runCmd(t, "init", root)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), ".weft"))
}

func TestInitCommand_RefusesToOverwrite(t *testing.T) {
	setHome(t)
	root := t.TempDir()
	writeFile(t, root, config.ProjectConfigName, testConfig)

	out, err := runCmd(t, "init", root)
	require.Error(t, err)
	assert.Contains(t, out, "already exists")

	// The existing file is untouched.
	cfg, err := config.Load(root)
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
}

func TestInitCommand_ForceOverwrites(t *testing.T) {
	setHome(t)
	root := t.TempDir()
	writeFile(t, root, config.ProjectConfigName, testConfig)

	_, err := runCmd(t, "init", root, "--force")
	require.NoError(t, err)

	cfg, err := config.Load(root)
	require.NoError(t, err)
	assert.Equal(t, config.NewConfig().Embeddings.Provider, cfg.Embeddings.Provider)
}

func TestInitCommand_UserConfig(t *testing.T) {
	setHome(t)

	out, err := runCmd(t, "init", "--user")
	require.NoError(t, err, out)
	require.FileExists(t, config.GetUserConfigPath())

	raw, err := os.ReadFile(config.GetUserConfigPath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "# weft user configuration")

	// A second run refuses without --force.
	_, err = runCmd(t, "init", "--user")
	require.Error(t, err)
}
