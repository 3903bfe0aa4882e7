package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/internal/config"
)

func TestStatusCommand_JSONAfterIndex(t *testing.T) {
	root := newProject(t)

	_, err := runCmd(t, "index", root, "--no-tui")
	require.NoError(t, err)

	out, err := runCmd(t, "status", root, "--json")
	require.NoError(t, err, out)

	var info statusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))

	assert.Equal(t, filepath.Base(root), info.Project.Name)
	assert.Equal(t, root, info.Project.Root)

	assert.True(t, info.Index.Exists)
	assert.Equal(t, projectFileCount, info.Index.Files)
	assert.Greater(t, info.Index.Chunks, 0)
	assert.False(t, info.Index.SettingsDrift)
	assert.False(t, info.Index.InProgress)

	assert.Equal(t, "static", info.Embedder.Provider)
	assert.Equal(t, 64, info.Embedder.Dimensions)

	require.Len(t, info.Backends, 1)
	assert.Equal(t, "hnsw", info.Backends[0].Name)
	assert.Equal(t, "healthy", info.Backends[0].Status)
	assert.Equal(t, info.Index.Chunks, info.Backends[0].Vectors)

	assert.Greater(t, info.Storage.TotalBytes, int64(0))
	assert.Contains(t, info.Storage.Files, "manifest.json")
	assert.Contains(t, info.Storage.Files, "vectors.hnsw")

	require.NotEmpty(t, info.Runs)
	assert.Equal(t, "complete", info.Runs[0].Status)
	assert.Equal(t, projectFileCount, info.Runs[0].Added)

	// No queries have run yet, so the searches section is absent.
	assert.Nil(t, info.Searches)
}

func TestStatusCommand_ReportsSearchStats(t *testing.T) {
	root := newProject(t)

	_, err := runCmd(t, "index", root, "--no-tui")
	require.NoError(t, err)

	t.Chdir(root)
	_, err = runCmd(t, "search", "retry", "--json")
	require.NoError(t, err)

	out, err := runCmd(t, "status", root, "--json")
	require.NoError(t, err, out)

	var info statusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))

	require.NotNil(t, info.Searches)
	assert.Equal(t, 1, info.Searches.Total)
	assert.Equal(t, 1, info.Searches.ByMode["hybrid"])

	text, err := runCmd(t, "status", root)
	require.NoError(t, err, text)
	assert.Contains(t, text, "Searches: 1 recorded")
	assert.Contains(t, text, "hybrid: 1")
}

func TestStatusCommand_TextAfterIndex(t *testing.T) {
	root := newProject(t)

	_, err := runCmd(t, "index", root, "--no-tui")
	require.NoError(t, err)

	out, err := runCmd(t, "status", root)
	require.NoError(t, err, out)

	assert.Contains(t, out, "Index: 4 files")
	assert.Contains(t, out, "hnsw: healthy")
	assert.Contains(t, out, "Recent runs:")
}

func TestStatusCommand_EmptyProject(t *testing.T) {
	setHome(t)
	root := t.TempDir()
	writeFile(t, root, config.ProjectConfigName, testConfig)

	out, err := runCmd(t, "status", root)
	require.NoError(t, err, out)
	assert.Contains(t, out, "not built")

	// A read-only command must not create the data directory.
	assert.NoDirExists(t, filepath.Join(root, ".weft"))
}

func TestStatusCommand_ReportsSettingsDrift(t *testing.T) {
	root := newProject(t)

	_, err := runCmd(t, "index", root, "--no-tui")
	require.NoError(t, err)

	// Changing the chunk geometry invalidates the stored vectors.
	writeFile(t, root, config.ProjectConfigName, testConfig+"indexing:\n  chunk_lines: 80\n")

	out, err := runCmd(t, "status", root, "--json")
	require.NoError(t, err, out)

	var info statusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.True(t, info.Index.SettingsDrift)
}
