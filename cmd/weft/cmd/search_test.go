package cmd

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/internal/checkpoint"
	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/history"
	"github.com/weftlabs/weft/internal/search"
)

func TestSearchCommand_FindsIndexedContent(t *testing.T) {
	root := newProject(t)

	_, err := runCmd(t, "index", root, "--no-tui")
	require.NoError(t, err)

	t.Chdir(root)
	out, err := runCmd(t, "search", "retry", "backoff", "--json")
	require.NoError(t, err, out)

	var results []search.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.NotEmpty(t, results)

	paths := make([]string, 0, len(results))
	for _, r := range results {
		paths = append(paths, r.Path)
	}
	assert.Contains(t, paths, "README.md")
}

func TestSearchCommand_TextOutput(t *testing.T) {
	root := newProject(t)

	_, err := runCmd(t, "index", root, "--no-tui")
	require.NoError(t, err)

	t.Chdir(root)
	out, err := runCmd(t, "search", "backoff")
	require.NoError(t, err, out)

	assert.Contains(t, out, "1. ")
	assert.Contains(t, out, "results in")
}

func TestSearchCommand_LimitFlag(t *testing.T) {
	root := newProject(t)

	_, err := runCmd(t, "index", root, "--no-tui")
	require.NoError(t, err)

	t.Chdir(root)
	out, err := runCmd(t, "search", "retry", "--json", "-n", "1")
	require.NoError(t, err, out)

	var results []search.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.LessOrEqual(t, len(results), 1)
}

func TestSearchCommand_RecordsQuerySummary(t *testing.T) {
	root := newProject(t)

	_, err := runCmd(t, "index", root, "--no-tui")
	require.NoError(t, err)

	t.Chdir(root)
	_, err = runCmd(t, "search", "retry", "backoff", "--json")
	require.NoError(t, err)
	_, err = runCmd(t, "search", "retry", "--vector-only", "--json")
	require.NoError(t, err)

	store, err := history.Open(filepath.Join(config.DataDir(root), history.FileName), testLogger())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	stats, err := store.SearchStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByMode["hybrid"])
	assert.Equal(t, 1, stats.ByMode["vector"])
}

func TestSearchCommand_RefusesWithoutIndex(t *testing.T) {
	setHome(t)
	root := t.TempDir()
	writeFile(t, root, config.ProjectConfigName, testConfig)
	t.Chdir(root)

	out, err := runCmd(t, "search", "anything")
	require.Error(t, err)
	assert.Contains(t, out, "no index found")
	assert.Contains(t, out, "weft index")
}

func TestSearchCommand_ReportsIndexingInProgress(t *testing.T) {
	setHome(t)
	root := t.TempDir()
	writeFile(t, root, config.ProjectConfigName, testConfig)
	t.Chdir(root)

	cps := checkpoint.NewStore(config.DataDir(root), testLogger())
	cp := checkpoint.New(false, 0, "fingerprint")
	cp.SetProgress(3, 9, 0)
	require.NoError(t, cps.Save(cp))

	out, err := runCmd(t, "search", "anything")
	require.Error(t, err)
	assert.Contains(t, out, "in progress")
	assert.Contains(t, out, "3/9")
}

func TestSearchCommand_SuggestsRebuildWhenManifestMissing(t *testing.T) {
	setHome(t)
	root := t.TempDir()
	writeFile(t, root, config.ProjectConfigName, testConfig)
	t.Chdir(root)

	// A completed run recorded chunks, but the manifest file is gone.
	cps := checkpoint.NewStore(config.DataDir(root), testLogger())
	cp := checkpoint.New(true, 12, "fingerprint")
	cp.SetProgress(12, 12, 40)
	cp.MarkComplete()
	require.NoError(t, cps.Save(cp))

	out, err := runCmd(t, "search", "anything")
	require.Error(t, err)
	assert.Contains(t, out, "--force")
}
