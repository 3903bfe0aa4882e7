package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/internal/config"
)

func TestVerifyCommand_ConsistentAfterIndex(t *testing.T) {
	root := newProject(t)

	_, err := runCmd(t, "index", root, "--no-tui")
	require.NoError(t, err)

	out, err := runCmd(t, "verify", root)
	require.NoError(t, err, out)
	assert.Contains(t, out, "index is consistent")
}

func TestVerifyCommand_NothingToVerify(t *testing.T) {
	setHome(t)
	root := t.TempDir()
	writeFile(t, root, config.ProjectConfigName, testConfig)

	out, err := runCmd(t, "verify", root)
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to verify")
}

func TestVerifyCommand_DetectsAndRepairsMissingVectors(t *testing.T) {
	root := newProject(t)

	_, err := runCmd(t, "index", root, "--no-tui")
	require.NoError(t, err)

	// Losing the vector files orphans every manifest reference.
	dataDir := config.DataDir(root)
	require.NoError(t, os.Remove(filepath.Join(dataDir, "vectors.hnsw")))
	require.NoError(t, os.Remove(filepath.Join(dataDir, "vectors.hnsw.meta")))

	out, err := runCmd(t, "verify", root)
	require.Error(t, err)
	assert.Contains(t, out, "missing vectors")
	assert.Contains(t, out, "--repair")

	out, err = runCmd(t, "verify", root, "--repair")
	require.NoError(t, err, out)
	assert.Contains(t, out, "repaired")
	assert.Contains(t, out, "files cleared")

	// Reindexing the cleared files restores consistency.
	_, err = runCmd(t, "index", root, "--no-tui")
	require.NoError(t, err)

	out, err = runCmd(t, "verify", root)
	require.NoError(t, err, out)
	assert.Contains(t, out, "index is consistent")
}
