package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	weftErrors "github.com/weftlabs/weft/internal/errors"
)

func TestAcquireLockCreatesDataDir(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), ".weft")

	lock, err := AcquireLock(dataDir, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, lock.Release()) }()

	info, err := os.Stat(dataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.FileExists(t, filepath.Join(dataDir, LockFileName))
}

func TestAcquireLockRejectsSecondHolder(t *testing.T) {
	dataDir := t.TempDir()

	first, err := AcquireLock(dataDir, nil)
	require.NoError(t, err)
	defer func() { _ = first.Release() }()

	_, err = AcquireLock(dataDir, nil)
	require.Error(t, err)
	assert.Equal(t, weftErrors.ErrCodeRunInProgress, weftErrors.GetCode(err))
}

func TestAcquireLockAfterRelease(t *testing.T) {
	dataDir := t.TempDir()

	first, err := AcquireLock(dataDir, nil)
	require.NoError(t, err)
	require.NoError(t, first.Release())

	second, err := AcquireLock(dataDir, nil)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestReleaseIsIdempotent(t *testing.T) {
	dataDir := t.TempDir()

	lock, err := AcquireLock(dataDir, nil)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())

	var unheld *Lock
	require.NoError(t, unheld.Release())
}
