package index

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	weftErrors "github.com/weftlabs/weft/internal/errors"
)

// LockFileName is the advisory lock file under the project data
// directory.
const LockFileName = "index.lock"

// Lock makes indexing runs exclusive per project. It guards the
// manifest, checkpoint, and store files against concurrent writers;
// readers never take it.
type Lock struct {
	fl     *flock.Flock
	logger *slog.Logger
}

// AcquireLock takes the project's run lock without blocking. A second
// runner is rejected with ErrCodeRunInProgress.
func AcquireLock(dataDir string, logger *slog.Logger) (*Lock, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, weftErrors.StorageError("creating data directory", err).
			WithDetail("path", dataDir)
	}

	path := filepath.Join(dataDir, LockFileName)
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, weftErrors.StorageError("acquiring run lock", err).
			WithDetail("path", path)
	}
	if !locked {
		return nil, weftErrors.New(weftErrors.ErrCodeRunInProgress,
			"an indexing run is already in progress for this project", nil).
			WithDetail("lock_path", path).
			WithSuggestion("wait for the other run to finish, or delete the lock file if no weft process is running")
	}

	logger.Debug("run_lock_acquired", slog.String("path", path))
	return &Lock{fl: fl, logger: logger}, nil
}

// Release drops the lock. Releasing an already-released lock is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return weftErrors.StorageError("releasing run lock", err).
			WithDetail("path", l.fl.Path())
	}
	l.logger.Debug("run_lock_released", slog.String("path", l.fl.Path()))
	return nil
}
