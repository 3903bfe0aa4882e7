package checkpoint

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	weftErrors "github.com/weftlabs/weft/internal/errors"
)

// checkpointFileName is the checkpoint file inside the data directory.
const checkpointFileName = "checkpoint.json"

// Store persists checkpoints as JSON in the project data directory.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a checkpoint store rooted at dataDir.
func NewStore(dataDir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   filepath.Join(dataDir, checkpointFileName),
		logger: logger,
	}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the most recent checkpoint. Returns (nil, nil) when none
// exists. A corrupt checkpoint is logged and discarded rather than
// surfaced: the checkpoint is advisory and must never block a run.
func (s *Store) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, weftErrors.StorageError("failed to read checkpoint", err)
	}

	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		s.logger.Warn("checkpoint_corrupt_discarded",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		return nil, nil
	}
	return &c, nil
}

// Save atomically writes the checkpoint, stamping UpdatedAt.
func (s *Store) Save(c *Checkpoint) error {
	if c == nil {
		return weftErrors.ValidationError("cannot save nil checkpoint", nil)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return weftErrors.StorageError("failed to create data directory", err)
	}

	c.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return weftErrors.InternalError("failed to marshal checkpoint", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return weftErrors.StorageError("failed to write checkpoint temp file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return weftErrors.StorageError("failed to replace checkpoint", err)
	}

	s.logger.Debug("checkpoint_saved",
		slog.String("run_id", c.RunID),
		slog.String("status", string(c.Status)),
		slog.String("stage", c.Stage),
		slog.Int("files_done", c.FilesDone),
		slog.Int("files_total", c.FilesTotal))
	return nil
}

// Clear removes the checkpoint file. Clearing an absent checkpoint is a
// no-op.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return weftErrors.StorageError("failed to delete checkpoint", err)
	}
	return nil
}
