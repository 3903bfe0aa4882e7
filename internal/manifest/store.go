package manifest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	weftErrors "github.com/weftlabs/weft/internal/errors"
)

// manifestFileName is the manifest file inside the data directory.
const manifestFileName = "manifest.json"

// Store persists the manifest as JSON in the project data directory.
//
// Save is guarded by a revision token: Load returns the revision observed
// on disk, and Save refuses to write unless disk still holds that
// revision. A rejected save means another writer got there first; the
// caller should re-plan from the fresh manifest rather than force its
// stale view over the newer one.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a manifest store rooted at dataDir.
func NewStore(dataDir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   filepath.Join(dataDir, manifestFileName),
		logger: logger,
	}
}

// Path returns the manifest file path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a manifest file is present on disk, without
// validating it.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && !info.IsDir()
}

// Load reads the manifest for a project root.
//
// Returns (nil, 0, nil) when no manifest exists. A manifest written for a
// different project root or an unknown schema version is unusable and
// comes back as absent too, with a warning; the revision token still
// reflects what disk holds so a subsequent Save can replace it. Loading
// succeeds or the manifest is never partially trusted: unparseable JSON is
// a fatal corruption error, not a silent fresh start.
func (s *Store) Load(projectRoot string) (*Manifest, int64, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, weftErrors.StorageError(fmt.Sprintf("failed to read manifest at %s", s.path), err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, 0, weftErrors.New(weftErrors.ErrCodeManifestCorrupt,
			fmt.Sprintf("manifest at %s is not valid JSON", s.path), err).
			WithSuggestion("run 'weft index --force' to rebuild the index from scratch")
	}

	if m.Version != CurrentVersion {
		s.logger.Warn("manifest_schema_unknown",
			slog.Int("found_version", m.Version),
			slog.Int("supported_version", CurrentVersion),
			slog.String("path", s.path))
		return nil, m.Revision, nil
	}

	if m.ProjectID != PathDigest(projectRoot) {
		s.logger.Warn("manifest_identity_mismatch",
			slog.String("manifest_root", m.ProjectRoot),
			slog.String("requested_root", projectRoot))
		return nil, m.Revision, nil
	}

	if m.Files == nil {
		m.Files = make(map[string]Entry)
	}

	s.logger.Debug("manifest_loaded",
		slog.Int("files", m.FileCount()),
		slog.Int("chunks", m.ChunkCount()),
		slog.Int64("revision", m.Revision))
	return &m, m.Revision, nil
}

// Save atomically writes the manifest, guarded by the revision token from
// Load. On success the manifest's Revision and UpdatedAt are updated in
// place and the new revision token is returned.
func (s *Store) Save(m *Manifest, expectedRevision int64) (int64, error) {
	if m == nil {
		return 0, weftErrors.ValidationError("cannot save nil manifest", nil)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return 0, weftErrors.StorageError("failed to create data directory", err)
	}

	if err := s.checkRevision(expectedRevision); err != nil {
		return 0, err
	}

	m.Version = CurrentVersion
	m.Revision = expectedRevision + 1
	m.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return 0, weftErrors.InternalError("failed to marshal manifest", err)
	}

	// Atomic write: temp file in the same directory, then rename.
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return 0, weftErrors.StorageError("failed to write manifest temp file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, weftErrors.StorageError("failed to replace manifest", err)
	}

	s.logger.Debug("manifest_saved",
		slog.Int("files", m.FileCount()),
		slog.Int("chunks", m.ChunkCount()),
		slog.Int64("revision", m.Revision))
	return m.Revision, nil
}

// checkRevision compares the on-disk revision against the caller's token.
func (s *Store) checkRevision(expected int64) error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		if expected != 0 {
			return s.conflict(expected, 0)
		}
		return nil
	}
	if err != nil {
		return weftErrors.StorageError("failed to read manifest for revision check", err)
	}

	var onDisk Manifest
	if err := json.Unmarshal(data, &onDisk); err != nil {
		// The file is corrupt; a good manifest replacing it is an
		// improvement regardless of the caller's token.
		s.logger.Warn("manifest_unreadable_on_save",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		return nil
	}

	if onDisk.Revision != expected {
		return s.conflict(expected, onDisk.Revision)
	}
	return nil
}

func (s *Store) conflict(expected, found int64) error {
	s.logger.Warn("manifest_conflict",
		slog.Int64("expected_revision", expected),
		slog.Int64("found_revision", found))
	return weftErrors.New(weftErrors.ErrCodeManifestConflict,
		fmt.Sprintf("manifest changed under us: expected revision %d, disk has %d", expected, found), nil).
		WithDetail("expected_revision", strconv.FormatInt(expected, 10)).
		WithDetail("found_revision", strconv.FormatInt(found, 10)).
		WithSuggestion("another indexing run updated the manifest; retry to re-plan against the new state")
}

// Delete removes the manifest file. Deleting an absent manifest is a
// no-op.
func (s *Store) Delete() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return weftErrors.StorageError("failed to delete manifest", err)
	}
	s.logger.Info("manifest_deleted", slog.String("path", s.path))
	return nil
}
