package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the user-level log directory (~/.weft/logs).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".weft", "logs")
	}
	return filepath.Join(home, ".weft", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "weft.log")
}

// ProjectLogPath returns the log file path inside a project data dir.
func ProjectLogPath(dataDir string) string {
	return filepath.Join(dataDir, "logs", "weft.log")
}

// FindLogFile picks the log file to view: the explicit override if given,
// else the project log, else the user-level fallback. Errors when none of
// them exists yet.
func FindLogFile(dataDir, override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("log file %s: %w", override, err)
		}
		return override, nil
	}
	for _, path := range []string{ProjectLogPath(dataDir), DefaultLogPath()} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", errors.New("no log file found; run a command with --debug to enable file logging")
}
