package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: a file-backed logging config
	logPath := filepath.Join(t.TempDir(), "logs", "weft.log")
	logger, cleanup, err := Setup(Config{
		Level:     "info",
		FilePath:  logPath,
		MaxSizeMB: 1,
		MaxFiles:  2,
	})
	require.NoError(t, err)

	// When: logging an event
	logger.Info("index_complete", slog.Int("files", 3))
	cleanup()

	// Then: the file contains a parseable JSON record
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.SplitN(string(data), "\n", 2)[0]), &record))
	assert.Equal(t, "index_complete", record["msg"])
	assert.Equal(t, float64(3), record["files"])
}

func TestSetup_RespectsLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "weft.log")
	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: logPath})
	require.NoError(t, err)

	logger.Info("suppressed_event")
	logger.Warn("visible_event")
	cleanup()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "suppressed_event")
	assert.Contains(t, string(data), "visible_event")
}

func TestRotatingWriter_RotatesAtSizeLimit(t *testing.T) {
	// Given: a writer with a 1MB cap
	logPath := filepath.Join(t.TempDir(), "weft.log")
	w, err := NewRotatingWriter(logPath, 1, 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	// When: writing past the cap
	line := strings.Repeat("x", 64*1024)
	for i := 0; i < 20; i++ {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	// Then: a rotated file exists and the live file restarted
	_, err = os.Stat(logPath + ".1")
	assert.NoError(t, err)

	info, err := os.Stat(logPath)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(1024*1024))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestProjectLogPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/tmp/proj/.weft", "logs", "weft.log"), ProjectLogPath("/tmp/proj/.weft"))
}
