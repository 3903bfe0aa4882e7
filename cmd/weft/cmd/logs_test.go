package cmd

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/internal/config"
)

func logLine(level, msg string) string {
	return fmt.Sprintf(`{"time":"2026-03-01T09:00:00Z","level":%q,"msg":%q}`, level, msg) + "\n"
}

func writeProjectLog(t *testing.T, root string, lines ...string) {
	t.Helper()
	var content string
	for _, line := range lines {
		content += line
	}
	rel := filepath.Join(config.DataDirName, "logs", "weft.log")
	writeFile(t, root, rel, content)
}

func TestLogsCommand_TailsProjectLog(t *testing.T) {
	setHome(t)
	root := t.TempDir()
	writeProjectLog(t, root,
		logLine("INFO", "first"),
		logLine("INFO", "second"),
		logLine("INFO", "third"),
	)

	out, err := runCmd(t, "logs", root, "-n", "2", "--no-color")
	require.NoError(t, err, out)
	assert.Contains(t, out, "log file:")
	assert.NotContains(t, out, "first")
	assert.Contains(t, out, "second")
	assert.Contains(t, out, "third")
}

func TestLogsCommand_LevelFilter(t *testing.T) {
	setHome(t)
	root := t.TempDir()
	writeProjectLog(t, root,
		logLine("DEBUG", "chatter"),
		logLine("ERROR", "exploded"),
	)

	out, err := runCmd(t, "logs", root, "--level", "error", "--no-color")
	require.NoError(t, err)
	assert.NotContains(t, out, "chatter")
	assert.Contains(t, out, "exploded")
}

func TestLogsCommand_NoLogFile(t *testing.T) {
	setHome(t)
	root := t.TempDir()

	_, err := runCmd(t, "logs", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no log file found")
}
