package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/internal/config"
)

const staticConfig = `embeddings:
  provider: static
  dimensions: 64
`

// pinHome keeps the host's user config out of config.Load.
func pinHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")
}

func findResult(t *testing.T, report Report, name string) Result {
	t.Helper()
	for _, r := range report.Results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no %s result in report", name)
	return Result{}
}

func TestResultCritical(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   bool
	}{
		{"required fail", Result{Status: Fail, Required: true}, true},
		{"optional fail", Result{Status: Fail, Required: false}, false},
		{"required warn", Result{Status: Warn, Required: true}, false},
		{"required pass", Result{Status: Pass, Required: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.Critical())
		})
	}
}

func TestRunOnHealthyProject(t *testing.T) {
	pinHome(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, config.ProjectConfigName), []byte(staticConfig), 0o644))

	report := Run(context.Background(), root, nil)

	assert.True(t, report.Healthy)
	assert.NotEqual(t, "not ready", report.Summary)
	for _, r := range report.Results {
		assert.False(t, r.Critical(), "%s: %s", r.Name, r.Message)
	}

	cfg := findResult(t, report, "config")
	assert.Equal(t, Pass, cfg.Status)
	assert.Contains(t, cfg.Message, config.ProjectConfigName)

	em := findResult(t, report, "embedder")
	assert.Equal(t, Pass, em.Status)
	assert.Contains(t, em.Message, "static")
}

func TestRunReportsBrokenConfig(t *testing.T) {
	pinHome(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, config.ProjectConfigName), []byte("embeddings: [oops"), 0o644))

	report := Run(context.Background(), root, nil)

	assert.False(t, report.Healthy)
	assert.Equal(t, "not ready", report.Summary)

	cfg := findResult(t, report, "config")
	assert.Equal(t, Fail, cfg.Status)
	assert.Contains(t, cfg.Detail, config.ProjectConfigName)

	// Without a loaded config there is no provider to probe.
	for _, r := range report.Results {
		assert.NotEqual(t, "embedder", r.Name)
	}
}

func TestRunWithoutConfigFileUsesDefaults(t *testing.T) {
	pinHome(t)
	root := t.TempDir()

	report := Run(context.Background(), root, nil)

	cfg := findResult(t, report, "config")
	assert.Equal(t, Pass, cfg.Status)
	assert.Contains(t, cfg.Message, "defaults")
	assert.Contains(t, cfg.Detail, "weft init")
}

func TestCheckWritableCoversDataDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(config.DataDir(root), 0o755))

	r := checkWritable(root)
	assert.Equal(t, Pass, r.Status)

	// No probe files may survive the check.
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCheckWritableFailsOnReadOnlyRoot(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	root := t.TempDir()
	require.NoError(t, os.Chmod(root, 0o555))
	t.Cleanup(func() { _ = os.Chmod(root, 0o755) })

	r := checkWritable(root)
	assert.Equal(t, Fail, r.Status)
	assert.Contains(t, r.Message, root)
}

func TestCheckDiskSpace(t *testing.T) {
	r := checkDiskSpace(t.TempDir())
	assert.Equal(t, Pass, r.Status)
	assert.Contains(t, r.Message, "free")
}

func TestCheckFileLimit(t *testing.T) {
	r := checkFileLimit()
	assert.Equal(t, "file_descriptors", r.Name)
	assert.NotEmpty(t, r.Message)
}

func TestMemAvailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meminfo")
	content := "MemTotal:       16384000 kB\nMemFree:         1024000 kB\nMemAvailable:    8192000 kB\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := memAvailable(path)
	require.NoError(t, err)
	assert.Equal(t, int64(8192000*1024), got)
}

func TestMemAvailableMissingFileOrLine(t *testing.T) {
	_, err := memAvailable(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "meminfo")
	require.NoError(t, os.WriteFile(path, []byte("MemTotal: 1 kB\n"), 0o644))
	_, err = memAvailable(path)
	assert.ErrorContains(t, err, "MemAvailable")
}
