package cmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/internal/config"
	"github.com/weftlabs/weft/internal/manifest"
)

// testConfig pins the static embedder and a single HNSW backend so
// tests never touch the network, and shortens the watch quiet window.
const testConfig = `embeddings:
  provider: static
  dimensions: 64
  batch_size: 8
vector_store:
  primary: hnsw
  secondary: none
watch:
  debounce: 100ms
logging:
  level: warn
`

// projectFileCount is the number of indexable files newProject writes,
// the config file included.
const projectFileCount = 4

// setHome redirects HOME so fallback logs and the user config land in
// a test dir, and pins XDG_CONFIG_HOME so the host's cannot leak in.
func setHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")
}

// newProject writes a small project with a hermetic config and returns
// its root.
func newProject(t *testing.T) string {
	t.Helper()
	setHome(t)

	root := t.TempDir()
	writeFile(t, root, config.ProjectConfigName, testConfig)
	writeFile(t, root, "main.go", "package main\n\nfunc main() {\n\tprintln(\"weft demo\")\n}\n")
	writeFile(t, root, filepath.Join("util", "retry.go"), "package util\n\n// Backoff returns the retry backoff delay for attempt n.\nfunc Backoff(n int) int {\n\treturn n * n\n}\n")
	writeFile(t, root, "README.md", "# demo\n\nA sample project about retry backoff policies.\n")
	return root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func removeFile(root, rel string) error {
	return os.Remove(filepath.Join(root, rel))
}

// execRoot runs the CLI against a fresh command tree and returns its
// combined output. Safe to call off the test goroutine.
func execRoot(ctx context.Context, args ...string) (string, error) {
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return buf.String(), err
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return execRoot(context.Background(), args...)
}

// loadManifest reads the project's manifest, or nil when none exists.
func loadManifest(t *testing.T, root string) *manifest.Manifest {
	t.Helper()
	ms := manifest.NewStore(config.DataDir(root), testLogger())
	m, _, err := ms.Load(root)
	require.NoError(t, err)
	return m
}

// loadManifestQuiet is loadManifest for polling loops that run off the
// test goroutine; any load problem reads as "not there yet".
func loadManifestQuiet(root string) *manifest.Manifest {
	ms := manifest.NewStore(config.DataDir(root), testLogger())
	m, _, err := ms.Load(root)
	if err != nil {
		return nil
	}
	return m
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
