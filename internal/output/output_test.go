package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_Line_PrintsPlainLine(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Line("indexing 12 files")

	assert.Equal(t, "indexing 12 files\n", buf.String())
}

func TestWriter_Linef_FormatsArguments(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Linef("indexed %d chunks in %s", 42, "1.2s")

	assert.Equal(t, "indexed 42 chunks in 1.2s\n", buf.String())
}

func TestWriter_Success_PrintsOKMarker(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Success("index complete")

	assert.Equal(t, "[OK] index complete\n", buf.String())
}

func TestWriter_Warning_PrintsWarnMarker(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Warningf("run history unavailable: %s", "disk full")

	output := buf.String()
	assert.True(t, strings.HasPrefix(output, "WARN: "), "got %q", output)
	assert.Contains(t, output, "disk full")
}

func TestWriter_Error_PrintsErrorMarker(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Error("no index found")

	assert.Equal(t, "ERROR: no index found\n", buf.String())
}

func TestWriter_Detail_IndentsLine(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Success("check passed")
	w.Detailf("%d chunks checked", 120)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Equal(t, "  120 chunks checked", lines[1])
}

func TestWriter_Newline_PrintsEmptyLine(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Newline()

	assert.Equal(t, "\n", buf.String())
}
