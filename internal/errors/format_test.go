package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatForCLI_IncludesSuggestionAndCode(t *testing.T) {
	err := New(ErrCodeRunInProgress, "another indexing run holds the lock", nil).
		WithSuggestion("Wait for the current run to finish")

	out := FormatForCLI(err)

	assert.Contains(t, out, "Error: another indexing run holds the lock")
	assert.Contains(t, out, "Hint: Wait for the current run to finish")
	assert.Contains(t, out, ErrCodeRunInProgress)
}

func TestFormatForCLI_PlainError(t *testing.T) {
	out := FormatForCLI(errors.New("something broke"))

	assert.Equal(t, "Error: something broke\n", out)
}

func TestFormatForCLI_NilError(t *testing.T) {
	assert.Empty(t, FormatForCLI(nil))
}

func TestLogAttrs_StructuredFields(t *testing.T) {
	err := New(ErrCodeBackendTimeout, "upsert timed out", errors.New("dial tcp")).
		WithDetail("backend", "hnsw")

	attrs := LogAttrs(err)

	keys := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		keys[a.Key] = true
	}
	assert.True(t, keys["error_code"])
	assert.True(t, keys["retryable"])
	assert.True(t, keys["cause"])
	assert.True(t, keys["detail_backend"])
}

func TestLogAttrs_PlainError(t *testing.T) {
	attrs := LogAttrs(errors.New("plain"))

	assert.Len(t, attrs, 1)
	assert.Equal(t, "error", attrs[0].Key)
}
