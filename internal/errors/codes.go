// Package errors provides structured error handling for Weft.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (manifest, checkpoint, index files)
//   - 3XX: Backend errors (vector stores, embedding providers)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates manifest, checkpoint, and index file errors.
	CategoryStorage Category = "STORAGE"
	// CategoryBackend indicates vector-store and embedding-provider errors.
	CategoryBackend Category = "BACKEND"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates an unrecoverable error, the run must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the run can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStorageFailed     = "ERR_201_STORAGE_FAILED"
	ErrCodeManifestCorrupt   = "ERR_202_MANIFEST_CORRUPT"
	ErrCodeManifestConflict  = "ERR_203_MANIFEST_CONFLICT"
	ErrCodeCheckpointCorrupt = "ERR_204_CHECKPOINT_CORRUPT"
	ErrCodeFileUnreadable    = "ERR_205_FILE_UNREADABLE"
	ErrCodeIndexCorrupt      = "ERR_206_INDEX_CORRUPT"

	// Backend errors (300-399)
	ErrCodeBackendTimeout      = "ERR_301_BACKEND_TIMEOUT"
	ErrCodeBackendUnavailable  = "ERR_302_BACKEND_UNAVAILABLE"
	ErrCodeBackendsExhausted   = "ERR_303_BACKENDS_EXHAUSTED"
	ErrCodeEmbedderUnavailable = "ERR_304_EMBEDDER_UNAVAILABLE"
	ErrCodeMalformedResponse   = "ERR_305_MALFORMED_RESPONSE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeEmptyChunks       = "ERR_403_EMPTY_CHUNKS"
	ErrCodeProjectMismatch   = "ERR_404_PROJECT_MISMATCH"
	ErrCodeSchemaUnknown     = "ERR_405_SCHEMA_UNKNOWN"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeRunInProgress   = "ERR_503_RUN_IN_PROGRESS"
	ErrCodeRunFailed       = "ERR_504_RUN_FAILED"
)

// categoryFromCode extracts the category from an error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "202" from "ERR_202_MANIFEST_CORRUPT".
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryBackend
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeManifestCorrupt, ErrCodeIndexCorrupt:
		// Corrupt persisted state has no safe fallback; the run must abort.
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// ManifestConflict is retryable at the whole-run level: the caller is expected
// to re-run reconciliation against the externally-modified manifest.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeBackendTimeout, ErrCodeBackendUnavailable, ErrCodeBackendsExhausted, ErrCodeManifestConflict:
		return true
	default:
		return false
	}
}
