// Package scanner discovers the candidate files of a project. A scan
// walks the tree once, applies exclusion rules (built-in, config, and
// .gitignore), drops binaries and oversized files, and returns a sorted
// listing of project-relative paths. The scanner decides what exists;
// deciding what changed is the planner's job.
package scanner

import (
	"log/slog"
	"time"
)

// DefaultMaxFileSize caps file size at 1MB when Options.MaxFileSize is
// zero. Source files above that are overwhelmingly generated or data.
const DefaultMaxFileSize = 1 * 1024 * 1024

// binarySniffLen is how many leading bytes are examined for NUL bytes
// when classifying a file as binary.
const binarySniffLen = 512

// matcherCacheSize bounds the per-directory ignore-matcher cache.
const matcherCacheSize = 1000

// FileInfo describes one discovered file.
type FileInfo struct {
	// Path is the project-relative path, slash-separated on every
	// platform. Manifest entries and chunk IDs key off this form.
	Path string

	// AbsPath is the absolute path, for opening the file.
	AbsPath string

	// Size is the file size in bytes at scan time.
	Size int64

	// ModTime is the file modification time at scan time.
	ModTime time.Time
}

// Options configures a Scanner.
type Options struct {
	// Root is the project root directory. Required.
	Root string

	// Include lists directories relative to Root to scan. Empty or
	// containing "." means the whole root.
	Include []string

	// Exclude lists gitignore-style patterns to skip, on top of the
	// built-in exclusions.
	Exclude []string

	// MaxFileSize skips files larger than this many bytes. Zero means
	// DefaultMaxFileSize.
	MaxFileSize int64

	// SkipGitignore disables .gitignore handling. Built-in and Exclude
	// patterns still apply.
	SkipGitignore bool

	// Logger receives debug records for every filtered file. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// builtinExcludes are always applied, whatever the config says. The data
// directory must never index itself, and version control internals are
// never useful to index. The bare ".git" form also catches the gitlink
// file a submodule checkout leaves behind.
var builtinExcludes = []string{
	".git",
	".weft/",
	"node_modules/",
}

// sensitivePatterns name files that are never indexed regardless of
// ignore rules: credentials, private keys, and anything else whose
// content leaking into search results would be a problem.
var sensitivePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"*credentials*",
	"*secrets*",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
}
