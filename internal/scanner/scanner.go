package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	weftErrors "github.com/weftlabs/weft/internal/errors"
	"github.com/weftlabs/weft/internal/gitignore"
)

// Scanner walks a project tree and lists indexable files. A Scanner is
// safe to reuse across scans; watch mode keeps one alive and rescans on
// every quiet window. Compiled .gitignore matchers are cached per
// directory between scans, see InvalidateCache.
type Scanner struct {
	root          string
	include       []string
	maxFileSize   int64
	skipGitignore bool

	// excludes holds the built-in and configured exclusion patterns,
	// compiled once. sensitive holds the never-index patterns.
	excludes  *gitignore.Matcher
	sensitive *gitignore.Matcher

	// matchers caches one compiled matcher per directory that has a
	// .gitignore. A nil value records that the directory has none, so
	// repeated scans skip the stat too.
	matchers *lru.Cache[string, *gitignore.Matcher]

	logger *slog.Logger
}

// New builds a Scanner for the project root in opts.
func New(opts Options) (*Scanner, error) {
	if opts.Root == "" {
		return nil, weftErrors.New(weftErrors.ErrCodeInvalidInput, "project root is required", nil)
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, weftErrors.New(weftErrors.ErrCodeInvalidInput,
			fmt.Sprintf("cannot resolve project root %s", opts.Root), err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, weftErrors.New(weftErrors.ErrCodeInvalidInput,
			fmt.Sprintf("project root %s is not a directory", root), err)
	}

	include, err := normalizeIncludes(opts.Include)
	if err != nil {
		return nil, err
	}

	excludes := gitignore.New()
	for _, p := range builtinExcludes {
		excludes.AddPattern(p)
	}
	for _, p := range opts.Exclude {
		excludes.AddPattern(p)
	}

	sensitive := gitignore.New()
	for _, p := range sensitivePatterns {
		sensitive.AddPattern(p)
	}

	matchers, err := lru.New[string, *gitignore.Matcher](matcherCacheSize)
	if err != nil {
		return nil, weftErrors.New(weftErrors.ErrCodeInternal, "failed to create matcher cache", err)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scanner{
		root:          root,
		include:       include,
		maxFileSize:   maxSize,
		skipGitignore: opts.SkipGitignore,
		excludes:      excludes,
		sensitive:     sensitive,
		matchers:      matchers,
		logger:        logger,
	}, nil
}

// normalizeIncludes cleans the include list to slash-separated paths
// relative to the root. Nil means "scan the whole root".
func normalizeIncludes(include []string) ([]string, error) {
	var out []string
	for _, inc := range include {
		clean := filepath.ToSlash(filepath.Clean(strings.TrimSpace(inc)))
		if clean == "." || clean == "" {
			return nil, nil
		}
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
			return nil, weftErrors.New(weftErrors.ErrCodeInvalidInput,
				fmt.Sprintf("include path %s escapes the project root", inc), nil).
				WithSuggestion("paths.include entries must be relative paths inside the project")
		}
		out = append(out, clean)
	}
	return out, nil
}

// Scan walks the tree and returns every indexable file, sorted by
// relative path. Filtered files are logged at debug level and the run
// continues; only cancellation and an unusable root abort a scan.
func (s *Scanner) Scan(ctx context.Context) ([]FileInfo, error) {
	if info, err := os.Stat(s.root); err != nil || !info.IsDir() {
		return nil, weftErrors.New(weftErrors.ErrCodeInvalidInput,
			fmt.Sprintf("project root %s is not a readable directory", s.root), err)
	}

	var starts []string
	if len(s.include) == 0 {
		starts = []string{s.root}
	} else {
		for _, inc := range s.include {
			starts = append(starts, filepath.Join(s.root, filepath.FromSlash(inc)))
		}
	}

	seen := make(map[string]FileInfo)
	for _, start := range starts {
		if _, err := os.Stat(start); err != nil {
			s.logger.Warn("include_path_missing", slog.String("path", start))
			continue
		}
		if err := s.walk(ctx, start, seen); err != nil {
			return nil, err
		}
	}

	files := make([]FileInfo, 0, len(seen))
	for _, f := range seen {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	s.logger.Debug("scan_complete",
		slog.String("root", s.root),
		slog.Int("files", len(files)))
	return files, nil
}

// walk runs one WalkDir pass from start, adding survivors to seen.
func (s *Scanner) walk(ctx context.Context, start string, seen map[string]FileInfo) error {
	return filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			s.logger.Debug("scan_entry_unreadable", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel, rerr := filepath.Rel(s.root, path)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if s.excludes.Match(rel, true) {
				s.logSkip(rel, "excluded")
				return fs.SkipDir
			}
			if !s.skipGitignore && s.isGitignored(rel, true) {
				s.logSkip(rel, "gitignored")
				return fs.SkipDir
			}
			return nil
		}

		// Symlinks and other irregular files are never followed.
		if !d.Type().IsRegular() {
			s.logSkip(rel, "irregular")
			return nil
		}
		if s.excludes.Match(rel, false) {
			s.logSkip(rel, "excluded")
			return nil
		}
		if s.sensitive.Match(rel, false) {
			s.logSkip(rel, "sensitive")
			return nil
		}
		if !s.skipGitignore && s.isGitignored(rel, false) {
			s.logSkip(rel, "gitignored")
			return nil
		}

		info, ierr := d.Info()
		if ierr != nil {
			s.logSkip(rel, "stat_failed")
			return nil
		}
		if info.Size() > s.maxFileSize {
			s.logger.Debug("scan_file_skipped",
				slog.String("path", rel),
				slog.String("reason", "too_large"),
				slog.Int64("size", info.Size()),
				slog.Int64("limit", s.maxFileSize))
			return nil
		}
		if s.isBinaryFile(path) {
			s.logSkip(rel, "binary")
			return nil
		}

		seen[rel] = FileInfo{
			Path:    rel,
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		return nil
	})
}

func (s *Scanner) logSkip(rel, reason string) {
	s.logger.Debug("scan_file_skipped",
		slog.String("path", rel),
		slog.String("reason", reason))
}

// isGitignored checks rel against the root .gitignore and every nested
// .gitignore on the path down to it.
func (s *Scanner) isGitignored(rel string, isDir bool) bool {
	if m := s.matcherFor(s.root, ""); m != nil && m.Match(rel, isDir) {
		return true
	}

	dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(rel)))
	if dir == "." {
		return false
	}

	base := ""
	for _, part := range strings.Split(dir, "/") {
		if base == "" {
			base = part
		} else {
			base = base + "/" + part
		}
		m := s.matcherFor(filepath.Join(s.root, filepath.FromSlash(base)), base)
		if m != nil && m.Match(rel, isDir) {
			return true
		}
	}
	return false
}

// matcherFor returns the compiled .gitignore matcher for a directory, or
// nil when the directory has none. Both outcomes are cached.
func (s *Scanner) matcherFor(dir, base string) *gitignore.Matcher {
	if m, ok := s.matchers.Get(dir); ok {
		return m
	}

	var m *gitignore.Matcher
	path := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(path); err == nil {
		gm := gitignore.New()
		if err := gm.AddFromFile(path, base); err == nil {
			m = gm
		} else {
			s.logger.Debug("gitignore_unreadable", slog.String("path", path), slog.String("error", err.Error()))
		}
	}

	s.matchers.Add(dir, m)
	return m
}

// InvalidateCache drops all cached .gitignore matchers. Watch mode calls
// this when an ignore file changes so the next scan recompiles them.
func (s *Scanner) InvalidateCache() {
	s.matchers.Purge()
}

// isBinaryFile sniffs the first bytes of a file for a NUL byte, the same
// heuristic git uses. Unreadable files are not classified as binary;
// the planner surfaces the read error instead.
func (s *Scanner) isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, binarySniffLen)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return false
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
