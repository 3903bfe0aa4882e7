// Package chunk splits file content into the retrievable units that get
// embedded and indexed. Code files are cut at top-level declarations via
// tree-sitter, markdown at headings, everything else into fixed line
// windows. Chunks carry no identifiers; the indexer derives stable IDs
// from path, content hash, and ordinal at commit time.
package chunk

import "context"

// Window geometry defaults, in lines.
const (
	DefaultMaxLines     = 120
	DefaultOverlapLines = 20
)

// Chunk is one retrievable slice of a file. Line numbers are 1-indexed
// and inclusive; consecutive chunks of a code file tile it completely.
type Chunk struct {
	Content   string
	StartLine int
	EndLine   int
	Language  string
	// Symbol names the leading declaration or heading when one is
	// known, for display and lexical boosting. Empty for plain windows.
	Symbol string
}

// Chunker splits file content into ordered chunks. Implementations are
// safe for concurrent use.
type Chunker interface {
	Chunk(ctx context.Context, path string, content []byte) ([]Chunk, error)
}

// Options bound chunk geometry. Zero values select the defaults.
type Options struct {
	MaxLines     int
	OverlapLines int
}

func (o Options) withDefaults() Options {
	if o.MaxLines <= 0 {
		o.MaxLines = DefaultMaxLines
	}
	if o.OverlapLines <= 0 {
		o.OverlapLines = DefaultOverlapLines
	}
	if o.OverlapLines >= o.MaxLines {
		o.OverlapLines = o.MaxLines / 4
	}
	return o
}

// dispatcher routes each file to the chunker for its type.
type dispatcher struct {
	code     *CodeChunker
	markdown *MarkdownChunker
	lines    *LineChunker
}

// New returns the production chunker: tree-sitter for supported code,
// heading-aware splitting for markdown, line windows for the rest.
func New(opts Options) Chunker {
	return &dispatcher{
		code:     NewCodeChunker(opts),
		markdown: NewMarkdownChunker(opts),
		lines:    NewLineChunker(opts),
	}
}

func (d *dispatcher) Chunk(ctx context.Context, path string, content []byte) ([]Chunk, error) {
	if isMarkdownPath(path) {
		return d.markdown.Chunk(ctx, path, content)
	}
	if _, ok := languageForPath(path); ok {
		return d.code.Chunk(ctx, path, content)
	}
	return d.lines.Chunk(ctx, path, content)
}
