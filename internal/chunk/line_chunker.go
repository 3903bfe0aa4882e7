package chunk

import (
	"context"
	"strings"
)

// LineChunker splits any text into fixed-size line windows with
// overlap. It is the fallback for files without a grammar and the
// splitting rule for oversized declarations.
type LineChunker struct {
	opts Options
}

func NewLineChunker(opts Options) *LineChunker {
	return &LineChunker{opts: opts.withDefaults()}
}

var _ Chunker = (*LineChunker)(nil)

func (l *LineChunker) Chunk(ctx context.Context, path string, content []byte) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return nil, nil
	}
	return windowChunks(content, LanguageName(path), "", l.opts), nil
}
