package chunk

import (
	"context"
	"strings"
)

// MarkdownChunker cuts markdown at ATX headings so each chunk is a
// section, with the same packing and window rules as code. Headings
// inside fenced code blocks are not boundaries.
type MarkdownChunker struct {
	opts Options
}

func NewMarkdownChunker(opts Options) *MarkdownChunker {
	return &MarkdownChunker{opts: opts.withDefaults()}
}

var _ Chunker = (*MarkdownChunker)(nil)

func (m *MarkdownChunker) Chunk(ctx context.Context, path string, content []byte) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return nil, nil
	}

	lines := splitContentLines(content)
	cuts := headingCuts(lines)
	segments := segmentsFromCuts(cuts, len(lines), "", lines)
	packed := packSegments(segments, m.opts.MaxLines)

	var chunks []Chunk
	for _, seg := range packed {
		chunks = append(chunks, emitSegment(seg, lines, "markdown", m.opts)...)
	}
	return chunks, nil
}

// headingCuts returns a cut per ATX heading outside fenced code blocks.
func headingCuts(lines []string) []cut {
	var cuts []cut
	inFence := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if heading, ok := headingText(trimmed); ok {
			cuts = append(cuts, cut{line: i + 1, symbol: heading})
		}
	}
	return cuts
}

// headingText extracts the title of an ATX heading line.
func headingText(line string) (string, bool) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level == len(line) {
		return "", false
	}
	if line[level] != ' ' && line[level] != '\t' {
		return "", false
	}
	return strings.TrimSpace(strings.Trim(line[level:], "#")), true
}
