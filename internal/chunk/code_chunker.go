package chunk

import (
	"context"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// CodeChunker cuts source files at top-level declaration boundaries so
// each chunk holds whole functions, types, or classes. Declarations are
// packed greedily into chunks up to MaxLines; a single oversized
// declaration is split into overlapping line windows. Content that
// fails to parse falls back to plain line windows.
type CodeChunker struct {
	opts Options
}

func NewCodeChunker(opts Options) *CodeChunker {
	return &CodeChunker{opts: opts.withDefaults()}
}

var _ Chunker = (*CodeChunker)(nil)

func (c *CodeChunker) Chunk(ctx context.Context, path string, content []byte) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return nil, nil
	}

	lang, ok := languageForPath(path)
	if !ok {
		return windowChunks(content, LanguageName(path), "", c.opts), nil
	}

	cuts, err := declarationCuts(ctx, lang, content)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		// Unparseable content still gets indexed, just without
		// declaration awareness.
		return windowChunks(content, lang.name, "", c.opts), nil
	}

	lines := splitContentLines(content)
	segments := segmentsFromCuts(cuts, len(lines), lang.comment, lines)
	packed := packSegments(segments, c.opts.MaxLines)

	var chunks []Chunk
	for _, seg := range packed {
		chunks = append(chunks, emitSegment(seg, lines, lang.name, c.opts)...)
	}
	return chunks, nil
}

// cut marks a declaration boundary.
type cut struct {
	line   int // 1-indexed line the declaration starts on
	symbol string
}

// declarationCuts parses the content and returns a cut for each
// top-level declaration node.
func declarationCuts(ctx context.Context, lang *language, content []byte) ([]cut, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang.sitter)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	var cuts []cut
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		if !lang.declTypes[node.Type()] {
			continue
		}
		cuts = append(cuts, cut{
			line:   int(node.StartPoint().Row) + 1,
			symbol: declarationName(node, content),
		})
	}
	return cuts, nil
}

// declarationName digs the identifier out of a declaration node. Wrapper
// nodes (decorators, exports) are unwrapped; grouped declarations yield
// their first name.
func declarationName(n *sitter.Node, source []byte) string {
	switch n.Type() {
	case "decorated_definition":
		if def := n.ChildByFieldName("definition"); def != nil {
			return declarationName(def, source)
		}
	case "export_statement":
		if decl := n.ChildByFieldName("declaration"); decl != nil {
			return declarationName(decl, source)
		}
	case "type_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "type_spec" || child.Type() == "type_alias" {
				if name := child.ChildByFieldName("name"); name != nil {
					return name.Content(source)
				}
			}
		}
	case "const_declaration", "var_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "const_spec" || child.Type() == "var_spec" {
				if name := child.ChildByFieldName("name"); name != nil {
					return name.Content(source)
				}
			}
		}
	case "lexical_declaration", "variable_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "variable_declarator" {
				if name := child.ChildByFieldName("name"); name != nil {
					return name.Content(source)
				}
			}
		}
	}
	if name := n.ChildByFieldName("name"); name != nil {
		return name.Content(source)
	}
	return ""
}

// segment is a contiguous line range owned by at most one declaration.
type segment struct {
	start  int // 1-indexed inclusive
	end    int
	symbol string
}

// segmentsFromCuts tiles the whole file into segments split at the cut
// lines. Each cut is first extended upward over contiguous line comments
// so doc comments stay with their declaration. The tiling is complete:
// every line belongs to exactly one segment.
func segmentsFromCuts(cuts []cut, totalLines int, commentPrefix string, lines []string) []segment {
	if totalLines == 0 {
		return nil
	}

	sort.Slice(cuts, func(i, j int) bool { return cuts[i].line < cuts[j].line })

	adjusted := make([]cut, 0, len(cuts))
	seen := make(map[int]bool)
	for _, c := range cuts {
		line := c.line
		for line > 1 {
			above := strings.TrimSpace(lines[line-2])
			if commentPrefix == "" || !strings.HasPrefix(above, commentPrefix) {
				break
			}
			line--
		}
		if line < 1 || line > totalLines || seen[line] {
			continue
		}
		seen[line] = true
		adjusted = append(adjusted, cut{line: line, symbol: c.symbol})
	}
	sort.Slice(adjusted, func(i, j int) bool { return adjusted[i].line < adjusted[j].line })

	var segments []segment
	prev := segment{start: 1}
	for _, c := range adjusted {
		if c.line <= prev.start {
			// Declaration at (or folded into) the segment start names it.
			if prev.symbol == "" {
				prev.symbol = c.symbol
			}
			continue
		}
		prev.end = c.line - 1
		segments = append(segments, prev)
		prev = segment{start: c.line, symbol: c.symbol}
	}
	prev.end = totalLines
	segments = append(segments, prev)
	return segments
}

// packSegments merges adjacent segments while the merged span stays
// within maxLines, so small declarations share a chunk.
func packSegments(segments []segment, maxLines int) []segment {
	var packed []segment
	for _, seg := range segments {
		if len(packed) > 0 {
			last := &packed[len(packed)-1]
			if seg.end-last.start+1 <= maxLines {
				last.end = seg.end
				if last.symbol == "" {
					last.symbol = seg.symbol
				}
				continue
			}
		}
		packed = append(packed, seg)
	}
	return packed
}

// emitSegment turns a segment into chunks: one chunk when it fits,
// overlapping windows when it does not.
func emitSegment(seg segment, lines []string, langName string, opts Options) []Chunk {
	size := seg.end - seg.start + 1
	if size <= opts.MaxLines {
		return []Chunk{{
			Content:   strings.Join(lines[seg.start-1:seg.end], "\n"),
			StartLine: seg.start,
			EndLine:   seg.end,
			Language:  langName,
			Symbol:    seg.symbol,
		}}
	}

	var chunks []Chunk
	step := opts.MaxLines - opts.OverlapLines
	if step < 1 {
		step = 1
	}
	for offset := 0; ; offset += step {
		start := seg.start + offset
		end := start + opts.MaxLines - 1
		if end > seg.end {
			end = seg.end
		}
		chunks = append(chunks, Chunk{
			Content:   strings.Join(lines[start-1:end], "\n"),
			StartLine: start,
			EndLine:   end,
			Language:  langName,
			Symbol:    seg.symbol,
		})
		if end >= seg.end {
			break
		}
	}
	return chunks
}

// splitContentLines splits content into lines, dropping a single
// trailing empty line from a final newline.
func splitContentLines(content []byte) []string {
	lines := strings.Split(string(content), "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// windowChunks is the declaration-agnostic fallback: fixed-size line
// windows with overlap.
func windowChunks(content []byte, langName, symbol string, opts Options) []Chunk {
	if len(strings.TrimSpace(string(content))) == 0 {
		return nil
	}
	lines := splitContentLines(content)
	return emitSegment(segment{start: 1, end: len(lines), symbol: symbol}, lines, langName, opts)
}
