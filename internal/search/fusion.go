package search

import (
	"sort"

	"github.com/weftlabs/weft/internal/lexical"
	"github.com/weftlabs/weft/internal/vectorstore"
)

// DefaultRRFConstant is the standard RRF smoothing parameter; k=60 is
// the widely used default.
const DefaultRRFConstant = 60

// fuse merges the vector and keyword rankings with reciprocal rank
// fusion: score(d) = sum over sources of 1/(k + rank). A document
// missing from one source is charged a phantom rank one past the longer
// list, so appearing in a single list is never better than appearing
// low in both. The top hit's score is normalized to 1.
//
// Ties break toward documents in both lists, then higher keyword score
// (an exact-match signal), then chunk ID for determinism.
func fuse(vec []vectorstore.SearchResult, lex []lexical.Result, k int) []Result {
	if len(vec) == 0 && len(lex) == 0 {
		return nil
	}
	if k <= 0 {
		k = DefaultRRFConstant
	}

	hits := make(map[string]*Result, len(vec)+len(lex))
	vecRank := make(map[string]int, len(vec))
	lexRank := make(map[string]int, len(lex))

	get := func(id string) *Result {
		if r, ok := hits[id]; ok {
			return r
		}
		r := &Result{ChunkID: id}
		hits[id] = r
		return r
	}

	for i, h := range vec {
		r := get(h.ID)
		r.Path = h.Path
		r.Language = h.Language
		r.StartLine = h.StartLine
		r.EndLine = h.EndLine
		r.Content = h.Content
		r.VectorScore = float64(h.Score)
		vecRank[h.ID] = i + 1
		r.Score += 1 / float64(k+i+1)
	}

	for i, h := range lex {
		r := get(h.ID)
		if r.Path == "" {
			r.Path = h.Path
			r.Language = h.Language
			r.StartLine = h.StartLine
			r.EndLine = h.EndLine
			r.Content = h.Content
		}
		r.LexicalScore = h.Score
		r.Matched = h.Matched
		lexRank[h.ID] = i + 1
		r.Score += 1 / float64(k+i+1)
	}

	phantom := max(len(vec), len(lex)) + 1
	for id, r := range hits {
		if _, ok := vecRank[id]; !ok {
			r.Score += 1 / float64(k+phantom)
		}
		if _, ok := lexRank[id]; !ok {
			r.Score += 1 / float64(k+phantom)
		}
	}

	out := make([]Result, 0, len(hits))
	for _, r := range hits {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		aBoth := vecRank[a.ChunkID] > 0 && lexRank[a.ChunkID] > 0
		bBoth := vecRank[b.ChunkID] > 0 && lexRank[b.ChunkID] > 0
		if aBoth != bBoth {
			return aBoth
		}
		if a.LexicalScore != b.LexicalScore {
			return a.LexicalScore > b.LexicalScore
		}
		return a.ChunkID < b.ChunkID
	})

	if top := out[0].Score; top > 0 {
		for i := range out {
			out[i].Score /= top
		}
	}
	return out
}
