package lexical

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	tokenizerName  = "weft_code_terms"
	stopFilterName = "weft_code_stop"
	analyzerName   = "weft_code"
)

func init() {
	// The bleve registry is global; a second registration of the same
	// name fails, which is fine for repeated test setup.
	_ = registry.RegisterTokenizer(tokenizerName, newCodeTokenizer)
	_ = registry.RegisterTokenFilter(stopFilterName, newStopFilter)
}

// wordPattern cuts raw text into identifier-shaped runs before the
// camelCase and snake_case split.
var wordPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// Tokenize splits text with identifier-aware rules: runs of punctuation
// separate words, then camelCase, PascalCase, and snake_case identifiers
// are broken into their parts. Tokens are lowercased; tokens shorter than
// two characters are dropped.
func Tokenize(text string) []string {
	var tokens []string
	for _, word := range wordPattern.FindAllString(text, -1) {
		for _, part := range splitIdentifier(word) {
			lower := strings.ToLower(part)
			if len(lower) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

// splitIdentifier breaks snake_case first, then case humps within each
// part, so "parse_HTTPRequest" yields parse, HTTP, Request.
func splitIdentifier(token string) []string {
	if !strings.Contains(token, "_") {
		return splitHumps(token)
	}
	var parts []string
	for _, p := range strings.Split(token, "_") {
		if p != "" {
			parts = append(parts, splitHumps(p)...)
		}
	}
	return parts
}

// splitHumps splits on lower-to-upper boundaries and before the last
// capital of an acronym run, keeping "HTTPHandler" as HTTP + Handler.
func splitHumps(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if (prevLower || nextLower) && current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

// stopTerms are identifier fragments so common in source code that they
// carry no ranking signal.
var stopTerms = stopSet(
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
)

func stopSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

type codeTokenizer struct{}

func newCodeTokenizer(_ map[string]interface{}, _ *registry.Cache) (analysis.Tokenizer, error) {
	return codeTokenizer{}, nil
}

// Tokenize adapts Tokenize's terms into a bleve token stream, locating
// each term in the original text so match highlighting works.
func (codeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	lower := strings.ToLower(text)
	terms := Tokenize(text)

	stream := make(analysis.TokenStream, 0, len(terms))
	pos := 1
	offset := 0
	for _, term := range terms {
		start := strings.Index(lower[offset:], term)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(term)

		stream = append(stream, &analysis.Token{
			Term:     []byte(term),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}
	return stream
}

type stopFilter struct{}

func newStopFilter(_ map[string]interface{}, _ *registry.Cache) (analysis.TokenFilter, error) {
	return stopFilter{}, nil
}

func (stopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	kept := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, stop := stopTerms[strings.ToLower(string(token.Term))]; !stop {
			kept = append(kept, token)
		}
	}
	return kept
}
