package chunk

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// language binds a tree-sitter grammar to the node types that mark
// top-level declaration boundaries.
type language struct {
	name    string
	sitter  *sitter.Language
	comment string // line comment prefix, for attaching doc comments

	// declTypes are the top-level node types a chunk boundary is cut at.
	declTypes map[string]bool
}

var goLang = &language{
	name:    "go",
	sitter:  golang.GetLanguage(),
	comment: "//",
	declTypes: map[string]bool{
		"function_declaration": true,
		"method_declaration":   true,
		"type_declaration":     true,
		"const_declaration":    true,
		"var_declaration":      true,
	},
}

var pythonLang = &language{
	name:    "python",
	sitter:  python.GetLanguage(),
	comment: "#",
	declTypes: map[string]bool{
		"function_definition":  true,
		"class_definition":     true,
		"decorated_definition": true,
	},
}

var javascriptLang = &language{
	name:    "javascript",
	sitter:  javascript.GetLanguage(),
	comment: "//",
	declTypes: map[string]bool{
		"function_declaration": true,
		"class_declaration":    true,
		"lexical_declaration":  true,
		"variable_declaration": true,
		"export_statement":     true,
	},
}

var typescriptLang = &language{
	name:    "typescript",
	sitter:  typescript.GetLanguage(),
	comment: "//",
	declTypes: map[string]bool{
		"function_declaration":   true,
		"class_declaration":      true,
		"interface_declaration":  true,
		"type_alias_declaration": true,
		"enum_declaration":       true,
		"lexical_declaration":    true,
		"variable_declaration":   true,
		"export_statement":       true,
	},
}

// tsxLang shares typescript's declaration set but parses JSX syntax.
var tsxLang = &language{
	name:      "typescript",
	sitter:    tsx.GetLanguage(),
	comment:   "//",
	declTypes: typescriptLang.declTypes,
}

var extToLanguage = map[string]*language{
	".go":  goLang,
	".py":  pythonLang,
	".js":  javascriptLang,
	".mjs": javascriptLang,
	".jsx": javascriptLang,
	".ts":  typescriptLang,
	".tsx": tsxLang,
}

// languageForPath resolves the grammar for a file path by extension.
func languageForPath(path string) (*language, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := extToLanguage[ext]
	return lang, ok
}

// LanguageName reports the language recorded for a path: a grammar name
// for supported code, "markdown" for markdown, "text" otherwise.
func LanguageName(path string) string {
	if isMarkdownPath(path) {
		return "markdown"
	}
	if lang, ok := languageForPath(path); ok {
		return lang.name
	}
	return "text"
}

func isMarkdownPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// SupportedExtensions lists the extensions with tree-sitter grammars.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extToLanguage))
	for ext := range extToLanguage {
		exts = append(exts, ext)
	}
	return exts
}
