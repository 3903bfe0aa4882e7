//go:build ignore

// Generates a synthetic mixed-language project tree for exercising the
// indexer at scale. Output is deterministic for a given seed, so runs
// against the same corpus stay comparable.
//
// Usage:
//
//	go run scripts/generate-test-corpus.go -files 500 -dir /tmp/weft-corpus
//	cd /tmp/weft-corpus && weft index
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	fileCount = flag.Int("files", 500, "number of source files to generate")
	outDir    = flag.String("dir", "/tmp/weft-corpus", "output directory")
	seed      = flag.Int64("seed", 1, "random seed")
)

var (
	nouns = []string{
		"Ledger", "Planner", "Broker", "Registry", "Archiver",
		"Resolver", "Throttle", "Courier", "Snapshot", "Gatekeeper",
		"Replayer", "Collator", "Drainer", "Forwarder", "Journal",
	}
	verbs = []string{
		"Apply", "Merge", "Drain", "Replay", "Collect",
		"Forward", "Resolve", "Settle", "Publish", "Reconcile",
	}
	domains = []string{
		"billing", "inventory", "telemetry", "routing", "quota",
		"payments", "audit", "shipping", "scheduling", "retention",
	}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := generate(rng); err != nil {
		fmt.Fprintln(os.Stderr, "generate-test-corpus:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d files under %s\n", *fileCount, *outDir)
}

func generate(rng *rand.Rand) error {
	if err := writeFixed(); err != nil {
		return err
	}

	for i := 0; i < *fileCount; i++ {
		noun := nouns[rng.Intn(len(nouns))]
		verb := verbs[rng.Intn(len(verbs))]
		domain := domains[rng.Intn(len(domains))]

		var path, content string
		// Deterministic mix: 40% Go, 25% TypeScript, 20% Python,
		// 15% markdown. Only the words vary with the seed.
		switch b := i % 20; {
		case b < 8:
			path = filepath.Join("internal", strings.ToLower(noun), fmt.Sprintf("%s_%d.go", strings.ToLower(verb), i))
			content = goFile(strings.ToLower(noun), noun, verb, domain, rng.Intn(3))
		case b < 13:
			path = filepath.Join("web", "src", fmt.Sprintf("%s%d.ts", noun, i))
			content = tsFile(noun, verb, domain)
		case b < 17:
			path = filepath.Join("tools", fmt.Sprintf("%s_%d.py", strings.ToLower(noun), i))
			content = pyFile(noun, strings.ToLower(verb), domain)
		default:
			path = filepath.Join("docs", fmt.Sprintf("%s-%d.md", strings.ToLower(noun), i))
			content = mdFile(noun, verb, domain)
		}

		full := filepath.Join(*outDir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// writeFixed lays down the parts every corpus needs exactly once: a
// README, a .gitignore, and some ignored build output that a correct
// scan must skip.
func writeFixed() error {
	files := map[string]string{
		"README.md":      "# Corpus\n\nSynthetic project for indexing benchmarks.\n",
		".gitignore":     "build/\n*.log\n",
		"build/out.txt":  "compiled artifact, never indexed\n",
		"build/dump.log": "log output, never indexed\n",
	}
	for path, content := range files {
		full := filepath.Join(*outDir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func goFile(pkg, noun, verb, domain string, helpers int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "package %s\n\n", pkg)
	b.WriteString("import (\n\t\"context\"\n\t\"fmt\"\n)\n\n")
	fmt.Fprintf(&b, "// %s coordinates %s for the service.\n", noun, domain)
	fmt.Fprintf(&b, "type %s struct {\n\tname  string\n\tlimit int\n}\n\n", noun)
	fmt.Fprintf(&b, "// New%s returns a %s bounded to limit entries.\n", noun, noun)
	fmt.Fprintf(&b, "func New%s(name string, limit int) *%s {\n\treturn &%s{name: name, limit: limit}\n}\n\n", noun, noun, noun)
	fmt.Fprintf(&b, "// %s applies one %s pass.\n", verb, domain)
	fmt.Fprintf(&b, "func (x *%s) %s(ctx context.Context, input string) (string, error) {\n", noun, verb)
	b.WriteString("\tif err := ctx.Err(); err != nil {\n\t\treturn \"\", err\n\t}\n")
	b.WriteString("\treturn fmt.Sprintf(\"%s:%s\", x.name, input), nil\n}\n")
	for h := 0; h < helpers; h++ {
		fmt.Fprintf(&b, "\nfunc (x *%s) helper%d() int {\n\treturn x.limit + %d\n}\n", noun, h, h)
	}
	return b.String()
}

func tsFile(noun, verb, domain string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "export interface %sOptions {\n  name: string;\n  limit: number;\n}\n\n", noun)
	fmt.Fprintf(&b, "/** Tracks %s state for the dashboard. */\n", domain)
	fmt.Fprintf(&b, "export class %s {\n", noun)
	b.WriteString("  private entries: string[] = [];\n\n")
	fmt.Fprintf(&b, "  constructor(private options: %sOptions) {}\n\n", noun)
	fmt.Fprintf(&b, "  %s(input: string): string {\n", strings.ToLower(verb))
	b.WriteString("    this.entries.push(input);\n")
	b.WriteString("    return `${this.options.name}:${input}`;\n  }\n}\n\n")
	fmt.Fprintf(&b, "export function create%s(name: string): %s {\n", noun, noun)
	fmt.Fprintf(&b, "  return new %s({ name, limit: 100 });\n}\n", noun)
	return b.String()
}

func pyFile(noun, verb, domain string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\"\"\"%s helpers for the %s pipeline.\"\"\"\n\n", noun, domain)
	b.WriteString("import logging\n\nlogger = logging.getLogger(__name__)\n\n\n")
	fmt.Fprintf(&b, "class %s:\n", noun)
	fmt.Fprintf(&b, "    \"\"\"Carries %s state between runs.\"\"\"\n\n", domain)
	b.WriteString("    def __init__(self, name: str, limit: int = 100) -> None:\n")
	b.WriteString("        self.name = name\n        self.limit = limit\n        self.entries: list[str] = []\n\n")
	fmt.Fprintf(&b, "    def %s(self, value: str) -> str:\n", verb)
	b.WriteString("        self.entries.append(value)\n")
	b.WriteString("        return f\"{self.name}:{value}\"\n\n\n")
	fmt.Fprintf(&b, "def build_%s(name: str) -> %s:\n", strings.ToLower(noun), noun)
	fmt.Fprintf(&b, "    return %s(name)\n", noun)
	return b.String()
}

func mdFile(noun, verb, domain string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\nHow the %s layer fits together.\n\n", noun, domain)
	fmt.Fprintf(&b, "## %s flow\n\n", verb)
	fmt.Fprintf(&b, "Each run collects pending %s entries, applies the %s pass,\nand records the outcome in the journal.\n\n", domain, strings.ToLower(verb))
	b.WriteString("## Operations\n\nAlerts fire when the backlog exceeds the configured limit.\nDrain manually before changing retention settings.\n")
	return b.String()
}
