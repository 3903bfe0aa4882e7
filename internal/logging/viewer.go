package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Entry is one parsed JSON log line.
type Entry struct {
	Time  time.Time
	Level string
	Msg   string
	Attrs map[string]any

	// Raw is the original line, kept for pattern matching and for
	// printing lines that did not parse as JSON.
	Raw   string
	Valid bool
}

// ViewerOptions configures log filtering and rendering.
type ViewerOptions struct {
	// MinLevel drops entries below this level (debug, info, warn, error).
	// Empty shows everything.
	MinLevel string
	// Pattern drops lines it does not match. Matched against the raw line
	// so attribute values are searchable too.
	Pattern *regexp.Regexp
	// NoColor disables ANSI colors in FormatEntry.
	NoColor bool
}

// Viewer reads, filters, and renders weft's JSON log files.
type Viewer struct {
	opts ViewerOptions
	out  io.Writer
}

// NewViewer creates a viewer writing rendered entries to out.
func NewViewer(opts ViewerOptions, out io.Writer) *Viewer {
	return &Viewer{opts: opts, out: out}
}

// Tail returns the last n matching entries of the current log file.
// Rotated files are not read.
func (v *Viewer) Tail(path string, n int) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	var entries []Entry
	for _, line := range lines {
		entry := parseEntry(line)
		if v.matches(entry) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Follow streams matching entries appended to path until ctx is done.
// When the rotating writer renames the file out from under us, the
// follower reopens the fresh file from the start.
func (v *Viewer) Follow(ctx context.Context, path string, entries chan<- Entry) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReader(file)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				line, err := reader.ReadString('\n')
				if err != nil {
					break
				}
				line = strings.TrimSuffix(line, "\n")
				if line == "" {
					continue
				}
				entry := parseEntry(line)
				if !v.matches(entry) {
					continue
				}
				select {
				case entries <- entry:
				case <-ctx.Done():
					return nil
				}
			}

			if rotated(file, path) {
				fresh, err := os.Open(path)
				if err != nil {
					continue
				}
				_ = file.Close()
				file = fresh
				reader.Reset(file)
			}
		}
	}
}

// rotated reports whether path no longer names the open file.
func rotated(file *os.File, path string) bool {
	onDisk, err := os.Stat(path)
	if err != nil {
		// Mid-rotation the path can be briefly absent. Try again later.
		return false
	}
	open, err := file.Stat()
	if err != nil {
		return true
	}
	return !os.SameFile(onDisk, open)
}

// Print renders entries to the viewer's output.
func (v *Viewer) Print(entries []Entry) {
	for _, entry := range entries {
		_, _ = fmt.Fprintln(v.out, v.FormatEntry(entry))
	}
}

// FormatEntry renders one entry as "HH:MM:SS.mmm LEVEL msg k=v ...".
// Lines that did not parse come back verbatim.
func (v *Viewer) FormatEntry(entry Entry) string {
	if !entry.Valid {
		return entry.Raw
	}

	var b strings.Builder
	b.WriteString(entry.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(v.formatLevel(entry.Level))
	b.WriteByte(' ')
	b.WriteString(entry.Msg)

	keys := make([]string, 0, len(entry.Attrs))
	for k := range entry.Attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Attrs[k])
	}
	return b.String()
}

const (
	ansiGray   = "\033[90m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiReset  = "\033[0m"
)

func (v *Viewer) formatLevel(level string) string {
	padded := fmt.Sprintf("%-5s", strings.ToUpper(level))
	if len(padded) > 5 {
		padded = padded[:5]
	}
	if v.opts.NoColor {
		return padded
	}
	switch ParseLevel(level) {
	case slog.LevelDebug:
		return ansiGray + padded + ansiReset
	case slog.LevelWarn:
		return ansiYellow + padded + ansiReset
	case slog.LevelError:
		return ansiRed + padded + ansiReset
	default:
		return ansiGreen + padded + ansiReset
	}
}

// parseEntry parses one slog JSON line. Anything that is not JSON is
// kept raw so foreign lines still show up in output.
func parseEntry(line string) Entry {
	entry := Entry{Raw: line}

	var data map[string]any
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return entry
	}
	entry.Valid = true

	if t, ok := data["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			entry.Time = parsed
		}
	}
	if l, ok := data["level"].(string); ok {
		entry.Level = l
	}
	if m, ok := data["msg"].(string); ok {
		entry.Msg = m
	}

	entry.Attrs = make(map[string]any)
	for k, val := range data {
		switch k {
		case "time", "level", "msg":
		default:
			entry.Attrs[k] = val
		}
	}
	return entry
}

func (v *Viewer) matches(entry Entry) bool {
	if v.opts.MinLevel != "" && ParseLevel(entry.Level) < ParseLevel(v.opts.MinLevel) {
		return false
	}
	if v.opts.Pattern != nil && !v.opts.Pattern.MatchString(entry.Raw) {
		return false
	}
	return true
}
