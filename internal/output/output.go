// Package output formats the one-line statuses, warnings, and summaries
// that CLI commands print. Progress rendering is internal/ui's job; this
// writer covers everything around it.
package output

import (
	"fmt"
	"io"
)

// Writer prints human-facing CLI lines with weft's plain-text markers.
// Write errors are ignored; console output is best effort.
type Writer struct {
	out io.Writer
}

// New creates a Writer that prints to out.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Line prints a plain line.
func (w *Writer) Line(msg string) {
	_, _ = fmt.Fprintln(w.out, msg)
}

// Linef prints a formatted plain line.
func (w *Writer) Linef(format string, args ...any) {
	w.Line(fmt.Sprintf(format, args...))
}

// Detail prints an indented secondary line under a preceding status.
func (w *Writer) Detail(msg string) {
	_, _ = fmt.Fprintf(w.out, "  %s\n", msg)
}

// Detailf prints a formatted secondary line.
func (w *Writer) Detailf(format string, args ...any) {
	w.Detail(fmt.Sprintf(format, args...))
}

// Success prints msg under the [OK] marker.
func (w *Writer) Success(msg string) {
	_, _ = fmt.Fprintf(w.out, "[OK] %s\n", msg)
}

// Successf prints a formatted success line.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints msg under the WARN marker.
func (w *Writer) Warning(msg string) {
	_, _ = fmt.Fprintf(w.out, "WARN: %s\n", msg)
}

// Warningf prints a formatted warning line.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints msg under the ERROR marker.
func (w *Writer) Error(msg string) {
	_, _ = fmt.Fprintf(w.out, "ERROR: %s\n", msg)
}

// Errorf prints a formatted error line.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
