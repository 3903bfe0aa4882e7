package errors

import (
	"fmt"
	"log/slog"
	"strings"
)

// FormatForCLI formats an error for terminal display.
// Run-fatal and partial-failure errors read differently on purpose: the
// former names the code, the latter stays on one line.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	we, ok := err.(*WeftError)
	if !ok {
		return fmt.Sprintf("Error: %s\n", err.Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", we.Message))

	if we.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", we.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", we.Code))

	return sb.String()
}

// LogAttrs converts an error into slog attributes for structured logging.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}

	we, ok := err.(*WeftError)
	if !ok {
		return []slog.Attr{slog.String("error", err.Error())}
	}

	attrs := []slog.Attr{
		slog.String("error_code", we.Code),
		slog.String("message", we.Message),
		slog.String("category", string(we.Category)),
		slog.String("severity", string(we.Severity)),
		slog.Bool("retryable", we.Retryable),
	}

	if we.Cause != nil {
		attrs = append(attrs, slog.String("cause", we.Cause.Error()))
	}
	for k, v := range we.Details {
		attrs = append(attrs, slog.String("detail_"+k, v))
	}

	return attrs
}
