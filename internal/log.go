package internal

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Logf writes one human readable line, used for CLI output.
func Logf(w io.Writer, prefix string, cal *Calendar, format string, a ...any) {
	parts := []string{}
	if prefix != "" {
		parts = append(parts, prefix)
	}
	if cal != nil {
		parts = append(parts, fmt.Sprintf("Calendar %s:", cal))
	}
	parts = append(parts, fmt.Sprintf(format, a...))
	fmt.Fprintln(w, strings.Join(parts, " "))
}

func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
