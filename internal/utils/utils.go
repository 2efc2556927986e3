// Package utils provides shared low-level helpers used throughout the
// internals: string truncation for log output and close-with-log handling
// for deferred io.Closer calls.
package utils

import (
	"fmt"
	"io"
	"log/slog"
)

// DefaultMaxStringLength is the default maximum length for truncated strings
const DefaultMaxStringLength = 500

// TruncateString shortens s to at most maxLen characters, appending a suffix
// that records the original total length so callers know data was omitted.
// If maxLen is zero or negative, [DefaultMaxStringLength] is used instead.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxStringLength
	}
	if len(s) <= maxLen {
		return s
	}
	return fmt.Sprintf("%s... (truncated, total: %d chars)", s[:maxLen], len(s))
}

// CloseWithLog closes the given closer and logs a warning when Close fails.
// Intended for defer statements where the close error cannot be returned.
func CloseWithLog(closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		slog.Warn("failed to close resource", "error", err)
	}
}
