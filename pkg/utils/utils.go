package utils

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateUUID generates a new UUID
func GenerateUUID() string {
	return uuid.New().String()
}

// TruncateString truncates string to specified length
func TruncateString(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length] + "..."
}

// NormalizeNotes trims whitespace and caps free-text notes so a client
// cannot push arbitrarily large payloads into the store.
func NormalizeNotes(notes string, maxLen int) string {
	trimmed := strings.TrimSpace(notes)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}

// FormatTime renders timestamps for API responses.
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
