package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log lines.
const RedactedValue = "[REDACTED]"

// safeKeys may be logged verbatim. Everything else passed through MaskField
// is treated as a secret.
var safeKeys = map[string]struct{}{
	"service":   {},
	"env":       {},
	"component": {},
	"operation": {},
	"module":    {},
	"loan_id":   {},
	"outcome":   {},
	"status":    {},
	"path":      {},
	"error":     {},
}

func isSafeKey(key string) bool {
	_, ok := safeKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskValue returns RedactedValue for non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskAddress keeps the human readable prefix and the last four characters of
// a bech32 address so operators can correlate log lines without exposing the
// full principal.
func MaskAddress(addr string) string {
	trimmed := strings.TrimSpace(addr)
	idx := strings.LastIndex(trimmed, "1")
	if idx <= 0 || len(trimmed)-idx <= 4 {
		return MaskValue(trimmed)
	}
	return trimmed[:idx+1] + "…" + trimmed[len(trimmed)-4:]
}

// MaskField redacts value unless key is one of the known safe keys.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || isSafeKey(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
