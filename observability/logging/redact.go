package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in logs.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":        {},
	"env":            {},
	"component":      {},
	"listen_address": {},
	"data_dir":       {},
	"genesis_file":   {},
	"otel_endpoint":  {},
}

// IsAllowlisted reports whether key may be logged in clear.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField returns an attr that redacts value unless key is allowlisted.
// Empty values are kept as is.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
