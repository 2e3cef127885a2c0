package deadletter

import (
	"fmt"
	"sort"
	"strings"
)

const maxStringLength = 64

// sensitiveKeySubstrings flags fields whose values are always masked.
var sensitiveKeySubstrings = []string{"token", "secret", "password", "credential", "apikey", "api_key"}

// Redact produces the persistable view of a failed input document. Top-level
// envelope metadata is kept (truncated), sensitive values are masked, and the
// payload is replaced with a shape summary so no raw content survives.
func Redact(document map[string]any) map[string]any {
	if document == nil {
		return nil
	}
	redacted := make(map[string]any, len(document))
	for key, value := range document {
		switch {
		case isSensitiveKey(key):
			redacted[key] = "[redacted]"
		case key == "payload":
			redacted[key] = summarize(value)
		default:
			redacted[key] = redactValue(value)
		}
	}
	return redacted
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range sensitiveKeySubstrings {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case string:
		return truncate(typed)
	case map[string]any:
		inner := make(map[string]any, len(typed))
		for key, nested := range typed {
			if isSensitiveKey(key) {
				inner[key] = "[redacted]"
				continue
			}
			inner[key] = redactValue(nested)
		}
		return inner
	case []any:
		return fmt.Sprintf("[list of %d]", len(typed))
	default:
		return value
	}
}

// summarize replaces a payload with its key names and rough size, never its
// values.
func summarize(value any) any {
	payload, ok := value.(map[string]any)
	if !ok {
		return fmt.Sprintf("[%T]", value)
	}
	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return map[string]any{
		"keys":  keys,
		"count": len(payload),
	}
}

func truncate(value string) string {
	if len(value) <= maxStringLength {
		return value
	}
	return value[:maxStringLength] + "…(truncated)"
}
