package dispatch

import "strings"

// truncateMax bounds any single logged string field; the spec's window
// is 500-800 chars, so cut at the high end with an explicit ellipsis.
const truncateMax = 800

// sensitiveMarkers are matched as a case-insensitive substring of a
// payload key; a match redacts the whole value regardless of type.
var sensitiveMarkers = []string{"secret", "token", "password"}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// sanitize walks a decoded JSON value (map[string]any / []any / scalars),
// replacing any map value whose key matches a sensitive marker with
// "***", recursively, and truncating long strings for the log preview.
func sanitize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			if isSensitiveKey(k) {
				out[k] = "***"
				continue
			}
			out[k] = sanitize(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = sanitize(child)
		}
		return out
	case string:
		return truncate(val)
	default:
		return val
	}
}

func truncate(s string) string {
	if len(s) <= truncateMax {
		return s
	}
	return s[:truncateMax] + "..."
}
