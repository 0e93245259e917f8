package dispatch

import (
	"strings"
	"testing"
)

func TestSanitizeRedactsSensitiveKeys(t *testing.T) {
	in := map[string]any{
		"app_secret": "super-secret-value",
		"api_token":  "tok-123",
		"name":       "visible",
	}
	out := sanitize(in).(map[string]any)

	if out["app_secret"] != "***" {
		t.Errorf("expected app_secret redacted, got %v", out["app_secret"])
	}
	if out["api_token"] != "***" {
		t.Errorf("expected api_token redacted, got %v", out["api_token"])
	}
	if out["name"] != "visible" {
		t.Errorf("expected name untouched, got %v", out["name"])
	}
}

func TestSanitizeRecursesIntoNestedStructures(t *testing.T) {
	in := map[string]any{
		"items": []any{
			map[string]any{"password": "hunter2"},
		},
	}
	out := sanitize(in).(map[string]any)
	items := out["items"].([]any)
	nested := items[0].(map[string]any)

	if nested["password"] != "***" {
		t.Errorf("expected nested password redacted, got %v", nested["password"])
	}
}

func TestTruncateLeavesShortStringsUnchanged(t *testing.T) {
	s := "short string"
	if got := truncate(s); got != s {
		t.Errorf("expected no truncation, got %q", got)
	}
}

func TestTruncateCutsLongStringsWithEllipsis(t *testing.T) {
	long := strings.Repeat("a", truncateMax+50)
	got := truncate(long)

	if len(got) != truncateMax+len("...") {
		t.Errorf("expected truncated length %d, got %d", truncateMax+3, len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis suffix")
	}
}

func TestIsSensitiveKeyCaseInsensitive(t *testing.T) {
	if !isSensitiveKey("AppSecret") {
		t.Errorf("expected case-insensitive match on AppSecret")
	}
	if isSensitiveKey("name") {
		t.Errorf("did not expect name to be flagged sensitive")
	}
}
