package ingest

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	thinkTagRE  = regexp.MustCompile(`(?s)<think>.*?</think>`)
	jsonObjectRE = regexp.MustCompile(`(?s)\{.*\}`)
	fenceLineRE  = regexp.MustCompile(`(?m)^\s*` + "```" + `.*$`)
)

// stripCodeFences drops markdown fence lines from model output.
func stripCodeFences(text string) string {
	return fenceLineRE.ReplaceAllString(text, "")
}

// extractJSONObject unmarshals the outermost JSON object embedded in raw
// model output into v, tolerating <think> tags and code fences
//. Returns
// false when no parseable object could be found.
func extractJSONObject(raw string, v any) bool {
	cleaned := strings.TrimSpace(stripCodeFences(thinkTagRE.ReplaceAllString(raw, "")))
	if cleaned == "" {
		return false
	}
	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return true
	}
	if m := jsonObjectRE.FindString(cleaned); m != "" {
		if err := json.Unmarshal([]byte(m), v); err == nil {
			return true
		}
	}
	return false
}
