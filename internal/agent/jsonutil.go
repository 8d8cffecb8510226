package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	thinkTagRE  = regexp.MustCompile(`(?s)<think>.*?</think>`)
	jsonObjectRE = regexp.MustCompile(`(?s)\{.*\}`)
	jsonArrayRE  = regexp.MustCompile(`(?s)\[.*\]`)
)

// extractJSON unmarshals the outermost JSON value embedded in raw model
// output into v, tolerating <think> reasoning tags, code fences, and
// leading/trailing prose around the JSON, for objects and arrays alike.
// Returns false when no parseable JSON value could be found.
func extractJSON(raw string, v any) bool {
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
	if m := jsonArrayRE.FindString(cleaned); m != "" {
		if err := json.Unmarshal([]byte(m), v); err == nil {
			return true
		}
	}
	return false
}
