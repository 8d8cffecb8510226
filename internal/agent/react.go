package agent

import (
	"regexp"
	"strings"
)

// ReActAction is a parsed Action/Action Input pair from a sub-agent's
// free-text response. The model speaks a strict Thought/Action/Action
// Input/Final Answer protocol rather than native tool-calling, so the
// grammar is a handful of line-anchored regexes.
type ReActAction struct {
	Tool    string
	Input   string
	Thought string
}

var (
	actionRE     = regexp.MustCompile(`(?im)^Action\s*:\s*(.+?)\s*(?:\n\s*|\s+)Action\s*Input\s*:\s*([^\n\r]+)`)
	thoughtRE    = regexp.MustCompile(`(?im)^Thought\s*:\s*([^\n\r]+)`)
	finalStartRE = regexp.MustCompile(`(?im)^Final\s*Answer\s*:\s*`)
	nextMarkerRE = regexp.MustCompile(`(?im)^(?:Thought|Action|Observation)\s*:`)
)

// stripCodeFences drops markdown fence lines: entire lines whose trimmed
// content starts with ``` are removed, everything else is kept verbatim.
func stripCodeFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

// parseReActAction extracts the Action/Action Input pair from text. When
// multiple Action blocks are present (the model echoing a format example
// before its real call), the last one wins; if allowedTools is non-empty,
// the last action whose tool name is in that set wins instead, so an
// echoed example naming an unknown tool doesn't shadow the real call.
func parseReActAction(text string, allowedTools map[string]bool) *ReActAction {
	matches := actionRE.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	if len(allowedTools) > 0 {
		for i := len(matches) - 1; i >= 0; i-- {
			if action := actionAt(text, matches[i]); allowedTools[action.Tool] {
				return action
			}
		}
	}

	return actionAt(text, matches[len(matches)-1])
}

func actionAt(text string, match []int) *ReActAction {
	return &ReActAction{
		Tool:    strings.TrimSpace(text[match[2]:match[3]]),
		Input:   strings.TrimSpace(text[match[4]:match[5]]),
		Thought: thoughtBefore(text, match[0]),
	}
}

// thoughtBefore returns the last Thought line that precedes offset, so the
// tool-call event carries the reasoning that led to it rather than a
// thought from an earlier echoed example.
func thoughtBefore(text string, offset int) string {
	var thought string
	for _, m := range thoughtRE.FindAllStringSubmatchIndex(text, -1) {
		if m[0] >= offset {
			break
		}
		thought = strings.TrimSpace(text[m[2]:m[3]])
	}
	return thought
}

// parseFinalAnswer extracts the Final Answer block, or returns ("", false)
// when the text carries no such marker. Go's RE2 engine has no lookahead,
// so the "stop before the next Thought/Action/Observation marker" rule is
// an explicit scan for the next marker rather than a single regex.
func parseFinalAnswer(text string) (string, bool) {
	loc := finalStartRE.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	rest := text[loc[1]:]
	if next := nextMarkerRE.FindStringIndex(rest); next != nil {
		rest = rest[:next[0]]
	}
	return strings.TrimSpace(rest), true
}
