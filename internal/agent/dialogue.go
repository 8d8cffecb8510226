package agent

import (
	"fmt"
	"strings"

	"algokg.app/core/internal/model"
)

const maxDialogueRounds = 5

// internalPrefixes mark an assistant message as internal trajectory
// (Planner/Aggregator/Judge scratch output) rather than a user-facing
// final answer; only the latter belongs in prompt context.
var internalPrefixes = []string{"[Plan]", "[Aggregated Results]", "[Quality Review]"}

func isInternalAssistantMessage(content string) bool {
	for _, p := range internalPrefixes {
		if strings.HasPrefix(content, p) {
			return true
		}
	}
	return false
}

func truncateText(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return strings.TrimRight(string(runes[:maxChars]), " \t\n") + "…"
}

type dialogueRound struct {
	question string
	answer   string
}

// extractRecentDialogueRounds pulls (user question, final answer) pairs
// from the session history, skipping internal trajectory messages, and
// keeps at most maxRounds of the most recent ones.
func extractRecentDialogueRounds(history []model.Message, maxRounds int) []dialogueRound {
	var rounds []dialogueRound
	var pending string
	havePending := false

	for _, m := range history {
		if m.Role == model.RoleUser {
			text := strings.TrimSpace(m.Content)
			if text != "" {
				pending = text
				havePending = true
			}
			continue
		}
		if m.Role != model.RoleAssistant || !havePending {
			continue
		}
		text := strings.TrimSpace(m.Content)
		if text == "" || isInternalAssistantMessage(text) {
			continue
		}
		rounds = append(rounds, dialogueRound{
			question: truncateText(pending, 2000),
			answer:   truncateText(text, 2000),
		})
		havePending = false
	}

	if maxRounds > 0 && len(rounds) > maxRounds {
		rounds = rounds[len(rounds)-maxRounds:]
	}
	return rounds
}

// formatDialogueHistory renders recent dialogue rounds as compact plain
// text context for the Planner/Responder prompts.
func formatDialogueHistory(history []model.Message, maxRounds int) string {
	rounds := extractRecentDialogueRounds(history, maxRounds)
	if len(rounds) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range rounds {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[Round %d]\nUser: %s\nAssistant: %s", i+1, r.question, r.answer)
	}
	return b.String()
}
