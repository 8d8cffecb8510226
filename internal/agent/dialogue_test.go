package agent

import (
	"strings"
	"testing"

	"algokg.app/core/internal/model"
)

func TestExtractRecentDialogueRoundsSkipsInternalMessages(t *testing.T) {
	history := []model.Message{
		{Role: model.RoleUser, Content: "what is BFS?"},
		{Role: model.RoleAssistant, Content: "[Plan] look up BFS"},
		{Role: model.RoleAssistant, Content: "[Aggregated Results] ..."},
		{Role: model.RoleAssistant, Content: "[Quality Review] sufficient"},
		{Role: model.RoleAssistant, Content: "BFS is a level-order graph traversal."},
	}

	rounds := extractRecentDialogueRounds(history, 5)
	if len(rounds) != 1 {
		t.Fatalf("rounds = %d, want 1", len(rounds))
	}
	if rounds[0].answer != "BFS is a level-order graph traversal." {
		t.Errorf("answer = %q, want the non-internal assistant message", rounds[0].answer)
	}
}

func TestExtractRecentDialogueRoundsCapsAtMaxRounds(t *testing.T) {
	var history []model.Message
	for i := 0; i < 8; i++ {
		history = append(history,
			model.Message{Role: model.RoleUser, Content: "question " + string(rune('a'+i))},
			model.Message{Role: model.RoleAssistant, Content: "answer " + string(rune('a'+i))},
		)
	}

	rounds := extractRecentDialogueRounds(history, 5)
	if len(rounds) != 5 {
		t.Fatalf("rounds = %d, want 5", len(rounds))
	}
	if rounds[0].question != "question d" {
		t.Errorf("first kept round = %q, want the 4th question", rounds[0].question)
	}
	if rounds[4].answer != "answer h" {
		t.Errorf("last kept round answer = %q, want the most recent", rounds[4].answer)
	}
}

func TestFormatDialogueHistoryEmpty(t *testing.T) {
	if got := formatDialogueHistory(nil, 5); got != "" {
		t.Errorf("formatDialogueHistory(nil) = %q, want empty", got)
	}
}

func TestFormatDialogueHistoryNumbersRounds(t *testing.T) {
	history := []model.Message{
		{Role: model.RoleUser, Content: "q1"},
		{Role: model.RoleAssistant, Content: "a1"},
		{Role: model.RoleUser, Content: "q2"},
		{Role: model.RoleAssistant, Content: "a2"},
	}

	got := formatDialogueHistory(history, 5)
	for _, want := range []string{"[Round 1]", "[Round 2]", "User: q2", "Assistant: a2"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatted history missing %q:\n%s", want, got)
		}
	}
}

func TestTruncateText(t *testing.T) {
	if got := truncateText("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	long := strings.Repeat("x", 20)
	got := truncateText(long, 10)
	if len([]rune(got)) != 11 || !strings.HasSuffix(got, "…") {
		t.Errorf("truncateText produced %q, want 10 chars plus ellipsis", got)
	}
}
