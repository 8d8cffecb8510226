package agent

import (
	"context"
	"fmt"

	"algokg.app/core/common/llm"
	"algokg.app/core/internal/model"
)

// Responder composes the user-facing final answer from aggregated
// sub-task findings, streaming both reasoning and content deltas (scope
// is whatever the underlying ChatModel is configured for) through an
// Emitter as they arrive.
type Responder struct {
	LLM llm.ChatModel
}

func NewResponder(chat llm.ChatModel) *Responder {
	return &Responder{LLM: chat}
}

func (r *Responder) prompt(state *model.TurnState) []llm.Message {
	user := fmt.Sprintf("## Question\n%s\n\n## Findings\n%s\n", state.Question, joinIntermediate(state.Intermediate))
	if history := formatDialogueHistory(state.History, maxDialogueRounds); history != "" {
		user = "## Recent Conversation\n" + history + "\n\n" + user
	}
	if state.UserProfile != "" {
		user = "## User Profile\n" + state.UserProfile + "\n\n" + user
	}
	return []llm.Message{
		{Role: "system", Content: responderSystemPrompt},
		{Role: "user", Content: user},
	}
}

// Respond produces the final answer without streaming (used by callers
// that don't have a live SSE connection, e.g. batch/test harnesses).
func (r *Responder) Respond(ctx context.Context, state *model.TurnState) (string, error) {
	completion, err := r.LLM.Complete(ctx, r.prompt(state), 2000, nil)
	if err != nil {
		return "", NewRetryableError(fmt.Errorf("responder: %w", err))
	}
	return completion.Content, nil
}

// RespondStream streams the final answer, emitting a *_delta event per
// chunk under the "answering" scope, and returns the assembled text.
func (r *Responder) RespondStream(ctx context.Context, state *model.TurnState, emitter Emitter) (string, error) {
	if emitter == nil {
		emitter = NoopEmitter
	}
	events, err := r.LLM.Stream(ctx, r.prompt(state), 2000, nil)
	if err != nil {
		return "", NewRetryableError(fmt.Errorf("responder stream: %w", err))
	}

	var content string
	for evt := range events {
		if evt.Done {
			if evt.Final == nil || (evt.Final.Content == "" && evt.Final.ReasoningContent == "" && evt.Final.FinishReason == "") {
				return "", NewRetryableError(fmt.Errorf("responder stream: upstream error"))
			}
			content = evt.Final.Content
			continue
		}
		custom := CustomContentDelta
		if evt.Scope == "reasoning" {
			custom = CustomReasoningDelta
		}
		emitter.Emit(Event{Kind: EventCustom, Custom: custom, Scope: "answering", Delta: evt.Delta})
	}
	return content, nil
}
