package agent

import (
	"context"

	"algokg.app/core/common/llm"
)

// streamText runs one model call in streaming mode, relaying each delta to
// the emitter under the given turn scope ("planning", "reviewing",
// "answering") and returning the finished completion. Falls back to a
// non-streaming call when the stream cannot be opened or dies mid-flight,
// so callers always get a usable completion or a hard error.
func streamText(ctx context.Context, chat llm.ChatModel, messages []llm.Message, maxTokens int, scope string, emitter Emitter) (*llm.Completion, error) {
	if emitter == nil {
		emitter = NoopEmitter
	}

	events, err := chat.Stream(ctx, messages, maxTokens, nil)
	if err != nil {
		return chat.Complete(ctx, messages, maxTokens, nil)
	}

	var final *llm.Completion
	for evt := range events {
		if evt.Done {
			final = evt.Final
			continue
		}
		custom := CustomContentDelta
		if evt.Scope == "reasoning" {
			custom = CustomReasoningDelta
		}
		emitter.Emit(Event{Kind: EventCustom, Custom: custom, Scope: scope, Delta: evt.Delta})
	}

	if final == nil || (final.FinishReason == "" && final.Content == "" && final.ReasoningContent == "") {
		return chat.Complete(ctx, messages, maxTokens, nil)
	}
	return final, nil
}

// completionText is the text a caller should parse: content when present,
// otherwise the reasoning channel (some reasoning models put short
// structured replies there when the content channel stays empty).
func completionText(c *llm.Completion) string {
	if c.Content != "" {
		return c.Content
	}
	return c.ReasoningContent
}
