package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"algokg.app/core/common/id"
	"algokg.app/core/common/llm"
	"algokg.app/core/internal/model"
)

const (
	doomLoopThreshold = 3 // same tool + same input called this many times in a row
	maxEventResult    = 500
)

// SubAgent runs one ReAct loop instance: Thought/Action/Action
// Input/Observation, repeated until a Final Answer or a step/doom-loop
// limit forces synthesis. Each Run call gets a fresh message history — the
// sub-agent has no memory across sub-tasks, each gets its own context
// window.
type SubAgent struct {
	LLM      llm.ChatModel
	Tools    map[string]Tool
	MaxSteps int
	Emitter  Emitter
}

func NewSubAgent(chat llm.ChatModel, tools []Tool, maxSteps int, emitter Emitter) *SubAgent {
	m := make(map[string]Tool, len(tools))
	for _, t := range tools {
		m[t.Name()] = t
	}
	if emitter == nil {
		emitter = NoopEmitter
	}
	if maxSteps <= 0 {
		maxSteps = 6
	}
	return &SubAgent{LLM: chat, Tools: m, MaxSteps: maxSteps, Emitter: emitter}
}

func (s *SubAgent) allowedToolNames() map[string]bool {
	allowed := make(map[string]bool, len(s.Tools))
	for name := range s.Tools {
		allowed[name] = true
	}
	return allowed
}

func (s *SubAgent) toolListing() string {
	names := make([]string, 0, len(s.Tools))
	for name := range s.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

type callSignature struct {
	tool  string
	input string
}

const forceFinalAnswerPrompt = "You have used all available steps. You MUST respond with a Final Answer now based on the observations so far. Do not call any more tools."

// Run executes the ReAct loop for one sub-task and returns its final
// answer text (never an empty string: a forced stop still returns a
// best-effort summary rather than an error, so the orchestrator can
// always aggregate something for this sub-task). exhausted reports that
// the loop was cut off by the step budget or a doom loop instead of
// finishing on its own; the orchestrator stop-lists such tasks so a
// re-plan doesn't re-issue them.
func (s *SubAgent) Run(ctx context.Context, subTaskID, task string) (answer string, exhausted bool) {
	s.Emitter.Emit(Event{Kind: EventCustom, Custom: CustomSubTaskStatus, SubTaskID: subTaskID, Status: "in_progress"})
	defer s.Emitter.Emit(Event{Kind: EventCustom, Custom: CustomSubTaskStatus, SubTaskID: subTaskID, Status: "completed"})

	messages := []llm.Message{
		{Role: "system", Content: subAgentSystemPrompt},
		{Role: "user", Content: task},
	}
	allowed := s.allowedToolNames()

	var recent []callSignature
	formatRepaired := false

	for step := 1; step <= s.MaxSteps; step++ {
		completion, err := s.LLM.Complete(ctx, messages, 800, nil)
		if err != nil {
			slog.ErrorContext(ctx, "sub-agent completion failed", "sub_task_id", subTaskID, "error", err)
			return "Unable to complete this sub-task due to a model error.", false
		}
		text := completion.Content

		if answer, ok := parseFinalAnswer(text); ok {
			return answer, false
		}

		action := parseReActAction(text, allowed)
		if action == nil {
			if formatRepaired {
				// Already gave one repair instruction; don't loop forever
				// on a model that won't follow the format.
				return firstNonEmpty(text, "Sub-task ended without a final answer."), false
			}
			formatRepaired = true
			messages = append(messages,
				llm.Message{Role: "assistant", Content: text},
				llm.Message{Role: "system", Content: formatRepairPrompt})
			continue
		}

		sig := callSignature{tool: action.Tool, input: action.Input}
		recent = append(recent, sig)
		if len(recent) > doomLoopThreshold {
			recent = recent[1:]
		}
		if len(recent) == doomLoopThreshold && allSame(recent) {
			slog.WarnContext(ctx, "sub-agent doom loop detected", "sub_task_id", subTaskID, "tool", action.Tool)
			return s.forceSynthesis(ctx, append(messages, llm.Message{Role: "user", Content: forceSynthesisPrompt}),
				"Sub-task stopped after repeating the same search."), true
		}

		observation, _ := s.invoke(ctx, subTaskID, action)

		formatRepaired = false
		messages = append(messages,
			llm.Message{Role: "assistant", Content: text},
			llm.Message{Role: "user", Content: "Observation: " + observation})
	}

	// Out of steps: one last forced turn so the loop always ends on a
	// synthesized answer rather than a dangling observation.
	return s.forceSynthesis(ctx, append(messages, llm.Message{Role: "user", Content: forceFinalAnswerPrompt}),
		"Sub-task stopped after reaching the maximum number of steps."), true
}

// invoke dispatches one parsed action, emitting the pending event before
// the call and exactly one terminal event after it.
func (s *SubAgent) invoke(ctx context.Context, subTaskID string, action *ReActAction) (observation string, status model.ToolCallStatus) {
	callID := id.New()
	s.Emitter.Emit(Event{
		Kind: EventCustom, Custom: CustomSubTaskToolCall, SubTaskID: subTaskID,
		ToolCall: &model.ToolCallEvent{
			ID: callID, SubTaskID: subTaskID, Name: action.Tool,
			Args:    map[string]any{"input": action.Input},
			Thought: action.Thought,
			Status:  model.ToolCallPending,
		},
	})

	tool, known := s.Tools[action.Tool]
	status = model.ToolCallCompleted
	switch {
	case !known:
		observation = fmt.Sprintf("Unknown tool: %s. Available tools: %s.", action.Tool, s.toolListing())
		status = model.ToolCallError
	default:
		observation = s.runTool(ctx, tool, action.Input)
		if strings.HasPrefix(observation, "Error:") {
			status = model.ToolCallError
		}
	}

	s.Emitter.Emit(Event{
		Kind: EventCustom, Custom: CustomSubTaskToolCall, SubTaskID: subTaskID,
		ToolCall: &model.ToolCallEvent{
			ID: callID, SubTaskID: subTaskID, Name: action.Tool,
			Args:    map[string]any{"input": action.Input},
			Thought: action.Thought,
			Status:  status,
			Result:  truncateText(observation, maxEventResult),
		},
	})
	return observation, status
}

// runTool converts a tool panic into an error observation so one
// misbehaving tool cannot take the whole sub-task down.
func (s *SubAgent) runTool(ctx context.Context, tool Tool, input string) (observation string) {
	defer func() {
		if r := recover(); r != nil {
			observation = fmt.Sprintf("Error: tool '%s' raised panic: %v", tool.Name(), r)
		}
	}()
	return tool.Run(ctx, input)
}

// forceSynthesis takes one final model turn and extracts whatever Final
// Answer it can; fallback is returned only when the model call itself
// fails.
func (s *SubAgent) forceSynthesis(ctx context.Context, messages []llm.Message, fallback string) string {
	final, err := s.LLM.Complete(ctx, messages, 800, nil)
	if err != nil {
		return fallback
	}
	if answer, ok := parseFinalAnswer(final.Content); ok {
		return answer
	}
	return firstNonEmpty(final.Content, fallback)
}

func allSame(calls []callSignature) bool {
	for i := 1; i < len(calls); i++ {
		if calls[i] != calls[0] {
			return false
		}
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
