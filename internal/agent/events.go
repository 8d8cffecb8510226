package agent

import "algokg.app/core/internal/model"

// EventKind is the top-level SSE event name.
type EventKind string

const (
	EventMetadata EventKind = "metadata"
	EventCustom   EventKind = "custom"
	EventState    EventKind = "state"
	EventDone     EventKind = "done"
	EventError    EventKind = "error"
)

// CustomKind sub-types an EventCustom event.
type CustomKind string

const (
	CustomReasoningReset  CustomKind = "reasoning_reset"
	CustomContentReset    CustomKind = "content_reset"
	CustomReasoningDelta  CustomKind = "reasoning_delta"
	CustomContentDelta    CustomKind = "content_delta"
	CustomSubTaskStatus   CustomKind = "subtask_status"
	CustomSubTaskToolCall CustomKind = "subtask_tool_call"
	CustomSubTaskResult   CustomKind = "subtask_result"
)

// Event is one item emitted by the Orchestrator while it runs a turn.
type Event struct {
	Kind   EventKind
	Custom CustomKind

	Scope string // "planning" | "reviewing" | "answering", for *_delta/*_reset custom events
	Delta string

	SubTaskID string
	Status    string
	ToolCall  *model.ToolCallEvent
	Result    string // set only on CustomSubTaskResult: the sub-task's Final Answer text

	Metadata    map[string]any
	FinalAnswer string
	Err         string
}

// Emitter receives orchestrator events. Implementations MUST be
// non-blocking and best-effort: Emit must never cause the turn to abort,
// so write failures are swallowed rather than propagated.
type Emitter interface {
	Emit(evt Event)
}

type noopEmitter struct{}

func (noopEmitter) Emit(Event) {}

// NoopEmitter discards every event; used by callers (tests, batch
// ingestion-adjacent code paths) that don't stream to a client.
var NoopEmitter Emitter = noopEmitter{}
