// Package stream bridges the agent.Orchestrator's Event stream to the SSE
// transport: a single gin.ResponseWriter, explicit flush after every
// write, non-blocking best-effort emission.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"algokg.app/core/internal/agent"
)

// SSEEmitter translates agent.Event values into the wire schema and writes
// them as Server-Sent Events. Emit is called concurrently from multiple
// sub-task goroutines (tool-call events from different sub-tasks may
// interleave), so writes are serialized under mu. Emission is non-blocking
// and best-effort: a failed emit must never abort the turn, so write
// errors are swallowed rather than propagated.
type SSEEmitter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func NewSSEEmitter(w http.ResponseWriter) *SSEEmitter {
	flusher, _ := w.(http.Flusher)
	return &SSEEmitter{w: w, flusher: flusher}
}

// WriteRaw emits an arbitrary top-level SSE event (used for the
// "metadata" and "done" events, which aren't part of agent.Event).
func (e *SSEEmitter) WriteRaw(event string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.write(event, payload)
}

// Emit implements agent.Emitter, translating each agent.Event into its
// SSE custom/state/error counterpart.
func (e *SSEEmitter) Emit(evt agent.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch evt.Kind {
	case agent.EventCustom:
		e.write("custom", customPayload(evt))
	case agent.EventState:
		e.write("state", map[string]any{
			"phase":        evt.Metadata["phase"],
			"iteration":    evt.Metadata["iteration"],
			"todos":        evt.Metadata["todos"],
			"final_answer": evt.FinalAnswer,
		})
	case agent.EventError:
		e.write("error", map[string]any{"detail": evt.Err})
	case agent.EventDone:
		// EventDone carries no payload of its own; Handler.Chat (handler.go)
		// writes the schema's richer "done" event (assistant_message,
		// final_answer) directly via WriteRaw once Orchestrator.Run returns.
	}
}

func customPayload(evt agent.Event) map[string]any {
	payload := map[string]any{"type": string(evt.Custom)}
	if evt.Scope != "" {
		payload["scope"] = evt.Scope
	}
	if evt.SubTaskID != "" {
		payload["sub_task_id"] = evt.SubTaskID
	}
	switch evt.Custom {
	case agent.CustomReasoningDelta, agent.CustomContentDelta:
		payload["delta"] = evt.Delta
	case agent.CustomSubTaskStatus:
		payload["status"] = evt.Status
	case agent.CustomSubTaskToolCall:
		if evt.ToolCall != nil {
			payload["tool_call"] = map[string]any{
				"id":      evt.ToolCall.ID,
				"name":    evt.ToolCall.Name,
				"args":    evt.ToolCall.Args,
				"thought": evt.ToolCall.Thought,
				"status":  evt.ToolCall.Status,
				"result":  evt.ToolCall.Result,
			}
		}
	case agent.CustomSubTaskResult:
		payload["result"] = evt.Result
	}
	return payload
}

// write must be called with mu held.
func (e *SSEEmitter) write(event string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if event != "" {
		fmt.Fprintf(e.w, "event: %s\n", event)
	}
	for _, line := range strings.Split(string(body), "\n") {
		fmt.Fprintf(e.w, "data: %s\n", line)
	}
	fmt.Fprint(e.w, "\n")
	if e.flusher != nil {
		e.flusher.Flush()
	}
}

// SetSSEHeaders sets the response headers required for a chunked SSE
// stream.
func SetSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}
