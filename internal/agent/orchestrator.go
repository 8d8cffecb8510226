package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"algokg.app/core/internal/model"
)

// Orchestrator drives the fixed node sequence
// plan -> execute -> aggregate -> judge -> (plan | respond) -> END.
type Orchestrator struct {
	Planner        *Planner
	SubAgentFactory func() *SubAgent
	Responder      *Responder
	Emitter        Emitter

	AgentConcurrency int64
}

// NewOrchestrator wires the dual-role Planner, a SubAgent factory (fresh
// per sub-task so each gets an isolated conversation), the Responder, and
// the event sink that streams through to the transport.
func NewOrchestrator(planner *Planner, subAgentFactory func() *SubAgent, responder *Responder, emitter Emitter, agentConcurrency int64) *Orchestrator {
	if emitter == nil {
		emitter = NoopEmitter
	}
	if agentConcurrency <= 0 {
		agentConcurrency = 3
	}
	return &Orchestrator{
		Planner:          planner,
		SubAgentFactory:  subAgentFactory,
		Responder:        responder,
		Emitter:          emitter,
		AgentConcurrency: agentConcurrency,
	}
}

// Run executes one full turn and returns the final turn state. A fatal
// (non-retryable) error is turned into a terminal "error" event and a
// fixed apology as FinalAnswer; internal detail stays in the logs.
func (o *Orchestrator) Run(ctx context.Context, state *model.TurnState) *model.TurnState {
	if state.MaxIterations <= 0 {
		state.MaxIterations = 1
	}

	for {
		if err := o.runPlan(ctx, state); err != nil {
			return o.terminalError(state, err)
		}

		o.runExecute(ctx, state)
		o.runAggregate(state)

		sufficient, err := o.runJudge(ctx, state)
		if err != nil {
			return o.terminalError(state, err)
		}

		if sufficient || state.Iteration >= state.MaxIterations {
			break
		}
	}

	if err := o.runRespond(ctx, state); err != nil {
		return o.terminalError(state, err)
	}

	o.Emitter.Emit(Event{Kind: EventDone})
	return state
}

func (o *Orchestrator) terminalError(state *model.TurnState, err error) *model.TurnState {
	slog.Error("orchestrator turn failed", "component", "agent.orchestrator", "error", err)
	state.FinalAnswer = terminalApology
	o.Emitter.Emit(Event{Kind: EventError, Err: terminalApology})
	return state
}

// runPlan is the only node that advances Iteration (Open Question 1:
// iteration == number of completed plans for the turn).
func (o *Orchestrator) runPlan(ctx context.Context, state *model.TurnState) error {
	o.resetScope("planning")

	items, err := o.Planner.Plan(ctx, state, o.Emitter)
	if err != nil {
		var agentErr *Error
		if asAgentError(err, &agentErr) && !agentErr.Retryable {
			return agentErr
		}
		return err
	}

	state.Todos = items
	state.Iteration++

	state.Messages = append(state.Messages, model.Message{
		Role:    model.RoleAssistant,
		Content: "[Plan] " + summarizeTodos(items),
	})

	o.emitState("planning", state)
	return nil
}

// resetScope marks the start of a streaming scope on both delta channels.
func (o *Orchestrator) resetScope(scope string) {
	o.Emitter.Emit(Event{Kind: EventCustom, Custom: CustomReasoningReset, Scope: scope})
	o.Emitter.Emit(Event{Kind: EventCustom, Custom: CustomContentReset, Scope: scope})
}

func (o *Orchestrator) emitState(phase string, state *model.TurnState) {
	todos := make([]map[string]any, 0, len(state.Todos))
	for _, t := range state.Todos {
		todos = append(todos, map[string]any{"id": t.ID, "task": t.Task, "status": string(t.Status)})
	}
	o.Emitter.Emit(Event{
		Kind:        EventState,
		FinalAnswer: state.FinalAnswer,
		Metadata:    map[string]any{"phase": phase, "iteration": state.Iteration, "todos": todos},
	})
}

// runExecute fans out every pending sub-task under the agent-concurrency
// semaphore, collecting results in submission order regardless of
// completion order.
func (o *Orchestrator) runExecute(ctx context.Context, state *model.TurnState) {
	pending := make([]int, 0, len(state.Todos))
	for i, t := range state.Todos {
		if t.Status == model.StatusPending {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return
	}

	o.emitState("executing", state)

	sem := semaphore.NewWeighted(o.AgentConcurrency)

	type subTaskOutcome struct {
		answer    string
		exhausted bool
	}
	results := make([]subTaskOutcome, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	for slot, idx := range pending {
		slot, idx := slot, idx
		task := state.Todos[idx]
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				results[slot].answer = "Sub-task did not run: " + err.Error()
				return nil
			}
			defer sem.Release(1)

			if o.stopListed(state, task) {
				results[slot].answer = "Sub-task skipped: previously exceeded its step budget."
				return nil
			}

			results[slot].answer, results[slot].exhausted = o.runOneSubTask(gctx, task)
			return nil
		})
	}
	// errgroup's inner funcs never return a non-nil error (failures are
	// captured as text observations, per Tool's contract), so Wait always
	// returns nil; it is called only to join the goroutines.
	_ = g.Wait()

	for slot, idx := range pending {
		state.Todos[idx].Status = model.StatusCompleted
		state.Intermediate = append(state.Intermediate, fmt.Sprintf("## %s\n%s", state.Todos[idx].Task, results[slot].answer))
		if results[slot].exhausted {
			if state.SubTaskStopList == nil {
				state.SubTaskStopList = make(map[string]bool)
			}
			state.SubTaskStopList[stopListKey(state.Todos[idx])] = true
		}
	}
}

// runOneSubTask runs a single sub-agent loop and converts any panic into
// the fixed "ERROR: sub-task failed" intermediate result so one runaway
// sub-task never aborts the turn.
func (o *Orchestrator) runOneSubTask(ctx context.Context, task model.PlanItem) (answer string, exhausted bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sub-task panicked", "component", "agent.subagent", "sub_task_id", task.ID, "panic", r)
			answer = "ERROR: sub-task failed"
		}
		o.Emitter.Emit(Event{Kind: EventCustom, Custom: CustomSubTaskResult, SubTaskID: task.ID, Result: answer})
	}()

	subAgent := o.SubAgentFactory()
	answer, exhausted = subAgent.Run(ctx, task.ID, task.Task)
	return answer, exhausted
}

// stopListKey normalizes a task description so a re-plan that re-issues
// materially the same sub-task hits the stop list even under a new id.
func stopListKey(task model.PlanItem) string {
	return strings.ToLower(strings.TrimSpace(task.Task))
}

func (o *Orchestrator) stopListed(state *model.TurnState, task model.PlanItem) bool {
	return state.SubTaskStopList != nil && state.SubTaskStopList[stopListKey(task)]
}

func (o *Orchestrator) runAggregate(state *model.TurnState) {
	state.Messages = append(state.Messages, model.Message{
		Role:    model.RoleAssistant,
		Content: "[Aggregated Results] " + joinIntermediate(state.Intermediate),
	})
}

func (o *Orchestrator) runJudge(ctx context.Context, state *model.TurnState) (bool, error) {
	o.resetScope("reviewing")
	o.emitState("reviewing", state)

	sufficient, reasoning, newTasks, err := o.Planner.Judge(ctx, state, o.Emitter)
	if err != nil {
		var agentErr *Error
		if asAgentError(err, &agentErr) && !agentErr.Retryable {
			return false, agentErr
		}
		return false, err
	}

	state.Messages = append(state.Messages, model.Message{
		Role:    model.RoleAssistant,
		Content: "[Quality Review] " + reasoning,
	})

	// newTasks is the Judge's suggested follow-up decomposition. The
	// orchestrator always routes back through a full Plan call rather than
	// adopting it directly, so it
	// is folded into the gap note Plan reads as prior-iteration evidence.
	if !sufficient && state.Iteration < state.MaxIterations && len(newTasks) > 0 {
		state.Intermediate = append(state.Intermediate, "[Quality Review gap] "+reasoning+"\nSuggested follow-ups: "+summarizeTodos(newTasks))
	}

	return sufficient, nil
}

// runRespond streams the final answer under the "answering" scope.
func (o *Orchestrator) runRespond(ctx context.Context, state *model.TurnState) error {
	o.resetScope("answering")
	o.emitState("answering", state)
	answer, err := o.Responder.RespondStream(ctx, state, o.Emitter)
	if err != nil {
		var agentErr *Error
		if asAgentError(err, &agentErr) && !agentErr.Retryable {
			return agentErr
		}
		// Streaming failed without producing output on either channel;
		// retry once as a plain non-streaming call.
		answer, err = o.Responder.Respond(ctx, state)
		if err != nil {
			return err
		}
	}

	state.FinalAnswer = answer
	state.Messages = append(state.Messages, model.Message{Role: model.RoleAssistant, Content: answer})
	o.emitState("answering", state)
	return nil
}

func asAgentError(err error, target **Error) bool {
	ae, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = ae
	return true
}

func summarizeTodos(items []model.PlanItem) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += "; "
		}
		out += it.Task
	}
	return out
}

const terminalApology = "I ran into a problem while working on this and couldn't finish. Please try again."
