package agent

import (
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"algokg.app/core/common/llm"
	"algokg.app/core/internal/model"
)

// plannerScript answers Plan prompts with a fixed sub-task array and Judge
// prompts with a fixed verdict.
func plannerScript(planJSON, judgeJSON string) func(messages []llm.Message) string {
	return func(messages []llm.Message) string {
		last := messages[len(messages)-1].Content
		if strings.Contains(last, "Judge whether the findings") {
			return judgeJSON
		}
		return planJSON
	}
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx     context.Context
		emitter *recordingEmitter
	)

	BeforeEach(func() {
		ctx = context.Background()
		emitter = &recordingEmitter{}
	})

	newOrchestrator := func(plannerChat, subChat, responderChat *scriptedChat, tools []Tool) *Orchestrator {
		planner := NewPlanner(plannerChat, 3)
		responder := NewResponder(responderChat)
		factory := func() *SubAgent {
			return NewSubAgent(subChat, tools, 4, emitter)
		}
		return NewOrchestrator(planner, factory, responder, emitter, 2)
	}

	Describe("iteration ceiling", func() {
		It("runs exactly max_iterations cycles when the judge never accepts", func() {
			plannerChat := &scriptedChat{respond: plannerScript(
				`[{"id": 1, "task": "look up BFS", "tool_hint": "vector_search"}]`,
				`{"sufficient": false, "reasoning": "still missing complexity analysis", "new_sub_tasks": []}`,
			)}
			subChat := &scriptedChat{respond: func([]llm.Message) string {
				return "Final Answer: partial evidence"
			}}
			responderChat := &scriptedChat{respond: func([]llm.Message) string {
				return "BFS explores level by level."
			}}

			o := newOrchestrator(plannerChat, subChat, responderChat, nil)
			state := &model.TurnState{Question: "how does BFS work?", MaxIterations: 3}
			result := o.Run(ctx, state)

			Expect(result.Iteration).To(Equal(3))
			Expect(result.FinalAnswer).To(Equal("BFS explores level by level."))

			iterations := emitter.stateIterations("planning")
			Expect(iterations).To(Equal([]int{1, 2, 3}))
		})

		It("stops early when the judge is satisfied", func() {
			plannerChat := &scriptedChat{respond: plannerScript(
				`[{"id": 1, "task": "look up BFS", "tool_hint": "vector_search"}]`,
				`{"sufficient": true, "reasoning": "covers the question", "new_sub_tasks": []}`,
			)}
			subChat := &scriptedChat{respond: func([]llm.Message) string {
				return "Final Answer: BFS uses a queue"
			}}
			responderChat := &scriptedChat{respond: func([]llm.Message) string {
				return "Answer."
			}}

			o := newOrchestrator(plannerChat, subChat, responderChat, nil)
			state := &model.TurnState{Question: "how does BFS work?", MaxIterations: 3}
			result := o.Run(ctx, state)

			Expect(result.Iteration).To(Equal(1))
			Expect(result.FinalAnswer).To(Equal("Answer."))
		})

		It("treats an unparseable verdict as insufficient", func() {
			plannerChat := &scriptedChat{respond: plannerScript(
				`[{"id": 1, "task": "look up BFS", "tool_hint": "vector_search"}]`,
				"I am not sure what to say here.",
			)}
			subChat := &scriptedChat{respond: func([]llm.Message) string {
				return "Final Answer: something"
			}}
			responderChat := &scriptedChat{respond: func([]llm.Message) string {
				return "Answer."
			}}

			o := newOrchestrator(plannerChat, subChat, responderChat, nil)
			state := &model.TurnState{Question: "q", MaxIterations: 2}
			result := o.Run(ctx, state)

			Expect(result.Iteration).To(Equal(2))
		})
	})

	Describe("sub-task isolation", func() {
		It("converts one failing sub-task into an ERROR result without aborting the turn", func() {
			plannerChat := &scriptedChat{respond: plannerScript(
				`[{"id": 1, "task": "boom please", "tool_hint": ""}, {"id": 2, "task": "fetch the basics", "tool_hint": ""}]`,
				`{"sufficient": true, "reasoning": "fine", "new_sub_tasks": []}`,
			)}
			subChat := &scriptedChat{respond: func(messages []llm.Message) string {
				if strings.Contains(messages[1].Content, "boom") {
					panic("injected sub-task failure")
				}
				return "Final Answer: OK result"
			}}
			responderChat := &scriptedChat{respond: func([]llm.Message) string {
				return "Done."
			}}

			o := newOrchestrator(plannerChat, subChat, responderChat, nil)
			state := &model.TurnState{Question: "q", MaxIterations: 1}
			result := o.Run(ctx, state)

			Expect(result.Intermediate).To(HaveLen(2))
			Expect(result.Intermediate[0]).To(ContainSubstring("ERROR"))
			Expect(result.Intermediate[1]).To(ContainSubstring("OK result"))
			for _, todo := range result.Todos {
				Expect(todo.Status).To(Equal(model.StatusCompleted))
			}
			Expect(result.FinalAnswer).To(Equal("Done."))
		})
	})

	Describe("streaming scope markers", func() {
		It("resets both channels at the start of each scope", func() {
			plannerChat := &scriptedChat{respond: plannerScript(
				`[{"id": 1, "task": "t", "tool_hint": ""}]`,
				`{"sufficient": true, "reasoning": "ok", "new_sub_tasks": []}`,
			)}
			subChat := &scriptedChat{respond: func([]llm.Message) string { return "Final Answer: x" }}
			responderChat := &scriptedChat{respond: func([]llm.Message) string { return "y" }}

			o := newOrchestrator(plannerChat, subChat, responderChat, nil)
			o.Run(ctx, &model.TurnState{Question: "q", MaxIterations: 1})

			var scopes []string
			for _, e := range emitter.byCustom(CustomContentReset) {
				scopes = append(scopes, e.Scope)
			}
			Expect(scopes).To(Equal([]string{"planning", "reviewing", "answering"}))
		})
	})
})
