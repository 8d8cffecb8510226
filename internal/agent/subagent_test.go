package agent

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"algokg.app/core/internal/model"
)

var _ = Describe("SubAgent", func() {
	var (
		ctx     context.Context
		emitter *recordingEmitter
		search  *fakeTool
	)

	BeforeEach(func() {
		ctx = context.Background()
		emitter = &recordingEmitter{}
		search = &fakeTool{name: "vector_search", out: "BFS is a graph traversal algorithm."}
	})

	newAgent := func(chat *scriptedChat, maxSteps int) *SubAgent {
		return NewSubAgent(chat, []Tool{search}, maxSteps, emitter)
	}

	countToolCallsByStatus := func(status model.ToolCallStatus) int {
		n := 0
		for _, e := range emitter.byCustom(CustomSubTaskToolCall) {
			if e.ToolCall != nil && e.ToolCall.Status == status {
				n++
			}
		}
		return n
	}

	It("runs tool calls and returns the final answer", func() {
		chat := &scriptedChat{replies: []string{
			"Thought: need chunk context\nAction: vector_search\nAction Input: BFS traversal",
			"Thought: enough\nFinal Answer: BFS visits vertices level by level.",
		}}

		answer, exhausted := newAgent(chat, 4).Run(ctx, "7", "explain BFS")

		Expect(exhausted).To(BeFalse())

		Expect(answer).To(Equal("BFS visits vertices level by level."))
		Expect(search.inputs).To(Equal([]string{"BFS traversal"}))

		toolCalls := emitter.byCustom(CustomSubTaskToolCall)
		Expect(toolCalls).To(HaveLen(2))
		Expect(toolCalls[0].ToolCall.Status).To(Equal(model.ToolCallPending))
		Expect(toolCalls[1].ToolCall.Status).To(Equal(model.ToolCallCompleted))
		Expect(toolCalls[1].ToolCall.ID).To(Equal(toolCalls[0].ToolCall.ID))
		Expect(toolCalls[1].ToolCall.Thought).To(Equal("need chunk context"))
		Expect(toolCalls[1].ToolCall.Result).To(ContainSubstring("graph traversal"))
	})

	It("pairs every pending event with exactly one terminal event", func() {
		chat := &scriptedChat{replies: []string{
			"Action: vector_search\nAction Input: first",
			"Action: vector_search\nAction Input: second",
			"Final Answer: done",
		}}

		newAgent(chat, 4).Run(ctx, "7", "task")
		pending := countToolCallsByStatus(model.ToolCallPending)
		terminal := countToolCallsByStatus(model.ToolCallCompleted) + countToolCallsByStatus(model.ToolCallError)
		Expect(pending).To(Equal(2))
		Expect(terminal).To(Equal(pending))
	})

	It("feeds an error observation back for an unknown tool and continues", func() {
		chat := &scriptedChat{replies: []string{
			"Action: graph_walk\nAction Input: x",
			"Final Answer: recovered",
		}}

		answer, _ := newAgent(chat, 4).Run(ctx, "7", "task")

		Expect(answer).To(Equal("recovered"))
		toolCalls := emitter.byCustom(CustomSubTaskToolCall)
		Expect(toolCalls[1].ToolCall.Status).To(Equal(model.ToolCallError))
		Expect(toolCalls[1].ToolCall.Result).To(ContainSubstring("Unknown tool: graph_walk"))
		Expect(toolCalls[1].ToolCall.Result).To(ContainSubstring("vector_search"))
	})

	It("repairs the format once and degrades to raw text on a second failure", func() {
		chat := &scriptedChat{replies: []string{
			"I will now search for BFS.",
			"Still not following any format.",
		}}

		answer, _ := newAgent(chat, 4).Run(ctx, "7", "task")

		Expect(answer).To(Equal("Still not following any format."))
		Expect(chat.callCount()).To(Equal(2))
	})

	It("forces a final answer after the step budget is exhausted", func() {
		chat := &scriptedChat{replies: []string{
			"Action: vector_search\nAction Input: first",
			"Action: vector_search\nAction Input: second",
			"Final Answer: forced synthesis from observations",
		}}

		answer, exhausted := newAgent(chat, 2).Run(ctx, "7", "task")

		Expect(exhausted).To(BeTrue())

		Expect(answer).To(Equal("forced synthesis from observations"))
		Expect(search.inputs).To(HaveLen(2))
	})

	It("breaks a doom loop of identical calls", func() {
		chat := &scriptedChat{replies: []string{
			"Action: vector_search\nAction Input: same",
			"Action: vector_search\nAction Input: same",
			"Action: vector_search\nAction Input: same",
			"Final Answer: stopped repeating",
		}}

		answer, exhausted := newAgent(chat, 6).Run(ctx, "7", "task")

		Expect(exhausted).To(BeTrue())

		Expect(answer).To(Equal("stopped repeating"))
		// The third identical call is cut off before the tool runs.
		Expect(search.inputs).To(HaveLen(2))
	})

	It("emits in_progress before completed on the sub-task status channel", func() {
		chat := &scriptedChat{replies: []string{"Final Answer: quick"}}

		newAgent(chat, 4).Run(ctx, "7", "task")

		statuses := emitter.byCustom(CustomSubTaskStatus)
		Expect(statuses).To(HaveLen(2))
		Expect(statuses[0].Status).To(Equal("in_progress"))
		Expect(statuses[1].Status).To(Equal("completed"))
	})
})
