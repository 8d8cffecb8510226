package agent

import (
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"algokg.app/core/common/llm"
	"algokg.app/core/internal/graphstore"
)

var _ = Describe("GraphQueryTool", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("rejects write queries without ever touching the store", func() {
		chat := &scriptedChat{respond: func([]llm.Message) string {
			return "CREATE (n:X) RETURN n"
		}}
		store := &fakeGraphStore{}
		tool := &GraphQueryTool{LLM: chat, Store: store}

		result := tool.Run(ctx, "add a node for BFS")

		Expect(result).To(Equal("Query rejected: only read operations are allowed."))
		Expect(store.executed()).To(BeEmpty())
	})

	It("auto-bounds unbounded queries with LIMIT 50", func() {
		chat := &scriptedChat{respond: func([]llm.Message) string {
			return "MATCH (n) RETURN n"
		}}
		store := &fakeGraphStore{rows: []graphstore.Row{{"n": "BFS"}}}
		tool := &GraphQueryTool{LLM: chat, Store: store}

		result := tool.Run(ctx, "list everything")

		executed := store.executed()
		Expect(executed).To(HaveLen(1))
		Expect(executed[0]).To(ContainSubstring(" LIMIT 50"))
		Expect(result).To(ContainSubstring("BFS"))
	})

	It("repairs the truncated CH keyword before executing", func() {
		chat := &scriptedChat{respond: func([]llm.Message) string {
			return "CH (e:Entity) RETURN e.name AS name, e.type AS type LIMIT 1"
		}}
		store := &fakeGraphStore{rows: []graphstore.Row{{"name": "BFS", "type": "Algorithm"}}}
		tool := &GraphQueryTool{LLM: chat, Store: store}

		result := tool.Run(ctx, "what is one entity?")

		executed := store.executed()
		Expect(executed).To(HaveLen(1))
		Expect(strings.HasPrefix(executed[0], "MATCH")).To(BeTrue())
		Expect(result).To(ContainSubstring("name: BFS"))
		Expect(result).To(ContainSubstring("type: Algorithm"))
	})

	It("repairs a statement-syntax execution error once", func() {
		calls := 0
		chat := &scriptedChat{respond: func([]llm.Message) string {
			calls++
			if calls == 1 {
				return "MATCH (n RETURN n"
			}
			return "MATCH (n) RETURN n LIMIT 5"
		}}
		store := &fakeGraphStore{rows: []graphstore.Row{{"n": "DFS"}}}
		tool := &GraphQueryTool{LLM: chat, Store: store}

		// The broken query reaches the store, fails as a syntax error, and
		// the repaired one succeeds.
		store.err = &graphstore.QuerySyntaxError{Msg: "unbalanced parenthesis"}
		first := tool.Run(ctx, "anything")
		Expect(first).To(Equal("Graph query failed. Please try rephrasing your question."))

		store.err = nil
		second := tool.Run(ctx, "anything")
		Expect(second).To(ContainSubstring("DFS"))
	})
})
