package agent

import (
	"context"
	"sync"

	"algokg.app/core/common/llm"
	"algokg.app/core/internal/graphstore"
)

// scriptedChat is a ChatModel test double. Replies are either consumed in
// order from the replies queue or computed per call by respond; both
// Complete and Stream draw from the same script so code under test can
// switch between them freely.
type scriptedChat struct {
	mu      sync.Mutex
	replies []string
	respond func(messages []llm.Message) string
	calls   int
}

func (s *scriptedChat) next(messages []llm.Message) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.respond != nil {
		return s.respond(messages)
	}
	if len(s.replies) == 0 {
		return ""
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply
}

func (s *scriptedChat) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptedChat) Complete(_ context.Context, messages []llm.Message, _ int, _ *float64) (*llm.Completion, error) {
	return &llm.Completion{Content: s.next(messages), FinishReason: "stop"}, nil
}

func (s *scriptedChat) Stream(_ context.Context, messages []llm.Message, _ int, _ *float64) (<-chan llm.StreamEvent, error) {
	content := s.next(messages)
	events := make(chan llm.StreamEvent, 2)
	if content != "" {
		events <- llm.StreamEvent{Scope: "content", Delta: content}
	}
	events <- llm.StreamEvent{Done: true, Final: &llm.Completion{Content: content, FinishReason: "stop"}}
	close(events)
	return events, nil
}

func (s *scriptedChat) Model() string { return "scripted" }

// recordingEmitter captures every emitted event for assertions; Emit is
// called from concurrent sub-task goroutines.
type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingEmitter) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recordingEmitter) byCustom(kind CustomKind) []Event {
	var out []Event
	for _, e := range r.all() {
		if e.Kind == EventCustom && e.Custom == kind {
			out = append(out, e)
		}
	}
	return out
}

func (r *recordingEmitter) stateIterations(phase string) []int {
	var out []int
	for _, e := range r.all() {
		if e.Kind != EventState || e.Metadata["phase"] != phase {
			continue
		}
		if it, ok := e.Metadata["iteration"].(int); ok {
			out = append(out, it)
		}
	}
	return out
}

// fakeTool returns a canned observation and records its inputs.
type fakeTool struct {
	name string
	out  string

	mu     sync.Mutex
	inputs []string
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Run(_ context.Context, input string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	return f.out
}

// fakeGraphStore serves canned rows and records every executed query text;
// the write/lookup surface is inert.
type fakeGraphStore struct {
	rows []graphstore.Row
	err  error

	mu      sync.Mutex
	queries []string
}

func (f *fakeGraphStore) Initialize(context.Context) error { return nil }
func (f *fakeGraphStore) Finalize(context.Context) error   { return nil }

func (f *fakeGraphStore) UpsertNode(context.Context, graphstore.Node) error { return nil }
func (f *fakeGraphStore) UpsertEdge(context.Context, graphstore.Edge) error { return nil }

func (f *fakeGraphStore) GetNode(context.Context, string) (graphstore.Node, error) {
	return graphstore.Node{}, graphstore.ErrNotFound
}

func (f *fakeGraphStore) GetEdge(context.Context, string, string, string) (graphstore.Edge, error) {
	return graphstore.Edge{}, graphstore.ErrNotFound
}

func (f *fakeGraphStore) HasNode(context.Context, string) (bool, error) { return false, nil }

func (f *fakeGraphStore) HasEdge(context.Context, string, string, string) (bool, error) {
	return false, nil
}

func (f *fakeGraphStore) QueryStructured(_ context.Context, queryText string, _ map[string]any) (graphstore.QueryResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, queryText)
	f.mu.Unlock()
	if f.err != nil {
		return graphstore.QueryResult{}, f.err
	}
	return graphstore.QueryResult{Rows: f.rows}, nil
}

func (f *fakeGraphStore) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}
