package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/respjson"
	"github.com/openai/openai-go/packages/ssestream"
	"golang.org/x/sync/semaphore"
)

var nameInvalidChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Message is one turn of a free-text conversation. The orchestrator, the
// sub-agent ReAct loop, and the judge/responder all speak in plain text
// rather than native tool-calling, so there is no ToolCalls field here;
// actions are embedded in Content and parsed by internal/agent.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Completion is the result of a single non-streaming ChatModel call.
type Completion struct {
	Content          string
	ReasoningContent string // populated only when the model is a reasoning model
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// StreamEvent is one delta from ChatModel.Stream. Scope distinguishes
// visible response text from reasoning trace text so callers can route
// each to a different stream channel.
type StreamEvent struct {
	Scope string // "content" or "reasoning"
	Delta string
	Done  bool
	Final *Completion // set only on the terminal event
}

// ChatModelConfig configures a single chat completion endpoint.
type ChatModelConfig struct {
	APIKey  string
	BaseURL string
	Model   string

	// Concurrency caps in-flight calls on this endpoint; every
	// Complete/Stream call acquires the model's semaphore regardless of
	// caller. Zero means the default of 50.
	Concurrency int64

	// RequestTimeout bounds a single Complete call or a full Stream read.
	// Zero means the default of 600s.
	RequestTimeout time.Duration
}

// ChatModel is the free-text completion surface used by the orchestrator,
// the sub-agent runner, and the judge/responder.
type ChatModel interface {
	Complete(ctx context.Context, messages []Message, maxTokens int, temperature *float64) (*Completion, error)
	Stream(ctx context.Context, messages []Message, maxTokens int, temperature *float64) (<-chan StreamEvent, error)
	Model() string
}

type chatModel struct {
	openai  openai.Client
	model   string
	sem     *semaphore.Weighted
	timeout time.Duration
}

func NewChatModel(cfg ChatModelConfig) (ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 50
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}

	return &chatModel{
		openai:  openai.NewClient(opts...),
		model:   model,
		sem:     semaphore.NewWeighted(concurrency),
		timeout: timeout,
	}, nil
}

func (c *chatModel) Model() string {
	return c.model
}

func (c *chatModel) params(messages []Message, maxTokens int, temperature *float64) openai.ChatCompletionNewParams {
	if maxTokens == 0 {
		maxTokens = 4096
	}

	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			converted = append(converted, openai.SystemMessage(m.Content))
		case "assistant":
			converted = append(converted, openai.AssistantMessage(m.Content))
		default:
			converted = append(converted, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            converted,
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if temperature != nil {
		params.Temperature = openai.Float(*temperature)
	}
	return params
}

func (c *chatModel) Complete(ctx context.Context, messages []Message, maxTokens int, temperature *float64) (*Completion, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	defer c.sem.Release(1)

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.openai.Chat.Completions.New(cctx, c.params(messages, maxTokens, temperature))
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	slog.DebugContext(ctx, "llm completion finished",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := resp.Choices[0]
	return &Completion{
		Content:          choice.Message.Content,
		ReasoningContent: extraStringField(choice.Message.JSON.ExtraFields, "reasoning_content"),
		FinishReason:     string(choice.FinishReason),
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

// Stream pushes content (and, for a reasoning model, reasoning) deltas
// to the returned channel, closing it after the terminal event. Errors
// mid-stream are reported as a final event with an empty Content and the
// finish reason left blank; callers should treat a channel close without
// a non-empty FinishReason as a stream error.
func (c *chatModel) Stream(ctx context.Context, messages []Message, maxTokens int, temperature *float64) (<-chan StreamEvent, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("chat stream: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, c.timeout)
	stream := c.openai.Chat.Completions.NewStreaming(sctx, c.params(messages, maxTokens, temperature))

	events := make(chan StreamEvent, 16)
	go func() {
		defer c.sem.Release(1)
		defer cancel()
		c.pump(sctx, stream, events)
	}()
	return events, nil
}

// pump relays per-delta scopes: the OpenAI-compatible reasoning models
// (DeepSeek-R1 family and friends) put their trace text in a
// reasoning_content delta field the SDK doesn't model, so it is read from
// the chunk's extra fields; ordinary content deltas come from the typed
// field as usual.
func (c *chatModel) pump(ctx context.Context, stream *ssestream.Stream[openai.ChatCompletionChunk], events chan<- StreamEvent) {
	defer close(events)

	var content, reasoning string
	var promptTokens, completionTokens int
	finishReason := "stop"

	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.PromptTokens > 0 {
			promptTokens = int(chunk.Usage.PromptTokens)
			completionTokens = int(chunk.Usage.CompletionTokens)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}

		if delta := extraStringField(choice.Delta.JSON.ExtraFields, "reasoning_content"); delta != "" {
			reasoning += delta
			events <- StreamEvent{Scope: "reasoning", Delta: delta}
		}
		if delta := choice.Delta.Content; delta != "" {
			content += delta
			events <- StreamEvent{Scope: "content", Delta: delta}
		}
	}

	if err := stream.Err(); err != nil {
		slog.ErrorContext(ctx, "llm stream error", "error", err)
		events <- StreamEvent{Done: true, Final: &Completion{FinishReason: ""}}
		return
	}

	events <- StreamEvent{Done: true, Final: &Completion{
		Content:          content,
		ReasoningContent: reasoning,
		FinishReason:     finishReason,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}}
}

// extraStringField decodes a string-valued field the SDK keeps only as raw
// JSON (vendor extensions like reasoning_content).
func extraStringField(fields map[string]respjson.Field, key string) string {
	f, ok := fields[key]
	if !ok || !f.Valid() {
		return ""
	}
	var s string
	if err := json.Unmarshal([]byte(f.Raw()), &s); err != nil {
		return ""
	}
	return s
}

// GenerateSchemaFrom generates a JSON schema from an instance value.
// Useful when the type is not known at compile time.
func GenerateSchemaFrom(v any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(v)
}

// SanitizeName converts a display name to a valid OpenAI name parameter.
// The name must match ^[a-zA-Z0-9_-]{1,64}$.
func SanitizeName(name string) string {
	sanitized := nameInvalidChars.ReplaceAllString(name, "_")
	if len(sanitized) > 64 {
		sanitized = sanitized[:64]
	}
	return sanitized
}
