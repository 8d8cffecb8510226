package stream

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"algokg.app/core/common/id"
	"algokg.app/core/common/llm"
	"algokg.app/core/internal/agent"
	"algokg.app/core/internal/model"
	"algokg.app/core/internal/session"
)

const missingFinalAnswerApology = "I'm sorry, I wasn't able to put together an answer for that. Please try again."

// Handler serves one SSE endpoint per turn: it loads session
// history and the user profile, runs one full Orchestrator turn with an
// SSEEmitter wired to the response, and persists the turn's messages.
// Planner/Responder/Tools are built once at server startup and shared
// across requests (they hold no per-turn state); only the SubAgent
// factory, the SSEEmitter and the Orchestrator are constructed fresh per
// request, since each sub-agent call needs its own emitter closure.
type Handler struct {
	Planner   *agent.Planner
	Responder *agent.Responder
	ChatModel llm.ChatModel
	Tools     []agent.Tool

	MaxSteps             int
	AgentConcurrency     int64
	MaxIterations        int
	SessionHistoryRounds int

	History session.HistoryStore
	Profile session.ProfileStore
}

func NewHandler(
	planner *agent.Planner,
	responder *agent.Responder,
	chatModel llm.ChatModel,
	tools []agent.Tool,
	history session.HistoryStore,
	profile session.ProfileStore,
	maxSteps int,
	agentConcurrency int64,
	maxIterations int,
	sessionHistoryRounds int,
) *Handler {
	return &Handler{
		Planner:              planner,
		Responder:            responder,
		ChatModel:            chatModel,
		Tools:                tools,
		History:              history,
		Profile:              profile,
		MaxSteps:             maxSteps,
		AgentConcurrency:     agentConcurrency,
		MaxIterations:        maxIterations,
		SessionHistoryRounds: sessionHistoryRounds,
	}
}

// Chat handles POST /api/v1/chat/stream: one user turn, streamed as SSE.
func (h *Handler) Chat(c *gin.Context) {
	ctx := c.Request.Context()

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	history, err := h.History.RecentRounds(ctx, req.SessionID, h.SessionHistoryRounds)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load session history", "component", "stream.handler", "session_id", req.SessionID, "error", err)
		history = nil
	}

	profile, err := h.Profile.Read(ctx, req.UserID)
	if err != nil {
		slog.WarnContext(ctx, "failed to load user profile", "component", "stream.handler", "user_id", req.UserID, "error", err)
		profile = ""
	}

	SetSSEHeaders(c.Writer)
	if _, ok := c.Writer.(http.Flusher); !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	emitter := NewSSEEmitter(c.Writer)

	userMsg := model.Message{Role: model.RoleUser, Content: req.Message}
	if err := h.History.AppendMessage(ctx, req.SessionID, userMsg); err != nil {
		slog.WarnContext(ctx, "failed to persist user message", "component", "stream.handler", "session_id", req.SessionID, "error", err)
	}

	emitter.WriteRaw("metadata", map[string]any{
		"session_id": req.SessionID,
		"user_message": UserMessageDTO{
			ID:      id.New(),
			Role:    string(model.RoleUser),
			Content: req.Message,
		},
	})

	state := &model.TurnState{
		History:       history,
		Question:      req.Message,
		UserProfile:   profile,
		MaxIterations: h.MaxIterations,
	}

	subAgentFactory := func() *agent.SubAgent {
		return agent.NewSubAgent(h.ChatModel, h.Tools, h.MaxSteps, emitter)
	}
	orchestrator := agent.NewOrchestrator(h.Planner, subAgentFactory, h.Responder, emitter, h.AgentConcurrency)

	result := orchestrator.Run(ctx, state)

	finalAnswer := result.FinalAnswer
	if finalAnswer == "" {
		finalAnswer = missingFinalAnswerApology
	}

	assistantMsg := model.Message{Role: model.RoleAssistant, Content: finalAnswer}
	if err := h.History.AppendMessage(ctx, req.SessionID, assistantMsg); err != nil {
		slog.WarnContext(ctx, "failed to persist assistant message", "component", "stream.handler", "session_id", req.SessionID, "error", err)
	}

	// Profile extraction/application is an out-of-scope collaborator (spec
	// §9 Open Question 3): it would run here, fire-and-forget, after the
	// answer is already on the wire. No extraction model is wired in this
	// build, so there is nothing to launch; h.Profile.ApplyUpdates exists
	// only so a real extractor could be plugged in later without an
	// interface change.

	emitter.WriteRaw("done", map[string]any{
		"assistant_message": UserMessageDTO{ID: id.New(), Role: string(model.RoleAssistant), Content: finalAnswer},
		"final_answer":      finalAnswer,
	})
}
