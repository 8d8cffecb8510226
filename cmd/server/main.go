package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"algokg.app/core/common/arangodb"
	"algokg.app/core/common/id"
	"algokg.app/core/common/llm"
	"algokg.app/core/common/logger"
	"algokg.app/core/common/otel"
	"algokg.app/core/core/config"
	"algokg.app/core/core/db"
	"algokg.app/core/internal/agent"
	"algokg.app/core/internal/graphstore"
	"algokg.app/core/internal/session"
	"algokg.app/core/internal/stream"
	"algokg.app/core/internal/vectorstore"
)

// wireArangoConfig adapts core/config's ArangoConfig to common/arangodb's
// Config; the driver only dials one endpoint, matching graphstore's single
// in-process mirror.
func wireArangoConfig(cfg config.ArangoConfig) arangodb.Config {
	endpoint := ""
	if len(cfg.Endpoints) > 0 {
		endpoint = cfg.Endpoints[0]
	}
	return arangodb.Config{
		URL:      endpoint,
		Username: cfg.Username,
		Password: cfg.Password,
		Database: cfg.Database,
	}
}

func main() {
	ctx := context.Background()

	_ = godotenv.Load()
	cfg := config.Load()

	// OTel must init before logger (logger uses the OTel provider in production).
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "algokg-core starting", "env", cfg.Env)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	sessionStore := session.New(database)
	if err := sessionStore.EnsureSchema(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to ensure session schema", "error", err)
		os.Exit(1)
	}

	arangoClient, err := arangodb.New(ctx, wireArangoConfig(cfg.Arango))
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to arangodb", "error", err)
		os.Exit(1)
	}
	defer arangoClient.Close()

	graph := graphstore.New(arangoClient)
	if err := graph.Initialize(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to initialize graph store", "error", err)
		os.Exit(1)
	}
	defer graph.Finalize(ctx)
	slog.InfoContext(ctx, "graph store ready", "database", cfg.Arango.Database)

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	embedder, err := llm.NewEmbedder(llm.EmbedderConfig{
		APIKey:  cfg.LLM.EmbeddingAPIKey,
		BaseURL: cfg.LLM.EmbeddingBaseURL,
		Model:   cfg.LLM.EmbeddingModel,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to construct embedder", "error", err)
		os.Exit(1)
	}

	vectors := vectorstore.New(redisClient, embedder, cfg.Redis.Prefix)
	if err := vectors.Initialize(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to initialize vector store", "error", err)
		os.Exit(1)
	}
	defer vectors.Finalize(ctx)
	slog.InfoContext(ctx, "vector store ready")

	reasoningModel, err := llm.NewChatModel(llm.ChatModelConfig{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.ReasoningModel,
		Concurrency:    int64(cfg.Agent.LLMConcurrency),
		RequestTimeout: cfg.LLM.RequestTimeout,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to construct reasoning chat model", "error", err)
		os.Exit(1)
	}

	chatModel, err := llm.NewChatModel(llm.ChatModelConfig{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.ChatModel,
		Concurrency:    int64(cfg.Agent.LLMConcurrency),
		RequestTimeout: cfg.LLM.RequestTimeout,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to construct chat model", "error", err)
		os.Exit(1)
	}

	planner := agent.NewPlanner(reasoningModel, cfg.Agent.MaxIterations)
	responder := agent.NewResponder(chatModel)

	tools := []agent.Tool{
		&agent.VectorSearchTool{Store: vectors, TopK: cfg.Retrieve.TopK},
		&agent.GraphQueryTool{LLM: chatModel, Store: graph},
	}
	if cfg.Agent.WebSearchAPIKey != "" {
		tools = append(tools, &agent.WebSearchTool{APIKey: cfg.Agent.WebSearchAPIKey})
	}

	handler := stream.NewHandler(
		planner,
		responder,
		chatModel,
		tools,
		sessionStore,
		sessionStore,
		cfg.Agent.MaxSteps,
		int64(cfg.Agent.AgentConcurrency),
		cfg.Agent.MaxIterations,
		cfg.Agent.SessionHistoryRounds,
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, handler)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // SSE streams hold the connection open past any fixed write deadline
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, handler *stream.Handler) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates the span, Recovery catches panics inside
	// it, Logger records the outcome with trace context attached.
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.POST("/chat/stream", handler.Chat)

	return router
}

// requestLogger writes one structured access-log line per request, after
// the handler returns.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		slog.InfoContext(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
