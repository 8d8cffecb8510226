// Package config centralizes environment-driven configuration. A single
// Config value is loaded once at startup and threaded explicitly through
// constructors; nothing here is a process-global singleton except the
// default slog logger (set up separately in common/logger).
package config

import (
	"os"
	"strconv"
	"time"

	"algokg.app/core/core/db"
)

// Config holds all application configuration.
type Config struct {
	Env  string
	Port string

	DB       db.Config
	Arango   ArangoConfig
	Redis    RedisConfig
	LLM      LLMConfig
	OTel     OTelConfig
	Agent    AgentConfig
	Ingest   IngestConfig
	Retrieve RetrieveConfig
}

// ArangoConfig configures the durable graph-store backing.
type ArangoConfig struct {
	Endpoints []string
	Username  string
	Password  string
	Database  string
}

// RedisConfig configures the vector-store backing.
type RedisConfig struct {
	URL    string
	Prefix string
}

// LLMConfig configures the two chat model endpoints (reasoning + fast/non-reasoning)
// and the embedding model, following an OpenAI-compatible client shape.
type LLMConfig struct {
	BaseURL string
	APIKey  string

	ChatModel      string
	ReasoningModel string

	EmbeddingBaseURL string
	EmbeddingAPIKey  string
	EmbeddingModel   string
	EmbeddingDim     int

	RequestTimeout time.Duration
}

// OTelConfig controls the OTLP exporters; mirrors common/otel/otel.go's contract.
type OTelConfig struct {
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Headers        string
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

// AgentConfig holds the orchestrator/sub-agent runtime knobs.
type AgentConfig struct {
	MaxIterations        int
	MaxSteps             int
	AgentConcurrency     int
	LLMConcurrency       int
	StorageConcurrency   int
	SessionHistoryRounds int
	WebSearchAPIKey      string
}

// IngestConfig holds the chunker/extractor pipeline knobs.
type IngestConfig struct {
	ChunkSize          int
	ChunkOverlap       int
	FileConcurrency    int
	ExtractConcurrency int
}

// RetrieveConfig holds the retrieval knobs.
type RetrieveConfig struct {
	TopK int
}

// Load loads configuration from environment variables, with sensible
// development defaults.
func Load() Config {
	return Config{
		Env:  getEnv("ALGOKG_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		DB: db.Config{
			DSN:      buildDSN(),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		Arango: ArangoConfig{
			Endpoints: []string{getEnv("ARANGO_ENDPOINT", "http://localhost:8529")},
			Username:  getEnv("ARANGO_USERNAME", "root"),
			Password:  getEnv("ARANGO_PASSWORD", ""),
			Database:  getEnv("ARANGO_DATABASE", "algokg"),
		},
		Redis: RedisConfig{
			URL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Prefix: getEnv("REDIS_VECTOR_PREFIX", "algokg:vec:"),
		},
		LLM: LLMConfig{
			BaseURL:          getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:           getEnv("LLM_API_KEY", ""),
			ChatModel:        getEnv("LLM_CHAT_MODEL", "gpt-4o-mini"),
			ReasoningModel:   getEnv("LLM_REASONING_MODEL", "gpt-4o-mini"),
			EmbeddingBaseURL: getEnv("EMBEDDING_BASE_URL", getEnv("LLM_BASE_URL", "https://api.openai.com/v1")),
			EmbeddingAPIKey:  getEnv("EMBEDDING_API_KEY", getEnv("LLM_API_KEY", "")),
			EmbeddingModel:   getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDim:     getEnvInt("EMBEDDING_DIM", 1536),
			RequestTimeout:   time.Duration(getEnvInt("LLM_REQUEST_TIMEOUT_SECONDS", 600)) * time.Second,
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "algokg-core"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
		},
		Agent: AgentConfig{
			MaxIterations:        getEnvInt("MAX_ITERATIONS", 3),
			MaxSteps:             getEnvInt("SUBAGENT_MAX_STEPS", 6),
			AgentConcurrency:     getEnvInt("AGENT_CONCURRENCY", 3),
			LLMConcurrency:       getEnvInt("LLM_CONCURRENCY", 50),
			StorageConcurrency:   getEnvInt("STORAGE_CONCURRENCY", 25),
			SessionHistoryRounds: getEnvInt("SESSION_HISTORY_ROUNDS", 5),
			WebSearchAPIKey:      getEnv("FIRECRAWL_API_KEY", ""),
		},
		Ingest: IngestConfig{
			ChunkSize:          getEnvInt("CHUNK_SIZE", 512),
			ChunkOverlap:       getEnvInt("CHUNK_OVERLAP", 64),
			FileConcurrency:    getEnvInt("FILE_CONCURRENCY", 25),
			ExtractConcurrency: getEnvInt("EXTRACT_CONCURRENCY", 50),
		},
		Retrieve: RetrieveConfig{
			TopK: getEnvInt("TOP_K", 5),
		},
	}
}

func buildDSN() string {
	host := getEnv("DATABASE_HOST", "localhost")
	port := getEnv("DATABASE_PORT", "5432")
	user := getEnv("DATABASE_USER", "postgres")
	password := getEnv("DATABASE_PASSWORD", "postgres")
	name := getEnv("DATABASE_NAME", "algokg")
	sslMode := getEnv("DATABASE_SSLMODE", "disable")

	return "postgres://" + user + ":" + password + "@" + host + ":" + port + "/" + name + "?sslmode=" + sslMode
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}
