// Command ingest runs the offline ingestion pipeline over a
// list of text files: chunk, extract, dedup, and persist into the graph
// and vector stores. One invocation, one batch — there is no watch mode.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"algokg.app/core/common"
	"algokg.app/core/common/arangodb"
	"algokg.app/core/common/id"
	"algokg.app/core/common/llm"
	"algokg.app/core/common/logger"
	"algokg.app/core/core/config"
	"algokg.app/core/internal/graphstore"
	"algokg.app/core/internal/ingest"
	"algokg.app/core/internal/vectorstore"
)

func main() {
	ctx := context.Background()
	_ = godotenv.Load()
	cfg := config.Load()
	logger.Setup(cfg)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ingest <file> [file...]")
		os.Exit(1)
	}

	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	docs := make([]ingest.Document, 0, len(os.Args)-1)
	for i, path := range os.Args[1:] {
		text, err := os.ReadFile(path)
		if err != nil {
			slog.ErrorContext(ctx, "failed to read input file", "path", path, "error", err)
			os.Exit(1)
		}
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		docID, err := common.Slugify(base, fmt.Sprintf("doc-%d", i))
		if err != nil {
			docID = fmt.Sprintf("doc-%d", i)
		}
		docs = append(docs, ingest.Document{
			ID:   docID,
			Text: string(text),
		})
	}

	arangoClient, err := arangodb.New(ctx, arangodb.Config{
		URL:      firstOr(cfg.Arango.Endpoints, "http://localhost:8529"),
		Username: cfg.Arango.Username,
		Password: cfg.Arango.Password,
		Database: cfg.Arango.Database,
	})
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

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
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

	dedupClient, err := llm.New(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.ChatModel,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to construct dedup client", "error", err)
		os.Exit(1)
	}

	chunker, err := ingest.NewChunker()
	if err != nil {
		slog.ErrorContext(ctx, "failed to construct chunker", "error", err)
		os.Exit(1)
	}
	extractor := ingest.NewExtractor(dedupClient, int64(cfg.Ingest.ExtractConcurrency))

	pipeline := ingest.NewPipeline(chunker, extractor, dedupClient, graph, vectors, ingest.Options{
		ChunkSize:          cfg.Ingest.ChunkSize,
		ChunkOverlap:       cfg.Ingest.ChunkOverlap,
		ExtractConcurrency: int64(cfg.Ingest.ExtractConcurrency),
		FileConcurrency:    int64(cfg.Ingest.FileConcurrency),
	})

	results, err := pipeline.IngestDocuments(ctx, docs, ingest.Options{
		ChunkSize:          cfg.Ingest.ChunkSize,
		ChunkOverlap:       cfg.Ingest.ChunkOverlap,
		ExtractConcurrency: int64(cfg.Ingest.ExtractConcurrency),
		FileConcurrency:    int64(cfg.Ingest.FileConcurrency),
	})
	if err != nil {
		slog.ErrorContext(ctx, "ingestion failed", "error", err)
		os.Exit(1)
	}

	for _, r := range results {
		fmt.Printf("%s: %d chunks, %d entities, %d relations\n", r.DocID, r.ChunkCount, r.EntityCount, r.RelationCount)
	}
}

func firstOr(vals []string, fallback string) string {
	if len(vals) > 0 && vals[0] != "" {
		return vals[0]
	}
	return fallback
}
