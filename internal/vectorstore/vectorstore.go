// Package vectorstore implements the VectorStore collaborator:
// query/upsert/delete over chunk embeddings with cosine-plus-lexical
// re-ranking, persisted to Redis so the store survives restarts and can
// be shared across replicas.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Result is one ranked vector-search hit.
type Result struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
}

// Embedder produces an embedding vector for a piece of text. Implemented
// by an OpenAI-compatible embeddings client; kept as a narrow interface so
// vectorstore has no direct dependency on the LLM client package.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the VectorStore collaborator.
type Store interface {
	Query(ctx context.Context, queryText string, topK int) ([]Result, error)
	Upsert(ctx context.Context, records map[string]UpsertRecord) error
	Delete(ctx context.Context, ids []string) error
	Initialize(ctx context.Context) error
	Finalize(ctx context.Context) error
}

// UpsertRecord is one record passed to Upsert: content plus free metadata.
type UpsertRecord struct {
	Content  string
	Metadata map[string]any
}

type record struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Vector   []float32      `json:"vector"`
}

type store struct {
	rdb      *redis.Client
	embedder Embedder
	prefix   string

	mu      sync.RWMutex
	records map[string]record
}

// New constructs a Redis-backed Store. prefix namespaces the Redis hash
// keys (e.g. "algokg:vec:").
func New(rdb *redis.Client, embedder Embedder, prefix string) Store {
	return &store{
		rdb:      rdb,
		embedder: embedder,
		prefix:   prefix,
		records:  make(map[string]record),
	}
}

func (s *store) key() string {
	return s.prefix + "chunks"
}

// Initialize loads the persisted record set into the in-memory cosine
// matrix; queries never touch Redis afterwards.
func (s *store) Initialize(ctx context.Context) error {
	raw, err := s.rdb.HGetAll(ctx, s.key()).Result()
	if err != nil {
		return fmt.Errorf("load vector records: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, data := range raw {
		var rec record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}
		s.records[id] = rec
	}

	return nil
}

func (s *store) Finalize(ctx context.Context) error {
	return nil
}

func (s *store) Upsert(ctx context.Context, records map[string]UpsertRecord) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, 0, len(records))
	contents := make([]string, 0, len(records))
	for id, r := range records {
		ids = append(ids, id)
		contents = append(contents, r.Content)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pipe := s.rdb.Pipeline()
	for i, id := range ids {
		rec := record{
			ID:       id,
			Content:  contents[i],
			Metadata: records[id].Metadata,
			Vector:   normalize(vectors[i]),
		}
		s.records[id] = rec

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", id, err)
		}
		pipe.HSet(ctx, s.key(), id, data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist vector records: %w", err)
	}

	return nil
}

func (s *store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.records, id)
	}

	if err := s.rdb.HDel(ctx, s.key(), ids...).Err(); err != nil {
		return fmt.Errorf("delete vector records: %w", err)
	}

	return nil
}

func (s *store) Query(ctx context.Context, queryText string, topK int) ([]Result, error) {
	vec, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	qvec := normalize(vec)

	en, zh := extractKeywords(queryText, 8)

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.records)
	k := topK
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil, nil
	}

	ids := make([]string, 0, n)
	for id := range s.records {
		ids = append(ids, id)
	}
	// Deterministic iteration order so ties resolve the same way every run.
	sort.Strings(ids)

	scores := make(map[string]float64, n)
	for _, id := range ids {
		scores[id] = cosine(qvec, s.records[id].Vector)
	}

	selected := make([]string, 0, k)
	seen := make(map[string]bool, k)

	if len(en) > 0 || len(zh) > 0 {
		type hit struct {
			id  string
			kw  int
			sim float64
		}
		var hits []hit
		for _, id := range ids {
			kw := keywordScore(s.records[id].Content, en, zh)
			if kw > 0 {
				hits = append(hits, hit{id: id, kw: kw, sim: scores[id]})
			}
		}
		sort.SliceStable(hits, func(i, j int) bool {
			if hits[i].kw != hits[j].kw {
				return hits[i].kw > hits[j].kw
			}
			return hits[i].sim > hits[j].sim
		})
		for _, h := range hits {
			selected = append(selected, h.id)
			seen[h.id] = true
			if len(selected) >= k {
				break
			}
		}
	}

	if len(selected) < k {
		order := make([]string, len(ids))
		copy(order, ids)
		sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] > scores[order[j]] })
		for _, id := range order {
			if seen[id] {
				continue
			}
			selected = append(selected, id)
			if len(selected) >= k {
				break
			}
		}
	}

	results := make([]Result, 0, len(selected))
	for _, id := range selected {
		rec := s.records[id]
		meta := make(map[string]any, len(rec.Metadata)+1)
		for k, v := range rec.Metadata {
			meta[k] = v
		}
		if len(en) > 0 || len(zh) > 0 {
			meta["keyword_score"] = keywordScore(rec.Content, en, zh)
		}
		results = append(results, Result{
			ID:       id,
			Score:    scores[id],
			Content:  rec.Content,
			Metadata: meta,
		})
	}

	return results, nil
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		norm = 1
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

var (
	enTokenRE = regexp.MustCompile(`[A-Za-z]{2,16}`)
	zhTokenRE = regexp.MustCompile(`[\x{4e00}-\x{9fff}]{3,16}`)

	// stopEN is a fixed English stop-word list for the lexical-overlap
	// boost, carried as-is rather than extended.
	stopEN = map[string]bool{
		"trace":     true,
		"check":     true,
		"marker":    true,
		"langsmith": true,
		"langchain": true,
	}
)

// extractKeywords pulls a small deterministic keyword set for lexical
// boosting: English tokens length 2-16 lowercased minus the stop-list,
// CJK tokens length 3-16, each capped at maxEach, first-seen order.
func extractKeywords(query string, maxEach int) (en, zh []string) {
	enSeen := make(map[string]bool)
	for _, tok := range enTokenRE.FindAllString(query, -1) {
		low := strings.ToLower(tok)
		if stopEN[low] || enSeen[low] {
			continue
		}
		enSeen[low] = true
		en = append(en, low)
		if len(en) >= maxEach {
			break
		}
	}

	zhSeen := make(map[string]bool)
	for _, tok := range zhTokenRE.FindAllString(query, -1) {
		if zhSeen[tok] {
			continue
		}
		zhSeen[tok] = true
		zh = append(zh, tok)
		if len(zh) >= maxEach {
			break
		}
	}

	return en, zh
}

func keywordScore(content string, en, zh []string) int {
	if content == "" || (len(en) == 0 && len(zh) == 0) {
		return 0
	}
	lower := strings.ToLower(content)
	score := 0
	for _, k := range en {
		score += strings.Count(lower, k)
	}
	for _, k := range zh {
		score += strings.Count(content, k)
	}
	return score
}
