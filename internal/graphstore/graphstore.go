// Package graphstore implements the GraphStore collaborator: a
// labeled property graph of Entity/User nodes and typed relationship
// edges, durably persisted through common/arangodb and queried through an
// in-process pattern interpreter (interpreter.go) that mirrors the durable
// store in memory.
package graphstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"algokg.app/core/common/arangodb"
)

// Node is a graph vertex: an Entity (Type set, EntityID set) or a User
// (UserID set, Type empty).
type Node struct {
	EntityID    string
	Name        string
	Type        string
	Description string
	Aliases     []string
	UserID      string
}

func (n Node) id() string {
	if n.UserID != "" {
		return n.UserID
	}
	return n.EntityID
}

// Edge is a directed, typed relationship.
type Edge struct {
	From         string
	To           string
	Type         string
	OriginalType string
	Description  string
	Weight       float64
}

// Row is one result row from a structured query, keyed by RETURN alias.
type Row map[string]any

// QueryResult distinguishes an auto-bounded LIMIT from a naturally short
// result set.
type QueryResult struct {
	Rows      []Row
	Truncated bool
}

var ErrNotFound = errors.New("graphstore: not found")

// Store is the GraphStore collaborator.
type Store interface {
	Initialize(ctx context.Context) error
	Finalize(ctx context.Context) error

	UpsertNode(ctx context.Context, node Node) error
	UpsertEdge(ctx context.Context, edge Edge) error
	GetNode(ctx context.Context, id string) (Node, error)
	GetEdge(ctx context.Context, from, to, relType string) (Edge, error)
	HasNode(ctx context.Context, id string) (bool, error)
	HasEdge(ctx context.Context, from, to, relType string) (bool, error)

	// QueryStructured executes a pre-validated query. Only the
	// interpreter's enumerated clause grammar is accepted — the caller,
	// internal/agent/tools, normalizes/validates/bounds before calling.
	QueryStructured(ctx context.Context, queryText string, params map[string]any) (QueryResult, error)
}

type store struct {
	durable arangodb.Client

	mu    sync.RWMutex
	nodes map[string]Node
	edges []Edge // small graphs; linear scan is fine for the interpreter's needs
}

// New constructs a Store backed by the given durable ArangoDB client.
func New(durable arangodb.Client) Store {
	return &store{
		durable: durable,
		nodes:   make(map[string]Node),
	}
}

// Initialize ensures the durable schema exists and loads the full node/edge
// set into the in-memory mirror the interpreter queries against.
func (s *store) Initialize(ctx context.Context) error {
	if err := s.durable.EnsureDatabase(ctx); err != nil {
		return fmt.Errorf("ensure database: %w", err)
	}
	if err := s.durable.EnsureCollections(ctx); err != nil {
		return fmt.Errorf("ensure collections: %w", err)
	}
	if err := s.durable.EnsureGraph(ctx); err != nil {
		return fmt.Errorf("ensure graph: %w", err)
	}
	return s.reload(ctx)
}

func (s *store) Finalize(ctx context.Context) error {
	return s.durable.Close()
}

func (s *store) reload(ctx context.Context) error {
	nodes, err := s.durable.AllNodes(ctx)
	if err != nil {
		return fmt.Errorf("load nodes: %w", err)
	}
	edges, err := s.durable.AllEdges(ctx)
	if err != nil {
		return fmt.Errorf("load edges: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = make(map[string]Node, len(nodes))
	for _, n := range nodes {
		node := fromArangoNode(n)
		s.nodes[node.id()] = node
	}

	s.edges = make([]Edge, 0, len(edges))
	for _, e := range edges {
		s.edges = append(s.edges, fromArangoEdge(e))
	}

	return nil
}

// withRetry re-runs a durable operation on transient failure with
// exponential backoff (1s, 2s), giving up after 3 attempts. Context
// cancellation is terminal, not transient.
func withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt == 2 {
			break
		}
		slog.WarnContext(ctx, "graph store retry", "op", op, "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(1<<attempt) * time.Second):
		}
	}
	return fmt.Errorf("%s after 3 attempts: %w", op, err)
}

func (s *store) UpsertNode(ctx context.Context, node Node) error {
	if err := withRetry(ctx, "upsert node", func() error {
		return s.durable.UpsertNode(ctx, toArangoNode(node))
	}); err != nil {
		return err
	}
	s.mu.Lock()
	s.nodes[node.id()] = node
	s.mu.Unlock()
	return nil
}

func (s *store) UpsertEdge(ctx context.Context, edge Edge) error {
	if err := withRetry(ctx, "upsert edge", func() error {
		return s.durable.UpsertEdge(ctx, toArangoEdge(edge))
	}); err != nil {
		return err
	}
	s.mu.Lock()
	replaced := false
	for i, e := range s.edges {
		if e.From == edge.From && e.To == edge.To && e.Type == edge.Type {
			s.edges[i] = edge
			replaced = true
			break
		}
	}
	if !replaced {
		s.edges = append(s.edges, edge)
	}
	s.mu.Unlock()
	return nil
}

func (s *store) GetNode(ctx context.Context, id string) (Node, error) {
	s.mu.RLock()
	n, ok := s.nodes[id]
	s.mu.RUnlock()
	if ok {
		return n, nil
	}

	arNode, err := s.durable.GetNode(ctx, id)
	if errors.Is(err, arangodb.ErrNotFound) {
		return Node{}, ErrNotFound
	}
	if err != nil {
		return Node{}, err
	}
	return fromArangoNode(arNode), nil
}

func (s *store) GetEdge(ctx context.Context, from, to, relType string) (Edge, error) {
	s.mu.RLock()
	for _, e := range s.edges {
		if e.From == from && e.To == to && e.Type == relType {
			s.mu.RUnlock()
			return e, nil
		}
	}
	s.mu.RUnlock()

	arEdge, err := s.durable.GetEdge(ctx, from, to, arangodb.RelationType(relType))
	if errors.Is(err, arangodb.ErrNotFound) {
		return Edge{}, ErrNotFound
	}
	if err != nil {
		return Edge{}, err
	}
	return fromArangoEdge(arEdge), nil
}

func (s *store) HasNode(ctx context.Context, id string) (bool, error) {
	_, err := s.GetNode(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *store) HasEdge(ctx context.Context, from, to, relType string) (bool, error) {
	_, err := s.GetEdge(ctx, from, to, relType)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *store) QueryStructured(ctx context.Context, queryText string, params map[string]any) (QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return runQuery(queryText, params, s.nodes, s.edges)
}

func fromArangoNode(n arangodb.Node) Node {
	return Node{
		EntityID:    n.EntityID,
		Name:        n.Name,
		Type:        string(n.Type),
		Description: n.Description,
		Aliases:     n.Aliases,
		UserID:      n.UserID,
	}
}

func toArangoNode(n Node) arangodb.Node {
	return arangodb.Node{
		EntityID:    n.EntityID,
		Name:        n.Name,
		Type:        arangodb.EntityType(n.Type),
		Description: n.Description,
		Aliases:     n.Aliases,
		UserID:      n.UserID,
	}
}

func fromArangoEdge(e arangodb.Edge) Edge {
	return Edge{
		From:         e.From,
		To:           e.To,
		Type:         string(e.Type),
		OriginalType: e.OriginalType,
		Description:  e.Description,
		Weight:       e.Weight,
	}
}

func toArangoEdge(e Edge) arangodb.Edge {
	return arangodb.Edge{
		From:         e.From,
		To:           e.To,
		Type:         arangodb.RelationType(e.Type),
		OriginalType: e.OriginalType,
		Description:  e.Description,
		Weight:       e.Weight,
	}
}
