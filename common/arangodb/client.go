package arangodb

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
)

var ErrNotFound = errors.New("document not found")

const (
	collEntities  = "entities"
	collUsers     = "users"
	collRelations = "relations"
	graphName     = "knowledge"
)

// Client is the durable graph-store adapter backing internal/graphstore.
// It persists the Entity/Relation property graph and answers point
// lookups; pattern-matching queries are served by
// internal/graphstore's in-process interpreter, which keeps its in-memory
// graph in sync through the same Upsert calls.
type Client interface {
	EnsureDatabase(ctx context.Context) error
	EnsureCollections(ctx context.Context) error
	EnsureGraph(ctx context.Context) error
	TruncateCollections(ctx context.Context) error

	UpsertNode(ctx context.Context, node Node) error
	UpsertEdge(ctx context.Context, edge Edge) error
	GetNode(ctx context.Context, entityID string) (Node, error)
	GetEdge(ctx context.Context, from, to string, relType RelationType) (Edge, error)
	HasNode(ctx context.Context, entityID string) (bool, error)
	HasEdge(ctx context.Context, from, to string, relType RelationType) (bool, error)

	// AllNodes and AllEdges back the interpreter's in-memory mirror on
	// startup; they are not meant for hot-path traversal.
	AllNodes(ctx context.Context) ([]Node, error)
	AllEdges(ctx context.Context) ([]Edge, error)

	Close() error
}

type Config struct {
	URL      string
	Username string
	Password string
	Database string
}

func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("arangodb URL is required")
	}
	if c.Username == "" {
		return fmt.Errorf("arangodb username is required")
	}
	if c.Database == "" {
		return fmt.Errorf("arangodb database name is required")
	}
	return nil
}

type client struct {
	conn         connection.Connection
	arangoClient arangodb.Client
	db           arangodb.Database
	cfg          Config
}

func New(ctx context.Context, cfg Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("arangodb config: %w", err)
	}

	endpoint := connection.NewRoundRobinEndpoints([]string{cfg.URL}) // round robins from the urls, we just have one for now
	conn := connection.NewHttp2Connection(connection.DefaultHTTP2ConfigurationWrapper(endpoint, true))

	auth := connection.NewBasicAuth(cfg.Username, cfg.Password)
	if err := conn.SetAuthentication(auth); err != nil {
		return nil, fmt.Errorf("arangodb auth: %w", err)
	}

	arangoClient := arangodb.NewClient(conn)

	c := &client{
		conn:         conn,
		arangoClient: arangoClient,
		cfg:          cfg,
	}

	return c, nil
}

func (c *client) Close() error {
	return nil
}

func (c *client) EnsureDatabase(ctx context.Context) error {
	start := time.Now()

	exists, err := c.arangoClient.DatabaseExists(ctx, c.cfg.Database)
	if err != nil {
		return fmt.Errorf("check database exists: %w", err)
	}

	if !exists {
		_, err = c.arangoClient.CreateDatabase(ctx, c.cfg.Database, nil)
		if err != nil {
			return fmt.Errorf("create database: %w", err)
		}
		slog.InfoContext(ctx, "arangodb database created",
			"database", c.cfg.Database,
			"duration_ms", time.Since(start).Milliseconds())
	}

	db, err := c.arangoClient.GetDatabase(ctx, c.cfg.Database, nil)
	if err != nil {
		return fmt.Errorf("get database: %w", err)
	}
	c.db = db

	return nil
}

func (c *client) EnsureCollections(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized, call EnsureDatabase first")
	}

	nodeCollections := []string{collEntities, collUsers}
	edgeCollections := []string{collRelations}

	for _, name := range nodeCollections {
		if err := c.ensureCollection(ctx, name, false); err != nil {
			return err
		}
	}

	for _, name := range edgeCollections {
		if err := c.ensureCollection(ctx, name, true); err != nil {
			return err
		}
	}

	if err := c.ensureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	return nil
}

// ensureIndexes creates indexes backing name-lookup during extraction merge
// and alias resolution.
func (c *client) ensureIndexes(ctx context.Context) error {
	col, err := c.db.GetCollection(ctx, collEntities, nil)
	if err != nil {
		return fmt.Errorf("get collection %s: %w", collEntities, err)
	}

	_, isNew, err := col.EnsurePersistentIndex(ctx, []string{"name"}, &arangodb.CreatePersistentIndexOptions{
		Name: "idx_name",
	})
	if err != nil {
		return fmt.Errorf("ensure name index on %s: %w", collEntities, err)
	}
	if isNew {
		slog.InfoContext(ctx, "arangodb index created", "collection", collEntities, "index", "idx_name")
	}

	_, isNew, err = col.EnsurePersistentIndex(ctx, []string{"type"}, &arangodb.CreatePersistentIndexOptions{
		Name: "idx_type",
	})
	if err != nil {
		return fmt.Errorf("ensure type index on %s: %w", collEntities, err)
	}
	if isNew {
		slog.InfoContext(ctx, "arangodb index created", "collection", collEntities, "index", "idx_type")
	}

	return nil
}

func (c *client) ensureCollection(ctx context.Context, name string, isEdge bool) error {
	exists, err := c.db.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s exists: %w", name, err)
	}

	if !exists {
		props := &arangodb.CreateCollectionPropertiesV2{}
		if isEdge {
			colType := arangodb.CollectionTypeEdge
			props.Type = &colType
		} else {
			colType := arangodb.CollectionTypeDocument
			props.Type = &colType
		}

		_, err = c.db.CreateCollectionV2(ctx, name, props)
		if err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
		slog.InfoContext(ctx, "arangodb collection created",
			"collection", name,
			"is_edge", isEdge)
	}

	return nil
}

func (c *client) EnsureGraph(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized, call EnsureDatabase first")
	}

	exists, err := c.db.GraphExists(ctx, graphName)
	if err != nil {
		return fmt.Errorf("check graph exists: %w", err)
	}

	if exists {
		return nil
	}

	graphDef := &arangodb.GraphDefinition{
		Name: graphName,
		EdgeDefinitions: []arangodb.EdgeDefinition{
			{Collection: collRelations, From: []string{collEntities, collUsers}, To: []string{collEntities, collUsers}},
		},
	}

	_, err = c.db.CreateGraph(ctx, graphName, graphDef, nil)
	if err != nil {
		return fmt.Errorf("create graph: %w", err)
	}

	slog.InfoContext(ctx, "arangodb graph created", "graph", graphName)
	return nil
}

func (c *client) TruncateCollections(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}

	start := time.Now()

	allCollections := []string{collEntities, collUsers, collRelations}

	for _, name := range allCollections {
		col, err := c.db.GetCollection(ctx, name, nil)
		if err != nil {
			return fmt.Errorf("get collection %s: %w", name, err)
		}

		if err := col.Truncate(ctx); err != nil {
			return fmt.Errorf("truncate collection %s: %w", name, err)
		}
	}

	slog.InfoContext(ctx, "arangodb collections truncated",
		"collections", len(allCollections),
		"duration_ms", time.Since(start).Milliseconds())

	return nil
}

// UpsertNode inserts or replaces an entity/user vertex. Upsert (rather than
// insert-and-ignore-duplicates) is required because dedup layer 2 rewrites
// entity descriptions and aliases in place.
func (c *client) UpsertNode(ctx context.Context, node Node) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}

	collection := collEntities
	if node.UserID != "" {
		collection = collUsers
	}

	col, err := c.db.GetCollection(ctx, collection, nil)
	if err != nil {
		return fmt.Errorf("get collection %s: %w", collection, err)
	}

	id := node.EntityID
	if id == "" {
		id = node.UserID
	}

	doc := map[string]any{
		"_key":        makeKey(id),
		"entity_id":   node.EntityID,
		"name":        node.Name,
		"type":        string(node.Type),
		"description": node.Description,
		"aliases":     node.Aliases,
		"user_id":     node.UserID,
	}

	overwriteMode := arangodb.CollectionDocumentCreateOverwriteModeReplace
	_, err = col.CreateDocumentWithOptions(ctx, doc, &arangodb.CollectionDocumentCreateOptions{OverwriteMode: &overwriteMode})
	if err != nil {
		return fmt.Errorf("upsert node %s: %w", id, err)
	}

	return nil
}

// UpsertEdge inserts or replaces a relation edge, keyed on (from, to, type)
// so re-extraction of the same source text converges instead of duplicating.
func (c *client) UpsertEdge(ctx context.Context, edge Edge) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}

	col, err := c.db.GetCollection(ctx, collRelations, nil)
	if err != nil {
		return fmt.Errorf("get collection %s: %w", collRelations, err)
	}

	fromCol, err := c.collectionFor(ctx, edge.From)
	if err != nil {
		return fmt.Errorf("resolve collection for %s: %w", edge.From, err)
	}
	toCol, err := c.collectionFor(ctx, edge.To)
	if err != nil {
		return fmt.Errorf("resolve collection for %s: %w", edge.To, err)
	}

	doc := map[string]any{
		"_key":          makeEdgeKey(edge.From, edge.To, string(edge.Type)),
		"_from":         fmt.Sprintf("%s/%s", fromCol, makeKey(edge.From)),
		"_to":           fmt.Sprintf("%s/%s", toCol, makeKey(edge.To)),
		"from":          edge.From,
		"to":            edge.To,
		"type":          string(edge.Type),
		"original_type": edge.OriginalType,
		"description":   edge.Description,
		"weight":        edge.Weight,
	}

	overwriteMode := arangodb.CollectionDocumentCreateOverwriteModeReplace
	_, err = col.CreateDocumentWithOptions(ctx, doc, &arangodb.CollectionDocumentCreateOptions{OverwriteMode: &overwriteMode})
	if err != nil {
		return fmt.Errorf("upsert edge %s->%s: %w", edge.From, edge.To, err)
	}

	return nil
}

func (c *client) GetNode(ctx context.Context, entityID string) (Node, error) {
	if c.db == nil {
		return Node{}, fmt.Errorf("database not initialized")
	}

	var doc nodeDoc
	for _, collection := range []string{collEntities, collUsers} {
		col, err := c.db.GetCollection(ctx, collection, nil)
		if err != nil {
			return Node{}, fmt.Errorf("get collection %s: %w", collection, err)
		}

		_, err = col.ReadDocument(ctx, makeKey(entityID), &doc)
		if err == nil {
			return doc.toNode(), nil
		}
	}

	return Node{}, ErrNotFound
}

func (c *client) GetEdge(ctx context.Context, from, to string, relType RelationType) (Edge, error) {
	if c.db == nil {
		return Edge{}, fmt.Errorf("database not initialized")
	}

	col, err := c.db.GetCollection(ctx, collRelations, nil)
	if err != nil {
		return Edge{}, fmt.Errorf("get collection %s: %w", collRelations, err)
	}

	var doc edgeDoc
	_, err = col.ReadDocument(ctx, makeEdgeKey(from, to, string(relType)), &doc)
	if err != nil {
		return Edge{}, ErrNotFound
	}

	return doc.toEdge(), nil
}

func (c *client) HasNode(ctx context.Context, entityID string) (bool, error) {
	_, err := c.GetNode(ctx, entityID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *client) HasEdge(ctx context.Context, from, to string, relType RelationType) (bool, error) {
	_, err := c.GetEdge(ctx, from, to, relType)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AllNodes and AllEdges do a full-collection scan. Called once at startup
// (graphstore's Initialize) to build the interpreter's in-memory mirror.
func (c *client) AllNodes(ctx context.Context) ([]Node, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	var nodes []Node
	for _, collection := range []string{collEntities, collUsers} {
		query := fmt.Sprintf("FOR d IN %s RETURN d", collection)
		cursor, err := c.db.Query(ctx, query, nil)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}

		for cursor.HasMore() {
			var doc nodeDoc
			if _, err := cursor.ReadDocument(ctx, &doc); err != nil {
				cursor.Close()
				return nil, fmt.Errorf("read document: %w", err)
			}
			nodes = append(nodes, doc.toNode())
		}
		cursor.Close()
	}

	return nodes, nil
}

func (c *client) AllEdges(ctx context.Context) ([]Edge, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := fmt.Sprintf("FOR d IN %s RETURN d", collRelations)
	cursor, err := c.db.Query(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collRelations, err)
	}
	defer cursor.Close()

	var edges []Edge
	for cursor.HasMore() {
		var doc edgeDoc
		if _, err := cursor.ReadDocument(ctx, &doc); err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		edges = append(edges, doc.toEdge())
	}

	return edges, nil
}

type nodeDoc struct {
	EntityID    string   `json:"entity_id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases"`
	UserID      string   `json:"user_id"`
}

func (d nodeDoc) toNode() Node {
	return Node{
		EntityID:    d.EntityID,
		Name:        d.Name,
		Type:        EntityType(d.Type),
		Description: d.Description,
		Aliases:     d.Aliases,
		UserID:      d.UserID,
	}
}

type edgeDoc struct {
	From         string  `json:"from"`
	To           string  `json:"to"`
	Type         string  `json:"type"`
	OriginalType string  `json:"original_type"`
	Description  string  `json:"description"`
	Weight       float64 `json:"weight"`
}

func (d edgeDoc) toEdge() Edge {
	return Edge{
		From:         d.From,
		To:           d.To,
		Type:         RelationType(d.Type),
		OriginalType: d.OriginalType,
		Description:  d.Description,
		Weight:       d.Weight,
	}
}

func makeKey(id string) string {
	hash := md5.Sum([]byte(id))
	return hex.EncodeToString(hash[:])[:16]
}

func makeEdgeKey(from, to, relType string) string {
	combined := from + "->" + to + ":" + relType
	hash := md5.Sum([]byte(combined))
	return hex.EncodeToString(hash[:])[:16]
}

// collectionFor resolves whether an id belongs to the entities or the users
// collection. User ids (common/id.New, decimal strings) and entity ids
// (internal/ingest's dedup layer) share no reserved prefix, so this is a
// presence check against the users collection rather than a format check.
// Callers are expected to have already upserted the node the edge points
// to, so a miss in users means entities by elimination.
func (c *client) collectionFor(ctx context.Context, id string) (string, error) {
	col, err := c.db.GetCollection(ctx, collUsers, nil)
	if err != nil {
		return "", fmt.Errorf("get collection %s: %w", collUsers, err)
	}

	exists, err := col.DocumentExists(ctx, makeKey(id))
	if err != nil {
		return "", fmt.Errorf("check document exists in %s: %w", collUsers, err)
	}
	if exists {
		return collUsers, nil
	}

	return collEntities, nil
}
