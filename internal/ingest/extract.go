package ingest

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/semaphore"

	"algokg.app/core/common/llm"
	"algokg.app/core/internal/model"
)

// extractionSystemPrompt defines the entity/relation types, naming rules,
// and the "every relation endpoint must be a verbatim entity name"
// invariant for structured extraction.
const extractionSystemPrompt = `You are an algorithm knowledge extraction expert for competitive programming (OI / ICPC). Given the text below, extract entities and relations.

## Entity Types (use EXACTLY one per entity)
- Algorithm — a named, deterministic computational procedure with well-defined steps (e.g. Dijkstra's Algorithm, Merge Sort).
- DataStructure — a named, reusable data organisation with defined operations and complexity guarantees (e.g. Binary Heap, Segment Tree).
- Technique — a reusable problem-solving pattern or strategy that is NOT a single fixed procedure (e.g. Divide and Conquer, Two Pointers).
- Problem — a concrete contest problem or a well-known problem class.
- Concept — a theoretical notion, mathematical property, or complexity measure; the residual category.

## Relation Types (use EXACTLY one per relation)
- PREREQ, VARIANT_OF, IMPROVES, USES, APPLIES_TO (always solver -> problem), BELONGS_TO, RELATED_TO (fallback only)

## Quality Rules
1. Only extract entities a student would look up as an independent topic.
2. Do NOT extract implementation details (loop variables, temporary arrays, direction vectors).
3. Prefer specific over vague names.
4. Every relation source/target MUST be copied verbatim from an entity's "name" field.
5. Use the full English name as entity name; put abbreviations/alternate names in "aliases".

Return ONLY valid JSON matching the response schema.`

type extractionEntity struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases"`
}

type extractionRelation struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type extractionResult struct {
	Entities  []extractionEntity   `json:"entities"`
	Relations []extractionRelation `json:"relations"`
}

var extractionSchema = llm.GenerateSchemaFrom(extractionResult{})

var knownEntityTypes = map[string]model.EntityType{
	string(model.EntityAlgorithm):     model.EntityAlgorithm,
	string(model.EntityDataStructure): model.EntityDataStructure,
	string(model.EntityTechnique):     model.EntityTechnique,
	string(model.EntityProblem):       model.EntityProblem,
	string(model.EntityConcept):       model.EntityConcept,
}

var knownRelationTypes = map[string]model.RelationType{
	string(model.RelationPrereq): model.RelationPrereq, string(model.RelationVariantOf): model.RelationVariantOf,
	string(model.RelationImproves): model.RelationImproves, string(model.RelationUses): model.RelationUses,
	string(model.RelationAppliesTo): model.RelationAppliesTo, string(model.RelationBelongsTo): model.RelationBelongsTo,
	string(model.RelationRelatedTo): model.RelationRelatedTo,
}

// Extractor runs one structured-output model call per chunk, bounded by a
// shared semaphore, to produce Entity/Relation records. The call uses
// common/llm.Client's JSON-schema-constrained completion so the output
// shape is fixed at the API layer; the one retry on an empty result still
// matters since strict mode reduces but does not eliminate
// empty/truncated completions.
type Extractor struct {
	LLM llm.Client
	Sem *semaphore.Weighted
}

func NewExtractor(client llm.Client, concurrency int64) *Extractor {
	if concurrency <= 0 {
		concurrency = 50
	}
	return &Extractor{LLM: client, Sem: semaphore.NewWeighted(concurrency)}
}

// ExtractChunk extracts entities and relations from a single chunk,
// retrying once on an unparseable response.
func (e *Extractor) ExtractChunk(ctx context.Context, chunk model.TextChunk) ([]model.Entity, []model.Relation, error) {
	if err := e.Sem.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}
	defer e.Sem.Release(1)

	entities, relations := e.call(ctx, chunk)
	if len(entities) == 0 && len(relations) == 0 {
		slog.InfoContext(ctx, "retrying extraction for chunk", "chunk_id", chunk.ID)
		entities, relations = e.call(ctx, chunk)
	}

	return entities, relations, nil
}

func (e *Extractor) call(ctx context.Context, chunk model.TextChunk) ([]model.Entity, []model.Relation) {
	var result extractionResult
	_, err := e.LLM.Chat(ctx, llm.Request{
		SystemPrompt: extractionSystemPrompt,
		UserPrompt:   chunk.Text,
		SchemaName:   "entity_extraction",
		Schema:       extractionSchema,
		MaxTokens:    2000,
		Temperature:  llm.Temp(0),
	}, &result)
	if err != nil {
		slog.ErrorContext(ctx, "chunk extraction call failed", "chunk_id", chunk.ID, "error", err)
		return nil, nil
	}
	return normalizeExtraction(result, chunk.ID)
}

func normalizeExtraction(result extractionResult, chunkID string) ([]model.Entity, []model.Relation) {
	entities := make([]model.Entity, 0, len(result.Entities))
	names := make(map[string]bool, len(result.Entities))
	for _, e := range result.Entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		entType, ok := knownEntityTypes[e.Type]
		if !ok {
			entType = model.EntityConcept
		}
		aliases := make([]string, 0, len(e.Aliases))
		for _, a := range e.Aliases {
			if strings.TrimSpace(a) != "" {
				aliases = append(aliases, a)
			}
		}
		entities = append(entities, model.Entity{
			ID:          model.EntityID(name),
			Name:        name,
			Type:        entType,
			Description: e.Description,
			Aliases:     aliases,
			SourceChunk: []string{chunkID},
		})
		names[name] = true
	}

	relations := make([]model.Relation, 0, len(result.Relations))
	for _, r := range result.Relations {
		src, tgt := strings.TrimSpace(r.Source), strings.TrimSpace(r.Target)
		if src == "" || tgt == "" {
			continue
		}
		if !names[src] || !names[tgt] {
			slog.Warn("dropping relation: endpoint not in entity set",
				"source", src, "target", tgt, "type", r.Type, "chunk_id", chunkID)
			continue
		}
		relType, ok := knownRelationTypes[r.Type]
		if !ok {
			relType = model.RelationRelatedTo
		}
		relations = append(relations, model.Relation{
			Source: src, Target: tgt, Type: relType, Description: r.Description, Weight: 1.0,
		})
	}

	return entities, relations
}
