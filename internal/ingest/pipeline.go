package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"algokg.app/core/common/llm"
	"algokg.app/core/internal/graphstore"
	"algokg.app/core/internal/model"
	"algokg.app/core/internal/vectorstore"
)

// Document is one source text to ingest.
type Document struct {
	ID   string
	Text string
}

// Options configures a pipeline run.
type Options struct {
	ChunkSize          int
	ChunkOverlap       int
	ExtractConcurrency int64
	FileConcurrency    int64
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 800
	}
	if o.ChunkOverlap <= 0 {
		o.ChunkOverlap = 100
	}
	if o.ExtractConcurrency <= 0 {
		o.ExtractConcurrency = 50
	}
	if o.FileConcurrency <= 0 {
		o.FileConcurrency = 25
	}
	return o
}

// Pipeline runs the full offline ingestion flow: chunk, extract, merge,
// dedup, remap, and persist to the graph and vector stores.
type Pipeline struct {
	chunker   *Chunker
	extractor *Extractor
	dedupLLM  llm.Client
	graph     graphstore.Store
	vectors   vectorstore.Store
	fileSem   *semaphore.Weighted
}

func NewPipeline(chunker *Chunker, extractor *Extractor, dedupLLM llm.Client, graph graphstore.Store, vectors vectorstore.Store, opts Options) *Pipeline {
	opts = opts.withDefaults()
	return &Pipeline{
		chunker:   chunker,
		extractor: extractor,
		dedupLLM:  dedupLLM,
		graph:     graph,
		vectors:   vectors,
		fileSem:   semaphore.NewWeighted(opts.FileConcurrency),
	}
}

// Result summarizes one document's ingestion outcome.
type Result struct {
	DocID         string
	ChunkCount    int
	EntityCount   int
	RelationCount int
}

// IngestDocuments runs one per-document pipeline per input, bounded by the
// file-concurrency semaphore, and returns per-document results in
// submission order.
func (p *Pipeline) IngestDocuments(ctx context.Context, docs []Document, opts Options) ([]Result, error) {
	opts = opts.withDefaults()
	results := make([]Result, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			if err := p.fileSem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer p.fileSem.Release(1)

			res, err := p.ingestOne(gctx, doc, opts)
			if err != nil {
				return fmt.Errorf("ingest document %s: %w", doc.ID, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, doc Document, opts Options) (Result, error) {
	chunks, err := p.chunker.ChunkByTokens(doc.Text, doc.ID, opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return Result{}, fmt.Errorf("chunk: %w", err)
	}
	if len(chunks) == 0 {
		return Result{DocID: doc.ID}, nil
	}

	entityLists := make([][]model.Entity, len(chunks))
	relationLists := make([][]model.Relation, len(chunks))

	eg, egctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		eg.Go(func() error {
			ents, rels, err := p.extractor.ExtractChunk(egctx, chunk)
			if err != nil {
				return fmt.Errorf("extract chunk %s: %w", chunk.ID, err)
			}
			entityLists[i] = ents
			relationLists[i] = rels
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Result{}, err
	}

	entities := MergeEntities(entityLists...)
	var relations []model.Relation
	for _, rels := range relationLists {
		relations = append(relations, rels...)
	}

	entities, nameMap1 := DedupAliasCrossRef(entities)

	var entities2 []model.Entity
	var nameMap2 map[string]string
	if p.dedupLLM != nil {
		entities2, nameMap2 = DedupByLLM(ctx, p.dedupLLM, entities)
	} else {
		entities2, nameMap2 = entities, map[string]string{}
	}

	combinedNameMap := make(map[string]string, len(nameMap1)+len(nameMap2))
	for k, v := range nameMap1 {
		combinedNameMap[k] = v
	}
	for k, v := range nameMap2 {
		combinedNameMap[k] = resolveName(v, nameMap2)
	}
	for k := range combinedNameMap {
		combinedNameMap[k] = resolveName(combinedNameMap[k], nameMap2)
	}

	relations = RemapRelations(relations, combinedNameMap)

	if err := p.persist(ctx, chunks, entities2, relations); err != nil {
		return Result{}, fmt.Errorf("persist: %w", err)
	}

	slog.InfoContext(ctx, "ingested document",
		"doc_id", doc.ID, "chunks", len(chunks), "entities", len(entities2), "relations", len(relations))

	return Result{
		DocID:         doc.ID,
		ChunkCount:    len(chunks),
		EntityCount:   len(entities2),
		RelationCount: len(relations),
	}, nil
}

func (p *Pipeline) persist(ctx context.Context, chunks []model.TextChunk, entities []model.Entity, relations []model.Relation) error {
	records := make(map[string]vectorstore.UpsertRecord, len(chunks))
	for _, c := range chunks {
		meta := map[string]any{"doc_id": c.DocID}
		for k, v := range c.Metadata {
			meta[k] = v
		}
		records[c.ID] = vectorstore.UpsertRecord{Content: c.Text, Metadata: meta}
	}
	if err := p.vectors.Upsert(ctx, records); err != nil {
		return fmt.Errorf("upsert chunk vectors: %w", err)
	}

	for _, ent := range entities {
		node := graphstore.Node{
			EntityID:    ent.ID,
			Name:        ent.Name,
			Type:        string(ent.Type),
			Description: ent.Description,
			Aliases:     ent.Aliases,
		}
		if err := p.graph.UpsertNode(ctx, node); err != nil {
			return fmt.Errorf("upsert node %s: %w", ent.Name, err)
		}
	}

	byName := make(map[string]model.Entity, len(entities))
	for _, ent := range entities {
		byName[ent.Name] = ent
	}

	for _, rel := range relations {
		src, ok := byName[rel.Source]
		if !ok {
			continue
		}
		tgt, ok := byName[rel.Target]
		if !ok {
			continue
		}
		edge := graphstore.Edge{
			From:         src.ID,
			To:           tgt.ID,
			Type:         string(rel.Type),
			OriginalType: string(rel.Type),
			Description:  rel.Description,
			Weight:       rel.Weight,
		}
		if err := p.graph.UpsertEdge(ctx, edge); err != nil {
			return fmt.Errorf("upsert edge %s->%s: %w", rel.Source, rel.Target, err)
		}
	}

	return nil
}
