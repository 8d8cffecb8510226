package ingest

import (
	"testing"

	"algokg.app/core/internal/model"
)

func TestMergeEntitiesGroupsByLowerName(t *testing.T) {
	a := []model.Entity{
		{Name: "Dijkstra's Algorithm", Type: model.EntityAlgorithm, Description: "Finds shortest paths.", SourceChunk: []string{"c1"}},
	}
	b := []model.Entity{
		{Name: "dijkstra's algorithm", Type: model.EntityAlgorithm, Description: "Uses a priority queue.", Aliases: []string{"Dijkstra"}, SourceChunk: []string{"c2"}},
	}

	merged := MergeEntities(a, b)
	if len(merged) != 1 {
		t.Fatalf("len(merged) = %d, want 1", len(merged))
	}

	ent := merged[0]
	if ent.Name != "Dijkstra's Algorithm" {
		t.Errorf("Name = %q, want first-seen casing", ent.Name)
	}
	if ent.Description != "Finds shortest paths.\nUses a priority queue." {
		t.Errorf("Description = %q", ent.Description)
	}
	if len(ent.SourceChunk) != 2 {
		t.Errorf("SourceChunk = %v, want 2 entries", ent.SourceChunk)
	}
	if !containsString(ent.Aliases, "Dijkstra") {
		t.Errorf("Aliases = %v, want to contain Dijkstra", ent.Aliases)
	}
}

func TestMergeEntitiesDedupsDescriptionLines(t *testing.T) {
	a := []model.Entity{{Name: "BFS", Type: model.EntityAlgorithm, Description: "Visits nodes level by level."}}
	b := []model.Entity{{Name: "BFS", Type: model.EntityAlgorithm, Description: "Visits nodes level by level."}}

	merged := MergeEntities(a, b)
	if merged[0].Description != "Visits nodes level by level." {
		t.Errorf("Description = %q, want no duplicated line", merged[0].Description)
	}
}

func TestMergeEntitiesMajorityTypeVote(t *testing.T) {
	entities := []model.Entity{
		{Name: "Two Pointers", Type: model.EntityTechnique},
		{Name: "Two Pointers", Type: model.EntityTechnique},
		{Name: "Two Pointers", Type: model.EntityConcept},
	}

	merged := MergeEntities(entities)
	if merged[0].Type != model.EntityTechnique {
		t.Errorf("Type = %q, want majority vote %q", merged[0].Type, model.EntityTechnique)
	}
}

func TestMergeEntitiesSingleEntityIsIdentity(t *testing.T) {
	entities := []model.Entity{{Name: "Union-Find", Type: model.EntityDataStructure, Description: "Disjoint set."}}
	merged := MergeEntities(entities)
	if len(merged) != 1 || merged[0].Name != "Union-Find" || merged[0].Description != "Disjoint set." {
		t.Errorf("merged = %+v, want identity", merged)
	}
}

func TestMergeEntitiesPreservesSubmissionOrder(t *testing.T) {
	entities := []model.Entity{
		{Name: "Z Algorithm", Type: model.EntityAlgorithm},
		{Name: "A Algorithm", Type: model.EntityAlgorithm},
	}
	merged := MergeEntities(entities)
	if merged[0].Name != "Z Algorithm" || merged[1].Name != "A Algorithm" {
		t.Errorf("merge order = %v, want submission order preserved", merged)
	}
}
