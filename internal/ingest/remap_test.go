package ingest

import (
	"testing"

	"algokg.app/core/internal/model"
)

func TestRemapRelationsResolvesTransitively(t *testing.T) {
	nameMap := map[string]string{
		"BFS":              "Breadth-First Search Variant",
		"Breadth-First Search Variant": "Breadth-First Search",
	}
	relations := []model.Relation{
		{Source: "BFS", Target: "Queue", Type: model.RelationUses},
	}

	got := RemapRelations(relations, nameMap)
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if got[0].Source != "Breadth-First Search" {
		t.Errorf("Source = %q, want transitively resolved canonical name", got[0].Source)
	}
}

func TestRemapRelationsDropsSelfLoops(t *testing.T) {
	nameMap := map[string]string{"BFS": "Breadth-First Search"}
	relations := []model.Relation{
		{Source: "BFS", Target: "Breadth-First Search", Type: model.RelationVariantOf},
	}

	got := RemapRelations(relations, nameMap)
	if len(got) != 0 {
		t.Errorf("got = %+v, want self-loop dropped", got)
	}
}

func TestRemapRelationsDedupesTriples(t *testing.T) {
	relations := []model.Relation{
		{Source: "Dijkstra's Algorithm", Target: "Priority Queue", Type: model.RelationUses, Description: "first"},
		{Source: "Dijkstra's Algorithm", Target: "Priority Queue", Type: model.RelationUses, Description: "second"},
	}

	got := RemapRelations(relations, nil)
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1 (duplicate triple dropped)", len(got))
	}
	if got[0].Description != "first" {
		t.Errorf("Description = %q, want first occurrence kept", got[0].Description)
	}
}

func TestRemapRelationsKeepsDistinctTypesBetweenSameEndpoints(t *testing.T) {
	relations := []model.Relation{
		{Source: "A Algorithm", Target: "B Algorithm", Type: model.RelationPrereq},
		{Source: "A Algorithm", Target: "B Algorithm", Type: model.RelationImproves},
	}

	got := RemapRelations(relations, nil)
	if len(got) != 2 {
		t.Errorf("len(got) = %d, want 2 (different relation types are distinct triples)", len(got))
	}
}

func TestRemapRelationsHandlesMapCycleGracefully(t *testing.T) {
	nameMap := map[string]string{"X": "Y", "Y": "X"}
	relations := []model.Relation{{Source: "X", Target: "Z", Type: model.RelationRelatedTo}}

	got := RemapRelations(relations, nameMap)
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if got[0].Source != "X" && got[0].Source != "Y" {
		t.Errorf("Source = %q, want resolveName to terminate on a cycle", got[0].Source)
	}
}
