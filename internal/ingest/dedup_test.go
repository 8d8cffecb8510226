package ingest

import (
	"testing"

	"algokg.app/core/internal/model"
)

func TestDedupAliasCrossRefIdentityForSingleEntity(t *testing.T) {
	entities := []model.Entity{{Name: "Trie", Type: model.EntityDataStructure}}
	merged, nameMap := DedupAliasCrossRef(entities)

	if len(merged) != 1 || merged[0].Name != "Trie" {
		t.Fatalf("merged = %+v, want identity", merged)
	}
	if len(nameMap) != 0 {
		t.Errorf("nameMap = %v, want empty", nameMap)
	}
}

// Mirrors the scenario from the testable properties section: BFS, its
// alias, and its CJK name must collapse to one entity, canonical name is
// the longest ("Breadth-First Search"), and both short forms survive as
// aliases.
func TestDedupAliasCrossRefCollapsesAliasOverlap(t *testing.T) {
	entities := []model.Entity{
		{Name: "Breadth-First Search", Type: model.EntityAlgorithm, Aliases: []string{"BFS"}, SourceChunk: []string{"c1"}},
		{Name: "BFS", Type: model.EntityAlgorithm, SourceChunk: []string{"c2"}},
		{Name: "广度优先搜索", Type: model.EntityAlgorithm, SourceChunk: []string{"c3"}},
	}

	merged, nameMap := DedupAliasCrossRef(entities)
	if len(merged) != 1 {
		t.Fatalf("len(merged) = %d, want 1, got %+v", len(merged), merged)
	}

	ent := merged[0]
	if ent.Name != "Breadth-First Search" {
		t.Errorf("canonical name = %q, want longest name", ent.Name)
	}
	if !containsString(ent.Aliases, "BFS") {
		t.Errorf("aliases = %v, want to contain BFS", ent.Aliases)
	}
	if !containsString(ent.Aliases, "广度优先搜索") {
		t.Errorf("aliases = %v, want to contain 广度优先搜索", ent.Aliases)
	}

	if got := nameMap["BFS"]; got != "Breadth-First Search" {
		t.Errorf("nameMap[BFS] = %q, want Breadth-First Search", got)
	}
	if got := nameMap["广度优先搜索"]; got != "Breadth-First Search" {
		t.Errorf("nameMap[广度优先搜索] = %q, want Breadth-First Search", got)
	}

	relations := []model.Relation{{Source: "BFS", Target: "Queue", Type: model.RelationUses}}
	remapped := RemapRelations(relations, nameMap)
	if len(remapped) != 1 || remapped[0].Source != "Breadth-First Search" || remapped[0].Target != "Queue" {
		t.Errorf("remapped = %+v, want BFS->Queue remapped to canonical source", remapped)
	}
}

func TestDedupAliasCrossRefIsIdempotent(t *testing.T) {
	entities := []model.Entity{
		{Name: "Breadth-First Search", Type: model.EntityAlgorithm, Aliases: []string{"BFS"}},
		{Name: "BFS", Type: model.EntityAlgorithm},
	}

	once, _ := DedupAliasCrossRef(entities)
	twice, nameMap2 := DedupAliasCrossRef(once)

	if len(twice) != len(once) {
		t.Fatalf("second pass changed entity count: %d vs %d", len(twice), len(once))
	}
	if len(nameMap2) != 0 {
		t.Errorf("second-pass nameMap = %v, want empty (no-op on already-deduped input)", nameMap2)
	}
}

func TestDedupAliasCrossRefDoesNotUnionAliasToAlias(t *testing.T) {
	entities := []model.Entity{
		{Name: "Algorithm One", Type: model.EntityAlgorithm, Aliases: []string{"AO"}},
		{Name: "Algorithm Two", Type: model.EntityAlgorithm, Aliases: []string{"AO"}},
	}

	merged, _ := DedupAliasCrossRef(entities)
	if len(merged) != 2 {
		t.Errorf("len(merged) = %d, want 2 (alias-to-alias overlap must not union)", len(merged))
	}
}

func TestDedupAliasCrossRefIgnoresShortTokens(t *testing.T) {
	entities := []model.Entity{
		{Name: "A", Type: model.EntityConcept},
		{Name: "Something else entirely", Type: model.EntityConcept, Aliases: []string{"A"}},
	}

	merged, nameMap := DedupAliasCrossRef(entities)
	if len(merged) != 2 {
		t.Errorf("len(merged) = %d, want 2 (single-char names/aliases must not union)", len(merged))
	}
	if len(nameMap) != 0 {
		t.Errorf("nameMap = %v, want empty", nameMap)
	}
}
