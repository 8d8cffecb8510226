package ingest

import (
	"sort"
	"strings"

	"algokg.app/core/internal/model"
)

// MergeEntities groups entities from multiple chunks by lower(name),
// concatenating descriptions with line-level dedup, majority-voting the
// type, and unioning aliases and source-chunk lists.
func MergeEntities(entityLists ...[]model.Entity) []model.Entity {
	type group struct {
		entity     model.Entity
		typeCounts map[model.EntityType]int
		descLines  map[string]bool
		order      int
	}

	groups := make(map[string]*group)
	var order []string

	for _, entities := range entityLists {
		for _, ent := range entities {
			key := strings.ToLower(ent.Name)
			g, ok := groups[key]
			if !ok {
				g = &group{
					entity:     ent,
					typeCounts: map[model.EntityType]int{ent.Type: 1},
					descLines:  lineSet(ent.Description),
				}
				g.entity.Aliases = append([]string(nil), ent.Aliases...)
				g.entity.SourceChunk = append([]string(nil), ent.SourceChunk...)
				groups[key] = g
				order = append(order, key)
				continue
			}

			for _, cid := range ent.SourceChunk {
				if !containsString(g.entity.SourceChunk, cid) {
					g.entity.SourceChunk = append(g.entity.SourceChunk, cid)
				}
			}

			if ent.Description != "" {
				var newLines []string
				for _, line := range strings.Split(ent.Description, "\n") {
					if !g.descLines[line] {
						newLines = append(newLines, line)
						g.descLines[line] = true
					}
				}
				if len(newLines) > 0 {
					g.entity.Description = strings.TrimSpace(g.entity.Description + "\n" + strings.Join(newLines, "\n"))
				}
			}

			if ent.Name != g.entity.Name && !containsString(g.entity.Aliases, ent.Name) {
				g.entity.Aliases = append(g.entity.Aliases, ent.Name)
			}
			for _, a := range ent.Aliases {
				if a != g.entity.Name && !containsString(g.entity.Aliases, a) {
					g.entity.Aliases = append(g.entity.Aliases, a)
				}
			}

			g.typeCounts[ent.Type]++
		}
	}

	merged := make([]model.Entity, 0, len(order))
	for _, key := range order {
		g := groups[key]
		g.entity.Type = majorityType(g.typeCounts)
		merged = append(merged, g.entity)
	}
	return merged
}

func lineSet(description string) map[string]bool {
	set := make(map[string]bool)
	if description == "" {
		return set
	}
	for _, line := range strings.Split(description, "\n") {
		set[line] = true
	}
	return set
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// majorityType picks the most common type, breaking ties deterministically
// by the EntityType's name so merges are reproducible.
func majorityType(counts map[model.EntityType]int) model.EntityType {
	types := make([]model.EntityType, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if counts[types[i]] != counts[types[j]] {
			return counts[types[i]] > counts[types[j]]
		}
		return types[i] < types[j]
	})
	return types[0]
}
