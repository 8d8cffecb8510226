package ingest

import "algokg.app/core/internal/model"

// resolveName follows nameMap transitively to its final canonical name,
// guarding against a pathological cycle the dedup layers should never
// produce but that a relation remap must not hang on.
func resolveName(name string, nameMap map[string]string) string {
	seen := make(map[string]bool)
	for {
		next, ok := nameMap[name]
		if !ok || seen[next] {
			return name
		}
		seen[name] = true
		name = next
	}
}

// RemapRelations resolves every relation endpoint through the combined
// name_map produced by the two dedup layers, drops relations that became
// self-loops as a result, and removes duplicate (source, target, type)
// triples, keeping the first occurrence.
func RemapRelations(relations []model.Relation, nameMap map[string]string) []model.Relation {
	type triple struct {
		source, target string
		relType        model.RelationType
	}

	seen := make(map[triple]bool, len(relations))
	out := make([]model.Relation, 0, len(relations))

	for _, rel := range relations {
		source := resolveName(rel.Source, nameMap)
		target := resolveName(rel.Target, nameMap)
		if source == target {
			continue
		}

		key := triple{source: source, target: target, relType: rel.Type}
		if seen[key] {
			continue
		}
		seen[key] = true

		remapped := rel
		remapped.Source = source
		remapped.Target = target
		out = append(out, remapped)
	}

	return out
}
