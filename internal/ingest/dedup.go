package ingest

import (
	"context"
	"log/slog"
	"strings"

	"algokg.app/core/common/llm"
	"algokg.app/core/internal/model"
)

const minAliasTokenLen = 2

// unionFind is a plain index-keyed parent array — no pointer cycles.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra != rb {
		uf.parent[rb] = ra
	}
}

// DedupAliasCrossRef unions entities whose name/alias sets overlap — A's
// name matches B's alias, or vice versa; alias-to-alias overlap is
// deliberately not unioned (too noisy for layer 1). For each
// connected component it picks the longest name as canonical, re-merges
// the component, preserves the original names as aliases, and recomputes
// the entity id. Returns the deduplicated entities and a name_map from
// every displaced name to its canonical name.
func DedupAliasCrossRef(entities []model.Entity) ([]model.Entity, map[string]string) {
	if len(entities) == 0 {
		return entities, map[string]string{}
	}

	n := len(entities)
	uf := newUnionFind(n)

	nameToIdx := make(map[string]int, n)
	aliasToIdx := make(map[string][]int)

	for i, ent := range entities {
		nameLower := strings.ToLower(strings.TrimSpace(ent.Name))
		if len(nameLower) >= minAliasTokenLen {
			nameToIdx[nameLower] = i
		}
		for _, alias := range ent.Aliases {
			tok := strings.ToLower(strings.TrimSpace(alias))
			if len(tok) >= minAliasTokenLen {
				aliasToIdx[tok] = append(aliasToIdx[tok], i)
			}
		}
	}

	for nameTok, nameIdx := range nameToIdx {
		for _, aliasIdx := range aliasToIdx[nameTok] {
			if aliasIdx != nameIdx {
				uf.union(nameIdx, aliasIdx)
			}
		}
	}

	groupsByRoot := make(map[int][]model.Entity)
	var rootOrder []int
	seenRoot := make(map[int]bool)
	for i, ent := range entities {
		root := uf.find(i)
		groupsByRoot[root] = append(groupsByRoot[root], ent)
		if !seenRoot[root] {
			seenRoot[root] = true
			rootOrder = append(rootOrder, root)
		}
	}

	merged := make([]model.Entity, 0, len(rootOrder))
	nameMap := make(map[string]string)

	for _, root := range rootOrder {
		group := groupsByRoot[root]
		if len(group) == 1 {
			merged = append(merged, group[0])
			continue
		}

		canonicalName := group[0].Name
		for _, ent := range group[1:] {
			if len(ent.Name) > len(canonicalName) {
				canonicalName = ent.Name
			}
		}

		var originalNames []string
		normalized := make([]model.Entity, len(group))
		for i, ent := range group {
			if ent.Name != canonicalName {
				originalNames = append(originalNames, ent.Name)
			}
			normalized[i] = ent
			normalized[i].Name = canonicalName
		}

		result := MergeEntities(normalized)
		if len(result) != 1 {
			slog.Warn("alias cross-ref merge produced unexpected entity count",
				"canonical", canonicalName, "count", len(result))
			merged = append(merged, result...)
			continue
		}

		canonical := result[0]
		for _, orig := range originalNames {
			if !containsString(canonical.Aliases, orig) {
				canonical.Aliases = append(canonical.Aliases, orig)
			}
		}
		canonical.ID = model.EntityID(canonicalName)
		merged = append(merged, canonical)

		for _, ent := range group {
			if ent.Name != canonicalName {
				nameMap[ent.Name] = canonicalName
			}
		}
	}

	return merged, nameMap
}

type dedupGroupWire struct {
	Canonical  string   `json:"canonical"`
	Duplicates []string `json:"duplicates"`
}

type dedupResultWire struct {
	Groups []dedupGroupWire `json:"groups"`
}

var dedupSchema = llm.GenerateSchemaFrom(dedupResultWire{})

const dedupSystemPrompt = `You are a knowledge-graph deduplication expert.
You will be given a numbered list of entities (name + aliases). Identify groups of
entities that refer to the SAME concept (different surface forms of one thing).

Rules:
- Only merge entities that are genuinely the same concept expressed differently.
- Do NOT merge entities that are merely related (e.g. "BFS" and "Queue").
- "canonical" must be one of the existing entity names listed.
- If no duplicates are found, return an empty groups array.`

// DedupByLLM asks the model, in one call, to identify duplicate entity
// groups among the entities layer 1 couldn't merge deterministically
//. The model's "canonical" is validated against the
// current name set before any merge is applied.
func DedupByLLM(ctx context.Context, client llm.Client, entities []model.Entity) ([]model.Entity, map[string]string) {
	if len(entities) < 2 {
		return entities, map[string]string{}
	}

	nameSet := make(map[string]bool, len(entities))
	byName := make(map[string]model.Entity, len(entities))
	var listing strings.Builder
	for i, ent := range entities {
		nameSet[ent.Name] = true
		byName[ent.Name] = ent
		aliasStr := "(none)"
		if len(ent.Aliases) > 0 {
			aliasStr = strings.Join(ent.Aliases, ", ")
		}
		listing.WriteString(itoa(i + 1))
		listing.WriteString(". ")
		listing.WriteString(ent.Name)
		listing.WriteString("  [aliases: ")
		listing.WriteString(aliasStr)
		listing.WriteString("]\n")
	}

	var result dedupResultWire
	_, err := client.Chat(ctx, llm.Request{
		SystemPrompt: dedupSystemPrompt,
		UserPrompt:   listing.String(),
		SchemaName:   "entity_dedup",
		Schema:       dedupSchema,
		MaxTokens:    1500,
		Temperature:  llm.Temp(0),
	}, &result)
	if err != nil {
		slog.Warn("LLM dedup call failed, skipping layer 2", "error", err)
		return entities, map[string]string{}
	}

	nameMap := make(map[string]string)
	for _, g := range result.Groups {
		if g.Canonical == "" || !nameSet[g.Canonical] {
			slog.Warn("LLM dedup: canonical not found, skipping group", "canonical", g.Canonical)
			continue
		}
		for _, dup := range g.Duplicates {
			if dup != g.Canonical && nameSet[dup] {
				nameMap[dup] = g.Canonical
			}
		}
	}
	if len(nameMap) == 0 {
		return entities, nameMap
	}

	for dupName, canonName := range nameMap {
		dupEnt, ok := byName[dupName]
		if !ok {
			continue
		}
		canonEnt, ok := byName[canonName]
		if !ok {
			continue
		}
		dupNormalized := dupEnt
		dupNormalized.Name = canonName
		merged := MergeEntities([]model.Entity{canonEnt, dupNormalized})
		mergedEnt := merged[0]
		if !containsString(mergedEnt.Aliases, dupName) {
			mergedEnt.Aliases = append(mergedEnt.Aliases, dupName)
		}
		mergedEnt.ID = model.EntityID(canonName)
		byName[canonName] = mergedEnt
		delete(byName, dupName)
	}

	out := make([]model.Entity, 0, len(byName))
	for _, ent := range entities {
		if merged, ok := byName[ent.Name]; ok {
			out = append(out, merged)
			delete(byName, ent.Name)
		}
	}
	return out, nameMap
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}
