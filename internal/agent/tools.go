package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"algokg.app/core/common/llm"
	"algokg.app/core/internal/graphstore"
	"algokg.app/core/internal/vectorstore"
)

// Tool is one retrieval capability a sub-agent can invoke. Run never
// returns a Go error: a failure is communicated as a plain-text
// observation, exactly like the tool's Python original, since the
// sub-agent treats every observation as untrusted text to reason over.
type Tool interface {
	Name() string
	Run(ctx context.Context, input string) string
}

// ---------------------------------------------------------------------
// vector_search
// ---------------------------------------------------------------------

type VectorSearchTool struct {
	Store vectorstore.Store
	TopK  int
}

func (t *VectorSearchTool) Name() string { return "vector_search" }

func (t *VectorSearchTool) Run(ctx context.Context, query string) string {
	results, err := t.Store.Query(ctx, query, t.TopK)
	if err != nil {
		slog.ErrorContext(ctx, "vector search failed", "query", query, "error", err)
		return "Vector search is temporarily unavailable. Please try again later."
	}
	if len(results) == 0 {
		return "No relevant text chunks found."
	}

	parts := make([]string, 0, len(results))
	for i, r := range results {
		header := fmt.Sprintf("[%d] (score=%.3f", i+1, r.Score)
		if docID, ok := r.Metadata["doc_id"].(string); ok && docID != "" {
			header += fmt.Sprintf(", doc=%s", docID)
		}
		if kw, ok := r.Metadata["keyword_score"].(int); ok && kw > 0 {
			header += fmt.Sprintf(", kw=%d", kw)
		}
		if len(r.ID) > 0 {
			id := r.ID
			if len(id) > 8 {
				id = id[:8]
			}
			header += fmt.Sprintf(", id=%s", id)
		}
		header += ")"
		parts = append(parts, header+"\n"+r.Content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// ---------------------------------------------------------------------
// graph_query — natural language -> structured query -> GraphStore
// ---------------------------------------------------------------------

const cypherDefaultLimit = 50

var (
	cypherWritePattern = regexp.MustCompile(
		`(?i)\b(CREATE|MERGE|DELETE|DETACH|SET|REMOVE|DROP|CALL|LOAD CSV|FOREACH)\b`)
	apocPattern        = regexp.MustCompile(`(?i)\bapoc\.`)
	firstKeywordRE     = regexp.MustCompile(`(?i)^\s*([A-Za-z]+)`)
	returnClauseRE     = regexp.MustCompile(`(?i)\bRETURN\b`)
	limitClauseRE      = regexp.MustCompile(`(?i)\bLIMIT\b`)
	blockCommentRE     = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentRE      = regexp.MustCompile(`//[^\n]*`)
	cypherStartKeyword = map[string]bool{"MATCH": true, "OPTIONAL": true, "WITH": true, "UNWIND": true, "RETURN": true}
)

func stripCypherComments(text string) string {
	text = blockCommentRE.ReplaceAllString(text, " ")
	text = lineCommentRE.ReplaceAllString(text, " ")
	return text
}

// normalizeCypher undoes common LLM formatting noise: a leading language
// tag line ("cypher"/"cql"/"query") and a truncated "CH" standing in for
// "MATCH".
func normalizeCypher(raw string) string {
	text := strings.TrimSpace(stripCodeFences(raw))
	if text == "" {
		return text
	}

	lines := strings.Split(text, "\n")
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i < len(lines) {
		first := strings.ToLower(strings.TrimSpace(lines[i]))
		if first == "cypher" || first == "cql" || first == "query" || strings.HasPrefix(first, "cypher:") {
			i++
			for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
				i++
			}
		}
	}
	text = strings.TrimSpace(strings.Join(lines[i:], "\n"))
	if text == "" {
		return text
	}

	if m := firstKeywordRE.FindStringSubmatchIndex(text); m != nil {
		if strings.ToUpper(text[m[2]:m[3]]) == "CH" {
			text = text[:m[2]] + "MATCH" + text[m[3]:]
		}
	}
	return text
}

// validateReadCypher applies the read-only safety allow-list from spec
// §4.5 step 3: no write/effect keyword, no apoc. prefix, a recognized
// leading clause keyword, and a RETURN clause.
func validateReadCypher(cypher string) (ok bool, issue string) {
	stripped := strings.TrimSpace(stripCypherComments(cypher))
	if stripped == "" {
		return false, "empty query"
	}
	if cypherWritePattern.MatchString(stripped) || apocPattern.MatchString(stripped) {
		return false, "unsafe keyword detected"
	}
	m := firstKeywordRE.FindStringSubmatch(stripped)
	if m == nil {
		return false, "missing leading clause keyword"
	}
	first := strings.ToUpper(m[1])
	if !cypherStartKeyword[first] {
		return false, "unexpected leading clause keyword: " + first
	}
	if !returnClauseRE.MatchString(stripped) {
		return false, "missing RETURN clause"
	}
	return true, ""
}

func ensureLimit(cypher string) string {
	if limitClauseRE.MatchString(stripCypherComments(cypher)) {
		return cypher
	}
	return strings.TrimRight(strings.TrimSpace(cypher), ";") + fmt.Sprintf(" LIMIT %d", cypherDefaultLimit)
}

const graphSchema = `
Node labels: Entity (Algorithm, DataStructure, Technique, Problem, Concept), User
Entity properties: entity_id (string, unique), name (string), type (string), description (string), aliases (list of strings — abbreviations and alternative names, e.g. ["BFS", "广度优先搜索"])
User properties: entity_id (string, unique), user_id (string)

Relationship types:
  PREREQ        — source needs target as a learning prerequisite
  VARIANT_OF    — source is a specialisation / variant of target
  IMPROVES      — source improves target in time/space complexity or applicability
  USES          — source uses target as an implementation component
  APPLIES_TO    — solver -> problem (always this direction)
  BELONGS_TO    — source belongs to target category / family
  RELATED_TO    — general relationship (fallback)
  MASTERED | WEAK_AT | INTERESTED_IN — user profile relations

Preferred query patterns:
  MATCH (e:Entity) WHERE e.type = "Algorithm" ...
  MATCH (e:Entity) WHERE toLower(e.name) = toLower("Breadth-First Search") OR $alias IN coalesce(e.aliases, [])
`

func cypherGenerationPrompt(question string) string {
	return fmt.Sprintf("You are a Cypher query generator for an algorithm knowledge graph.\n\n"+
		"## Graph Schema\n%s\n\n"+
		"## Task\nConvert the following natural language question into a valid Cypher **read-only** query.\n"+
		"Return ONLY the Cypher query, no explanation.\n\n"+
		"## Allowed Cypher clauses\nMATCH, OPTIONAL MATCH, WHERE, WITH, RETURN, ORDER BY, LIMIT, UNWIND, AS\n\n"+
		"## Forbidden\nNever use CREATE, MERGE, DELETE, DETACH, SET, REMOVE, DROP, CALL, LOAD CSV, FOREACH, or any apoc.* procedure.\n\n"+
		"## Question\n%s\n", graphSchema, question)
}

func cypherRepairPrompt(question, cypher, issue string) string {
	return fmt.Sprintf("You are a Cypher query generator for an algorithm knowledge graph.\n\n"+
		"## Graph Schema\n%s\n\n"+
		"## Task\nFix the Cypher query so it is valid and answers the question. The query MUST be read-only.\n"+
		"Return ONLY the Cypher query, no explanation.\n\n"+
		"## Allowed Cypher clauses\nMATCH, OPTIONAL MATCH, WHERE, WITH, RETURN, ORDER BY, LIMIT, UNWIND, AS\n\n"+
		"## Forbidden\nNever use CREATE, MERGE, DELETE, DETACH, SET, REMOVE, DROP, CALL, LOAD CSV, FOREACH, or any apoc.* procedure.\n\n"+
		"## Question\n%s\n\n## Current Cypher (broken)\n%s\n\n## Issue\n%s\n", graphSchema, question, cypher, issue)
}

const (
	rejectedMessage = "Query rejected: only read operations are allowed."
	genericFailure  = "Graph query failed. Please try rephrasing your question."
)

type GraphQueryTool struct {
	LLM   llm.ChatModel
	Store graphstore.Store
}

func (t *GraphQueryTool) Name() string { return "graph_query" }

func (t *GraphQueryTool) postprocess(raw string) (cypher, issue string) {
	cypher = normalizeCypher(raw)
	ok, iss := validateReadCypher(cypher)
	if !ok {
		return cypher, iss
	}
	return ensureLimit(cypher), ""
}

func (t *GraphQueryTool) generate(ctx context.Context, prompt string) (string, error) {
	zero := 0.0
	completion, err := t.LLM.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}}, 500, &zero)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(completion.Content), nil
}

func (t *GraphQueryTool) Run(ctx context.Context, question string) string {
	raw, err := t.generate(ctx, cypherGenerationPrompt(question))
	if err != nil {
		slog.ErrorContext(ctx, "cypher generation failed", "error", err)
		return genericFailure
	}

	cypher, issue := t.postprocess(raw)
	if issue != "" {
		slog.WarnContext(ctx, "generated invalid cypher", "issue", issue, "cypher", cypher)
		repaired, err := t.generate(ctx, cypherRepairPrompt(question, cypher, issue))
		if err != nil {
			return genericFailure
		}
		cypher, issue = t.postprocess(repaired)
		if issue != "" {
			if issue == "unsafe keyword detected" {
				return rejectedMessage
			}
			return genericFailure
		}
	}

	result, err := t.Store.QueryStructured(ctx, cypher, nil)
	if err != nil {
		var syntaxErr *graphstore.QuerySyntaxError
		if !errors.As(err, &syntaxErr) {
			slog.WarnContext(ctx, "graph query execution failed", "error", err)
			return genericFailure
		}

		repaired, genErr := t.generate(ctx, cypherRepairPrompt(question, cypher, err.Error()))
		if genErr != nil {
			return genericFailure
		}
		cypher2, issue2 := t.postprocess(repaired)
		if issue2 != "" {
			if issue2 == "unsafe keyword detected" {
				return rejectedMessage
			}
			return genericFailure
		}

		result, err = t.Store.QueryStructured(ctx, cypher2, nil)
		if err != nil {
			slog.WarnContext(ctx, "graph query failed after repair", "error", err)
			return genericFailure
		}
	}

	return formatRows(result.Rows)
}

func formatRows(rows []graphstore.Row) string {
	if len(rows) == 0 {
		return "No results found in the knowledge graph."
	}
	limit := len(rows)
	if limit > 20 {
		limit = 20
	}
	parts := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		row := rows[i]
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]string, 0, len(keys))
		for _, k := range keys {
			items = append(items, fmt.Sprintf("%s: %v", k, row[k]))
		}
		parts = append(parts, fmt.Sprintf("[%d] %s", i+1, strings.Join(items, ", ")))
	}
	return strings.Join(parts, "\n")
}
