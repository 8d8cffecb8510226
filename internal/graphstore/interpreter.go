package graphstore

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// QuerySyntaxError marks a failure in the statement-syntax class (as
// opposed to a store/transport error): unparsable clause text, an
// unknown pattern variable, a malformed WHERE expression. Callers
// (internal/agent/tools) use this to decide whether a failure is
// eligible for the one-shot repair loop.
type QuerySyntaxError struct {
	Msg string
}

func (e *QuerySyntaxError) Error() string { return "query syntax: " + e.Msg }

func syntaxErrorf(format string, args ...any) error {
	return &QuerySyntaxError{Msg: fmt.Sprintf(format, args...)}
}

// binding is one partial match: variable name -> Node, Edge, or scalar.
type binding map[string]any

var clauseRE = regexp.MustCompile(`(?i)\b(OPTIONAL\s+MATCH|MATCH|WHERE|WITH|UNWIND|RETURN|ORDER\s+BY|LIMIT)\b`)

type clause struct {
	keyword string
	text    string
}

func splitClauses(query string) []clause {
	idx := clauseRE.FindAllStringSubmatchIndex(query, -1)
	if len(idx) == 0 {
		return nil
	}
	var clauses []clause
	for i, m := range idx {
		kw := strings.ToUpper(strings.Join(strings.Fields(query[m[2]:m[3]]), " "))
		end := len(query)
		if i+1 < len(idx) {
			end = idx[i+1][0]
		}
		clauses = append(clauses, clause{keyword: kw, text: strings.TrimSpace(query[m[1]:end])})
	}
	return clauses
}

// runQuery executes a pre-validated query (the enumerated MATCH/OPTIONAL
// MATCH/WHERE/WITH/UNWIND/RETURN/ORDER BY/LIMIT grammar, and nothing
// else) against the in-memory node/edge mirror.
func runQuery(queryText string, params map[string]any, nodes map[string]Node, edges []Edge) (QueryResult, error) {
	clauses := splitClauses(queryText)
	if clauses == nil {
		return QueryResult{}, syntaxErrorf("no recognizable clauses")
	}

	rows := []binding{{}}
	var returned []Row
	haveReturn := false
	orderKey := ""
	orderDesc := false
	limit := -1

	for _, c := range clauses {
		var err error
		switch c.keyword {
		case "MATCH":
			rows, err = matchClause(rows, c.text, false, nodes, edges, params)
		case "OPTIONAL MATCH":
			rows, err = matchClause(rows, c.text, true, nodes, edges, params)
		case "WHERE":
			rows, err = filterWhere(rows, c.text, params)
		case "WITH":
			rows, err = applyWith(rows, c.text, params)
		case "UNWIND":
			rows, err = applyUnwind(rows, c.text, params)
		case "RETURN":
			returned, err = buildReturn(rows, c.text)
			haveReturn = true
		case "ORDER BY":
			orderKey, orderDesc, err = parseOrderBy(c.text)
		case "LIMIT":
			limit, err = parseLimit(c.text)
		default:
			err = syntaxErrorf("unsupported clause %q", c.keyword)
		}
		if err != nil {
			return QueryResult{}, err
		}
	}

	if !haveReturn {
		return QueryResult{}, syntaxErrorf("missing RETURN clause")
	}

	if orderKey != "" {
		sort.SliceStable(returned, func(i, j int) bool {
			less := fmt.Sprint(returned[i][orderKey]) < fmt.Sprint(returned[j][orderKey])
			if orderDesc {
				return !less
			}
			return less
		})
	}

	truncated := false
	if limit >= 0 && len(returned) > limit {
		returned = returned[:limit]
		truncated = true
	}

	return QueryResult{Rows: returned, Truncated: truncated}, nil
}

// splitTopLevel splits s on sep, ignoring sep occurrences nested inside
// (), [], or {}.
func splitTopLevel(s string, sep rune) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(s[start:]))
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var patternRE = regexp.MustCompile(
	`^\(\s*(\w*)\s*(?::\s*(\w+))?\s*(\{[^}]*\})?\s*\)` +
		`(?:\s*-\[\s*(\w*)\s*(?::\s*(\w+))?\s*\]->\s*` +
		`\(\s*(\w*)\s*(?::\s*(\w+))?\s*(\{[^}]*\})?\s*\))?$`)

type nodePattern struct {
	varName string
	label   string
	props   map[string]string
}

func parseProps(raw string) map[string]string {
	props := map[string]string{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return props
	}
	raw = strings.TrimPrefix(raw, "{")
	raw = strings.TrimSuffix(raw, "}")
	for _, pair := range splitTopLevel(raw, ',') {
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) != 2 {
			continue
		}
		props[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return props
}

func matchClause(rows []binding, text string, optional bool, nodes map[string]Node, edges []Edge, params map[string]any) ([]binding, error) {
	for _, pattern := range splitTopLevel(text, ',') {
		var err error
		rows, err = joinPattern(rows, pattern, optional, nodes, edges, params)
		if err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func joinPattern(rows []binding, pattern string, optional bool, nodes map[string]Node, edges []Edge, params map[string]any) ([]binding, error) {
	m := patternRE.FindStringSubmatch(pattern)
	if m == nil {
		return nil, syntaxErrorf("unrecognized pattern %q", pattern)
	}
	aVar, aLabel := m[1], m[2]
	aProps := parseProps(m[3])
	relVar, relType := m[4], m[5]
	bVar, bLabel := m[6], m[7]
	bProps := parseProps(m[8])

	var out []binding
	for _, row := range rows {
		candidates := candidateNodes(row, aVar, aLabel, aProps, nodes, params)

		if bVar == "" {
			if len(candidates) == 0 {
				if optional {
					out = append(out, row)
				}
				continue
			}
			for _, a := range candidates {
				out = append(out, cloneWith(row, aVar, a))
			}
			continue
		}

		matched := false
		for _, a := range candidates {
			for _, e := range edges {
				if e.From != a.id() {
					continue
				}
				if relType != "" && e.Type != relType {
					continue
				}
				b, ok := nodes[e.To]
				if !ok {
					continue
				}
				if !hasLabel(b, bLabel) {
					continue
				}
				if !matchProps(b, bProps, params) {
					continue
				}
				nr := cloneWith(row, aVar, a)
				if relVar != "" {
					nr[relVar] = e
				}
				if bVar != "" {
					nr[bVar] = b
				}
				out = append(out, nr)
				matched = true
			}
		}
		if !matched && optional {
			out = append(out, row)
		}
	}
	return out, nil
}

func candidateNodes(row binding, varName, label string, props map[string]string, nodes map[string]Node, params map[string]any) []Node {
	if bound, ok := row[varName]; ok {
		if n, ok := bound.(Node); ok {
			return []Node{n}
		}
		return nil
	}
	var out []Node
	for _, n := range nodes {
		if !hasLabel(n, label) {
			continue
		}
		if !matchProps(n, props, params) {
			continue
		}
		out = append(out, n)
	}
	// Deterministic order so repeated queries against the same mirror
	// return rows in the same sequence.
	sort.Slice(out, func(i, j int) bool { return out[i].id() < out[j].id() })
	return out
}

// hasLabel reports whether n carries label: entity nodes carry the base
// label Entity plus their type label, user nodes carry User.
func hasLabel(n Node, label string) bool {
	switch label {
	case "":
		return true
	case "Entity":
		return n.UserID == ""
	case "User":
		return n.UserID != ""
	}
	return n.Type == label
}

func matchProps(n Node, props map[string]string, params map[string]any) bool {
	for key, raw := range props {
		want := resolveLiteral(raw, params)
		got, ok := getNodeProp(n, key)
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func resolveLiteral(raw string, params map[string]any) any {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "$") {
		if v, ok := params[strings.TrimPrefix(raw, "$")]; ok {
			return v
		}
		return nil
	}
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0] {
		return raw[1 : len(raw)-1]
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return raw
}

func cloneWith(row binding, key string, val any) binding {
	nr := make(binding, len(row)+1)
	for k, v := range row {
		nr[k] = v
	}
	if key != "" {
		nr[key] = val
	}
	return nr
}

func getNodeProp(n Node, prop string) (any, bool) {
	switch prop {
	case "name":
		return n.Name, true
	case "type":
		return n.Type, true
	case "description":
		return n.Description, true
	case "aliases":
		return n.Aliases, true
	case "entity_id", "id":
		if n.EntityID != "" {
			return n.EntityID, true
		}
		return n.UserID, true
	case "user_id":
		return n.UserID, true
	}
	return nil, false
}

func getEdgeProp(e Edge, prop string) (any, bool) {
	switch prop {
	case "type":
		return e.Type, true
	case "original_type":
		return e.OriginalType, true
	case "description":
		return e.Description, true
	case "weight":
		return e.Weight, true
	case "from":
		return e.From, true
	case "to":
		return e.To, true
	}
	return nil, false
}

var whereCondRE = regexp.MustCompile(`^(\w+)\.(\w+)\s*(=|IN)\s*(.+)$`)

func filterWhere(rows []binding, text string, params map[string]any) ([]binding, error) {
	conds := regexp.MustCompile(`(?i)\s+AND\s+`).Split(text, -1)
	var out []binding
	for _, row := range rows {
		keep := true
		for _, cond := range conds {
			ok, err := evalCondition(row, strings.TrimSpace(cond), params)
			if err != nil {
				return nil, err
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, row)
		}
	}
	return out, nil
}

func evalCondition(row binding, cond string, params map[string]any) (bool, error) {
	m := whereCondRE.FindStringSubmatch(cond)
	if m == nil {
		return false, syntaxErrorf("unrecognized WHERE condition %q", cond)
	}
	varName, prop, op, rhs := m[1], m[2], m[3], strings.TrimSpace(m[4])

	left, ok := propOf(row, varName, prop)
	if !ok {
		return false, syntaxErrorf("unbound variable %q in WHERE", varName)
	}

	switch strings.ToUpper(op) {
	case "=":
		right := resolveLiteral(rhs, params)
		return fmt.Sprint(left) == fmt.Sprint(right), nil
	case "IN":
		list := resolveList(rhs, params)
		for _, v := range list {
			if fmt.Sprint(left) == fmt.Sprint(v) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, syntaxErrorf("unsupported operator %q", op)
}

func propOf(row binding, varName, prop string) (any, bool) {
	bound, ok := row[varName]
	if !ok {
		return nil, false
	}
	switch v := bound.(type) {
	case Node:
		return getNodeProp(v, prop)
	case Edge:
		return getEdgeProp(v, prop)
	default:
		return v, true
	}
}

func resolveList(raw string, params map[string]any) []any {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "$") {
		if v, ok := params[strings.TrimPrefix(raw, "$")]; ok {
			return toAnySlice(v)
		}
		return nil
	}
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		inner := raw[1 : len(raw)-1]
		var out []any
		for _, part := range splitTopLevel(inner, ',') {
			out = append(out, resolveLiteral(part, params))
		}
		return out
	}
	return nil
}

func toAnySlice(v any) []any {
	switch vv := v.(type) {
	case []any:
		return vv
	case []string:
		out := make([]any, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

// applyWith projects the current bindings onto the listed expressions,
// renaming them to each expression's alias for subsequent clauses.
func applyWith(rows []binding, text string, params map[string]any) ([]binding, error) {
	exprs, err := parseProjection(text)
	if err != nil {
		return nil, err
	}
	var out []binding
	for _, row := range rows {
		nr := make(binding, len(exprs))
		for _, e := range exprs {
			val, err := evalProjExpr(row, e)
			if err != nil {
				return nil, err
			}
			nr[e.alias] = val
		}
		out = append(out, nr)
	}
	return out, nil
}

func applyUnwind(rows []binding, text string, params map[string]any) ([]binding, error) {
	m := regexp.MustCompile(`(?i)^(.+?)\s+AS\s+(\w+)$`).FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return nil, syntaxErrorf("unrecognized UNWIND clause %q", text)
	}
	expr, alias := strings.TrimSpace(m[1]), m[2]

	var out []binding
	for _, row := range rows {
		var list []any
		if strings.HasPrefix(expr, "$") {
			list = toAnySlice(params[strings.TrimPrefix(expr, "$")])
		} else if bound, ok := row[expr]; ok {
			list = toAnySlice(bound)
		} else {
			return nil, syntaxErrorf("UNWIND source %q is not bound", expr)
		}
		for _, item := range list {
			out = append(out, cloneWith(row, alias, item))
		}
	}
	return out, nil
}

type projExpr struct {
	varName string
	prop    string
	alias   string
}

func parseProjection(text string) ([]projExpr, error) {
	var exprs []projExpr
	for _, part := range splitTopLevel(text, ',') {
		m := regexp.MustCompile(`(?i)^(.+?)\s+AS\s+(\w+)$`).FindStringSubmatch(part)
		var base, alias string
		if m != nil {
			base, alias = strings.TrimSpace(m[1]), m[2]
		} else {
			base = strings.TrimSpace(part)
			alias = strings.ReplaceAll(base, ".", "_")
		}
		var varName, prop string
		if dot := strings.Index(base, "."); dot >= 0 {
			varName, prop = base[:dot], base[dot+1:]
		} else {
			varName = base
		}
		exprs = append(exprs, projExpr{varName: varName, prop: prop, alias: alias})
	}
	if len(exprs) == 0 {
		return nil, syntaxErrorf("empty projection")
	}
	return exprs, nil
}

func evalProjExpr(row binding, e projExpr) (any, error) {
	bound, ok := row[e.varName]
	if !ok {
		return nil, syntaxErrorf("unbound variable %q", e.varName)
	}
	if e.prop == "" {
		switch v := bound.(type) {
		case Node:
			return map[string]any{
				"id": v.id(), "name": v.Name, "type": v.Type,
				"description": v.Description, "aliases": v.Aliases,
			}, nil
		case Edge:
			return map[string]any{
				"type": v.Type, "description": v.Description, "weight": v.Weight,
			}, nil
		default:
			return v, nil
		}
	}
	switch v := bound.(type) {
	case Node:
		val, ok := getNodeProp(v, e.prop)
		if !ok {
			return nil, syntaxErrorf("node has no property %q", e.prop)
		}
		return val, nil
	case Edge:
		val, ok := getEdgeProp(v, e.prop)
		if !ok {
			return nil, syntaxErrorf("relationship has no property %q", e.prop)
		}
		return val, nil
	default:
		return v, nil
	}
}

func buildReturn(rows []binding, text string) ([]Row, error) {
	exprs, err := parseProjection(text)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		r := make(Row, len(exprs))
		for _, e := range exprs {
			val, err := evalProjExpr(row, e)
			if err != nil {
				return nil, err
			}
			r[e.alias] = val
		}
		out = append(out, r)
	}
	return out, nil
}

func parseOrderBy(text string) (key string, desc bool, err error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false, syntaxErrorf("empty ORDER BY")
	}
	key = strings.TrimSuffix(fields[0], ",")
	if len(fields) > 1 && strings.EqualFold(fields[1], "DESC") {
		desc = true
	}
	return key, desc, nil
}

func parseLimit(text string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, syntaxErrorf("invalid LIMIT %q", text)
	}
	return n, nil
}
