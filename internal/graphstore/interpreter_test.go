package graphstore

import "testing"

func fixtureGraph() (map[string]Node, []Edge) {
	nodes := map[string]Node{
		"bfs": {EntityID: "bfs", Name: "BFS", Type: "Algorithm", Description: "breadth-first search"},
		"dfs": {EntityID: "dfs", Name: "DFS", Type: "Algorithm", Description: "depth-first search"},
		"q":   {EntityID: "q", Name: "Queue", Type: "DataStructure", Description: "FIFO"},
	}
	edges := []Edge{
		{From: "bfs", To: "q", Type: "USES"},
	}
	return nodes, edges
}

func TestRunQueryAutoBoundedScan(t *testing.T) {
	nodes, edges := fixtureGraph()
	res, err := runQuery("MATCH (n) RETURN n LIMIT 50", nil, nodes, edges)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Rows) != 3 {
		t.Errorf("rows = %d, want 3", len(res.Rows))
	}
	if res.Truncated {
		t.Errorf("should not be truncated: 3 rows under a limit of 50")
	}
}

func TestRunQueryTruncationRepairShape(t *testing.T) {
	nodes, edges := fixtureGraph()
	res, err := runQuery("MATCH (e:Entity) RETURN e.name AS name, e.type AS type LIMIT 1", nil,
		map[string]Node{"bfs": nodes["bfs"]}, edges)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(res.Rows))
	}
	if res.Rows[0]["name"] != "BFS" || res.Rows[0]["type"] != "Algorithm" {
		t.Errorf("row = %+v, want name: BFS, type: Algorithm", res.Rows[0])
	}
}

func TestRunQueryRelationshipTraversal(t *testing.T) {
	nodes, edges := fixtureGraph()
	res, err := runQuery(
		"MATCH (a:Algorithm {name: $name})-[r:USES]->(b) RETURN b.name AS name",
		map[string]any{"name": "BFS"}, nodes, edges)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0]["name"] != "Queue" {
		t.Errorf("rows = %+v, want a single row name: Queue", res.Rows)
	}
}

func TestRunQueryLimitMarksTruncated(t *testing.T) {
	nodes, edges := fixtureGraph()
	res, err := runQuery("MATCH (n:Algorithm) RETURN n.name AS name LIMIT 1", nil, nodes, edges)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Rows) != 1 || !res.Truncated {
		t.Errorf("rows = %d truncated = %v, want 1 row truncated=true", len(res.Rows), res.Truncated)
	}
}

func TestRunQueryMissingReturnIsSyntaxError(t *testing.T) {
	nodes, edges := fixtureGraph()
	_, err := runQuery("MATCH (n) WHERE n.type = \"Algorithm\"", nil, nodes, edges)
	if err == nil {
		t.Fatal("expected an error for a query with no RETURN clause")
	}
	if _, ok := err.(*QuerySyntaxError); !ok {
		t.Errorf("error = %T, want *QuerySyntaxError", err)
	}
}

func TestRunQueryWhereEquality(t *testing.T) {
	nodes, edges := fixtureGraph()
	res, err := runQuery(`MATCH (n:Algorithm) WHERE n.name = "DFS" RETURN n.name AS name`, nil, nodes, edges)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0]["name"] != "DFS" {
		t.Errorf("rows = %+v, want a single row name: DFS", res.Rows)
	}
}
