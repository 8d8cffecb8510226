package agent

import "testing"

func TestValidateReadCypherRejectsWriteKeywords(t *testing.T) {
	ok, issue := validateReadCypher("CREATE (n:X) RETURN n")
	if ok || issue != "unsafe keyword detected" {
		t.Errorf("ok=%v issue=%q, want ok=false issue=\"unsafe keyword detected\"", ok, issue)
	}
}

func TestValidateReadCypherRequiresReturn(t *testing.T) {
	ok, issue := validateReadCypher("MATCH (n)")
	if ok || issue != "missing RETURN clause" {
		t.Errorf("ok=%v issue=%q, want missing RETURN clause", ok, issue)
	}
}

func TestValidateReadCypherAcceptsReadQuery(t *testing.T) {
	ok, _ := validateReadCypher("MATCH (n) RETURN n")
	if !ok {
		t.Error("expected a plain MATCH...RETURN to validate")
	}
}

func TestValidateReadCypherRejectsApoc(t *testing.T) {
	ok, issue := validateReadCypher("MATCH (n) CALL apoc.create.node() RETURN n")
	if ok || issue != "unsafe keyword detected" {
		t.Errorf("ok=%v issue=%q, want unsafe keyword detected", ok, issue)
	}
}

func TestEnsureLimitAppendsDefault(t *testing.T) {
	got := ensureLimit("MATCH (n) RETURN n")
	if got != "MATCH (n) RETURN n LIMIT 50" {
		t.Errorf("got %q", got)
	}
}

func TestEnsureLimitLeavesExistingLimit(t *testing.T) {
	got := ensureLimit("MATCH (n) RETURN n LIMIT 5")
	if got != "MATCH (n) RETURN n LIMIT 5" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeCypherFixesTruncatedMatch(t *testing.T) {
	got := normalizeCypher("CH (e:Entity) RETURN e.name AS name, e.type AS type LIMIT 1")
	want := "MATCH (e:Entity) RETURN e.name AS name, e.type AS type LIMIT 1"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeCypherDropsLanguageTagLine(t *testing.T) {
	got := normalizeCypher("cypher\nMATCH (n) RETURN n")
	if got != "MATCH (n) RETURN n" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeCypherDropsFences(t *testing.T) {
	got := normalizeCypher("```cypher\nMATCH (n) RETURN n\n```")
	if got != "MATCH (n) RETURN n" {
		t.Errorf("got %q", got)
	}
}
