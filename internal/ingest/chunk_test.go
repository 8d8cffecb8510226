package ingest

import "testing"

func TestChunkByTokensRejectsBadArgs(t *testing.T) {
	c, err := NewChunker()
	if err != nil {
		t.Fatalf("NewChunker() error = %v", err)
	}

	if _, err := c.ChunkByTokens("some text", "doc1", 0, 0); err == nil {
		t.Error("chunk_size=0 should be rejected")
	}
	if _, err := c.ChunkByTokens("some text", "doc1", 10, 10); err == nil {
		t.Error("overlap == chunk_size should be rejected")
	}
	if _, err := c.ChunkByTokens("some text", "doc1", 10, 11); err == nil {
		t.Error("overlap > chunk_size should be rejected")
	}
	if _, err := c.ChunkByTokens("some text", "doc1", 10, -1); err == nil {
		t.Error("negative overlap should be rejected")
	}
}

func TestChunkByTokensEmptyInput(t *testing.T) {
	c, err := NewChunker()
	if err != nil {
		t.Fatalf("NewChunker() error = %v", err)
	}
	chunks, err := c.ChunkByTokens("", "doc1", 100, 10)
	if err != nil {
		t.Fatalf("ChunkByTokens() error = %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("len(chunks) = %d, want 0", len(chunks))
	}
}

func TestChunkByTokensNoOverlapCoversAllTokens(t *testing.T) {
	c, err := NewChunker()
	if err != nil {
		t.Fatalf("NewChunker() error = %v", err)
	}

	text := "Dijkstra's algorithm finds shortest paths from a source node to every other node in a weighted graph with non-negative edge weights, using a priority queue to repeatedly extract the closest unvisited vertex."
	chunks, err := c.ChunkByTokens(text, "doc1", 10, 0)
	if err != nil {
		t.Fatalf("ChunkByTokens() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for long input, got %d", len(chunks))
	}

	for i, ch := range chunks {
		wantID := "doc1" // ChunkID is a hash; just check stability/uniqueness below
		_ = wantID
		if ch.DocID != "doc1" {
			t.Errorf("chunk %d: DocID = %q, want doc1", i, ch.DocID)
		}
		if ch.StartTok != i*10 {
			t.Errorf("chunk %d: StartTok = %d, want %d", i, ch.StartTok, i*10)
		}
	}

	seen := make(map[string]bool)
	for _, ch := range chunks {
		if seen[ch.ID] {
			t.Errorf("duplicate chunk id %s", ch.ID)
		}
		seen[ch.ID] = true
	}
}

func TestChunkByTokensOverlapProducesMoreChunksThanNoOverlap(t *testing.T) {
	c, err := NewChunker()
	if err != nil {
		t.Fatalf("NewChunker() error = %v", err)
	}

	text := "Segment trees support range queries and point updates in logarithmic time by recursively partitioning an array into a balanced binary tree of intervals, each node storing an aggregate over its range."

	noOverlap, err := c.ChunkByTokens(text, "doc1", 8, 0)
	if err != nil {
		t.Fatalf("ChunkByTokens() error = %v", err)
	}
	withOverlap, err := c.ChunkByTokens(text, "doc1", 8, 4)
	if err != nil {
		t.Fatalf("ChunkByTokens() error = %v", err)
	}

	if len(withOverlap) <= len(noOverlap) {
		t.Errorf("overlap chunk count = %d, want more than no-overlap count %d", len(withOverlap), len(noOverlap))
	}
}

func TestChunkByTokensIdempotent(t *testing.T) {
	c, err := NewChunker()
	if err != nil {
		t.Fatalf("NewChunker() error = %v", err)
	}
	text := "Binary search narrows a sorted range by repeatedly comparing the midpoint to the target."

	a, err := c.ChunkByTokens(text, "doc1", 6, 2)
	if err != nil {
		t.Fatalf("ChunkByTokens() error = %v", err)
	}
	b, err := c.ChunkByTokens(text, "doc1", 6, 2)
	if err != nil {
		t.Fatalf("ChunkByTokens() error = %v", err)
	}

	if len(a) != len(b) {
		t.Fatalf("non-deterministic chunk count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Text != b[i].Text {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}
