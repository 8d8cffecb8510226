// Package ingest implements the offline ingestion pipeline: chunker →
// extractor → two-layer entity deduper → relation remapper → store
// writers.
package ingest

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"algokg.app/core/internal/model"
)

// Chunker splits document text into token-aware, overlapping chunks using
// the cl100k_base encoding, the same family the chat/embedding models in
// this stack use.
type Chunker struct {
	enc *tiktoken.Tiktoken
}

var (
	defaultEncoding     *tiktoken.Tiktoken
	defaultEncodingOnce sync.Once
	defaultEncodingErr  error
)

func loadDefaultEncoding() (*tiktoken.Tiktoken, error) {
	defaultEncodingOnce.Do(func() {
		defaultEncoding, defaultEncodingErr = tiktoken.GetEncoding("cl100k_base")
	})
	return defaultEncoding, defaultEncodingErr
}

// NewChunker constructs a Chunker. The cl100k_base encoding is loaded
// once per process and shared across Chunker instances.
func NewChunker() (*Chunker, error) {
	enc, err := loadDefaultEncoding()
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding: %w", err)
	}
	return &Chunker{enc: enc}, nil
}

// ChunkByTokens slides a window of chunkSize tokens by chunkSize-overlap
// tokens until the document is exhausted. Empty input yields an empty
// slice. Preconditions: chunkSize > 0, 0 <= overlap < chunkSize.
func (c *Chunker) ChunkByTokens(text, docID string, chunkSize, overlap int) ([]model.TextChunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk_size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("overlap must be in [0, chunk_size), got overlap=%d, chunk_size=%d", overlap, chunkSize)
	}

	tokens := c.enc.Encode(text, nil, nil)
	total := len(tokens)
	if total == 0 {
		return nil, nil
	}

	var chunks []model.TextChunk
	start := 0
	idx := 0
	stride := chunkSize - overlap

	for start < total {
		end := start + chunkSize
		if end > total {
			end = total
		}
		content := c.enc.Decode(tokens[start:end])

		chunks = append(chunks, model.TextChunk{
			ID:    model.ChunkID(docID, idx),
			DocID: docID,
			Text:  content,
			Metadata: map[string]any{
				"token_start": start,
				"token_end":   end,
			},
			StartTok: start,
			EndTok:   end,
		})

		idx++
		start += stride
	}

	return chunks, nil
}
