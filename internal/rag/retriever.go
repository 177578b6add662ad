package rag

import (
	"context"
	"fmt"
)

// DefaultTopK is the number of chunks retrieved when the caller passes 0.
const DefaultTopK = 5

// Retrieve embeds query once and returns the topK chunks of index most
// similar to it. If topK is 0 DefaultTopK is used.
//
// A nil or empty index yields ErrEmptyIndex even though callers are expected
// to have checked session readiness first.
func Retrieve(ctx context.Context, query string, index Index, topK int, embedder Embedder) (Result, error) {
	if index == nil || index.Len() == 0 {
		return nil, ErrEmptyIndex
	}
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	embeddings, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", ErrEmbedding, err)
	}
	if len(embeddings) != 1 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("%w: embedder returned no vector for query", ErrEmbedding)
	}

	hits, err := index.Query(ctx, embeddings[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	return hits, nil
}
