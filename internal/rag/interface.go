// Package rag defines the retrieval half of the pipeline: chunks, embedding
// indexes, and the query-time retrieval step that joins an Embedder with an
// Index.
// Concrete index backends (in-memory, Qdrant) satisfy the same interfaces so
// the session layer never depends on a specific backend.
package rag

import (
	"context"
	"errors"
)

var (
	// ErrEmptyIndex is returned when querying an index that holds no chunks,
	// or when no index exists at all.
	ErrEmptyIndex = errors.New("rag: index is empty")

	// ErrEmbedding marks failures of the embedding capability, including
	// vectors of unexpected dimensionality.
	ErrEmbedding = errors.New("rag: embedding failed")
)

// Chunk is a bounded substring of a source document, the unit of retrieval.
type Chunk struct {
	// Text is the chunk content.
	Text string

	// SourceIndex is the position of the originating document in the set
	// the index was built from.
	SourceIndex int

	// SourceName is the uploaded filename of the originating document.
	SourceName string

	// Position is the ordinal of this chunk within its source document.
	Position int
}

// Hit is a single retrieved chunk with its similarity score.
type Hit struct {
	// Chunk is the retrieved chunk.
	Chunk Chunk

	// Score is the cosine similarity between the query and the chunk, in [-1, 1].
	Score float32
}

// Result is an ordered list of hits, highest score first.
type Result []Hit

// Texts returns the chunk texts of r in rank order.
func (r Result) Texts() []string {
	out := make([]string, len(r))
	for i, h := range r {
		out[i] = h.Chunk.Text
	}
	return out
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is an immutable nearest-neighbour structure over a fixed set of
// chunks. Implementations must be safe for concurrent Query calls.
type Index interface {
	// Query returns the k chunks most similar to vector by cosine
	// similarity. k is clamped to the number of chunks. Returns
	// ErrEmptyIndex when the index holds no chunks.
	Query(ctx context.Context, vector []float32, k int) (Result, error)

	// Len returns the number of chunks in the index.
	Len() int

	// Chunks returns every chunk in build order.
	Chunks() []Chunk

	// Close releases backend resources. The index must not be queried afterwards.
	Close(ctx context.Context) error
}

// IndexBuilder constructs an Index from chunks and their parallel vectors.
// vectors[i] is the embedding of chunks[i]; all vectors share one dimension.
type IndexBuilder interface {
	Build(ctx context.Context, chunks []Chunk, vectors [][]float32) (Index, error)
}
