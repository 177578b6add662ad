package rag

import (
	"context"
	"fmt"
	"math"
	"slices"
)

// MemoryBuilder builds MemoryIndex values. It is the default backend.
type MemoryBuilder struct{}

// Build copies chunks and L2-normalises vectors so Query reduces cosine
// similarity to a dot product.
func (MemoryBuilder) Build(_ context.Context, chunks []Chunk, vectors [][]float32) (Index, error) {
	return NewMemoryIndex(chunks, vectors)
}

// MemoryIndex is a brute-force cosine index held entirely in process memory.
// It never changes after construction, so concurrent queries need no locking.
type MemoryIndex struct {
	chunks  []Chunk
	vectors [][]float32
	dim     int
}

// NewMemoryIndex builds a MemoryIndex. len(vectors) must equal len(chunks)
// and every vector must have the same non-zero dimension.
func NewMemoryIndex(chunks []Chunk, vectors [][]float32) (*MemoryIndex, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("rag: %d chunks but %d vectors", len(chunks), len(vectors))
	}

	idx := &MemoryIndex{
		chunks:  slices.Clone(chunks),
		vectors: make([][]float32, len(vectors)),
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: vector %d is empty", ErrEmbedding, i)
		}
		if i == 0 {
			idx.dim = len(v)
		} else if len(v) != idx.dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrEmbedding, i, len(v), idx.dim)
		}
		idx.vectors[i] = normalize(v)
	}
	return idx, nil
}

// Query scores every chunk against vector and returns the top k.
// Ties keep build order so results are deterministic.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, k int) (Result, error) {
	if len(m.chunks) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index has %d", ErrEmbedding, len(vector), m.dim)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := normalize(vector)
	hits := make(Result, len(m.chunks))
	for i, v := range m.vectors {
		hits[i] = Hit{Chunk: m.chunks[i], Score: dot(q, v)}
	}

	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	return hits[:clampK(k, len(hits))], nil
}

// Len returns the number of indexed chunks.
func (m *MemoryIndex) Len() int { return len(m.chunks) }

// Dimension returns the vector dimensionality of the index.
func (m *MemoryIndex) Dimension() int { return m.dim }

// Chunks returns a copy of the indexed chunks in build order.
func (m *MemoryIndex) Chunks() []Chunk { return slices.Clone(m.chunks) }

// Close is a no-op; memory is reclaimed by the garbage collector once the
// last reference is dropped.
func (m *MemoryIndex) Close(context.Context) error { return nil }

// clampK bounds k to [1, n]. Callers substitute their default top-k for
// non-positive values before reaching the index.
func clampK(k, n int) int {
	if k <= 0 || k > n {
		return n
	}
	return k
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float32 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return float32(s)
}
