package rag

import (
	"context"
	"errors"
	"testing"
)

func testChunks(texts ...string) []Chunk {
	out := make([]Chunk, len(texts))
	for i, t := range texts {
		out[i] = Chunk{Text: t, Position: i}
	}
	return out
}

func TestMemoryIndex_QueryOrderAndCount(t *testing.T) {
	t.Parallel()

	chunks := testChunks("east", "north", "north-east", "west")
	vectors := [][]float32{
		{1, 0},
		{0, 1},
		{1, 1},
		{-1, 0},
	}
	idx, err := NewMemoryIndex(chunks, vectors)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	tests := []struct {
		name  string
		k     int
		wantN int
	}{
		{"k below n", 2, 2},
		{"k equals n", 4, 4},
		{"k above n clamped", 10, 4},
		{"k zero means all", 0, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res, err := idx.Query(context.Background(), []float32{1, 0.1}, tc.k)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(res) != tc.wantN {
				t.Fatalf("want %d hits, got %d", tc.wantN, len(res))
			}
			if res[0].Chunk.Text != "east" {
				t.Errorf("top hit = %q, want east", res[0].Chunk.Text)
			}
			for i := 1; i < len(res); i++ {
				if res[i].Score > res[i-1].Score {
					t.Errorf("hits not sorted: [%d]=%v > [%d]=%v", i, res[i].Score, i-1, res[i-1].Score)
				}
			}
		})
	}
}

func TestMemoryIndex_SingleChunkTopFive(t *testing.T) {
	t.Parallel()

	idx, err := NewMemoryIndex(testChunks("only"), [][]float32{{0.2, 0.3, 0.4}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	res, err := idx.Query(context.Background(), []float32{1, 1, 1}, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res) != 1 {
		t.Fatalf("want exactly 1 hit, got %d", len(res))
	}
}

func TestMemoryIndex_Empty(t *testing.T) {
	t.Parallel()

	idx, err := NewMemoryIndex(nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := idx.Query(context.Background(), []float32{1}, 3); !errors.Is(err, ErrEmptyIndex) {
		t.Fatalf("want ErrEmptyIndex, got %v", err)
	}
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	t.Parallel()

	_, err := NewMemoryIndex(testChunks("a", "b"), [][]float32{{1, 0}, {1, 0, 0}})
	if !errors.Is(err, ErrEmbedding) {
		t.Fatalf("want ErrEmbedding for mixed dimensions, got %v", err)
	}

	idx, err := NewMemoryIndex(testChunks("a"), [][]float32{{1, 0}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := idx.Query(context.Background(), []float32{1, 0, 0}, 1); !errors.Is(err, ErrEmbedding) {
		t.Fatalf("want ErrEmbedding for query dimension mismatch, got %v", err)
	}
}

func TestMemoryIndex_LengthMismatch(t *testing.T) {
	t.Parallel()

	if _, err := NewMemoryIndex(testChunks("a", "b"), [][]float32{{1}}); err == nil {
		t.Fatal("want error when chunk and vector counts differ")
	}
}

func TestMemoryIndex_DoesNotAliasInput(t *testing.T) {
	t.Parallel()

	chunks := testChunks("a")
	vectors := [][]float32{{1, 0}}
	idx, err := NewMemoryIndex(chunks, vectors)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	chunks[0].Text = "mutated"
	vectors[0][0] = -1

	res, err := idx.Query(context.Background(), []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res[0].Chunk.Text != "a" || res[0].Score < 0.99 {
		t.Errorf("index aliased caller slices: got %+v", res[0])
	}
}
