package rag

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// upsertBatchSize bounds the number of points sent per Upsert RPC.
const upsertBatchSize = 256

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// CollectionPrefix prefixes every per-index collection name
	// (default: pdfchat).
	CollectionPrefix string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantBuilder builds one Qdrant collection per index. Collections are
// dropped when the index is closed, so nothing outlives the session.
type QdrantBuilder struct {
	// client is the underlying Qdrant gRPC client, shared by all indexes.
	client *qdrant.Client

	// cfg holds the resolved configuration for this builder.
	cfg *QdrantConfig
}

// NewQdrantBuilder connects to Qdrant and returns a builder.
func NewQdrantBuilder(cfg *QdrantConfig) (*QdrantBuilder, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = "pdfchat"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantBuilder{client: client, cfg: cfg}, nil
}

// Client exposes the gRPC client for readiness probes.
func (b *QdrantBuilder) Client() *qdrant.Client { return b.client }

// Close closes the underlying Qdrant gRPC connection.
func (b *QdrantBuilder) Close() error {
	return b.client.Close()
}

// Build creates a fresh collection sized to the vectors and upserts every
// chunk. On any failure the collection is dropped before returning, so a
// failed build leaves nothing behind.
func (b *QdrantBuilder) Build(ctx context.Context, chunks []Chunk, vectors [][]float32) (Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("rag: %d chunks but %d vectors", len(chunks), len(vectors))
	}

	idx := &QdrantIndex{
		client:     b.client,
		collection: b.cfg.CollectionPrefix + "-" + uuid.NewString(),
		chunks:     slices.Clone(chunks),
	}
	if len(chunks) == 0 {
		// Nothing to store; queries report ErrEmptyIndex without a round trip.
		return idx, nil
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrEmbedding, i, len(v), dim)
		}
	}

	err := b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: idx.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim), //nolint:gosec // dimension is a small positive int
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create collection %q: %w", idx.collection, err)
	}
	idx.created = true

	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			c := chunks[i]
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(i)), //nolint:gosec // i is a non-negative slice index
				Vectors: qdrant.NewVectors(vectors[i]...),
				Payload: qdrant.NewValueMap(map[string]any{
					"content":      c.Text,
					"source":       c.SourceName,
					"source_index": int64(c.SourceIndex),
					"position":     int64(c.Position),
				}),
			})
		}

		_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: idx.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			_ = idx.Close(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("qdrant: upsert failed: %w", err)
		}
	}

	return idx, nil
}

// QdrantIndex is an Index backed by a dedicated Qdrant collection.
// Point IDs are the chunk ordinals, so hits resolve against the local copy.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	chunks     []Chunk
	created    bool
}

// Query performs a cosine similarity search and returns the top-k results.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, k int) (Result, error) {
	if len(q.chunks) == 0 {
		return nil, ErrEmptyIndex
	}

	limit := uint64(clampK(k, len(q.chunks))) //nolint:gosec // clamped to a positive slice length
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	hits := make(Result, 0, len(points))
	for _, p := range points {
		i := p.GetId().GetNum()
		if i >= uint64(len(q.chunks)) {
			return nil, fmt.Errorf("qdrant: point id %d out of range [0, %d)", i, len(q.chunks))
		}
		hits = append(hits, Hit{Chunk: q.chunks[i], Score: p.GetScore()})
	}
	return hits, nil
}

// Len returns the number of indexed chunks.
func (q *QdrantIndex) Len() int { return len(q.chunks) }

// Chunks returns a copy of the indexed chunks in build order.
func (q *QdrantIndex) Chunks() []Chunk { return slices.Clone(q.chunks) }

// Collection returns the backing collection name.
func (q *QdrantIndex) Collection() string { return q.collection }

// Close drops the backing collection.
func (q *QdrantIndex) Close(ctx context.Context) error {
	if !q.created {
		return nil
	}
	if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
		return fmt.Errorf("qdrant: failed to drop collection %q: %w", q.collection, err)
	}
	q.created = false
	return nil
}
