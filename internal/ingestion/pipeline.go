// Package ingestion implements the index build pipeline. It chunks the text
// of every document in a session, embeds each chunk, and hands the chunks and
// vectors to an index builder. A session's index is built in one pass and is
// never updated in place.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/54b3r/pdfchat-go/internal/chunker"
	"github.com/54b3r/pdfchat-go/internal/logging"
	"github.com/54b3r/pdfchat-go/internal/rag"
)

// DefaultBatchSize is the number of chunks sent per embedding request.
const DefaultBatchSize = 32

// ErrNoText is returned when none of the documents yields a chunk.
var ErrNoText = errors.New("ingestion: documents contain no text")

// Document is one extracted source document.
type Document struct {
	// Name identifies the document (usually the uploaded filename).
	Name string

	// Text is the full extracted text.
	Text string
}

// Config holds the configuration for the index build pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per chunk.
	// Defaults to chunker.DefaultSize if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters shared by consecutive chunks
	// of one document. Negative means chunker.DefaultOverlap.
	ChunkOverlap int

	// BatchSize is the number of chunks per embedding request.
	// Defaults to DefaultBatchSize if zero.
	BatchSize int

	// Dimensions, when positive, is the vector length every embedding must have.
	Dimensions int
}

// withDefaults returns a copy of c with zero fields resolved.
func (c Config) withDefaults() Config {
	if c.ChunkSize == 0 {
		c.ChunkSize = chunker.DefaultSize
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = chunker.DefaultOverlap
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

// Pipeline orchestrates the chunk → embed → build flow for a document set.
// It is safe for concurrent use; each Build call is independent.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// builder turns chunks and vectors into a queryable index.
	builder rag.IndexBuilder

	// cfg holds the default pipeline configuration.
	cfg Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, builder rag.IndexBuilder, cfg Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if builder == nil {
		return nil, fmt.Errorf("ingestion: index builder must not be nil")
	}
	cfg = cfg.withDefaults()
	if err := chunker.Validate(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}
	return &Pipeline{embedder: embedder, builder: builder, cfg: cfg}, nil
}

// Config returns the pipeline's resolved default configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Options overrides the chunking parameters for a single build. Nil fields
// fall back to the pipeline defaults.
type Options struct {
	ChunkSize    *int
	ChunkOverlap *int
}

// Build chunks, embeds, and indexes docs. The returned index covers every
// chunk of every document in order; chunk SourceIndex is the document's
// position in docs. Any failure after chunking is reported as rag.ErrEmbedding
// and no index is returned.
func (p *Pipeline) Build(ctx context.Context, docs []Document, opts Options) (rag.Index, error) {
	size, overlap := p.cfg.ChunkSize, p.cfg.ChunkOverlap
	if opts.ChunkSize != nil {
		size = *opts.ChunkSize
	}
	if opts.ChunkOverlap != nil {
		overlap = *opts.ChunkOverlap
	}
	if err := chunker.Validate(size, overlap); err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}

	log := logging.FromContext(ctx)

	var chunks []rag.Chunk
	for i, d := range docs {
		parts, err := chunker.Split(d.Text, size, overlap)
		if err != nil {
			return nil, fmt.Errorf("ingestion: %w", err)
		}
		for pos, text := range parts {
			chunks = append(chunks, rag.Chunk{
				Text:        text,
				SourceIndex: i,
				SourceName:  d.Name,
				Position:    pos,
			})
		}
		log.Debug("document chunked",
			slog.String("document", d.Name),
			slog.Int("chunks", len(parts)),
		)
	}
	if len(chunks) == 0 {
		return nil, ErrNoText
	}

	vectors, err := p.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}

	idx, err := p.builder.Build(ctx, chunks, vectors)
	if err != nil {
		if errors.Is(err, rag.ErrEmbedding) {
			return nil, fmt.Errorf("ingestion: %w", err)
		}
		return nil, fmt.Errorf("ingestion: %w: index build: %w", rag.ErrEmbedding, err)
	}

	log.Info("index built",
		slog.Int("documents", len(docs)),
		slog.Int("chunks", len(chunks)),
		slog.Int("chunk_size", size),
		slog.Int("chunk_overlap", overlap),
	)
	return idx, nil
}

// embed embeds chunks in batches and checks that every vector has the same
// non-zero dimension.
func (p *Pipeline) embed(ctx context.Context, chunks []rag.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		batch, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("ingestion: %w: chunks %d-%d: %w", rag.ErrEmbedding, start, end-1, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("ingestion: %w: embedder returned %d vectors for %d chunks", rag.ErrEmbedding, len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}

	want := p.cfg.Dimensions
	if want <= 0 {
		want = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) == 0 || len(v) != want {
			return nil, fmt.Errorf("ingestion: %w: vector %d has dimension %d, want %d", rag.ErrEmbedding, i, len(v), want)
		}
	}
	return vectors, nil
}
