package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/pdfchat-go/internal/budget"
	"github.com/54b3r/pdfchat-go/internal/embedder"
	"github.com/54b3r/pdfchat-go/internal/engine"
	"github.com/54b3r/pdfchat-go/internal/extract"
	"github.com/54b3r/pdfchat-go/internal/ingestion"
	"github.com/54b3r/pdfchat-go/internal/provider"
	"github.com/54b3r/pdfchat-go/internal/rag"
	"github.com/54b3r/pdfchat-go/internal/retry"
	"github.com/54b3r/pdfchat-go/internal/server"
	"github.com/54b3r/pdfchat-go/internal/session"
	"github.com/54b3r/pdfchat-go/internal/store"
)

// services holds everything a command needs to run session operations,
// plus the handles that must be closed on exit.
type services struct {
	engine      *engine.Engine
	generator   *provider.Generator
	providerCfg *provider.Config
	qdrant      *rag.QdrantBuilder
	transcripts *store.SQLiteStore
}

// buildServices wires the model provider, embedder, index backend, pipeline,
// transcript store and engine from the environment. historyDefault is used
// when PDFCHAT_HISTORY_DB is unset.
func buildServices(ctx context.Context, log *slog.Logger, observer engine.Observer, historyDefault string) (*services, error) {
	svc := &services{}

	svc.providerCfg = provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, svc.providerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	backend := string(svc.providerCfg.Backend)
	svc.generator = provider.NewGenerator(chatModel, backend,
		provider.WithRetryPolicy(retry.DefaultPolicy()),
		provider.WithRateLimit(getEnvFloat("MODEL_RPS", 0)),
	)
	log.Info("provider initialised",
		slog.String("provider", backend),
		slog.String("model", svc.providerCfg.ModelName()),
	)

	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	baseEmb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	emb := embedder.WithRetry(baseEmb, retry.DefaultPolicy())
	log.Info("embedder initialised", slog.String("provider", embedder.Backend()))

	builder, err := svc.buildIndexBuilder(log)
	if err != nil {
		svc.Close()
		return nil, err
	}

	pipe, err := ingestion.NewPipeline(emb, builder, ingestion.Config{
		ChunkSize:    getEnvInt("CHUNK_SIZE", 0),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", -1),
		BatchSize:    getEnvInt("EMBEDDING_BATCH_SIZE", 0),
		Dimensions:   getEnvInt("EMBEDDING_DIMENSIONS", 0),
	})
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("invalid chunking configuration: %w", err)
	}

	svc.transcripts = openTranscripts(log, getEnvOrDefault("PDFCHAT_HISTORY_DB", historyDefault))

	scope, err := engine.ParseSummaryScope(os.Getenv("SUMMARY_SCOPE"))
	if err != nil {
		svc.Close()
		return nil, err
	}

	deps := engine.Deps{
		Sessions:  session.NewStore(),
		Extractor: extract.PDFExtractor{},
		Pipeline:  pipe,
		Embedder:  emb,
		Generator: svc.generator,
		Observer:  observer,
	}
	// Assigning a nil *SQLiteStore would make the interface non-nil.
	if svc.transcripts != nil {
		deps.Transcripts = svc.transcripts
	}

	svc.engine, err = engine.New(deps, engine.Config{
		TopK:             getEnvInt("RETRIEVAL_TOP_K", rag.DefaultTopK),
		SummaryScope:     scope,
		MaxContextTokens: getEnvInt("MODEL_MAX_CONTEXT_TOKENS", budget.DefaultMaxContextTokens),
	})
	if err != nil {
		svc.Close()
		return nil, err
	}
	return svc, nil
}

// buildIndexBuilder selects the vector index backend from INDEX_BACKEND
// (memory or qdrant, default memory).
func (svc *services) buildIndexBuilder(log *slog.Logger) (rag.IndexBuilder, error) {
	switch backend := strings.ToLower(getEnvOrDefault("INDEX_BACKEND", "memory")); backend {
	case "memory":
		log.Info("index backend: in-memory")
		return rag.MemoryBuilder{}, nil
	case "qdrant":
		qb, err := rag.NewQdrantBuilder(&rag.QdrantConfig{
			Host:             getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:             getEnvInt("QDRANT_PORT", 6334),
			CollectionPrefix: os.Getenv("QDRANT_COLLECTION_PREFIX"),
			APIKey:           os.Getenv("QDRANT_API_KEY"),
			UseTLS:           os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, err
		}
		svc.qdrant = qb
		log.Info("index backend: qdrant",
			slog.String("host", getEnvOrDefault("QDRANT_HOST", "localhost")),
			slog.Int("port", getEnvInt("QDRANT_PORT", 6334)),
		)
		return qb, nil
	default:
		return nil, fmt.Errorf("unknown INDEX_BACKEND %q (valid values: memory, qdrant)", backend)
	}
}

// openTranscripts opens the chat transcript store at path. "disabled"
// turns it off; an open failure is logged and also disables it.
func openTranscripts(log *slog.Logger, path string) *store.SQLiteStore {
	if path == "disabled" {
		log.Info("history: disabled via PDFCHAT_HISTORY_DB=disabled")
		return nil
	}
	hs, err := store.Open(path)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("history: store opened", slog.String("path", path))
	return hs
}

// Close releases the index backend connection and the transcript store.
// Sessions must already be closed so their collections are dropped first.
func (svc *services) Close() {
	if svc.transcripts != nil {
		_ = svc.transcripts.Close()
	}
	if svc.qdrant != nil {
		_ = svc.qdrant.Close()
	}
}

// pingers returns the readiness probes for the configured dependencies.
func (svc *services) pingers() []server.Pinger {
	pingers := []server.Pinger{
		server.NewLLMPinger(svc.providerCfg.HealthCheck(), svc.generator, string(svc.providerCfg.Backend)),
	}
	if svc.qdrant != nil {
		pingers = append(pingers, server.NewQdrantPinger(svc.qdrant.Client()))
	}
	if svc.transcripts != nil {
		pingers = append(pingers, server.NewStorePinger(svc.transcripts))
	}
	return pingers
}

// runSweeper deletes idle sessions every interval until ctx is done.
func runSweeper(ctx context.Context, eng *engine.Engine, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eng.Sweep(ctx, ttl)
		}
	}
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the named environment variable as an int, or fallback if
// unset or unparseable.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvFloat returns the named environment variable as a float64, or
// fallback if unset or unparseable.
func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration returns the named environment variable as a duration, or
// fallback if unset or unparseable.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
