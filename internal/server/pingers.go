package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/pdfchat-go/internal/provider"
)

// GenerationProber sends a minimal generate request. *provider.Generator
// satisfies it.
type GenerationProber interface {
	Ping(ctx context.Context) error
}

// LLMPinger probes an LLM backend. It satisfies the Pinger interface and is
// used by GET /api/ready.
type LLMPinger struct {
	// healthCheck is the zero-cost HTTP probe for backends that expose one.
	healthCheck provider.HealthCheckConfig
	// fallback sends a minimal generate request when no health check exists.
	fallback GenerationProber
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger for the named backend. hc may be nil,
// in which case fallback is probed instead.
func NewLLMPinger(hc provider.HealthCheckConfig, fallback GenerationProber, name string) *LLMPinger {
	return &LLMPinger{healthCheck: hc, fallback: fallback, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping probes the LLM backend for readiness. When a HealthCheckConfig is
// available it is used exclusively; otherwise it falls back to a minimal
// generate call, which consumes tokens.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.healthCheck != nil {
		if err := p.healthCheck.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s health check failed: %w", p.name, err)
		}
		return nil
	}
	if p.fallback == nil {
		return fmt.Errorf("%s: no health check available", p.name)
	}

	slog.Debug("pinger: using generate-based health check, tokens will be consumed",
		slog.String("backend", p.name),
	)
	if err := p.fallback.Ping(ctx); err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// StorePinger probes the transcript database.
type StorePinger struct {
	db interface {
		Ping(ctx context.Context) error
	}
}

// NewStorePinger constructs a StorePinger. *store.SQLiteStore satisfies db.
func NewStorePinger(db interface{ Ping(ctx context.Context) error }) *StorePinger {
	return &StorePinger{db: db}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "history" }

// Ping checks the database connection.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.db.Ping(ctx); err != nil {
		return fmt.Errorf("history store unreachable: %w", err)
	}
	return nil
}
