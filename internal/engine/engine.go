// Package engine exposes the session operations the HTTP and CLI layers call:
// create, upload, process, chat, info, history, delete, and the expiry sweep.
// It composes the session store with text extraction, the index build
// pipeline, retrieval, and generation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/pdfchat-go/internal/extract"
	"github.com/54b3r/pdfchat-go/internal/ingestion"
	"github.com/54b3r/pdfchat-go/internal/logging"
	"github.com/54b3r/pdfchat-go/internal/mode"
	"github.com/54b3r/pdfchat-go/internal/rag"
	"github.com/54b3r/pdfchat-go/internal/session"
	"github.com/54b3r/pdfchat-go/internal/store"
)

// ErrValidation is returned for malformed operation inputs that are not
// mode parameters (e.g. an upload with no files).
var ErrValidation = errors.New("engine: invalid request")

// SummaryScope selects which chunks a summary is built from.
type SummaryScope string

const (
	// ScopeTopK retrieves the top-k chunks for the question, or a neutral
	// query when there is none.
	ScopeTopK SummaryScope = "topk"
	// ScopeAll uses every chunk in document order.
	ScopeAll SummaryScope = "all"
	// ScopeAuto uses every chunk when they fit the context budget, else top-k.
	ScopeAuto SummaryScope = "auto"
)

// ParseSummaryScope converts a config value to a SummaryScope. Empty selects
// ScopeAuto.
func ParseSummaryScope(s string) (SummaryScope, error) {
	switch SummaryScope(s) {
	case "":
		return ScopeAuto, nil
	case ScopeTopK, ScopeAll, ScopeAuto:
		return SummaryScope(s), nil
	default:
		return "", fmt.Errorf("engine: unknown summary scope %q (valid values: topk, all, auto)", s)
	}
}

// Observer receives operation outcomes for metrics. All methods must be safe
// for concurrent use.
type Observer interface {
	ChatCompleted(mode, outcome string, elapsed time.Duration)
	IndexBuilt(chunks int, elapsed time.Duration)
	SessionsActive(n int)
}

// Config holds the engine's retrieval and generation settings.
type Config struct {
	// TopK is the number of chunks retrieved per request (default: rag.DefaultTopK).
	TopK int

	// SummaryScope selects the chunk set for summaries (default: auto).
	SummaryScope SummaryScope

	// MaxContextTokens is the prompt budget used to trim retrieved context and
	// to decide the auto summary scope (default: budget.DefaultMaxContextTokens).
	MaxContextTokens int
}

// Deps are the collaborators an Engine composes. Transcripts and Observer are
// optional.
type Deps struct {
	Sessions    *session.Store
	Extractor   extract.Extractor
	Pipeline    *ingestion.Pipeline
	Embedder    rag.Embedder
	Generator   mode.Generator
	Transcripts store.TranscriptStore
	Observer    Observer
}

// Engine implements the session operations. It is safe for concurrent use.
type Engine struct {
	sessions    *session.Store
	extractor   extract.Extractor
	pipeline    *ingestion.Pipeline
	embedder    rag.Embedder
	generator   mode.Generator
	transcripts store.TranscriptStore
	observer    Observer
	cfg         Config
}

// New constructs an Engine. Sessions, Extractor, Pipeline, Embedder and
// Generator are required.
func New(deps Deps, cfg Config) (*Engine, error) {
	switch {
	case deps.Sessions == nil:
		return nil, fmt.Errorf("engine: session store must not be nil")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("engine: extractor must not be nil")
	case deps.Pipeline == nil:
		return nil, fmt.Errorf("engine: pipeline must not be nil")
	case deps.Embedder == nil:
		return nil, fmt.Errorf("engine: embedder must not be nil")
	case deps.Generator == nil:
		return nil, fmt.Errorf("engine: generator must not be nil")
	}
	cfg = cfg.withDefaults()
	if _, err := ParseSummaryScope(string(cfg.SummaryScope)); err != nil {
		return nil, err
	}
	return &Engine{
		sessions:    deps.Sessions,
		extractor:   deps.Extractor,
		pipeline:    deps.Pipeline,
		embedder:    deps.Embedder,
		generator:   deps.Generator,
		transcripts: deps.Transcripts,
		observer:    deps.Observer,
		cfg:         cfg,
	}, nil
}

// CreateSession registers a new empty session and returns its ID.
func (e *Engine) CreateSession(ctx context.Context) (string, error) {
	s := e.sessions.Create()
	logging.FromContext(ctx).Info("session created", slog.String("session_id", s.ID()))
	e.reportSessions()
	return s.ID(), nil
}

// Info returns a snapshot of the session.
func (e *Engine) Info(_ context.Context, id string) (session.Info, error) {
	s, err := e.sessions.Get(id)
	if err != nil {
		return session.Info{}, err
	}
	return s.Info(), nil
}

// DeleteSession removes the session, releases its index, and purges its
// transcript.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	if err := e.sessions.Delete(ctx, id); err != nil {
		return err
	}
	e.purgeTranscript(ctx, id)
	logging.FromContext(ctx).Info("session deleted", slog.String("session_id", id))
	e.reportSessions()
	return nil
}

// Sweep deletes every session idle for longer than olderThan and returns the
// removed IDs.
func (e *Engine) Sweep(ctx context.Context, olderThan time.Duration) []string {
	removed := e.sessions.Sweep(ctx, olderThan)
	for _, id := range removed {
		e.purgeTranscript(ctx, id)
	}
	if len(removed) > 0 {
		logging.FromContext(ctx).Info("expired sessions removed",
			slog.Int("count", len(removed)),
			slog.Duration("ttl", olderThan),
		)
		e.reportSessions()
	}
	return removed
}

// Close releases every session.
func (e *Engine) Close(ctx context.Context) {
	e.sessions.Close(ctx)
	e.reportSessions()
}

func (e *Engine) purgeTranscript(ctx context.Context, id string) {
	if e.transcripts == nil {
		return
	}
	if _, err := e.transcripts.DeleteSession(ctx, id); err != nil {
		logging.FromContext(ctx).Warn("failed to purge transcript",
			slog.String("session_id", id),
			slog.Any("error", err),
		)
	}
}

func (e *Engine) reportSessions() {
	if e.observer != nil {
		e.observer.SessionsActive(e.sessions.Len())
	}
}
