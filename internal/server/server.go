// Package server implements the HTTP API in front of the session engine:
// session lifecycle, PDF upload, index processing, and mode-based chat.
// The server is started by the `pdfchat serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/pdfchat-go/internal/chunker"
	"github.com/54b3r/pdfchat-go/internal/engine"
	"github.com/54b3r/pdfchat-go/internal/extract"
	"github.com/54b3r/pdfchat-go/internal/logging"
	"github.com/54b3r/pdfchat-go/internal/mode"
	"github.com/54b3r/pdfchat-go/internal/provider"
	"github.com/54b3r/pdfchat-go/internal/rag"
	"github.com/54b3r/pdfchat-go/internal/session"
)

// retryAfterSeconds is sent with 503 responses caused by an upstream model
// provider failure.
const retryAfterSeconds = "10"

// New constructs a Server from the provided engine and config.
func New(eng Engine, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 5 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		// Must outlast the slowest chat including provider retries.
		cfg.WriteTimeout = cfg.ChatTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.UploadMaxBytes <= 0 {
		cfg.UploadMaxBytes = DefaultUploadMaxBytes
	}
	if cfg.UploadMaxFiles <= 0 {
		cfg.UploadMaxFiles = DefaultUploadMaxFiles
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(cfg.MetricsRegistry)
	}

	if cfg.APIKey == "" {
		cfg.Logger.Warn("server: PDFCHAT_API_KEY not set, authentication disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)

	s := &Server{
		engine:  eng,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: cfg.Metrics,
		stopRL:  stopRL,
	}

	protected := func(h http.Handler) http.Handler { return authMiddleware(cfg.APIKey, h) }
	limited := func(h http.Handler) http.Handler { return protected(rl.middleware(h)) }

	mux := http.NewServeMux()
	s.route(mux, "GET /api/health", "health", http.HandlerFunc(s.handleHealth))
	s.route(mux, "GET /api/ready", "ready", http.HandlerFunc(s.handleReady))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.route(mux, "POST /api/session/create", "session_create", limited(http.HandlerFunc(s.handleCreateSession)))
	s.route(mux, "POST /api/upload", "upload", limited(http.HandlerFunc(s.handleUpload)))
	s.route(mux, "POST /api/process", "process", limited(http.HandlerFunc(s.handleProcess)))
	s.route(mux, "POST /api/chat", "chat", limited(http.HandlerFunc(s.handleChat)))
	s.route(mux, "GET /api/session/{id}", "session_info", protected(http.HandlerFunc(s.handleSessionInfo)))
	s.route(mux, "DELETE /api/session/{id}", "session_delete", protected(http.HandlerFunc(s.handleDeleteSession)))
	s.route(mux, "GET /api/session/{id}/history", "session_history", protected(http.HandlerFunc(s.handleHistory)))

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           requestLogger(cfg.Logger, mux),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return s, nil
}

// route registers h under pattern with HTTP metrics labelled by name.
func (s *Server) route(mux *http.ServeMux, pattern, name string, h http.Handler) {
	mux.Handle(pattern, s.metrics.instrument(name, h))
}

// Handler returns the fully wired HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("pdfchat server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// writeError maps err to an HTTP status and writes a JSON error body.
// Client errors carry the error text; server-side failures get a generic
// message and the detail is logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	msg := err.Error()

	log := logging.FromContext(r.Context())
	var xerr *extract.Error
	switch {
	case errors.As(err, &xerr):
		log.Warn("text extraction failed", slog.String("file", xerr.Name), slog.Any("error", xerr.Err))
		msg = xerr.Name + ": not a readable PDF"
	case status == http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", retryAfterSeconds)
		log.Warn("upstream model provider failed", slog.Any("error", err))
		msg = "model provider unavailable, retry later"
	case status >= http.StatusInternalServerError:
		log.Error("request failed", slog.Any("error", err))
		msg = "internal error"
	}
	writeJSON(w, r, status, errorResponse{Success: false, Error: msg})
}

// badRequest writes a 400 with msg.
func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, r, http.StatusBadRequest, errorResponse{Success: false, Error: msg})
}

// errorStatus maps an engine error kind to its HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, mode.ErrValidation),
		errors.Is(err, mode.ErrUnsupported),
		errors.Is(err, engine.ErrValidation),
		errors.Is(err, chunker.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, session.ErrEmptyDocumentSet),
		errors.Is(err, extract.ErrExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, rag.ErrEmbedding),
		errors.Is(err, provider.ErrGeneration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
