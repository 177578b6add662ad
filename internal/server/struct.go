package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/pdfchat-go/internal/engine"
	"github.com/54b3r/pdfchat-go/internal/session"
	"github.com/54b3r/pdfchat-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading a whole request,
	// including every part of a multipart upload (default: 60s).
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds a single /api/chat or /api/process request,
	// including retries against the model provider (default: 5m).
	ChatTimeout time.Duration
	// UploadMaxBytes is the per-file size cap for /api/upload (default: 50 MiB).
	UploadMaxBytes int64
	// UploadMaxFiles is the number of files one /api/upload request may carry
	// (default: 8). The request body is capped at
	// UploadMaxFiles*UploadMaxBytes plus multipart overhead.
	UploadMaxFiles int
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Metrics receives HTTP and chat metrics. If nil, a fresh set is
	// registered against MetricsRegistry.
	Metrics *Metrics
	// MetricsRegistry is where metrics are registered when Metrics is nil
	// (default: prometheus.DefaultRegisterer).
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics (default: prometheus.DefaultGatherer).
	MetricsGatherer prometheus.Gatherer
}

// DefaultUploadMaxBytes is the per-file upload cap when none is configured.
const DefaultUploadMaxBytes int64 = 50 << 20

// DefaultUploadMaxFiles is the per-request file count cap when none is configured.
const DefaultUploadMaxFiles = 8

// Engine is the set of session operations the handlers call.
// *engine.Engine satisfies it; tests inject a fake.
type Engine interface {
	CreateSession(ctx context.Context) (string, error)
	Upload(ctx context.Context, id string, files []engine.File) (int, error)
	Process(ctx context.Context, id string, opts engine.ProcessOptions) (int, error)
	Chat(ctx context.Context, id string, req engine.ChatRequest) (engine.ChatResponse, error)
	Info(ctx context.Context, id string) (session.Info, error)
	History(ctx context.Context, id string, n int) ([]store.Turn, error)
	DeleteSession(ctx context.Context, id string) error
}

// Server is the HTTP server in front of the session engine.
type Server struct {
	// engine handles every session operation.
	engine Engine
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics owns every Prometheus collector the server updates.
	metrics *Metrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// errorResponse is the JSON body written for every failed API request.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// createSessionResponse is the JSON response for POST /api/session/create.
type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

// uploadResponse is the JSON response for POST /api/upload.
type uploadResponse struct {
	SessionID     string   `json:"session_id"`
	FilesUploaded int      `json:"files_uploaded"`
	Documents     []string `json:"documents"`
}

// processRequest is the JSON body for POST /api/process.
type processRequest struct {
	SessionID    string `json:"session_id"`
	ChunkSize    *int   `json:"chunk_size,omitempty"`
	ChunkOverlap *int   `json:"chunk_overlap,omitempty"`
}

// processResponse is the JSON response for POST /api/process.
type processResponse struct {
	SessionID     string `json:"session_id"`
	ChunksCreated int    `json:"chunks_created"`
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	SessionID string `json:"session_id"`
	// Question is the user's text; optional for quiz and summary.
	Question string `json:"question"`
	// Type is the mode: qa, quiz, or summary (default: qa).
	Type string `json:"type"`
	// NumQuestions is the quiz size (default: 5).
	NumQuestions *int `json:"num_questions,omitempty"`
}

// chatResponse is the JSON response for POST /api/chat.
type chatResponse struct {
	Type     string `json:"type"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// sessionResponse is the JSON response for GET /api/session/{id}.
type sessionResponse struct {
	SessionID      string    `json:"session_id"`
	State          string    `json:"state"`
	Processed      bool      `json:"processed"`
	Documents      []string  `json:"documents"`
	Pending        int       `json:"pending"`
	Chunks         int       `json:"chunks"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// turnResponse is one entry of GET /api/session/{id}/history.
type turnResponse struct {
	Type      string    `json:"type"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// historyResponse is the JSON response for GET /api/session/{id}/history.
type historyResponse struct {
	SessionID string         `json:"session_id"`
	Turns     []turnResponse `json:"turns"`
}
