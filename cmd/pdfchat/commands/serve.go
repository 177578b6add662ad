package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/pdfchat-go/internal/logging"
	"github.com/54b3r/pdfchat-go/internal/server"
	"github.com/54b3r/pdfchat-go/internal/tracing"
)

// defaultSessionTTL is how long an idle session survives before the sweeper
// removes it.
const defaultSessionTTL = 2 * time.Hour

// NewServeCmd constructs the `pdfchat serve` command, which starts the HTTP
// server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pdfchat HTTP server",
		Long: `Start the pdfchat HTTP server.

Clients create a session, upload PDFs, process them into a retrieval index,
and then chat in one of three modes: qa, quiz, or summary. Sessions live in
memory and are removed when deleted or after SESSION_TTL of inactivity.

Examples:
  pdfchat serve
  pdfchat serve --port 9090
  MODEL_PROVIDER=openai EMBEDDING_PROVIDER=openai pdfchat serve
  INDEX_BACKEND=qdrant QDRANT_HOST=qdrant.internal pdfchat serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Flags win over env; env (including YAML-applied values) over defaults.
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("PDFCHAT_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("PDFCHAT_PORT", port)
			}

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing: opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			metrics := server.NewMetrics(prometheus.DefaultRegisterer)

			svc, err := buildServices(ctx, log, metrics, ":memory:")
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer svc.Close()
			defer svc.engine.Close(context.WithoutCancel(ctx))

			ttl := getEnvDuration("SESSION_TTL", defaultSessionTTL)
			if ttl > 0 {
				interval := getEnvDuration("SESSION_SWEEP_INTERVAL", 0)
				if interval <= 0 {
					interval = min(ttl/4, 5*time.Minute)
				}
				go runSweeper(ctx, svc.engine, ttl, interval)
				log.Info("session expiry enabled",
					slog.Duration("ttl", ttl),
					slog.Duration("sweep_interval", interval),
				)
			}

			srv, err := server.New(svc.engine, &server.Config{
				Host:           host,
				Port:           port,
				Logger:         log,
				Pingers:        svc.pingers(),
				APIKey:         os.Getenv("PDFCHAT_API_KEY"),
				UploadMaxBytes: int64(getEnvInt("UPLOAD_MAX_BYTES", int(server.DefaultUploadMaxBytes))),
				UploadMaxFiles: getEnvInt("UPLOAD_MAX_FILES", server.DefaultUploadMaxFiles),
				ReadTimeout:    getEnvDuration("PDFCHAT_READ_TIMEOUT", 0),
				Metrics:        metrics,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env: PDFCHAT_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (env: PDFCHAT_PORT)")

	return cmd
}
