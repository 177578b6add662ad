package embedder

import (
	"context"
	"log/slog"
	"time"

	"github.com/54b3r/pdfchat-go/internal/logging"
	"github.com/54b3r/pdfchat-go/internal/rag"
	"github.com/54b3r/pdfchat-go/internal/retry"
)

// RetryEmbedder retries a wrapped embedder on rate limits and transient
// backend faults. Embedding is idempotent, so a repeated batch is harmless.
type RetryEmbedder struct {
	inner  rag.Embedder
	policy retry.Policy
}

// WithRetry wraps inner with the given retry policy.
func WithRetry(inner rag.Embedder, policy retry.Policy) *RetryEmbedder {
	return &RetryEmbedder{inner: inner, policy: policy}
}

// Embed implements rag.Embedder.
func (r *RetryEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := retry.Do(ctx, r.policy, IsRetryable, func() error {
		v, err := r.inner.Embed(ctx, texts)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, func(err error, wait time.Duration) {
		logging.FromContext(ctx).Warn("embedding request failed, retrying",
			slog.Int("batch", len(texts)),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
