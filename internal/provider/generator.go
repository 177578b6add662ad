package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/54b3r/pdfchat-go/internal/logging"
	"github.com/54b3r/pdfchat-go/internal/retry"
)

// ErrGeneration marks failures of the generation backend.
var ErrGeneration = errors.New("provider: generation failed")

// retryableMarkers are lower-cased fragments of provider error messages that
// indicate a rate limit or a transient server-side fault.
var retryableMarkers = []string{
	"429",
	"quota",
	"rate limit",
	"rate_limit",
	"too many requests",
	"500",
	"502",
	"503",
	"504",
	"overloaded",
	"unavailable",
	"timeout",
}

// IsRetryable reports whether a generation error is worth retrying. Provider
// SDKs surface HTTP status only in their error text, so this matches on the
// message.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range retryableMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Generator turns a prompt into text with a single chat model call, retried on
// rate limits and transient faults. It is safe for concurrent use.
type Generator struct {
	model   model.BaseChatModel
	name    string
	policy  retry.Policy
	limiter *rate.Limiter
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p retry.Policy) GeneratorOption {
	return func(g *Generator) { g.policy = p }
}

// WithRateLimit caps outgoing generation requests at rps per second.
// A non-positive rps disables the limiter.
func WithRateLimit(rps float64) GeneratorOption {
	return func(g *Generator) {
		if rps <= 0 {
			g.limiter = nil
			return
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

// NewGenerator wraps m. name labels the backend in logs and traces.
func NewGenerator(m model.BaseChatModel, name string, opts ...GeneratorOption) *Generator {
	g := &Generator{model: m, name: name, policy: retry.DefaultPolicy()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Name returns the backend label.
func (g *Generator) Name() string { return g.name }

// Generate sends prompt as a single user message and returns the reply
// content verbatim. Errors wrap ErrGeneration.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	log := logging.FromContext(ctx)
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "pdfchat-generate",
		Type:      g.name,
		Component: components.ComponentOfChatModel,
	})

	msgs := []*schema.Message{schema.UserMessage(prompt)}
	var answer string
	err := retry.Do(ctx, g.policy, IsRetryable, func() error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		resp, err := g.model.Generate(ctx, msgs)
		if err != nil {
			return err
		}
		if resp == nil {
			return fmt.Errorf("%s returned no message", g.name)
		}
		answer = resp.Content
		return nil
	}, func(err error, wait time.Duration) {
		log.Warn("generation failed, retrying",
			slog.String("backend", g.name),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrGeneration, g.name, err)
	}
	return answer, nil
}

// Ping issues a minimal generation. It spends tokens, so readiness probes
// prefer Config.HealthCheck when one is available.
func (g *Generator) Ping(ctx context.Context) error {
	resp, err := g.model.Generate(ctx, []*schema.Message{schema.UserMessage("Say 'OK' if you can read this.")})
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}
