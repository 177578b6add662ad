package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/pdfchat-go/internal/retry"
)

// scriptedModel returns errs in order, then reply. It records the prompts it
// receives.
type scriptedModel struct {
	errs   []error
	reply  string
	calls  atomic.Int32
	prompt atomic.Value
}

func (m *scriptedModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	n := int(m.calls.Add(1))
	m.prompt.Store(in[len(in)-1].Content)
	if n <= len(m.errs) {
		return nil, m.errs[n-1]
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *scriptedModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func fastRetry() GeneratorOption {
	return WithRetryPolicy(retry.Policy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})
}

func TestGenerator_ReturnsReplyVerbatim(t *testing.T) {
	t.Parallel()

	m := &scriptedModel{reply: "Paris"}
	g := NewGenerator(m, "fake", fastRetry())

	got, err := g.Generate(context.Background(), "What is the capital of France?")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "Paris" {
		t.Errorf("got %q, want Paris", got)
	}
	if p, _ := m.prompt.Load().(string); p != "What is the capital of France?" {
		t.Errorf("prompt = %q", p)
	}
}

func TestGenerator_RetriesRateLimit(t *testing.T) {
	t.Parallel()

	m := &scriptedModel{
		errs:  []error{errors.New("error, status code: 429, message: Rate limit reached")},
		reply: "ok",
	}
	g := NewGenerator(m, "fake", fastRetry())

	got, err := g.Generate(context.Background(), "p")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "ok" || m.calls.Load() != 2 {
		t.Errorf("got %q after %d calls, want ok after 2", got, m.calls.Load())
	}
}

func TestGenerator_GivesUpAfterAttempts(t *testing.T) {
	t.Parallel()

	quota := errors.New("quota exceeded")
	m := &scriptedModel{errs: []error{quota, quota, quota, quota}}
	g := NewGenerator(m, "fake", fastRetry())

	_, err := g.Generate(context.Background(), "p")
	if !errors.Is(err, ErrGeneration) || !errors.Is(err, quota) {
		t.Fatalf("want ErrGeneration wrapping quota error, got %v", err)
	}
	if m.calls.Load() != 3 {
		t.Errorf("want 3 attempts, got %d", m.calls.Load())
	}
}

func TestGenerator_NoRetryOnPermanentError(t *testing.T) {
	t.Parallel()

	m := &scriptedModel{errs: []error{errors.New("invalid api key")}}
	g := NewGenerator(m, "fake", fastRetry())

	if _, err := g.Generate(context.Background(), "p"); !errors.Is(err, ErrGeneration) {
		t.Fatalf("want ErrGeneration, got %v", err)
	}
	if m.calls.Load() != 1 {
		t.Errorf("want 1 attempt, got %d", m.calls.Load())
	}
}

func TestGenerator_RateLimiterRespectsContext(t *testing.T) {
	t.Parallel()

	m := &scriptedModel{reply: "ok"}
	g := NewGenerator(m, "fake", fastRetry(), WithRateLimit(0.001))

	// The first call consumes the single burst token.
	if _, err := g.Generate(context.Background(), "p"); err != nil {
		t.Fatalf("first generate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.Generate(ctx, "p"); !errors.Is(err, ErrGeneration) {
		t.Fatalf("want ErrGeneration when the limiter cannot admit in time, got %v", err)
	}
	if m.calls.Load() != 1 {
		t.Errorf("limited call reached the model: %d calls", m.calls.Load())
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msg  string
		want bool
	}{
		{"status code: 429", true},
		{"You exceeded your current quota", true},
		{"Rate limit reached for requests", true},
		{"503 Service Unavailable", true},
		{"model is overloaded", true},
		{"401 Unauthorized", false},
		{"invalid request: context length exceeded", false},
	}
	for _, tc := range tests {
		if got := IsRetryable(errors.New(tc.msg)); got != tc.want {
			t.Errorf("IsRetryable(%q) = %v, want %v", tc.msg, got, tc.want)
		}
	}
	if IsRetryable(nil) {
		t.Error("IsRetryable(nil) = true")
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	cfg := &Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: srv.URL + "/", Model: "llama3"}}
	hc := cfg.HealthCheck()
	if hc == nil {
		t.Fatal("want a health check for ollama")
	}
	if err := hc.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check: %v", err)
	}
	if p, _ := path.Load().(string); p != "/api/tags" {
		t.Errorf("probed %q, want /api/tags", p)
	}

	if (&Config{Backend: BackendGemini}).HealthCheck() != nil {
		t.Error("gemini has no zero-cost probe; want nil")
	}
}
