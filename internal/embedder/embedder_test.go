package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/54b3r/pdfchat-go/internal/retry"
)

func TestOpenAIEmbedder_ReordersByIndex(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var req openaiEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Input) != 2 {
			t.Errorf("want 2 inputs, got %d", len(req.Input))
		}
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "m"})
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("embeddings not ordered by index: %v", vecs)
	}
}

func TestOpenAIEmbedder_StatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		code      int
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorised", http.StatusUnauthorized, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.code)
				_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			}))
			defer srv.Close()

			e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
			_, err := e.Embed(context.Background(), []string{"a"})
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("want *StatusError, got %T: %v", err, err)
			}
			if se.Code != tc.code || se.Message != "nope" {
				t.Errorf("got code=%d message=%q", se.Code, se.Message)
			}
			if IsRetryable(err) != tc.retryable {
				t.Errorf("IsRetryable = %v, want %v", !tc.retryable, tc.retryable)
			}
		})
	}
}

func TestOllamaEmbedder_CountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[1,2,3]]}`))
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})
	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("want error when fewer embeddings than inputs are returned")
	}
}

func TestRetryEmbedder_RetriesRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"slow down"}`))
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[1,0]]}`))
	}))
	defer srv.Close()

	e := WithRetry(NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"}),
		retry.Policy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})
	vecs, err := e.Embed(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 1 || calls.Load() != 2 {
		t.Errorf("want 1 vector after 2 calls, got %d vectors after %d calls", len(vecs), calls.Load())
	}
}

func TestRetryEmbedder_DoesNotRetryClientError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	e := WithRetry(NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"}),
		retry.Policy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})
	if _, err := e.Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("want error")
	}
	if calls.Load() != 1 {
		t.Errorf("want a single call for a 404, got %d", calls.Load())
	}
}

func TestBackend(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("MODEL_PROVIDER", "")
	if got := Backend(); got != "ollama" {
		t.Errorf("default backend = %q, want ollama", got)
	}
	t.Setenv("MODEL_PROVIDER", "azure")
	if got := Backend(); got != "azure" {
		t.Errorf("inherited backend = %q, want azure", got)
	}
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	if got := Backend(); got != "openai" {
		t.Errorf("explicit backend = %q, want openai", got)
	}
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()

	for model, want := range map[string]bool{
		"nomic-embed-text":       false,
		"text-embedding-3-small": false,
		"gpt-4o":                 true,
		"llama3.2":               true,
	} {
		if got := looksLikeChatModel(model); got != want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", model, got, want)
		}
	}
}
