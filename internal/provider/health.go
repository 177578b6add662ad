package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HealthCheckConfig probes a backend without spending tokens.
type HealthCheckConfig interface {
	HealthCheck(ctx context.Context) error
}

// httpHealthCheck issues a GET against a cheap listing endpoint and treats any
// 2xx as healthy.
type httpHealthCheck struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// HealthCheck implements HealthCheckConfig.
func (h *httpHealthCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("provider: health request: %w", err)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider: health request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider: health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// HealthCheck returns a zero-cost probe for the selected backend, or nil when
// the backend exposes no suitable endpoint (ark, gemini). Callers fall back to
// a one-token generation in that case.
func (c *Config) HealthCheck() HealthCheckConfig {
	client := &http.Client{Timeout: 10 * time.Second}
	switch c.Backend {
	case BackendOllama:
		return &httpHealthCheck{
			url:    strings.TrimRight(c.Ollama.Host, "/") + "/api/tags",
			client: client,
		}
	case BackendOpenAI:
		base := c.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		return &httpHealthCheck{
			url:     strings.TrimRight(base, "/") + "/models",
			headers: map[string]string{"Authorization": "Bearer " + c.OpenAI.APIKey},
			client:  client,
		}
	case BackendAzure:
		az := c.AzureOpenAI
		return &httpHealthCheck{
			url:     strings.TrimRight(az.Endpoint, "/") + "/openai/models?api-version=" + az.APIVersion,
			headers: map[string]string{"api-key": az.APIKey},
			client:  client,
		}
	default:
		return nil
	}
}
