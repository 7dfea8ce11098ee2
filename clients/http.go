// Package clients provides HTTP-backed implementations of the collaborator
// contracts the built-in step handlers depend on. Each client POSTs a JSON
// payload to one endpoint of its service and returns the decoded JSON object.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
)

// Config configures an HTTP collaborator client.
type Config struct {
	// BaseURL is the root URL of the collaborator service, without a
	// trailing slash.
	BaseURL string
	// APIKey, when set, is sent as a bearer token.
	APIKey string
	// Timeout bounds each request. Defaults to 30s.
	Timeout time.Duration
	// MaxResponseBody caps how much of a response is read. Defaults to 10MB.
	MaxResponseBody int64
	// HTTPClient overrides the underlying client, mainly for tests.
	HTTPClient *http.Client
}

type httpCaller struct {
	baseURL string
	apiKey  string
	maxBody int64
	client  *http.Client
}

func newHTTPCaller(cfg Config) *httpCaller {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBody := cfg.MaxResponseBody
	if maxBody <= 0 {
		maxBody = defaultMaxResponseBody
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &httpCaller{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		maxBody: maxBody,
		client:  client,
	}
}

// postJSON sends payload to path and decodes the JSON object response.
func (c *httpCaller) postJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, truncate(raw, 256))
	}

	result := map[string]interface{}{}
	if len(raw) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", path, err)
	}
	return result, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
