package wikiqa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kailas-cloud/wikiqa/internal/version"
)

const defaultTimeout = 90 * time.Second

// Client calls a wikiqa server.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	apiKey    string
	userAgent string
	obs       *observer
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("wikiqa: invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("wikiqa: base url must be absolute, got %q", baseURL)
	}

	cfg := &clientConfig{timeout: defaultTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}
	ua := cfg.userAgent
	if ua == "" {
		ua = "wikiqa-go/" + version.Version
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{baseURL: u, http: hc, apiKey: cfg.apiKey, userAgent: ua, obs: obs}, nil
}

// Ask sends one question to POST /api/v1/ask.
func (c *Client) Ask(ctx context.Context, question string) (Answer, error) {
	start := time.Now()
	var out Answer
	err := c.do(ctx, http.MethodPost, "/api/v1/ask", map[string]string{"question": question}, &out)
	c.obs.observe("ask", start, err)
	return out, err
}

// Usage returns the token usage report for the period.
func (c *Client) Usage(ctx context.Context, period UsagePeriod) (UsageReport, error) {
	start := time.Now()
	var out UsageReport
	path := "/api/v1/usage?period=" + url.QueryEscape(string(period))
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	c.obs.observe("usage", start, err)
	return out, err
}

// Health returns the server health. A degraded or failing server is not an error.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	start := time.Now()
	var out HealthStatus
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable && out.Status != "" {
		err = nil
	}
	c.obs.observe("health", start, err)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("wikiqa: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("wikiqa: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("wikiqa: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("wikiqa: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: "unknown", Message: http.StatusText(resp.StatusCode)}
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &e) == nil && e.Code != "" {
			apiErr.Code, apiErr.Message = e.Code, e.Message
		}
		// /health returns its report with 503.
		if out != nil && e.Code == "" {
			_ = json.Unmarshal(data, out)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("wikiqa: decode response: %w", err)
	}
	return nil
}
