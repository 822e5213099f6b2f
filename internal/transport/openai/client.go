package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const providerName = "openai"

// Config holds the model provider settings shared by the embedder and the completer.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewClient builds a go-openai client with a bounded HTTP timeout.
func NewClient(cfg *Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return openai.NewClientWithConfig(clientCfg)
}

// HealthChecker verifies API reachability and credentials.
type HealthChecker struct {
	client *openai.Client
}

// NewHealthChecker wraps a client for health checks.
func NewHealthChecker(client *openai.Client) *HealthChecker {
	return &HealthChecker{client: client}
}

// HealthCheck calls ListModels (free endpoint).
func (h *HealthChecker) HealthCheck(ctx context.Context) error {
	if _, err := h.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", parseAPIError("list models", err))
	}
	return nil
}
