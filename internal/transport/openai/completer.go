package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/wikiqa/internal/domain"
	"github.com/kailas-cloud/wikiqa/internal/metrics"
)

// Completer sends chat prompts to the chat completions endpoint.
// Temperature and max tokens are left at provider defaults.
type Completer struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewCompleter creates a chat completion provider bound to one model.
func NewCompleter(client *openai.Client, model string, logger *zap.Logger) *Completer {
	return &Completer{client: client, model: model, logger: logger}
}

// Complete implements domain.Completer. Returns every choice in provider order.
func (c *Completer) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	}
	if req.Choices > 1 {
		chatReq.N = req.Choices
	}

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)

	duration := time.Since(start)

	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(providerName, "chat", c.model, "error").Inc()
		metrics.ProviderErrorsTotal.WithLabelValues(providerName, "chat", "api_error").Inc()
		return domain.CompletionResult{}, parseAPIError("chat completion", err)
	}

	if len(resp.Choices) == 0 {
		metrics.ProviderRequestsTotal.WithLabelValues(providerName, "chat", c.model, "error").Inc()
		metrics.ProviderErrorsTotal.WithLabelValues(providerName, "chat", "empty_response").Inc()
		return domain.CompletionResult{}, fmt.Errorf("no completion choices returned: %w", domain.ErrProvider)
	}

	metrics.ProviderRequestsTotal.WithLabelValues(providerName, "chat", c.model, "success").Inc()
	metrics.ProviderRequestDuration.WithLabelValues(providerName, "chat", c.model).Observe(duration.Seconds())
	metrics.ProviderTokensTotal.WithLabelValues("chat", c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.ProviderTokensTotal.WithLabelValues("chat", c.model, "completion").Add(float64(resp.Usage.CompletionTokens))
	metrics.ProviderTokensTotal.WithLabelValues("chat", c.model, "total").Add(float64(resp.Usage.TotalTokens))

	choices := make([]string, len(resp.Choices))
	for i, ch := range resp.Choices {
		choices[i] = ch.Message.Content
	}

	c.logger.Debug("Chat completion finished",
		zap.String("model", c.model),
		zap.Int("choices", len(choices)),
		zap.Duration("duration", duration),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	return domain.CompletionResult{
		Choices: choices,
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}
