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

// Embedder turns text into vectors via the embeddings endpoint.
type Embedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	logger *zap.Logger
}

// NewEmbedder creates an embedding provider bound to one model.
// The model must match the one used to build the search index.
func NewEmbedder(client *openai.Client, model string, logger *zap.Logger) *Embedder {
	return &Embedder{
		client: client,
		model:  openai.EmbeddingModel(model),
		logger: logger,
	}
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}

	model := string(e.model)
	start := time.Now()

	resp, err := e.client.CreateEmbeddings(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(providerName, "embed", model, "error").Inc()
		metrics.ProviderErrorsTotal.WithLabelValues(providerName, "embed", "api_error").Inc()
		return domain.EmbeddingResult{}, parseAPIError("embedding", err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		metrics.ProviderRequestsTotal.WithLabelValues(providerName, "embed", model, "error").Inc()
		metrics.ProviderErrorsTotal.WithLabelValues(providerName, "embed", "empty_response").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrProvider)
	}

	metrics.ProviderRequestsTotal.WithLabelValues(providerName, "embed", model, "success").Inc()
	metrics.ProviderRequestDuration.WithLabelValues(providerName, "embed", model).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.ProviderTokensTotal.WithLabelValues("embed", model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.ProviderTokensTotal.WithLabelValues("embed", model, "total").Add(float64(resp.Usage.TotalTokens))
	}

	e.logger.Debug("Embedding created",
		zap.String("model", model),
		zap.Int("dims", len(resp.Data[0].Embedding)),
		zap.Duration("duration", duration),
	)

	return domain.EmbeddingResult{
		Embedding:    resp.Data[0].Embedding,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}
