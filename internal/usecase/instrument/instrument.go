// Package instrument wraps provider clients with token budget enforcement and logging.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
package instrument

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/wikiqa/internal/domain"
	"github.com/kailas-cloud/wikiqa/internal/metrics"
)

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(ctx context.Context, tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

func checkBudget(ctx context.Context, b BudgetChecker, log *zap.Logger, op string) error {
	if b == nil {
		return nil
	}
	if err := b.Check(ctx); err != nil {
		log.Error("Budget exceeded", zap.String("operation", op), zap.Error(err))
		return fmt.Errorf("budget check: %w", err)
	}
	return nil
}

func recordBudget(ctx context.Context, b BudgetChecker, tokens int) {
	if b == nil || tokens <= 0 {
		return
	}
	b.Record(ctx, int64(tokens))
	metrics.BudgetTokensRemaining.WithLabelValues("daily").Set(float64(b.RemainingDaily()))
	metrics.BudgetTokensRemaining.WithLabelValues("monthly").Set(float64(b.RemainingMonthly()))
}

// Embedder wraps domain.Embedder.
type Embedder struct {
	inner  domain.Embedder
	model  string
	budget BudgetChecker
	logger *zap.Logger
}

// NewEmbedder wraps an embedder. budget may be nil.
func NewEmbedder(inner domain.Embedder, model string, budget BudgetChecker, logger *zap.Logger) *Embedder {
	return &Embedder{inner: inner, model: model, budget: budget, logger: logger}
}

// Embed checks the budget, delegates, and records consumed tokens.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := checkBudget(ctx, e.budget, e.logger, "embed"); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	result, err := e.inner.Embed(ctx, text)
	duration := time.Since(start)

	if err != nil {
		e.logger.Error("Embedding request failed",
			zap.String("model", e.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	recordBudget(ctx, e.budget, result.TotalTokens)

	e.logger.Debug("Embedding request completed",
		zap.String("model", e.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// Completer wraps domain.Completer.
type Completer struct {
	inner  domain.Completer
	model  string
	budget BudgetChecker
	logger *zap.Logger
}

// NewCompleter wraps a completer. budget may be nil.
func NewCompleter(inner domain.Completer, model string, budget BudgetChecker, logger *zap.Logger) *Completer {
	return &Completer{inner: inner, model: model, budget: budget, logger: logger}
}

// Complete checks the budget, delegates, and records consumed tokens.
func (c *Completer) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	if err := checkBudget(ctx, c.budget, c.logger, "chat"); err != nil {
		return domain.CompletionResult{}, err
	}

	start := time.Now()
	result, err := c.inner.Complete(ctx, req)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("Chat completion failed",
			zap.String("model", c.model),
			zap.Int("messages", len(req.Messages)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.CompletionResult{}, fmt.Errorf("complete: %w", err)
	}

	recordBudget(ctx, c.budget, result.Usage.TotalTokens)

	c.logger.Debug("Chat completion completed",
		zap.String("model", c.model),
		zap.Duration("duration", duration),
		zap.Int("choices", len(result.Choices)),
		zap.Int("total_tokens", result.Usage.TotalTokens),
	)
	return result, nil
}
