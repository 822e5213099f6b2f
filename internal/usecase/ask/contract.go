package ask

import (
	"context"

	"github.com/kailas-cloud/wikiqa/internal/domain"
)

// Completer sends chat prompts. Used for both translation and answering.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error)
}

// Embedder vectorizes the translated question.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Searcher runs the nearest-neighbor query against the article index.
type Searcher interface {
	KNN(ctx context.Context, q domain.KNNQuery) ([]domain.Hit, error)
}
