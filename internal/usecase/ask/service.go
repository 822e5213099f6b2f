package ask

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/wikiqa/internal/domain"
	"github.com/kailas-cloud/wikiqa/internal/logger"
	"github.com/kailas-cloud/wikiqa/internal/metrics"
)

// Options tunes one pipeline instance. Zero values fall back to defaults.
type Options struct {
	K             int
	NumCandidates int
	// AnswerWithTranslation sends the English translation to the answer stage instead of the original question.
	AnswerWithTranslation bool
	AnswerChoices         int
	MaxQuestionRunes      int
	// Timeout bounds one whole run. Zero disables the deadline.
	Timeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.K <= 0 {
		o.K = domain.DefaultK
	}
	// Only an unset pool is filled; explicit values reach the engine as given.
	if o.NumCandidates <= 0 {
		o.NumCandidates = max(domain.DefaultNumCandidates, o.K)
	}
	if o.AnswerChoices <= 0 {
		o.AnswerChoices = 1
	}
	if o.MaxQuestionRunes <= 0 {
		o.MaxQuestionRunes = domain.DefaultMaxQuestionRunes
	}
}

// Service answers Korean questions from the indexed Wikipedia articles.
// Stages run strictly in order: translate, embed, search, answer.
type Service struct {
	chat   Completer
	embed  Embedder
	search Searcher
	opts   Options
	logger *zap.Logger
}

// New creates the question pipeline.
func New(chat Completer, embed Embedder, search Searcher, opts Options, logger *zap.Logger) *Service {
	opts.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{chat: chat, embed: embed, search: search, opts: opts, logger: logger}
}

// Options returns the effective options after defaults.
func (s *Service) Options() Options {
	return s.opts
}

// Ask runs the full pipeline for one question.
// Every failure is a *domain.StageError naming the stage that failed.
func (s *Service) Ask(ctx context.Context, raw string) (domain.Answer, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	id := uuid.NewString()
	log := logger.FromContext(ctx, s.logger).With(zap.String("ask_id", id))
	start := time.Now()

	answer, err := s.run(ctx, id, raw)

	if err != nil {
		stage := domain.StageOf(err)
		outcome := classify(err)
		metrics.AsksTotal.WithLabelValues(outcome).Inc()
		if outcome == "failed" {
			metrics.StageFailuresTotal.WithLabelValues(stage.String()).Inc()
		}
		log.Warn("ask_failed",
			zap.String("stage", stage.String()),
			zap.String("outcome", outcome),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return domain.Answer{}, err
	}

	metrics.AsksTotal.WithLabelValues("answered").Inc()
	log.Info("ask_completed",
		zap.Int("hits", len(answer.Sources)),
		zap.Int("choices", len(answer.Choices)),
		zap.Int("total_tokens", answer.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return answer, nil
}

func (s *Service) run(ctx context.Context, id, raw string) (domain.Answer, error) {
	q, err := domain.NewQuestion(raw, s.opts.MaxQuestionRunes)
	if err != nil {
		return domain.Answer{}, domain.NewStageError(domain.StageValidate, err)
	}

	answer := domain.Answer{ID: id, Question: q.Text()}

	// 1. Translate
	if err := enter(ctx, domain.StageTranslate); err != nil {
		return domain.Answer{}, err
	}
	translation, usage, err := s.translate(ctx, q.Text())
	if err != nil {
		return domain.Answer{}, domain.NewStageError(domain.StageTranslate, err)
	}
	answer.Translation = translation
	answer.Usage.Add(usage)

	// 2. Embed
	if err := enter(ctx, domain.StageEmbed); err != nil {
		return domain.Answer{}, err
	}
	stageStart := time.Now()
	emb, err := s.embed.Embed(ctx, translation)
	observe(domain.StageEmbed, stageStart)
	if err != nil {
		return domain.Answer{}, domain.NewStageError(domain.StageEmbed, fmt.Errorf("embed translation: %w", err))
	}
	if len(emb.Embedding) == 0 {
		return domain.Answer{}, domain.NewStageError(domain.StageEmbed,
			fmt.Errorf("empty embedding: %w", domain.ErrProvider))
	}
	answer.Usage.Add(domain.Usage{PromptTokens: emb.PromptTokens, TotalTokens: emb.TotalTokens})

	// 3. Search
	if err := enter(ctx, domain.StageSearch); err != nil {
		return domain.Answer{}, err
	}
	stageStart = time.Now()
	hits, err := s.search.KNN(ctx, domain.KNNQuery{
		Vector:        emb.Embedding,
		K:             s.opts.K,
		NumCandidates: s.opts.NumCandidates,
	})
	observe(domain.StageSearch, stageStart)
	if err != nil {
		return domain.Answer{}, domain.NewStageError(domain.StageSearch, fmt.Errorf("knn search: %w", err))
	}
	if len(hits) == 0 {
		return domain.Answer{}, domain.NewStageError(domain.StageSearch, domain.ErrNoRelevantDocument)
	}
	answer.Sources = hits

	// 4. Answer, grounded in the top hit only.
	if err := enter(ctx, domain.StageAnswer); err != nil {
		return domain.Answer{}, err
	}
	prompted := q.Text()
	if s.opts.AnswerWithTranslation {
		prompted = translation
	}
	stageStart = time.Now()
	res, err := s.chat.Complete(ctx, domain.CompletionRequest{
		Messages: answerPrompt(prompted, hits[0].Text()),
		Choices:  s.opts.AnswerChoices,
	})
	observe(domain.StageAnswer, stageStart)
	if err != nil {
		return domain.Answer{}, domain.NewStageError(domain.StageAnswer, fmt.Errorf("generate answer: %w", err))
	}
	if len(res.Choices) == 0 {
		return domain.Answer{}, domain.NewStageError(domain.StageAnswer,
			fmt.Errorf("no answer choices: %w", domain.ErrProvider))
	}
	answer.Choices = res.Choices
	answer.Usage.Add(res.Usage)

	return answer, nil
}

func (s *Service) translate(ctx context.Context, question string) (string, domain.Usage, error) {
	start := time.Now()
	res, err := s.chat.Complete(ctx, domain.CompletionRequest{Messages: translatePrompt(question)})
	observe(domain.StageTranslate, start)
	if err != nil {
		return "", domain.Usage{}, fmt.Errorf("translate question: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", domain.Usage{}, fmt.Errorf("no translation returned: %w", domain.ErrProvider)
	}
	translation := strings.TrimSpace(res.Choices[0])
	if translation == "" {
		return "", domain.Usage{}, fmt.Errorf("empty translation: %w", domain.ErrProvider)
	}
	return translation, res.Usage, nil
}

// enter refuses to start a stage once the request is cancelled or past its deadline.
func enter(ctx context.Context, stage domain.Stage) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStageError(stage, err)
	}
	return nil
}

func observe(stage domain.Stage, start time.Time) {
	metrics.StageDuration.WithLabelValues(stage.String()).Observe(time.Since(start).Seconds())
}

func classify(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoRelevantDocument):
		return "no_results"
	case domain.StageOf(err) == domain.StageValidate:
		return "invalid"
	default:
		return "failed"
	}
}
