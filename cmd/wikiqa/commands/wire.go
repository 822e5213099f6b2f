package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/wikiqa/internal/config"
	"github.com/kailas-cloud/wikiqa/internal/db"
	dbRedis "github.com/kailas-cloud/wikiqa/internal/db/redis"
	"github.com/kailas-cloud/wikiqa/internal/domain"
	logpkg "github.com/kailas-cloud/wikiqa/internal/logger"
	"github.com/kailas-cloud/wikiqa/internal/metrics"
	budgetrepo "github.com/kailas-cloud/wikiqa/internal/repository/budget"
	"github.com/kailas-cloud/wikiqa/internal/repository/embcache"
	esTransport "github.com/kailas-cloud/wikiqa/internal/transport/elastic"
	openaiTransport "github.com/kailas-cloud/wikiqa/internal/transport/openai"
	askuc "github.com/kailas-cloud/wikiqa/internal/usecase/ask"
	budgetuc "github.com/kailas-cloud/wikiqa/internal/usecase/budget"
	healthuc "github.com/kailas-cloud/wikiqa/internal/usecase/health"
	"github.com/kailas-cloud/wikiqa/internal/usecase/instrument"
	usageuc "github.com/kailas-cloud/wikiqa/internal/usecase/usage"
)

// app is the composition root shared by every command.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	ask      *askuc.Service
	usage    *usageuc.Service
	health   *healthuc.Service
	searcher *esTransport.Searcher
	store    db.Store
}

type buildOptions struct {
	// waitForSearch blocks until the search engine answers and fails with ErrConnectivity otherwise.
	waitForSearch bool
}

func buildApp(ctx context.Context, env string, opts buildOptions) (*app, error) {
	cfg, err := config.Load(env)
	if err != nil {
		return nil, err
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}

	metrics.RegisterProviderMetrics()

	a := &app{cfg: cfg, logger: logger}

	client := openaiTransport.NewClient(&openaiTransport.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Timeout: time.Duration(cfg.OpenAI.TimeoutSec) * time.Second,
	})

	// Optional Redis store: embedding cache and budget counters.
	if cfg.Cache.Enabled {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: redis store: %w", domain.ErrConfiguration, err)
		}
		if err := store.WaitForReady(ctx, 5*time.Second); err != nil {
			logger.Warn("Cache not ready, continuing without it", zap.Error(err))
			store.Close()
		} else {
			a.store = store
			logger.Info("Connected to cache", zap.Strings("addrs", cfg.Cache.Addrs))
		}
	}

	// Pass nil interface (not typed nil pointer) if budget is not configured.
	var tracker *budgetuc.Tracker
	var budgetChecker instrument.BudgetChecker
	var budgetReader usageuc.BudgetReader
	if cfg.Budget.Enabled() {
		tracker = budgetuc.NewTracker(
			cfg.Budget.DailyTokenLimit, cfg.Budget.MonthlyTokenLimit, budgetuc.Action(cfg.Budget.Action), logger,
		)
		if a.store != nil {
			tracker.WithStore(ctx, budgetrepo.New(a.store, 48*time.Hour, 62*24*time.Hour))
		}
		budgetChecker = tracker
		budgetReader = tracker
	}

	completer := instrument.NewCompleter(
		openaiTransport.NewCompleter(client, cfg.OpenAI.ChatModel, logger),
		cfg.OpenAI.ChatModel, budgetChecker, logger,
	)
	embedder := buildEmbedder(cfg, client, a.store, budgetChecker, logger)

	a.searcher, err = esTransport.NewSearcher(esTransport.Config{
		CloudID:     cfg.Elasticsearch.CloudID,
		APIKey:      cfg.Elasticsearch.APIKey,
		Addresses:   cfg.Elasticsearch.Addresses,
		Index:       cfg.Elasticsearch.Index,
		VectorField: cfg.Elasticsearch.VectorField,
		Timeout:     time.Duration(cfg.Elasticsearch.TimeoutSec) * time.Second,
	}, logger)
	if err != nil {
		return nil, err
	}

	if opts.waitForSearch {
		timeout := time.Duration(cfg.Elasticsearch.ReadinessTimeout) * time.Second
		if err := a.searcher.WaitForReady(ctx, timeout); err != nil {
			logger.Error("Search engine connection failed",
				zap.String("index", a.searcher.Index()),
				zap.Error(err),
			)
			a.close()
			return nil, fmt.Errorf("%w: search engine connection failed: %w", domain.ErrConnectivity, err)
		}
		logger.Info("Connected to search engine", zap.String("index", a.searcher.Index()))
	}

	a.ask = askuc.New(completer, embedder, a.searcher, askuc.Options{
		K:                     cfg.Elasticsearch.K,
		NumCandidates:         cfg.Elasticsearch.NumCandidates,
		AnswerWithTranslation: cfg.Pipeline.AnswerQuestion == config.AnswerQuestionTranslated,
		AnswerChoices:         cfg.Pipeline.AnswerChoices,
		MaxQuestionRunes:      cfg.Pipeline.MaxQuestionRunes,
		Timeout:               time.Duration(cfg.Pipeline.RequestTimeoutSec) * time.Second,
	}, logger)

	a.usage = usageuc.New(budgetReader)

	var cachePinger healthuc.Pinger
	if a.store != nil {
		cachePinger = a.store
	}
	a.health = healthuc.New(a.searcher, openaiTransport.NewHealthChecker(client), cachePinger)

	return a, nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
func buildEmbedder(
	cfg config.Config,
	client *openai.Client,
	store db.Store,
	budget instrument.BudgetChecker,
	logger *zap.Logger,
) domain.Embedder {
	model := cfg.OpenAI.EmbeddingModel

	var embedder domain.Embedder = openaiTransport.NewEmbedder(client, model, logger)
	if store != nil {
		embedder = embcache.New(
			embedder, store, model, time.Duration(cfg.Cache.TTLSec)*time.Second, metrics.EmbeddingCacheTotal, logger,
		)
	}

	return instrument.NewEmbedder(embedder, model, budget, logger)
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
	_ = a.logger.Sync()
}
