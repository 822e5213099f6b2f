package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	chiTransport "github.com/kailas-cloud/wikiqa/internal/transport/chi"
	"github.com/kailas-cloud/wikiqa/internal/version"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web page and JSON API",
		Long: `Start the HTTP server.

Routes:
  GET  /             question form
  POST /ask          answer page
  POST /api/v1/ask   JSON answer (bearer auth when auth.api_keys is set)
  GET  /api/v1/usage token usage
  GET  /health       dependency status
  GET  /metrics      Prometheus metrics

The server refuses to start when the search engine is unreachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override http.port")
	return cmd
}

func runServe(ctx context.Context, port int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, env, buildOptions{waitForSearch: true})
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	if port > 0 {
		cfg.HTTP.Port = port
	}

	a.logger.Info("Starting wikiqa server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("chat_model", cfg.OpenAI.ChatModel),
		zap.String("embedding_model", cfg.OpenAI.EmbeddingModel),
		zap.Int("k", cfg.Elasticsearch.K),
		zap.Int("num_candidates", cfg.Elasticsearch.NumCandidates),
		zap.Bool("cache", a.store != nil),
		zap.Bool("budget", cfg.Budget.Enabled()),
	)

	server := chiTransport.NewServer(a.ask, a.usage, a.health, a.logger).
		WithMaxQuestionRunes(a.ask.Options().MaxQuestionRunes)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Error during shutdown", zap.Error(err))
		return err
	}

	a.logger.Info("Server stopped gracefully")
	return nil
}
