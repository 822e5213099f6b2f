// Package chi serves the question page and the JSON API over go-chi.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/wikiqa/internal/domain"
	"github.com/kailas-cloud/wikiqa/internal/logger"
	"github.com/kailas-cloud/wikiqa/internal/metrics"
	healthuc "github.com/kailas-cloud/wikiqa/internal/usecase/health"
	usageuc "github.com/kailas-cloud/wikiqa/internal/usecase/usage"
)

const (
	maxBodyBytes = 16 << 10

	// statusClientClosedRequest is logged when the caller disconnects mid-pipeline.
	statusClientClosedRequest = 499
)

// Error codes returned in JSON error bodies.
const (
	codeBadRequest     = "bad_request"
	codeEmptyQuestion  = "empty_question"
	codeTooLong        = "question_too_long"
	codeNoResults      = "no_results"
	codeBudgetExceeded = "token_budget_exceeded"
	codeProviderError  = "provider_error"
	codeUnauthorized   = "unauthorized"
	codeInternalError  = "internal_error"
)

// Asker runs the question pipeline.
type Asker interface {
	Ask(ctx context.Context, question string) (domain.Answer, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server holds the HTTP handlers.
type Server struct {
	ask           Asker
	maxRunes      int
	usage         *usageuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates the HTTP server handlers.
func NewServer(ask Asker, usage *usageuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{ask: ask, usage: usage, health: health, logger: logger, maxRunes: domain.DefaultMaxQuestionRunes}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyQuestion, http.StatusBadRequest, codeEmptyQuestion),
		sentinelHandler(domain.ErrQuestionTooLong, http.StatusBadRequest, codeTooLong),
		sentinelHandler(domain.ErrNoRelevantDocument, http.StatusNotFound, codeNoResults),
		sentinelHandler(domain.ErrTokenBudgetExceeded, http.StatusPaymentRequired, codeBudgetExceeded),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, codeProviderError),
		sentinelHandler(domain.ErrProvider, http.StatusBadGateway, codeProviderError),
	}
	return s
}

// WithMaxQuestionRunes sets the input limit advertised by the question form.
func (s *Server) WithMaxQuestionRunes(n int) *Server {
	if n > 0 {
		s.maxRunes = n
	}
	return s
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(s.recoverer)
	r.Use(metrics.Middleware())

	r.Get("/", s.Index)
	r.Post("/ask", s.AskPage)
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiKeys))
		r.Post("/ask", s.AskJSON)
		r.Get("/usage", s.GetUsage)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "not found")
	})
	return r
}

type askRequest struct {
	Question string `json:"question"`
}

type sourceResponse struct {
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Score float64 `json:"score"`
}

type usageResponse struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type askResponse struct {
	ID          string           `json:"id"`
	Question    string           `json:"question"`
	Translation string           `json:"translation"`
	Answer      string           `json:"answer"`
	Choices     []string         `json:"choices,omitempty"`
	Sources     []sourceResponse `json:"sources"`
	Usage       usageResponse    `json:"usage"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AskJSON handles POST /api/v1/ask.
func (s *Server) AskJSON(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}

	answer, err := s.ask.Ask(r.Context(), req.Question)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, answerToResponse(answer))
}

// GetUsage handles GET /api/v1/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, err := usageuc.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	report := s.usage.GetReport(r.Context(), period)
	writeJSON(w, http.StatusOK, map[string]any{
		"period":          report.Period,
		"period_start_at": report.PeriodStart.Format(time.RFC3339),
		"period_end_at":   report.PeriodEnd.Format(time.RFC3339),
		"tokens_used":     report.Used,
		"budget": map[string]any{
			"tokens_limit":     report.Limit,
			"tokens_remaining": report.Remaining,
			"is_exhausted":     report.Exhausted,
		},
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": checks,
	})
}

func answerToResponse(a domain.Answer) askResponse {
	sources := make([]sourceResponse, len(a.Sources))
	for i, h := range a.Sources {
		sources[i] = sourceResponse{Title: h.Title(), URL: h.URL(), Score: h.RoundedScore()}
	}
	resp := askResponse{
		ID:          a.ID,
		Question:    a.Question,
		Translation: a.Translation,
		Answer:      a.Text(),
		Sources:     sources,
		Usage: usageResponse{
			PromptTokens:     a.Usage.PromptTokens,
			CompletionTokens: a.Usage.CompletionTokens,
			TotalTokens:      a.Usage.TotalTokens,
		},
	}
	if len(a.Choices) > 1 {
		resp.Choices = a.Choices
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
// Provider failures collapse into one generic message regardless of stage.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEmptyQuestion,
		domain.ErrQuestionTooLong,
		domain.ErrNoRelevantDocument,
		domain.ErrTokenBudgetExceeded,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	if errors.Is(err, domain.ErrProvider) || errors.Is(err, context.DeadlineExceeded) {
		return "upstream service failed, please try again"
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, safeDomainMessage(err))
		return true
	}
}

func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logger.FromContext(ctx, s.logger)
	log.Warn("domain error", zap.String("stage", domain.StageOf(err).String()), zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	if errors.Is(err, context.Canceled) {
		w.WriteHeader(statusClientClosedRequest)
		return
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

// msgFailure is the single notice shown for provider and internal failures.
const msgFailure = "오류가 발생했습니다. 잠시 후 다시 시도하세요."

// pageMessage maps an error to the single notice shown on the HTML page.
func pageMessage(err error) (status int, notice string, isError bool) {
	switch {
	case errors.Is(err, domain.ErrEmptyQuestion):
		return http.StatusBadRequest, "질문을 입력하세요.", true
	case errors.Is(err, domain.ErrQuestionTooLong):
		return http.StatusBadRequest, "질문이 너무 깁니다. 더 짧게 입력하세요.", true
	case errors.Is(err, domain.ErrNoRelevantDocument):
		return http.StatusNotFound, "관련 문서를 찾지 못했습니다. 다른 질문을 입력해 보세요.", false
	case errors.Is(err, domain.ErrTokenBudgetExceeded):
		return http.StatusPaymentRequired, "오늘의 사용 한도를 초과했습니다. 나중에 다시 시도하세요.", true
	case errors.Is(err, domain.ErrProvider), errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway, msgFailure, true
	default:
		return http.StatusInternalServerError, msgFailure, true
	}
}
