package wikiqa

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, WithAPIKey("secret"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "localhost:8501", "://bad"} {
		if _, err := New(u); err == nil {
			t.Errorf("expected error for base url %q", u)
		}
	}
}

func TestAsk_Success(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/ask" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		var body struct {
			Question string `json:"question"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Question != "대한민국의 수도는?" {
			t.Errorf("unexpected body %+v (%v)", body, err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "a1",
			"question": "대한민국의 수도는?",
			"translation": "What is the capital of South Korea?",
			"answer": "서울입니다.",
			"sources": [{"title": "Seoul", "url": "https://en.wikipedia.org/wiki/Seoul", "score": 0.88}],
			"usage": {"prompt_tokens": 50, "completion_tokens": 10, "total_tokens": 60}
		}`))
	})

	answer, err := c.Ask(context.Background(), "대한민국의 수도는?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Answer != "서울입니다." || answer.Translation != "What is the capital of South Korea?" {
		t.Errorf("unexpected answer %+v", answer)
	}
	if len(answer.Sources) != 1 || answer.Sources[0].Title != "Seoul" || answer.Sources[0].Score != 0.88 {
		t.Errorf("unexpected sources %+v", answer.Sources)
	}
	if answer.Usage.TotalTokens != 60 {
		t.Errorf("TotalTokens = %d, want 60", answer.Usage.TotalTokens)
	}
}

func TestAsk_ErrorCodes(t *testing.T) {
	tests := []struct {
		status int
		code   string
		want   error
	}{
		{http.StatusBadRequest, "empty_question", ErrEmptyQuestion},
		{http.StatusBadRequest, "question_too_long", ErrQuestionTooLong},
		{http.StatusNotFound, "no_results", ErrNoRelevantDocument},
		{http.StatusPaymentRequired, "token_budget_exceeded", ErrTokenBudgetExceeded},
		{http.StatusBadGateway, "provider_error", ErrProvider},
		{http.StatusUnauthorized, "unauthorized", ErrUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(map[string]string{"code": tc.code, "message": "m"})
			})

			_, err := c.Ask(context.Background(), "q")
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != tc.status {
				t.Errorf("expected APIError with status %d, got %v", tc.status, err)
			}
		})
	}
}

func TestAsk_NonJSONError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := c.Ask(context.Background(), "q")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "unknown" {
		t.Fatalf("expected unknown APIError, got %v", err)
	}
}

func TestAsk_ContextCanceled(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Ask(ctx, "q"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestUsage(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("period") != "month" {
			t.Errorf("period = %q", r.URL.Query().Get("period"))
		}
		_, _ = w.Write([]byte(`{
			"period": "month",
			"period_start_at": "2026-10-01T00:00:00Z",
			"period_end_at": "2026-11-01T00:00:00Z",
			"tokens_used": 1200,
			"budget": {"tokens_limit": -1, "tokens_remaining": -1, "is_exhausted": false}
		}`))
	})

	report, err := c.Usage(context.Background(), PeriodMonth)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TokensUsed != 1200 || report.Budget.Limit != -1 {
		t.Errorf("unexpected report %+v", report)
	}
	if !report.PeriodStart.Equal(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("PeriodStart = %v", report.PeriodStart)
	}
}

func TestHealth_UnavailableIsNotError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"error","checks":{"search":"error"}}`))
	})

	status, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Status != "error" || status.Checks["search"] != "error" {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestObserver_NilSafe(t *testing.T) {
	var obs *observer
	obs.observe("test", time.Now(), nil)
	obs.observe("test", time.Now(), errors.New("err"))
}

func TestObserver_WithPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := newObserver(slog.Default(), reg)
	if err != nil {
		t.Fatalf("newObserver: %v", err)
	}

	obs.observe("ask", time.Now().Add(-10*time.Millisecond), nil)
	obs.observe("ask", time.Now(), errors.New("fail"))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "wikiqa_client_operations_total" {
			found = true
			if len(f.GetMetric()) != 2 {
				t.Errorf("expected 2 metric samples, got %d", len(f.GetMetric()))
			}
		}
	}
	if !found {
		t.Error("wikiqa_client_operations_total not found")
	}
}

func TestNew_ReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New("http://localhost:8501", WithPrometheus(reg)); err != nil {
		t.Fatalf("first client: %v", err)
	}
	if _, err := New("http://localhost:8501", WithPrometheus(reg)); err != nil {
		t.Fatalf("second client must reuse collectors: %v", err)
	}
}
