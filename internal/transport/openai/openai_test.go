package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/wikiqa/internal/domain"
	"github.com/kailas-cloud/wikiqa/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterProviderMetrics()
	os.Exit(m.Run())
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Config {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestEmbedder_Embed(t *testing.T) {
	expectedVec := []float32{0.1, 0.2, 0.3, 0.4}

	cfg := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Model != "text-embedding-ada-002" {
			t.Errorf("expected model text-embedding-ada-002, got %q", req.Model)
		}
		if len(req.Input) != 1 || req.Input[0] != "Which ocean is the Atlantic?" {
			t.Errorf("text not passed verbatim: %v", req.Input)
		}

		writeJSON(t, w, http.StatusOK, map[string]any{
			"object": "list",
			"model":  req.Model,
			"data": []map[string]any{
				{"object": "embedding", "embedding": expectedVec, "index": 0},
			},
			"usage": map[string]any{"prompt_tokens": 7, "total_tokens": 7},
		})
	})

	emb := NewEmbedder(NewClient(cfg), "text-embedding-ada-002", zap.NewNop())

	result, err := emb.Embed(context.Background(), "Which ocean is the Atlantic?")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(result.Embedding) != len(expectedVec) {
		t.Fatalf("expected %d dims, got %d", len(expectedVec), len(result.Embedding))
	}
	for i, v := range expectedVec {
		if result.Embedding[i] != v {
			t.Errorf("dim %d: expected %f, got %f", i, v, result.Embedding[i])
		}
	}
	if result.PromptTokens != 7 || result.TotalTokens != 7 {
		t.Errorf("unexpected usage: %+v", result)
	}
}

func TestEmbedder_EmptyResponse(t *testing.T) {
	cfg := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"object": "list", "data": []any{}})
	})

	emb := NewEmbedder(NewClient(cfg), "text-embedding-ada-002", zap.NewNop())

	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
}

func TestEmbedder_APIError(t *testing.T) {
	cfg := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusTooManyRequests, map[string]any{
			"error": map[string]any{
				"message": "rate limit exceeded",
				"type":    "rate_limit_error",
			},
		})
	})

	emb := NewEmbedder(NewClient(cfg), "text-embedding-ada-002", zap.NewNop())

	_, err := emb.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !errors.Is(err, domain.ErrProvider) {
		t.Errorf("expected ErrProvider, got %v", err)
	}
	if !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Errorf("expected provider message in error, got %q", err.Error())
	}
}

func chatResponse(choices ...string) map[string]any {
	out := make([]map[string]any, len(choices))
	for i, c := range choices {
		out[i] = map[string]any{
			"index":         i,
			"message":       map[string]any{"role": "assistant", "content": c},
			"finish_reason": "stop",
		}
	}
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"model":   "gpt-3.5-turbo",
		"choices": out,
		"usage":   map[string]any{"prompt_tokens": 20, "completion_tokens": 5, "total_tokens": 25},
	}
}

func TestCompleter_Complete(t *testing.T) {
	cfg := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req struct {
			Model    string `json:"model"`
			N        int    `json:"n"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Model != "gpt-3.5-turbo" {
			t.Errorf("expected model gpt-3.5-turbo, got %q", req.Model)
		}
		if req.N != 0 {
			t.Errorf("expected n omitted for single choice, got %d", req.N)
		}
		if len(req.Messages) != 2 {
			t.Errorf("expected 2 messages, got %d", len(req.Messages))
			return
		}
		if req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected roles: %s/%s", req.Messages[0].Role, req.Messages[1].Role)
		}
		if req.Messages[1].Content != "질문: 대한민국의 수도는?" {
			t.Errorf("content not passed verbatim: %q", req.Messages[1].Content)
		}

		writeJSON(t, w, http.StatusOK, chatResponse("서울입니다."))
	})

	c := NewCompleter(NewClient(cfg), "gpt-3.5-turbo", zap.NewNop())

	result, err := c.Complete(context.Background(), domain.CompletionRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "system"},
			{Role: domain.RoleUser, Content: "질문: 대한민국의 수도는?"},
		},
		Choices: 1,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if len(result.Choices) != 1 || result.Choices[0] != "서울입니다." {
		t.Errorf("unexpected choices: %v", result.Choices)
	}
	if result.Usage.TotalTokens != 25 || result.Usage.PromptTokens != 20 || result.Usage.CompletionTokens != 5 {
		t.Errorf("unexpected usage: %+v", result.Usage)
	}
}

func TestCompleter_MultipleChoices(t *testing.T) {
	cfg := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			N int `json:"n"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.N != 3 {
			t.Errorf("expected n=3, got %d", req.N)
		}
		writeJSON(t, w, http.StatusOK, chatResponse("a", "b", "c"))
	})

	c := NewCompleter(NewClient(cfg), "gpt-3.5-turbo", zap.NewNop())

	result, err := c.Complete(context.Background(), domain.CompletionRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "q"}},
		Choices:  3,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if strings.Join(result.Choices, ",") != "a,b,c" {
		t.Errorf("expected choices in provider order, got %v", result.Choices)
	}
}

func TestCompleter_NoChoices(t *testing.T) {
	cfg := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, chatResponse())
	})

	c := NewCompleter(NewClient(cfg), "gpt-3.5-turbo", zap.NewNop())

	_, err := c.Complete(context.Background(), domain.CompletionRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "q"}},
	})
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
}

func TestCompleter_Unauthorized(t *testing.T) {
	cfg := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]any{
			"error": map[string]any{"message": "invalid api key", "type": "invalid_request_error"},
		})
	})

	c := NewCompleter(NewClient(cfg), "gpt-3.5-turbo", zap.NewNop())

	_, err := c.Complete(context.Background(), domain.CompletionRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "q"}},
	})
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
}

func TestHealthChecker(t *testing.T) {
	cfg := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"object": "list", "data": []any{}})
	})

	if err := NewHealthChecker(NewClient(cfg)).HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExtractDetail(t *testing.T) {
	if got := extractDetail([]byte(`{"detail":"quota exhausted"}`)); got != "quota exhausted" {
		t.Errorf("expected detail, got %q", got)
	}
	if got := extractDetail([]byte(`not json`)); got != "" {
		t.Errorf("expected empty detail, got %q", got)
	}
}
