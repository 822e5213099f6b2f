package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/wikiqa/internal/domain"
	healthuc "github.com/kailas-cloud/wikiqa/internal/usecase/health"
	usageuc "github.com/kailas-cloud/wikiqa/internal/usecase/usage"
)

// --- Mocks ---

type mockAsker struct {
	answer   domain.Answer
	err      error
	calls    int
	question string
}

func (m *mockAsker) Ask(_ context.Context, q string) (domain.Answer, error) {
	m.calls++
	m.question = q
	return m.answer, m.err
}

type mockChecker struct{ err error }

func (m *mockChecker) HealthCheck(_ context.Context) error { return m.err }

func atlanticAnswer() domain.Answer {
	return domain.Answer{
		ID:          "3f1c",
		Question:    "대서양은 몇 번째로 큰 바다인가?",
		Translation: "How big is the Atlantic Ocean in rank?",
		Choices:     []string{"대서양은 세계에서 두 번째로 큰 바다입니다."},
		Sources: []domain.Hit{
			domain.NewHit("Atlantic Ocean", "https://en.wikipedia.org/wiki/Atlantic_Ocean",
				"The Atlantic Ocean is the second largest...", 0.91),
		},
		Usage: domain.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	}
}

func newTestRouter(asker Asker, searchErr error, apiKeys []string) http.Handler {
	health := healthuc.New(&mockChecker{err: searchErr}, nil, nil)
	srv := NewServer(asker, usageuc.New(nil), health, zap.NewNop())
	return srv.Router(apiKeys)
}

func postForm(h http.Handler, question string) *httptest.ResponseRecorder {
	form := url.Values{"question": {question}}
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func postJSON(h http.Handler, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// --- HTML ---

func TestIndex_RendersForm(t *testing.T) {
	h := newTestRouter(&mockAsker{}, nil, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`name="question"`,
		"한글로 답변하는 위키 기반 AI",
		"25,000건",
		"대한민국의 수도는?",
		"도요타에서 가장 많이 팔리는 차는?",
		"vector_database_wikipedia_articles_embedded.zip",
		"© 2025 Kevin AI",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("index page missing %q", want)
		}
	}
	if strings.Contains(body, `class="result-card"`) {
		t.Error("index page must not render an answer")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestAskPage_RendersAnswerAndSources(t *testing.T) {
	asker := &mockAsker{answer: atlanticAnswer()}
	h := newTestRouter(asker, nil, nil)

	rr := postForm(h, "대서양은 몇 번째로 큰 바다인가?")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if asker.question != "대서양은 몇 번째로 큰 바다인가?" {
		t.Errorf("question not passed verbatim: %q", asker.question)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "대서양은 세계에서 두 번째로 큰 바다입니다.") {
		t.Error("answer text missing")
	}
	if n := strings.Count(body, `class="wiki-card"`); n != 1 {
		t.Errorf("expected exactly one source card, got %d", n)
	}
	if !strings.Contains(body, `<a href="https://en.wikipedia.org/wiki/Atlantic_Ocean">Atlantic Ocean</a>`) {
		t.Error("source link missing")
	}
	if !strings.Contains(body, "점수: 0.91") {
		t.Error("rounded score missing")
	}
	if strings.Contains(body, `role="alert"`) {
		t.Error("successful page must not show an error")
	}
}

func TestAskPage_ScoreRounding(t *testing.T) {
	a := atlanticAnswer()
	a.Sources = []domain.Hit{
		domain.NewHit("A", "https://a", "t", 0.915),
		domain.NewHit("B", "https://b", "t", 0.8),
	}
	h := newTestRouter(&mockAsker{answer: a}, nil, nil)

	body := postForm(h, "q").Body.String()
	if !strings.Contains(body, "점수: 0.92") || !strings.Contains(body, "점수: 0.80") {
		t.Errorf("expected two-decimal scores, got body:\n%s", body)
	}
	if strings.Index(body, ">A</a>") > strings.Index(body, ">B</a>") {
		t.Error("sources must keep engine order")
	}
}

func TestAskPage_EscapesModelOutput(t *testing.T) {
	a := atlanticAnswer()
	a.Choices = []string{"<script>alert(1)</script>"}
	h := newTestRouter(&mockAsker{answer: a}, nil, nil)

	body := postForm(h, "q").Body.String()
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("answer must be HTML-escaped")
	}
}

func TestAskPage_MultipleChoices(t *testing.T) {
	a := atlanticAnswer()
	a.Choices = []string{"첫 번째 답변", "두 번째 답변"}
	h := newTestRouter(&mockAsker{answer: a}, nil, nil)

	body := postForm(h, "q").Body.String()
	if n := strings.Count(body, `class="result-card"`); n != 2 {
		t.Errorf("expected 2 answer cards, got %d", n)
	}
}

func TestAskPage_FailuresRenderOneNoticeOnly(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		want   string
	}{
		{"translate", domain.NewStageError(domain.StageTranslate, domain.ErrProvider), http.StatusBadGateway, "오류가 발생했습니다"},
		{"embed", domain.NewStageError(domain.StageEmbed, domain.ErrProvider), http.StatusBadGateway, "오류가 발생했습니다"},
		{"search", domain.NewStageError(domain.StageSearch, domain.ErrProvider), http.StatusBadGateway, "오류가 발생했습니다"},
		{"answer", domain.NewStageError(domain.StageAnswer, domain.ErrProvider), http.StatusBadGateway, "오류가 발생했습니다"},
		{"no results", domain.NewStageError(domain.StageSearch, domain.ErrNoRelevantDocument), http.StatusNotFound, "관련 문서를 찾지 못했습니다"},
		{"empty", domain.NewStageError(domain.StageValidate, domain.ErrEmptyQuestion), http.StatusBadRequest, "질문을 입력하세요."},
		{"budget", domain.NewStageError(domain.StageTranslate, domain.ErrTokenBudgetExceeded), http.StatusPaymentRequired, "사용 한도"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "오류가 발생했습니다"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestRouter(&mockAsker{err: tc.err}, nil, nil)
			rr := postForm(h, "대서양은 몇 번째로 큰 바다인가?")

			if rr.Code != tc.status {
				t.Errorf("expected %d, got %d", tc.status, rr.Code)
			}
			body := rr.Body.String()
			if strings.Count(body, tc.want) != 1 {
				t.Errorf("expected exactly one %q notice", tc.want)
			}
			if strings.Contains(body, `class="result-card"`) || strings.Contains(body, `class="wiki-card"`) {
				t.Error("failure must not render a partial answer")
			}
			if strings.Contains(body, "boom") || strings.Contains(body, "provider error") {
				t.Error("internal error details must not leak to the page")
			}
		})
	}
}

// --- JSON API ---

func TestAskJSON_Success(t *testing.T) {
	h := newTestRouter(&mockAsker{answer: atlanticAnswer()}, nil, nil)

	rr := postJSON(h, `{"question":"대서양은 몇 번째로 큰 바다인가?"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp askResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "대서양은 세계에서 두 번째로 큰 바다입니다." {
		t.Errorf("unexpected answer: %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Score != 0.91 || resp.Sources[0].Title != "Atlantic Ocean" {
		t.Errorf("unexpected sources: %+v", resp.Sources)
	}
	if resp.Usage.TotalTokens != 120 || resp.ID != "3f1c" {
		t.Errorf("unexpected metadata: %+v", resp)
	}
	if resp.Choices != nil {
		t.Errorf("single choice must not repeat choices, got %v", resp.Choices)
	}
}

func TestAskJSON_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.NewStageError(domain.StageValidate, domain.ErrEmptyQuestion), http.StatusBadRequest, codeEmptyQuestion},
		{domain.NewStageError(domain.StageValidate, domain.ErrQuestionTooLong), http.StatusBadRequest, codeTooLong},
		{domain.NewStageError(domain.StageSearch, domain.ErrNoRelevantDocument), http.StatusNotFound, codeNoResults},
		{domain.NewStageError(domain.StageEmbed, domain.ErrTokenBudgetExceeded), http.StatusPaymentRequired, codeBudgetExceeded},
		{domain.NewStageError(domain.StageAnswer, fmt.Errorf("chat API error 500: %w", domain.ErrProvider)), http.StatusBadGateway, codeProviderError},
		{domain.NewStageError(domain.StageSearch, context.DeadlineExceeded), http.StatusGatewayTimeout, codeProviderError},
		{errors.New("boom"), http.StatusInternalServerError, codeInternalError},
	}

	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			h := newTestRouter(&mockAsker{err: tc.err}, nil, nil)
			rr := postJSON(h, `{"question":"q"}`, "")

			if rr.Code != tc.status {
				t.Errorf("expected %d, got %d", tc.status, rr.Code)
			}
			var resp errorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Code != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, resp.Code)
			}
			if strings.Contains(resp.Message, "500") || strings.Contains(resp.Message, "boom") {
				t.Errorf("message leaks internals: %q", resp.Message)
			}
		})
	}
}

func TestAskJSON_InvalidBody(t *testing.T) {
	asker := &mockAsker{}
	h := newTestRouter(asker, nil, nil)

	rr := postJSON(h, `{not json`, "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
	if asker.calls != 0 {
		t.Error("pipeline must not run on invalid body")
	}
}

func TestAskJSON_RequiresAuthWhenConfigured(t *testing.T) {
	asker := &mockAsker{answer: atlanticAnswer()}
	h := newTestRouter(asker, nil, []string{"secret"})

	if rr := postJSON(h, `{"question":"q"}`, ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rr.Code)
	}
	if rr := postJSON(h, `{"question":"q"}`, "secret"); rr.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", rr.Code)
	}
	// The HTML form stays public.
	if rr := postForm(h, "q"); rr.Code != http.StatusOK {
		t.Errorf("expected public form, got %d", rr.Code)
	}
}

// --- Usage, health, metrics ---

func TestGetUsage(t *testing.T) {
	h := newTestRouter(&mockAsker{}, nil, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/usage?period=month", http.NoBody))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Period string `json:"period"`
		Budget struct {
			TokensLimit int64 `json:"tokens_limit"`
		} `json:"budget"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Period != "month" || resp.Budget.TokensLimit != -1 {
		t.Errorf("unexpected usage response: %+v", resp)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/usage?period=decade", http.NoBody))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown period, got %d", rr.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(&mockAsker{}, nil, []string{"secret"}).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 without auth, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	newTestRouter(&mockAsker{}, errors.New("refused"), nil).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when search is down, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(&mockAsker{}, nil, []string{"secret"}).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

type panicAsker struct{}

func (panicAsker) Ask(context.Context, string) (domain.Answer, error) { panic("kaboom") }

func TestRecoverer_ReturnsJSON(t *testing.T) {
	rr := postJSON(newTestRouter(panicAsker{}, nil, nil), `{"question":"q"}`, "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON body, got %q", ct)
	}
}

func TestRecoverer_RendersPageForForm(t *testing.T) {
	rr := postForm(newTestRouter(panicAsker{}, nil, nil), "q")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected HTML body for the form, got %q", ct)
	}
	body := rr.Body.String()
	if strings.Count(body, `role="alert"`) != 1 || !strings.Contains(body, msgFailure) {
		t.Errorf("expected one error notice, got:\n%s", body)
	}
}

func TestRecoverer_RequestLineStillLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	health := healthuc.New(&mockChecker{}, nil, nil)
	h := NewServer(panicAsker{}, usageuc.New(nil), health, zap.New(core)).Router(nil)

	postJSON(h, `{"question":"q"}`, "")

	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one http_request line, got %d", len(entries))
	}
	if status := entries[0].ContextMap()["status"]; status != int64(http.StatusInternalServerError) {
		t.Errorf("expected logged status 500, got %v", status)
	}
}

func TestIndex_MaxLengthFollowsLimit(t *testing.T) {
	health := healthuc.New(&mockChecker{}, nil, nil)
	srv := NewServer(&mockAsker{}, usageuc.New(nil), health, zap.NewNop()).WithMaxQuestionRunes(200)

	rr := httptest.NewRecorder()
	srv.Router(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if !strings.Contains(rr.Body.String(), `maxlength="200"`) {
		t.Error("form must advertise the configured limit")
	}

	rr = httptest.NewRecorder()
	newTestRouter(&mockAsker{}, nil, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if !strings.Contains(rr.Body.String(), `maxlength="1000"`) {
		t.Error("form must default to 1000 runes")
	}
}
