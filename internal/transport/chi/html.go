package chi

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/wikiqa/internal/domain"
	"github.com/kailas-cloud/wikiqa/internal/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html"))

// exampleQuestions are shown under the service description.
var exampleQuestions = []string{
	"대서양은 몇 번째로 큰 바다인가?",
	"대한민국의 수도는?",
	"도요타에서 가장 많이 팔리는 차는?",
}

type sourceView struct {
	Title string
	URL   string
	Score string
}

type answerView struct {
	Translation string
	Choices     []string
	Sources     []sourceView
}

type pageView struct {
	Question         string
	MaxQuestionRunes int
	Examples         []string
	Answer           *answerView
	Error            string
	Notice           string
}

// Index handles GET /.
func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, http.StatusOK, pageView{})
}

// AskPage handles POST /ask from the HTML form.
// The page shows either the full answer with sources or exactly one notice, never both.
func (s *Server) AskPage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.renderPage(w, r, http.StatusBadRequest, pageView{Error: "잘못된 요청입니다."})
		return
	}
	question := r.PostFormValue("question")

	answer, err := s.ask.Ask(r.Context(), question)
	if err != nil {
		logger.FromContext(r.Context(), s.logger).Warn("ask page failed",
			zap.String("stage", domain.StageOf(err).String()),
			zap.Error(err),
		)
		status, msg, isError := pageMessage(err)
		view := pageView{Question: question}
		if isError {
			view.Error = msg
		} else {
			view.Notice = msg
		}
		s.renderPage(w, r, status, view)
		return
	}

	s.renderPage(w, r, http.StatusOK, pageView{Question: question, Answer: toAnswerView(answer)})
}

func toAnswerView(a domain.Answer) *answerView {
	sources := make([]sourceView, len(a.Sources))
	for i, h := range a.Sources {
		sources[i] = sourceView{Title: h.Title(), URL: h.URL(), Score: fmt.Sprintf("%.2f", h.RoundedScore())}
	}
	return &answerView{Translation: a.Translation, Choices: a.Choices, Sources: sources}
}

// renderPage buffers the whole page so a template failure never leaves half a page on the wire.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, view pageView) {
	view.Examples = exampleQuestions
	view.MaxQuestionRunes = s.maxRunes

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, view); err != nil {
		logger.FromContext(r.Context(), s.logger).Error("render page", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
