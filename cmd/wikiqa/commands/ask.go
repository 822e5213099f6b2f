package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/wikiqa/internal/domain"
)

// NewAskCmd creates the one-shot ask command.
func NewAskCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and exit",
		Long: `Run the question pipeline once and print the answer.

The question may be given as several arguments; they are joined with spaces.`,
		Example: `  wikiqa ask "대서양은 몇 번째로 큰 바다인가?"
  wikiqa ask --json 대한민국의 수도는?`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			a, err := buildApp(ctx, env, buildOptions{waitForSearch: true})
			if err != nil {
				return err
			}
			defer a.close()

			answer, err := a.ask.Ask(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return writeAnswer(cmd.OutOrStdout(), answer, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the answer as JSON")
	return cmd
}

type cliSource struct {
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Score float64 `json:"score"`
}

type cliAnswer struct {
	ID          string      `json:"id"`
	Question    string      `json:"question"`
	Translation string      `json:"translation"`
	Answer      string      `json:"answer"`
	Choices     []string    `json:"choices,omitempty"`
	Sources     []cliSource `json:"sources"`
}

func writeAnswer(w io.Writer, a domain.Answer, asJSON bool) error {
	if asJSON {
		out := cliAnswer{
			ID:          a.ID,
			Question:    a.Question,
			Translation: a.Translation,
			Answer:      a.Text(),
			Sources:     make([]cliSource, len(a.Sources)),
		}
		if len(a.Choices) > 1 {
			out.Choices = a.Choices
		}
		for i, h := range a.Sources {
			out.Sources[i] = cliSource{Title: h.Title(), URL: h.URL(), Score: h.RoundedScore()}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for i, choice := range a.Choices {
		if len(a.Choices) > 1 {
			fmt.Fprintf(w, "[%d] ", i+1)
		}
		fmt.Fprintln(w, choice)
	}
	if a.Translation != "" {
		fmt.Fprintf(w, "\n번역된 질문: %s\n", a.Translation)
	}
	if len(a.Sources) > 0 {
		fmt.Fprintln(w, "\n검색된 문서:")
		for _, h := range a.Sources {
			fmt.Fprintf(w, "  - %s (%s) 점수: %.2f\n", h.Title(), h.URL(), h.RoundedScore())
		}
	}
	return nil
}
