// Package mcp exposes the question pipeline as a Model Context Protocol tool over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kailas-cloud/wikiqa/internal/domain"
)

// ToolAskWiki is the name of the single registered tool.
const ToolAskWiki = "ask_wiki"

// Asker runs the question pipeline.
type Asker interface {
	Ask(ctx context.Context, question string) (domain.Answer, error)
}

// Handlers holds the MCP tool handlers.
type Handlers struct {
	ask    Asker
	logger *zap.Logger
}

// NewServer creates an MCP server with the ask_wiki tool registered.
func NewServer(name, version string, ask Asker, logger *zap.Logger) *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer(name, version)
	RegisterTools(srv, ask, logger)
	return srv
}

// RegisterTools registers the wiki tools on srv.
func RegisterTools(srv *mcpserver.MCPServer, ask Asker, logger *zap.Logger) *Handlers {
	h := &Handlers{ask: ask, logger: logger}

	srv.AddTool(mcp.Tool{
		Name: ToolAskWiki,
		Description: "Answer a Korean question in Korean, grounded in English Wikipedia articles " +
			"found by semantic search. Returns the answer followed by the source articles.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Question in Korean, e.g. 대한민국의 수도는?",
				},
			},
			Required: []string{"question"},
		},
	}, h.AskWiki)

	return h
}

// AskWiki handles the ask_wiki tool.
func (h *Handlers) AskWiki(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question argument is required and must be a string"), nil
	}

	answer, err := h.ask.Ask(ctx, question)
	if err != nil {
		h.logger.Warn("ask_wiki failed",
			zap.String("stage", domain.StageOf(err).String()),
			zap.Error(err),
		)
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}

	return mcp.NewToolResultText(formatAnswer(answer)), nil
}

// formatAnswer renders the answer and its sources as plain text.
func formatAnswer(a domain.Answer) string {
	var b strings.Builder
	for i, choice := range a.Choices {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(choice)
	}
	if a.Translation != "" {
		fmt.Fprintf(&b, "\n\nTranslated question: %s", a.Translation)
	}
	if len(a.Sources) > 0 {
		b.WriteString("\n\nSources:")
		for i, h := range a.Sources {
			fmt.Fprintf(&b, "\n%d. %s (%s) score %.2f", i+1, h.Title(), h.URL(), h.RoundedScore())
		}
	}
	return b.String()
}

var userFacingErrors = []error{
	domain.ErrEmptyQuestion,
	domain.ErrQuestionTooLong,
	domain.ErrNoRelevantDocument,
	domain.ErrTokenBudgetExceeded,
}

func toolErrorMessage(err error) string {
	for _, s := range userFacingErrors {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "upstream service failed, please try again"
}
