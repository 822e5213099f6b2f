package commands

import (
	"context"
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	mcpTransport "github.com/kailas-cloud/wikiqa/internal/transport/mcp"
	"github.com/kailas-cloud/wikiqa/internal/version"
)

// NewMCPCmd creates the MCP command.
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start an MCP (Model Context Protocol) server on stdio.

LLM agents get one tool, ask_wiki, which answers a Korean question
from the Wikipedia index. Logs go to stderr; stdout carries the protocol.`,
		Example: `  # Configure in claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "wikiqa": {
  #       "command": "wikiqa",
  #       "args": ["mcp"]
  #     }
  #   }
  # }
  wikiqa mcp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			a, err := buildApp(ctx, env, buildOptions{waitForSearch: true})
			if err != nil {
				return err
			}
			defer a.close()

			srv := mcpTransport.NewServer("wikiqa", version.Version, a.ask, a.logger)
			a.logger.Info("MCP server starting on stdio")
			if err := mcpserver.ServeStdio(srv); err != nil {
				return fmt.Errorf("mcp server: %w", err)
			}
			a.logger.Info("MCP server stopped")
			return nil
		},
	}
	return cmd
}
