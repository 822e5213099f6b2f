// Package commands implements the wikiqa command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/wikiqa/internal/config"
)

var env string

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wikiqa",
		Short: "Korean question answering over Wikipedia",
		Long: `wikiqa answers Korean questions in Korean.

Each question is translated to English, embedded, matched against the
wikipedia_vector_index in Elasticsearch with a kNN query, and answered
by the chat model using the best matching article as context.

Configuration is read from config/<env>.yaml; secrets come from the
environment or the dotenv file named by SECRETS_FILE (default .env).`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&env, "env", config.GetEnv(), "config environment (local, dev, prod)")

	cmd.AddCommand(
		NewServeCmd(),
		NewAskCmd(),
		NewMCPCmd(),
		NewCheckCmd(),
		NewVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
