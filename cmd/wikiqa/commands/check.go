package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/wikiqa/internal/domain"
	healthuc "github.com/kailas-cloud/wikiqa/internal/usecase/health"
)

// NewCheckCmd creates the connectivity check command.
func NewCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check connectivity to the search engine, model provider and cache",
		Long: `Validate the configuration and probe every external dependency once.

Exits non-zero when the search engine cannot be reached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			a, err := buildApp(ctx, env, buildOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			return writeHealth(cmd.OutOrStdout(), a.health.Check(ctx))
		},
	}
}

func writeHealth(w io.Writer, r healthuc.Report) error {
	for _, name := range r.Components() {
		if msg, failed := r.Errors[name]; failed {
			fmt.Fprintf(w, "%-8s %s: %s\n", name, r.Checks[name], msg)
			continue
		}
		fmt.Fprintf(w, "%-8s %s\n", name, r.Checks[name])
	}
	fmt.Fprintf(w, "status   %s\n", r.Status)

	if r.Status == healthuc.Unhealthy {
		return fmt.Errorf("%w: search engine connection failed", domain.ErrConnectivity)
	}
	return nil
}
