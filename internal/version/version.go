// Package version holds build metadata injected via ldflags.
package version

import "fmt"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String returns the version line printed by the CLI.
func String() string {
	return fmt.Sprintf("wikiqa %s (commit %s, built %s)", Version, Commit, Date)
}
