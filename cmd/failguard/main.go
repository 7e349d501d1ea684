// Command failguard probes an HTTP target through a resilience policy
// bundle and validates bundle files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "failguard",
		Short: "failguard - resilience policies for remote calls",
		Long: `failguard runs an HTTP probe guarded by retry, circuit breaker,
timeout, bulkhead and rate limit policies, and validates policy bundle files.`,
		Version:       fmt.Sprintf("%s (%s)", Version, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(newProbeCmd(), newValidateCmd())
	return root
}
