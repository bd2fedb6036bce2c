// Package main is the metricgovernor binary. It serves the governor HTTP API
// and reporter, and offers offline commands to validate configurations and
// replay recorded metric streams through the configured limiters.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "metricgovernor",
		Short: "Cardinality governor for metric submissions",
		Long: `metricgovernor bounds the number of distinct metric series a source may
submit. Each limiter partitions submissions by a scope and caps the number of
distinct selections counted inside every scope.

Example:
  metricgovernor serve --config config.yaml
  metricgovernor replay --config config.yaml metrics.jsonl`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (YAML)")

	rootCmd.AddCommand(
		newServeCmd(),
		newValidateCmd(),
		newReplayCmd(),
		newExampleConfigCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func configFlag(cmd *cobra.Command) (string, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", fmt.Errorf("failed to get config flag: %w", err)
	}
	return path, nil
}
