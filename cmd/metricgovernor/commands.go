package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"metricgovernor/internal/aggregator"
	"metricgovernor/internal/config"
	"metricgovernor/internal/governor"
	"metricgovernor/internal/intake"
	"metricgovernor/internal/logger"
	"metricgovernor/internal/models"
	"metricgovernor/internal/version"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and print the limiters it defines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configFlag(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			rules, err := config.RuleSet(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration OK: governor %q, %d limiters\n", cfg.Governor.Name, rules.Len())
			if rules.Len() == 0 {
				return nil
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(rules.Definitions()); err != nil {
				return fmt.Errorf("failed to print limiters: %w", err)
			}
			return enc.Close()
		},
	}
}

// replayResult is what replay prints: submission counts and the status of
// every limiter after the whole stream.
type replayResult struct {
	Stats  aggregator.Stats     `json:"stats"`
	Report *models.StatusReport `json:"report"`
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: "Stream JSON-lines metrics through a fresh governor and print its status",
		Long: `replay reads one JSON metric per line from file, or from stdin when file is
omitted or "-", submits each through a governor built from the configured
limiters and prints the resulting status report as JSON.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runReplay,
	}
	cmd.Flags().Bool("show-accepted", false, "Also print every accepted metric as a JSON line before the report")
	return cmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	path, err := configFlag(cmd)
	if err != nil {
		return err
	}
	showAccepted, err := cmd.Flags().GetBool("show-accepted")
	if err != nil {
		return fmt.Errorf("failed to get show-accepted flag: %w", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	rules, err := config.RuleSet(cfg)
	if err != nil {
		return err
	}

	input := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		input = f
	}

	log := logger.New(cmd.ErrOrStderr(), "text", slog.LevelWarn)
	agg := aggregator.New(governor.New(rules, governor.WithName(cfg.Governor.Name)))
	if err := replay(cmd.Context(), agg, input, log); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	if showAccepted {
		for _, m := range agg.Flush() {
			if err := enc.Encode(m); err != nil {
				return fmt.Errorf("failed to print metric: %w", err)
			}
		}
	}

	result := replayResult{
		Stats:  agg.Stats(),
		Report: models.NewStatusReport(agg.Governor().Name(), version.GetInfo().InstanceID, agg.Governor().Status(), time.Now().UTC()),
	}
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to print report: %w", err)
	}
	return nil
}

// replay submits every metric of r through agg. It stops early without error
// when ctx is cancelled.
func replay(ctx context.Context, agg *aggregator.Aggregator, r io.Reader, log *slog.Logger) error {
	err := intake.Decode(r, func(m aggregator.Metric) error {
		if ctx.Err() != nil {
			return intake.ErrStop
		}
		decision, err := agg.SubmitMetric(ctx, m)
		if err != nil {
			return fmt.Errorf("failed to submit %s: %w", m.Name, err)
		}
		if decision == governor.Suppressed {
			log.DebugContext(ctx, "Metric suppressed", "name", m.Name, "check", m.Check, "instance", m.Instance)
		}
		return nil
	})

	var lineErr *intake.LineError
	if errors.As(err, &lineErr) {
		return fmt.Errorf("invalid input: %w", err)
	}
	return err
}

func newExampleConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "example-config [file]",
		Short: "Write an example configuration",
		Long:  "example-config writes an example configuration to file, or prints it when file is omitted.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := config.SaveExample(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "example configuration written to %s\n", args[0])
				return nil
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(config.ExampleConfig()); err != nil {
				return fmt.Errorf("failed to print example config: %w", err)
			}
			return enc.Close()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetInfo().String())
			return nil
		},
	}
}
