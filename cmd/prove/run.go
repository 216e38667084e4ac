package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyrsmithlabs/prove/internal/prove"
	"github.com/fyrsmithlabs/prove/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var jsonOutput bool

func init() {
	for _, cmd := range []*cobra.Command{runCmd, quickCmd} {
		cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the JSON report instead of the console summary")
		rootCmd.AddCommand(cmd)
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every applicable check",
	Long: `Run every applicable check against the current change.

The JSON report is written to .prove/report.json (paths.report) whether the
run passes or fails. The exit code is 0 when every check passed, else 1.

Examples:
  # Full gate in the current repository
  prove run

  # Gate another checkout with its own config
  prove run -C ../web --config ../web/.prove.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runGate(cmd, false)
	},
}

var quickCmd = &cobra.Command{
	Use:   "quick",
	Short: "Run the quick-mode subset of checks",
	Long: `Run only the checks eligible for quick mode, for a fast local loop.

Examples:
  prove quick`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runGate(cmd, true)
	},
}

func runGate(cmd *cobra.Command, quick bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	runner, err := a.runner()
	if err != nil {
		return err
	}
	report, err := a.runOnce(ctx, runner, quick)
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), report)
	if !report.OK {
		return &exitError{code: report.ExitCode()}
	}
	return nil
}

// runOnce builds a fresh context, runs the gate and writes its outputs.
// The run span joins the CI pipeline trace when TRACEPARENT is set.
func (a *app) runOnce(ctx context.Context, runner *prove.Runner, quick bool) (*prove.Report, error) {
	ctx = telemetry.ContextFromEnv(ctx, os.Getenv)
	pctx, err := a.buildContext(ctx)
	if err != nil {
		return nil, err
	}

	report, err := runner.Run(ctx, pctx, prove.RunOptions{Quick: quick})
	if err != nil {
		var cfgErr *prove.ConfigurationError
		if errors.As(err, &cfgErr) {
			a.logger.Error(ctx, "pre-flight failed", zap.String("check", cfgErr.CheckID), zap.Error(cfgErr.Err))
		}
		return nil, err
	}

	if err := report.WriteJSON(a.path(a.cfg.Paths.Report)); err != nil {
		a.logger.Error(ctx, "failed to write report", zap.Error(err))
	}
	if a.cfg.Metrics.Textfile != "" {
		if err := runner.Metrics().WriteTextfile(a.path(a.cfg.Metrics.Textfile)); err != nil {
			a.logger.Warn(ctx, "failed to write metrics", zap.Error(err))
		}
	}
	return report, nil
}

func printReport(w io.Writer, report *prove.Report) {
	if !jsonOutput {
		report.WriteConsole(w)
		return
	}
	if err := writeJSON(w, report); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
}
