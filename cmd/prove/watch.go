package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fyrsmithlabs/prove/internal/watch"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var watchInterval time.Duration

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "minimum time between runs")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run quick checks when files change",
	Long: `Watch the working tree and re-run the quick-mode checks on every change,
at most once per --interval. Each run rebuilds the context from the tree.

Examples:
  prove watch --interval 5s`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, _ []string) error {
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
	w, err := watch.New(a.dir, watch.WithLogger(a.logger))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	gate := func(ctx context.Context, batch []watch.Event) {
		if len(batch) > 0 {
			a.logger.Info(ctx, "change detected, re-running",
				zap.Int("events", len(batch)),
				zap.String("first", batch[0].Path),
			)
		}
		report, err := a.runOnce(ctx, runner, true)
		if err != nil {
			cmd.PrintErrln("Error:", err)
			return
		}
		report.WriteConsole(cmd.OutOrStdout())
		if err := a.tel.ForceFlush(ctx); err != nil {
			a.logger.Debug(ctx, "telemetry flush failed", zap.Error(err))
		}
	}

	gate(ctx, nil)
	cmd.Println("Watching for changes (Ctrl+C to stop)...")
	err = watch.Loop(ctx, w.Events(), rate.NewLimiter(rate.Every(watchInterval), 1), gate)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
