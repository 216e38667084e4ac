package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/prove/internal/evidence"
	"github.com/fyrsmithlabs/prove/internal/tdd"
	"github.com/fyrsmithlabs/prove/internal/vcs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errInvalidPhase = errors.New("invalid phase")

var (
	markTask   string
	markPassed int
	markFailed int
	markTotal  int
)

func init() {
	markCmd.Flags().StringVar(&markTask, "task", "", "task id the phase belongs to")
	markCmd.Flags().IntVar(&markPassed, "passed", 0, "passing tests; records evidence when any result flag is set")
	markCmd.Flags().IntVar(&markFailed, "failed", 0, "failing tests")
	markCmd.Flags().IntVar(&markTotal, "total", 0, "total tests (default passed+failed)")
	rootCmd.AddCommand(markCmd)
}

var markCmd = &cobra.Command{
	Use:   "mark <red|green|refactor>",
	Short: "Record the current TDD phase",
	Long: `Record the current TDD phase in the phase marker (.prove/phase.json).

The marker is read by the tdd-sequence check when the commit message has no
[TDD:phase] marker. With --passed/--failed the test results are also
appended to the evidence ledger (.prove/evidence.jsonl).

Examples:
  # Declare the red phase for task T-12
  prove mark red --task T-12

  # Record green with test results
  prove mark green --task T-12 --passed 14 --failed 0`,
	Args: cobra.ExactArgs(1),
	RunE: runMark,
}

func runMark(cmd *cobra.Command, args []string) error {
	phase := tdd.ParsePhase(args[0])
	if !phase.Known() {
		return fmt.Errorf("%w: %q (want red, green or refactor)", errInvalidPhase, args[0])
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	task := markTask
	if task == "" {
		task = a.cfg.TDD.TaskID
	}
	now := time.Now().UTC()

	marker := tdd.Marker{Phase: phase, Timestamp: now, TaskID: task}
	if err := tdd.WriteMarker(ctx, a.path(a.cfg.Paths.Marker), marker); err != nil {
		return err
	}
	cmd.Printf("Marked phase %s", phase)
	if task != "" {
		cmd.Printf(" for task %s", task)
	}
	cmd.Println()

	flags := cmd.Flags()
	if !flags.Changed("passed") && !flags.Changed("failed") && !flags.Changed("total") {
		return nil
	}

	entry := tdd.TestEvidence{
		TaskID:      task,
		Phase:       phase,
		Timestamp:   now,
		TestResults: tdd.TestResults{Passed: markPassed, Failed: markFailed, Total: markTotal},
	}
	if repo, err := vcs.Open(a.dir); err == nil {
		if snap, err := repo.Snapshot(ctx, a.cfg.Prove.BaseRef); err == nil {
			entry.CommitHash = snap.HeadHash
			entry.ChangedFiles = snap.ChangedFiles
		} else {
			a.logger.Debug(ctx, "evidence recorded without commit", zap.Error(err))
		}
	}

	ledger := evidence.NewLedger(a.path(a.cfg.Paths.Evidence))
	stored, err := ledger.Append(ctx, entry)
	if err != nil {
		return err
	}
	cmd.Printf("Recorded evidence %s (%d passed, %d failed) in %s\n",
		stored.ID, stored.TestResults.Passed, stored.TestResults.Failed, ledger.Path())
	return nil
}
