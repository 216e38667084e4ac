package main

import (
	"strings"

	"github.com/fyrsmithlabs/prove/internal/tdd"
	"github.com/spf13/cobra"
)

func init() {
	phaseCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the evaluation as JSON")
	rootCmd.AddCommand(phaseCmd)
}

var phaseCmd = &cobra.Command{
	Use:   "phase",
	Short: "Show the detected TDD phase and sequence validation",
	Long: `Show the TDD phase of the head commit, where it was detected (commit
marker, phase marker, evidence or inference) and whether the task history
follows red, green, refactor.`,
	Args: cobra.NoArgs,
	RunE: runPhase,
}

func runPhase(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	pctx, err := a.buildContext(ctx)
	if err != nil {
		return err
	}
	detector := tdd.NewDetector(
		tdd.WithTestPatterns(a.cfg.TDD.TestPatterns),
		tdd.WithSingleCommit(a.cfg.TDD.SingleCommit),
		tdd.WithDetectorLogger(a.logger),
	)
	ev := detector.Evaluate(ctx, tdd.Input{
		CommitMessage: pctx.VCS.HeadMessage,
		CommitHash:    pctx.VCS.HeadHash,
		ChangedFiles:  pctx.VCS.ChangedFiles,
		Evidence:      pctx.Evidence,
		Marker:        pctx.Marker,
		TaskID:        pctx.TaskID,
	})

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), ev)
	}

	cmd.Printf("Phase:    %s (%s)\n", ev.Detection.Phase, ev.Detection.Source)
	if pctx.TaskID != "" {
		cmd.Printf("Task:     %s\n", pctx.TaskID)
	}
	history := make([]string, len(ev.History))
	for i, p := range ev.History {
		history[i] = string(p)
	}
	cmd.Printf("History:  %s\n", strings.Join(history, " -> "))
	if ev.Degraded {
		cmd.Println("Mode:     single-commit (marker only)")
	}
	if ev.Validation.OK {
		cmd.Println("Sequence: ok")
		return nil
	}
	cmd.Printf("Sequence: %s\n", ev.Validation.Reason)
	return &exitError{code: 1}
}
