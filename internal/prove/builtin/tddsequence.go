package builtin

import (
	"context"

	"github.com/fyrsmithlabs/prove/internal/logging"
	"github.com/fyrsmithlabs/prove/internal/prove"
	"github.com/fyrsmithlabs/prove/internal/tdd"
)

// tddSequence detects the phase of the head commit and validates the task
// history it completes.
type tddSequence struct {
	logger *logging.Logger
}

func (c tddSequence) Run(ctx context.Context, pctx *prove.Context) (prove.Outcome, error) {
	detector := tdd.NewDetector(
		tdd.WithTestPatterns(pctx.Settings.TestPatterns),
		tdd.WithSingleCommit(pctx.Settings.SingleCommit),
		tdd.WithDetectorLogger(c.logger),
	)
	ev := detector.Evaluate(ctx, tdd.Input{
		CommitMessage: pctx.VCS.HeadMessage,
		CommitHash:    pctx.VCS.HeadHash,
		ChangedFiles:  pctx.VCS.ChangedFiles,
		Evidence:      pctx.Evidence,
		Marker:        pctx.Marker,
		TaskID:        pctx.TaskID,
	})

	history := make([]string, len(ev.History))
	for i, p := range ev.History {
		history[i] = string(p)
	}
	details := map[string]interface{}{
		"phase":   string(ev.Detection.Phase),
		"source":  string(ev.Detection.Source),
		"history": history,
	}
	if pctx.TaskID != "" {
		details["taskId"] = pctx.TaskID
	}
	if ev.Degraded {
		details["degraded"] = "single-commit"
	}

	if !ev.Validation.OK {
		if ev.Validation.Missing.Known() {
			details["missing"] = string(ev.Validation.Missing)
		}
		return prove.Fail(ev.Validation.Reason, details), nil
	}
	return prove.Pass(details), nil
}
