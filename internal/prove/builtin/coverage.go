package builtin

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/prove/internal/coverage"
	"github.com/fyrsmithlabs/prove/internal/logging"
	"github.com/fyrsmithlabs/prove/internal/prove"
	"github.com/fyrsmithlabs/prove/internal/tdd"
)

// maxReportedLines bounds the uncovered lines listed in details.
const maxReportedLines = 50

func requirePayload(pctx *prove.Context) error {
	if pctx.Coverage != nil {
		return nil
	}
	if pctx.CoverageErr != nil {
		return pctx.CoverageErr
	}
	return errors.New("coverage payload not loaded")
}

// diffCoverage requires the changed source lines to meet the diff threshold.
type diffCoverage struct {
	logger *logging.Logger
}

func (c diffCoverage) Preflight(pctx *prove.Context) error {
	return requirePayload(pctx)
}

func (c diffCoverage) Run(ctx context.Context, pctx *prove.Context) (prove.Outcome, error) {
	tests := tdd.NewTestMatcher(pctx.Settings.TestPatterns)
	analyzer := coverage.NewAnalyzer(pctx.WorkingDir,
		coverage.WithLogger(c.logger),
		coverage.WithInclude(coverage.ExtensionFilter(pctx.Settings.SourceExtensions)),
		coverage.WithExclude(tests.Match),
	)
	res := analyzer.DiffCoverage(ctx, pctx.ChangedLines(), pctx.Coverage)

	uncovered := res.UncoveredLines
	if len(uncovered) > maxReportedLines {
		uncovered = uncovered[:maxReportedLines]
	}
	details := map[string]interface{}{
		"totalLines":     res.TotalLines,
		"coveredLines":   res.CoveredLines,
		"percentage":     res.Percentage,
		"threshold":      pctx.Settings.DiffThreshold,
		"uncoveredLines": uncovered,
	}
	if len(res.UnresolvedFiles) > 0 {
		details["unresolvedFiles"] = res.UnresolvedFiles
	}

	if res.Percentage < pctx.Settings.DiffThreshold {
		return prove.Fail(fmt.Sprintf("diff coverage %.2f%% below threshold %.2f%% (%d of %d changed lines uncovered)",
			res.Percentage, pctx.Settings.DiffThreshold, res.TotalLines-res.CoveredLines, res.TotalLines), details), nil
	}
	return prove.Pass(details), nil
}

// globalCoverage requires overall statement coverage to meet the global
// threshold.
type globalCoverage struct{}

func (globalCoverage) Preflight(pctx *prove.Context) error {
	return requirePayload(pctx)
}

func (globalCoverage) Run(_ context.Context, pctx *prove.Context) (prove.Outcome, error) {
	summary := coverage.Summarize(pctx.Coverage)
	details := map[string]interface{}{
		"statements": summary.Statements.Pct,
		"branches":   summary.Branches.Pct,
		"functions":  summary.Functions.Pct,
		"lines":      summary.Lines.Pct,
		"threshold":  pctx.Settings.GlobalThreshold,
	}
	if summary.Statements.Pct < pctx.Settings.GlobalThreshold {
		return prove.Fail(fmt.Sprintf("statement coverage %.2f%% below threshold %.2f%%",
			summary.Statements.Pct, pctx.Settings.GlobalThreshold), details), nil
	}
	return prove.Pass(details), nil
}
