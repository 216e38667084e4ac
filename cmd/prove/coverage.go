package main

import (
	"fmt"

	"github.com/fyrsmithlabs/prove/internal/coverage"
	"github.com/fyrsmithlabs/prove/internal/tdd"
	"github.com/spf13/cobra"
)

func init() {
	coverageCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the coverage as JSON")
	rootCmd.AddCommand(coverageCmd)
}

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Show global and diff coverage",
	Long: `Show global coverage of the Istanbul payload (coverage.payload_path) and
the coverage of the lines changed since the base ref.`,
	Args: cobra.NoArgs,
	RunE: runCoverage,
}

type coverageOutput struct {
	Global coverage.Summary `json:"global"`
	Diff   coverage.Result  `json:"diff"`
}

func runCoverage(cmd *cobra.Command, _ []string) error {
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
	if pctx.Coverage == nil {
		return fmt.Errorf("no coverage payload: %w", pctx.CoverageErr)
	}

	tests := tdd.NewTestMatcher(a.cfg.TDD.TestPatterns)
	analyzer := coverage.NewAnalyzer(a.dir,
		coverage.WithLogger(a.logger),
		coverage.WithInclude(coverage.ExtensionFilter(a.cfg.Coverage.SourceExtensions)),
		coverage.WithExclude(tests.Match),
	)
	out := coverageOutput{
		Global: coverage.Summarize(pctx.Coverage),
		Diff:   analyzer.DiffCoverage(ctx, pctx.ChangedLines(), pctx.Coverage),
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), out)
	}

	g := out.Global
	cmd.Printf("Statements: %6.2f%% (%d/%d)\n", g.Statements.Pct, g.Statements.Covered, g.Statements.Total)
	cmd.Printf("Branches:   %6.2f%% (%d/%d)\n", g.Branches.Pct, g.Branches.Covered, g.Branches.Total)
	cmd.Printf("Functions:  %6.2f%% (%d/%d)\n", g.Functions.Pct, g.Functions.Covered, g.Functions.Total)
	cmd.Printf("Lines:      %6.2f%% (%d/%d)\n", g.Lines.Pct, g.Lines.Covered, g.Lines.Total)
	d := out.Diff
	cmd.Printf("Diff:       %6.2f%% (%d/%d changed lines, threshold %.2f%%)\n",
		d.Percentage, d.CoveredLines, d.TotalLines, a.cfg.Coverage.DiffThreshold)
	for _, l := range d.UncoveredLines {
		cmd.Printf("  uncovered %s:%d\n", l.File, l.Line)
	}
	return nil
}
