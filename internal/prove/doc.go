// Package prove runs quality-gate checks against a change.
//
// A run takes a read-only Context, built once per invocation from the
// working tree, and schedules the registered checks through four phases:
//
//   - critical: serial, stopping at the first failure
//   - parallel: launched together and jointly awaited
//   - mode-specific: only checks for the resolved mode
//   - optional: only checks whose toggle is enabled
//
// Every check runs inside the same wrapper: a timeout budget, panic
// recovery, a span and a duration metric. Check failures never surface as
// errors from Runner.Run; only pre-flight configuration problems do.
//
// Usage:
//
//	reg, impls, err := builtin.DefaultRegistry(builtin.Options{Logger: logger})
//	runner, err := prove.NewRunner(reg, impls, prove.WithLogger(logger))
//	pctx, err := prove.NewBuilder(cfg, workDir).Build(ctx)
//	report, err := runner.Run(ctx, pctx, prove.RunOptions{})
package prove
