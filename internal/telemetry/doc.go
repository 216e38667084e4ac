// Package telemetry wires OpenTelemetry tracing and metrics for prove runs.
//
// A run opens one "prove.check" span per check under a root "prove.run"
// span and records check durations in the "prove.check.duration"
// histogram. The exported resource names the gated repository and the CI
// provider. When telemetry is disabled the global no-op providers are used
// and nothing leaves the process.
//
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//	inst := tel.Instruments("github.com/fyrsmithlabs/prove/internal/prove")
//
// Exporter failures degrade the instance instead of failing the run.
// Use NewTestTelemetry in tests to record spans in memory.
package telemetry
