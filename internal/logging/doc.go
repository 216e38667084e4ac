// Package logging provides structured logging for prove.
//
// # Overview
//
// The package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Stderr output, so stdout stays free for the console report
//   - Optional OpenTelemetry log bridge
//   - Context field injection (trace_id, run.id, check.id, task.id)
//   - Secret redaction in the encoder
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	cfg.Format = "console"
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, report.RunID)
//	logger.Info(ctx, "check finished", zap.String("check", id))
//
// Tests use NewTestLogger, which records entries through zaptest/observer.
package logging
