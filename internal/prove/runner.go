package prove

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/prove/internal/checks"
	"github.com/fyrsmithlabs/prove/internal/logging"
	"github.com/fyrsmithlabs/prove/internal/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/prove/internal/prove"

// ReasonTimeout is the reason of a check that exceeded its budget.
const ReasonTimeout = "timeout"

// defaultTimeout applies when no timeout function is configured.
const defaultTimeout = 5 * time.Minute

// ErrMissingImplementation is returned by NewRunner when a registered
// definition has no Check.
var ErrMissingImplementation = errors.New("check has no implementation")

// RunOptions selects what a run executes.
type RunOptions struct {
	// Quick keeps only quick-mode eligible checks.
	Quick bool
}

// Runner schedules checks through the critical, parallel, mode-specific
// and optional phases.
type Runner struct {
	registry *checks.Registry
	impls    map[string]Check
	timeout  func(id string) time.Duration
	logger   *logging.Logger
	inst     *telemetry.Instruments
	metrics  *Metrics
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTelemetry routes spans and the OTel duration histogram through tel.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(r *Runner) {
		if tel != nil {
			r.inst = tel.Instruments(instrumentationName)
		}
	}
}

// WithTimeouts sets the per-check timeout lookup.
func WithTimeouts(fn func(id string) time.Duration) Option {
	return func(r *Runner) { r.timeout = fn }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner binds implementations to the registry. Every registered id needs
// an implementation and every implementation a registered id.
func NewRunner(registry *checks.Registry, impls map[string]Check, opts ...Option) (*Runner, error) {
	for _, def := range registry.List() {
		if impls[def.ID] == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingImplementation, def.ID)
		}
	}
	for id := range impls {
		if !registry.Has(id) {
			return nil, fmt.Errorf("%w: %s", checks.ErrUnknownCheck, id)
		}
	}

	r := &Runner{
		registry: registry,
		impls:    impls,
		timeout:  func(string) time.Duration { return defaultTimeout },
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics()
	}
	if r.inst == nil {
		r.inst = telemetry.GlobalInstruments(instrumentationName)
	}
	return r, nil
}

// Metrics returns the runner's Prometheus collectors.
func (r *Runner) Metrics() *Metrics {
	return r.metrics
}

// Plan returns the definitions a run would execute, grouped by phase in
// execution order.
func (r *Runner) Plan(pctx *Context, opts RunOptions) [][]checks.Definition {
	keep := func(d checks.Definition) bool {
		if opts.Quick && !d.QuickModeEligible {
			return false
		}
		switch d.Category {
		case checks.ModeSpecific:
			return d.Mode == string(pctx.Mode)
		case checks.Optional:
			return pctx.Toggles.Enabled(d.ToggleKey)
		}
		return true
	}

	plan := make([][]checks.Definition, 0, len(checks.Categories))
	for _, cat := range checks.Categories {
		var phase []checks.Definition
		for _, d := range r.registry.ByCategory(cat) {
			if keep(d) {
				phase = append(phase, d)
			}
		}
		plan = append(plan, phase)
	}
	return plan
}

// Run executes the selected checks and returns the report. The only error
// is a *ConfigurationError from pre-flight, returned before any check runs.
func (r *Runner) Run(ctx context.Context, pctx *Context, opts RunOptions) (*Report, error) {
	plan := r.Plan(pctx, opts)
	if err := r.preflight(plan, pctx); err != nil {
		return nil, err
	}

	start := r.now()
	runID := pctx.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = logging.WithRunID(ctx, runID)
	if pctx.TaskID != "" {
		ctx = logging.WithTaskID(ctx, pctx.TaskID)
	}

	ctx, span := r.inst.StartRun(ctx, telemetry.RunInfo{ID: runID, Mode: string(pctx.Mode), Quick: opts.Quick})
	defer span.End()

	report := &Report{
		RunID:      runID,
		Mode:       pctx.Mode,
		ModeSource: pctx.ModeSource,
		Quick:      opts.Quick,
		Results:    []CheckResult{},
		StartedAt:  pctx.StartedAt,
	}

phases:
	for i, defs := range plan {
		if len(defs) == 0 {
			continue
		}
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}

		switch checks.Categories[i] {
		case checks.Critical:
			for _, def := range defs {
				res := r.execute(ctx, pctx, def)
				report.Results = append(report.Results, res)
				if !res.OK {
					r.logger.Warn(ctx, "critical check failed, stopping run",
						zap.String("check", def.ID),
						zap.String("reason", res.Reason),
					)
					break phases
				}
			}
		case checks.Parallel:
			report.Results = append(report.Results, r.executeAll(ctx, pctx, defs)...)
		default:
			for _, def := range defs {
				report.Results = append(report.Results, r.execute(ctx, pctx, def))
			}
		}
	}

	report.OK = !report.Cancelled
	for _, res := range report.Results {
		report.OK = report.OK && res.OK
	}
	report.TotalMs = r.now().Sub(start).Milliseconds()

	if report.OK {
		r.metrics.RunOK.Set(1)
	} else {
		r.metrics.RunOK.Set(0)
	}
	r.inst.EndRun(span, report.OK, len(report.Results), len(report.Failed()))
	r.logger.Info(ctx, "run finished",
		zap.Bool("ok", report.OK),
		zap.Int("results", len(report.Results)),
		zap.Int64("total_ms", report.TotalMs),
	)
	return report, nil
}

func (r *Runner) preflight(plan [][]checks.Definition, pctx *Context) error {
	for _, defs := range plan {
		for _, def := range defs {
			pf, ok := r.impls[def.ID].(Preflighter)
			if !ok {
				continue
			}
			if err := pf.Preflight(pctx); err != nil {
				return &ConfigurationError{CheckID: def.ID, Err: err}
			}
		}
	}
	return nil
}

// executeAll launches every definition at once and waits for all of them.
// Results keep the order of defs.
func (r *Runner) executeAll(ctx context.Context, pctx *Context, defs []checks.Definition) []CheckResult {
	results := make([]CheckResult, len(defs))
	var wg sync.WaitGroup
	for i, def := range defs {
		wg.Add(1)
		go func(i int, def checks.Definition) {
			defer wg.Done()
			results[i] = r.execute(ctx, pctx, def)
		}(i, def)
	}
	wg.Wait()
	return results
}

// execute runs one check under its timeout. Panics and errors become
// failing results; a check still running at the deadline is abandoned.
func (r *Runner) execute(ctx context.Context, pctx *Context, def checks.Definition) CheckResult {
	ctx = logging.WithCheckID(ctx, def.ID)
	ctx, span := r.inst.StartCheck(ctx, def.ID, string(def.Category))
	defer span.End()

	timeout := r.timeout(def.ID)
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	done := make(chan CheckResult, 1)
	status := "fail"

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- CheckResult{ID: def.ID, Reason: fmt.Sprintf("panic: %v", p), Details: map[string]interface{}{"panic": true}}
			}
		}()
		out, err := r.impls[def.ID].Run(cctx, pctx)
		if err != nil {
			done <- CheckResult{ID: def.ID, Reason: err.Error()}
			return
		}
		done <- CheckResult{ID: def.ID, OK: out.OK, Reason: out.Reason, Details: out.Details}
	}()

	var res CheckResult
	select {
	case res = <-done:
	case <-cctx.Done():
		select {
		case res = <-done:
		default:
			res = CheckResult{ID: def.ID}
		}
	}
	if !res.OK && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		res.Reason = ReasonTimeout
	} else if !res.OK && res.Reason == "" && ctx.Err() != nil {
		res.Reason = ctx.Err().Error()
	}
	elapsed := r.now().Sub(start)
	res.DurationMs = elapsed.Milliseconds()

	switch {
	case res.OK:
		status = "pass"
	case res.Reason == ReasonTimeout:
		status = "timeout"
	case res.Details["panic"] == true:
		status = "panic"
	}
	r.record(ctx, def, res, status, elapsed)
	r.inst.EndCheck(ctx, span, telemetry.CheckOutcome{
		ID:      def.ID,
		Status:  status,
		OK:      res.OK,
		Reason:  res.Reason,
		Elapsed: elapsed,
	})
	return res
}

func (r *Runner) record(ctx context.Context, def checks.Definition, res CheckResult, status string, elapsed time.Duration) {
	r.metrics.CheckDuration.WithLabelValues(def.ID, string(def.Category)).Observe(elapsed.Seconds())
	r.metrics.CheckResults.WithLabelValues(def.ID, status).Inc()

	fields := []zap.Field{
		zap.Bool("ok", res.OK),
		zap.Int64("duration_ms", res.DurationMs),
	}
	if res.OK {
		r.logger.Info(ctx, "check finished", fields...)
		return
	}
	r.logger.Warn(ctx, "check failed", append(fields, zap.String("reason", res.Reason))...)
}
