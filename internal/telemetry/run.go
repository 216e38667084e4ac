package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Span names of a gate run.
const (
	SpanRun   = "prove.run"
	SpanCheck = "prove.check"
)

// MetricCheckDuration is the OTel histogram of check durations in ms.
const MetricCheckDuration = "prove.check.duration"

// Span and metric attribute keys.
const (
	AttrRunID         = "run.id"
	AttrMode          = "prove.mode"
	AttrQuick         = "prove.quick"
	AttrOK            = "prove.ok"
	AttrResults       = "prove.results"
	AttrFailed        = "prove.failed"
	AttrCheckID       = "check.id"
	AttrCheckCategory = "check.category"
	AttrCheckOK       = "check.ok"
	AttrCheckStatus   = "check.status"
)

// RunInfo labels the root span of a run.
type RunInfo struct {
	ID    string
	Mode  string
	Quick bool
}

// CheckOutcome is what a finished check reports to telemetry.
type CheckOutcome struct {
	ID      string
	Status  string
	OK      bool
	Reason  string
	Elapsed time.Duration
}

// Instruments records the spans and duration histogram of gate runs.
type Instruments struct {
	tracer   trace.Tracer
	duration metric.Float64Histogram
}

// Instruments returns run instruments for the given scope. A nil or
// disabled Telemetry yields instruments on the global providers.
func (t *Telemetry) Instruments(scope string) *Instruments {
	return newInstruments(t.Tracer(scope), t.Meter(scope))
}

// GlobalInstruments returns run instruments on the global providers.
func GlobalInstruments(scope string) *Instruments {
	return newInstruments(otel.Tracer(scope), otel.Meter(scope))
}

func newInstruments(tracer trace.Tracer, meter metric.Meter) *Instruments {
	h, err := meter.Float64Histogram(MetricCheckDuration,
		metric.WithDescription("Duration of check execution"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		h = nil
	}
	return &Instruments{tracer: tracer, duration: h}
}

// StartRun opens the root span of a run.
func (i *Instruments) StartRun(ctx context.Context, info RunInfo) (context.Context, trace.Span) {
	return i.tracer.Start(ctx, SpanRun, trace.WithAttributes(
		attribute.String(AttrRunID, info.ID),
		attribute.String(AttrMode, info.Mode),
		attribute.Bool(AttrQuick, info.Quick),
	))
}

// EndRun labels the run span with its verdict. It does not end the span.
func (i *Instruments) EndRun(span trace.Span, ok bool, results, failed int) {
	span.SetAttributes(
		attribute.Bool(AttrOK, ok),
		attribute.Int(AttrResults, results),
		attribute.Int(AttrFailed, failed),
	)
	if !ok {
		span.SetStatus(codes.Error, fmt.Sprintf("%d checks failed", failed))
	}
}

// StartCheck opens a check span under the run span in ctx.
func (i *Instruments) StartCheck(ctx context.Context, id, category string) (context.Context, trace.Span) {
	return i.tracer.Start(ctx, SpanCheck, trace.WithAttributes(
		attribute.String(AttrCheckID, id),
		attribute.String(AttrCheckCategory, category),
	))
}

// EndCheck records the check duration and labels its span. It does not end
// the span.
func (i *Instruments) EndCheck(ctx context.Context, span trace.Span, out CheckOutcome) {
	if i.duration != nil {
		i.duration.Record(ctx, float64(out.Elapsed.Microseconds())/1000, metric.WithAttributes(
			attribute.String(AttrCheckID, out.ID),
			attribute.String(AttrCheckStatus, out.Status),
		))
	}
	span.SetAttributes(
		attribute.Bool(AttrCheckOK, out.OK),
		attribute.String(AttrCheckStatus, out.Status),
	)
	if !out.OK {
		span.SetStatus(codes.Error, out.Reason)
	}
}

// ContextFromEnv continues a trace handed down by the CI job through the
// TRACEPARENT and TRACESTATE variables, so a run nests under the pipeline.
func ContextFromEnv(ctx context.Context, getenv func(string) string) context.Context {
	carrier := propagation.MapCarrier{}
	if v := getenv("TRACEPARENT"); v != "" {
		carrier.Set("traceparent", v)
	}
	if v := getenv("TRACESTATE"); v != "" {
		carrier.Set("tracestate", v)
	}
	if len(carrier) == 0 {
		return ctx
	}
	return propagation.TraceContext{}.Extract(ctx, carrier)
}
