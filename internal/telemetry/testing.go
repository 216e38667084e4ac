package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry records run spans and check durations in memory.
type TestTelemetry struct {
	*Telemetry

	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

// NewTestTelemetry creates enabled telemetry backed by in-memory readers.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()

	return &TestTelemetry{
		Telemetry: &Telemetry{
			config:         cfg,
			tracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
			meterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		},
		spans:  spans,
		reader: reader,
	}
}

// Spans returns all ended spans.
func (t *TestTelemetry) Spans() []sdktrace.ReadOnlySpan {
	return t.spans.Ended()
}

// RunSpan returns the most recent run span, or nil.
func (t *TestTelemetry) RunSpan() sdktrace.ReadOnlySpan {
	var run sdktrace.ReadOnlySpan
	for _, s := range t.Spans() {
		if s.Name() == SpanRun {
			run = s
		}
	}
	return run
}

// CheckSpans returns the check spans of the most recent run.
func (t *TestTelemetry) CheckSpans() []sdktrace.ReadOnlySpan {
	run := t.RunSpan()
	if run == nil {
		return nil
	}
	var out []sdktrace.ReadOnlySpan
	for _, s := range t.Spans() {
		if s.Name() == SpanCheck && s.Parent().SpanID() == run.SpanContext().SpanID() {
			out = append(out, s)
		}
	}
	return out
}

// CheckSpan returns the span of check id in the most recent run, or nil.
func (t *TestTelemetry) CheckSpan(id string) sdktrace.ReadOnlySpan {
	for _, s := range t.CheckSpans() {
		if v, ok := spanAttr(s, AttrCheckID); ok && v.AsString() == id {
			return s
		}
	}
	return nil
}

// AssertRun checks the run span verdict. A failed run carries an error
// status.
func (t *TestTelemetry) AssertRun(tb testing.TB, ok bool) {
	tb.Helper()
	run := t.RunSpan()
	if run == nil {
		tb.Fatalf("no %s span recorded", SpanRun)
	}
	if v, found := spanAttr(run, AttrOK); !found || v.AsBool() != ok {
		tb.Errorf("%s %s: got %v, want %v", SpanRun, AttrOK, v.Emit(), ok)
	}
	if got := run.Status().Code == codes.Error; got == ok {
		tb.Errorf("%s error status: got %v, want %v", SpanRun, got, !ok)
	}
}

// AssertCheck checks that check id ran under the run span with the given
// status. Anything but "pass" carries an error status.
func (t *TestTelemetry) AssertCheck(tb testing.TB, id, status string) {
	tb.Helper()
	span := t.CheckSpan(id)
	if span == nil {
		tb.Fatalf("no %s span for %q under %s", SpanCheck, id, SpanRun)
	}
	if v, _ := spanAttr(span, AttrCheckStatus); v.AsString() != status {
		tb.Errorf("%s %q status: got %q, want %q", SpanCheck, id, v.AsString(), status)
	}
	if got, want := span.Status().Code == codes.Error, status != "pass"; got != want {
		tb.Errorf("%s %q error status: got %v, want %v", SpanCheck, id, got, want)
	}
}

// CheckDurations collects the duration histogram and returns the number of
// recordings per check id.
func (t *TestTelemetry) CheckDurations(ctx context.Context) (map[string]uint64, error) {
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	counts := map[string]uint64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != MetricCheckDuration {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			if !ok {
				continue
			}
			for _, dp := range hist.DataPoints {
				id, _ := dp.Attributes.Value(attribute.Key(AttrCheckID))
				counts[id.AsString()] += dp.Count
			}
		}
	}
	return counts, nil
}

func spanAttr(s sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range s.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}
