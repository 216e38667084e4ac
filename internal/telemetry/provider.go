package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc/credentials"
)

// metricExportInterval is rarely reached by a gate run; Shutdown exports
// whatever is left.
const metricExportInterval = 15 * time.Second

// Resource attribute keys describing the gated repository.
const (
	AttrRepository = "prove.repository"
	AttrWorkDir    = "prove.workdir"
	AttrCI         = "prove.ci"
)

// newResource describes the prove process and what it gates. It is built
// standalone: resource.Default() carries another semconv schema URL and
// merging the two fails.
func newResource(cfg *Config) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Run.Repository != "" {
		attrs = append(attrs, attribute.String(AttrRepository, cfg.Run.Repository))
	}
	if cfg.Run.WorkDir != "" {
		attrs = append(attrs, attribute.String(AttrWorkDir, cfg.Run.WorkDir))
	}
	if cfg.Run.CI != "" {
		attrs = append(attrs, attribute.String(AttrCI, cfg.Run.CI))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

// exporters pairs the span and metric exporters of one OTLP protocol.
type exporters struct {
	spans   sdktrace.SpanExporter
	metrics sdkmetric.Exporter
}

// remoteTLS applies to every collector that is not on loopback.
func remoteTLS() *tls.Config {
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

// cumulative keeps OTLP check durations consistent with the Prometheus
// textfile regardless of OTEL_EXPORTER_OTLP_METRICS_TEMPORALITY_PREFERENCE.
func cumulative(sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func newExporters(ctx context.Context, cfg *Config) (exporters, error) {
	if cfg.Protocol == ProtocolHTTP {
		return newHTTPExporters(ctx, cfg)
	}
	return newGRPCExporters(ctx, cfg)
}

func newGRPCExporters(ctx context.Context, cfg *Config) (exporters, error) {
	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(stripScheme(cfg.Endpoint))}
	metricOpts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(stripScheme(cfg.Endpoint)),
		otlpmetricgrpc.WithTemporalitySelector(cumulative),
	}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	} else {
		creds := credentials.NewTLS(remoteTLS())
		traceOpts = append(traceOpts, otlptracegrpc.WithTLSCredentials(creds))
		metricOpts = append(metricOpts, otlpmetricgrpc.WithTLSCredentials(creds))
	}

	spans, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return exporters{}, fmt.Errorf("creating grpc span exporter: %w", err)
	}
	metrics, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = spans.Shutdown(ctx)
		return exporters{}, fmt.Errorf("creating grpc metric exporter: %w", err)
	}
	return exporters{spans: spans, metrics: metrics}, nil
}

func newHTTPExporters(ctx context.Context, cfg *Config) (exporters, error) {
	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(stripScheme(cfg.Endpoint))}
	metricOpts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(stripScheme(cfg.Endpoint)),
		otlpmetrichttp.WithTemporalitySelector(cumulative),
	}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	} else {
		traceOpts = append(traceOpts, otlptracehttp.WithTLSClientConfig(remoteTLS()))
		metricOpts = append(metricOpts, otlpmetrichttp.WithTLSClientConfig(remoteTLS()))
	}

	spans, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return exporters{}, fmt.Errorf("creating http span exporter: %w", err)
	}
	metrics, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		_ = spans.Shutdown(ctx)
		return exporters{}, fmt.Errorf("creating http metric exporter: %w", err)
	}
	return exporters{spans: spans, metrics: metrics}, nil
}

// newProviders builds the SDK providers around exp. Every run is sampled:
// a process records one run.
func newProviders(res *resource.Resource, exp exporters) (*sdktrace.TracerProvider, *sdkmetric.MeterProvider) {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp.spans),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp.metrics,
			sdkmetric.WithInterval(metricExportInterval),
		)),
	)
	return tp, mp
}
