package observability

import (
	"context"
	"fmt"
	"os"

	"pellicule/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Services reported in trace resources.
const (
	ServiceClient = "pellicule"
	ServiceRelay  = "pellicule-relay"
)

// Version is stamped on every trace resource.
var Version = "1.0.0"

var tracer trace.Tracer = otel.Tracer(ServiceClient)

// Tracing owns the tracer provider of one process.
type Tracing struct {
	provider *sdktrace.TracerProvider
}

// StartTracing installs the tracer for service. With TRACING_ENABLED off the
// global no-op provider is kept and spans cost nothing.
func StartTracing(ctx context.Context, cfg *config.Config, service string) (*Tracing, error) {
	if !cfg.TracingEnabled {
		tracer = otel.Tracer(service)
		return &Tracing{}, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(service),
		semconv.ServiceVersion(Version),
		semconv.DeploymentEnvironment(cfg.Env),
	}
	if service == ServiceRelay {
		attrs = append(attrs, attribute.String("relay.port", cfg.RelayPort))
	} else {
		attrs = append(attrs,
			attribute.String("pellicule.api_url", cfg.APIURL),
			attribute.String("pellicule.storage_driver", cfg.StorageDriver),
		)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL, attrs...)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.TracingSamplerRatio))),
	)
	otel.SetTracerProvider(tp)
	// REST calls carry trace context to the backend; relay frames do not.
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tracer = tp.Tracer(service)

	return &Tracing{provider: tp}, nil
}

// newExporter builds the exporter named by TRACING_EXPORTER. The stdout exporter
// writes to stderr so the CLI's YAML output stays clean.
func newExporter(ctx context.Context, cfg *config.Config) (sdktrace.SpanExporter, error) {
	switch cfg.TracingExporter {
	case config.ExporterOTLP:
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		return exp, nil
	case config.ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("stdout exporter: %w", err)
		}
		return exp, nil
	}
	return nil, fmt.Errorf("unsupported TRACING_EXPORTER %q", cfg.TracingExporter)
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// Span wraps an OpenTelemetry span.
type Span struct {
	span trace.Span
}

// StartAPISpan opens a client span around one REST call. endpoint is the
// low-cardinality name ("photo.list"), path the concrete URL path.
func StartAPISpan(ctx context.Context, method, endpoint, path string) (*Span, context.Context) {
	ctx, span := tracer.Start(ctx, "api."+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
		),
	)
	return &Span{span: span}, ctx
}

// StartEmitSpan opens a producer span for one event sent on the realtime channel.
func StartEmitSpan(ctx context.Context, kind, eventID string) (*Span, context.Context) {
	return eventSpan(ctx, "realtime.emit", trace.SpanKindProducer, kind, eventID)
}

// StartRelaySpan opens a consumer span for one frame the relay forwards.
func StartRelaySpan(ctx context.Context, kind, eventID string) (*Span, context.Context) {
	return eventSpan(ctx, "relay.forward", trace.SpanKindConsumer, kind, eventID)
}

func eventSpan(ctx context.Context, name string, kind trace.SpanKind, eventKind, eventID string) (*Span, context.Context) {
	ctx, span := tracer.Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(
			attribute.String("event.kind", eventKind),
			attribute.String("event.id", eventID),
		),
	)
	return &Span{span: span}, ctx
}

// SetError records err and marks the span failed.
func (s *Span) SetError(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
}

// End ends the span.
func (s *Span) End() { s.span.End() }

// InjectHeaders writes the trace context of ctx into carrier.
func InjectHeaders(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}
