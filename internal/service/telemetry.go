package service

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/auditdesk/auditdesk/internal/service"

// Trace exporters accepted by NewTracerProvider.
const (
	TracesNone   = "none"
	TracesStdout = "stdout"
)

// ShutdownFunc flushes and stops a tracer provider.
type ShutdownFunc func(context.Context) error

// NewTracerProvider builds the tracer provider for the given exporter mode.
// "stdout" writes finished spans as JSON to w; "none" (or empty) returns a
// no-op provider.
func NewTracerProvider(mode, version string, w io.Writer) (trace.TracerProvider, ShutdownFunc, error) {
	switch mode {
	case "", TracesNone:
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	case TracesStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
		res := resource.NewSchemaless(
			attribute.String("service.name", "auditdesk"),
			attribute.String("service.version", version),
		)
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
		return tp, tp.Shutdown, nil
	}
	return nil, nil, fmt.Errorf("unknown trace exporter %q", mode)
}

// Tracer returns the service tracer from tp.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	return tp.Tracer(tracerName)
}
