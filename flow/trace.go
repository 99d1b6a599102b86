package flow

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the package-level span source, mirroring the teacher's
// telemetry/trace package-level Tracer convention, minus the OTLP exporter
// wiring: this engine has no network service surface to export from
// (spec.md §6.5), so WithTracing only ever feeds whatever trace.TracerProvider
// the host process has already installed (a no-op one by default).
var tracer = otel.Tracer("github.com/hirak99/video-summarizer/flow")

// WithTracing wraps every Process call on this node in a span, purely for
// observability: spans never affect staleness or persistence decisions.
func WithTracing() NodeOption {
	return func(n *GraphNode) { n.tracingEnabled = true }
}

// traceProcess runs fn inside a span named after the processor, recording
// any returned error, when tracing is enabled for the node.
func traceProcess(n *GraphNode, fn func() (any, error)) (any, error) {
	if !n.tracingEnabled {
		return fn()
	}
	_, span := tracer.Start(context.Background(), n.Name(), trace.WithAttributes(
		attribute.Int("node.id", n.id),
	))
	defer span.End()

	result, err := fn()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}
