package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Snapshot is the W3C trace context of a request, persisted next to an outbox row so the
// asynchronous publish joins the trace that wrote it.
type Snapshot struct {
	Traceparent string
	Tracestate  string
}

func Capture(ctx context.Context) Snapshot {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return Snapshot{Traceparent: carrier["traceparent"], Tracestate: carrier["tracestate"]}
}

// Restore returns ctx unchanged for an empty snapshot.
func (s Snapshot) Restore(ctx context.Context) context.Context {
	if s.Traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": s.Traceparent}
	if s.Tracestate != "" {
		carrier["tracestate"] = s.Tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// TraceID is the active trace id, or "" when the context is not sampled into a trace.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
