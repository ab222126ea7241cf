package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	traceparentKey = "traceparent"
	tracestateKey  = "tracestate"
)

// Snapshot is the W3C trace context of a request, flattened so it can be
// stored in a database row and resumed later by another process.
type Snapshot struct {
	Traceparent string
	Tracestate  string
}

// SnapshotFromContext captures the span context of ctx through the global
// propagator. It is empty when ctx carries no span.
func SnapshotFromContext(ctx context.Context) Snapshot {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return Snapshot{
		Traceparent: carrier[traceparentKey],
		Tracestate:  carrier[tracestateKey],
	}
}

func (s Snapshot) IsZero() bool {
	return s.Traceparent == "" && s.Tracestate == ""
}

// Resume returns ctx with the stored span context as remote parent.
func (s Snapshot) Resume(ctx context.Context) context.Context {
	if s.IsZero() {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier{
		traceparentKey: s.Traceparent,
		tracestateKey:  s.Tracestate,
	})
}
