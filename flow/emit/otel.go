package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by creating one OpenTelemetry span per
// event.
//
// Each span carries:
//   - Name: the event's State (SCHEDULING, ANALYZING, ...)
//   - Attributes: taskgraph.flow_id, taskgraph.state, taskgraph.atom_id
//     plus every Meta field
//   - Error status when Meta["error"] is present
//
// Events represent points in time, so spans are ended immediately.
//
// Usage:
//
//	tracer := otel.Tracer("taskgraph-go")
//	emitter := emit.NewOTelEmitter(tracer)
//	runner := flow.NewGraphRunner(analyzer, storage, tasks, retries,
//	    flow.Options{Emitter: emitter})
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an OTelEmitter over the given tracer, typically
// obtained from otel.Tracer("service-name").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit creates and ends a span for the event.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.State)
	defer span.End()

	o.addStandardAttributes(span, event)
	o.addMetadataAttributes(span, event.Meta)

	if errMsg, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(fmt.Errorf("%s", errMsg))
	}
}

// Flush forces export of all pending spans. Call before shutdown so the
// batch span processor delivers buffered spans.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	tp := otel.GetTracerProvider()

	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := tp.(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

// addStandardAttributes adds core event fields as span attributes.
func (o *OTelEmitter) addStandardAttributes(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("taskgraph.flow_id", event.FlowID),
		attribute.String("taskgraph.state", event.State),
		attribute.String("taskgraph.atom_id", event.AtomID),
	)
}

// addMetadataAttributes converts event metadata to span attributes.
// Unsupported types fall back to their fmt.Sprintf representation.
func (o *OTelEmitter) addMetadataAttributes(span trace.Span, meta map[string]any) {
	for key, value := range meta {
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(key, v))
		case int:
			span.SetAttributes(attribute.Int(key, v))
		case int64:
			span.SetAttributes(attribute.Int64(key, v))
		case float64:
			span.SetAttributes(attribute.Float64(key, v))
		case bool:
			span.SetAttributes(attribute.Bool(key, v))
		default:
			span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
		}
	}
}
