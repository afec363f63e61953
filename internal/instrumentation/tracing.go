package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of kratos.
const TracerName = "github.com/giantswarm/kratos"

// Span attribute keys.
const (
	SpanAttrSession     = "kratos.session_id"
	SpanAttrAgent       = "kratos.agent"
	SpanAttrFunction    = "kratos.function"
	SpanAttrCluster     = "kratos.cluster"
	SpanAttrClusterType = "kratos.cluster_type"
	SpanAttrAttempts    = "kratos.attempts"
	SpanAttrStatus      = "kratos.status"
	SpanAttrOutcome     = "kratos.outcome"
	SpanAttrNamespace   = "k8s.namespace"
	SpanAttrOperation   = "k8s.operation"
)

// SpanAttributeBuilder collects span attributes.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{attrs: make([]attribute.KeyValue, 0, 8)}
}

func (b *SpanAttributeBuilder) WithSession(id string) *SpanAttributeBuilder {
	if id != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrSession, id))
	}
	return b
}

func (b *SpanAttributeBuilder) WithCall(agent, function string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs,
		attribute.String(SpanAttrAgent, agent),
		attribute.String(SpanAttrFunction, function),
	)
	return b
}

// WithCluster adds the cluster ID and its classified type.
func (b *SpanAttributeBuilder) WithCluster(cluster string) *SpanAttributeBuilder {
	if cluster == "" {
		return b
	}
	b.attrs = append(b.attrs,
		attribute.String(SpanAttrCluster, cluster),
		attribute.String(SpanAttrClusterType, ClassifyClusterName(cluster)),
	)
	return b
}

func (b *SpanAttributeBuilder) WithNamespace(namespace string) *SpanAttributeBuilder {
	if namespace != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrNamespace, namespace))
	}
	return b
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartSpan starts a span on the global tracer provider. The caller ends it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartTurnSpan starts the server span of one submitted utterance.
func StartTurnSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "orchestrator.submit",
		trace.WithAttributes(NewSpanAttributeBuilder().WithSession(sessionID).Build()...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartExecutionSpan starts the client span of one tool execution.
func StartExecutionSpan(ctx context.Context, agent, function, cluster string) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	attrs := NewSpanAttributeBuilder().WithCall(agent, function).WithCluster(cluster).Build()
	return tracer.Start(ctx, "executor."+function,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartK8sSpan starts a span for a Kubernetes API operation.
func StartK8sSpan(ctx context.Context, operation, cluster, namespace string) (context.Context, trace.Span) {
	attrs := NewSpanAttributeBuilder().WithCluster(cluster).WithNamespace(namespace).Build()
	attrs = append(attrs, attribute.String(SpanAttrOperation, operation))

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "k8s."+operation,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddSpanEvent adds an event to the span with optional attributes.
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// GetTraceID returns the trace ID of the span in ctx, or "".
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
