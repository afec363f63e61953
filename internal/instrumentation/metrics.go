package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod      = "method"
	attrPath        = "path"
	attrStatus      = "status"
	attrOperation   = "operation"
	attrNamespace   = "namespace"
	attrAgent       = "agent"
	attrFunction    = "function"
	attrOutcome     = "outcome"
	attrClusterType = "cluster_type"
	attrFrom        = "from"
	attrTo          = "to"
)

// Metrics provides methods for recording observability metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Conversation metrics
	turnsTotal       metric.Int64Counter
	turnDuration     metric.Float64Histogram
	resolutionsTotal metric.Int64Counter
	activeSessions   metric.Int64UpDownCounter

	// Execution metrics
	executionsTotal     metric.Int64Counter
	executionDuration   metric.Float64Histogram
	retriesTotal        metric.Int64Counter
	breakerChangesTotal metric.Int64Counter

	// Kubernetes operation metrics
	k8sOperationsTotal   metric.Int64Counter
	k8sOperationDuration metric.Float64Histogram

	// detailedLabels adds function and namespace labels
	detailedLabels bool
}

var durationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.turnsTotal, err = meter.Int64Counter(
		"kratos_turns_total",
		metric.WithDescription("Total number of submitted conversation turns"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kratos_turns_total counter: %w", err)
	}

	m.turnDuration, err = meter.Float64Histogram(
		"kratos_turn_duration_seconds",
		metric.WithDescription("Conversation turn duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kratos_turn_duration_seconds histogram: %w", err)
	}

	m.resolutionsTotal, err = meter.Int64Counter(
		"kratos_resolutions_total",
		metric.WithDescription("Intent resolver outcomes"),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kratos_resolutions_total counter: %w", err)
	}

	m.activeSessions, err = meter.Int64UpDownCounter(
		"kratos_active_sessions",
		metric.WithDescription("Number of open conversation sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kratos_active_sessions counter: %w", err)
	}

	m.executionsTotal, err = meter.Int64Counter(
		"kratos_executions_total",
		metric.WithDescription("Total number of tool executions"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kratos_executions_total counter: %w", err)
	}

	m.executionDuration, err = meter.Float64Histogram(
		"kratos_execution_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds, retries included"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kratos_execution_duration_seconds histogram: %w", err)
	}

	m.retriesTotal, err = meter.Int64Counter(
		"kratos_execution_retries_total",
		metric.WithDescription("Retry attempts of idempotent tool executions"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kratos_execution_retries_total counter: %w", err)
	}

	m.breakerChangesTotal, err = meter.Int64Counter(
		"kratos_breaker_state_changes_total",
		metric.WithDescription("Circuit breaker state transitions per agent"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kratos_breaker_state_changes_total counter: %w", err)
	}

	m.k8sOperationsTotal, err = meter.Int64Counter(
		"kratos_kubernetes_operations_total",
		metric.WithDescription("Total number of Kubernetes API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kratos_kubernetes_operations_total counter: %w", err)
	}

	m.k8sOperationDuration, err = meter.Float64Histogram(
		"kratos_kubernetes_operation_duration_seconds",
		metric.WithDescription("Kubernetes API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kratos_kubernetes_operation_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordTurn records one submitted turn. Outcome is the orchestrator's
// response kind (executed, clarification, no_match, meta, ended, error).
func (m *Metrics) RecordTurn(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil || m.turnsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrOutcome, outcome))
	m.turnsTotal.Add(ctx, 1, attrs)
	m.turnDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordResolution records a resolver outcome.
func (m *Metrics) RecordResolution(ctx context.Context, outcome string) {
	if m == nil || m.resolutionsTotal == nil {
		return
	}
	m.resolutionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOutcome, outcome)))
}

// RecordExecution records a finished tool execution.
//
// CARDINALITY NOTE: the function label is only attached with detailed labels.
// The agent set is small and bounded by the registry.
func (m *Metrics) RecordExecution(ctx context.Context, agent, function, status string, duration time.Duration) {
	if m == nil || m.executionsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrAgent, agent),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels {
		attrs = append(attrs, attribute.String(attrFunction, function))
	}

	m.executionsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.executionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRetry records one retry of an idempotent call.
func (m *Metrics) RecordRetry(ctx context.Context, agent string) {
	if m == nil || m.retriesTotal == nil {
		return
	}
	m.retriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrAgent, agent)))
}

// RecordBreakerStateChange records a circuit breaker transition.
func (m *Metrics) RecordBreakerStateChange(ctx context.Context, agent, from, to string) {
	if m == nil || m.breakerChangesTotal == nil {
		return
	}
	m.breakerChangesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrAgent, agent),
		attribute.String(attrFrom, from),
		attribute.String(attrTo, to),
	))
}

// RecordK8sOperation records a Kubernetes API call of the in-process agent.
//
// CARDINALITY NOTE: namespace is only attached with detailed labels. The
// cluster is reduced to its ClusterType.
func (m *Metrics) RecordK8sOperation(ctx context.Context, operation, cluster, namespace, status string, duration time.Duration) {
	if m == nil || m.k8sOperationsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrClusterType, ClassifyClusterName(cluster)),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels {
		attrs = append(attrs, attribute.String(attrNamespace, namespace))
	}

	m.k8sOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.k8sOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// IncrementActiveSessions increments the open sessions gauge.
func (m *Metrics) IncrementActiveSessions(ctx context.Context) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Add(ctx, 1)
}

// DecrementActiveSessions decrements the open sessions gauge.
func (m *Metrics) DecrementActiveSessions(ctx context.Context) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Add(ctx, -1)
}
