// Package instrumentation wires OpenTelemetry metrics and tracing for kratos.
//
// A Provider owns the meter and tracer providers and the exporters chosen by
// configuration. Metrics exposes typed recorders for the orchestration core:
//
//   - kratos_turns_total, kratos_turn_duration_seconds: submitted turns by outcome
//   - kratos_resolutions_total: resolver outcomes (resolved, clarification, no_match)
//   - kratos_executions_total, kratos_execution_duration_seconds: tool executions
//     by agent and status
//   - kratos_execution_retries_total: retry attempts of idempotent calls
//   - kratos_breaker_state_changes_total: circuit breaker transitions per agent
//   - kratos_active_sessions: open conversation sessions
//   - kratos_kubernetes_operations_total, kratos_kubernetes_operation_duration_seconds:
//     calls issued by the in-process Kubernetes agent
//   - http_requests_total, http_request_duration_seconds: the HTTP surface
//
// Function and namespace labels are only attached when detailed labels are
// enabled. Cluster names are reduced to a cluster type with
// ClassifyClusterName.
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED: enable metrics and tracing (default: false)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG: sampling rate (default: 0.1)
//   - OTEL_SERVICE_NAME (default: kratos)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordExecution(ctx, "k8s-agent", "get_pods", "ok", time.Second)
package instrumentation
