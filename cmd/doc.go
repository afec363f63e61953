// Package cmd provides the command-line interface for kratos.
//
// Command Structure:
//
//	kratos [flags]                 # Starts the server (default)
//	kratos serve [flags]           # Serves sessions over MCP and the JSON API
//	kratos chat [flags]            # Interactive session in the terminal
//	kratos capabilities            # Prints the capability catalogue
//	kratos version                 # Shows version information
//	kratos self-update             # Updates to latest release
//
// The serve command supports two transports:
//   - stdio: Standard input/output (default), for MCP clients that spawn kratos
//   - streamable-http: MCP over HTTP at --http-endpoint, plus /v1 and health endpoints
//
// Flags hold defaults; KRATOS_* environment variables override flags that were
// not set explicitly:
//
//	KRATOS_CONFIG, KRATOS_HISTORY_DB, KRATOS_MAX_ROUNDS, KRATOS_DEFAULT_TIMEOUT,
//	KRATOS_CONFIDENCE_FLOOR, KRATOS_NON_DESTRUCTIVE, KRATOS_DRY_RUN,
//	KRATOS_ALLOWED_OPERATIONS, KRATOS_QPS_LIMIT, KRATOS_BURST_LIMIT,
//	KRATOS_RATE_LIMIT, KRATOS_RATE_BURST
//
// OpenTelemetry is configured by INSTRUMENTATION_ENABLED, METRICS_EXPORTER,
// TRACING_EXPORTER and the standard OTEL_* variables.
package cmd
