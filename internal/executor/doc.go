// Package executor runs resolved calls against the backend of their agent.
//
// The Adapter applies the capability timeout, retries transient failures of
// idempotent capabilities with exponential backoff, guards every agent with
// a circuit breaker and appends each execution to the history store before
// Execute returns. Backends are either in-process (the Kubernetes agent) or
// remote MCP servers reached through MCPBackend.
package executor
