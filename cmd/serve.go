package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/kratos/internal/instrumentation"
	"github.com/giantswarm/kratos/internal/logging"
	"github.com/giantswarm/kratos/internal/server"
	"github.com/giantswarm/kratos/internal/tools/registry"
	"github.com/giantswarm/kratos/internal/tools/session"
)

// Transport type constants for the MCP server.
const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

// envValueTrue is the string value used to enable boolean environment variables.
const envValueTrue = "true"

// parseDurationEnv parses a duration from an environment variable value.
// Returns the parsed duration and true if successful, or zero and false if parsing fails.
// Logs a warning if the value is present but invalid.
func parseDurationEnv(value, envName string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid duration for %s=%q: %v", envName, value, err)
		return 0, false
	}
	return d, true
}

// parseIntEnv parses an integer from an environment variable value.
// Returns the parsed int and true if successful, or zero and false if parsing fails.
// Logs a warning if the value is present but invalid.
func parseIntEnv(value, envName string) (int, bool) {
	if value == "" {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid integer for %s=%q: %v", envName, value, err)
		return 0, false
	}
	return n, true
}

// parseFloat32Env parses a float32 from an environment variable value.
// Returns the parsed float and true if successful, or zero and false if parsing fails.
// Logs a warning if the value is present but invalid.
func parseFloat32Env(value, envName string) (float32, bool) {
	if value == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(value, 32)
	if err != nil {
		log.Printf("Warning: invalid float for %s=%q: %v", envName, value, err)
		return 0, false
	}
	return float32(f), true
}

// addRuntimeFlags registers the flags shared by serve and chat.
func addRuntimeFlags(cmd *cobra.Command, rc *RuntimeConfig) {
	cmd.Flags().StringVar(&rc.ConfigPath, "config", "", "Registry file with policy, clusters and agents (default: built-in k8s-agent and kubeconfig contexts)")
	cmd.Flags().StringVar(&rc.Kubeconfig, "kubeconfig", "", "Path to the kubeconfig file (default: $KUBECONFIG or ~/.kube/config)")
	cmd.Flags().StringVar(&rc.HistoryDB, "history-db", "", "SQLite database for transcripts (default: in memory)")
	cmd.Flags().BoolVar(&rc.NonDestructiveMode, "non-destructive", true, "Refuse mutating functions (restart, scale, apply)")
	cmd.Flags().BoolVar(&rc.DryRun, "dry-run", false, "Send mutating requests with dryRun=All")
	cmd.Flags().StringSliceVar(&rc.AllowedOperations, "allowed-operations", nil, "Mutating operations allowed in non-destructive mode (restart, scale, apply)")
	cmd.Flags().Float32Var(&rc.QPSLimit, "qps-limit", 20.0, "QPS limit for Kubernetes API requests")
	cmd.Flags().IntVar(&rc.BurstLimit, "burst-limit", 30, "Burst limit for Kubernetes API requests")
	cmd.Flags().IntVar(&rc.MaxRounds, "max-rounds", 0, "Execution rounds per session (default: registry policy, 10)")
	cmd.Flags().StringVar(&rc.DefaultTimeout, "default-timeout", "", "Timeout of functions without their own (default: registry policy, 300s)")
	cmd.Flags().Float64Var(&rc.ConfidenceFloor, "confidence-floor", 0, "Minimum resolution confidence (default: registry policy, 0.35)")
}

// newServeCmd creates the Cobra command for starting the MCP server.
func newServeCmd() *cobra.Command {
	config := ServeConfig{
		Metrics: MetricsServeConfig{Enabled: true},
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the kratos server",
		Long: `Start the kratos Model Context Protocol (MCP) server.

The server exposes conversation sessions as MCP tools (kratos_new_session,
kratos_submit, kratos_end_session, kratos_list_sessions, kratos_transcript)
and the catalogue as kratos_capabilities and kratos_status.
With the streamable-http transport the same sessions are also served by a
JSON API under /v1 alongside /healthz and /readyz.

Supported transports:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport with the JSON API`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadServeEnvVars(cmd, &config)
			config.Runtime.Version = rootCmd.Version
			return runServe(config)
		},
	}

	addRuntimeFlags(cmd, &config.Runtime)
	cmd.Flags().BoolVar(&config.DebugMode, "debug", false, "Enable debug logging")

	// Transport flags
	cmd.Flags().StringVar(&config.Transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&config.HTTPAddr, "http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	cmd.Flags().StringVar(&config.HTTPEndpoint, "http-endpoint", "/mcp", "HTTP endpoint path (for streamable-http transport)")
	cmd.Flags().StringVar(&config.AllowedOrigins, "allowed-origins", "", "Comma-separated CORS origins allowed to call the HTTP API")
	cmd.Flags().Float64Var(&config.RequestsPerSecond, "rate-limit", server.DefaultRequestsPerSecond, "JSON API requests per second per client address (0 disables)")
	cmd.Flags().IntVar(&config.Burst, "rate-burst", server.DefaultBurst, "JSON API burst per client address")

	// Metrics server flags
	cmd.Flags().BoolVar(&config.Metrics.Enabled, "metrics-enabled", true, "Serve Prometheus metrics on a dedicated server when instrumentation is enabled")
	cmd.Flags().StringVar(&config.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address")

	return cmd
}

// runServe wires the conversation engine and runs the selected transport.
func runServe(config ServeConfig) error {
	if err := config.validate(); err != nil {
		return err
	}

	// Logs go to stderr so stdio transport keeps stdout for the protocol.
	logger := logging.NewLogger(os.Stderr, config.DebugMode)
	slog.SetDefault(logger)

	shutdownCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	instrumentationConfig := instrumentation.DefaultConfig()
	instrumentationConfig.ServiceVersion = rootCmd.Version
	if err := instrumentationConfig.Validate(); err != nil {
		return fmt.Errorf("invalid instrumentation config: %w", err)
	}
	instrumentationProvider, err := instrumentation.NewProvider(shutdownCtx, instrumentationConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if shutdownErr := instrumentationProvider.Shutdown(context.Background()); shutdownErr != nil {
			logger.Error("error during instrumentation shutdown", logging.Err(shutdownErr))
		}
	}()

	if instrumentationProvider.Enabled() {
		logger.Info("OpenTelemetry instrumentation enabled",
			slog.String("metrics", instrumentationConfig.MetricsExporter),
			slog.String("tracing", instrumentationConfig.TracingExporter))
	}

	config.Runtime.Logger = logger
	config.Runtime.Metrics = instrumentationProvider.Metrics()
	config.Runtime.Watch = true
	rt, err := newRuntime(shutdownCtx, config.Runtime)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("error closing runtime", logging.Err(err))
		}
	}()

	if rt.watcher != nil {
		go func() {
			if err := rt.watcher.Run(shutdownCtx); err != nil {
				logger.Error("registry watcher stopped", logging.Err(err))
			}
		}()
	}

	serverContext, err := server.NewServerContext(shutdownCtx,
		server.WithConversations(rt.orchestrator),
		server.WithLogger(logger),
		server.WithVersion(rootCmd.Version),
		server.WithNonDestructiveMode(config.Runtime.NonDestructiveMode),
		server.WithDryRun(config.Runtime.DryRun),
		server.WithRateLimit(config.RequestsPerSecond, config.Burst),
		server.WithInstrumentationProvider(instrumentationProvider),
	)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Error("error during server context shutdown", logging.Err(err))
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("kratos", rootCmd.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)
	if err := session.RegisterSessionTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register session tools: %w", err)
	}
	if err := registry.RegisterRegistryTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register registry tools: %w", err)
	}

	switch config.Transport {
	case transportStdio:
		return runStdioServer(mcpSrv)
	default:
		logger.Info("starting kratos", slog.String("transport", config.Transport))
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, config)
	}
}
