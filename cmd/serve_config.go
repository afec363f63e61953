package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/giantswarm/kratos/internal/server"
)

// ServeConfig holds configuration for the serve command.
type ServeConfig struct {
	// Transport settings
	Transport    string
	HTTPAddr     string
	HTTPEndpoint string

	// AllowedOrigins is the comma-separated CORS allow-list of the HTTP API.
	AllowedOrigins string
	EnableHSTS     bool

	// Rate limit of the JSON API per client address
	RequestsPerSecond float64
	Burst             int

	DebugMode bool

	Runtime RuntimeConfig
	Metrics MetricsServeConfig
}

// MetricsServeConfig holds configuration for the dedicated metrics server.
type MetricsServeConfig struct {
	Enabled bool
	Addr    string
}

// loadEnvIfEmpty loads an environment variable into a string pointer if it's empty.
func loadEnvIfEmpty(target *string, envKey string) {
	if *target == "" {
		*target = os.Getenv(envKey)
	}
}

// loadServeEnvVars applies KRATOS_* environment variables to flags that were
// not set explicitly. Invalid values are logged as warnings and ignored.
func loadServeEnvVars(cmd *cobra.Command, config *ServeConfig) {
	changed := cmd.Flags().Changed

	if !changed("config") {
		loadEnvIfEmpty(&config.Runtime.ConfigPath, "KRATOS_CONFIG")
	}
	if !changed("kubeconfig") {
		loadEnvIfEmpty(&config.Runtime.Kubeconfig, "KUBECONFIG")
	}
	if !changed("history-db") {
		loadEnvIfEmpty(&config.Runtime.HistoryDB, "KRATOS_HISTORY_DB")
	}
	if !changed("allowed-origins") {
		loadEnvIfEmpty(&config.AllowedOrigins, "ALLOWED_ORIGINS")
	}
	if !changed("non-destructive") {
		if v := os.Getenv("KRATOS_NON_DESTRUCTIVE"); v != "" {
			config.Runtime.NonDestructiveMode = v == envValueTrue
		}
	}
	if !changed("dry-run") && os.Getenv("KRATOS_DRY_RUN") == envValueTrue {
		config.Runtime.DryRun = true
	}
	if os.Getenv("ENABLE_HSTS") == envValueTrue {
		config.EnableHSTS = true
	}
	if !changed("allowed-operations") {
		if v := os.Getenv("KRATOS_ALLOWED_OPERATIONS"); v != "" {
			config.Runtime.AllowedOperations = splitList(v)
		}
	}

	if !changed("max-rounds") {
		if n, ok := parseIntEnv(os.Getenv("KRATOS_MAX_ROUNDS"), "KRATOS_MAX_ROUNDS"); ok {
			config.Runtime.MaxRounds = n
		}
	}
	if !changed("default-timeout") {
		if d, ok := parseDurationEnv(os.Getenv("KRATOS_DEFAULT_TIMEOUT"), "KRATOS_DEFAULT_TIMEOUT"); ok {
			config.Runtime.DefaultTimeout = d.String()
		}
	}
	if !changed("confidence-floor") {
		if f, ok := parseFloat32Env(os.Getenv("KRATOS_CONFIDENCE_FLOOR"), "KRATOS_CONFIDENCE_FLOOR"); ok {
			config.Runtime.ConfidenceFloor = float64(f)
		}
	}
	if !changed("qps-limit") {
		if f, ok := parseFloat32Env(os.Getenv("KRATOS_QPS_LIMIT"), "KRATOS_QPS_LIMIT"); ok {
			config.Runtime.QPSLimit = f
		}
	}
	if !changed("burst-limit") {
		if n, ok := parseIntEnv(os.Getenv("KRATOS_BURST_LIMIT"), "KRATOS_BURST_LIMIT"); ok {
			config.Runtime.BurstLimit = n
		}
	}
	if !changed("rate-limit") {
		if f, ok := parseFloat32Env(os.Getenv("KRATOS_RATE_LIMIT"), "KRATOS_RATE_LIMIT"); ok {
			config.RequestsPerSecond = float64(f)
		}
	}
	if !changed("rate-burst") {
		if n, ok := parseIntEnv(os.Getenv("KRATOS_RATE_BURST"), "KRATOS_RATE_BURST"); ok {
			config.Burst = n
		}
	}

	if !changed("metrics-addr") {
		loadEnvIfEmpty(&config.Metrics.Addr, "METRICS_ADDR")
	}
	if !changed("metrics-enabled") && os.Getenv("METRICS_ENABLED") == "false" {
		config.Metrics.Enabled = false
	}
}

// validate checks the settings runServe cannot recover from.
func (c *ServeConfig) validate() error {
	switch c.Transport {
	case transportStdio, transportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s)", c.Transport, transportStdio, transportStreamableHTTP)
	}
	if c.Transport == transportStreamableHTTP && !strings.HasPrefix(c.HTTPEndpoint, "/") {
		return fmt.Errorf("http endpoint must start with '/': %q", c.HTTPEndpoint)
	}
	if c.RequestsPerSecond < 0 || c.Burst < 0 {
		return server.ErrInvalidRateLimit
	}
	if c.Runtime.MaxRounds < 0 {
		return fmt.Errorf("max rounds must not be negative, got %d", c.Runtime.MaxRounds)
	}
	return nil
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
