package server

import (
	"errors"
	"log/slog"

	"github.com/giantswarm/kratos/internal/instrumentation"
)

// Option is a functional option for configuring ServerContext.
type Option func(*ServerContext) error

// WithConversations sets the conversation engine.
func WithConversations(c Conversations) Option {
	return func(sc *ServerContext) error {
		if c == nil {
			return ErrMissingConversations
		}
		sc.conversations = c
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) error {
		if logger == nil {
			return ErrMissingLogger
		}
		sc.logger = logger
		return nil
	}
}

// WithConfig replaces the configuration.
func WithConfig(config *Config) Option {
	return func(sc *ServerContext) error {
		if config == nil {
			return ErrMissingConfig
		}
		sc.config = config.Clone()
		return nil
	}
}

// WithServerName sets the server name in the configuration.
func WithServerName(name string) Option {
	return func(sc *ServerContext) error {
		sc.config.ServerName = name
		return nil
	}
}

// WithVersion sets the reported version.
func WithVersion(version string) Option {
	return func(sc *ServerContext) error {
		sc.config.Version = version
		return nil
	}
}

// WithNonDestructiveMode enables or disables non-destructive mode.
func WithNonDestructiveMode(enabled bool) Option {
	return func(sc *ServerContext) error {
		sc.config.NonDestructiveMode = enabled
		return nil
	}
}

// WithDryRun enables or disables dry-run mode.
func WithDryRun(enabled bool) Option {
	return func(sc *ServerContext) error {
		sc.config.DryRun = enabled
		return nil
	}
}

// WithRateLimit bounds the JSON API per client address.
func WithRateLimit(rps float64, burst int) Option {
	return func(sc *ServerContext) error {
		if rps < 0 || burst < 0 {
			return ErrInvalidRateLimit
		}
		sc.config.RequestsPerSecond = rps
		sc.config.Burst = burst
		return nil
	}
}

// WithInstrumentationProvider sets the OpenTelemetry provider.
func WithInstrumentationProvider(provider *instrumentation.Provider) Option {
	return func(sc *ServerContext) error {
		sc.instrumentationProvider = provider
		return nil
	}
}

// Error definitions for ServerContext validation.
var (
	ErrMissingConversations = errors.New("conversation engine is required")
	ErrMissingLogger        = errors.New("logger is required")
	ErrMissingConfig        = errors.New("configuration is required")
	ErrInvalidRateLimit     = errors.New("rate limit must not be negative")
	ErrServerShutdown       = errors.New("server context has been shutdown")
)
