package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/giantswarm/kratos/internal/capability"
	"github.com/giantswarm/kratos/internal/history"
	"github.com/giantswarm/kratos/internal/instrumentation"
	"github.com/giantswarm/kratos/internal/orchestrator"
)

// Conversations is the conversation engine the transports drive.
// *orchestrator.Orchestrator implements it.
type Conversations interface {
	NewSession(ctx context.Context) (orchestrator.SessionInfo, error)
	ListSessions() []orchestrator.SessionInfo
	Session(id string) (orchestrator.SessionInfo, error)
	Submit(ctx context.Context, sessionID, utterance string) (*orchestrator.Response, error)
	EndSession(ctx context.Context, id string) error
	ResetSession(ctx context.Context, id string) (orchestrator.SessionInfo, error)
	Transcript(ctx context.Context, id string) ([]history.Turn, error)
	Status() orchestrator.Status
	Capabilities() []capability.Capability
}

// ServerContext encapsulates the dependencies shared by the MCP tools and
// the HTTP API, and their lifecycle.
type ServerContext struct {
	conversations Conversations
	logger        *slog.Logger
	config        *Config

	instrumentationProvider *instrumentation.Provider

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a ServerContext. WithConversations is required.
func NewServerContext(ctx context.Context, opts ...Option) (*ServerContext, error) {
	serverCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:    serverCtx,
		cancel: cancel,
		config: NewDefaultConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(sc); err != nil {
			cancel()
			return nil, err
		}
	}

	if err := sc.validate(); err != nil {
		cancel()
		return nil, err
	}

	return sc, nil
}

// Context is cancelled on Shutdown.
func (sc *ServerContext) Context() context.Context {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.ctx
}

// Conversations returns the conversation engine.
func (sc *ServerContext) Conversations() Conversations {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.conversations
}

// Logger returns the logger.
func (sc *ServerContext) Logger() *slog.Logger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.logger
}

// Config returns the server configuration.
func (sc *ServerContext) Config() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config
}

// InstrumentationProvider returns the provider, nil when not configured.
func (sc *ServerContext) InstrumentationProvider() *instrumentation.Provider {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.instrumentationProvider
}

// Shutdown ends every open session and cancels the context. It is safe to
// call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.logger.Info("Shutting down server context")

	// Sessions are ended on a fresh context so their closing turns are
	// written even though the server context is about to be cancelled.
	ended := 0
	for _, info := range sc.conversations.ListSessions() {
		if info.State == orchestrator.StateEnded {
			continue
		}
		if err := sc.conversations.EndSession(context.WithoutCancel(sc.ctx), info.ID); err != nil {
			sc.logger.Warn("Failed to end session", "session_id", info.ID, "error", err)
			continue
		}
		ended++
	}

	if sc.cancel != nil {
		sc.cancel()
	}
	sc.shutdown = true

	sc.logger.Info("Server context shutdown complete", "sessions_ended", ended)
	return nil
}

// IsShutdown returns true once Shutdown has run.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

func (sc *ServerContext) validate() error {
	if sc.conversations == nil {
		return ErrMissingConversations
	}
	if sc.logger == nil {
		return ErrMissingLogger
	}
	if sc.config == nil {
		return ErrMissingConfig
	}
	return nil
}

// Config holds the server configuration.
type Config struct {
	ServerName string `json:"serverName"`
	Version    string `json:"version"`

	// NonDestructiveMode refuses mutating functions unless DryRun is set or
	// they are listed in AllowedOperations.
	NonDestructiveMode bool     `json:"nonDestructiveMode"`
	DryRun             bool     `json:"dryRun"`
	AllowedOperations  []string `json:"allowedOperations"`

	// RequestsPerSecond and Burst bound the JSON API per client address.
	// Zero disables limiting.
	RequestsPerSecond float64 `json:"requestsPerSecond"`
	Burst             int     `json:"burst"`
}

// NewDefaultConfig creates a configuration with defaults.
func NewDefaultConfig() *Config {
	return &Config{
		ServerName:        "kratos",
		Version:           "dev",
		RequestsPerSecond: DefaultRequestsPerSecond,
		Burst:             DefaultBurst,
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	clone := *c
	if c.AllowedOperations != nil {
		clone.AllowedOperations = make([]string, len(c.AllowedOperations))
		copy(clone.AllowedOperations, c.AllowedOperations)
	}
	return &clone
}

// Mode names the mutation policy for health output.
func (c *Config) Mode() string {
	switch {
	case c.DryRun:
		return "dry-run"
	case c.NonDestructiveMode:
		return "non-destructive"
	}
	return "read-write"
}
