package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/giantswarm/kratos/internal/capability"
	"github.com/giantswarm/kratos/internal/clusterctx"
	"github.com/giantswarm/kratos/internal/config"
	"github.com/giantswarm/kratos/internal/executor"
	"github.com/giantswarm/kratos/internal/history"
	"github.com/giantswarm/kratos/internal/instrumentation"
	"github.com/giantswarm/kratos/internal/k8s"
	"github.com/giantswarm/kratos/internal/k8sagent"
	"github.com/giantswarm/kratos/internal/logging"
	"github.com/giantswarm/kratos/internal/orchestrator"
)

// RuntimeConfig holds the settings shared by every command that runs
// conversations.
type RuntimeConfig struct {
	// ConfigPath is the registry file. Empty uses the built-in catalogue.
	ConfigPath string
	// Kubeconfig overrides the default loading rules for discovery and for
	// clusters that do not name their own kubeconfig.
	Kubeconfig string
	// HistoryDB is the SQLite transcript database. Empty keeps history in
	// memory.
	HistoryDB string

	NonDestructiveMode bool
	DryRun             bool
	AllowedOperations  []string
	QPSLimit           float32
	BurstLimit         int

	// Policy overrides from flags and environment; zero keeps the file value.
	MaxRounds       int
	DefaultTimeout  string
	ConfidenceFloor float64

	// SkipRemotes leaves remote agents undialled.
	SkipRemotes bool
	// Watch reloads the registry file on change.
	Watch bool

	Version string
	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// runtime is the wired conversation engine.
type runtime struct {
	config       *config.Config
	registry     *capability.Registry
	clusters     *clusterctx.Manager
	adapter      *executor.Adapter
	store        history.Store
	orchestrator *orchestrator.Orchestrator
	watcher      *config.Watcher

	remotes []*executor.MCPBackend
	logger  *slog.Logger
}

// newRuntime loads the registry, discovers clusters, dials remote agents
// and builds the orchestrator.
func newRuntime(ctx context.Context, rc RuntimeConfig) (_ *runtime, err error) {
	logger := rc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := loadRegistry(rc.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := applyPolicyOverrides(&cfg.Policy, rc); err != nil {
		return nil, err
	}

	clusters, err := resolveClusters(cfg, rc.Kubeconfig)
	if err != nil {
		return nil, err
	}
	manager, err := clusterctx.NewManager(clusters...)
	if err != nil {
		return nil, fmt.Errorf("failed to register clusters: %w", err)
	}

	store, err := openStore(rc.HistoryDB)
	if err != nil {
		return nil, err
	}
	rt := &runtime{config: cfg, clusters: manager, store: store, logger: logger}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	rt.adapter = executor.NewAdapter(cfg.Policy.ExecutorConfig(),
		executor.WithStore(store),
		executor.WithLogger(logging.WithOperation(logger, "execute")),
		executor.WithMetrics(rc.Metrics),
	)

	if cfg.Builtin {
		cache := k8s.NewClientCache(k8s.NewClientFactory(k8s.ClientConfig{
			QPSLimit:   rc.QPSLimit,
			BurstLimit: rc.BurstLimit,
			DryRun:     rc.DryRun,
			Logger:     logger,
			Metrics:    rc.Metrics,
		}), 0, 0, logger)
		rt.adapter.RegisterBackend(k8sagent.AgentID, k8sagent.New(cache,
			k8sagent.WithPolicy(k8sagent.Policy{
				NonDestructive:    rc.NonDestructiveMode,
				DryRun:            rc.DryRun,
				AllowedOperations: rc.AllowedOperations,
			}),
			k8sagent.WithLogger(logging.WithAgent(logger, k8sagent.AgentID)),
		))
	}

	caps := cfg.Capabilities
	var discovered []capability.Capability
	if !rc.SkipRemotes {
		discovered = rt.dialRemotes(ctx, cfg, rc.Version)
		caps = append(caps, discovered...)
	}

	rt.registry, err = capability.NewRegistryFrom(caps)
	if err != nil {
		return nil, fmt.Errorf("failed to build capability registry: %w", err)
	}

	rt.orchestrator = orchestrator.New(cfg.Policy.OrchestratorConfig(), rt.registry, manager,
		cfg.Policy.Resolver(), rt.adapter, store,
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(rc.Metrics),
	)

	if rc.Watch && rc.ConfigPath != "" {
		rt.watcher = config.NewWatcher(rc.ConfigPath, rt.registry,
			config.WithWatchLogger(logger),
			config.WithDiscovered(discovered),
		)
	}

	logger.Info("runtime ready",
		slog.Int("capabilities", rt.registry.Snapshot().Len()),
		slog.Int("clusters", len(clusters)),
		slog.Int("remote_agents", len(rt.remotes)))
	return rt, nil
}

// dialRemotes connects to the configured remote agents and returns the
// functions they advertise beyond the ones declared in the file. An agent
// that cannot be reached is logged and skipped; its declared functions stay
// in the registry and fail as unavailable.
func (rt *runtime) dialRemotes(ctx context.Context, cfg *config.Config, version string) []capability.Capability {
	declared := make(map[capability.Ref]bool, len(cfg.Capabilities))
	for _, c := range cfg.Capabilities {
		declared[c.Ref()] = true
	}

	var discovered []capability.Capability
	for _, remote := range cfg.Remotes {
		logger := logging.WithAgent(rt.logger, remote.ID)
		backend, err := executor.DialMCP(ctx, remote, version, logger)
		if err != nil {
			logger.Warn("remote agent unavailable", logging.SanitizedErr(err))
			continue
		}
		rt.remotes = append(rt.remotes, backend)
		rt.adapter.RegisterBackend(remote.ID, backend)

		caps, err := backend.Capabilities(ctx)
		if err != nil {
			logger.Warn("failed to list remote agent functions", logging.SanitizedErr(err))
			continue
		}
		for _, c := range caps {
			if !declared[c.Ref()] {
				discovered = append(discovered, c)
			}
		}
	}
	return discovered
}

// Close releases the remote agents and the history store.
func (rt *runtime) Close() error {
	var errs []error
	for _, r := range rt.remotes {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close history store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func loadRegistry(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// applyPolicyOverrides lets flags and environment tighten or relax the
// file's policy.
func applyPolicyOverrides(p *config.Policy, rc RuntimeConfig) error {
	if rc.MaxRounds > 0 {
		p.MaxRounds = rc.MaxRounds
	}
	if rc.DefaultTimeout != "" {
		d, ok := parseDurationEnv(rc.DefaultTimeout, "default-timeout")
		if !ok || d <= 0 {
			return fmt.Errorf("invalid default timeout %q", rc.DefaultTimeout)
		}
		p.DefaultTimeout = d
	}
	if rc.ConfidenceFloor > 0 {
		if rc.ConfidenceFloor > 1 {
			return fmt.Errorf("confidence floor must be within (0, 1], got %v", rc.ConfidenceFloor)
		}
		p.ConfidenceFloor = rc.ConfidenceFloor
	}
	return nil
}

// resolveClusters returns the file's clusters, or the kubeconfig contexts
// when the file names none.
func resolveClusters(cfg *config.Config, kubeconfig string) ([]clusterctx.Context, error) {
	if len(cfg.Clusters) == 0 {
		clusters, err := k8s.DiscoverClusters(kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to discover clusters: %w", err)
		}
		return clusters, nil
	}
	clusters := make([]clusterctx.Context, len(cfg.Clusters))
	for i, c := range cfg.Clusters {
		if c.Descriptor.Kubeconfig == "" && !c.Descriptor.InCluster {
			c.Descriptor.Kubeconfig = kubeconfig
		}
		clusters[i] = c
	}
	return clusters, nil
}

func openStore(path string) (history.Store, error) {
	if path == "" {
		return history.NewMemoryStore(), nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	store, err := history.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return store, nil
}
