package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/kratos/internal/capability"
	"github.com/giantswarm/kratos/internal/clusterctx"
	"github.com/giantswarm/kratos/internal/executor"
	"github.com/giantswarm/kratos/internal/intent"
	"github.com/giantswarm/kratos/internal/k8sagent"
	"github.com/giantswarm/kratos/internal/orchestrator"
)

// ErrInvalidConfig is returned for registry files that fail validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// File is the YAML document.
type File struct {
	Policy   Policy         `yaml:"policy"`
	Clusters []ClusterEntry `yaml:"clusters"`
	Agents   []AgentEntry   `yaml:"agents"`
}

// Policy holds the conversation and execution limits. Zero values select
// the defaults.
type Policy struct {
	MaxRounds       int           `yaml:"max_rounds"`
	ConfidenceFloor float64       `yaml:"confidence_floor"`
	DefaultTimeout  time.Duration `yaml:"default_timeout"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	MaxBackoff      time.Duration `yaml:"max_backoff"`
	HistoryWindow   int           `yaml:"history_window"`

	BreakerMaxFailures uint32        `yaml:"breaker_max_failures"`
	BreakerTimeout     time.Duration `yaml:"breaker_timeout"`
}

// ClusterEntry is one cluster of the registry file.
type ClusterEntry struct {
	ID                    string `yaml:"id"`
	DisplayName           string `yaml:"display_name"`
	Active                bool   `yaml:"active"`
	clusterctx.Descriptor `yaml:",inline"`
}

// AgentEntry is one agent. Exactly one of Builtin, Endpoint and Command
// says how it is reached.
type AgentEntry struct {
	ID string `yaml:"id"`
	// Builtin selects the in-process Kubernetes agent and its catalogue.
	Builtin  bool              `yaml:"builtin"`
	Endpoint string            `yaml:"endpoint"`
	Command  string            `yaml:"command"`
	Args     []string          `yaml:"args"`
	Env      map[string]string `yaml:"env"`
	// Functions declares the agent's capabilities. Remote agents without
	// functions are asked for their tool list at startup.
	Functions []FunctionEntry `yaml:"functions"`
}

// FunctionEntry is one capability of an agent.
type FunctionEntry struct {
	Name          string             `yaml:"name"`
	Description   string             `yaml:"description"`
	Keywords      []string           `yaml:"keywords"`
	Idempotent    bool               `yaml:"idempotent"`
	Timeout       time.Duration      `yaml:"timeout"`
	ClusterScoped *bool              `yaml:"cluster_scoped"`
	Params        []capability.Param `yaml:"params"`
}

// Config is the validated registry, in the core's types.
type Config struct {
	Policy       Policy
	Capabilities []capability.Capability
	Clusters     []clusterctx.Context
	// Remotes are the agents reached over MCP.
	Remotes []executor.RemoteAgent
	// Builtin is true when the in-process Kubernetes agent is enabled.
	Builtin bool
}

// Default is the configuration used without a registry file: the built-in
// agent and no clusters, so they are discovered from the kubeconfig.
func Default() *Config {
	return &Config{
		Capabilities: k8sagent.Catalogue(),
		Builtin:      true,
	}
}

// Load reads and validates a registry file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a registry document. Unknown fields are
// rejected.
func Parse(data []byte) (*Config, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return Default(), nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return f.Convert()
}

// Convert validates the file and converts it to core types.
func (f *File) Convert() (*Config, error) {
	if err := f.Policy.validate(); err != nil {
		return nil, err
	}

	cfg := &Config{Policy: f.Policy}

	seenClusters := map[string]bool{}
	for i, c := range f.Clusters {
		if c.ID == "" {
			return nil, fmt.Errorf("%w: clusters[%d]: id is required", ErrInvalidConfig, i)
		}
		if seenClusters[c.ID] {
			return nil, fmt.Errorf("%w: cluster %q is declared twice", ErrInvalidConfig, c.ID)
		}
		seenClusters[c.ID] = true
		cfg.Clusters = append(cfg.Clusters, clusterctx.Context{
			ID:          c.ID,
			DisplayName: c.DisplayName,
			Descriptor:  c.Descriptor,
			Active:      c.Active,
		})
	}

	if len(f.Agents) == 0 {
		cfg.Builtin = true
		cfg.Capabilities = k8sagent.Catalogue()
		return cfg, nil
	}

	seenAgents := map[string]bool{}
	for i, a := range f.Agents {
		if a.ID == "" {
			return nil, fmt.Errorf("%w: agents[%d]: id is required", ErrInvalidConfig, i)
		}
		if seenAgents[a.ID] {
			return nil, fmt.Errorf("%w: agent %q is declared twice", ErrInvalidConfig, a.ID)
		}
		seenAgents[a.ID] = true

		if err := a.validate(); err != nil {
			return nil, err
		}
		if a.Builtin {
			cfg.Builtin = true
			cfg.Capabilities = append(cfg.Capabilities, k8sagent.Catalogue()...)
			continue
		}

		cfg.Remotes = append(cfg.Remotes, executor.RemoteAgent{
			ID:       a.ID,
			Endpoint: a.Endpoint,
			Command:  a.Command,
			Args:     a.Args,
			Env:      a.Env,
		})
		for _, fn := range a.Functions {
			c := fn.capability(a.ID)
			if err := c.Validate(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
			cfg.Capabilities = append(cfg.Capabilities, c)
		}
	}

	// Catch duplicates here rather than at registry load.
	if _, err := capability.NewRegistryFrom(cfg.Capabilities); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

func (p Policy) validate() error {
	switch {
	case p.MaxRounds < 0:
		return fmt.Errorf("%w: policy.max_rounds must not be negative", ErrInvalidConfig)
	case p.ConfidenceFloor < 0 || p.ConfidenceFloor > 1:
		return fmt.Errorf("%w: policy.confidence_floor must be between 0 and 1", ErrInvalidConfig)
	case p.DefaultTimeout < 0 || p.RetryBackoff < 0 || p.MaxBackoff < 0 || p.BreakerTimeout < 0:
		return fmt.Errorf("%w: policy durations must not be negative", ErrInvalidConfig)
	case p.RetryAttempts < 0 || p.HistoryWindow < 0:
		return fmt.Errorf("%w: policy counts must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (a AgentEntry) validate() error {
	modes := 0
	for _, set := range []bool{a.Builtin, a.Endpoint != "", a.Command != ""} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return fmt.Errorf("%w: agent %q needs exactly one of builtin, endpoint or command", ErrInvalidConfig, a.ID)
	}
	if a.Builtin && len(a.Functions) > 0 {
		return fmt.Errorf("%w: builtin agent %q cannot declare functions", ErrInvalidConfig, a.ID)
	}
	if a.Builtin && a.ID != k8sagent.AgentID {
		return fmt.Errorf("%w: the builtin agent must be called %q", ErrInvalidConfig, k8sagent.AgentID)
	}
	return nil
}

func (fn FunctionEntry) capability(agent string) capability.Capability {
	scoped := true
	if fn.ClusterScoped != nil {
		scoped = *fn.ClusterScoped
	}
	return capability.Capability{
		AgentID:       agent,
		Function:      fn.Name,
		Description:   fn.Description,
		Params:        fn.Params,
		Keywords:      fn.Keywords,
		Idempotent:    fn.Idempotent,
		Timeout:       fn.Timeout,
		ClusterScoped: scoped,
	}
}

// ExecutorConfig returns the adapter settings of the policy.
func (p Policy) ExecutorConfig() executor.Config {
	return executor.Config{
		RetryAttempts:      p.RetryAttempts,
		RetryBackoff:       p.RetryBackoff,
		MaxBackoff:         p.MaxBackoff,
		DefaultTimeout:     p.DefaultTimeout,
		BreakerMaxFailures: p.BreakerMaxFailures,
		BreakerTimeout:     p.BreakerTimeout,
	}
}

// OrchestratorConfig returns the conversation limits of the policy.
func (p Policy) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{MaxRounds: p.MaxRounds, HistoryWindow: p.HistoryWindow}
}

// Resolver returns the rule-based resolver with the policy's floor.
func (p Policy) Resolver() *intent.RuleResolver {
	return intent.NewRuleResolver(p.ConfidenceFloor)
}
