package server

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/giantswarm/kratos/internal/capability"
	"github.com/giantswarm/kratos/internal/clusterctx"
	"github.com/giantswarm/kratos/internal/executor"
	"github.com/giantswarm/kratos/internal/history"
	"github.com/giantswarm/kratos/internal/intent"
	"github.com/giantswarm/kratos/internal/k8sagent"
	"github.com/giantswarm/kratos/internal/orchestrator"
)

type stubExecutor struct {
	mu      sync.Mutex
	breaker string
	calls   []executor.Call
}

func (s *stubExecutor) Execute(_ context.Context, call executor.Call) executor.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return executor.Result{Status: executor.StatusOK, Summary: call.Capability.Function + " done", Attempts: 1}
}

func (s *stubExecutor) Agents() []string { return []string{k8sagent.AgentID} }

func (s *stubExecutor) BreakerState(string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.breaker == "" {
		return "closed"
	}
	return s.breaker
}

func (s *stubExecutor) setBreaker(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breaker = state
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newOrchestrator(t *testing.T, exec *stubExecutor) *orchestrator.Orchestrator {
	t.Helper()
	registry, err := capability.NewRegistryFrom(k8sagent.Catalogue())
	require.NoError(t, err)
	clusters, err := clusterctx.NewManager(
		clusterctx.Context{ID: "staging", Active: true},
		clusterctx.Context{ID: "prod-eu"},
	)
	require.NoError(t, err)
	return orchestrator.New(orchestrator.Config{MaxRounds: 3}, registry, clusters,
		intent.NewRuleResolver(0), exec, history.NewMemoryStore(),
		orchestrator.WithLogger(quietLogger()))
}

func newTestServerContext(t *testing.T, opts ...Option) (*ServerContext, *stubExecutor) {
	t.Helper()
	exec := &stubExecutor{}
	base := []Option{
		WithConversations(newOrchestrator(t, exec)),
		WithLogger(quietLogger()),
		WithRateLimit(0, 0),
	}
	sc, err := NewServerContext(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc, exec
}
