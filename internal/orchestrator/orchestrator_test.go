package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/kratos/internal/capability"
	"github.com/giantswarm/kratos/internal/clusterctx"
	"github.com/giantswarm/kratos/internal/executor"
	"github.com/giantswarm/kratos/internal/history"
	"github.com/giantswarm/kratos/internal/intent"
	"github.com/giantswarm/kratos/internal/k8sagent"
)

type fakeExecutor struct {
	mu     sync.Mutex
	calls  []executor.Call
	result func(call executor.Call) executor.Result
}

func (f *fakeExecutor) Execute(_ context.Context, call executor.Call) executor.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.result != nil {
		return f.result(call)
	}
	return executor.Result{Status: executor.StatusOK, Summary: call.Capability.Function + " done", Attempts: 1}
}

func (f *fakeExecutor) Agents() []string { return []string{k8sagent.AgentID} }

func (f *fakeExecutor) BreakerState(string) string { return "closed" }

func (f *fakeExecutor) lastCall(t *testing.T) executor.Call {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

type fixture struct {
	orch  *Orchestrator
	exec  *fakeExecutor
	store *history.MemoryStore
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	registry, err := capability.NewRegistryFrom(k8sagent.Catalogue())
	require.NoError(t, err)
	clusters, err := clusterctx.NewManager(
		clusterctx.Context{ID: "staging", Active: true},
		clusterctx.Context{ID: "prod-eu"},
	)
	require.NoError(t, err)

	f := &fixture{exec: &fakeExecutor{}, store: history.NewMemoryStore()}
	f.orch = New(cfg, registry, clusters, intent.NewRuleResolver(0), f.exec, f.store)
	return f
}

func (f *fixture) session(t *testing.T) string {
	t.Helper()
	info, err := f.orch.NewSession(context.Background())
	require.NoError(t, err)
	return info.ID
}

func (f *fixture) submit(t *testing.T, id, utterance string) *Response {
	t.Helper()
	resp, err := f.orch.Submit(context.Background(), id, utterance)
	require.NoError(t, err)
	return resp
}

func TestScaleOnActiveCluster(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.session(t)

	resp := f.submit(t, id, "scale web-app to 5 replicas")
	require.Equal(t, KindResult, resp.Kind)
	assert.Equal(t, executor.StatusOK, resp.Result.Status)
	assert.Equal(t, StateAwaitingInput, resp.State)
	assert.Equal(t, 1, resp.Rounds)

	call := f.exec.lastCall(t)
	assert.Equal(t, k8sagent.FuncScaleDeployment, call.Capability.Function)
	assert.Equal(t, k8sagent.AgentID, call.Capability.AgentID)
	assert.Equal(t, "web-app", call.Params[k8sagent.ParamDeploymentName])
	assert.Equal(t, 5, call.Params[k8sagent.ParamReplicas])
	assert.Equal(t, "staging", call.Cluster.ID)
	assert.Equal(t, id, call.SessionID)
}

func TestRestartClarification(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.session(t)

	resp := f.submit(t, id, "restart nginx")
	require.Equal(t, KindClarification, resp.Kind)
	assert.ErrorIs(t, resp.Err, ErrClarificationNeeded)
	assert.Equal(t, []string{k8sagent.ParamNamespace}, resp.Missing)
	assert.Equal(t, 0, resp.Rounds)
	assert.Empty(t, f.exec.calls)

	info, err := f.orch.Session(id)
	require.NoError(t, err)
	assert.Equal(t, []string{k8sagent.ParamNamespace}, info.Pending)

	resp = f.submit(t, id, "in production")
	require.Equal(t, KindResult, resp.Kind)
	call := f.exec.lastCall(t)
	assert.Equal(t, k8sagent.FuncRestartDeployment, call.Capability.Function)
	assert.Equal(t, "nginx", call.Params[k8sagent.ParamDeploymentName])
	assert.Equal(t, "production", call.Params[k8sagent.ParamNamespace])
	assert.Equal(t, "staging", call.Cluster.ID)

	info, err = f.orch.Session(id)
	require.NoError(t, err)
	assert.Empty(t, info.Pending)
	assert.Equal(t, 1, info.Rounds)
}

func TestClarificationFollowUpStartsNewIntent(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.session(t)

	require.Equal(t, KindClarification, f.submit(t, id, "restart nginx").Kind)
	resp := f.submit(t, id, "get pods")
	require.Equal(t, KindResult, resp.Kind)
	require.Len(t, f.exec.calls, 1)
	call := f.exec.lastCall(t)
	assert.Equal(t, k8sagent.FuncGetPods, call.Capability.Function)
	assert.Equal(t, "default", call.Params[k8sagent.ParamNamespace])

	info, err := f.orch.Session(id)
	require.NoError(t, err)
	assert.Empty(t, info.Pending)
}

func TestClarificationCancelled(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.session(t)

	require.Equal(t, KindClarification, f.submit(t, id, "restart nginx").Kind)
	resp := f.submit(t, id, "cancel")
	assert.Equal(t, KindInfo, resp.Kind)
	assert.Contains(t, resp.Message, "dropped the pending restart_deployment")
	assert.Equal(t, 0, resp.Rounds)
	assert.Empty(t, f.exec.calls)

	info, err := f.orch.Session(id)
	require.NoError(t, err)
	assert.Empty(t, info.Pending)

	// A later bare word is not bound to the dropped call.
	resp = f.submit(t, id, "production")
	assert.Equal(t, KindNoMatch, resp.Kind)
	assert.Empty(t, f.exec.calls)
}

func TestNoMatchKeepsRoundCount(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.session(t)

	resp := f.submit(t, id, "make me a sandwich")
	assert.Equal(t, KindNoMatch, resp.Kind)
	assert.ErrorIs(t, resp.Err, ErrNoMatch)
	assert.Equal(t, StateAwaitingInput, resp.State)
	assert.Equal(t, 0, resp.Rounds)
	assert.Contains(t, resp.Message, "help")
	assert.Empty(t, f.exec.calls)
}

func TestRoundLimit(t *testing.T) {
	const maxRounds = 3
	f := newFixture(t, Config{MaxRounds: maxRounds})
	id := f.session(t)

	for i := 1; i <= maxRounds; i++ {
		resp := f.submit(t, id, "get pods")
		require.Equal(t, KindResult, resp.Kind)
		assert.Equal(t, i, resp.Rounds)
		assert.Equal(t, StateAwaitingInput, resp.State)
	}

	resp := f.submit(t, id, "get pods")
	assert.Equal(t, KindEnded, resp.Kind)
	assert.Equal(t, StateEnded, resp.State)
	assert.Equal(t, EndReasonRoundLimit, resp.EndReason)
	assert.ErrorIs(t, resp.Err, ErrRoundLimitExceeded)
	assert.Equal(t, maxRounds, resp.Rounds)
	assert.Len(t, f.exec.calls, maxRounds)

	_, err := f.orch.Submit(context.Background(), id, "get pods")
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestExitCommand(t *testing.T) {
	for _, cmd := range []string{"exit", "quit", "q", "BYE"} {
		t.Run(cmd, func(t *testing.T) {
			f := newFixture(t, Config{})
			id := f.session(t)

			resp := f.submit(t, id, cmd)
			assert.Equal(t, KindEnded, resp.Kind)
			assert.Equal(t, EndReasonUserExit, resp.EndReason)
			assert.NoError(t, resp.Err)

			_, err := f.orch.Submit(context.Background(), id, "get pods")
			assert.ErrorIs(t, err, ErrSessionEnded)
		})
	}
}

func TestMetaCommandsDoNotConsumeRounds(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.session(t)

	resp := f.submit(t, id, "help")
	assert.Equal(t, KindInfo, resp.Kind)
	assert.Contains(t, resp.Message, "scale web-app to 5 replicas")

	resp = f.submit(t, id, "functions")
	assert.Contains(t, resp.Message, "scale_deployment(deployment_name*, replicas*, namespace=default)")

	resp = f.submit(t, id, "status")
	assert.Contains(t, resp.Message, "round 0 of 10, active cluster staging")
	assert.Contains(t, resp.Message, "k8s-agent: 9 functions, breaker closed")

	assert.Equal(t, 0, resp.Rounds)
	assert.Empty(t, f.exec.calls)
}

func TestResetCommand(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.session(t)

	f.submit(t, id, "switch to prod-eu")
	require.Equal(t, KindClarification, f.submit(t, id, "restart nginx").Kind)

	resp := f.submit(t, id, "reset")
	assert.Equal(t, KindInfo, resp.Kind)
	assert.Equal(t, StateAwaitingInput, resp.State)
	assert.Equal(t, 0, resp.Rounds)

	info, err := f.orch.Session(id)
	require.NoError(t, err)
	assert.Empty(t, info.Pending)
	assert.Equal(t, "staging", info.ActiveCluster)

	turns, err := f.orch.Transcript(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, 1, turns[0].Index)
	assert.Equal(t, history.RoleSystem, turns[0].Role)

	// The reply that would have answered the old question starts fresh.
	resp = f.submit(t, id, "default")
	assert.Equal(t, KindNoMatch, resp.Kind)
	assert.Len(t, f.exec.calls, 0)
}

func TestSwitchClusterIsPerSession(t *testing.T) {
	f := newFixture(t, Config{})
	a, b := f.session(t), f.session(t)

	resp := f.submit(t, a, "switch to prod-eu")
	require.Equal(t, KindResult, resp.Kind)
	assert.Equal(t, "Switched to cluster prod-eu.", resp.Message)
	assert.Equal(t, 1, resp.Rounds)

	f.submit(t, a, "get pods")
	assert.Equal(t, "prod-eu", f.exec.lastCall(t).Cluster.ID)

	f.submit(t, b, "get pods")
	assert.Equal(t, "staging", f.exec.lastCall(t).Cluster.ID)

	resp = f.submit(t, a, "list clusters")
	assert.Contains(t, resp.Message, "prod-eu (active)")

	execs, err := f.orch.Executions(context.Background(), a)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, k8sagent.FuncSwitchCluster, execs[0].Function)
}

func TestUnknownClusterFailsTurnOnly(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.session(t)

	resp := f.submit(t, id, "get pods on cluster mars")
	assert.Equal(t, KindError, resp.Kind)
	assert.ErrorIs(t, resp.Err, clusterctx.ErrUnknownCluster)
	assert.Equal(t, StateAwaitingInput, resp.State)

	resp = f.submit(t, id, "get pods")
	assert.Equal(t, KindResult, resp.Kind)
}

func TestFailedAndPartialReports(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.session(t)

	f.exec.result = func(executor.Call) executor.Result {
		return executor.Result{Status: executor.StatusFailed, ErrorDetail: "Timeout", Err: executor.ErrTimeout}
	}
	resp := f.submit(t, id, "get pods")
	assert.Equal(t, "Failed to run get_pods on cluster staging: Timeout", resp.Message)
	assert.ErrorIs(t, resp.Err, executor.ErrTimeout)

	f.exec.result = func(executor.Call) executor.Result {
		return executor.Result{
			Status:  executor.StatusPartial,
			Summary: "Scaled web-app",
			Items:   []executor.Item{{Name: "ready replicas", Outcome: executor.ItemFailed, Detail: "2 of 3 ready"}},
		}
	}
	resp = f.submit(t, id, "scale web-app to 3 replicas")
	assert.Equal(t, "Partially completed: Scaled web-app\n  - ready replicas: failed (2 of 3 ready)", resp.Message)
}

func TestTranscriptIsGapFree(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.session(t)

	f.submit(t, id, "restart nginx")
	f.submit(t, id, "in production")
	f.submit(t, id, "make me a sandwich")

	turns, err := f.orch.Transcript(context.Background(), id)
	require.NoError(t, err)
	require.NotEmpty(t, turns)
	for i, turn := range turns {
		assert.Equal(t, i+1, turn.Index)
	}
	assert.Equal(t, history.RoleUser, turns[0].Role)
	assert.Equal(t, "restart nginx", turns[0].Text)
	assert.Equal(t, history.RoleResolver, turns[1].Role)
	assert.Equal(t, []string{k8sagent.ParamNamespace}, turns[1].Call.Missing)
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t, Config{})
	a, b := f.session(t), f.session(t)

	sessions := f.orch.ListSessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, a, sessions[0].ID)
	assert.Equal(t, "staging", sessions[0].ActiveCluster)

	f.submit(t, a, "get pods")
	require.NoError(t, f.orch.EndSession(context.Background(), a))

	_, err := f.orch.Submit(context.Background(), a, "get pods")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	turns, err := f.orch.Transcript(context.Background(), a)
	require.NoError(t, err)
	assert.NotEmpty(t, turns)

	_, err = f.orch.Transcript(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	f.submit(t, b, "exit")
	info, err := f.orch.ResetSession(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingInput, info.State)
	assert.Equal(t, 0, info.Rounds)
	assert.Equal(t, KindResult, f.submit(t, b, "get pods").Kind)

	st := f.orch.Status()
	assert.Equal(t, 1, st.TotalSessions)
	assert.Equal(t, 1, st.ActiveSessions)
	assert.Equal(t, int64(2), st.Executions)
}

func TestConcurrentSessions(t *testing.T) {
	f := newFixture(t, Config{MaxRounds: 50})
	ids := make([]string, 4)
	for i := range ids {
		ids[i] = f.session(t)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 5 {
				_, err := f.orch.Submit(context.Background(), id, "get pods")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		info, err := f.orch.Session(id)
		require.NoError(t, err)
		assert.Equal(t, 5, info.Rounds)
	}
}

func TestSessionReadsDuringTurn(t *testing.T) {
	f := newFixture(t, Config{})
	started := make(chan struct{})
	release := make(chan struct{})
	f.exec.result = func(call executor.Call) executor.Result {
		close(started)
		<-release
		return executor.Result{Status: executor.StatusOK, Summary: "done", Attempts: 1}
	}
	busy, idle := f.session(t), f.session(t)

	done := make(chan *Response, 1)
	go func() {
		resp, err := f.orch.Submit(context.Background(), busy, "get pods")
		assert.NoError(t, err)
		done <- resp
	}()
	<-started

	reads := make(chan map[string]SessionInfo, 1)
	go func() {
		byID := map[string]SessionInfo{}
		for _, info := range f.orch.ListSessions() {
			byID[info.ID] = info
		}
		_ = f.orch.Status()
		_, _ = f.orch.Session(busy)
		reads <- byID
	}()

	select {
	case byID := <-reads:
		require.Len(t, byID, 2)
		assert.Equal(t, StateExecuting, byID[busy].State)
		assert.Equal(t, StateAwaitingInput, byID[idle].State)
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("session reads waited for another session's call")
	}

	// The other session takes turns meanwhile.
	assert.Equal(t, KindInfo, f.submit(t, idle, "help").Kind)

	close(release)
	resp := <-done
	require.NotNil(t, resp)
	assert.Equal(t, KindResult, resp.Kind)

	info, err := f.orch.Session(busy)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingInput, info.State)
	assert.Equal(t, 1, info.Rounds)
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.orch.Submit(context.Background(), "missing", "get pods")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}
