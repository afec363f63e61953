package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/kratos/internal/capability"
	"github.com/giantswarm/kratos/internal/clusterctx"
	"github.com/giantswarm/kratos/internal/history"
)

const agent = "k8s-agent"

func catalogue() []capability.Capability {
	return []capability.Capability{
		{
			AgentID: agent, Function: "scale_deployment", ClusterScoped: true,
			Description: "Scale a deployment to a number of replicas",
			Keywords:    []string{"scale", "replicas", "resize"},
			Params: []capability.Param{
				{Name: "deployment_name", Type: capability.TypeString, Required: true},
				{Name: "replicas", Type: capability.TypeInteger, Required: true},
				{Name: "namespace", Type: capability.TypeString, Default: "default"},
			},
		},
		{
			AgentID: agent, Function: "restart_deployment", ClusterScoped: true,
			Description: "Restart a deployment with a rolling restart",
			Keywords:    []string{"restart", "rollout", "bounce"},
			Params: []capability.Param{
				{Name: "deployment_name", Type: capability.TypeString, Required: true},
				{Name: "namespace", Type: capability.TypeString, Required: true, Description: "Kubernetes namespace"},
			},
		},
		{
			AgentID: agent, Function: "get_pods", ClusterScoped: true,
			Description: "List pods",
			Keywords:    []string{"pods"},
			Params:      []capability.Param{{Name: "namespace", Type: capability.TypeString, Default: "default"}},
		},
		{
			AgentID: agent, Function: "get_logs", ClusterScoped: true,
			Description: "Fetch container logs of a pod",
			Keywords:    []string{"logs", "output"},
			Params: []capability.Param{
				{Name: "pod_name", Type: capability.TypeString, Required: true},
				{Name: "namespace", Type: capability.TypeString, Default: "default"},
				{Name: "container_name", Type: capability.TypeString},
				{Name: "tail_lines", Type: capability.TypeInteger, Default: 100},
			},
		},
		{
			AgentID: agent, Function: "switch_cluster",
			Description: "Change the active cluster",
			Keywords:    []string{"switch", "use cluster"},
			Params:      []capability.Param{{Name: "cluster_name", Type: capability.TypeString, Required: true}},
		},
	}
}

func newClusters(t *testing.T) *clusterctx.View {
	t.Helper()
	m, err := clusterctx.NewManager(
		clusterctx.Context{ID: "staging"},
		clusterctx.Context{ID: "minerva"},
		clusterctx.Context{ID: "prod-eu"},
	)
	require.NoError(t, err)
	return m.NewView()
}

func resolve(t *testing.T, req Request) Outcome {
	t.Helper()
	if req.Candidates == nil {
		req.Candidates = catalogue()
	}
	if req.Clusters == nil {
		req.Clusters = newClusters(t)
	}
	out, err := NewRuleResolver(0).Resolve(context.Background(), req)
	require.NoError(t, err)
	return out
}

func requireCall(t *testing.T, out Outcome) *ResolvedCall {
	t.Helper()
	call, ok := out.(*ResolvedCall)
	require.Truef(t, ok, "expected *ResolvedCall, got %T", out)
	return call
}

func TestResolveScaleOnActiveCluster(t *testing.T) {
	call := requireCall(t, resolve(t, Request{Utterance: "scale web-app to 5 replicas"}))

	assert.Equal(t, capability.Ref{AgentID: agent, Function: "scale_deployment"}, call.Ref())
	assert.Equal(t, "web-app", call.Params["deployment_name"])
	assert.Equal(t, 5, call.Params["replicas"])
	assert.Equal(t, "default", call.Params["namespace"])
	assert.Equal(t, "staging", call.Cluster)
	assert.GreaterOrEqual(t, call.Confidence, DefaultConfidenceFloor)
}

func TestResolveClarificationThenContinuation(t *testing.T) {
	out := resolve(t, Request{Utterance: "restart nginx"})

	clar, ok := out.(*Clarification)
	require.Truef(t, ok, "expected *Clarification, got %T", out)
	assert.Equal(t, []string{"namespace"}, clar.Missing)
	assert.Contains(t, clar.Prompt, "namespace")
	assert.Equal(t, "nginx", clar.Call.Params["deployment_name"])

	call := requireCall(t, resolve(t, Request{Utterance: "in production", Pending: clar}))
	assert.Equal(t, "restart_deployment", call.Capability.Function)
	assert.Equal(t, "nginx", call.Params["deployment_name"])
	assert.Equal(t, "production", call.Params["namespace"])
	assert.Equal(t, "staging", call.Cluster)

	// The pending call itself is untouched.
	_, bound := clar.Call.Params["namespace"]
	assert.False(t, bound)
}

func TestResolveContinuationVariants(t *testing.T) {
	clar, ok := resolve(t, Request{Utterance: "restart nginx"}).(*Clarification)
	require.True(t, ok)

	tests := []struct {
		name      string
		utterance string
		namespace string
		cluster   string
	}{
		{name: "bare value", utterance: "production", namespace: "production", cluster: "staging"},
		{name: "keyword and value", utterance: "namespace payments", namespace: "payments", cluster: "staging"},
		{name: "cluster named too", utterance: "in production on minerva", namespace: "production", cluster: "minerva"},
		{name: "namespace named like a cluster", utterance: "in prod-eu", namespace: "prod-eu", cluster: "staging"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := requireCall(t, resolve(t, Request{Utterance: tt.utterance, Pending: clar}))
			assert.Equal(t, tt.namespace, call.Params["namespace"])
			assert.Equal(t, "nginx", call.Params["deployment_name"])
			assert.Equal(t, tt.cluster, call.Cluster)
		})
	}
}

func TestResolveContinuationReprompts(t *testing.T) {
	clar, ok := resolve(t, Request{Utterance: "restart nginx"}).(*Clarification)
	require.True(t, ok)

	out := resolve(t, Request{Utterance: "what do you mean", Pending: clar})
	again, ok := out.(*Clarification)
	require.Truef(t, ok, "expected *Clarification, got %T", out)
	assert.Equal(t, clar.Missing, again.Missing)
	assert.Equal(t, "nginx", again.Call.Params["deployment_name"])
}

func TestResolveContinuationAbandoned(t *testing.T) {
	clar, ok := resolve(t, Request{Utterance: "restart nginx"}).(*Clarification)
	require.True(t, ok)

	call := requireCall(t, resolve(t, Request{Utterance: "actually scale web-app to 2 replicas", Pending: clar}))
	assert.Equal(t, "scale_deployment", call.Capability.Function)
}

func TestResolveContinuationStartsNewIntent(t *testing.T) {
	clar, ok := resolve(t, Request{Utterance: "restart nginx"}).(*Clarification)
	require.True(t, ok)

	call := requireCall(t, resolve(t, Request{Utterance: "get pods", Pending: clar}))
	assert.Equal(t, "get_pods", call.Capability.Function)
	assert.Equal(t, "default", call.Params["namespace"])

	call = requireCall(t, resolve(t, Request{Utterance: "get pods in kube-system", Pending: clar}))
	assert.Equal(t, "get_pods", call.Capability.Function)
	assert.Equal(t, "kube-system", call.Params["namespace"])
}

func TestResolveContinuationRejectsActionWords(t *testing.T) {
	clar, ok := resolve(t, Request{Utterance: "restart nginx"}).(*Clarification)
	require.True(t, ok)

	for _, utterance := range []string{"show", "show pods", "restart", "list", "describe it", "delete"} {
		t.Run(utterance, func(t *testing.T) {
			out := resolve(t, Request{Utterance: utterance, Pending: clar})
			switch out := out.(type) {
			case *ResolvedCall:
				assert.NotEqual(t, "restart_deployment", out.Capability.Function)
			case *Clarification:
				_, bound := out.Call.Params["namespace"]
				assert.False(t, bound)
				assert.Contains(t, out.Missing, "namespace")
			}
		})
	}
}

func TestResolveContinuationCancelled(t *testing.T) {
	clar, ok := resolve(t, Request{Utterance: "restart nginx"}).(*Clarification)
	require.True(t, ok)

	for _, utterance := range []string{"cancel", "Never mind.", "forget it", "abort!"} {
		t.Run(utterance, func(t *testing.T) {
			nm, ok := resolve(t, Request{Utterance: utterance, Pending: clar}).(*NoMatch)
			require.True(t, ok)
			require.NotNil(t, nm.Dropped)
			assert.Equal(t, "restart_deployment", nm.Dropped.Capability.Function)
			assert.Equal(t, "nginx", nm.Dropped.Params["deployment_name"])
		})
	}
}

func TestResolveNoMatch(t *testing.T) {
	out := resolve(t, Request{Utterance: "make me a sandwich"})

	nm, ok := out.(*NoMatch)
	require.Truef(t, ok, "expected *NoMatch, got %T", out)
	assert.Equal(t, "make me a sandwich", nm.Utterance)
	assert.Empty(t, nm.Suggestions)
}

func TestResolveNoCandidates(t *testing.T) {
	out, err := NewRuleResolver(0).Resolve(context.Background(), Request{
		Utterance:  "restart nginx",
		Candidates: []capability.Capability{},
		Clusters:   newClusters(t),
	})
	require.NoError(t, err)
	assert.IsType(t, &NoMatch{}, out)
}

func TestResolveBelowFloorSuggests(t *testing.T) {
	out, err := NewRuleResolver(0.99).Resolve(context.Background(), Request{
		Utterance:  "restart nginx",
		Candidates: catalogue(),
		Clusters:   newClusters(t),
	})
	require.NoError(t, err)

	nm, ok := out.(*NoMatch)
	require.True(t, ok)
	require.NotEmpty(t, nm.Suggestions)
	assert.Equal(t, "restart_deployment", nm.Suggestions[0].Function)
}

func TestResolveIsDeterministic(t *testing.T) {
	hist := []history.Turn{
		{Index: 1, Role: history.RoleUser, Text: "restart nginx in production"},
		{Index: 2, Role: history.RoleResolver, Call: &history.CallRecord{
			Agent: agent, Function: "restart_deployment",
			Params: map[string]any{"deployment_name": "nginx", "namespace": "production"},
		}},
	}
	utterances := []string{
		"scale web-app to 5 replicas",
		"restart nginx",
		"make me a sandwich",
		"get logs for api-0",
		"deployment",
	}

	for _, u := range utterances {
		t.Run(u, func(t *testing.T) {
			req := Request{Utterance: u, History: hist}
			first := resolve(t, req)
			for i := 0; i < 5; i++ {
				assert.Equal(t, first, resolve(t, req))
			}
		})
	}
}

func TestResolveCarriesOverPreviousParams(t *testing.T) {
	hist := []history.Turn{
		{Index: 1, Role: history.RoleResolver, Call: &history.CallRecord{
			Agent: agent, Function: "restart_deployment",
			// Values decoded from storage arrive as JSON types.
			Params: map[string]any{"deployment_name": "nginx", "namespace": "production", "replicas": float64(7)},
		}},
	}

	t.Run("previous value beats default", func(t *testing.T) {
		call := requireCall(t, resolve(t, Request{Utterance: "scale it to 3 replicas", History: hist}))
		assert.Equal(t, "nginx", call.Params["deployment_name"])
		assert.Equal(t, 3, call.Params["replicas"])
		assert.Equal(t, "production", call.Params["namespace"])
	})

	t.Run("utterance beats previous value", func(t *testing.T) {
		call := requireCall(t, resolve(t, Request{Utterance: "scale it to 3 replicas in payments", History: hist}))
		assert.Equal(t, "payments", call.Params["namespace"])
	})

	t.Run("converted integer", func(t *testing.T) {
		call := requireCall(t, resolve(t, Request{Utterance: "scale web-app", History: hist}))
		assert.Equal(t, 7, call.Params["replicas"])
	})

	t.Run("all namespaces is not carried", func(t *testing.T) {
		h := []history.Turn{{Index: 1, Role: history.RoleResolver, Call: &history.CallRecord{
			Agent: agent, Function: "get_pods", Params: map[string]any{"namespace": AllNamespaces},
		}}}
		out := resolve(t, Request{Utterance: "restart nginx", History: h})
		assert.IsType(t, &Clarification{}, out)
	})
}

func TestResolveCarriesOnlyFromPrecedingCycle(t *testing.T) {
	restart := &history.CallRecord{
		Agent: agent, Function: "restart_deployment",
		Params: map[string]any{"deployment_name": "nginx", "namespace": "production"},
	}
	preceding := []history.Turn{
		{Index: 1, Role: history.RoleUser, Text: "restart nginx in production"},
		{Index: 2, Role: history.RoleResolver, Call: restart},
		{Index: 3, Role: history.RoleSystem, Text: "Restarted."},
		{Index: 4, Role: history.RoleUser, Text: "scale it to 3 replicas"},
	}
	call := requireCall(t, resolve(t, Request{Utterance: "scale it to 3 replicas", History: preceding}))
	assert.Equal(t, "production", call.Params["namespace"])
	assert.Equal(t, "nginx", call.Params["deployment_name"])

	// A no-match cycle in between breaks the chain.
	stale := append(preceding[:3:3],
		history.Turn{Index: 4, Role: history.RoleUser, Text: "make me a sandwich"},
		history.Turn{Index: 5, Role: history.RoleSystem, Text: "Sorry, I couldn't match that."},
		history.Turn{Index: 6, Role: history.RoleUser, Text: "scale web-app to 3 replicas"},
	)
	call = requireCall(t, resolve(t, Request{Utterance: "scale web-app to 3 replicas", History: stale}))
	assert.Equal(t, "default", call.Params["namespace"])
}

func TestResolveClusterTargets(t *testing.T) {
	tests := []struct {
		name      string
		utterance string
		cluster   string
		namespace string
	}{
		{name: "on known cluster", utterance: "restart nginx in kube-system on minerva", cluster: "minerva", namespace: "kube-system"},
		{name: "explicit cluster keyword", utterance: "restart nginx in web on cluster prod-eu", cluster: "prod-eu", namespace: "web"},
		{name: "in known cluster", utterance: "get pods in minerva", cluster: "minerva", namespace: "default"},
		{name: "cluster phrase", utterance: "get pods in kube-system on the minerva cluster", cluster: "minerva", namespace: "kube-system"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := requireCall(t, resolve(t, Request{Utterance: tt.utterance}))
			assert.Equal(t, tt.cluster, call.Cluster)
			assert.Equal(t, tt.namespace, call.Params["namespace"])
		})
	}

	t.Run("unknown cluster fails the turn", func(t *testing.T) {
		_, err := NewRuleResolver(0).Resolve(context.Background(), Request{
			Utterance:  "get pods on cluster mars",
			Candidates: catalogue(),
			Clusters:   newClusters(t),
		})
		assert.ErrorIs(t, err, clusterctx.ErrUnknownCluster)
	})
}

func TestResolveExtraction(t *testing.T) {
	tests := []struct {
		name      string
		utterance string
		function  string
		params    map[string]any
	}{
		{
			name:      "logs with container and tail",
			utterance: "show the last 50 lines of logs for api-0 container web",
			function:  "get_logs",
			params:    map[string]any{"pod_name": "api-0", "container_name": "web", "tail_lines": 50, "namespace": "default"},
		},
		{
			name:      "all namespaces",
			utterance: "get pods across all namespaces",
			function:  "get_pods",
			params:    map[string]any{"namespace": AllNamespaces},
		},
		{
			name:      "explicit key values",
			utterance: "scale_deployment deployment_name=api replicas=0 namespace=payments",
			function:  "scale_deployment",
			params:    map[string]any{"deployment_name": "api", "replicas": 0, "namespace": "payments"},
		},
		{
			name:      "object before noun",
			utterance: "please restart the checkout deployment in shop",
			function:  "restart_deployment",
			params:    map[string]any{"deployment_name": "checkout", "namespace": "shop"},
		},
		{
			name:      "switch cluster",
			utterance: "switch to minerva",
			function:  "switch_cluster",
			params:    map[string]any{"cluster_name": "minerva"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := requireCall(t, resolve(t, Request{Utterance: tt.utterance}))
			assert.Equal(t, tt.function, call.Capability.Function)
			assert.Equal(t, tt.params, call.Params)
		})
	}
}

func TestSortMatchesTieBreak(t *testing.T) {
	mk := func(agentID, fn string, score float64, exact bool) capability.Match {
		return capability.Match{
			Capability: capability.Capability{AgentID: agentID, Function: fn},
			Score:      score,
			ExactName:  exact,
		}
	}

	t.Run("recent agent first", func(t *testing.T) {
		m := []capability.Match{mk("aks-agent", "get_pods", 0.6, false), mk("k8s-agent", "get_pods", 0.6, false)}
		sortMatches(m, "k8s-agent")
		assert.Equal(t, "k8s-agent", m[0].Capability.AgentID)
	})

	t.Run("exact name before fuzzy", func(t *testing.T) {
		m := []capability.Match{mk("a", "alpha", 1.0, false), mk("b", "beta", 1.0, true)}
		sortMatches(m, "")
		assert.Equal(t, "beta", m[0].Capability.Function)
	})

	t.Run("lexical order last", func(t *testing.T) {
		m := []capability.Match{mk("k8s-agent", "get_pods", 0.6, false), mk("aks-agent", "get_pods", 0.6, false)}
		sortMatches(m, "")
		assert.Equal(t, "aks-agent", m[0].Capability.AgentID)
	})

	t.Run("score dominates", func(t *testing.T) {
		m := []capability.Match{mk("k8s-agent", "a", 0.5, true), mk("aks-agent", "b", 0.7, false)}
		sortMatches(m, "k8s-agent")
		assert.Equal(t, "b", m[0].Capability.Function)
	})
}

func TestResolveTieBreakByRecentAgent(t *testing.T) {
	pods := func(agentID string) capability.Capability {
		return capability.Capability{AgentID: agentID, Function: "get_pods", Keywords: []string{"pods"}}
	}
	candidates := []capability.Capability{pods("aks-agent"), pods("k8s-agent")}

	out := resolve(t, Request{Utterance: "get pods", Candidates: candidates})
	assert.Equal(t, "aks-agent", requireCall(t, out).Capability.AgentID)

	hist := []history.Turn{{Index: 1, Role: history.RoleResolver, Call: &history.CallRecord{Agent: "k8s-agent", Function: "get_logs"}}}
	out = resolve(t, Request{Utterance: "get pods", Candidates: candidates, History: hist})
	assert.Equal(t, "k8s-agent", requireCall(t, out).Capability.AgentID)
}

func TestResolveCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRuleResolver(0).Resolve(ctx, Request{Utterance: "restart nginx"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolvedCallRecord(t *testing.T) {
	call := &ResolvedCall{
		Capability: catalogue()[1],
		Params:     map[string]any{"deployment_name": "nginx"},
		Cluster:    "staging",
		Confidence: 0.7,
	}
	rec := call.Record()
	assert.Equal(t, agent, rec.Agent)
	assert.Equal(t, "restart_deployment", rec.Function)
	assert.Equal(t, []string{"namespace"}, rec.Missing)

	rec.Params["deployment_name"] = "other"
	assert.Equal(t, "nginx", call.Params["deployment_name"])
}
