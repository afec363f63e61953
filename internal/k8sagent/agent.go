package k8sagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/giantswarm/kratos/internal/clusterctx"
	"github.com/giantswarm/kratos/internal/executor"
	"github.com/giantswarm/kratos/internal/k8s"
	"github.com/giantswarm/kratos/internal/logging"
)

// maxListedPods bounds the pods named in a get_pods summary.
const maxListedPods = 10

var (
	// ErrUnknownFunction is returned for functions outside the catalogue.
	ErrUnknownFunction = errors.New("unknown k8s-agent function")

	// ErrSessionFunction is returned for functions the orchestrator handles.
	ErrSessionFunction = errors.New("function operates on the session and is not executed by the backend")

	// ErrNoCluster is returned when a cluster-scoped call has no target.
	ErrNoCluster = errors.New("no target cluster")
)

// ClientSource returns the clients of a cluster.
type ClientSource interface {
	Get(ctx context.Context, cluster clusterctx.Context) (*k8s.Clients, error)
}

// Option configures a Backend.
type Option func(*Backend)

// WithPolicy sets the mutation policy.
func WithPolicy(p Policy) Option {
	return func(b *Backend) { b.policy = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) { b.logger = logger }
}

// WithClock replaces the time source used for restart annotations.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// Backend runs k8s-agent functions. It implements executor.Backend.
type Backend struct {
	clients ClientSource
	policy  Policy
	logger  *slog.Logger
	now     func() time.Time
}

var _ executor.Backend = (*Backend)(nil)

// New creates a backend reading clients from source.
func New(source ClientSource, opts ...Option) *Backend {
	b := &Backend{
		clients: source,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type handler func(ctx context.Context, c *k8s.Clients, params map[string]any) (executor.Outcome, error)

func (b *Backend) handlers() map[string]handler {
	return map[string]handler{
		FuncGetPods:           b.getPods,
		FuncRestartDeployment: b.restartDeployment,
		FuncScaleDeployment:   b.scaleDeployment,
		FuncApplyYAML:         b.applyYAML,
		FuncGetNodeMetrics:    b.nodeMetrics,
		FuncGetClusterHealth:  b.clusterHealth,
		FuncGetLogs:           b.logs,
	}
}

// Invoke implements executor.Backend.
func (b *Backend) Invoke(ctx context.Context, inv executor.Invocation) (executor.Outcome, error) {
	if IsSessionFunction(inv.Function) {
		return executor.Outcome{}, fmt.Errorf("%s: %w", inv.Function, ErrSessionFunction)
	}
	h, ok := b.handlers()[inv.Function]
	if !ok {
		return executor.Outcome{}, fmt.Errorf("%w: %s", ErrUnknownFunction, inv.Function)
	}
	if err := b.policy.Check(inv.Function); err != nil {
		return executor.Outcome{}, err
	}
	if inv.Cluster.ID == "" {
		return executor.Outcome{}, ErrNoCluster
	}

	clients, err := b.clients.Get(ctx, inv.Cluster)
	if err != nil {
		return executor.Outcome{}, err
	}

	b.logger.Debug("invoking k8s-agent function",
		logging.Function(inv.Function),
		logging.Cluster(inv.Cluster.ID),
		logging.Params(inv.Params),
	)
	return h(ctx, clients, inv.Params)
}

func (b *Backend) getPods(ctx context.Context, c *k8s.Clients, params map[string]any) (executor.Outcome, error) {
	namespace := stringParam(params, ParamNamespace, defaultNamespace)
	pods, err := c.ListPods(ctx, namespace)
	if err != nil {
		return executor.Outcome{}, err
	}

	where := fmt.Sprintf("namespace %s", namespace)
	if namespace == k8s.AllNamespaces {
		where = "all namespaces"
	}
	if len(pods) == 0 {
		return executor.Outcome{Summary: fmt.Sprintf("No pods found in %s on cluster %s.", where, c.Cluster), Data: pods}, nil
	}

	var sb strings.Builder
	shown := pods
	if len(pods) > maxListedPods {
		shown = pods[:maxListedPods]
		fmt.Fprintf(&sb, "Found %d pods in %s (showing first %d of %d):", len(pods), where, maxListedPods, len(pods))
	} else {
		fmt.Fprintf(&sb, "Found %d pods in %s:", len(pods), where)
	}
	for _, p := range shown {
		fmt.Fprintf(&sb, "\n  - %s (%s) in %s", p.Name, p.Status, p.Namespace)
	}
	return executor.Outcome{Summary: sb.String(), Data: pods}, nil
}

func (b *Backend) restartDeployment(ctx context.Context, c *k8s.Clients, params map[string]any) (executor.Outcome, error) {
	name, err := requiredString(params, ParamDeploymentName)
	if err != nil {
		return executor.Outcome{}, err
	}
	namespace, err := requiredString(params, ParamNamespace)
	if err != nil {
		return executor.Outcome{}, err
	}

	at := b.now()
	if err := c.RestartDeployment(ctx, namespace, name, at); err != nil {
		return executor.Outcome{}, err
	}
	return executor.Outcome{
		Summary: fmt.Sprintf("Restarted deployment %s in namespace %s on cluster %s%s.", name, namespace, c.Cluster, dryRunNote(c)),
		Data: map[string]any{
			"deployment":   name,
			"namespace":    namespace,
			"restarted_at": at.UTC().Format(time.RFC3339),
		},
	}, nil
}

func (b *Backend) scaleDeployment(ctx context.Context, c *k8s.Clients, params map[string]any) (executor.Outcome, error) {
	name, err := requiredString(params, ParamDeploymentName)
	if err != nil {
		return executor.Outcome{}, err
	}
	replicas, err := intParam(params, ParamReplicas, -1)
	if err != nil {
		return executor.Outcome{}, err
	}
	if replicas < 0 || replicas > math.MaxInt32 {
		return executor.Outcome{}, fmt.Errorf("replicas must be between 0 and %d, got %d", math.MaxInt32, replicas)
	}
	namespace := stringParam(params, ParamNamespace, defaultNamespace)

	res, err := c.ScaleDeployment(ctx, namespace, name, int32(replicas))
	if err != nil {
		return executor.Outcome{}, err
	}

	summary := fmt.Sprintf("Scaled deployment %s in namespace %s on cluster %s from %d to %d replicas%s.",
		name, namespace, c.Cluster, res.Previous, res.Requested, dryRunNote(c))
	if res.DryRun || res.Settled() {
		return executor.Outcome{Summary: summary, Data: res}, nil
	}
	return executor.Outcome{
		Status:  executor.StatusPartial,
		Summary: summary,
		Data:    res,
		Items: []executor.Item{
			{Name: "deployment " + name, Outcome: executor.ItemUpdated, Detail: fmt.Sprintf("spec.replicas set to %d", res.Requested)},
			{Name: "ready replicas", Outcome: executor.ItemFailed, Detail: fmt.Sprintf("%d of %d ready", res.Ready, res.Requested)},
		},
	}, nil
}

func (b *Backend) applyYAML(ctx context.Context, c *k8s.Clients, params map[string]any) (executor.Outcome, error) {
	manifest, err := requiredString(params, ParamYAMLContent)
	if err != nil {
		return executor.Outcome{}, err
	}
	applied, err := c.ApplyManifest(ctx, manifest)
	if err != nil {
		return executor.Outcome{}, err
	}

	counts := map[k8s.ApplyAction]int{}
	items := make([]executor.Item, 0, len(applied))
	for _, obj := range applied {
		counts[obj.Action]++
		items = append(items, executor.Item{Name: obj.Ref, Outcome: string(obj.Action), Detail: obj.Error})
	}
	return executor.Outcome{
		Summary: fmt.Sprintf("Applied %d object(s) on cluster %s: %d created, %d updated, %d failed%s.",
			len(applied), c.Cluster, counts[k8s.ActionCreated], counts[k8s.ActionUpdated], counts[k8s.ActionFailed], dryRunNote(c)),
		Data:  applied,
		Items: items,
	}, nil
}

func (b *Backend) nodeMetrics(ctx context.Context, c *k8s.Clients, _ map[string]any) (executor.Outcome, error) {
	nodes, err := c.NodeMetrics(ctx)
	if err != nil {
		return executor.Outcome{}, err
	}

	ready := 0
	var sb strings.Builder
	for _, n := range nodes {
		if n.Ready {
			ready++
		}
		fmt.Fprintf(&sb, "\n  - %s (%s) cpu %s, memory %s", n.Name, n.Status, n.Allocatable["cpu"], n.Allocatable["memory"])
	}
	return executor.Outcome{
		Summary: fmt.Sprintf("Cluster %s has %d node(s), %d ready:%s", c.Cluster, len(nodes), ready, sb.String()),
		Data:    nodes,
	}, nil
}

func (b *Backend) clusterHealth(ctx context.Context, c *k8s.Clients, _ map[string]any) (executor.Outcome, error) {
	h, err := c.ClusterHealth(ctx)
	if err != nil {
		return executor.Outcome{}, err
	}
	return executor.Outcome{
		Summary: fmt.Sprintf("Cluster %s health: %g%% - %d/%d nodes ready, %d/%d kube-system pods running (%s).",
			c.Cluster, h.Score, h.ReadyNodes, h.TotalNodes, h.RunningSystemPods, h.TotalSystemPods, h.Status),
		Data: h,
	}, nil
}

func (b *Backend) logs(ctx context.Context, c *k8s.Clients, params map[string]any) (executor.Outcome, error) {
	pod, err := requiredString(params, ParamPodName)
	if err != nil {
		return executor.Outcome{}, err
	}
	tail, err := intParam(params, ParamTailLines, defaultTailLines)
	if err != nil {
		return executor.Outcome{}, err
	}
	namespace := stringParam(params, ParamNamespace, defaultNamespace)
	container := stringParam(params, ParamContainerName, "")

	text, err := c.PodLogs(ctx, namespace, pod, container, tail)
	if err != nil {
		return executor.Outcome{}, err
	}
	return executor.Outcome{
		Summary: fmt.Sprintf("Last %d lines of %s/%s:\n%s", tail, namespace, pod, text),
		Data:    map[string]any{"pod": pod, "namespace": namespace, "container": container, "logs": text},
	}, nil
}

func dryRunNote(c *k8s.Clients) string {
	if c.DryRun {
		return " (dry run)"
	}
	return ""
}
