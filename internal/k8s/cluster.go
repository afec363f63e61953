package k8s

import (
	"context"
	"fmt"
	"math"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/giantswarm/kratos/internal/instrumentation"
)

// Cluster health status values.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// NodeInfo describes one node's readiness and resources.
type NodeInfo struct {
	Name           string            `json:"name"`
	Ready          bool              `json:"ready"`
	Status         string            `json:"status"`
	KubeletVersion string            `json:"kubelet_version,omitempty"`
	OS             string            `json:"os,omitempty"`
	Capacity       map[string]string `json:"capacity"`
	Allocatable    map[string]string `json:"allocatable"`
}

// Health is the summary of get_cluster_health.
type Health struct {
	Cluster           string  `json:"cluster"`
	Score             float64 `json:"health_score"`
	Status            string  `json:"status"`
	ReadyNodes        int     `json:"ready_nodes"`
	TotalNodes        int     `json:"total_nodes"`
	RunningSystemPods int     `json:"running_system_pods"`
	TotalSystemPods   int     `json:"total_system_pods"`
}

var trackedResources = []corev1.ResourceName{corev1.ResourceCPU, corev1.ResourceMemory, corev1.ResourcePods}

// NodeMetrics lists nodes sorted by name.
func (c *Clients) NodeMetrics(ctx context.Context) (_ []NodeInfo, err error) {
	ctx, done := c.observe(ctx, instrumentation.OperationList, "")
	defer func() { done(err) }()

	nodes, err := c.Typed.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	out := make([]NodeInfo, 0, len(nodes.Items))
	for _, node := range nodes.Items {
		info := NodeInfo{
			Name:           node.Name,
			Ready:          nodeReady(&node),
			Status:         "NotReady",
			KubeletVersion: node.Status.NodeInfo.KubeletVersion,
			OS:             node.Status.NodeInfo.OSImage,
			Capacity:       resourceStrings(node.Status.Capacity),
			Allocatable:    resourceStrings(node.Status.Allocatable),
		}
		if info.Ready {
			info.Status = "Ready"
		}
		out = append(out, info)
	}
	return out, nil
}

// ClusterHealth scores the cluster as 100 × ready/total nodes × running/total
// kube-system pods, rounded to two decimals. Empty sets do not lower the score.
func (c *Clients) ClusterHealth(ctx context.Context) (*Health, error) {
	nodes, err := c.NodeMetrics(ctx)
	if err != nil {
		return nil, err
	}
	pods, err := c.ListPods(ctx, SystemNamespace)
	if err != nil {
		return nil, err
	}

	h := &Health{Cluster: c.Cluster, TotalNodes: len(nodes), TotalSystemPods: len(pods)}
	for _, n := range nodes {
		if n.Ready {
			h.ReadyNodes++
		}
	}
	for _, p := range pods {
		if p.Status == string(corev1.PodRunning) {
			h.RunningSystemPods++
		}
	}

	score := 100.0
	if h.TotalNodes > 0 {
		score *= float64(h.ReadyNodes) / float64(h.TotalNodes)
	}
	if h.TotalSystemPods > 0 {
		score *= float64(h.RunningSystemPods) / float64(h.TotalSystemPods)
	}
	h.Score = math.Round(score*100) / 100

	switch {
	case h.Score >= 90:
		h.Status = HealthHealthy
	case h.Score >= 50:
		h.Status = HealthDegraded
	default:
		h.Status = HealthUnhealthy
	}
	return h, nil
}

func nodeReady(node *corev1.Node) bool {
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

func resourceStrings(list corev1.ResourceList) map[string]string {
	out := make(map[string]string, len(trackedResources))
	for _, name := range trackedResources {
		if q, ok := list[name]; ok {
			out[string(name)] = q.String()
		} else {
			out[string(name)] = "unknown"
		}
	}
	return out
}
