package k8sagent

import (
	"time"

	"github.com/giantswarm/kratos/internal/capability"
)

// AgentID is the identity of the in-process Kubernetes agent.
const AgentID = "k8s-agent"

// Functions of the catalogue.
const (
	FuncGetPods           = "get_pods"
	FuncRestartDeployment = "restart_deployment"
	FuncScaleDeployment   = "scale_deployment"
	FuncApplyYAML         = "apply_yaml"
	FuncGetNodeMetrics    = "get_node_metrics"
	FuncGetClusterHealth  = "get_cluster_health"
	FuncGetLogs           = "get_logs"
	FuncListClusters      = "list_clusters"
	FuncSwitchCluster     = "switch_cluster"
)

// Parameter names.
const (
	ParamNamespace      = "namespace"
	ParamDeploymentName = "deployment_name"
	ParamReplicas       = "replicas"
	ParamYAMLContent    = "yaml_content"
	ParamPodName        = "pod_name"
	ParamContainerName  = "container_name"
	ParamTailLines      = "tail_lines"
	ParamClusterName    = "cluster_name"
)

const (
	defaultNamespace = "default"
	defaultTailLines = 100
)

// Catalogue returns the agent's capabilities.
func Catalogue() []capability.Capability {
	namespace := capability.Param{
		Name:        ParamNamespace,
		Type:        capability.TypeString,
		Default:     defaultNamespace,
		Description: "Kubernetes namespace",
	}

	return []capability.Capability{
		{
			AgentID:       AgentID,
			Function:      FuncGetPods,
			Description:   "List pods and their status in a namespace, or in all namespaces",
			Keywords:      []string{"pods", "pod", "containers"},
			Params:        []capability.Param{withDescription(namespace, `Kubernetes namespace, or "all"`)},
			ClusterScoped: true,
		},
		{
			AgentID:     AgentID,
			Function:    FuncRestartDeployment,
			Description: "Restart a deployment with a rolling restart of its pods",
			Keywords:    []string{"restart", "rollout", "bounce"},
			Params: []capability.Param{
				{Name: ParamDeploymentName, Type: capability.TypeString, Required: true, Description: "Deployment to restart"},
				{Name: ParamNamespace, Type: capability.TypeString, Required: true, Description: "Kubernetes namespace"},
			},
			ClusterScoped: true,
		},
		{
			AgentID:     AgentID,
			Function:    FuncScaleDeployment,
			Description: "Scale a deployment to a number of replicas",
			Keywords:    []string{"scale", "replicas", "resize"},
			Params: []capability.Param{
				{Name: ParamDeploymentName, Type: capability.TypeString, Required: true, Description: "Deployment to scale"},
				{Name: ParamReplicas, Type: capability.TypeInteger, Required: true, Description: "Desired replica count", Minimum: capability.Float(0)},
				namespace,
			},
			ClusterScoped: true,
		},
		{
			AgentID:     AgentID,
			Function:    FuncApplyYAML,
			Description: "Apply a YAML manifest, creating or updating each object",
			Keywords:    []string{"apply", "manifest", "yaml"},
			Params: []capability.Param{
				{Name: ParamYAMLContent, Type: capability.TypeString, Required: true, Description: "Manifest to apply"},
			},
			Timeout:       2 * time.Minute,
			ClusterScoped: true,
		},
		{
			AgentID:       AgentID,
			Function:      FuncGetNodeMetrics,
			Description:   "Show node readiness, capacity and allocatable resources",
			Keywords:      []string{"nodes", "node", "capacity"},
			ClusterScoped: true,
		},
		{
			AgentID:       AgentID,
			Function:      FuncGetClusterHealth,
			Description:   "Report an overall health score of the cluster",
			Keywords:      []string{"health", "healthy"},
			ClusterScoped: true,
		},
		{
			AgentID:     AgentID,
			Function:    FuncGetLogs,
			Description: "Fetch the recent log lines of a pod container",
			Keywords:    []string{"logs", "log", "output", "tail"},
			Params: []capability.Param{
				{Name: ParamPodName, Type: capability.TypeString, Required: true, Description: "Pod to read logs from"},
				namespace,
				{Name: ParamContainerName, Type: capability.TypeString, Description: "Container of the pod"},
				{Name: ParamTailLines, Type: capability.TypeInteger, Default: defaultTailLines, Description: "Number of lines", Minimum: capability.Float(1)},
			},
			ClusterScoped: true,
		},
		{
			AgentID:     AgentID,
			Function:    FuncListClusters,
			Description: "List the known clusters and show which one is active",
			Keywords:    []string{"clusters", "contexts"},
			Idempotent:  true,
		},
		{
			AgentID:     AgentID,
			Function:    FuncSwitchCluster,
			Description: "Change the active cluster of the conversation",
			Keywords:    []string{"switch", "use cluster"},
			Params: []capability.Param{
				{Name: ParamClusterName, Type: capability.TypeString, Required: true, Description: "Cluster to switch to"},
			},
		},
	}
}

// IsSessionFunction reports whether the function operates on the session's
// cluster view instead of a cluster API.
func IsSessionFunction(function string) bool {
	return function == FuncListClusters || function == FuncSwitchCluster
}

func withDescription(p capability.Param, description string) capability.Param {
	p.Description = description
	return p
}
