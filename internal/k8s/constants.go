package k8s

import "time"

const (
	// Service account paths - default Kubernetes in-cluster locations
	DefaultServiceAccountPath = "/var/run/secrets/kubernetes.io/serviceaccount"
	DefaultTokenPath          = DefaultServiceAccountPath + "/token"
	DefaultCACertPath         = DefaultServiceAccountPath + "/ca.crt"

	// Default performance settings
	DefaultQPSLimit   = 20.0
	DefaultBurstLimit = 30
	DefaultTimeout    = 30 * time.Second

	// Client cache
	DefaultClientCacheTTL        = 10 * time.Minute
	DefaultClientCacheMaxEntries = 32

	// InClusterContext names the cluster reached with the pod service account.
	InClusterContext = "in-cluster"

	// SystemNamespace holds the control plane pods counted by ClusterHealth.
	SystemNamespace = "kube-system"

	// RestartedAtAnnotation is the pod template annotation a rollout restart sets.
	RestartedAtAnnotation = "kubectl.kubernetes.io/restartedAt"

	// AllNamespaces lists pods across every namespace.
	AllNamespaces = "all"
)
