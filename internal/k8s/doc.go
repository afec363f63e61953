// Package k8s talks to the Kubernetes API of the clusters kratos manages.
//
// Clients bundles the typed, dynamic and REST-mapping clients of one cluster.
// ClientCache builds them lazily per cluster descriptor and keeps them for a
// bounded time. The operations on Clients are the ones the in-process
// Kubernetes agent exposes: listing pods and logs, restarting and scaling
// deployments, applying manifests and reporting node and cluster health.
//
// Every operation honors DryRun by sending server-side dry-run requests.
package k8s
