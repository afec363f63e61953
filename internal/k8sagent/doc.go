// Package k8sagent is the in-process "k8s-agent": its capability catalogue
// and the executor backend that runs those functions against the cluster
// selected for a call.
//
// list_clusters and switch_cluster belong to the catalogue but operate on a
// session's cluster view, so the orchestrator handles them and the backend
// rejects them.
package k8sagent
