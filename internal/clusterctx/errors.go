package clusterctx

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCluster is returned when a cluster ID or name is not registered.
	ErrUnknownCluster = errors.New("unknown cluster")

	// ErrNoActiveCluster is returned when no cluster is known.
	ErrNoActiveCluster = errors.New("no active cluster")

	// ErrDuplicateCluster is returned when a cluster ID is registered twice.
	ErrDuplicateCluster = errors.New("duplicate cluster")
)

// ClusterError attaches the cluster name to an error.
type ClusterError struct {
	Cluster string
	Err     error
}

func (e *ClusterError) Error() string {
	return fmt.Sprintf("cluster %q: %v", e.Cluster, e.Err)
}

func (e *ClusterError) Unwrap() error {
	return e.Err
}

// UserFacingError returns a message safe to show in a conversation.
func (e *ClusterError) UserFacingError() string {
	switch {
	case errors.Is(e.Err, ErrUnknownCluster):
		return fmt.Sprintf("I don't know a cluster called %q.", e.Cluster)
	case errors.Is(e.Err, ErrDuplicateCluster):
		return fmt.Sprintf("Cluster %q is configured twice.", e.Cluster)
	default:
		return e.Error()
	}
}
