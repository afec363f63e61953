package k8s

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"k8s.io/client-go/tools/clientcmd"

	"github.com/giantswarm/kratos/internal/clusterctx"
)

// ErrNoClusters is returned when neither a kubeconfig nor an in-cluster
// service account is available.
var ErrNoClusters = errors.New("no kubeconfig contexts and not running in a cluster")

// DiscoverClusters turns the contexts of a kubeconfig into cluster contexts,
// sorted by name, with the kubeconfig's current context active. An empty
// path uses the default loading rules ($KUBECONFIG, ~/.kube/config). Without
// any context the in-cluster service account is used when present.
func DiscoverClusters(kubeconfig string) ([]clusterctx.Context, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		loadingRules.ExplicitPath = expandHome(kubeconfig)
	}
	raw, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{}).RawConfig()
	if err != nil && kubeconfig != "" {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}

	if len(raw.Contexts) == 0 {
		if inCluster() {
			return []clusterctx.Context{{
				ID:          InClusterContext,
				DisplayName: InClusterContext,
				Descriptor:  clusterctx.Descriptor{InCluster: true},
				Active:      true,
			}}, nil
		}
		return nil, ErrNoClusters
	}

	names := make([]string, 0, len(raw.Contexts))
	for name := range raw.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]clusterctx.Context, 0, len(names))
	for _, name := range names {
		out = append(out, clusterctx.Context{
			ID:          name,
			DisplayName: name,
			Descriptor:  clusterctx.Descriptor{Kubeconfig: kubeconfig, KubeContext: name},
			Active:      name == raw.CurrentContext,
		})
	}
	return out, nil
}

func inCluster() bool {
	if os.Getenv("KUBERNETES_SERVICE_HOST") == "" {
		return false
	}
	_, err := os.Stat(DefaultTokenPath)
	return err == nil
}
