package k8s

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/giantswarm/kratos/internal/clusterctx"
	"github.com/giantswarm/kratos/internal/instrumentation"
	"github.com/giantswarm/kratos/internal/logging"
)

// ClientConfig holds the settings shared by every cluster client.
type ClientConfig struct {
	QPSLimit   float32
	BurstLimit int
	Timeout    time.Duration

	// DryRun sends every mutating request with dryRun=All.
	DryRun bool

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.QPSLimit == 0 {
		c.QPSLimit = DefaultQPSLimit
	}
	if c.BurstLimit == 0 {
		c.BurstLimit = DefaultBurstLimit
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// RestConfig builds the REST config of a cluster descriptor: in-cluster
// service account, or the kubeconfig loading rules with the descriptor's
// context and server overrides.
func RestConfig(desc clusterctx.Descriptor, cfg ClientConfig) (*rest.Config, error) {
	cfg = cfg.withDefaults()

	var restConfig *rest.Config
	var err error
	if desc.InCluster {
		restConfig, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create in-cluster rest config: %w", err)
		}
	} else {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		if desc.Kubeconfig != "" {
			loadingRules.ExplicitPath = expandHome(desc.Kubeconfig)
		}
		overrides := &clientcmd.ConfigOverrides{CurrentContext: desc.KubeContext}
		if desc.Server != "" {
			overrides.ClusterInfo.Server = desc.Server
		}

		restConfig, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create rest config for context %q: %w", desc.KubeContext, err)
		}
	}

	restConfig.QPS = cfg.QPSLimit
	restConfig.Burst = cfg.BurstLimit
	restConfig.Timeout = cfg.Timeout
	return restConfig, nil
}

// NewClientFactory returns a Factory building real clients from descriptors.
func NewClientFactory(cfg ClientConfig) Factory {
	cfg = cfg.withDefaults()
	return func(cluster clusterctx.Context) (*Clients, error) {
		restConfig, err := RestConfig(cluster.Descriptor, cfg)
		if err != nil {
			return nil, err
		}

		typed, err := kubernetes.NewForConfig(restConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create clientset: %w", err)
		}
		dyn, err := dynamic.NewForConfig(restConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create dynamic client: %w", err)
		}
		disc, err := discovery.NewDiscoveryClientForConfig(restConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create discovery client: %w", err)
		}

		cfg.Logger.Debug("created cluster clients",
			logging.Cluster(cluster.ID),
			logging.Host(restConfig.Host),
		)

		return &Clients{
			Cluster: cluster.ID,
			Typed:   typed,
			Dynamic: dyn,
			Mapper:  restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(disc)),
			DryRun:  cfg.DryRun,
			Metrics: cfg.Metrics,
			Logger:  logging.WithCluster(cfg.Logger, cluster.ID),
		}, nil
	}
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
