package k8s

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"github.com/giantswarm/kratos/internal/clusterctx"
)

func writeKubeconfig(t *testing.T, current string, contexts ...string) string {
	t.Helper()
	cfg := clientcmdapi.NewConfig()
	for _, name := range contexts {
		cfg.Clusters[name] = &clientcmdapi.Cluster{Server: "https://" + name + ".example.com"}
		cfg.AuthInfos[name] = &clientcmdapi.AuthInfo{Token: "token"}
		cfg.Contexts[name] = &clientcmdapi.Context{Cluster: name, AuthInfo: name}
	}
	cfg.CurrentContext = current

	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, clientcmd.WriteToFile(*cfg, path))
	return path
}

func TestDiscoverClusters(t *testing.T) {
	path := writeKubeconfig(t, "staging", "staging", "prod", "dev")

	clusters, err := DiscoverClusters(path)
	require.NoError(t, err)
	require.Len(t, clusters, 3)

	ids := make([]string, 0, len(clusters))
	var active []string
	for _, c := range clusters {
		ids = append(ids, c.ID)
		if c.Active {
			active = append(active, c.ID)
		}
	}
	assert.Equal(t, []string{"dev", "prod", "staging"}, ids)
	assert.Equal(t, []string{"staging"}, active)
	assert.Equal(t, clusterctx.Descriptor{Kubeconfig: path, KubeContext: "prod"}, clusters[1].Descriptor)
}

func TestDiscoverClustersMissingFile(t *testing.T) {
	_, err := DiscoverClusters(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestRestConfigOverrides(t *testing.T) {
	path := writeKubeconfig(t, "prod", "prod", "dev")

	cfg, err := RestConfig(clusterctx.Descriptor{Kubeconfig: path, KubeContext: "dev"}, ClientConfig{})
	require.NoError(t, err)
	assert.Equal(t, "https://dev.example.com", cfg.Host)
	assert.Equal(t, float32(DefaultQPSLimit), cfg.QPS)
	assert.Equal(t, DefaultBurstLimit, cfg.Burst)

	cfg, err = RestConfig(clusterctx.Descriptor{Kubeconfig: path, Server: "https://override:6443"}, ClientConfig{})
	require.NoError(t, err)
	assert.Equal(t, "https://override:6443", cfg.Host)
}
