package k8s

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/kratos/internal/clusterctx"
)

func TestClientCacheBuildsOnce(t *testing.T) {
	var builds atomic.Int32
	factory := func(cluster clusterctx.Context) (*Clients, error) {
		builds.Add(1)
		time.Sleep(10 * time.Millisecond)
		return &Clients{Cluster: cluster.ID}, nil
	}
	cache := NewClientCache(factory, 0, 0, nil)
	cluster := clusterctx.Context{ID: "prod", Descriptor: clusterctx.Descriptor{KubeContext: "prod"}}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clients, err := cache.Get(context.Background(), cluster)
			assert.NoError(t, err)
			assert.Equal(t, "prod", clients.Cluster)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	assert.Equal(t, 1, cache.Len())

	cache.Invalidate("prod")
	assert.Equal(t, 0, cache.Len())

	_, err := cache.Get(context.Background(), cluster)
	require.NoError(t, err)
	assert.Equal(t, int32(2), builds.Load())
}

func TestClientCacheInvalidateKeepsOtherClusters(t *testing.T) {
	cache := NewClientCache(func(cluster clusterctx.Context) (*Clients, error) {
		return &Clients{Cluster: cluster.ID}, nil
	}, 0, 0, nil)

	for _, id := range []string{"prod", "prod-eu", "staging"} {
		_, err := cache.Get(context.Background(), clusterctx.Context{ID: id})
		require.NoError(t, err)
	}

	cache.Invalidate("prod")
	assert.Equal(t, 2, cache.Len())
}

func TestClientCacheFactoryError(t *testing.T) {
	boom := errors.New("bad kubeconfig")
	cache := NewClientCache(func(clusterctx.Context) (*Clients, error) {
		return nil, boom
	}, 0, 0, nil)

	_, err := cache.Get(context.Background(), clusterctx.Context{ID: "dev"})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, `cluster "dev"`)
	assert.Equal(t, 0, cache.Len())
}

func TestClientCacheHonoursContext(t *testing.T) {
	release := make(chan struct{})
	cache := NewClientCache(func(cluster clusterctx.Context) (*Clients, error) {
		<-release
		return &Clients{Cluster: cluster.ID}, nil
	}, 0, 0, nil)
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cache.Get(ctx, clusterctx.Context{ID: "slow"})
	assert.ErrorIs(t, err, context.Canceled)
}
