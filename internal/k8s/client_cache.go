package k8s

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/giantswarm/kratos/internal/clusterctx"
	"github.com/giantswarm/kratos/internal/logging"
)

// Factory builds the clients of one cluster.
type Factory func(cluster clusterctx.Context) (*Clients, error)

// ClientCache keeps the clients of recently used clusters. Concurrent misses
// for the same cluster build the clients once.
type ClientCache struct {
	factory Factory
	cache   *expirable.LRU[string, *Clients]
	group   singleflight.Group
	logger  *slog.Logger
}

// NewClientCache creates a cache of at most size entries that expire after
// ttl. Zero values select the defaults.
func NewClientCache(factory Factory, size int, ttl time.Duration, logger *slog.Logger) *ClientCache {
	if size <= 0 {
		size = DefaultClientCacheMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultClientCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &ClientCache{factory: factory, logger: logger}
	c.cache = expirable.NewLRU(size, func(key string, _ *Clients) {
		c.logger.Debug("evicted cluster clients", slog.String("key", key))
	}, ttl)
	return c
}

// cacheKey covers the descriptor so an edited cluster entry gets new clients.
func cacheKey(cluster clusterctx.Context) string {
	d := cluster.Descriptor
	return fmt.Sprintf("%s|%s|%s|%s|%t", cluster.ID, d.Kubeconfig, d.KubeContext, d.Server, d.InCluster)
}

// Get returns the clients of a cluster, building them on a miss.
func (c *ClientCache) Get(ctx context.Context, cluster clusterctx.Context) (*Clients, error) {
	key := cacheKey(cluster)
	if clients, ok := c.cache.Get(key); ok {
		return clients, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if clients, ok := c.cache.Get(key); ok {
			return clients, nil
		}
		clients, err := c.factory(cluster)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, clients)
		c.logger.Debug("cached cluster clients", logging.Cluster(cluster.ID))
		return clients, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("cluster %q: %w", cluster.ID, res.Err)
		}
		return res.Val.(*Clients), nil
	}
}

// Invalidate drops every cached entry of a cluster ID.
func (c *ClientCache) Invalidate(clusterID string) {
	prefix := clusterID + "|"
	for _, key := range c.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Remove(key)
		}
	}
}

// Len returns the number of cached clusters.
func (c *ClientCache) Len() int {
	return c.cache.Len()
}
