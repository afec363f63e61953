package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/kratos/internal/capability"
)

const remoteOnly = `
agents:
  - id: aks-agent
    endpoint: http://aks-agent:8080
    functions:
      - name: get_node_pools
        description: List AKS node pools
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWatcherReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kratos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(remoteOnly), 0o600))

	registry := capability.NewRegistry()
	discovered := capability.Capability{AgentID: "dns-agent", Function: "list_zones"}
	var reloaded atomic.Int32
	w := NewWatcher(path, registry,
		WithWatchLogger(quietLogger()),
		WithDiscovered([]capability.Capability{discovered}),
		WithReloadHook(func(*Config) { reloaded.Add(1) }))

	require.NoError(t, w.Reload())
	assert.Equal(t, 2, registry.Snapshot().Len())
	_, err := registry.Lookup("dns-agent", "list_zones")
	require.NoError(t, err)
	gen := registry.Generation()

	t.Run("invalid file keeps snapshot", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("agents: [{id: x}]"), 0o600))
		err := w.Reload()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Equal(t, gen, registry.Generation())
		assert.Equal(t, 2, registry.Snapshot().Len())
	})

	assert.Equal(t, int32(1), reloaded.Load())
}

func TestWatcherRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kratos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(remoteOnly), 0o600))

	registry := capability.NewRegistry()
	w := NewWatcher(path, registry, WithWatchLogger(quietLogger()), WithDebounce(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Keep touching the file until the watcher has been registered and fired.
	i := 0
	require.Eventually(t, func() bool {
		i++
		content := remoteOnly + fmt.Sprintf("      - name: fn_%d\n", i)
		_ = os.WriteFile(path, []byte(content), 0o600)
		return registry.Generation() > 0
	}, 5*time.Second, 100*time.Millisecond)

	assert.GreaterOrEqual(t, registry.Snapshot().Len(), 2)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}

	assert.ErrorIs(t, w.Run(context.Background()), ErrWatcherClosed)
}
