package instrumentation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{ServiceName: "kratos"})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.Metrics())

	rec := httptest.NewRecorder()
	p.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderRejectsUnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, MetricsExporter: "statsd"})
	assert.Error(t, err)
}

func TestPrometheusProviderExposesMetrics(t *testing.T) {
	ctx := context.Background()
	p, err := NewProvider(ctx, Config{
		ServiceName:     "kratos-test",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
	})
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(ctx) }()

	m := p.Metrics()
	require.NotNil(t, m)
	m.RecordTurn(ctx, "executed", time.Millisecond)
	m.RecordExecution(ctx, "k8s-agent", "get_pods", "ok", time.Millisecond)
	m.IncrementActiveSessions(ctx)

	srv := httptest.NewServer(p.MetricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	for _, name := range []string{"kratos_turns_total", "kratos_executions_total", "kratos_active_sessions"} {
		assert.Contains(t, string(body), name)
	}
}
