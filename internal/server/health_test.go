package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLivenessHandler(t *testing.T) {
	sc, _ := newTestServerContext(t, WithVersion("1.0.0"))
	h := NewHealthChecker(sc)

	rec := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.0.0", resp.Version)
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(h *HealthChecker, sc *ServerContext)
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "ready",
			setup:      func(*HealthChecker, *ServerContext) {},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"ready": "ok", "shutdown": "ok"},
		},
		{
			name:       "marked not ready",
			setup:      func(h *HealthChecker, _ *ServerContext) { h.SetReady(false) },
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not ready",
			wantChecks: map[string]string{"ready": "not ready"},
		},
		{
			name:       "shutting down",
			setup:      func(_ *HealthChecker, sc *ServerContext) { _ = sc.Shutdown() },
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not ready",
			wantChecks: map[string]string{"shutdown": "shutting down"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, _ := newTestServerContext(t)
			h := NewHealthChecker(sc)
			tt.setup(h, sc)

			rec := httptest.NewRecorder()
			h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			var resp HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			for k, v := range tt.wantChecks {
				assert.Equal(t, v, resp.Checks[k], k)
			}
		})
	}
}

func TestDetailedHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		breaker    string
		wantStatus string
	}{
		{name: "all agents closed", breaker: "closed", wantStatus: "ok"},
		{name: "open breaker degrades", breaker: "open", wantStatus: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, exec := newTestServerContext(t, WithDryRun(true))
			exec.setBreaker(tt.breaker)
			_, err := sc.Conversations().NewSession(t.Context())
			require.NoError(t, err)

			rec := httptest.NewRecorder()
			NewHealthChecker(sc).DetailedHealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))

			require.Equal(t, http.StatusOK, rec.Code)
			var resp DetailedHealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, "dry-run", resp.Mode)
			require.Len(t, resp.Agents, 1)
			assert.Equal(t, tt.breaker, resp.Agents[0].Breaker)
			require.NotNil(t, resp.Sessions)
			assert.Equal(t, 1, resp.Sessions.Active)
			require.NotNil(t, resp.Instrumentation)
			assert.False(t, resp.Instrumentation.Enabled)
		})
	}
}

func TestRegisterHealthEndpoints(t *testing.T) {
	sc, _ := newTestServerContext(t)
	mux := http.NewServeMux()
	NewHealthChecker(sc).RegisterHealthEndpoints(mux)

	for _, path := range []string{"/healthz", "/readyz", "/healthz/detailed"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
