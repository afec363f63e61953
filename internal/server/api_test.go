package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/kratos/internal/history"
	"github.com/giantswarm/kratos/internal/k8sagent"
	"github.com/giantswarm/kratos/internal/orchestrator"
)

type apiClient struct {
	t   *testing.T
	srv *httptest.Server
}

func newAPIClient(t *testing.T, opts ...Option) (*apiClient, *stubExecutor) {
	t.Helper()
	sc, exec := newTestServerContext(t, opts...)
	mux := http.NewServeMux()
	NewAPI(sc).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &apiClient{t: t, srv: srv}, exec
}

func (c *apiClient) do(method, path, body string, out any) int {
	c.t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (c *apiClient) newSession() orchestrator.SessionInfo {
	c.t.Helper()
	var info orchestrator.SessionInfo
	require.Equal(c.t, http.StatusCreated, c.do(http.MethodPost, "/v1/sessions", "", &info))
	require.NotEmpty(c.t, info.ID)
	return info
}

// turnBody mirrors TurnResponse for decoding.
type turnBody struct {
	Kind    orchestrator.Kind   `json:"kind"`
	Message string              `json:"message"`
	State   string              `json:"state"`
	Rounds  int                 `json:"rounds"`
	Missing []string            `json:"missing"`
	Call    *history.CallRecord `json:"call"`
	Error   string              `json:"error"`
}

func TestAPIConversation(t *testing.T) {
	c, exec := newAPIClient(t)
	info := c.newSession()
	assert.Equal(t, 3, info.MaxRounds)
	assert.Equal(t, "staging", info.ActiveCluster)

	var turn turnBody
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/v1/sessions/"+info.ID+"/turns",
		`{"utterance":"scale web-app to 5 replicas"}`, &turn))
	assert.Equal(t, orchestrator.KindResult, turn.Kind)
	assert.Equal(t, 1, turn.Rounds)
	assert.Equal(t, "awaiting_input", turn.State)
	assert.Contains(t, turn.Message, "scale_deployment done")
	require.NotNil(t, turn.Call)
	assert.Equal(t, k8sagent.FuncScaleDeployment, turn.Call.Function)
	require.Len(t, exec.calls, 1)

	var transcript Transcript
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/v1/sessions/"+info.ID+"/turns", "", &transcript))
	assert.Equal(t, info.ID, transcript.SessionID)
	require.NotEmpty(t, transcript.Turns)
	for i, turn := range transcript.Turns {
		assert.Equal(t, i+1, turn.Index)
	}
	assert.Equal(t, history.RoleUser, transcript.Turns[0].Role)

	var got orchestrator.SessionInfo
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/v1/sessions/"+info.ID, "", &got))
	assert.Equal(t, 1, got.Rounds)

	var list SessionList
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/v1/sessions", "", &list))
	require.Len(t, list.Sessions, 1)

	require.Equal(t, http.StatusNoContent, c.do(http.MethodDelete, "/v1/sessions/"+info.ID, "", nil))

	var errResp ErrorResponse
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodPost, "/v1/sessions/"+info.ID+"/turns",
		`{"utterance":"get pods"}`, &errResp))
	assert.Contains(t, errResp.Error, "session not found")

	// The transcript outlives the session.
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/v1/sessions/"+info.ID+"/turns", "", &transcript))
	assert.NotEmpty(t, transcript.Turns)
}

func TestAPIResetSession(t *testing.T) {
	c, _ := newAPIClient(t)
	info := c.newSession()

	var turn turnBody
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/v1/sessions/"+info.ID+"/turns",
		`{"utterance":"restart nginx"}`, &turn))
	require.Equal(t, orchestrator.KindClarification, turn.Kind)

	var got orchestrator.SessionInfo
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/v1/sessions/"+info.ID+"/reset", "", &got))
	assert.Equal(t, info.ID, got.ID)
	assert.Equal(t, orchestrator.StateAwaitingInput, got.State)
	assert.Empty(t, got.Pending)

	var transcript Transcript
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/v1/sessions/"+info.ID+"/turns", "", &transcript))
	assert.Empty(t, transcript.Turns)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodPost, "/v1/sessions/nope/reset", "", &errResp))
}

func TestAPIClarification(t *testing.T) {
	c, _ := newAPIClient(t)
	info := c.newSession()

	var turn turnBody
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/v1/sessions/"+info.ID+"/turns",
		`{"utterance":"restart nginx"}`, &turn))
	assert.Equal(t, orchestrator.KindClarification, turn.Kind)
	assert.Equal(t, []string{k8sagent.ParamNamespace}, turn.Missing)
	assert.Equal(t, orchestrator.ErrClarificationNeeded.Error(), turn.Error)
	assert.Equal(t, 0, turn.Rounds)
}

func TestAPIEndedSession(t *testing.T) {
	c, _ := newAPIClient(t)
	info := c.newSession()

	var turn turnBody
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/v1/sessions/"+info.ID+"/turns", `{"utterance":"quit"}`, &turn))
	assert.Equal(t, orchestrator.KindEnded, turn.Kind)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusConflict, c.do(http.MethodPost, "/v1/sessions/"+info.ID+"/turns",
		`{"utterance":"get pods"}`, &errResp))
	assert.Contains(t, errResp.Error, "session has ended")
}

func TestAPIBadRequests(t *testing.T) {
	c, _ := newAPIClient(t)
	info := c.newSession()
	path := "/v1/sessions/" + info.ID + "/turns"

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{name: "not json", body: "scale", wantCode: http.StatusBadRequest, wantErr: "invalid JSON body"},
		{name: "empty utterance", body: `{"utterance":"  "}`, wantCode: http.StatusBadRequest, wantErr: "utterance is required"},
		{name: "too large", body: `{"utterance":"` + strings.Repeat("a", maxUtteranceBytes) + `"}`, wantCode: http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errResp ErrorResponse
			code := c.do(http.MethodPost, path, tt.body, nil)
			assert.Equal(t, tt.wantCode, code)
			if tt.wantErr != "" {
				c.do(http.MethodPost, path, tt.body, &errResp)
				assert.Contains(t, errResp.Error, tt.wantErr)
			}
		})
	}

	var errResp ErrorResponse
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/v1/sessions/unknown/turns", "", &errResp))
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodDelete, "/v1/sessions/unknown", "", &errResp))
}

func TestAPIStatus(t *testing.T) {
	c, _ := newAPIClient(t)
	c.newSession()

	var status orchestrator.Status
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/v1/status", "", &status))
	assert.Equal(t, 1, status.ActiveSessions)
	assert.Equal(t, 3, status.MaxRounds)
	require.Len(t, status.Agents, 1)
	assert.Equal(t, k8sagent.AgentID, status.Agents[0].ID)
	assert.Len(t, status.Clusters, 2)
}

func TestAPICapabilities(t *testing.T) {
	c, _ := newAPIClient(t)

	var list CapabilityList
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/v1/capabilities", "", &list))
	require.NotEmpty(t, list.Capabilities)
	for _, capab := range list.Capabilities {
		assert.Equal(t, k8sagent.AgentID, capab.AgentID)
		assert.NotEmpty(t, capab.Function)
	}
}

func TestAPIRateLimit(t *testing.T) {
	c, _ := newAPIClient(t, WithRateLimit(1, 1))

	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/v1/status", "", nil))
	assert.Equal(t, http.StatusTooManyRequests, c.do(http.MethodGet, "/v1/sessions", "", nil))
}

func TestAPIShutdown(t *testing.T) {
	sc, _ := newTestServerContext(t)
	mux := http.NewServeMux()
	NewAPI(sc).Register(mux)
	require.NoError(t, sc.Shutdown())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
