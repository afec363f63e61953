package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/giantswarm/kratos/internal/capability"
	"github.com/giantswarm/kratos/internal/history"
	"github.com/giantswarm/kratos/internal/orchestrator"
	"github.com/giantswarm/kratos/internal/server/middleware"
)

const (
	// DefaultRequestsPerSecond and DefaultBurst bound the API per client.
	DefaultRequestsPerSecond = 5
	DefaultBurst             = 10

	// maxUtteranceBytes caps request bodies of the API.
	maxUtteranceBytes = 64 << 10
)

// API serves the JSON session API under /v1.
type API struct {
	sc     *ServerContext
	logger *slog.Logger
}

// NewAPI returns the API of sc.
func NewAPI(sc *ServerContext) *API {
	return &API{sc: sc, logger: sc.Logger().With("component", "api")}
}

// SubmitRequest is the body of POST /v1/sessions/{id}/turns.
type SubmitRequest struct {
	Utterance string `json:"utterance"`
}

// TurnResponse is the outcome of one submitted utterance.
type TurnResponse struct {
	*orchestrator.Response
	// Error is the reason of a non-result response, when there is one.
	Error string `json:"error,omitempty"`
}

// SessionList is the body of GET /v1/sessions.
type SessionList struct {
	Sessions []orchestrator.SessionInfo `json:"sessions"`
}

// Transcript is the body of GET /v1/sessions/{id}/turns.
type Transcript struct {
	SessionID string         `json:"session_id"`
	Turns     []history.Turn `json:"turns"`
}

// CapabilityList is the body of GET /v1/capabilities.
type CapabilityList struct {
	Capabilities []capability.Capability `json:"capabilities"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Register adds the API routes to mux, wrapped in body size and rate
// limits.
func (a *API) Register(mux *http.ServeMux) {
	cfg := a.sc.Config()
	limit := middleware.RateLimit(cfg.RequestsPerSecond, cfg.Burst)
	wrap := func(h http.HandlerFunc) http.Handler {
		return limit(middleware.MaxRequestSize(maxUtteranceBytes)(h))
	}

	mux.Handle("POST /v1/sessions", wrap(a.createSession))
	mux.Handle("GET /v1/sessions", wrap(a.listSessions))
	mux.Handle("GET /v1/sessions/{id}", wrap(a.getSession))
	mux.Handle("DELETE /v1/sessions/{id}", wrap(a.endSession))
	mux.Handle("POST /v1/sessions/{id}/reset", wrap(a.resetSession))
	mux.Handle("POST /v1/sessions/{id}/turns", wrap(a.submit))
	mux.Handle("GET /v1/sessions/{id}/turns", wrap(a.transcript))
	mux.Handle("GET /v1/status", wrap(a.status))
	mux.Handle("GET /v1/capabilities", wrap(a.capabilities))
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	if a.sc.IsShutdown() {
		a.writeError(w, ErrServerShutdown)
		return
	}
	info, err := a.sc.Conversations().NewSession(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (a *API) listSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := a.sc.Conversations().ListSessions()
	if sessions == nil {
		sessions = []orchestrator.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, SessionList{Sessions: sessions})
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	info, err := a.sc.Conversations().Session(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *API) endSession(w http.ResponseWriter, r *http.Request) {
	if err := a.sc.Conversations().EndSession(r.Context(), r.PathValue("id")); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) resetSession(w http.ResponseWriter, r *http.Request) {
	info, err := a.sc.Conversations().ResetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *API) submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if middleware.IsBodyTooLarge(err) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Utterance) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "utterance is required"})
		return
	}

	resp, err := a.sc.Conversations().Submit(r.Context(), r.PathValue("id"), req.Utterance)
	if err != nil {
		a.writeError(w, err)
		return
	}

	out := TurnResponse{Response: resp}
	if resp.Err != nil {
		out.Error = resp.Err.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) transcript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	turns, err := a.sc.Conversations().Transcript(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if turns == nil {
		turns = []history.Turn{}
	}
	writeJSON(w, http.StatusOK, Transcript{SessionID: id, Turns: turns})
}

func (a *API) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.sc.Conversations().Status())
}

func (a *API) capabilities(w http.ResponseWriter, _ *http.Request) {
	caps := a.sc.Conversations().Capabilities()
	if caps == nil {
		caps = []capability.Capability{}
	}
	writeJSON(w, http.StatusOK, CapabilityList{Capabilities: caps})
}

// writeError maps lifecycle errors to status codes. Anything unexpected is
// logged and reported without detail.
func (a *API) writeError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		a.logger.Error("API request failed", "error", err)
		writeJSON(w, code, ErrorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, code, ErrorResponse{Error: err.Error()})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrSessionEnded):
		return http.StatusConflict
	case errors.Is(err, ErrServerShutdown):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
