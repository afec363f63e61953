package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/giantswarm/kratos/internal/capability"
	"github.com/giantswarm/kratos/internal/clusterctx"
	"github.com/giantswarm/kratos/internal/executor"
	"github.com/giantswarm/kratos/internal/history"
	"github.com/giantswarm/kratos/internal/instrumentation"
	"github.com/giantswarm/kratos/internal/intent"
	"github.com/giantswarm/kratos/internal/logging"
)

// Defaults.
const (
	DefaultMaxRounds     = 10
	DefaultHistoryWindow = 20
)

// Config holds the conversation limits.
type Config struct {
	// MaxRounds is the number of execution cycles a session may run.
	MaxRounds int
	// HistoryWindow is the number of recent turns given to the resolver.
	HistoryWindow int
}

func (c Config) withDefaults() Config {
	if c.MaxRounds <= 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = DefaultHistoryWindow
	}
	return c
}

// Executor runs resolved calls. *executor.Adapter implements it.
type Executor interface {
	Execute(ctx context.Context, call executor.Call) executor.Result
	Agents() []string
	BreakerState(agent string) string
}

// Kind classifies a response.
type Kind string

const (
	KindResult        Kind = "result"
	KindClarification Kind = "clarification"
	KindNoMatch       Kind = "no_match"
	KindError         Kind = "error"
	KindInfo          Kind = "info"
	KindEnded         Kind = "ended"
)

// Response is what one submitted utterance produced.
type Response struct {
	SessionID string              `json:"session_id"`
	Kind      Kind                `json:"kind"`
	Message   string              `json:"message"`
	State     State               `json:"state"`
	Rounds    int                 `json:"rounds"`
	Call      *history.CallRecord `json:"call,omitempty"`
	Result    *executor.Result    `json:"result,omitempty"`
	// Missing lists the parameters a clarification asks for.
	Missing   []string  `json:"missing,omitempty"`
	EndReason EndReason `json:"end_reason,omitempty"`
	// Err is the sentinel of a non-result response.
	Err error `json:"-"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator owns the sessions and runs their turns.
type Orchestrator struct {
	cfg      Config
	registry *capability.Registry
	clusters *clusterctx.Manager
	resolver intent.Resolver
	exec     Executor
	store    history.Store
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session

	executions atomic.Int64
}

// New creates an orchestrator. The store must be the one the executor
// appends executions to.
func New(cfg Config, registry *capability.Registry, clusters *clusterctx.Manager, resolver intent.Resolver,
	exec Executor, store history.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg.withDefaults(),
		registry: registry,
		clusters: clusters,
		resolver: resolver,
		exec:     exec,
		store:    store,
		logger:   slog.Default(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// MaxRounds returns the configured round limit.
func (o *Orchestrator) MaxRounds() int {
	return o.cfg.MaxRounds
}

// NewSession starts a session on the default active cluster.
func (o *Orchestrator) NewSession(ctx context.Context) (SessionInfo, error) {
	now := o.now()
	s := &Session{
		ID:           ulid.Make().String(),
		CreatedAt:    now,
		view:         o.clusters.NewView(),
		lastActivity: now,
	}

	s.publishLocked(o.cfg.MaxRounds)

	o.mu.Lock()
	o.sessions[s.ID] = s
	o.mu.Unlock()

	o.metrics.IncrementActiveSessions(ctx)
	o.logger.Info("session started", logging.Session(s.ID))
	return s.info(), nil
}

// ListSessions returns every session in creation order.
func (o *Orchestrator) ListSessions() []SessionInfo {
	o.mu.RLock()
	sessions := make([]*Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		sessions = append(sessions, s)
	}
	o.mu.RUnlock()

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.info())
	}
	// ULIDs sort by creation time.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Session returns the current info of a session.
func (o *Orchestrator) Session(id string) (SessionInfo, error) {
	s, err := o.session(id)
	if err != nil {
		return SessionInfo{}, err
	}
	return s.info(), nil
}

// EndSession ends a session and forgets it. Its transcript stays in the
// history store.
func (o *Orchestrator) EndSession(ctx context.Context, id string) error {
	s, err := o.session(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateEnded {
		o.endLocked(ctx, s, EndReasonClosed)
	}
	s.publishLocked(o.cfg.MaxRounds)
	s.mu.Unlock()

	o.mu.Lock()
	delete(o.sessions, id)
	o.mu.Unlock()
	return nil
}

// ResetSession clears a session's transcript, pending clarification, round
// count and cluster selection, keeping its ID.
func (o *Orchestrator) ResetSession(ctx context.Context, id string) (SessionInfo, error) {
	s, err := o.session(id)
	if err != nil {
		return SessionInfo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.publishLocked(o.cfg.MaxRounds)
	if err := o.resetLocked(ctx, s); err != nil {
		return SessionInfo{}, err
	}
	return s.infoLocked(o.cfg.MaxRounds), nil
}

// resetLocked requires s.mu.
func (o *Orchestrator) resetLocked(ctx context.Context, s *Session) error {
	if err := o.store.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("failed to reset session history: %w", err)
	}
	if s.state == StateEnded {
		o.metrics.IncrementActiveSessions(ctx)
	}
	s.view = o.clusters.NewView()
	s.state = StateAwaitingInput
	s.rounds = 0
	s.pending = nil
	s.endReason = EndReasonNone
	s.lastActivity = o.now()
	o.logger.Info("session reset", logging.Session(s.ID))
	return nil
}

// Transcript returns the turns of a session, including sessions that were
// ended and forgotten but whose history is still stored.
func (o *Orchestrator) Transcript(ctx context.Context, id string) ([]history.Turn, error) {
	turns, err := o.store.Turns(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		if _, err := o.session(id); err != nil {
			return nil, err
		}
	}
	return turns, nil
}

// Executions returns the execution audit records of a session.
func (o *Orchestrator) Executions(ctx context.Context, id string) ([]history.Execution, error) {
	return o.store.Executions(ctx, id)
}

func (o *Orchestrator) session(id string) (*Session, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Submit processes one utterance of a session.
func (o *Orchestrator) Submit(ctx context.Context, sessionID, utterance string) (*Response, error) {
	s, err := o.session(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEnded {
		return nil, fmt.Errorf("%w: %s (%s)", ErrSessionEnded, sessionID, s.endReason)
	}
	defer s.publishLocked(o.cfg.MaxRounds)

	ctx, span := instrumentation.StartTurnSpan(ctx, sessionID)
	defer span.End()
	start := o.now()
	logger := logging.WithSession(o.logger, sessionID)

	resp, err := o.turn(ctx, s, strings.TrimSpace(utterance), logger)
	s.lastActivity = o.now()
	if err != nil {
		instrumentation.SetSpanError(span, err)
		logger.Error("turn failed", logging.Err(err))
		o.metrics.RecordTurn(ctx, string(KindError), o.now().Sub(start))
		if s.state != StateEnded {
			s.state = StateAwaitingInput
		}
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	o.metrics.RecordTurn(ctx, string(resp.Kind), o.now().Sub(start))
	resp.SessionID = sessionID
	resp.State = s.state
	resp.Rounds = s.rounds
	logger.Debug("turn finished", slog.String("kind", string(resp.Kind)), logging.State(s.state))
	return resp, nil
}

// turn requires s.mu.
func (o *Orchestrator) turn(ctx context.Context, s *Session, utterance string, logger *slog.Logger) (*Response, error) {
	if utterance == "" {
		return &Response{Kind: KindInfo, Message: "Please tell me what you would like to do. Type 'help' for examples."}, nil
	}
	if err := o.appendText(ctx, s, history.RoleUser, utterance); err != nil {
		return nil, err
	}

	if cmd, ok := parseCommand(utterance); ok {
		return o.command(ctx, s, cmd)
	}

	o.setState(s, StateResolving)
	snapshot := o.registry.Snapshot()
	recent, err := o.store.Recent(ctx, s.ID, o.cfg.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	out, err := o.resolver.Resolve(ctx, intent.Request{
		Utterance:  utterance,
		History:    recent,
		Candidates: snapshot.FindCandidates(utterance),
		Clusters:   s.view,
		Pending:    s.pending,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		o.metrics.RecordResolution(ctx, "error")
		return o.reportError(ctx, s, err)
	}

	switch out := out.(type) {
	case *intent.NoMatch:
		s.pending = nil
		if out.Dropped != nil {
			o.metrics.RecordResolution(ctx, "dropped")
			logger.Info("pending call dropped", logging.Function(out.Dropped.Capability.Function))
			return o.report(ctx, s, &Response{Kind: KindInfo, Message: droppedMessage(out.Dropped)})
		}
		o.metrics.RecordResolution(ctx, string(KindNoMatch))
		logger.Info("no capability matched")
		return o.report(ctx, s, &Response{Kind: KindNoMatch, Message: noMatchMessage(out), Err: ErrNoMatch})

	case *intent.Clarification:
		o.metrics.RecordResolution(ctx, string(KindClarification))
		return o.clarify(ctx, s, out)

	case *intent.ResolvedCall:
		o.metrics.RecordResolution(ctx, "resolved")
		return o.execute(ctx, s, snapshot, out, logger)
	}
	return nil, fmt.Errorf("resolver returned unexpected outcome %T", out)
}

func (o *Orchestrator) clarify(ctx context.Context, s *Session, c *intent.Clarification) (*Response, error) {
	s.state = StateClarifying
	if err := o.appendCall(ctx, s, c.Call); err != nil {
		return nil, err
	}
	s.pending = c
	return o.report(ctx, s, &Response{
		Kind:    KindClarification,
		Message: c.Prompt,
		Call:    c.Call.Record(),
		Missing: append([]string(nil), c.Missing...),
		Err:     ErrClarificationNeeded,
	})
}

func (o *Orchestrator) execute(ctx context.Context, s *Session, snapshot *capability.Snapshot, call *intent.ResolvedCall, logger *slog.Logger) (*Response, error) {
	s.pending = nil

	if s.rounds >= o.cfg.MaxRounds {
		o.endLocked(ctx, s, EndReasonRoundLimit)
		msg := fmt.Sprintf("This session reached its limit of %d rounds and has been ended. Start a new session to continue.", o.cfg.MaxRounds)
		if err := o.appendText(ctx, s, history.RoleSystem, msg); err != nil {
			return nil, err
		}
		logger.Warn("session ended at round limit", slog.Int("rounds", s.rounds))
		return &Response{Kind: KindEnded, Message: msg, EndReason: EndReasonRoundLimit, Err: ErrRoundLimitExceeded}, nil
	}

	ref := call.Ref()
	if _, err := snapshot.Lookup(ref.AgentID, ref.Function); err != nil {
		return o.reportError(ctx, s, err)
	}
	if err := snapshot.ValidateParams(ref, call.Params); err != nil {
		return o.reportError(ctx, s, err)
	}

	var target clusterctx.Context
	if call.Capability.ClusterScoped {
		c, err := s.view.Get(call.Cluster)
		if err != nil {
			return o.reportError(ctx, s, err)
		}
		target = c
	}

	if err := o.appendCall(ctx, s, call); err != nil {
		return nil, err
	}

	o.setState(s, StateExecuting)
	var res executor.Result
	if isSessionFunction(call.Capability) {
		res = o.runSessionFunction(ctx, s, call)
	} else {
		res = o.exec.Execute(ctx, executor.Call{
			SessionID:  s.ID,
			Capability: call.Capability,
			Params:     call.Params,
			Cluster:    target,
		})
	}
	s.rounds++
	o.executions.Add(1)

	return o.report(ctx, s, &Response{
		Kind:    KindResult,
		Message: formatResult(call, target, res),
		Call:    call.Record(),
		Result:  &res,
		Err:     res.Err,
	})
}

func (o *Orchestrator) reportError(ctx context.Context, s *Session, err error) (*Response, error) {
	o.logger.Info("turn rejected", logging.Session(s.ID), logging.Err(err))
	return o.report(ctx, s, &Response{Kind: KindError, Message: "Sorry, " + userMessage(err), Err: err})
}

// report appends the response message as a system turn and returns the
// session to AwaitingInput.
func (o *Orchestrator) report(ctx context.Context, s *Session, resp *Response) (*Response, error) {
	s.state = StateReporting
	if err := o.appendText(ctx, s, history.RoleSystem, resp.Message); err != nil {
		return nil, err
	}
	s.state = StateAwaitingInput
	return resp, nil
}

// setState requires s.mu. It publishes the transition so readers see a
// session that is executing.
func (o *Orchestrator) setState(s *Session, st State) {
	s.state = st
	s.publishLocked(o.cfg.MaxRounds)
}

// endLocked requires s.mu.
func (o *Orchestrator) endLocked(ctx context.Context, s *Session, reason EndReason) {
	s.state = StateEnded
	s.endReason = reason
	s.pending = nil
	o.metrics.DecrementActiveSessions(ctx)
	o.logger.Info("session ended", logging.Session(s.ID), slog.String("reason", string(reason)))
}

func (o *Orchestrator) appendText(ctx context.Context, s *Session, role history.Role, text string) error {
	_, err := o.store.Append(ctx, s.ID, history.Turn{Role: role, Text: text, Timestamp: o.now()})
	if err != nil {
		return fmt.Errorf("failed to append %s turn: %w", role, err)
	}
	return nil
}

func (o *Orchestrator) appendCall(ctx context.Context, s *Session, call *intent.ResolvedCall) error {
	_, err := o.store.Append(ctx, s.ID, history.Turn{Role: history.RoleResolver, Call: call.Record(), Timestamp: o.now()})
	if err != nil {
		return fmt.Errorf("failed to append resolver turn: %w", err)
	}
	return nil
}

// Status summarises agents, sessions and executions.
type Status struct {
	Agents             []AgentStatus        `json:"agents"`
	Clusters           []clusterctx.Context `json:"clusters"`
	ActiveSessions     int                  `json:"active_sessions"`
	TotalSessions      int                  `json:"total_sessions"`
	Executions         int64                `json:"executions"`
	RegistryGeneration uint64               `json:"registry_generation"`
	MaxRounds          int                  `json:"max_rounds"`
}

// Capabilities returns the current catalogue in lookup order.
func (o *Orchestrator) Capabilities() []capability.Capability {
	return o.registry.List()
}

// AgentStatus describes one agent of the registry.
type AgentStatus struct {
	ID        string `json:"id"`
	Functions int    `json:"functions"`
	// Available is false when no backend serves the agent.
	Available bool   `json:"available"`
	Breaker   string `json:"breaker,omitempty"`
}

// Status reports the orchestrator's current state.
func (o *Orchestrator) Status() Status {
	snapshot := o.registry.Snapshot()
	st := Status{
		Agents:             o.agentStatuses(snapshot),
		Clusters:           o.clusters.ListClusters(),
		Executions:         o.executions.Load(),
		RegistryGeneration: snapshot.Generation(),
		MaxRounds:          o.cfg.MaxRounds,
	}
	for _, info := range o.ListSessions() {
		st.TotalSessions++
		if info.State != StateEnded {
			st.ActiveSessions++
		}
	}
	return st
}

func (o *Orchestrator) agentStatuses(snapshot *capability.Snapshot) []AgentStatus {
	counts := map[string]int{}
	for _, c := range snapshot.List() {
		counts[c.AgentID]++
	}
	backends := map[string]bool{}
	for _, a := range o.exec.Agents() {
		backends[a] = true
	}

	out := make([]AgentStatus, 0, len(counts))
	for _, agent := range snapshot.Agents() {
		out = append(out, AgentStatus{
			ID:        agent,
			Functions: counts[agent],
			Available: backends[agent],
			Breaker:   o.exec.BreakerState(agent),
		})
	}
	return out
}

func (o *Orchestrator) sessionCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.sessions)
}
