package executor

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"github.com/giantswarm/kratos/internal/capability"
	"github.com/giantswarm/kratos/internal/clusterctx"
	"github.com/giantswarm/kratos/internal/history"
	"github.com/giantswarm/kratos/internal/instrumentation"
	"github.com/giantswarm/kratos/internal/logging"
)

// Adapter defaults.
const (
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = time.Second
	DefaultMaxBackoff    = 10 * time.Second
	DefaultTimeout       = 300 * time.Second
)

// Config holds the retry, timeout and breaker settings of an Adapter.
type Config struct {
	// RetryAttempts is the total number of attempts of an idempotent call.
	RetryAttempts int
	// RetryBackoff is the wait before the second attempt; it doubles after
	// every further attempt up to MaxBackoff.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	// DefaultTimeout applies to capabilities without their own timeout.
	DefaultTimeout time.Duration

	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RetryAttempts:      DefaultRetryAttempts,
		RetryBackoff:       DefaultRetryBackoff,
		MaxBackoff:         DefaultMaxBackoff,
		DefaultTimeout:     DefaultTimeout,
		BreakerMaxFailures: DefaultBreakerMaxFailures,
		BreakerTimeout:     DefaultBreakerTimeout,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = d.RetryAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = d.DefaultTimeout
	}
	return c
}

// Call is one resolved call ready to run.
type Call struct {
	SessionID  string
	Capability capability.Capability
	Params     map[string]any
	Cluster    clusterctx.Context
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithStore sets the history store executions are appended to.
func WithStore(store history.Store) Option {
	return func(a *Adapter) { a.store = store }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// WithSleep replaces the backoff wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Adapter) { a.sleep = sleep }
}

// Adapter routes calls to agent backends.
type Adapter struct {
	cfg     Config
	store   history.Store
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time

	mu       sync.RWMutex
	backends map[string]Backend
	breakers map[string]*gobreaker.CircuitBreaker[Outcome]
}

// NewAdapter creates an adapter with no backends.
func NewAdapter(cfg Config, opts ...Option) *Adapter {
	a := &Adapter{
		cfg:      cfg.withDefaults(),
		logger:   slog.Default(),
		sleep:    sleepContext,
		now:      time.Now,
		backends: make(map[string]Backend),
		breakers: make(map[string]*gobreaker.CircuitBreaker[Outcome]),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegisterBackend routes the agent's calls to b, replacing any previous
// backend and resetting its breaker.
func (a *Adapter) RegisterBackend(agent string, b Backend) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.backends[agent] = b
	a.breakers[agent] = newBreaker(agent, a.cfg, a.logger, a.metrics)
}

// Agents returns the agents with a backend, sorted.
func (a *Adapter) Agents() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.backends))
	for agent := range a.backends {
		out = append(out, agent)
	}
	sort.Strings(out)
	return out
}

// BreakerState returns the breaker state of an agent, "" if unknown.
func (a *Adapter) BreakerState(agent string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if cb, ok := a.breakers[agent]; ok {
		return cb.State().String()
	}
	return ""
}

func (a *Adapter) route(agent string) (Backend, *gobreaker.CircuitBreaker[Outcome], bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.backends[agent]
	return b, a.breakers[agent], ok
}

// Execute runs the call and always returns a result. The result is appended
// to the session history before Execute returns.
func (a *Adapter) Execute(ctx context.Context, call Call) Result {
	c := call.Capability
	ctx, span := instrumentation.StartExecutionSpan(ctx, c.AgentID, c.Function, call.Cluster.ID)
	defer span.End()

	logger := logging.WithSession(logging.WithAgent(a.logger, c.AgentID), call.SessionID).With(
		logging.Function(c.Function),
		logging.Cluster(call.Cluster.ID),
	)
	logger.Debug("executing call", logging.Params(call.Params))

	start := a.now()
	res := a.run(ctx, call, logger)
	res.ID = uuid.NewString()
	res.Duration = a.now().Sub(start)

	if res.Status == StatusFailed {
		instrumentation.SetSpanError(span, res.Err)
		logger.Warn("execution failed",
			logging.Status(string(res.Status)),
			logging.Attempt(res.Attempts),
			logging.Duration(res.Duration),
			logging.SanitizedErr(res.Err),
		)
	} else {
		instrumentation.SetSpanSuccess(span)
		logger.Info("execution finished",
			logging.Status(string(res.Status)),
			logging.Attempt(res.Attempts),
			logging.Duration(res.Duration),
		)
	}
	a.metrics.RecordExecution(ctx, c.AgentID, c.Function, string(res.Status), res.Duration)

	a.record(ctx, call, res, logger)
	return res
}

func (a *Adapter) run(ctx context.Context, call Call, logger *slog.Logger) Result {
	c := call.Capability
	backend, breaker, ok := a.route(c.AgentID)
	if !ok {
		return failed(&ExecutionError{Agent: c.AgentID, Function: c.Function, Kind: ErrNoBackend}, 0)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = a.cfg.DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	inv := Invocation{
		Agent:    c.AgentID,
		Function: c.Function,
		Params:   call.Params,
		Cluster:  call.Cluster,
		Timeout:  timeout,
	}

	attempts := 1
	if c.IsIdempotent() {
		attempts = a.cfg.RetryAttempts
	}

	var lastErr error
	made := 0
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := a.backoff(attempt)
			logger.Debug("retrying call", logging.Attempt(attempt+1), slog.Duration("backoff", wait), logging.SanitizedErr(lastErr))
			a.metrics.RecordRetry(ctx, c.AgentID)
			if err := a.sleep(callCtx, wait); err != nil {
				break
			}
		}

		made++
		out, err := breaker.Execute(func() (Outcome, error) {
			return backend.Invoke(callCtx, inv)
		})
		if err == nil {
			return succeeded(out, made)
		}
		lastErr = err

		if isTimeout(callCtx, err) || ctx.Err() != nil {
			break
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if !IsTransient(err) {
			break
		}
	}

	return failed(classify(ctx, callCtx, c, lastErr, made), made)
}

// classify maps the last backend error to the adapter's error kinds.
func classify(ctx, callCtx context.Context, c capability.Capability, err error, attempts int) error {
	e := &ExecutionError{Agent: c.AgentID, Function: c.Function, Attempts: attempts, Err: err}
	switch {
	case ctx.Err() == nil && isTimeout(callCtx, err):
		e.Kind = ErrTimeout
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		e.Kind = ctx.Err()
		if e.Kind == nil {
			e.Kind = context.Canceled
		}
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		e.Kind = ErrTransientBackend
	case !c.IsIdempotent():
		e.Kind = ErrMutationFailed
	case IsTransient(err):
		e.Kind = ErrTransientBackend
	}
	return e
}

// backoff returns RetryBackoff * 2^(attempt-1), capped at MaxBackoff.
func (a *Adapter) backoff(attempt int) time.Duration {
	wait := a.cfg.RetryBackoff
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= a.cfg.MaxBackoff {
			return a.cfg.MaxBackoff
		}
	}
	if wait > a.cfg.MaxBackoff {
		return a.cfg.MaxBackoff
	}
	return wait
}

func (a *Adapter) record(ctx context.Context, call Call, res Result, logger *slog.Logger) {
	if a.store == nil {
		return
	}
	// The audit trail is written even when the caller has gone away.
	ctx = context.WithoutCancel(ctx)

	rec := res.Record()
	if call.SessionID != "" {
		if _, err := a.store.Append(ctx, call.SessionID, history.Turn{
			Role:      history.RoleExecutor,
			Result:    &rec,
			Timestamp: a.now(),
		}); err != nil {
			logger.Error("failed to append execution turn", logging.Err(err))
		}
	}
	if err := a.store.RecordExecution(ctx, history.Execution{
		ID:        res.ID,
		SessionID: call.SessionID,
		Timestamp: a.now(),
		Agent:     call.Capability.AgentID,
		Function:  call.Capability.Function,
		Params:    call.Params,
		Cluster:   call.Cluster.ID,
		Result:    rec,
	}); err != nil {
		logger.Error("failed to record execution", logging.Err(err))
	}
}

func succeeded(out Outcome, attempts int) Result {
	res := Result{
		Status:   out.status(),
		Summary:  out.Summary,
		Data:     out.Data,
		Items:    out.Items,
		Attempts: attempts,
	}
	if res.Status == StatusFailed {
		detail := out.Summary
		if detail == "" {
			detail = "all items failed"
		}
		res.ErrorDetail = detail
		res.Err = errors.New(detail)
	}
	return res
}

func failed(err error, attempts int) Result {
	return Result{
		Status:      StatusFailed,
		ErrorDetail: userMessage(err),
		Attempts:    attempts,
		Err:         err,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
