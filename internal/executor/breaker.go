package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/giantswarm/kratos/internal/instrumentation"
	"github.com/giantswarm/kratos/internal/logging"
)

// Default circuit breaker settings.
const (
	DefaultBreakerMaxFailures uint32 = 5
	DefaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = 60 * time.Second
)

func newBreaker(agent string, cfg Config, logger *slog.Logger, metrics *instrumentation.Metrics) *gobreaker.CircuitBreaker[Outcome] {
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = DefaultBreakerMaxFailures
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = DefaultBreakerTimeout
	}

	return gobreaker.NewCircuitBreaker[Outcome](gobreaker.Settings{
		Name:        "agent:" + agent,
		MaxRequests: 1,
		Interval:    defaultBreakerInterval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				logging.Agent(agent),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.RecordBreakerStateChange(context.Background(), agent, from.String(), to.String())
		},
		// Permanent errors (bad parameters, not found) do not open the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
	})
}
