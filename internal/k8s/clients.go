package k8s

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"

	"github.com/giantswarm/kratos/internal/instrumentation"
	"github.com/giantswarm/kratos/internal/logging"
)

// Clients are the API clients of one cluster.
type Clients struct {
	Cluster string
	Typed   kubernetes.Interface
	Dynamic dynamic.Interface
	Mapper  meta.RESTMapper

	DryRun  bool
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

func (c *Clients) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Clients) dryRun() []string {
	if c.DryRun {
		return []string{metav1.DryRunAll}
	}
	return nil
}

// observe starts the span of an API operation. The returned func ends it and
// records the metric; pass it the operation's error.
func (c *Clients) observe(ctx context.Context, operation, namespace string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := instrumentation.StartK8sSpan(ctx, operation, c.Cluster, namespace)
	return ctx, func(err error) {
		finish(ctx, c, span, operation, namespace, start, err)
	}
}

func finish(ctx context.Context, c *Clients, span trace.Span, operation, namespace string, start time.Time, err error) {
	defer span.End()
	duration := time.Since(start)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		c.logger().Debug("kubernetes operation failed",
			logging.Operation(operation),
			logging.Namespace(namespace),
			logging.Err(err),
		)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.Metrics.RecordK8sOperation(ctx, operation, c.Cluster, namespace, status, duration)
}
