package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/giantswarm/kratos/internal/capability"
	"github.com/giantswarm/kratos/internal/executor"
	"github.com/giantswarm/kratos/internal/history"
	"github.com/giantswarm/kratos/internal/intent"
	"github.com/giantswarm/kratos/internal/k8sagent"
	"github.com/giantswarm/kratos/internal/logging"
)

// isSessionFunction reports whether the call acts on the session's cluster
// view and is run by the orchestrator itself.
func isSessionFunction(c capability.Capability) bool {
	return c.AgentID == k8sagent.AgentID && k8sagent.IsSessionFunction(c.Function)
}

// runSessionFunction executes list_clusters and switch_cluster against the
// session's view and records them like any other execution.
func (o *Orchestrator) runSessionFunction(ctx context.Context, s *Session, call *intent.ResolvedCall) executor.Result {
	start := o.now()
	var res executor.Result

	switch call.Capability.Function {
	case k8sagent.FuncListClusters:
		clusters := s.view.ListClusters()
		var sb strings.Builder
		fmt.Fprintf(&sb, "Known clusters (%d):", len(clusters))
		for _, c := range clusters {
			marker := ""
			if c.Active {
				marker = " (active)"
			}
			fmt.Fprintf(&sb, "\n  - %s%s", c.Name(), marker)
		}
		res = executor.Result{Status: executor.StatusOK, Summary: sb.String(), Data: clusters, Attempts: 1}

	case k8sagent.FuncSwitchCluster:
		name := fmt.Sprint(call.Params[k8sagent.ParamClusterName])
		c, err := s.view.SwitchTo(name)
		if err != nil {
			res = executor.Result{Status: executor.StatusFailed, ErrorDetail: userMessage(err), Attempts: 1, Err: err}
			break
		}
		res = executor.Result{Status: executor.StatusOK, Summary: fmt.Sprintf("Switched to cluster %s.", c.Name()), Data: c, Attempts: 1}

	default:
		err := fmt.Errorf("unsupported session function %s", call.Capability.Function)
		res = executor.Result{Status: executor.StatusFailed, ErrorDetail: err.Error(), Err: err}
	}

	res.ID = ulid.Make().String()
	res.Duration = o.now().Sub(start)
	o.recordLocal(ctx, s, call, res)
	return res
}

func (o *Orchestrator) recordLocal(ctx context.Context, s *Session, call *intent.ResolvedCall, res executor.Result) {
	ctx = context.WithoutCancel(ctx)
	rec := res.Record()
	if _, err := o.store.Append(ctx, s.ID, history.Turn{Role: history.RoleExecutor, Result: &rec, Timestamp: o.now()}); err != nil {
		o.logger.Error("failed to append execution turn", logging.Session(s.ID), logging.Err(err))
	}
	if err := o.store.RecordExecution(ctx, history.Execution{
		ID:        res.ID,
		SessionID: s.ID,
		Timestamp: o.now(),
		Agent:     call.Capability.AgentID,
		Function:  call.Capability.Function,
		Params:    call.Params,
		Result:    rec,
	}); err != nil {
		o.logger.Error("failed to record execution", logging.Session(s.ID), logging.Err(err))
	}
	o.metrics.RecordExecution(ctx, call.Capability.AgentID, call.Capability.Function, string(res.Status), res.Duration)
}
