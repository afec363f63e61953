package executor

import (
	"context"
	"time"

	"github.com/giantswarm/kratos/internal/clusterctx"
	"github.com/giantswarm/kratos/internal/history"
)

// Status is the outcome class of an execution.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Item outcomes of itemised results.
const (
	ItemOK      = "ok"
	ItemCreated = "created"
	ItemUpdated = "updated"
	ItemFailed  = "failed"
)

// Item is one itemised outcome, for example one object of a manifest.
type Item struct {
	Name    string `json:"name"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// Failed reports whether the item did not succeed.
func (i Item) Failed() bool {
	return i.Outcome == ItemFailed
}

// Invocation is what a backend receives for one attempt.
type Invocation struct {
	Agent    string
	Function string
	Params   map[string]any
	// Cluster is the target; zero for functions that are not cluster scoped.
	Cluster clusterctx.Context
	Timeout time.Duration
}

// Outcome is what a backend reports. An empty Status is derived from Items:
// all failed is failed, mixed is partial, otherwise ok.
type Outcome struct {
	Status  Status
	Summary string
	Data    any
	Items   []Item
}

func (o Outcome) status() Status {
	if o.Status != "" {
		return o.Status
	}
	failed := 0
	for _, it := range o.Items {
		if it.Failed() {
			failed++
		}
	}
	switch {
	case failed == 0:
		return StatusOK
	case failed == len(o.Items):
		return StatusFailed
	}
	return StatusPartial
}

// Backend executes functions of one agent.
type Backend interface {
	Invoke(ctx context.Context, inv Invocation) (Outcome, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, inv Invocation) (Outcome, error)

func (f BackendFunc) Invoke(ctx context.Context, inv Invocation) (Outcome, error) {
	return f(ctx, inv)
}

// Result is the outcome of one Execute call, retries included.
type Result struct {
	ID          string        `json:"id"`
	Status      Status        `json:"status"`
	Summary     string        `json:"summary,omitempty"`
	Data        any           `json:"data,omitempty"`
	Items       []Item        `json:"items,omitempty"`
	ErrorDetail string        `json:"error_detail,omitempty"`
	Attempts    int           `json:"attempts"`
	Duration    time.Duration `json:"duration"`
	// Err is the classified error of a failed result.
	Err error `json:"-"`
}

// Record converts the result to its persisted form.
func (r Result) Record() history.ResultRecord {
	rec := history.ResultRecord{
		Status:      string(r.Status),
		Summary:     r.Summary,
		Data:        r.Data,
		ErrorDetail: r.ErrorDetail,
		Attempts:    r.Attempts,
		Duration:    r.Duration,
	}
	for _, it := range r.Items {
		rec.Items = append(rec.Items, history.ItemRecord{Name: it.Name, Outcome: it.Outcome, Detail: it.Detail})
	}
	return rec
}
