package intent

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/giantswarm/kratos/internal/capability"
	"github.com/giantswarm/kratos/internal/history"
)

// Outcome is one of *ResolvedCall, *Clarification or *NoMatch.
type Outcome interface {
	outcome()
}

// ResolvedCall is a capability reference with bound parameters and a target.
type ResolvedCall struct {
	Capability capability.Capability
	Params     map[string]any
	// Cluster is the target cluster ID; empty for capabilities that are not
	// cluster scoped.
	Cluster    string
	Confidence float64
}

func (*ResolvedCall) outcome() {}

// Ref returns the capability identity of the call.
func (c *ResolvedCall) Ref() capability.Ref {
	return c.Capability.Ref()
}

// Missing returns the required parameters that are not bound.
func (c *ResolvedCall) Missing() []string {
	var missing []string
	for _, name := range c.Capability.RequiredParams() {
		if _, ok := c.Params[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Record converts the call to its history form.
func (c *ResolvedCall) Record() *history.CallRecord {
	return &history.CallRecord{
		Agent:      c.Capability.AgentID,
		Function:   c.Capability.Function,
		Params:     maps.Clone(c.Params),
		Cluster:    c.Cluster,
		Confidence: c.Confidence,
		Missing:    c.Missing(),
	}
}

// Clone returns a copy whose parameter map can be modified independently.
func (c *ResolvedCall) Clone() *ResolvedCall {
	out := *c
	out.Params = maps.Clone(c.Params)
	if out.Params == nil {
		out.Params = map[string]any{}
	}
	return &out
}

// Clarification asks the user for required parameters of a selected call.
type Clarification struct {
	// Call holds the partially bound call.
	Call    *ResolvedCall
	Missing []string
	Prompt  string
}

func (*Clarification) outcome() {}

// NoMatch means no capability scored above the confidence floor.
type NoMatch struct {
	Utterance string
	// Suggestions are the best-scoring capabilities below the floor.
	Suggestions []capability.Ref
	// Dropped is the pending call a cancelling reply abandoned.
	Dropped *ResolvedCall
}

func (*NoMatch) outcome() {}

// ClusterResolver validates cluster hints and falls back to the session's
// active cluster.
type ClusterResolver interface {
	ResolveTarget(hint string) (string, error)
	Names() []string
}

// Request is the input of one resolution.
type Request struct {
	Utterance string
	// History holds the session's recent turns, oldest first.
	History []history.Turn
	// Candidates are the capabilities to choose from, usually the coarse
	// result of a registry candidate search.
	Candidates []capability.Capability
	Clusters   ClusterResolver
	// Pending is the call waiting on a clarification, if any.
	Pending *Clarification
}

// Resolver turns a request into an outcome.
type Resolver interface {
	Resolve(ctx context.Context, req Request) (Outcome, error)
}

func clarify(call *ResolvedCall) *Clarification {
	missing := call.Missing()
	return &Clarification{
		Call:    call,
		Missing: missing,
		Prompt:  clarificationPrompt(call.Capability, missing),
	}
}

func clarificationPrompt(c capability.Capability, missing []string) string {
	parts := make([]string, 0, len(missing))
	for _, name := range missing {
		p, _ := c.Param(name)
		if p.Description != "" {
			parts = append(parts, fmt.Sprintf("%s (%s)", name, p.Description))
		} else {
			parts = append(parts, name)
		}
	}
	return fmt.Sprintf("To run %s I still need: %s.", c.Function, strings.Join(parts, ", "))
}
