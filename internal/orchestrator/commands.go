package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/giantswarm/kratos/internal/capability"
	"github.com/giantswarm/kratos/internal/history"
)

type command int

const (
	cmdExit command = iota
	cmdHelp
	cmdStatus
	cmdFunctions
	cmdReset
)

var commands = map[string]command{
	"exit":      cmdExit,
	"quit":      cmdExit,
	"q":         cmdExit,
	"bye":       cmdExit,
	"help":      cmdHelp,
	"?":         cmdHelp,
	"status":    cmdStatus,
	"functions": cmdFunctions,
	"reset":     cmdReset,
}

func parseCommand(utterance string) (command, bool) {
	cmd, ok := commands[strings.ToLower(strings.TrimSpace(utterance))]
	return cmd, ok
}

const helpText = `I can operate your Kubernetes clusters. Try for example:
  - show pods in kube-system
  - restart nginx in production
  - scale web-app to 5 replicas
  - get logs of api-0, last 50 lines
  - how healthy is the cluster
  - switch to staging
Commands: 'functions' lists everything I can do, 'status' shows the session,
'reset' starts the session over and 'exit' ends it.`

// command requires s.mu. Commands do not consume a round.
func (o *Orchestrator) command(ctx context.Context, s *Session, cmd command) (*Response, error) {
	switch cmd {
	case cmdExit:
		o.endLocked(ctx, s, EndReasonUserExit)
		msg := "Session ended. Goodbye!"
		if err := o.appendText(ctx, s, history.RoleSystem, msg); err != nil {
			return nil, err
		}
		return &Response{Kind: KindEnded, Message: msg, EndReason: EndReasonUserExit}, nil
	case cmdHelp:
		return o.report(ctx, s, &Response{Kind: KindInfo, Message: helpText})
	case cmdStatus:
		return o.report(ctx, s, &Response{Kind: KindInfo, Message: o.statusText(s)})
	case cmdReset:
		if err := o.resetLocked(ctx, s); err != nil {
			return nil, err
		}
		return o.report(ctx, s, &Response{Kind: KindInfo, Message: "Session reset. Rounds, pending questions and the cluster selection start over."})
	default:
		return o.report(ctx, s, &Response{Kind: KindInfo, Message: functionsText(o.registry.List())})
	}
}

// statusText requires s.mu.
func (o *Orchestrator) statusText(s *Session) string {
	var sb strings.Builder
	info := s.infoLocked(o.cfg.MaxRounds)
	fmt.Fprintf(&sb, "Session %s: round %d of %d", info.ID, info.Rounds, info.MaxRounds)
	if info.ActiveCluster != "" {
		fmt.Fprintf(&sb, ", active cluster %s", info.ActiveCluster)
	}
	if len(info.Pending) > 0 {
		fmt.Fprintf(&sb, ", waiting for %s", strings.Join(info.Pending, ", "))
	}
	sb.WriteString(".\nAgents:")

	for _, a := range o.agentStatuses(o.registry.Snapshot()) {
		state := "unavailable"
		if a.Available {
			state = "breaker " + a.Breaker
		}
		fmt.Fprintf(&sb, "\n  - %s: %d functions, %s", a.ID, a.Functions, state)
	}
	fmt.Fprintf(&sb, "\nExecutions: %d across %d session(s).", o.executions.Load(), o.sessionCount())
	return sb.String()
}

func functionsText(caps []capability.Capability) string {
	var sb strings.Builder
	sb.WriteString("Available functions:")
	agent := ""
	for _, c := range caps {
		if c.AgentID != agent {
			agent = c.AgentID
			fmt.Fprintf(&sb, "\n%s:", agent)
		}
		fmt.Fprintf(&sb, "\n  - %s(%s): %s", c.Function, paramList(c.Params), c.Description)
	}
	return sb.String()
}

func paramList(params []capability.Param) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		switch {
		case p.Required:
			parts = append(parts, p.Name+"*")
		case p.Default != nil:
			parts = append(parts, fmt.Sprintf("%s=%v", p.Name, p.Default))
		default:
			parts = append(parts, p.Name)
		}
	}
	return strings.Join(parts, ", ")
}
