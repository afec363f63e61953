package intent

import (
	"context"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/giantswarm/kratos/internal/capability"
	"github.com/giantswarm/kratos/internal/history"
)

const (
	// DefaultConfidenceFloor is the minimum score for a capability to be chosen.
	DefaultConfidenceFloor = 0.35

	maxSuggestions = 3
	scoreEpsilon   = 1e-9
)

// RuleResolver is a deterministic, rule-based Resolver.
type RuleResolver struct {
	floor float64
}

var _ Resolver = (*RuleResolver)(nil)

// NewRuleResolver returns a resolver with the given confidence floor. A
// non-positive floor selects DefaultConfidenceFloor.
func NewRuleResolver(floor float64) *RuleResolver {
	if floor <= 0 {
		floor = DefaultConfidenceFloor
	}
	return &RuleResolver{floor: floor}
}

// Floor returns the confidence floor.
func (r *RuleResolver) Floor() float64 {
	return r.floor
}

// Resolve implements Resolver.
func (r *RuleResolver) Resolve(ctx context.Context, req Request) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if req.Pending != nil {
		if isCancel(req.Utterance) {
			return &NoMatch{Utterance: req.Utterance, Dropped: req.Pending.Call.Clone()}, nil
		}
		// A reply that asks for something else drops the pending call
		// instead of completing it.
		if !r.startsNewIntent(req) {
			out, ok, err := r.continuePending(req)
			if err != nil {
				return nil, err
			}
			if ok {
				return out, nil
			}
		}
	}

	out, err := r.resolveFresh(req)
	if err != nil {
		return nil, err
	}
	if _, noMatch := out.(*NoMatch); noMatch && req.Pending != nil {
		// Nothing new was said; ask for the same parameters again.
		return clarify(req.Pending.Call.Clone()), nil
	}
	return out, nil
}

// continuePending binds the follow-up utterance against the missing
// parameters of the pending call. It reports false when the utterance binds
// none of them.
func (r *RuleResolver) continuePending(req Request) (Outcome, bool, error) {
	pending := req.Pending
	call := pending.Call.Clone()

	ex := newExtractor(req.Utterance, clusterNames(req.Clusters))
	ex.preferNamespace = slices.Contains(pending.Missing, paramNamespace)
	got := ex.extract(call.Capability)

	bound := 0
	for _, name := range pending.Missing {
		if v, ok := got.params[name]; ok {
			call.Params[name] = v
			bound++
		}
	}
	if bound == 0 && len(pending.Missing) == 1 {
		p, _ := call.Capability.Param(pending.Missing[0])
		if v, ok := bareValue(req.Utterance, p, actionWords(call.Capability, req.Candidates)); ok {
			call.Params[p.Name] = v
			bound++
		}
	}
	if bound == 0 {
		return nil, false, nil
	}

	if call.Capability.ClusterScoped && got.clusterHint != "" && req.Clusters != nil {
		id, err := req.Clusters.ResolveTarget(got.clusterHint)
		if err != nil {
			return nil, false, err
		}
		call.Cluster = id
	}

	if len(call.Missing()) > 0 {
		return clarify(call), true, nil
	}
	return call, true, nil
}

// startsNewIntent reports whether the utterance on its own resolves above
// the floor to a capability other than the pending one.
func (r *RuleResolver) startsNewIntent(req Request) bool {
	pending := req.Pending.Call.Ref()
	var above []capability.Match
	for _, c := range req.Candidates {
		if m := capability.Score(req.Utterance, c); m.Score >= r.floor {
			above = append(above, m)
		}
	}
	if len(above) == 0 {
		return false
	}
	sortMatches(above, pending.AgentID)
	return above[0].Capability.Ref() != pending
}

func (r *RuleResolver) resolveFresh(req Request) (Outcome, error) {
	prev := previousCall(req.History)
	lastAgent := ""
	if prev != nil {
		lastAgent = prev.Agent
	}

	var above, below []capability.Match
	for _, c := range req.Candidates {
		m := capability.Score(req.Utterance, c)
		switch {
		case m.Score >= r.floor:
			above = append(above, m)
		case m.Score > 0:
			below = append(below, m)
		}
	}

	if len(above) == 0 {
		sortMatches(below, "")
		nm := &NoMatch{Utterance: req.Utterance}
		for i := 0; i < len(below) && i < maxSuggestions; i++ {
			nm.Suggestions = append(nm.Suggestions, below[i].Capability.Ref())
		}
		return nm, nil
	}

	sortMatches(above, lastAgent)
	best := above[0]

	call, hint := bind(req, best.Capability, prev)
	call.Confidence = best.Score

	if best.Capability.ClusterScoped && req.Clusters != nil {
		id, err := req.Clusters.ResolveTarget(hint)
		if err != nil {
			return nil, err
		}
		call.Cluster = id
	}

	if len(call.Missing()) > 0 {
		return clarify(call), nil
	}
	return call, nil
}

// sortMatches orders by score, then the most recently used agent, then exact
// function-name matches, then (agent, function).
func sortMatches(matches []capability.Match, lastAgent string) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if math.Abs(a.Score-b.Score) > scoreEpsilon {
			return a.Score > b.Score
		}
		if lastAgent != "" {
			aLast, bLast := a.Capability.AgentID == lastAgent, b.Capability.AgentID == lastAgent
			if aLast != bLast {
				return aLast
			}
		}
		if a.ExactName != b.ExactName {
			return a.ExactName
		}
		return a.Capability.Ref().Less(b.Capability.Ref())
	})
}

// bind applies the binding precedence: utterance, preceding call, default.
func bind(req Request, c capability.Capability, prev *history.CallRecord) (*ResolvedCall, string) {
	got := newExtractor(req.Utterance, clusterNames(req.Clusters)).extract(c)

	params := make(map[string]any, len(c.Params))
	for _, p := range c.Params {
		if v, ok := got.params[p.Name]; ok {
			params[p.Name] = v
			continue
		}
		if prev != nil {
			if v, ok := prev.Params[p.Name]; ok {
				if v, ok := carryOver(p, v); ok {
					params[p.Name] = v
					continue
				}
			}
		}
		if p.Default != nil {
			params[p.Name] = p.Default
		}
	}
	return &ResolvedCall{Capability: c, Params: params}, got.clusterHint
}

// carryOver converts a value from a previous call to the parameter's type.
// Values decoded from storage may have lost their Go type.
func carryOver(p capability.Param, v any) (any, bool) {
	if p.Name == paramNamespace && v == AllNamespaces {
		// "all" only makes sense for listing functions that ask for it.
		return nil, false
	}
	switch p.Type {
	case capability.TypeInteger:
		switch n := v.(type) {
		case int:
			return n, true
		case int64:
			return int(n), true
		case float64:
			if n == math.Trunc(n) {
				return int(n), true
			}
		}
		return nil, false
	case capability.TypeNumber:
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		}
		return nil, false
	case capability.TypeBoolean:
		b, ok := v.(bool)
		return b, ok
	default:
		s, ok := v.(string)
		return s, ok && s != ""
	}
}

// previousCall returns the call of the immediately preceding cycle: the
// turns after the last user turn before the current utterance. A preceding
// cycle without a call, such as a meta command or a failed resolution,
// carries nothing.
func previousCall(turns []history.Turn) *history.CallRecord {
	end := len(turns)
	if end > 0 && turns[end-1].Role == history.RoleUser {
		// The current utterance.
		end--
	}
	for i := end - 1; i >= 0; i-- {
		switch {
		case turns[i].Role == history.RoleUser:
			return nil
		case turns[i].Role == history.RoleResolver && turns[i].Call != nil:
			return turns[i].Call
		}
	}
	return nil
}

// cancelReplies abandon a pending clarification.
var cancelReplies = map[string]struct{}{
	"cancel": {}, "abort": {}, "stop": {}, "no": {}, "nothing": {}, "none": {},
	"never mind": {}, "nevermind": {}, "forget it": {}, "cancel that": {}, "don't": {},
}

func isCancel(utterance string) bool {
	u := strings.Trim(strings.ToLower(strings.TrimSpace(utterance)), ".,;:!?\"'")
	_, ok := cancelReplies[u]
	return ok
}

// commonActions name an action in any catalogue and are never a value.
var commonActions = []string{
	"get", "show", "list", "display", "describe", "fetch", "print", "check",
	"run", "restart", "scale", "apply", "delete", "remove", "create", "update",
	"switch", "change", "cancel", "abort", "stop", "help", "status", "functions",
}

// actionWords is the vocabulary that names an action of the pending
// capability or of any candidate.
func actionWords(pending capability.Capability, candidates []capability.Capability) map[string]struct{} {
	words := verbSet(pending)
	for _, c := range candidates {
		for w := range verbSet(c) {
			words[w] = struct{}{}
		}
	}
	for _, w := range commonActions {
		words[w] = struct{}{}
	}
	return words
}

// bareValue reads a reply that is only the value, such as "production" or
// "namespace production", for a single missing parameter. Action words are
// never taken as the value.
func bareValue(utterance string, p capability.Param, actions map[string]struct{}) (any, bool) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(utterance)))
	var rest []string
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'")
		if _, filler := fillerWords[f]; filler || f == "use" || f == "it's" || f == "is" {
			continue
		}
		if f == strings.ReplaceAll(p.Name, "_", " ") || f == p.Name {
			continue
		}
		rest = append(rest, f)
	}
	if len(rest) != 1 {
		return nil, false
	}
	if isVerb(rest[0], actions) {
		return nil, false
	}
	if _, ok := actions[rest[0]]; ok {
		return nil, false
	}
	if p.Type == capability.TypeString && !usableName(rest[0]) {
		return nil, false
	}
	return convert(p, rest[0])
}

func clusterNames(c ClusterResolver) []string {
	if c == nil {
		return nil
	}
	return c.Names()
}
