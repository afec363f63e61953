package intent

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/giantswarm/kratos/internal/capability"
)

// Well-known parameter names with dedicated extraction rules.
const (
	paramNamespace   = "namespace"
	paramReplicas    = "replicas"
	paramTailLines   = "tail_lines"
	paramContainer   = "container_name"
	paramClusterName = "cluster_name"
	paramYAML        = "yaml_content"

	// AllNamespaces selects every namespace.
	AllNamespaces = "all"
)

const namePattern = `[a-z0-9](?:[a-z0-9.-]*[a-z0-9])?`

var (
	keyValueRe = regexp.MustCompile(`(?i)\b([a-z_][a-z0-9_]*)\s*=\s*("[^"]*"|'[^']*'|\S+)`)

	replicasRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(\d+)\s+(?:replicas?|instances?|copies)\b`),
		regexp.MustCompile(`(?i)\breplicas?\s*(?:to|of|:)?\s*(\d+)\b`),
		regexp.MustCompile(`(?i)\b(?:to|up|down)\s+(\d+)\b`),
	}
	tailLinesRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:last|tail)\s+(\d+)(?:\s+lines?)?\b`),
		regexp.MustCompile(`(?i)\b(\d+)\s+lines?\b`),
	}

	allNamespacesRe = regexp.MustCompile(`(?i)\b(?:all|every|across)\s+(?:the\s+)?namespaces?\b|\bnamespace\s+all\b|\ball\s+namespaces\b`)
	namespaceRe     = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bnamespace[:\s]+(` + namePattern + `)`),
		regexp.MustCompile(`(?i)(?:^|\s)(?:-n|ns)\s+(` + namePattern + `)`),
		regexp.MustCompile(`(?i)\b(` + namePattern + `)\s+namespace\b`),
	}
	inRe = regexp.MustCompile(`(?i)\b(?:in|within)\s+(?:the\s+)?(` + namePattern + `)`)

	// strictClusterRe name a cluster unambiguously, known or not.
	strictClusterRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:on|in|at|against|for)\s+(?:the\s+)?cluster[:\s]+(` + namePattern + `)`),
		regexp.MustCompile(`(?i)\b(?:on|in|at|against)\s+(?:the\s+)?(` + namePattern + `)\s+cluster\b`),
		regexp.MustCompile(`(?i)\bcluster[:=]\s*(` + namePattern + `)`),
	}
	// looseClusterRe only count when the name is a known cluster.
	looseClusterRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bcluster\s+(` + namePattern + `)`),
		regexp.MustCompile(`(?i)\b(?:on|at|against)\s+(?:the\s+)?(` + namePattern + `)`),
	}

	switchRe    = regexp.MustCompile(`(?i)\b(?:switch|change|move|use|go)\s+(?:over\s+)?(?:to\s+)?(?:the\s+)?(?:cluster\s+)?(` + namePattern + `)`)
	containerRe = regexp.MustCompile(`(?i)(?:\bcontainer|(?:^|\s)-c)\s+(` + namePattern + `)`)
	objectRe    = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:deployment|deploy|pod)\s+(?:named\s+|called\s+)?(` + namePattern + `)`),
		regexp.MustCompile(`(?i)\b(` + namePattern + `)\s+(?:deployment|deploy|pod)\b`),
	}
	yamlRe = regexp.MustCompile(`(?s)(apiVersion:.*)$`)
)

// fillerWords never name an object.
var fillerWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "in": {}, "on": {}, "of": {}, "for": {},
	"me": {}, "my": {}, "please": {}, "and": {}, "with": {}, "from": {}, "at": {},
	"named": {}, "called": {}, "deployment": {}, "deploy": {}, "pod": {}, "pods": {},
	"namespace": {}, "cluster": {}, "it": {}, "its": {}, "this": {}, "that": {},
	"up": {}, "down": {}, "all": {}, "now": {}, "again": {},
}

// extraction is what an utterance says about parameters and the target.
type extraction struct {
	params      map[string]any
	clusterHint string
}

// extractor pulls parameter values out of one utterance.
type extractor struct {
	text     string
	lower    string
	clusters []string
	// preferNamespace makes "in X" bind the namespace even when X names a
	// cluster, used when the namespace is what a clarification asked for.
	preferNamespace bool
}

func newExtractor(utterance string, clusters []string) *extractor {
	return &extractor{
		text:     strings.TrimSpace(utterance),
		lower:    strings.ToLower(strings.TrimSpace(utterance)),
		clusters: clusters,
	}
}

func (e *extractor) isCluster(name string) bool {
	return slices.Contains(e.clusters, strings.ToLower(name))
}

// extract binds every parameter of c that the utterance names.
func (e *extractor) extract(c capability.Capability) extraction {
	out := extraction{params: map[string]any{}}

	explicit := e.keyValues()
	if v, ok := explicit["cluster"]; ok {
		out.clusterHint = v
	}

	rest := e.lower
	if out.clusterHint == "" {
		out.clusterHint, rest = e.clusterHint()
	}

	objectTaken := false
	for _, p := range c.Params {
		if raw, ok := explicit[p.Name]; ok {
			if v, ok := convert(p, raw); ok {
				out.params[p.Name] = v
				if isObjectParam(p) {
					objectTaken = true
				}
				continue
			}
		}

		var (
			raw string
			ok  bool
		)
		switch {
		case p.Name == paramNamespace:
			raw, ok = e.namespace(rest)
		case p.Name == paramReplicas:
			raw, ok = firstSubmatch(replicasRe, rest)
		case p.Name == paramTailLines:
			raw, ok = firstSubmatch(tailLinesRe, rest)
		case p.Name == paramContainer:
			raw, ok = firstSubmatch([]*regexp.Regexp{containerRe}, rest)
		case p.Name == paramClusterName:
			raw, ok = e.clusterName(out.clusterHint)
		case p.Name == paramYAML:
			raw, ok = e.manifest()
		case isObjectParam(p) && !objectTaken:
			raw, ok = e.objectName(c, rest)
			objectTaken = ok
		}
		if !ok {
			continue
		}
		if v, ok := convert(p, raw); ok {
			out.params[p.Name] = v
		}
	}
	return out
}

// keyValues returns explicit name=value pairs.
func (e *extractor) keyValues() map[string]string {
	out := map[string]string{}
	for _, m := range keyValueRe.FindAllStringSubmatch(e.text, -1) {
		key := strings.ToLower(m[1])
		if _, seen := out[key]; seen {
			continue
		}
		out[key] = strings.Trim(m[2], `"'`)
	}
	return out
}

// clusterHint finds an explicitly named cluster and returns the text with
// that phrase removed so it cannot be read as a namespace.
func (e *extractor) clusterHint() (string, string) {
	cut := func(loc []int) (string, string) {
		return e.lower[loc[2]:loc[3]], e.lower[:loc[0]] + " " + e.lower[loc[1]:]
	}
	for _, re := range strictClusterRe {
		if loc := re.FindStringSubmatchIndex(e.lower); loc != nil {
			return cut(loc)
		}
	}
	for _, re := range looseClusterRe {
		for _, loc := range re.FindAllStringSubmatchIndex(e.lower, -1) {
			if e.isCluster(e.lower[loc[2]:loc[3]]) {
				return cut(loc)
			}
		}
	}
	if !e.preferNamespace {
		for _, loc := range inRe.FindAllStringSubmatchIndex(e.lower, -1) {
			if e.isCluster(e.lower[loc[2]:loc[3]]) {
				return cut(loc)
			}
		}
	}
	return "", e.lower
}

func (e *extractor) namespace(text string) (string, bool) {
	if allNamespacesRe.MatchString(text) {
		return AllNamespaces, true
	}
	if v, ok := firstSubmatch(namespaceRe, text); ok && v != "all" {
		return v, true
	}
	for _, m := range inRe.FindAllStringSubmatch(text, -1) {
		if _, filler := fillerWords[m[1]]; filler {
			continue
		}
		return m[1], true
	}
	return "", false
}

func (e *extractor) clusterName(hint string) (string, bool) {
	if hint != "" {
		return hint, true
	}
	if m := switchRe.FindStringSubmatch(e.lower); m != nil {
		if _, filler := fillerWords[m[1]]; !filler {
			return m[1], true
		}
	}
	for _, tok := range strings.Fields(e.lower) {
		if tok = strings.Trim(tok, ".,;:!?"); e.isCluster(tok) {
			return tok, true
		}
	}
	return "", false
}

func (e *extractor) manifest() (string, bool) {
	if m := yamlRe.FindStringSubmatch(e.text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

// objectName finds the object a verb acts on: "restart nginx", "scale the
// web-app deployment", "logs of api-0".
func (e *extractor) objectName(c capability.Capability, text string) (string, bool) {
	for _, re := range objectRe {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if usableName(m[1]) {
				return m[1], true
			}
		}
	}

	verbs := verbSet(c)
	tokens := strings.Fields(text)
	for i, tok := range tokens {
		if !isVerb(tok, verbs) {
			continue
		}
		for _, next := range tokens[i+1:] {
			next = strings.Trim(next, ".,;:!?\"'")
			if _, stop := stopWords[next]; stop {
				break
			}
			if isVerb(next, verbs) {
				continue
			}
			if usableName(next) {
				return next, true
			}
		}
		break
	}
	return "", false
}

// stopWords end the search for an object after a verb.
var stopWords = map[string]struct{}{
	"in": {}, "on": {}, "at": {}, "to": {}, "within": {}, "across": {}, "against": {},
}

// verbSet is the vocabulary that names the action of c.
func verbSet(c capability.Capability) map[string]struct{} {
	set := map[string]struct{}{}
	for _, t := range capability.Tokenize(strings.ReplaceAll(c.Function, "_", " ")) {
		set[t] = struct{}{}
	}
	for _, kw := range c.Keywords {
		for _, t := range capability.Tokenize(kw) {
			set[t] = struct{}{}
		}
	}
	return set
}

func isVerb(tok string, verbs map[string]struct{}) bool {
	toks := capability.Tokenize(tok)
	if len(toks) != 1 {
		return false
	}
	_, ok := verbs[toks[0]]
	return ok
}

var fullNameRe = regexp.MustCompile(`^` + namePattern + `$`)

func usableName(s string) bool {
	if _, filler := fillerWords[s]; filler {
		return false
	}
	if _, err := strconv.Atoi(s); err == nil {
		return false
	}
	return fullNameRe.MatchString(s)
}

func isObjectParam(p capability.Param) bool {
	if p.Type != capability.TypeString {
		return false
	}
	switch p.Name {
	case paramContainer, paramClusterName, paramNamespace, paramYAML:
		return false
	case "name":
		return true
	}
	return strings.HasSuffix(p.Name, "_name")
}

func firstSubmatch(res []*regexp.Regexp, text string) (string, bool) {
	for _, re := range res {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// convert parses raw into the parameter's type.
func convert(p capability.Param, raw string) (any, bool) {
	switch p.Type {
	case capability.TypeInteger:
		n, err := strconv.Atoi(raw)
		return n, err == nil
	case capability.TypeNumber:
		f, err := strconv.ParseFloat(raw, 64)
		return f, err == nil
	case capability.TypeBoolean:
		b, err := strconv.ParseBool(raw)
		return b, err == nil
	default:
		return raw, raw != ""
	}
}
