package capability

import (
	"sort"
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"
)

// Score weights. An exact function-name token always scores 1.
const (
	nameWeight        = 0.6
	keywordWeight     = 0.3
	descriptionWeight = 0.1

	// fuzzyCredit is the credit given to a name token matched only fuzzily.
	fuzzyCredit = 0.5
	// minFuzzyLen is the shortest hint token considered for fuzzy matching.
	minFuzzyLen = 4
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "in": {}, "on": {}, "of": {}, "for": {},
	"me": {}, "my": {}, "please": {}, "and": {}, "with": {}, "is": {}, "it": {},
	"from": {}, "at": {}, "by": {}, "can": {}, "you": {}, "i": {}, "this": {},
	"that": {}, "all": {}, "some": {}, "be": {}, "are": {}, "what": {},
}

// Match is the score of one capability against a hint.
type Match struct {
	Capability Capability
	Score      float64
	// ExactName is true when the hint contains the function name verbatim.
	ExactName bool
}

// FindCandidates returns the capabilities with a positive score against hint,
// best first. Equal scores are ordered by (agent, function).
func (s *Snapshot) FindCandidates(hint string) []Capability {
	matches := s.Rank(hint)
	out := make([]Capability, len(matches))
	for i, m := range matches {
		out[i] = m.Capability
	}
	return out
}

// Rank scores every capability against hint and returns positive matches,
// best first. Equal scores are ordered by (agent, function).
func (s *Snapshot) Rank(hint string) []Match {
	var matches []Match
	for _, c := range s.ordered {
		m := Score(hint, c)
		if m.Score > 0 {
			m.Capability = c.clone()
			matches = append(matches, m)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Capability.Ref().Less(matches[j].Capability.Ref())
	})
	return matches
}

// Score computes the similarity between hint and c in [0, 1].
func Score(hint string, c Capability) Match {
	m := Match{Capability: c}
	if hasExactToken(hint, c.Function) {
		m.Score = 1
		m.ExactName = true
		return m
	}

	hintTokens := Tokenize(hint)
	if len(hintTokens) == 0 {
		return m
	}
	hintSet := make(map[string]struct{}, len(hintTokens))
	for _, t := range hintTokens {
		hintSet[t] = struct{}{}
	}

	nameTokens := Tokenize(strings.ReplaceAll(c.Function, "_", " "))
	var nameCredit float64
	for _, nt := range nameTokens {
		if _, ok := hintSet[nt]; ok {
			nameCredit++
			continue
		}
		if fuzzyContains(hintTokens, nt) {
			nameCredit += fuzzyCredit
		}
	}
	var nameScore float64
	if len(nameTokens) > 0 {
		nameScore = nameCredit / float64(len(nameTokens))
	}

	var keywordScore float64
	for _, kw := range c.Keywords {
		if containsAll(hintSet, Tokenize(kw)) {
			keywordScore = 1
			break
		}
	}

	var descScore float64
	if descTokens := unique(Tokenize(c.Description)); len(descTokens) > 0 {
		var hits int
		for _, dt := range descTokens {
			if _, ok := hintSet[dt]; ok {
				hits++
			}
		}
		descScore = float64(hits) / float64(len(descTokens))
	}

	m.Score = nameWeight*nameScore + keywordWeight*keywordScore + descriptionWeight*descScore
	return m
}

// Tokenize lowercases s, splits it on anything that is not a letter or
// digit, drops stop words and reduces simple plural and gerund forms.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, stem(f))
	}
	return out
}

func stem(word string) string {
	switch {
	case len(word) > 6 && strings.HasSuffix(word, "ing"):
		return strings.TrimSuffix(word, "ing")
	case len(word) > 3 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss"):
		return strings.TrimSuffix(word, "s")
	}
	return word
}

// hasExactToken reports whether a whitespace-separated token of hint equals name.
func hasExactToken(hint, name string) bool {
	for _, f := range strings.Fields(strings.ToLower(hint)) {
		if strings.Trim(f, ".,;:!?\"'`()") == name {
			return true
		}
	}
	return false
}

// fuzzyContains reports whether one of the hint tokens fuzzily matches target,
// e.g. a misspelt "rstart" against "restart".
func fuzzyContains(hintTokens []string, target string) bool {
	for _, ht := range hintTokens {
		if len(ht) < minFuzzyLen || len(ht)*4 < len(target)*3 {
			continue
		}
		if len(fuzzy.Find(ht, []string{target})) > 0 {
			return true
		}
	}
	return false
}

func containsAll(set map[string]struct{}, tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	for _, t := range tokens {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

func unique(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
