package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"scale", "web", "app", "5", "replica"}, Tokenize("Scale web-app to 5 replicas"))
	assert.Equal(t, []string{"restart", "pod"}, Tokenize("restarting the pods!"))
	assert.Empty(t, Tokenize("the a to"))
}

func TestFindCandidates(t *testing.T) {
	r, err := NewRegistryFrom(testCapabilities())
	require.NoError(t, err)

	tests := []struct {
		name  string
		hint  string
		first string
		empty bool
	}{
		{name: "scale", hint: "scale web-app to 5 replicas", first: "scale_deployment"},
		{name: "restart", hint: "restart nginx", first: "restart_deployment"},
		{name: "misspelt restart", hint: "rstart nginx", first: "restart_deployment"},
		{name: "pods", hint: "show me the pods", first: "get_pods"},
		{name: "exact function name", hint: "run get_pods please", first: "get_pods"},
		{name: "unrelated", hint: "make me a sandwich", empty: true},
		{name: "empty", hint: "", empty: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.FindCandidates(tt.hint)
			if tt.empty {
				assert.Empty(t, got)
				return
			}
			require.NotEmpty(t, got)
			assert.Equal(t, tt.first, got[0].Function)
		})
	}
}

func TestRankDeterministic(t *testing.T) {
	r, err := NewRegistryFrom(testCapabilities())
	require.NoError(t, err)

	first := r.Snapshot().Rank("deployment")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, r.Snapshot().Rank("deployment"))
	}

	// Both deployment functions tie on "deployment"; lexical order breaks it.
	require.Len(t, first, 2)
	assert.Equal(t, first[0].Score, first[1].Score)
	assert.Equal(t, "restart_deployment", first[0].Capability.Function)
	assert.Equal(t, "scale_deployment", first[1].Capability.Function)
}

func TestScoreExactName(t *testing.T) {
	c := testCapabilities()[2]
	m := Score("get_pods", c)
	assert.True(t, m.ExactName)
	assert.Equal(t, 1.0, m.Score)

	m = Score("get pods", c)
	assert.False(t, m.ExactName)
	assert.Greater(t, m.Score, 0.5)
}
