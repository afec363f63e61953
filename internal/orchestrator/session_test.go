package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateText(t *testing.T) {
	for st := StateAwaitingInput; st <= StateEnded; st++ {
		t.Run(st.String(), func(t *testing.T) {
			data, err := json.Marshal(st)
			require.NoError(t, err)

			var got State
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, st, got)
		})
	}

	var st State
	assert.Error(t, st.UnmarshalText([]byte("sleeping")))
}
