package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/kratos/internal/capability"
	"github.com/giantswarm/kratos/internal/k8sagent"
)

func TestCapabilitiesText(t *testing.T) {
	cmd := newCapabilitiesCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", writeRegistry(t, testRegistry)})

	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, len(k8sagent.Catalogue())+2)
	assert.True(t, strings.HasPrefix(lines[0], "AGENT"))
	assert.Contains(t, out.String(), "scale_deployment")
	assert.Contains(t, out.String(), "deployment_name*:string")
	assert.Contains(t, lines[1], "dns-agent", "agents are listed in order")
}

func TestCapabilitiesJSON(t *testing.T) {
	cmd := newCapabilitiesCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"-o", "json"})

	require.NoError(t, cmd.Execute())

	var caps []capability.Capability
	require.NoError(t, json.Unmarshal(out.Bytes(), &caps))
	assert.Len(t, caps, len(k8sagent.Catalogue()))
}

func TestCapabilitiesUnknownOutput(t *testing.T) {
	err := printCatalogue(&bytes.Buffer{}, nil, "yaml")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestFormatParams(t *testing.T) {
	assert.Equal(t, "-", formatParams(nil))
	assert.Equal(t, "name*:string,replicas:integer", formatParams([]capability.Param{
		{Name: "name", Type: capability.TypeString, Required: true},
		{Name: "replicas", Type: capability.TypeInteger},
	}))
}
