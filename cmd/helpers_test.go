package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testRegistry declares two clusters so no kubeconfig is read. Clients are
// built lazily, so the kubeconfig path need not exist.
const testRegistry = `
policy:
  max_rounds: 3
clusters:
  - id: staging
    kube_context: staging
    kubeconfig: /nonexistent/kubeconfig
    active: true
  - id: prod-eu
    display_name: Production EU
    kube_context: prod-eu
    kubeconfig: /nonexistent/kubeconfig
agents:
  - id: k8s-agent
    builtin: true
  - id: dns-agent
    command: dns-agent
    functions:
      - name: list_zones
        description: List DNS zones
        keywords: [dns, zones]
        idempotent: true
        cluster_scoped: false
`

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kratos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
