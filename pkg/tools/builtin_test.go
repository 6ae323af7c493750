package tools_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-run/agentgw/pkg/schema"
	"github.com/lattice-run/agentgw/pkg/tools"
)

func TestRegisterBuiltins_CoversEverySeedScenarioTool(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, tools.RegisterBuiltins(reg))

	for _, toolAction := range []string{"noop.ping", "file.read", "file.write", "shell.exec", "network.request", "db.query"} {
		_, ok := reg.Manifest(toolAction)
		assert.True(t, ok, "expected %s to be registered", toolAction)
	}
}

func TestRegisterBuiltins_ShellExecRequiresApproval(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, tools.RegisterBuiltins(reg))

	m, ok := reg.Manifest("shell.exec")
	require.True(t, ok)
	assert.Equal(t, "high", m.RiskLevel)
	assert.True(t, m.RequiresApproval)
	assert.Equal(t, []string{"shell.exec"}, m.RequiredCapabilities)
}

func TestRequiredCapabilities_DedupedAcrossCatalog(t *testing.T) {
	caps := tools.RequiredCapabilities()
	assert.ElementsMatch(t, []string{"fs.read", "fs.write", "shell.exec", "net.request", "db.query"}, caps)

	seen := make(map[string]bool)
	for _, c := range caps {
		require.False(t, seen[c], "capability %q listed more than once", c)
		seen[c] = true
	}
}
