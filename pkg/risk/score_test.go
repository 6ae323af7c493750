package risk_test

import (
	"strings"
	"testing"

	"github.com/lattice-run/agentgw/pkg/risk"
	"github.com/stretchr/testify/assert"
)

func TestScore_BaseFamilyLevels(t *testing.T) {
	assert.Equal(t, risk.High, risk.Score("shell.run", map[string]any{}))
	assert.Equal(t, risk.Med, risk.Score("file.write", map[string]any{}))
	assert.Equal(t, risk.Med, risk.Score("network.fetch", map[string]any{}))
	assert.Equal(t, risk.Low, risk.Score("noop.ping", map[string]any{}))
}

func TestScore_PathTraversalBumpsOneLevel(t *testing.T) {
	got := risk.Score("file.read", map[string]any{"path": "../../etc/passwd"})
	assert.Equal(t, risk.High, got)
}

func TestScore_DangerousCommandBumpsHighStaysHigh(t *testing.T) {
	got := risk.Score("shell.run", map[string]any{"cmd": "sudo rm -rf /"})
	assert.Equal(t, risk.High, got)
}

func TestScore_PrivateIPv4SSRFBump(t *testing.T) {
	got := risk.Score("network.fetch", map[string]any{"url": "http://192.168.1.1/admin"})
	assert.Equal(t, risk.High, got)
}

func TestScore_LargePayloadBumpsOneLevel(t *testing.T) {
	big := strings.Repeat("a", 70*1024)
	got := risk.Score("noop.ping", map[string]any{"blob": big})
	assert.Equal(t, risk.Med, got)
}

func TestScore_BenignArgsStayLow(t *testing.T) {
	got := risk.Score("noop.ping", map[string]any{"message": "hello"})
	assert.Equal(t, risk.Low, got)
}
