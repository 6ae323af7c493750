package config_test

import (
	"testing"
	"time"

	"github.com/lattice-run/agentgw/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "admin", cfg.AdminUsername)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 60, cfg.RateLimitMaxRequests)
	assert.Equal(t, 10000, cfg.ApprovalQueueMax)
	assert.Equal(t, 256*1024, cfg.SandboxMaxPayload)
	assert.False(t, cfg.UsesContainerSandbox())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GATEWAY_PORT", "9090")
	t.Setenv("GATEWAY_ADMIN_USERNAME", "root")
	t.Setenv("GATEWAY_ACCESS_TOKEN_TTL", "30m")
	t.Setenv("GATEWAY_RATE_LIMIT_MAX_REQUESTS", "5")
	t.Setenv("GATEWAY_ALLOWED_CAPABILITIES", "fs.read,fs.write,net.fetch")
	t.Setenv("GATEWAY_CONTAINER_IMAGE", "agentgw/sandbox:latest")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "root", cfg.AdminUsername)
	assert.Equal(t, 30*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 5, cfg.RateLimitMaxRequests)
	assert.Equal(t, []string{"fs.read", "fs.write", "net.fetch"}, cfg.AllowedCapabilities)
	assert.True(t, cfg.UsesContainerSandbox())
}
