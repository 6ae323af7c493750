// Package config loads the gateway's process configuration from the
// environment, following the reference's Load()-from-environment pattern:
// plain env vars with sane localhost defaults, no framework.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every environment-configurable option spec.md §6 names.
// Exact variable names are the implementer's choice; the option set itself
// is the contract.
type Config struct {
	// HTTP
	Port           string
	HealthPort     string
	AllowedOrigins []string

	// Auth & bootstrap
	AdminUsername   string
	AdminPassword   string
	BootstrapSecret string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Rate limiting
	RateLimitMaxRequests   int
	RateLimitWindowSeconds int
	RateLimitBurst         int
	RateLimitRedisAddr     string

	// Approval bus
	ApprovalTimeout        time.Duration
	ApprovalQueueMax       int
	ApprovalAlertThreshold int

	// Content filter
	ContentFilterPath string

	// Sandbox pool
	SandboxWorkerPath    string
	SandboxWorkerArgs    []string
	SandboxPoolSize      int
	SandboxCallTimeout   time.Duration
	SandboxMaxPayload    int
	ContainerImage       string
	SeccompProfilePath   string
	ContainerMemoryLimit string
	ContainerPIDLimit    int

	// Capabilities
	AllowedCapabilities []string

	// Webhook
	WebhookMaxRetries int

	// Key store / vault
	VaultAddr  string
	VaultToken string

	// Persisted state directory; every file-backed store is rooted here
	// unless an explicit path overrides it.
	DataDir string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getenvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// Load reads Config from the process environment, falling back to
// development-friendly localhost defaults everywhere a value is not set.
func Load() *Config {
	return &Config{
		Port:           getenv("GATEWAY_PORT", "8080"),
		HealthPort:     getenv("GATEWAY_HEALTH_PORT", "8081"),
		AllowedOrigins: getenvList("GATEWAY_ALLOWED_ORIGINS"),

		AdminUsername:   getenv("GATEWAY_ADMIN_USERNAME", "admin"),
		AdminPassword:   getenv("GATEWAY_ADMIN_PASSWORD", "test"),
		BootstrapSecret: os.Getenv("GATEWAY_BOOTSTRAP_SECRET"),
		AccessTokenTTL:  getenvDuration("GATEWAY_ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL: getenvDuration("GATEWAY_REFRESH_TOKEN_TTL", 7*24*time.Hour),

		RateLimitMaxRequests:   getenvInt("GATEWAY_RATE_LIMIT_MAX_REQUESTS", 60),
		RateLimitWindowSeconds: getenvInt("GATEWAY_RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitBurst:         getenvInt("GATEWAY_RATE_LIMIT_BURST", 10),
		RateLimitRedisAddr:     os.Getenv("GATEWAY_RATE_LIMIT_REDIS_ADDR"),

		ApprovalTimeout:        getenvDuration("GATEWAY_APPROVAL_TIMEOUT", 5*time.Minute),
		ApprovalQueueMax:       getenvInt("GATEWAY_APPROVAL_QUEUE_MAX", 10000),
		ApprovalAlertThreshold: getenvInt("GATEWAY_APPROVAL_ALERT_THRESHOLD", 50),

		ContentFilterPath: getenv("GATEWAY_CONTENT_FILTER_PATH", "data/content_filter.yaml"),

		SandboxWorkerPath:    getenv("GATEWAY_SANDBOX_WORKER_PATH", "sandboxworker"),
		SandboxPoolSize:      getenvInt("GATEWAY_SANDBOX_POOL_SIZE", 2),
		SandboxCallTimeout:   getenvDuration("GATEWAY_SANDBOX_CALL_TIMEOUT", 5*time.Second),
		SandboxMaxPayload:    getenvInt("GATEWAY_SANDBOX_MAX_PAYLOAD_BYTES", 256*1024),
		ContainerImage:       os.Getenv("GATEWAY_CONTAINER_IMAGE"),
		SeccompProfilePath:   os.Getenv("GATEWAY_SECCOMP_PROFILE_PATH"),
		ContainerMemoryLimit: getenv("GATEWAY_CONTAINER_MEMORY_LIMIT", "256m"),
		ContainerPIDLimit:    getenvInt("GATEWAY_CONTAINER_PID_LIMIT", 64),

		AllowedCapabilities: getenvList("GATEWAY_ALLOWED_CAPABILITIES"),

		WebhookMaxRetries: getenvInt("GATEWAY_WEBHOOK_MAX_RETRIES", 3),

		VaultAddr:  os.Getenv("GATEWAY_VAULT_ADDR"),
		VaultToken: os.Getenv("GATEWAY_VAULT_TOKEN"),

		DataDir: getenv("GATEWAY_DATA_DIR", "data"),
	}
}

// UsesContainerSandbox reports whether the operator configured a container
// image, in which case cmd/gateway builds a docker WorkerSpec instead of a
// direct subprocess one.
func (c *Config) UsesContainerSandbox() bool {
	return c.ContainerImage != ""
}
