// Command gateway is the Agent Gateway process: it wires every pkg/ layer
// together in dependency order and serves the HTTP surface pkg/httpapi
// describes, following the reference's runServer() wiring texture (numbered
// stage comments, log.Fatalf on setup errors, a separate health port, and a
// blocking wait on SIGINT/SIGTERM).
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lattice-run/agentgw/pkg/approval"
	"github.com/lattice-run/agentgw/pkg/audit"
	"github.com/lattice-run/agentgw/pkg/auth"
	"github.com/lattice-run/agentgw/pkg/capabilities"
	"github.com/lattice-run/agentgw/pkg/config"
	"github.com/lattice-run/agentgw/pkg/consent"
	"github.com/lattice-run/agentgw/pkg/contentfilter"
	"github.com/lattice-run/agentgw/pkg/httpapi"
	"github.com/lattice-run/agentgw/pkg/kernel"
	"github.com/lattice-run/agentgw/pkg/keystore"
	"github.com/lattice-run/agentgw/pkg/killswitch"
	"github.com/lattice-run/agentgw/pkg/kms"
	"github.com/lattice-run/agentgw/pkg/memory"
	"github.com/lattice-run/agentgw/pkg/metrics"
	"github.com/lattice-run/agentgw/pkg/sandbox"
	"github.com/lattice-run/agentgw/pkg/scheduler"
	"github.com/lattice-run/agentgw/pkg/schema"
	"github.com/lattice-run/agentgw/pkg/supervisor"
	"github.com/lattice-run/agentgw/pkg/tools"
	"github.com/lattice-run/agentgw/pkg/webhook"
)

func main() {
	os.Exit(Run())
}

// Run is the entrypoint body, split out from main so tests can drive it
// without an os.Exit.
func Run() int {
	fmt.Fprintln(os.Stdout, "agentgw: starting")
	ctx := context.Background()
	cfg := config.Load()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("agentgw: failed to create data dir: %v", err)
	}
	dataPath := func(name string) string { return filepath.Join(cfg.DataDir, name) }

	// 1. KMS + encrypted stores (audit log, provider key vault)
	localKMS, err := kms.NewLocalKMS(dataPath("kms_keystore.json"))
	if err != nil {
		log.Fatalf("agentgw: failed to init KMS: %v", err)
	}

	auditSink, err := audit.Open(dataPath("audit.jsonl"), localKMS)
	if err != nil {
		log.Fatalf("agentgw: failed to open audit log: %v", err)
	}

	vault, err := keystore.Open(dataPath("provider_keys.json"), localKMS)
	if err != nil {
		log.Fatalf("agentgw: failed to open provider key vault: %v", err)
	}

	consentLog, err := consent.Open(dataPath("consent.jsonl"))
	if err != nil {
		log.Fatalf("agentgw: failed to open consent log: %v", err)
	}

	memStore, err := memory.Open(dataPath("memory.json"))
	if err != nil {
		log.Fatalf("agentgw: failed to open memory store: %v", err)
	}
	log.Println("[agentgw] stores: ready")

	// 2. Auth: users, sessions, bootstrap
	users, err := auth.OpenUserStore(dataPath("users.json"))
	if err != nil {
		log.Fatalf("agentgw: failed to open user store: %v", err)
	}
	if err := users.EnsureAdmin(cfg.AdminPassword); err != nil {
		log.Fatalf("agentgw: failed to provision admin user: %v", err)
	}
	sessions := auth.NewSessionStore(cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authSvc := auth.NewService(users, sessions, cfg.BootstrapSecret)
	log.Println("[agentgw] auth: ready")

	// 3. Rate limiting: Redis-backed in a multi-process deployment, in-memory
	// otherwise.
	var limiterStore kernel.LimiterStore
	if cfg.RateLimitRedisAddr != "" {
		limiterStore = kernel.NewRedisLimiterStore(cfg.RateLimitRedisAddr, "", 0)
		log.Printf("[agentgw] rate limiter: redis %s", cfg.RateLimitRedisAddr)
	} else {
		limiterStore = kernel.NewInMemoryLimiterStore()
		log.Println("[agentgw] rate limiter: in-memory")
	}
	rateGate := kernel.NewGate(limiterStore, kernel.Policy{
		MaxRequests:   cfg.RateLimitMaxRequests,
		WindowSeconds: cfg.RateLimitWindowSeconds,
		Burst:         cfg.RateLimitBurst,
	})

	// 4. Content filter, kill switch, webhooks
	contentFilter, err := contentfilter.Load(cfg.ContentFilterPath)
	if err != nil {
		log.Fatalf("agentgw: failed to load content filter bundle: %v", err)
	}
	killSwitch := killswitch.New()
	webhooks := webhook.New()
	log.Println("[agentgw] content filter, kill switch, webhooks: ready")

	// 5. Tool catalog: schema registry + capability manifests
	schemaRegistry := schema.NewRegistry()
	if err := tools.RegisterBuiltins(schemaRegistry); err != nil {
		log.Fatalf("agentgw: failed to register builtin tool catalog: %v", err)
	}
	allowedCapabilities := cfg.AllowedCapabilities
	if len(allowedCapabilities) == 0 {
		// No GATEWAY_ALLOWED_CAPABILITIES set: default to exactly what the
		// built-in catalog requires, so a freshly started gateway can reach
		// risk scoring/approval routing for its own tools instead of every
		// call dying at the capability gate (spec.md §8 scenario 4).
		allowedCapabilities = tools.RequiredCapabilities()
		log.Printf("[agentgw] capabilities: defaulting allowed set to builtin catalog: %v", allowedCapabilities)
	}
	capGate, err := capabilities.NewGate(allowedCapabilities)
	if err != nil {
		log.Fatalf("agentgw: failed to init capability gate: %v", err)
	}
	log.Println("[agentgw] tool catalog: ready")

	// 6. Sandbox pool: direct subprocess, or hardened docker container if an
	// image was configured.
	var workerSpec sandbox.WorkerSpec
	if cfg.UsesContainerSandbox() {
		workerSpec = sandbox.BuildDockerWorkerSpec(cfg.ContainerImage, cfg.SeccompProfilePath, cfg.ContainerMemoryLimit, cfg.ContainerPIDLimit)
		log.Printf("[agentgw] sandbox: docker image %s", cfg.ContainerImage)
	} else {
		workerSpec = sandbox.BuildDirectWorkerSpec(cfg.SandboxWorkerPath, cfg.SandboxWorkerArgs...)
		log.Printf("[agentgw] sandbox: direct subprocess %s", cfg.SandboxWorkerPath)
	}

	metricsReg := metrics.New()

	pool, err := sandbox.NewPool(workerSpec, sandbox.Config{
		Size:            cfg.SandboxPoolSize,
		CallTimeout:     cfg.SandboxCallTimeout,
		MaxPayloadBytes: cfg.SandboxMaxPayload,
	}, metricsReg)
	if err != nil {
		log.Fatalf("agentgw: failed to start sandbox pool: %v", err)
	}
	defer pool.Close()
	log.Println("[agentgw] sandbox pool: ready")

	// 7. Approval bus: webhook fan-out on every terminal transition, an
	// audit line on every creation and resolution, and OnResolve (wired by
	// supervisor.New below) to resume the pipeline once a human approves.
	approvals := approval.NewBus(cfg.ApprovalQueueMax, cfg.ApprovalTimeout)
	approvals.OnTerminal = func(ev approval.Event) {
		webhooks.Dispatch(ev.Kind, ev)
		switch ev.Approval.State {
		case approval.Approved, approval.Rejected:
			metricsReg.IncApprovalsResolved(string(ev.Approval.State))
		}
	}
	approvals.Audit = func(event string, details map[string]any) {
		_ = auditSink.Record("system", event, details)
	}
	metricsReg.SetApprovalsPending(0)

	// 8. Supervisor: the §4.1 nine-stage pipeline.
	sup := supervisor.New(killSwitch, contentFilter, schemaRegistry, capGate, approvals, pool, auditSink, metricsReg)
	log.Println("[agentgw] supervisor: ready")

	// 9. Scheduler: CEL-conditioned recurring tool calls, dispatched through
	// the same supervisor so scheduled calls go through every gate a live
	// call does.
	sched, err := scheduler.Open(dataPath("schedule.json"), sup, metricsReg, auditSink)
	if err != nil {
		log.Fatalf("agentgw: failed to open scheduler: %v", err)
	}

	server := httpapi.New(httpapi.Server{
		Auth:              authSvc,
		Users:             users,
		RateGate:          rateGate,
		Supervisor:        sup,
		Approvals:         approvals,
		Scheduler:         sched,
		ContentFilter:     contentFilter,
		Webhooks:          webhooks,
		KillSwitch:        killSwitch,
		Keystore:          vault,
		Memory:            memStore,
		Audit:             auditSink,
		Consent:           consentLog,
		Metrics:           metricsReg,
		AllowedOrigins:    cfg.AllowedOrigins,
		ContentFilterPath: cfg.ContentFilterPath,
	})

	// 10. Background loops.
	schedCtx, cancelSched := context.WithCancel(ctx)
	defer cancelSched()
	go sched.Run(schedCtx)

	reaperStop := make(chan struct{})
	defer close(reaperStop)
	go approvals.RunReaper(reaperStop)

	// Health server, separate from the main API port so liveness checks
	// never queue behind the rate limiter or auth middleware.
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	go func() {
		log.Printf("[agentgw] health server: :%s", cfg.HealthPort)
		if err := http.ListenAndServe(":"+cfg.HealthPort, healthMux); err != nil {
			log.Printf("[agentgw] health server error: %v", err)
		}
	}()

	go func() {
		log.Printf("[agentgw] api server: :%s", cfg.Port)
		if err := http.ListenAndServe(":"+cfg.Port, server.Routes()); err != nil {
			log.Printf("[agentgw] api server error: %v", err)
		}
	}()

	log.Println("[agentgw] ready: http://localhost:" + cfg.Port)
	log.Println("[agentgw] press ctrl+c to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("[agentgw] shutting down")
	return 0
}
