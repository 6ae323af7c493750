// Package sandbox runs a pool of long-lived subprocess workers that execute
// a whitelisted (action, params) pair in isolation and return a JSON result
// or a classified error, with bounded latency and payload size.
//
// Workers speak newline-delimited JSON over stdio, grounded on the
// reference stdio MCP client's one-shot protocol, generalized here into a
// persistent, health-checked, crash-backing-off pool.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Sentinel errors the Supervisor maps onto the gateway's closed error kinds.
var (
	ErrPayloadTooLarge   = errors.New("sandbox: payload exceeds size limit")
	ErrTimeout           = errors.New("sandbox: call timed out")
	ErrSandboxUnavailable = errors.New("sandbox: no healthy worker available")
)

// WorkerSpec is the command line used to launch one worker process — either
// a direct binary (no isolation) or a "docker run ..." invocation built by
// BuildDockerWorkerSpec (full container isolation). Both speak the exact
// same newline-delimited JSON IPC contract, so the pool never needs to know
// which mode it's running in.
type WorkerSpec struct {
	Command string
	Args    []string
}

// BuildDirectWorkerSpec runs the worker binary as a plain subprocess.
func BuildDirectWorkerSpec(path string, args ...string) WorkerSpec {
	return WorkerSpec{Command: path, Args: args}
}

// BuildDockerWorkerSpec runs the worker inside a locked-down container: no
// added capabilities, no new privileges, read-only root filesystem, no
// network, a PID limit, a memory cap, and an optional seccomp profile.
func BuildDockerWorkerSpec(image string, seccompProfilePath string, memoryLimit string, pidLimit int) WorkerSpec {
	args := []string{
		"run", "--rm", "-i",
		"--cap-drop=ALL",
		"--security-opt", "no-new-privileges",
		"--read-only",
		"--network=none",
		"--pids-limit", fmt.Sprintf("%d", pidLimit),
		"--memory", memoryLimit,
	}
	if seccompProfilePath != "" {
		args = append(args, "--security-opt", "seccomp="+seccompProfilePath)
	}
	args = append(args, image)
	return WorkerSpec{Command: "docker", Args: args}
}

// Config tunes pool behavior.
type Config struct {
	Size             int
	CallTimeout      time.Duration
	MaxPayloadBytes  int
	HealthInterval   time.Duration
	MaxRestartBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.Size <= 0 {
		c.Size = 1
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = 256 * 1024
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
	if c.MaxRestartBackoff <= 0 {
		c.MaxRestartBackoff = 30 * time.Second
	}
	return c
}

// HealthGauge receives live worker counts; satisfied structurally by
// pkg/metrics.Registry so sandbox does not import it directly.
type HealthGauge interface {
	SetSandboxWorkers(healthy, total int)
}

// Pool owns a fixed-size set of workers and hands them out to callers.
type Pool struct {
	spec   WorkerSpec
	cfg    Config
	gauge  HealthGauge

	mu      sync.Mutex
	workers []*worker
	cond    *sync.Cond
	closed  bool

	cancelHealth context.CancelFunc
}

// NewPool starts cfg.Size workers and a background health-check loop.
func NewPool(spec WorkerSpec, cfg Config, gauge HealthGauge) (*Pool, error) {
	cfg = cfg.withDefaults()
	p := &Pool{spec: spec, cfg: cfg, gauge: gauge}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < cfg.Size; i++ {
		w := newWorker(spec, cfg.MaxRestartBackoff)
		if err := w.start(); err != nil {
			return nil, fmt.Errorf("sandbox: start worker %d: %w", i, err)
		}
		p.workers = append(p.workers, w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancelHealth = cancel
	go p.healthLoop(ctx)

	p.reportHealth()
	return p, nil
}

// Call checks out a healthy worker, executes action/params with a
// per-call deadline, and returns the result (or a classified error).
func (p *Pool) Call(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	if len(params) > 0 {
		if oversized, err := payloadExceeds(params, p.cfg.MaxPayloadBytes); err != nil {
			return nil, fmt.Errorf("sandbox: marshal params: %w", err)
		} else if oversized {
			return nil, ErrPayloadTooLarge
		}
	}

	w, err := p.checkout()
	if err != nil {
		return nil, err
	}
	defer p.checkin(w)

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	result, err := w.call(callCtx, action, params, p.cfg.MaxPayloadBytes)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			w.kill()
			p.reportHealth()
			return nil, ErrTimeout
		}
		w.markCrashed()
		p.reportHealth()
		return nil, err
	}
	return result, nil
}

func (p *Pool) checkout() (*worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, w := range p.workers {
		if w.tryAcquire() {
			return w, nil
		}
	}
	// Every worker is busy or unhealthy: fail fast instead of queueing.
	return nil, ErrSandboxUnavailable
}

func (p *Pool) checkin(w *worker) {
	w.release()
	if !w.healthy() {
		p.respawn(w)
	}
}

func (p *Pool) respawn(w *worker) {
	go func() {
		w.waitBackoff()
		if err := w.start(); err != nil {
			w.scheduleRetry()
		}
		p.reportHealth()
	}()
}

func (p *Pool) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pingAll(ctx)
			p.reportHealth()
		}
	}
}

func (p *Pool) pingAll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	p.mu.Lock()
	workers := append([]*worker(nil), p.workers...)
	p.mu.Unlock()

	for _, w := range workers {
		w := w
		g.Go(func() error {
			if !w.tryAcquire() {
				return nil
			}
			defer w.release()
			callCtx, cancel := context.WithTimeout(gctx, p.cfg.CallTimeout)
			defer cancel()
			_, err := w.call(callCtx, "noop", nil, p.cfg.MaxPayloadBytes)
			if err != nil {
				w.markCrashed()
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pool) reportHealth() {
	if p.gauge == nil {
		return
	}
	p.mu.Lock()
	total := len(p.workers)
	healthy := 0
	for _, w := range p.workers {
		if w.healthy() {
			healthy++
		}
	}
	p.mu.Unlock()
	p.gauge.SetSandboxWorkers(healthy, total)
}

// Close terminates every worker and stops the health loop.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.cancelHealth()
	for _, w := range p.workers {
		w.kill()
	}
	return nil
}
