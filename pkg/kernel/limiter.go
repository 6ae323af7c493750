// Package kernel is the gateway's rate-limiting substrate: fixed-window
// counters with a burst allowance, keyed by client IP and (once
// authenticated) username, with live
// reconfigure and an optional Redis-backed store for multi-process
// deployments.
package kernel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Policy is a fixed-window rate limit with a burst allowance: a key's window
// opens at its first request and lasts WindowSeconds; inside it the first
// MaxRequests requests are allowed, then up to Burst more, then none until a
// request after the window has elapsed opens a new one. Windows do not slide,
// so requests on both sides of a window boundary are counted separately.
// MaxRequests == 0 rejects everything; a very large WindowSeconds behaves
// like a plain request counter.
type Policy struct {
	MaxRequests   int `json:"max_requests"`
	WindowSeconds int `json:"window_seconds"`
	Burst         int `json:"burst"`
}

// LimiterStore abstracts the counter storage so the gateway can run
// in-memory (single process) or against Redis (shared across processes).
type LimiterStore interface {
	// Allow records one request for key under policy and reports whether it
	// is within the policy's bounds.
	Allow(ctx context.Context, key string, policy Policy) (bool, error)
	// Reset clears all accumulated state for key, used by the admin
	// DELETE /admin/rate-limits/{clients,users}/{key} endpoints.
	Reset(ctx context.Context, key string) error
}

type window struct {
	start      time.Time
	count      int
	burstUsed  int
}

// InMemoryLimiterStore is a fixed-window counter per key (see Policy), safe for
// concurrent use. Suitable for the gateway's default single-process mode.
type InMemoryLimiterStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewInMemoryLimiterStore() *InMemoryLimiterStore {
	return &InMemoryLimiterStore{windows: make(map[string]*window), now: time.Now}
}

func (s *InMemoryLimiterStore) Allow(_ context.Context, key string, policy Policy) (bool, error) {
	if policy.MaxRequests <= 0 {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	win, ok := s.windows[key]
	windowLen := time.Duration(policy.WindowSeconds) * time.Second
	if windowLen <= 0 {
		windowLen = time.Second
	}

	if !ok || now.Sub(win.start) >= windowLen {
		win = &window{start: now}
		s.windows[key] = win
	}

	win.count++
	if win.count <= policy.MaxRequests {
		return true, nil
	}

	allowance := policy.MaxRequests + policy.Burst
	if win.count <= allowance {
		win.burstUsed++
		return true, nil
	}
	return false, nil
}

func (s *InMemoryLimiterStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// Gate enforces a Policy independently for client IP and authenticated
// username, and supports live reconfigure without restart.
type Gate struct {
	mu       sync.RWMutex
	policy   Policy
	store    LimiterStore
	shedRate float64 // requests/sec, coarse pre-filter ahead of the window counters
	shedBurst int

	sheddersMu sync.Mutex
	shedders   map[string]*rate.Limiter
}

func NewGate(store LimiterStore, policy Policy) *Gate {
	return &Gate{
		store:     store,
		policy:    policy,
		shedRate:  0, // disabled until SetSheddingRate is called
		shedders:  make(map[string]*rate.Limiter),
	}
}

// SetSheddingRate configures a coarse per-IP token bucket that rejects
// requests before they ever reach the window counters — cheap
// protection against a single client's burst starving everyone else's
// window budget. A ratePerSec of 0 disables shedding (the default).
func (g *Gate) SetSheddingRate(ratePerSec float64, burst int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.shedRate = ratePerSec
	g.shedBurst = burst

	g.sheddersMu.Lock()
	g.shedders = make(map[string]*rate.Limiter)
	g.sheddersMu.Unlock()
}

func (g *Gate) shedderFor(ip string) *rate.Limiter {
	g.mu.RLock()
	r, burst := g.shedRate, g.shedBurst
	g.mu.RUnlock()

	g.sheddersMu.Lock()
	defer g.sheddersMu.Unlock()
	lim, ok := g.shedders[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(r), burst)
		g.shedders[ip] = lim
	}
	return lim
}

// SetPolicy reconfigures the policy in effect for all future checks.
func (g *Gate) SetPolicy(p Policy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.policy = p
}

func (g *Gate) Policy() Policy {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.policy
}

// Check enforces the current policy against both the client IP and the
// authenticated username (username may be empty for unauthenticated calls).
// It reports which scope rejected the request, if any.
func (g *Gate) Check(ctx context.Context, clientIP, username string) (allowed bool, scope string, err error) {
	policy := g.Policy()

	g.mu.RLock()
	shedding := g.shedRate > 0
	g.mu.RUnlock()
	if shedding && clientIP != "" && !g.shedderFor(clientIP).Allow() {
		return false, "client", nil
	}

	if clientIP != "" {
		ok, err := g.store.Allow(ctx, "ip:"+clientIP, policy)
		if err != nil {
			return false, "", fmt.Errorf("kernel: rate check ip: %w", err)
		}
		if !ok {
			return false, "client", nil
		}
	}

	if username != "" {
		ok, err := g.store.Allow(ctx, "user:"+username, policy)
		if err != nil {
			return false, "", fmt.Errorf("kernel: rate check user: %w", err)
		}
		if !ok {
			return false, "user", nil
		}
	}

	return true, "", nil
}

// ResetClient clears rate-limit state for one client IP.
func (g *Gate) ResetClient(ctx context.Context, ip string) error {
	return g.store.Reset(ctx, "ip:"+ip)
}

// ResetUser clears rate-limit state for one username.
func (g *Gate) ResetUser(ctx context.Context, username string) error {
	return g.store.Reset(ctx, "user:"+username)
}
