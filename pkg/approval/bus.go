// Package approval is the gateway's Approval Bus: a small, fully in-memory
// queue of pending human-approval decisions, a multi-subscriber broadcast
// (consumed as SSE by pkg/httpapi), a 1s timeout reaper, and hooks for
// webhook fan-out, audit, and resuming the Supervisor pipeline once a call
// is approved.
package approval

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is one of the Approval state machine's terminal or pending states.
type State string

const (
	Pending  State = "pending"
	Approved State = "approved"
	Rejected State = "rejected"
	TimedOut State = "timed_out"
)

// Approval is one queued human-approval request.
type Approval struct {
	ID         int64          `json:"id"`
	RequestID  string         `json:"request_id"`
	Tool       string         `json:"tool"`
	Action     string         `json:"action"`
	Args       map[string]any `json:"args"`
	Risk       string         `json:"risk"`
	Actor      string         `json:"actor"`
	State      State          `json:"state"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  time.Time      `json:"expires_at,omitempty"`
	Resolver   string         `json:"resolver,omitempty"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

// Event is one bus broadcast: a state transition for one Approval.
type Event struct {
	Kind       string    `json:"kind"` // approval.created / .approved / .rejected / .timed_out / slow_consumer
	Approval   Approval  `json:"approval"`
	EmittedAt  time.Time `json:"emitted_at"`
}

// ErrApprovalQueueFull is returned by Create once the pending count reaches
// the configured ceiling.
var ErrApprovalQueueFull = errors.New("approval: queue is full")

// ErrNotFound is returned when resolving an unknown approval id.
var ErrNotFound = errors.New("approval: not found")

const subscriberBuffer = 64

type subscriber struct {
	ch chan Event
}

// Bus owns the pending queue and the subscriber fan-out.
type Bus struct {
	mu          sync.Mutex
	pending     map[int64]*Approval
	nextID      int64
	maxPending  int
	timeout     time.Duration
	subscribers map[int64]*subscriber
	nextSubID   int64
	clock       func() time.Time

	// OnResolve is invoked (outside the bus lock) whenever an approval
	// reaches the Approved state, so the Supervisor can resume its pipeline
	// at stage 8 using the originally validated args.
	OnResolve func(Approval)
	// OnTerminal is invoked for every terminal transition (approved,
	// rejected, timed_out) for webhook fan-out.
	OnTerminal func(Event)
	// Audit records one audit line per creation/resolution.
	Audit func(event string, details map[string]any)
}

// NewBus constructs a Bus. timeout of 0 disables the reaper's auto-reject.
func NewBus(maxPending int, timeout time.Duration) *Bus {
	if maxPending <= 0 {
		maxPending = 10000
	}
	return &Bus{
		pending:     make(map[int64]*Approval),
		maxPending:  maxPending,
		timeout:     timeout,
		subscribers: make(map[int64]*subscriber),
		clock:       time.Now,
	}
}

// Create registers a new pending approval and broadcasts approval.created.
func (b *Bus) Create(requestID, tool, action string, args map[string]any, risk, actor string) (*Approval, error) {
	b.mu.Lock()
	if len(b.pending) >= b.maxPending {
		b.mu.Unlock()
		return nil, ErrApprovalQueueFull
	}

	b.nextID++
	now := b.clock()
	a := &Approval{
		ID:        b.nextID,
		RequestID: requestID,
		Tool:      tool,
		Action:    action,
		Args:      args,
		Risk:      risk,
		Actor:     actor,
		State:     Pending,
		CreatedAt: now,
	}
	if b.timeout > 0 {
		a.ExpiresAt = now.Add(b.timeout)
	}
	b.pending[a.ID] = a
	b.mu.Unlock()

	b.broadcast(Event{Kind: "approval.created", Approval: *a, EmittedAt: now})
	if b.Audit != nil {
		b.Audit("approval.created", map[string]any{"approval_id": a.ID, "tool": tool, "action": action, "risk": risk})
	}
	return a, nil
}

// Approve transitions id to Approved. Idempotent on terminal state: a
// repeat call on an already-terminal approval returns its current state,
// not an error.
func (b *Bus) Approve(id int64, resolver string) (*Approval, error) {
	return b.resolve(id, Approved, resolver, "")
}

// Reject transitions id to Rejected. Idempotent on terminal state.
func (b *Bus) Reject(id int64, resolver string) (*Approval, error) {
	return b.resolve(id, Rejected, resolver, "")
}

func (b *Bus) resolve(id int64, target State, resolver, reason string) (*Approval, error) {
	b.mu.Lock()
	a, ok := b.pending[id]
	if !ok {
		b.mu.Unlock()
		return nil, ErrNotFound
	}
	if a.State != Pending {
		current := *a
		b.mu.Unlock()
		return &current, nil
	}

	now := b.clock()
	a.State = target
	a.Resolver = resolver
	a.ResolvedAt = &now
	snapshot := *a
	b.mu.Unlock()

	ev := Event{Kind: "approval." + string(target), Approval: snapshot, EmittedAt: now}
	b.broadcast(ev)
	if b.OnTerminal != nil {
		b.OnTerminal(ev)
	}
	if target == Approved && b.OnResolve != nil {
		b.OnResolve(snapshot)
	}
	if b.Audit != nil {
		details := map[string]any{"approval_id": id, "resolver": resolver}
		if reason != "" {
			details["reason"] = reason
		}
		b.Audit("approval."+string(target), details)
	}
	return &snapshot, nil
}

// Get returns the current state of an approval, whether pending or resolved
// (resolved approvals stay in the bus's map with their terminal state, so
// Get keeps returning them after Approve/Reject/timeout).
func (b *Bus) Get(id int64) (*Approval, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.pending[id]
	if !ok {
		return nil, false
	}
	snapshot := *a
	return &snapshot, true
}

// PendingCount reports the current queue depth: the number of tracked
// approvals still in the Pending state (resolved entries are not counted).
func (b *Bus) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	count := 0
	for _, a := range b.pending {
		if a.State == Pending {
			count++
		}
	}
	return count
}

// List returns all approvals currently tracked (pending and recently
// resolved), newest first.
func (b *Bus) List() []Approval {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Approval, 0, len(b.pending))
	for _, a := range b.pending {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// Subscribe registers a new SSE-style subscriber and returns a channel that
// receives every event emitted after this call, plus an unsubscribe func.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	b.nextSubID++
	id := b.nextSubID
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	b.subscribers[id] = sub
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(s.ch)
		}
	}
	return sub.ch, unsubscribe
}

func (b *Bus) broadcast(ev Event) {
	b.mu.Lock()
	targets := make(map[int64]*subscriber, len(b.subscribers))
	for id, s := range b.subscribers {
		targets[id] = s
	}
	b.mu.Unlock()

	for id, s := range targets {
		select {
		case s.ch <- ev:
		default:
			b.dropSlowConsumer(id, s, ev.Approval.ID)
		}
	}
}

func (b *Bus) dropSlowConsumer(id int64, s *subscriber, approvalID int64) {
	b.mu.Lock()
	if _, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
	} else {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	// The buffer is full (that is why this subscriber is being dropped), so
	// discard the oldest buffered event to make room for the terminal
	// slow_consumer event.
	slow := Event{Kind: "slow_consumer", Approval: Approval{ID: approvalID}, EmittedAt: b.clock()}
	select {
	case s.ch <- slow:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- slow:
		default:
		}
	}
	close(s.ch)
}

// RunReaper blocks, waking every second, transitioning any pending approval
// older than the configured timeout to TimedOut. Intended to run in its own
// goroutine for the gateway's lifetime; returns when stop is closed.
func (b *Bus) RunReaper(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.reapOnce()
		}
	}
}

func (b *Bus) reapOnce() {
	if b.timeout <= 0 {
		return
	}
	now := b.clock()

	b.mu.Lock()
	var expired []int64
	for id, a := range b.pending {
		if a.State == Pending && !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	b.mu.Unlock()

	for _, id := range expired {
		_, _ = b.resolve(id, TimedOut, "reaper", "timeout exceeded")
	}
}

// NewRequestID mints a request identifier for callers that need one before
// a ToolCall reaches the Supervisor (e.g. the scheduler).
func NewRequestID() string {
	return uuid.New().String()
}
