// Package supervisor implements the gateway's core pipeline: it turns a raw
// ToolCall into either a result, a deterministic validation error, a
// pending-approval ticket, or a policy denial, composing the kill-switch,
// per-user tool scope, content filter, schema registry, capability gate,
// risk scoring, approval bus, and sandbox pool in the exact stage order
// spec.md §4.1 specifies.
package supervisor

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/lattice-run/agentgw/pkg/api"
	"github.com/lattice-run/agentgw/pkg/approval"
	"github.com/lattice-run/agentgw/pkg/capabilities"
	"github.com/lattice-run/agentgw/pkg/contentfilter"
	"github.com/lattice-run/agentgw/pkg/crypto"
	"github.com/lattice-run/agentgw/pkg/killswitch"
	"github.com/lattice-run/agentgw/pkg/risk"
	"github.com/lattice-run/agentgw/pkg/sandbox"
	"github.com/lattice-run/agentgw/pkg/schema"
)

// ToolCall is the Supervisor's unit of work: a tool invocation addressed to
// a sandbox worker action, identified by a request id minted on ingress.
type ToolCall struct {
	RequestID string
	Tool      string
	Action    string
	Args      map[string]any
}

// ToolAction returns the dotted "tool.action" key schemas/manifests are
// registered under.
func (c ToolCall) ToolAction() string { return c.Tool + "." + c.Action }

// Actor is the caller identity the per-user tool-scope gate needs.
// Satisfied by *auth.User; kept as a narrow interface here so supervisor
// does not import pkg/auth.
type Actor interface {
	ToolAllowed(tool string) bool
}

// OutcomeKind discriminates the three terminal shapes process() can return.
type OutcomeKind string

const (
	OutcomeResult          OutcomeKind = "result"
	OutcomeError           OutcomeKind = "error"
	OutcomePendingApproval OutcomeKind = "pending_approval"
)

// Outcome is the result of Process, cached for idempotent replay.
type Outcome struct {
	Kind       OutcomeKind
	Result     map[string]any
	Err        *api.Error
	ApprovalID int64
}

// AuditSink is the narrow audit interface the Supervisor and Approval Bus
// share; satisfied by *audit.Sink.
type AuditSink interface {
	Record(actor, event string, details map[string]any) error
}

// Metrics is the narrow observability interface the Supervisor needs;
// satisfied by *metrics.Registry.
type Metrics interface {
	IncToolCalls(tool string)
	IncValidationErrors(tool string)
	ObserveToolCallDuration(tool string, d time.Duration)
}

// SandboxDispatcher is the narrow dispatch interface the Supervisor needs;
// satisfied by *sandbox.Pool. Narrowed to an interface so tests can swap in
// a fake worker without spawning a real subprocess.
type SandboxDispatcher interface {
	Call(ctx context.Context, action string, params map[string]any) (map[string]any, error)
}

const idempotenceCacheSize = 10000

// Supervisor composes every policy stage and the sandbox pool behind the
// single process() pipeline operation.
type Supervisor struct {
	KillSwitch     *killswitch.Switch
	ContentFilter  *contentfilter.Filter
	Schemas        *schema.Registry
	Capabilities   *capabilities.Gate
	Approvals      *approval.Bus
	Sandbox        SandboxDispatcher
	Audit          AuditSink
	Metrics        Metrics

	mu    sync.Mutex
	cache map[string]*Outcome
	order *list.List // of request ids, front = oldest
	elems map[string]*list.Element

	// pendingCalls holds the originally validated/filtered ToolCall for an
	// approval id awaiting resolution, so resumption at stage 8 never
	// re-validates or re-filters.
	pendingMu sync.Mutex
	pending   map[int64]pendingCall
}

type pendingCall struct {
	call      ToolCall
	actorName string
}

// New builds a Supervisor and wires Approvals.OnResolve to resume the
// pipeline at stage 8 when a call is approved.
func New(ks *killswitch.Switch, cf *contentfilter.Filter, schemas *schema.Registry, caps *capabilities.Gate, approvals *approval.Bus, pool SandboxDispatcher, auditSink AuditSink, metrics Metrics) *Supervisor {
	s := &Supervisor{
		KillSwitch:    ks,
		ContentFilter: cf,
		Schemas:       schemas,
		Capabilities:  caps,
		Approvals:     approvals,
		Sandbox:       pool,
		Audit:         auditSink,
		Metrics:       metrics,
		cache:         make(map[string]*Outcome),
		order:         list.New(),
		elems:         make(map[string]*list.Element),
		pending:       make(map[int64]pendingCall),
	}
	approvals.OnResolve = s.resumeApproved
	return s
}

func (s *Supervisor) audit(actor, event string, details map[string]any) {
	if s.Audit == nil {
		return
	}
	_ = s.Audit.Record(actor, event, details)
}

// Process runs call through the full pipeline on behalf of who (use
// "anonymous" for an unauthenticated/system caller). actor is consulted for
// the per-user tool-scope gate and may be nil for a caller with no scope
// restrictions. The same request id is accepted at most once: replays
// return the cached outcome.
func (s *Supervisor) Process(ctx context.Context, call ToolCall, who string, actor Actor) *Outcome {
	if cached, ok := s.cached(call.RequestID); ok {
		return cached
	}

	outcome := s.run(ctx, call, who, actor)
	s.remember(call.RequestID, outcome)
	return outcome
}

// Validate runs stages 1 through 5 of the pipeline (kill-switch, tool
// scope, content filter, schema validation, capability gate) without ever
// reaching the sandbox, for POST /validate. A nil return means the call
// would be accepted for dispatch or approval routing.
func (s *Supervisor) Validate(call ToolCall, who string, actor Actor) *api.Error {
	if who == "" {
		who = "anonymous"
	}
	outcome, _, _ := s.checkThroughCapabilities(call, who, actor)
	if outcome != nil {
		return outcome.Err
	}
	return nil
}

func (s *Supervisor) checkThroughCapabilities(call ToolCall, who string, actor Actor) (*Outcome, risk.Level, bool) {
	// Stage 1: kill-switch gate.
	if status := s.KillSwitch.Status(); status.Active {
		return &Outcome{Kind: OutcomeError, Err: api.New(api.KindServiceUnavailable, status.Reason)}, "", false
	}

	// Stage 2: per-user tool-scope gate.
	if actor != nil && !actor.ToolAllowed(call.Tool) {
		s.audit(who, "tool_not_permitted", map[string]any{"tool": call.Tool, "request_id": call.RequestID})
		return &Outcome{Kind: OutcomeError, Err: api.New(api.KindToolNotPermitted, "actor is not permitted to call this tool")}, "", false
	}

	// Stage 3: content filter.
	if s.ContentFilter != nil {
		violation, err := s.ContentFilter.Check(call.Args)
		if err == nil && violation != nil {
			s.audit(who, "content_policy_violation", map[string]any{"rule": violation.Label, "tool": call.Tool})
			return &Outcome{Kind: OutcomeError, Err: api.New(api.KindContentPolicyViolation, "rejected by content filter: "+violation.Label)}, "", false
		}
	}

	// Stage 4: schema validation.
	toolAction := call.ToolAction()
	details, err := s.Schemas.Validate(toolAction, call.Args)
	if err != nil {
		return &Outcome{Kind: OutcomeError, Err: api.New(api.KindUnknownTool, "no schema registered for "+toolAction)}, "", false
	}
	if len(details) > 0 {
		if s.Metrics != nil {
			s.Metrics.IncValidationErrors(call.Tool)
		}
		wireDetails := make([]api.ValidationError, len(details))
		for i, d := range details {
			wireDetails[i] = api.ValidationError{Token: d.Token, Pointer: d.Pointer, Message: d.Message}
		}
		return &Outcome{Kind: OutcomeError, Err: api.New(api.KindSchemaValidationFailed, "argument validation failed").WithDetails(wireDetails...)}, "", false
	}

	// Stage 5: capability / manifest gate.
	riskLevel := risk.Score(toolAction, call.Args)
	requiresApproval := false
	if manifest, ok := s.Schemas.Manifest(toolAction); ok {
		result, err := s.Capabilities.Check(manifest, call.Args)
		if err != nil {
			s.audit(who, "capability_denied", map[string]any{"tool": call.Tool, "reason": err.Error()})
			return &Outcome{Kind: OutcomeError, Err: api.New(api.KindCapabilityDenied, err.Error())}, "", false
		}
		if result.RiskLevel != "" {
			riskLevel = risk.Level(result.RiskLevel)
		}
		requiresApproval = result.RequiresApproval
	}

	return nil, riskLevel, requiresApproval
}

func (s *Supervisor) run(ctx context.Context, call ToolCall, who string, actor Actor) *Outcome {
	if who == "" {
		who = "anonymous"
	}

	blocked, riskLevel, requiresApproval := s.checkThroughCapabilities(call, who, actor)
	if blocked != nil {
		return blocked
	}

	// Stage 6: risk scoring already folded into riskLevel above.

	// Stage 7: approval routing.
	if riskLevel == risk.High || requiresApproval {
		approvalRec, err := s.Approvals.Create(call.RequestID, call.Tool, call.Action, call.Args, string(riskLevel), who)
		if err != nil {
			return &Outcome{Kind: OutcomeError, Err: api.New(api.KindApprovalQueueFull, "approval queue is full")}
		}
		s.pendingMu.Lock()
		s.pending[approvalRec.ID] = pendingCall{call: call, actorName: who}
		s.pendingMu.Unlock()
		return &Outcome{Kind: OutcomePendingApproval, ApprovalID: approvalRec.ID}
	}

	// Stage 8/9: sandbox dispatch + result.
	return s.dispatch(ctx, call, who)
}

func (s *Supervisor) dispatch(ctx context.Context, call ToolCall, who string) *Outcome {
	if s.Metrics != nil {
		s.Metrics.IncToolCalls(call.Tool)
	}
	start := time.Now()
	result, err := s.Sandbox.Call(ctx, call.Action, call.Args)
	if s.Metrics != nil {
		s.Metrics.ObserveToolCallDuration(call.Tool, time.Since(start))
	}

	fp, _ := crypto.Fingerprint(call.Args)
	if err != nil {
		kind, errEvent := classifySandboxError(err)
		s.audit(who, errEvent, map[string]any{"tool": call.Tool, "args_fingerprint": fp})
		return &Outcome{Kind: OutcomeError, Err: api.New(kind, err.Error())}
	}

	s.audit(who, "tool_call", map[string]any{
		"tool": call.Tool, "action": call.Action,
		"args_fingerprint": fp, "args_size": len(call.Args),
	})
	return &Outcome{Kind: OutcomeResult, Result: result}
}

func classifySandboxError(err error) (api.Kind, string) {
	switch err {
	case sandbox.ErrTimeout:
		return api.KindTimeout, "timeout"
	case sandbox.ErrSandboxUnavailable:
		return api.KindSandboxUnavailable, "sandbox_unavailable"
	case sandbox.ErrPayloadTooLarge:
		return api.KindPayloadTooLarge, "payload_too_large"
	default:
		return api.KindWorkerError, "worker_error"
	}
}

// resumeApproved is the Approval Bus's OnResolve callback: it re-enters the
// pipeline at stage 8 using the originally validated and filtered args, so
// a policy change between queue and resolution can't leak a now-invalid
// call through.
func (s *Supervisor) resumeApproved(a approval.Approval) {
	s.pendingMu.Lock()
	pc, ok := s.pending[a.ID]
	delete(s.pending, a.ID)
	s.pendingMu.Unlock()
	if !ok {
		return
	}

	outcome := s.dispatch(context.Background(), pc.call, pc.actorName)
	s.remember(pc.call.RequestID, outcome)
}

func (s *Supervisor) cached(requestID string) (*Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.cache[requestID]
	return o, ok
}

func (s *Supervisor) remember(requestID string, o *Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.elems[requestID]; ok {
		s.order.MoveToBack(elem)
		s.cache[requestID] = o
		return
	}

	s.cache[requestID] = o
	s.elems[requestID] = s.order.PushBack(requestID)

	for len(s.cache) > idempotenceCacheSize {
		oldest := s.order.Front()
		if oldest == nil {
			break
		}
		id := oldest.Value.(string)
		s.order.Remove(oldest)
		delete(s.elems, id)
		delete(s.cache, id)
	}
}

// ErrDuplicateRequest is the duplicate_request error value. Nothing in this
// module returns it: the Supervisor answers a repeated request id with the
// cached outcome, for as long as the id is retained.
var ErrDuplicateRequest = api.New(api.KindDuplicateRequest, "request_id already processed or in flight")
