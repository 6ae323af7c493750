// Package capabilities is the Supervisor's capability / manifest gate: it
// checks a tool.action's manifest against the gateway's configured
// allowed-capabilities set and its declared argument allow-list, then
// evaluates any CEL constraint expressions carried on the manifest.
package capabilities

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/lattice-run/agentgw/pkg/schema"
)

// DeniedError is returned for every gate failure; callers map it to the
// capability_denied error kind.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string { return "capability denied: " + e.Reason }

// Result is what the gate lifts into the Supervisor's next stage.
type Result struct {
	RiskLevel        string
	RequiresApproval bool
}

// Gate holds the gateway's configured allowed-capabilities set and caches
// compiled CEL programs for manifest constraints.
type Gate struct {
	allowed map[string]struct{}

	env      *cel.Env
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewGate builds a gate permitting exactly allowedCapabilities.
func NewGate(allowedCapabilities []string) (*Gate, error) {
	env, err := cel.NewEnv(cel.Variable("args", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("capabilities: cel env: %w", err)
	}

	allowed := make(map[string]struct{}, len(allowedCapabilities))
	for _, c := range allowedCapabilities {
		allowed[c] = struct{}{}
	}

	return &Gate{allowed: allowed, env: env, programs: make(map[string]cel.Program)}, nil
}

// Check enforces manifest m against args, returning the lifted risk
// decision on success or a *DeniedError on any failure.
func (g *Gate) Check(m schema.Manifest, args map[string]any) (*Result, error) {
	for _, required := range m.RequiredCapabilities {
		if _, ok := g.allowed[required]; !ok {
			return nil, &DeniedError{Reason: fmt.Sprintf("capability %q is not in the gateway's allowed set", required)}
		}
	}

	if len(m.AllowedArgKeys) > 0 {
		allowedKeys := make(map[string]struct{}, len(m.AllowedArgKeys))
		for _, k := range m.AllowedArgKeys {
			allowedKeys[k] = struct{}{}
		}
		for key := range args {
			if _, ok := allowedKeys[key]; !ok {
				return nil, &DeniedError{Reason: fmt.Sprintf("arg key %q is not permitted for this tool", key)}
			}
		}
	}

	for name, expr := range m.Constraints {
		ok, err := g.evaluate(expr, args)
		if err != nil {
			return nil, &DeniedError{Reason: fmt.Sprintf("constraint %q failed to evaluate: %v", name, err)}
		}
		if !ok {
			return nil, &DeniedError{Reason: fmt.Sprintf("constraint %q rejected this call", name)}
		}
	}

	return &Result{RiskLevel: m.RiskLevel, RequiresApproval: m.RequiresApproval}, nil
}

func (g *Gate) evaluate(expr string, args map[string]any) (bool, error) {
	prg, err := g.program(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]any{"args": args})
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("constraint did not evaluate to a bool")
	}
	return val, nil
}

func (g *Gate) program(expr string) (cel.Program, error) {
	g.mu.RLock()
	prg, hit := g.programs[expr]
	g.mu.RUnlock()
	if hit {
		return prg, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if prg, hit := g.programs[expr]; hit {
		return prg, nil
	}

	ast, issues := g.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	prg, err := g.env.Program(ast, cel.InterruptCheckFrequency(100), cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	g.programs[expr] = prg
	return prg, nil
}
