// Package schema is the per-tool.action argument schema registry: it
// compiles JSON Schemas with santhosh-tekuri/jsonschema and turns validation
// failures into the gateway's closed ERR_* token vocabulary so upstream
// models can correct deterministically.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrUnknownTool is returned by Validate when tool.action has no registered
// schema; callers translate this into the unknown_tool error kind.
var ErrUnknownTool = errors.New("schema: unknown tool.action")

// ValidationError is one schema-keyword failure, in the gateway's wire
// shape: a stable token, a JSON pointer into args, and a human message.
type ValidationError struct {
	Token   string
	Pointer string
	Message string
}

// Manifest carries the capability-gate metadata that rides alongside a
// tool.action's schema: which capabilities the call requires, which arg
// keys it's even allowed to touch, its baseline risk level, and whether it
// always requires human approval regardless of the risk score.
type Manifest struct {
	RequiredCapabilities []string          `json:"required_capabilities,omitempty"`
	AllowedArgKeys       []string          `json:"allowed_arg_keys,omitempty"`
	RiskLevel            string            `json:"risk_level,omitempty"` // "low", "med", "high"
	RequiresApproval     bool              `json:"requires_approval,omitempty"`
	Constraints          map[string]string `json:"constraints,omitempty"` // name -> CEL expression over args
}

type entry struct {
	schema   *jsonschema.Schema
	manifest Manifest
}

// Registry maps "tool.action" to a compiled schema and its manifest.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register compiles schemaJSON (a raw JSON Schema document) for toolAction
// and stores manifest alongside it. Re-registering replaces both.
func (r *Registry) Register(toolAction string, schemaJSON []byte, manifest Manifest) error {
	compiler := jsonschema.NewCompiler()
	url := "mem://" + toolAction + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("schema: add resource for %s: %w", toolAction, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("schema: compile %s: %w", toolAction, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[toolAction] = entry{schema: compiled, manifest: manifest}
	return nil
}

// Manifest returns the manifest registered for toolAction, if any.
func (r *Registry) Manifest(toolAction string) (Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[toolAction]
	return e.manifest, ok
}

// Validate checks args against toolAction's schema. A nil/empty result with
// a nil error means args passed validation.
func (r *Registry) Validate(toolAction string, args map[string]any) ([]ValidationError, error) {
	r.mu.RLock()
	e, ok := r.entries[toolAction]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownTool
	}

	err := e.schema.Validate(args)
	if err == nil {
		return nil, nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []ValidationError{{Token: "ERR_SCHEMA", Pointer: "/", Message: err.Error()}}, nil
	}

	var out []ValidationError
	for _, leaf := range leafCauses(ve) {
		out = append(out, ValidationError{
			Token:   tokenForKeyword(leaf.KeywordLocation),
			Pointer: normalizePointer(leaf.InstanceLocation),
			Message: leaf.Message,
		})
	}
	return out, nil
}

// leafCauses flattens the validation error tree to its leaves, which carry
// the actual failing keyword; internal nodes only aggregate ("allOf" etc).
func leafCauses(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leafCauses(c)...)
	}
	return out
}

func normalizePointer(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

func tokenForKeyword(keywordLocation string) string {
	parts := strings.Split(keywordLocation, "/")
	keyword := parts[len(parts)-1]

	switch keyword {
	case "required":
		return "ERR_REQUIRED"
	case "type":
		return "ERR_TYPE"
	case "enum":
		return "ERR_ENUM"
	case "pattern":
		return "ERR_PATTERN"
	case "additionalProperties":
		return "ERR_ADDITIONAL"
	case "maxLength":
		return "ERR_MAXLENGTH"
	case "minLength":
		return "ERR_MINLENGTH"
	case "minimum":
		return "ERR_MINIMUM"
	case "maximum":
		return "ERR_MAXIMUM"
	case "maxItems":
		return "ERR_MAXITEMS"
	case "minItems":
		return "ERR_MINITEMS"
	default:
		return "ERR_SCHEMA"
	}
}
