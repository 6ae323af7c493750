// Package contentfilter recursively walks tool-call arguments looking for
// literal substrings and regex patterns on a denylist, failing fast with the
// violating rule's label (never the matched text) on the first hit.
package contentfilter

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Rule is one deny rule. Exactly one of Literal or Pattern should be set;
// if both are set, Literal is checked first.
type Rule struct {
	ID      string `yaml:"id" json:"id"`
	Label   string `yaml:"label" json:"label"`
	Literal string `yaml:"literal,omitempty" json:"literal,omitempty"`
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`

	compiled *regexp.Regexp
}

// Bundle is the on-disk (or wire) shape of a rule set, versioned so admins
// can tell which generation is loaded.
type Bundle struct {
	Version   string    `yaml:"version" json:"version"`
	Rules     []Rule    `yaml:"rules" json:"rules"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// Filter evaluates arbitrary nested values against a live-reloadable rule
// set. Safe for concurrent use; SetBundle swaps the active rules atomically.
type Filter struct {
	mu     sync.RWMutex
	bundle Bundle
	path   string
	now    func() time.Time
}

func New() *Filter {
	return &Filter{now: time.Now}
}

// Load reads a YAML bundle from path and becomes the filter's persistence
// target for future SetBundle calls.
func Load(path string) (*Filter, error) {
	f := New()
	f.path = path

	data, err := readFileOrEmpty(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return f, nil
	}

	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("contentfilter: parse %s: %w", path, err)
	}
	if err := f.SetBundle(b); err != nil {
		return nil, err
	}
	return f, nil
}

// SetBundle compiles and swaps in a new rule set, persisting it to disk if
// the filter was opened with Load. Used by the admin reconfigure endpoint,
// so a bad regex must be rejected before anything is swapped in.
func (f *Filter) SetBundle(b Bundle) error {
	for i := range b.Rules {
		r := &b.Rules[i]
		if r.Pattern != "" {
			compiled, err := regexp.Compile(r.Pattern)
			if err != nil {
				return fmt.Errorf("contentfilter: rule %s: bad pattern: %w", r.ID, err)
			}
			r.compiled = compiled
		}
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = f.now().UTC()
	}

	f.mu.Lock()
	f.bundle = b
	path := f.path
	f.mu.Unlock()

	if path != "" {
		return f.persist(b)
	}
	return nil
}

func (f *Filter) persist(b Bundle) error {
	data, err := yaml.Marshal(b)
	if err != nil {
		return fmt.Errorf("contentfilter: marshal: %w", err)
	}
	return writeFileAtomic(f.path, data)
}

// Bundle returns the currently active rule set, for the admin GET endpoint.
func (f *Filter) Bundle() Bundle {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bundle
}

// Violation describes which rule rejected a call.
type Violation struct {
	RuleID string
	Label  string
}

// Check walks v (expected to be the call's args map, but works on any JSON-
// shaped value) collecting every string value — not map keys — and tests
// each against the active rules. The first match wins.
func (f *Filter) Check(v any) (*Violation, error) {
	f.mu.RLock()
	rules := f.bundle.Rules
	f.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	var violation *Violation
	walkStrings(v, func(s string) bool {
		for _, r := range rules {
			if r.Literal != "" && strings.Contains(s, r.Literal) {
				violation = &Violation{RuleID: r.ID, Label: r.Label}
				return false
			}
			if r.compiled != nil && r.compiled.MatchString(s) {
				violation = &Violation{RuleID: r.ID, Label: r.Label}
				return false
			}
		}
		return true
	})
	return violation, nil
}

// walkStrings recursively visits every string value reachable from v
// (through map[string]any and []any values; other types, pointers included,
// are skipped), calling visit for each. Stops early
// if visit returns false.
func walkStrings(v any, visit func(string) bool) bool {
	switch t := v.(type) {
	case string:
		return visit(t)
	case map[string]any:
		for _, val := range t {
			if !walkStrings(val, visit) {
				return false
			}
		}
	case []any:
		for _, val := range t {
			if !walkStrings(val, visit) {
				return false
			}
		}
	}
	return true
}
