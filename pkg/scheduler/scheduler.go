// Package scheduler re-runs a stored tool call on an interval through the
// Supervisor, so a scheduled execution passes the same policy checks as a
// live one. Tasks persist as one JSON document, following the same
// whole-document, atomic-rename style as pkg/auth and pkg/keystore; the
// persisted-task-document shape itself is the reference's outbox pattern,
// adapted away from SQL since nothing in this module talks to a database.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"

	"github.com/lattice-run/agentgw/pkg/supervisor"
)

const maxHistoryPerTask = 50

// TaskRunRecord is one tick's outcome for a task, kept in a bounded ring.
type TaskRunRecord struct {
	Seq       int64          `json:"seq"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	OK        bool           `json:"ok"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Task is one scheduled tool call definition.
type Task struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Tool            string          `json:"tool"`
	Action          string          `json:"action"`
	Args            map[string]any  `json:"args"`
	IntervalSeconds int             `json:"interval_seconds"`
	Enabled         bool            `json:"enabled"`
	// Condition is an optional CEL expression over `args`; when set, a
	// task only fires on ticks where it evaluates true, in addition to
	// being due on the interval.
	Condition     string          `json:"condition,omitempty"`
	LastRunAt     *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt     time.Time       `json:"next_run_at"`
	RunCount      int64           `json:"run_count"`
	ErrorCount    int64           `json:"error_count"`
	History       []TaskRunRecord `json:"history,omitempty"`
	nextSeq       int64
}

type document struct {
	Tasks map[string]*Task `json:"tasks"`
}

// Dispatcher is the narrow Supervisor interface the scheduler calls
// through; satisfied by *supervisor.Supervisor.
type Dispatcher interface {
	Process(ctx context.Context, call supervisor.ToolCall, who string, actor supervisor.Actor) *supervisor.Outcome
}

// Metrics is the narrow observability interface the scheduler needs.
type Metrics interface {
	IncSchedulerRun(task string)
	IncSchedulerError(task string)
	ObserveSchedulerRunDuration(task string, d time.Duration)
}

// AuditSink is the narrow audit interface the scheduler needs.
type AuditSink interface {
	Record(actor, event string, details map[string]any) error
}

// Scheduler owns the persisted task set and the tick loop.
type Scheduler struct {
	mu   sync.Mutex
	path string
	doc  document

	dispatcher Dispatcher
	metrics    Metrics
	audit      AuditSink
	env        *cel.Env
	programs   map[string]cel.Program
	now        func() time.Time
}

// Open loads (or creates) the task document at path.
func Open(path string, dispatcher Dispatcher, metrics Metrics, audit AuditSink) (*Scheduler, error) {
	env, err := cel.NewEnv(cel.Variable("args", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("scheduler: cel env: %w", err)
	}

	s := &Scheduler{
		path:       path,
		doc:        document{Tasks: map[string]*Task{}},
		dispatcher: dispatcher,
		metrics:    metrics,
		audit:      audit,
		env:        env,
		programs:   make(map[string]cel.Program),
		now:        time.Now,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, s.persist()
	}
	if err != nil {
		return nil, fmt.Errorf("scheduler: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("scheduler: parse %s: %w", path, err)
	}
	if s.doc.Tasks == nil {
		s.doc.Tasks = map[string]*Task{}
	}
	for _, t := range s.doc.Tasks {
		for _, r := range t.History {
			if r.Seq > t.nextSeq {
				t.nextSeq = r.Seq
			}
		}
	}
	return s, nil
}

func (s *Scheduler) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("scheduler: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("scheduler: marshal: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("scheduler: write tmp: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Create registers a new scheduled task, due to run at now+interval.
func (s *Scheduler) Create(name, tool, action string, args map[string]any, intervalSeconds int, condition string) (*Task, error) {
	if condition != "" {
		if _, err := s.compile(condition); err != nil {
			return nil, fmt.Errorf("scheduler: invalid condition: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Task{
		ID:              uuid.NewString(),
		Name:            name,
		Tool:            tool,
		Action:          action,
		Args:            args,
		IntervalSeconds: intervalSeconds,
		Enabled:         true,
		Condition:       condition,
		NextRunAt:       s.now().UTC().Add(time.Duration(intervalSeconds) * time.Second),
	}
	s.doc.Tasks[t.ID] = t
	return t, s.persist()
}

// Get returns one task by id.
func (s *Scheduler) Get(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.doc.Tasks[id]
	return t, ok
}

// List returns every task.
func (s *Scheduler) List() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Task, 0, len(s.doc.Tasks))
	for _, t := range s.doc.Tasks {
		out = append(out, t)
	}
	return out
}

// ErrNotFound is returned by Update/Delete/Trigger for an unknown task id.
var ErrNotFound = fmt.Errorf("scheduler: task not found")

// Update mutates a task's mutable fields (name, args, interval, enabled,
// condition). next_run_at is left untouched; only a run (a due tick or
// Trigger) moves it.
func (s *Scheduler) Update(id string, mutate func(*Task) error) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.doc.Tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := mutate(t); err != nil {
		return nil, err
	}
	if t.Condition != "" {
		if _, err := s.compile(t.Condition); err != nil {
			return nil, fmt.Errorf("scheduler: invalid condition: %w", err)
		}
	}
	return t, s.persist()
}

// Delete removes a task. Deletion is terminal; no new TaskRunRecord can
// ever be appended for this id afterward.
func (s *Scheduler) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.doc.Tasks, id)
	return s.persist()
}

// Trigger runs id immediately, regardless of next_run_at, and then
// reschedules it like any run: next_run_at becomes the run's start time plus
// the interval. The run happens inside this call; it is not left to the tick
// loop by setting next_run_at to now.
func (s *Scheduler) Trigger(ctx context.Context, id string) (*TaskRunRecord, error) {
	s.mu.Lock()
	t, ok := s.doc.Tasks[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.runOnce(ctx, t), nil
}

// History returns the bounded run-history ring for a task.
func (s *Scheduler) History(id string) ([]TaskRunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.doc.Tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]TaskRunRecord, len(t.History))
	copy(out, t.History)
	return out, nil
}

// Run blocks, ticking once per second until ctx is canceled. Each tick
// scans tasks sequentially: fan-out happens inside the Supervisor's own
// sandbox pool, not via per-task goroutines here.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now().UTC()

	s.mu.Lock()
	due := make([]*Task, 0)
	for _, t := range s.doc.Tasks {
		if t.Enabled && !t.NextRunAt.After(now) {
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		s.runOnce(ctx, t)
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t *Task) *TaskRunRecord {
	if t.Condition != "" {
		ok, err := s.evaluate(t.Condition, t.Args)
		if err != nil || !ok {
			s.advance(t, false)
			return nil
		}
	}

	start := s.now().UTC()
	requestID := uuid.NewString()
	outcome := s.dispatcher.Process(ctx, supervisor.ToolCall{
		RequestID: requestID,
		Tool:      t.Tool,
		Action:    t.Action,
		Args:      t.Args,
	}, "scheduler:"+t.ID, nil)
	duration := s.now().UTC().Sub(start)

	rec := TaskRunRecord{StartedAt: start, Duration: duration, OK: outcome.Kind == supervisor.OutcomeResult}
	switch outcome.Kind {
	case supervisor.OutcomeResult:
		rec.Result = outcome.Result
	case supervisor.OutcomePendingApproval:
		rec.Error = "call requires human approval; scheduled tasks are not resumed on resolution"
	default:
		if outcome.Err != nil {
			rec.Error = outcome.Err.Error()
		}
	}

	if s.metrics != nil {
		s.metrics.IncSchedulerRun(t.Name)
		s.metrics.ObserveSchedulerRunDuration(t.Name, duration)
		if !rec.OK {
			s.metrics.IncSchedulerError(t.Name)
		}
	}
	if s.audit != nil {
		_ = s.audit.Record("scheduler", "scheduler_run", map[string]any{
			"task_id": t.ID, "task": t.Name, "ok": rec.OK, "request_id": requestID,
		})
	}

	s.mu.Lock()
	t.nextSeq++
	rec.Seq = t.nextSeq
	t.History = append(t.History, rec)
	if len(t.History) > maxHistoryPerTask {
		t.History = t.History[len(t.History)-maxHistoryPerTask:]
	}
	t.RunCount++
	if !rec.OK {
		t.ErrorCount++
	}
	lastRun := start
	t.LastRunAt = &lastRun
	t.NextRunAt = start.Add(time.Duration(t.IntervalSeconds) * time.Second)
	_ = s.persist()
	s.mu.Unlock()

	return &rec
}

// advance reschedules a task without recording a run, used when a
// condition suppresses an otherwise-due tick.
func (s *Scheduler) advance(t *Task, _ bool) {
	s.mu.Lock()
	t.NextRunAt = s.now().UTC().Add(time.Duration(t.IntervalSeconds) * time.Second)
	_ = s.persist()
	s.mu.Unlock()
}

func (s *Scheduler) compile(expr string) (cel.Program, error) {
	ast, iss := s.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	return s.env.Program(ast)
}

func (s *Scheduler) evaluate(expr string, args map[string]any) (bool, error) {
	prg, ok := s.programs[expr]
	if !ok {
		var err error
		prg, err = s.compile(expr)
		if err != nil {
			return false, err
		}
		s.programs[expr] = prg
	}
	out, _, err := prg.Eval(map[string]any{"args": args})
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("scheduler: condition did not evaluate to bool")
	}
	return b, nil
}
