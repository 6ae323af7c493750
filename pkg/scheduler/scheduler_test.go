package scheduler_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lattice-run/agentgw/pkg/api"
	"github.com/lattice-run/agentgw/pkg/scheduler"
	"github.com/lattice-run/agentgw/pkg/supervisor"
)

type fakeDispatcher struct {
	calls   int
	outcome *supervisor.Outcome
}

func (f *fakeDispatcher) Process(_ context.Context, call supervisor.ToolCall, _ string, _ supervisor.Actor) *supervisor.Outcome {
	f.calls++
	if f.outcome != nil {
		return f.outcome
	}
	return &supervisor.Outcome{Kind: supervisor.OutcomeResult, Result: call.Args}
}

func newScheduler(t *testing.T, dispatcher scheduler.Dispatcher) *scheduler.Scheduler {
	t.Helper()
	s, err := scheduler.Open(filepath.Join(t.TempDir(), "schedule.json"), dispatcher, nil, nil)
	require.NoError(t, err)
	return s
}

func TestCreate_SchedulesNextRunAfterInterval(t *testing.T) {
	s := newScheduler(t, &fakeDispatcher{})

	task, err := s.Create("ping", "net", "ping", map[string]any{"host": "localhost"}, 60, "")
	require.NoError(t, err)
	require.True(t, task.Enabled)
	require.WithinDuration(t, time.Now().Add(60*time.Second), task.NextRunAt, 2*time.Second)
}

func TestTrigger_RunsImmediatelyAndRecordsHistory(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	s := newScheduler(t, dispatcher)

	task, err := s.Create("ping", "net", "ping", map[string]any{"host": "localhost"}, 3600, "")
	require.NoError(t, err)

	rec, err := s.Trigger(context.Background(), task.ID)
	require.NoError(t, err)
	require.True(t, rec.OK)
	require.Equal(t, 1, dispatcher.calls)

	history, err := s.History(task.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.EqualValues(t, 1, history[0].Seq)

	reloaded, ok := s.Get(task.ID)
	require.True(t, ok)
	require.EqualValues(t, 1, reloaded.RunCount)
	require.NotNil(t, reloaded.LastRunAt)
}

func TestTrigger_UnknownTask(t *testing.T) {
	s := newScheduler(t, &fakeDispatcher{})
	_, err := s.Trigger(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, scheduler.ErrNotFound)
}

func TestHistory_BoundedAt50Entries(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	s := newScheduler(t, dispatcher)

	task, err := s.Create("ping", "net", "ping", map[string]any{}, 3600, "")
	require.NoError(t, err)

	for i := 0; i < 60; i++ {
		_, err := s.Trigger(context.Background(), task.ID)
		require.NoError(t, err)
	}

	history, err := s.History(task.ID)
	require.NoError(t, err)
	require.Len(t, history, 50)
	require.EqualValues(t, 60, history[len(history)-1].Seq)
	require.EqualValues(t, 11, history[0].Seq)
}

func TestDelete_IsTerminal(t *testing.T) {
	s := newScheduler(t, &fakeDispatcher{})
	task, err := s.Create("ping", "net", "ping", map[string]any{}, 60, "")
	require.NoError(t, err)

	require.NoError(t, s.Delete(task.ID))

	_, err = s.Trigger(context.Background(), task.ID)
	require.ErrorIs(t, err, scheduler.ErrNotFound)
}

func TestRunOnce_ApprovalPendingIsNotTreatedAsSuccess(t *testing.T) {
	dispatcher := &fakeDispatcher{outcome: &supervisor.Outcome{Kind: supervisor.OutcomePendingApproval, ApprovalID: 7}}
	s := newScheduler(t, dispatcher)

	task, err := s.Create("risky", "files", "delete", map[string]any{}, 60, "")
	require.NoError(t, err)

	rec, err := s.Trigger(context.Background(), task.ID)
	require.NoError(t, err)
	require.False(t, rec.OK)

	reloaded, _ := s.Get(task.ID)
	require.EqualValues(t, 1, reloaded.ErrorCount)
}

func TestRunOnce_DispatchError(t *testing.T) {
	dispatcher := &fakeDispatcher{outcome: &supervisor.Outcome{Kind: supervisor.OutcomeError, Err: api.New(api.KindWorkerError, "boom")}}
	s := newScheduler(t, dispatcher)

	task, err := s.Create("flaky", "net", "ping", map[string]any{}, 60, "")
	require.NoError(t, err)

	rec, err := s.Trigger(context.Background(), task.ID)
	require.NoError(t, err)
	require.False(t, rec.OK)
	require.Contains(t, rec.Error, "boom")
}

func TestCreate_RejectsInvalidCondition(t *testing.T) {
	s := newScheduler(t, &fakeDispatcher{})
	_, err := s.Create("bad", "net", "ping", map[string]any{}, 60, "args.x +")
	require.Error(t, err)
}

func TestPersistence_SurvivesReopen(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	path := filepath.Join(t.TempDir(), "schedule.json")

	s, err := scheduler.Open(path, dispatcher, nil, nil)
	require.NoError(t, err)
	task, err := s.Create("ping", "net", "ping", map[string]any{"host": "x"}, 60, "")
	require.NoError(t, err)

	reopened, err := scheduler.Open(path, dispatcher, nil, nil)
	require.NoError(t, err)
	got, ok := reopened.Get(task.ID)
	require.True(t, ok)
	require.Equal(t, task.Name, got.Name)
}
