package memory_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lattice-run/agentgw/pkg/memory"
)

func TestSetGet_RoundTrip(t *testing.T) {
	s, err := memory.Open(filepath.Join(t.TempDir(), "memory.json"))
	require.NoError(t, err)

	require.NoError(t, s.Set("agent-1", "greeting", "hello", 0))

	v, ok, err := s.Get("agent-1", "greeting")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", v)
}

func TestGet_ExpiredEntryNeverSurfaces(t *testing.T) {
	s, err := memory.Open(filepath.Join(t.TempDir(), "memory.json"))
	require.NoError(t, err)

	require.NoError(t, s.Set("agent-1", "ephemeral", "gone-soon", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := s.Get("agent-1", "ephemeral")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGet_UnknownKey(t *testing.T) {
	s, err := memory.Open(filepath.Join(t.TempDir(), "memory.json"))
	require.NoError(t, err)

	_, ok, err := s.Get("agent-1", "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDelete(t *testing.T) {
	s, err := memory.Open(filepath.Join(t.TempDir(), "memory.json"))
	require.NoError(t, err)

	require.NoError(t, s.Set("agent-1", "k", "v", 0))
	require.NoError(t, s.Delete("agent-1", "k"))

	_, ok, err := s.Get("agent-1", "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPrune_RemovesOnlyExpired(t *testing.T) {
	s, err := memory.Open(filepath.Join(t.TempDir(), "memory.json"))
	require.NoError(t, err)

	require.NoError(t, s.Set("agent-1", "stale", "v1", time.Millisecond))
	require.NoError(t, s.Set("agent-1", "fresh", "v2", time.Hour))
	time.Sleep(5 * time.Millisecond)

	removed, err := s.Prune("agent-1")
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	all, err := s.List("agent-1")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"fresh": "v2"}, all)
}

func TestList_PrunesExpired(t *testing.T) {
	s, err := memory.Open(filepath.Join(t.TempDir(), "memory.json"))
	require.NoError(t, err)

	require.NoError(t, s.Set("agent-1", "stale", "v1", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	all, err := s.List("agent-1")
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestOpen_PersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	s, err := memory.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("agent-1", "k", "v", 0))

	reopened, err := memory.Open(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get("agent-1", "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)
}
