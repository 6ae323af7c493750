package consent_test

import (
	"path/filepath"
	"testing"

	"github.com/lattice-run/agentgw/pkg/consent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_AppendAndTimeline(t *testing.T) {
	l, err := consent.Open(filepath.Join(t.TempDir(), "consent.jsonl"))
	require.NoError(t, err)

	require.NoError(t, l.Append("alice", "https://example.com", []string{"email", "password"}))
	require.NoError(t, l.Append("bob", "https://example.com", []string{"name"}))

	all, err := l.Timeline()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alice", all[0].Actor)
	assert.Equal(t, []string{"email", "password"}, all[0].FieldNames)
}

func TestLog_EraseActorRemovesOnlyThatActor(t *testing.T) {
	l, err := consent.Open(filepath.Join(t.TempDir(), "consent.jsonl"))
	require.NoError(t, err)

	require.NoError(t, l.Append("alice", "https://a", []string{"x"}))
	require.NoError(t, l.Append("bob", "https://a", []string{"y"}))
	require.NoError(t, l.Append("alice", "https://b", []string{"z"}))

	require.NoError(t, l.EraseActor("alice"))

	all, err := l.Timeline()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "bob", all[0].Actor)
}

func TestLog_ForActorFilters(t *testing.T) {
	l, err := consent.Open(filepath.Join(t.TempDir(), "consent.jsonl"))
	require.NoError(t, err)
	require.NoError(t, l.Append("alice", "https://a", []string{"x"}))
	require.NoError(t, l.Append("bob", "https://a", []string{"y"}))

	recs, err := l.ForActor("alice")
	require.NoError(t, err)
	require.Len(t, recs, 1)
}
