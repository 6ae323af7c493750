package auth_test

import (
	"path/filepath"
	"testing"

	"github.com/lattice-run/agentgw/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserStore_EnsureAdminIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	store, err := auth.OpenUserStore(path)
	require.NoError(t, err)

	require.NoError(t, store.EnsureAdmin("first-password"))
	require.NoError(t, store.EnsureAdmin("second-password"))

	_, err = store.Authenticate(auth.AdminUsername, "first-password")
	assert.NoError(t, err, "the first EnsureAdmin call should win")
}

func TestUserStore_CreateAndAuthenticate(t *testing.T) {
	store, err := auth.OpenUserStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)

	require.NoError(t, store.Create("alice", "hunter22222", []string{"user"}, []string{"file.read"}))

	u, err := store.Authenticate("alice", "hunter22222")
	require.NoError(t, err)
	assert.True(t, u.ToolAllowed("file.read"))
	assert.False(t, u.ToolAllowed("shell.exec"))

	_, err = store.Authenticate("alice", "wrong")
	assert.ErrorIs(t, err, auth.ErrBadCredentials)
}

func TestUserStore_CreateDuplicateRejected(t *testing.T) {
	store, err := auth.OpenUserStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)

	require.NoError(t, store.Create("alice", "pw", nil, nil))
	err = store.Create("alice", "pw2", nil, nil)
	assert.ErrorIs(t, err, auth.ErrUserExists)
}

func TestUserStore_AdminCannotBeDeleted(t *testing.T) {
	store, err := auth.OpenUserStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	require.NoError(t, store.EnsureAdmin("pw"))

	err = store.Delete(auth.AdminUsername)
	assert.ErrorIs(t, err, auth.ErrAdminImmutable)
}

func TestUserStore_DeleteUnknownUser(t *testing.T) {
	store, err := auth.OpenUserStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)

	err = store.Delete("ghost")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestUserStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	store, err := auth.OpenUserStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Create("bob", "pw12345", []string{"user"}, nil))

	reopened, err := auth.OpenUserStore(path)
	require.NoError(t, err)
	_, err = reopened.Authenticate("bob", "pw12345")
	assert.NoError(t, err)
}

func TestUserStore_EmptyAllowedToolsPermitsAnyTool(t *testing.T) {
	store, err := auth.OpenUserStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	require.NoError(t, store.Create("carol", "pw12345", []string{"user"}, nil))

	u, ok := store.Get("carol")
	require.True(t, ok)
	assert.True(t, u.ToolAllowed("anything.at.all"))
}

func TestUserStore_ListOmitsSecrets(t *testing.T) {
	store, err := auth.OpenUserStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	require.NoError(t, store.Create("dave", "pw12345", []string{"user"}, nil))

	list := store.List()
	require.Len(t, list, 1)
	assert.Equal(t, "dave", list[0].Username)
}
