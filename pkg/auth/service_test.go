package auth_test

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/lattice-run/agentgw/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *auth.Service {
	t.Helper()
	users, err := auth.OpenUserStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	require.NoError(t, users.EnsureAdmin("adminpassword"))
	sessions := auth.NewSessionStore(time.Hour, 7*24*time.Hour)
	return auth.NewService(users, sessions, "bootstrap-secret")
}

func TestService_LoginAndRefresh(t *testing.T) {
	svc := newTestService(t)

	pair, err := svc.Login(auth.AdminUsername, "adminpassword")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.Access)
	assert.NotEmpty(t, pair.Refresh)

	refreshed, err := svc.Refresh(pair.Refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.Access)
	assert.NotEqual(t, pair.Access, refreshed.Access)
}

func TestService_LoginRejectsBadPassword(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Login(auth.AdminUsername, "wrong")
	assert.Error(t, err)
}

func TestService_Bootstrap(t *testing.T) {
	svc := newTestService(t)

	pair, err := svc.Bootstrap("bootstrap-secret")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.Access)

	_, err = svc.Bootstrap("wrong-secret")
	assert.Error(t, err)
}

func TestService_SetPasswordRevokesExistingSessions(t *testing.T) {
	svc := newTestService(t)
	pair, err := svc.Login(auth.AdminUsername, "adminpassword")
	require.NoError(t, err)

	require.NoError(t, svc.SetPassword(auth.AdminUsername, "newpassword"))

	_, err = svc.Resolve(pair.Access)
	assert.Error(t, err, "old session should be revoked on password change")

	newPair, err := svc.Login(auth.AdminUsername, "newpassword")
	require.NoError(t, err)
	assert.NotEmpty(t, newPair.Access)
}

func TestService_RequireAccessRejectsMissingToken(t *testing.T) {
	svc := newTestService(t)
	handler := svc.RequireAccess(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/whoami", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestService_RequireAccessAllowsValidToken(t *testing.T) {
	svc := newTestService(t)
	pair, err := svc.Login(auth.AdminUsername, "adminpassword")
	require.NoError(t, err)

	var resolvedUser string
	handler := svc.RequireAccess(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resolvedUser = auth.Actor(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Access)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.AdminUsername, resolvedUser)
}

func TestService_RequireAdminRejectsNonAdmin(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Users.Create("viewer", "viewerpassword", []string{"user"}, nil))
	pair, err := svc.Login("viewer", "viewerpassword")
	require.NoError(t, err)

	handler := svc.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/kill-switch", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Access)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
