package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/lattice-run/agentgw/pkg/api"
)

// TokenPair is the login/refresh response shape.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// Service composes the user directory and session store behind the
// operations spec.md §6's auth endpoints expose.
type Service struct {
	Users           *UserStore
	Sessions        *SessionStore
	BootstrapSecret string
}

func NewService(users *UserStore, sessions *SessionStore, bootstrapSecret string) *Service {
	return &Service{Users: users, Sessions: sessions, BootstrapSecret: bootstrapSecret}
}

// Login authenticates username/password and mints a fresh access+refresh
// pair.
func (s *Service) Login(username, password string) (*TokenPair, error) {
	if _, err := s.Users.Authenticate(username, password); err != nil {
		return nil, err
	}
	access, err := s.Sessions.Mint(username, KindAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := s.Sessions.Mint(username, KindRefresh)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access.Token, Refresh: refresh.Token}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is left intact so the client can refresh again
// before it expires.
func (s *Service) Refresh(refreshToken string) (*TokenPair, error) {
	sess, err := s.Sessions.Validate(refreshToken, KindRefresh)
	if err != nil {
		return nil, err
	}
	access, err := s.Sessions.Mint(sess.User, KindAccess)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access.Token}, nil
}

// Revoke logs a token out immediately.
func (s *Service) Revoke(token string) error {
	return s.Sessions.Revoke(token)
}

// Bootstrap mints an access token for the admin user given the one-time
// out-of-band secret, without requiring the admin password. secret is
// compared in constant time.
func (s *Service) Bootstrap(secret string) (*TokenPair, error) {
	if s.BootstrapSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(s.BootstrapSecret)) != 1 {
		return nil, ErrBadCredentials
	}
	access, err := s.Sessions.Mint(AdminUsername, KindAccess)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access.Token}, nil
}

// SetPassword rotates a user's password and revokes every outstanding
// session for that user, per spec.md §3's Session lifecycle.
func (s *Service) SetPassword(username, newPassword string) error {
	if err := s.Users.SetPassword(username, newPassword); err != nil {
		return err
	}
	s.Sessions.RevokeAllForUser(username)
	return nil
}

// Resolve validates an access token and returns the authenticated user.
func (s *Service) Resolve(token string) (*User, error) {
	sess, err := s.Sessions.Validate(token, KindAccess)
	if err != nil {
		return nil, err
	}
	u, ok := s.Users.Get(sess.User)
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// RequireAccess is HTTP middleware that resolves the bearer access token and
// injects the authenticated User into the request context. Unauthenticated
// requests are rejected with 401; it does not enforce roles or tool scope —
// those decisions belong to the Supervisor and to RequireAdmin.
func (s *Service) RequireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			api.WriteKind(w, api.KindUnauthorized, "missing bearer token")
			return
		}
		u, err := s.Resolve(token)
		if err != nil {
			api.WriteKind(w, api.KindUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// RequireAdmin wraps RequireAccess and additionally requires the resolved
// user to carry the admin role, per spec.md §6's "all admin endpoints
// require a bearer access token" and the User entity's role model.
func (s *Service) RequireAdmin(next http.Handler) http.Handler {
	return s.RequireAccess(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := UserFromContext(r.Context())
		if u == nil || !u.IsAdmin() {
			api.WriteKind(w, api.KindForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimPrefix(h, prefix), true
}
