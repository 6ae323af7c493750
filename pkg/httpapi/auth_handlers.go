package httpapi

import (
	"net/http"

	"github.com/lattice-run/agentgw/pkg/api"
	"github.com/lattice-run/agentgw/pkg/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}
	tokens, err := s.Auth.Login(req.Username, req.Password)
	if err != nil {
		writeKind(w, api.KindUnauthorized, "invalid username or password")
		return
	}
	if s.Audit != nil {
		_ = s.Audit.Record(req.Username, "login", nil)
	}
	writeJSON(w, http.StatusOK, tokens)
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}
	tokens, err := s.Auth.Refresh(req.Refresh)
	if err != nil {
		writeKind(w, api.KindUnauthorized, "invalid or expired refresh token")
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

type revokeRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}
	_ = s.Auth.Revoke(req.Token)
	writeJSON(w, http.StatusOK, map[string]any{})
}

type bootstrapRequest struct {
	Secret string `json:"secret"`
}

func (s *Server) handleBootstrapToken(w http.ResponseWriter, r *http.Request) {
	var req bootstrapRequest
	if err := decodeJSON(r, &req); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}
	tokens, err := s.Auth.Bootstrap(req.Secret)
	if err != nil {
		writeKind(w, api.KindUnauthorized, "invalid bootstrap secret")
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

type userCreateRequest struct {
	Username     string   `json:"username"`
	Password     string   `json:"password"`
	Roles        []string `json:"roles"`
	AllowedTools []string `json:"allowed_tools"`
}

func (s *Server) handleUsersList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Users.List())
}

func (s *Server) handleUsersCreate(w http.ResponseWriter, r *http.Request) {
	var req userCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}
	if err := s.Users.Create(req.Username, req.Password, req.Roles, req.AllowedTools); err != nil {
		if err == auth.ErrUserExists {
			writeKind(w, api.KindConflict, "user already exists")
			return
		}
		writeInternal(w, r, err)
		return
	}
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "user_created", map[string]any{"username": req.Username})
	}
	writeJSON(w, http.StatusCreated, map[string]string{"username": req.Username})
}

func (s *Server) handleUsersDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.Users.Delete(name); err != nil {
		switch err {
		case auth.ErrAdminImmutable:
			writeKind(w, api.KindForbidden, "the admin user cannot be deleted")
		case auth.ErrUserNotFound:
			writeKind(w, api.KindNotFound, "user not found")
		default:
			writeInternal(w, r, err)
		}
		return
	}
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "user_deleted", map[string]any{"username": name})
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

type permissionsRequest struct {
	Roles        []string `json:"roles"`
	AllowedTools []string `json:"allowed_tools"`
}

func (s *Server) handleUsersSetPermissions(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req permissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}
	if err := s.Users.SetPermissions(name, req.Roles, req.AllowedTools); err != nil {
		if err == auth.ErrUserNotFound {
			writeKind(w, api.KindNotFound, "user not found")
			return
		}
		writeInternal(w, r, err)
		return
	}
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "user_permissions_changed", map[string]any{"username": name})
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

type setPasswordRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleUsersSetPassword(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req setPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}
	if err := s.Auth.SetPassword(name, req.Password); err != nil {
		if err == auth.ErrUserNotFound {
			writeKind(w, api.KindNotFound, "user not found")
			return
		}
		writeInternal(w, r, err)
		return
	}
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "user_password_changed", map[string]any{"username": name})
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}
