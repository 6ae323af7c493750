package httpapi

import (
	"net/http"
	"time"

	"github.com/lattice-run/agentgw/pkg/api"
)

type providerKeyRequest struct {
	Value      string `json:"value"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

func (s *Server) handleProviderKeySet(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	var req providerKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}
	if req.Value == "" {
		writeKind(w, api.KindInvalidRequest, "value is required")
		return
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second
	if err := s.Keystore.Set(provider, req.Value, ttl); err != nil {
		writeInternal(w, r, err)
		return
	}
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "provider_key_set", map[string]any{"provider": provider})
	}
	writeJSON(w, http.StatusOK, s.Keystore.Status(provider))
}

func (s *Server) handleProviderKeyRotate(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	var req providerKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}
	if req.Value == "" {
		writeKind(w, api.KindInvalidRequest, "value is required")
		return
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second
	if err := s.Keystore.Rotate(provider, req.Value, ttl); err != nil {
		writeInternal(w, r, err)
		return
	}
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "provider_key_rotated", map[string]any{"provider": provider})
	}
	writeJSON(w, http.StatusOK, s.Keystore.Status(provider))
}

func (s *Server) handleProviderKeyStatus(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	writeJSON(w, http.StatusOK, s.Keystore.Status(provider))
}

// handleProvidersExpiring lists provider keys expiring within the next 7
// days, the window matching the admin UI's default warning threshold.
func (s *Server) handleProvidersExpiring(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Keystore.Expiring(7*24*time.Hour))
}
