package httpapi

import (
	"net/http"

	"github.com/lattice-run/agentgw/pkg/api"
	"github.com/lattice-run/agentgw/pkg/kernel"
)

func (s *Server) handleRateLimitsGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.RateGate.Policy())
}

func (s *Server) handleRateLimitsPut(w http.ResponseWriter, r *http.Request) {
	var policy kernel.Policy
	if err := decodeJSON(r, &policy); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}
	s.RateGate.SetPolicy(policy)
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "rate_limit_policy_changed", map[string]any{
			"max_requests": policy.MaxRequests, "window_seconds": policy.WindowSeconds, "burst": policy.Burst,
		})
	}
	writeJSON(w, http.StatusOK, s.RateGate.Policy())
}

func (s *Server) handleRateLimitResetClient(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.RateGate.ResetClient(r.Context(), key); err != nil {
		writeInternal(w, r, err)
		return
	}
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "rate_limit_client_reset", map[string]any{"key": key})
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleRateLimitResetUser(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.RateGate.ResetUser(r.Context(), name); err != nil {
		writeInternal(w, r, err)
		return
	}
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "rate_limit_user_reset", map[string]any{"username": name})
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}
