package httpapi

import (
	"net/http"

	"github.com/lattice-run/agentgw/pkg/api"
)

type killSwitchRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleKillSwitchEngage(w http.ResponseWriter, r *http.Request) {
	var req killSwitchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}
	status := s.KillSwitch.Engage(req.Reason)
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "kill_switch_engaged", map[string]any{"reason": req.Reason})
	}
	if s.Metrics != nil {
		s.Metrics.SetKillSwitchEngaged(true)
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleKillSwitchDisengage(w http.ResponseWriter, r *http.Request) {
	status := s.KillSwitch.Disengage()
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "kill_switch_disengaged", nil)
	}
	if s.Metrics != nil {
		s.Metrics.SetKillSwitchEngaged(false)
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleKillSwitchStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.KillSwitch.Status())
}
