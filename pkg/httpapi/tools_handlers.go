package httpapi

import (
	"net/http"

	"github.com/lattice-run/agentgw/pkg/api"
	"github.com/lattice-run/agentgw/pkg/auth"
	"github.com/lattice-run/agentgw/pkg/supervisor"
)

type toolCallRequest struct {
	RequestID string         `json:"request_id"`
	Tool      string         `json:"tool"`
	Action    string         `json:"action"`
	Args      map[string]any `json:"args"`
}

func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request) {
	var req toolCallRequest
	if err := decodeJSON(r, &req); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}
	if req.RequestID == "" {
		writeKind(w, api.KindInvalidRequest, "request_id is required")
		return
	}

	user, _ := auth.UserFromContext(r.Context())
	var actor supervisor.Actor
	if user != nil {
		actor = user
	}

	outcome := s.Supervisor.Process(r.Context(), supervisor.ToolCall{
		RequestID: req.RequestID,
		Tool:      req.Tool,
		Action:    req.Action,
		Args:      req.Args,
	}, actorFor(r), actor)

	switch outcome.Kind {
	case supervisor.OutcomeResult:
		writeJSON(w, http.StatusOK, map[string]any{"result": outcome.Result})
	case supervisor.OutcomePendingApproval:
		writeJSON(w, http.StatusAccepted, map[string]any{"pending_approval": true, "approval_id": outcome.ApprovalID})
	default:
		api.Write(w, outcome.Err)
	}
}

type validateRequest struct {
	Tool   string         `json:"tool"`
	Action string         `json:"action"`
	Args   map[string]any `json:"args"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}

	user, _ := auth.UserFromContext(r.Context())
	var actor supervisor.Actor
	if user != nil {
		actor = user
	}

	call := supervisor.ToolCall{Tool: req.Tool, Action: req.Action, Args: req.Args}
	if err := s.Supervisor.Validate(call, actorFor(r), actor); err != nil {
		api.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}
