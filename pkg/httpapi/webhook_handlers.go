package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/lattice-run/agentgw/pkg/api"
	"github.com/lattice-run/agentgw/pkg/webhook"
)

func (s *Server) handleWebhooksList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Webhooks.List())
}

type webhookCreateRequest struct {
	URL        string   `json:"url"`
	Events     []string `json:"events"`
	Secret     string   `json:"secret,omitempty"`
	MaxRetries int      `json:"max_retries,omitempty"`
}

func (s *Server) handleWebhooksCreate(w http.ResponseWriter, r *http.Request) {
	var req webhookCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}
	if req.URL == "" {
		writeKind(w, api.KindInvalidRequest, "url is required")
		return
	}
	hook := webhook.Hook{
		ID:         uuid.New().String(),
		URL:        req.URL,
		Secret:     req.Secret,
		EventKinds: req.Events,
		MaxRetries: req.MaxRetries,
	}
	s.Webhooks.Register(hook)
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "webhook_registered", map[string]any{"webhook_id": hook.ID, "url": hook.URL})
	}
	writeJSON(w, http.StatusCreated, hook)
}

func (s *Server) handleWebhooksDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.Webhooks.Remove(id)
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "webhook_deleted", map[string]any{"webhook_id": id})
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleWebhooksDeliveries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	writeJSON(w, http.StatusOK, s.Webhooks.DeliveryLog(id))
}
