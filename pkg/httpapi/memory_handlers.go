package httpapi

import (
	"net/http"
	"time"

	"github.com/lattice-run/agentgw/pkg/api"
)

func (s *Server) handleMemoryList(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	entries, err := s.Memory.List(agentID)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type memorySetRequest struct {
	Key        string `json:"key"`
	Value      any    `json:"value"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

func (s *Server) handleMemorySet(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	var req memorySetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}
	if req.Key == "" {
		writeKind(w, api.KindInvalidRequest, "key is required")
		return
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second
	if err := s.Memory.Set(agentID, req.Key, req.Value, ttl); err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleMemoryDelete(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	key := r.PathValue("key")
	if err := s.Memory.Delete(agentID, key); err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleMemoryPrune(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	removed, err := s.Memory.Prune(agentID)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}
