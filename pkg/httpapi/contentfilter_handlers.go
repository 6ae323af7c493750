package httpapi

import (
	"net/http"

	"github.com/lattice-run/agentgw/pkg/api"
	"github.com/lattice-run/agentgw/pkg/contentfilter"
)

func (s *Server) handleContentFilterGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ContentFilter.Bundle())
}

type contentFilterRuleRequest struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Literal string `json:"literal,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}

func (s *Server) handleContentFilterAdd(w http.ResponseWriter, r *http.Request) {
	var req contentFilterRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}
	if req.ID == "" || (req.Literal == "" && req.Pattern == "") {
		writeKind(w, api.KindInvalidRequest, "id and one of literal/pattern are required")
		return
	}

	bundle := s.ContentFilter.Bundle()
	rules := make([]contentfilter.Rule, 0, len(bundle.Rules)+1)
	for _, existing := range bundle.Rules {
		if existing.ID == req.ID {
			continue
		}
		rules = append(rules, existing)
	}
	rules = append(rules, contentfilter.Rule{ID: req.ID, Label: req.Label, Literal: req.Literal, Pattern: req.Pattern})
	bundle.Rules = rules

	if err := s.ContentFilter.SetBundle(bundle); err != nil {
		writeKind(w, api.KindInvalidRequest, err.Error())
		return
	}
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "content_filter_rule_added", map[string]any{"rule_id": req.ID})
	}
	writeJSON(w, http.StatusCreated, bundle)
}

func (s *Server) handleContentFilterDelete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeKind(w, api.KindInvalidRequest, "id query parameter is required")
		return
	}

	bundle := s.ContentFilter.Bundle()
	rules := make([]contentfilter.Rule, 0, len(bundle.Rules))
	found := false
	for _, existing := range bundle.Rules {
		if existing.ID == id {
			found = true
			continue
		}
		rules = append(rules, existing)
	}
	if !found {
		writeKind(w, api.KindNotFound, "rule not found")
		return
	}
	bundle.Rules = rules

	if err := s.ContentFilter.SetBundle(bundle); err != nil {
		writeInternal(w, r, err)
		return
	}
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "content_filter_rule_deleted", map[string]any{"rule_id": id})
	}
	writeJSON(w, http.StatusOK, bundle)
}

// handleContentFilterReload re-reads the on-disk bundle, so an operator who
// hand-edited the YAML file can pick up the change without a restart.
func (s *Server) handleContentFilterReload(w http.ResponseWriter, r *http.Request) {
	if s.ContentFilterPath != "" {
		reloaded, err := contentfilter.Load(s.ContentFilterPath)
		if err != nil {
			writeInternal(w, r, err)
			return
		}
		if err := s.ContentFilter.SetBundle(reloaded.Bundle()); err != nil {
			writeInternal(w, r, err)
			return
		}
	}
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "content_filter_reloaded", nil)
	}
	writeJSON(w, http.StatusOK, s.ContentFilter.Bundle())
}
