package httpapi

import (
	"net/http"

	"github.com/lattice-run/agentgw/pkg/api"
)

// handleTabSnapshot stores the browser shell's current DOM snapshot as the
// canonical one InjectRequest polling reasons against, and records a
// consent entry naming which fields were pushed (never the field values).
func (s *Server) handleTabSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap TabSnapshot
	if err := decodeJSON(r, &snap); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}
	s.Tab.SetSnapshot(snap)
	if s.Consent != nil {
		_ = s.Consent.Append(actorFor(r), "tab_snapshot", snapshotFieldNames(snap))
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleTabPreview records the same consent trail as handleTabSnapshot
// without replacing the canonical snapshot, for a shell that wants to log
// a DOM capture it is only considering sharing.
func (s *Server) handleTabPreview(w http.ResponseWriter, r *http.Request) {
	var snap TabSnapshot
	if err := decodeJSON(r, &snap); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}
	if s.Consent != nil {
		_ = s.Consent.Append(actorFor(r), "tab_preview", snapshotFieldNames(snap))
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleTabInjectQueue drains the queued scripts for the shell to run.
// Draining, not peeking, keeps delivery exactly-once across polls.
func (s *Server) handleTabInjectQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Tab.Drain())
}

func snapshotFieldNames(snap TabSnapshot) []string {
	var names []string
	if snap.URL != "" {
		names = append(names, "url")
	}
	if snap.Title != "" {
		names = append(names, "title")
	}
	if snap.HTML != "" {
		names = append(names, "html")
	}
	return names
}
