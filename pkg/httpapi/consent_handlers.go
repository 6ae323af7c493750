package httpapi

import "net/http"

func (s *Server) handleConsentTimeline(w http.ResponseWriter, r *http.Request) {
	records, err := s.Consent.Timeline()
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleConsentExport(w http.ResponseWriter, r *http.Request) {
	actor := r.PathValue("actor")
	records, err := s.Consent.ForActor(actor)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleConsentErase(w http.ResponseWriter, r *http.Request) {
	actor := r.PathValue("actor")
	if err := s.Consent.EraseActor(actor); err != nil {
		writeInternal(w, r, err)
		return
	}
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "consent_erased", map[string]any{"actor": actor})
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}
