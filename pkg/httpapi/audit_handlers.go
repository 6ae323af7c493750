package httpapi

import (
	"net/http"
	"time"

	"github.com/lattice-run/agentgw/pkg/api"
	"github.com/lattice-run/agentgw/pkg/audit"
)

func auditFilterFromQuery(r *http.Request) (audit.QueryFilter, error) {
	q := r.URL.Query()
	filter := audit.QueryFilter{Actor: q.Get("actor"), Event: q.Get("action")}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return filter, err
		}
		filter.Since = &t
	}
	if until := q.Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return filter, err
		}
		filter.Until = &t
	}
	return filter, nil
}

func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		writeKind(w, api.KindInvalidRequest, "since/until must be RFC3339 timestamps")
		return
	}
	records, err := s.Audit.Query(filter)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		writeKind(w, api.KindInvalidRequest, "since/until must be RFC3339 timestamps")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="audit_export.csv"`)
	if err := s.Audit.ExportCSV(w, filter); err != nil {
		writeInternal(w, r, err)
		return
	}
}
