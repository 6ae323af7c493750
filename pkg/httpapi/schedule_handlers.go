package httpapi

import (
	"net/http"

	"github.com/lattice-run/agentgw/pkg/api"
	"github.com/lattice-run/agentgw/pkg/scheduler"
)

func (s *Server) handleScheduleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Scheduler.List())
}

type scheduleCreateRequest struct {
	Name            string         `json:"name"`
	Tool            string         `json:"tool"`
	Action          string         `json:"action"`
	Args            map[string]any `json:"args"`
	IntervalSeconds int            `json:"interval_seconds"`
	Condition       string         `json:"condition"`
}

func (s *Server) handleScheduleCreate(w http.ResponseWriter, r *http.Request) {
	var req scheduleCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}
	task, err := s.Scheduler.Create(req.Name, req.Tool, req.Action, req.Args, req.IntervalSeconds, req.Condition)
	if err != nil {
		writeKind(w, api.KindInvalidRequest, err.Error())
		return
	}
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "schedule_created", map[string]any{"task_id": task.ID, "name": task.Name})
	}
	writeJSON(w, http.StatusCreated, task)
}

// handleScheduleDeleteQuery handles DELETE /admin/schedule?id=<task-id>, the
// query-parameter form spec.md §6 groups alongside GET/POST on the same
// collection path.
func (s *Server) handleScheduleDeleteQuery(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeKind(w, api.KindInvalidRequest, "id query parameter is required")
		return
	}
	if err := s.Scheduler.Delete(id); err != nil {
		if err == scheduler.ErrNotFound {
			writeKind(w, api.KindNotFound, "task not found")
			return
		}
		writeInternal(w, r, err)
		return
	}
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "schedule_deleted", map[string]any{"task_id": id})
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

type scheduleUpdateRequest struct {
	Name            *string         `json:"name"`
	Args            *map[string]any `json:"args"`
	IntervalSeconds *int            `json:"interval_seconds"`
	Enabled         *bool           `json:"enabled"`
	Condition       *string         `json:"condition"`
}

func (s *Server) handleScheduleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req scheduleUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeKind(w, api.KindInvalidRequest, "malformed request body")
		return
	}

	task, err := s.Scheduler.Update(id, func(t *scheduler.Task) error {
		if req.Name != nil {
			t.Name = *req.Name
		}
		if req.Args != nil {
			t.Args = *req.Args
		}
		if req.IntervalSeconds != nil {
			t.IntervalSeconds = *req.IntervalSeconds
		}
		if req.Enabled != nil {
			t.Enabled = *req.Enabled
		}
		if req.Condition != nil {
			t.Condition = *req.Condition
		}
		return nil
	})
	if err != nil {
		if err == scheduler.ErrNotFound {
			writeKind(w, api.KindNotFound, "task not found")
			return
		}
		writeKind(w, api.KindInvalidRequest, err.Error())
		return
	}
	if s.Audit != nil {
		_ = s.Audit.Record(actorFor(r), "schedule_updated", map[string]any{"task_id": id})
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleScheduleTrigger(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.Scheduler.Trigger(r.Context(), id)
	if err != nil {
		if err == scheduler.ErrNotFound {
			writeKind(w, api.KindNotFound, "task not found")
			return
		}
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleScheduleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	history, err := s.Scheduler.History(id)
	if err != nil {
		if err == scheduler.ErrNotFound {
			writeKind(w, api.KindNotFound, "task not found")
			return
		}
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
