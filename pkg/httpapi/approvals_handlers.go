package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lattice-run/agentgw/pkg/api"
	"github.com/lattice-run/agentgw/pkg/approval"
)

// sseKeepAliveInterval matches spec.md §4.2's "SSE subscribers receive a
// comment line every 15 s when idle so intermediate proxies don't close."
const sseKeepAliveInterval = 15 * time.Second

func (s *Server) handleApprovalsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Approvals.List())
}

// handleApprovalsStream serves Server-Sent Events: one named event per
// approval-bus transition, for as long as the client stays connected.
func (s *Server) handleApprovalsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeInternal(w, r, fmt.Errorf("httpapi: response writer does not support streaming"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, unsubscribe := s.Approvals.Subscribe()
	defer unsubscribe()

	keepAlive := time.NewTicker(sseKeepAliveInterval)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			body, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, body)
			flusher.Flush()
			keepAlive.Reset(sseKeepAliveInterval)
		}
	}
}

type approvalResolver func(id int64, resolver string) (*approval.Approval, error)

// handleApprovalResolve builds the POST /approvals/{id}/approve and
// /reject handlers from the one resolve call that differs between them.
func (s *Server) handleApprovalResolve(resolve approvalResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeKind(w, api.KindInvalidRequest, "invalid approval id")
			return
		}
		a, err := resolve(id, actorFor(r))
		if err != nil {
			if err == approval.ErrNotFound {
				writeKind(w, api.KindNotFound, "approval not found")
				return
			}
			writeInternal(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}
