package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/lattice-run/agentgw/pkg/api"
	"github.com/lattice-run/agentgw/pkg/auth"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeKind(w http.ResponseWriter, kind api.Kind, message string) {
	api.WriteKind(w, kind, message)
}

func writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	api.WriteInternal(w, auth.RequestID(r.Context()), err)
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func actorFor(r *http.Request) string {
	return auth.Actor(r.Context())
}
