// Package httpapi wires every gateway dependency onto the HTTP surface
// spec.md §6 describes: one http.ServeMux, method-pattern routes, and a
// handler per resource group, each a thin adapter from the wire shape to
// the owning package's real API.
package httpapi

import (
	"net/http"

	"github.com/lattice-run/agentgw/pkg/api"
	"github.com/lattice-run/agentgw/pkg/approval"
	"github.com/lattice-run/agentgw/pkg/audit"
	"github.com/lattice-run/agentgw/pkg/auth"
	"github.com/lattice-run/agentgw/pkg/consent"
	"github.com/lattice-run/agentgw/pkg/contentfilter"
	"github.com/lattice-run/agentgw/pkg/keystore"
	"github.com/lattice-run/agentgw/pkg/kernel"
	"github.com/lattice-run/agentgw/pkg/killswitch"
	"github.com/lattice-run/agentgw/pkg/memory"
	"github.com/lattice-run/agentgw/pkg/metrics"
	"github.com/lattice-run/agentgw/pkg/scheduler"
	"github.com/lattice-run/agentgw/pkg/supervisor"
	"github.com/lattice-run/agentgw/pkg/webhook"
)

// Server holds every dependency a handler needs and owns route
// registration. Construct with New, then mount Routes() on an http.Server.
type Server struct {
	Auth          *auth.Service
	Users         *auth.UserStore
	RateGate      *kernel.Gate
	Supervisor    *supervisor.Supervisor
	Approvals     *approval.Bus
	Scheduler     *scheduler.Scheduler
	ContentFilter *contentfilter.Filter
	Webhooks      *webhook.Dispatcher
	KillSwitch    *killswitch.Switch
	Keystore      *keystore.Store
	Memory        *memory.Store
	Audit         *audit.Sink
	Consent       *consent.Log
	Metrics       *metrics.Registry
	Tab            *TabBridge
	AllowedOrigins []string

	// ContentFilterPath is the on-disk bundle path handleContentFilterReload
	// re-reads from; empty disables the reload endpoint's file re-read (the
	// in-memory bundle still reloads from itself, a no-op).
	ContentFilterPath string
}

func NewTabBridge() *TabBridge { return &TabBridge{} }

// New wires deps into a Server, filling in Tab if it is nil; it checks no
// other field. Audit, Consent, Metrics and RateGate may be nil (the handlers
// skip them); the other component fields are used without a nil check by the
// routes that need them.
func New(deps Server) *Server {
	s := deps
	if s.Tab == nil {
		s.Tab = NewTabBridge()
	}
	return &s
}

// Routes builds the full mux and wraps it with the gateway's standard
// middleware chain: request id, CORS, then (per-route) auth and rate
// limiting.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.Auth.RequireAdmin(s.Metrics.Handler()))

	mux.Handle("POST /admin/login", s.rateLimited(http.HandlerFunc(s.handleLogin)))
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /auth/revoke", s.handleRevoke)
	mux.HandleFunc("POST /admin/bootstrap-token", s.handleBootstrapToken)

	mux.Handle("POST /tools/call", s.rateLimited(s.Auth.RequireAccess(http.HandlerFunc(s.handleToolsCall))))
	mux.Handle("POST /validate", s.Auth.RequireAccess(http.HandlerFunc(s.handleValidate)))

	mux.Handle("GET /approvals", s.Auth.RequireAdmin(http.HandlerFunc(s.handleApprovalsList)))
	mux.Handle("GET /approvals/stream", s.Auth.RequireAdmin(http.HandlerFunc(s.handleApprovalsStream)))
	mux.Handle("POST /approvals/{id}/approve", s.Auth.RequireAdmin(http.HandlerFunc(s.handleApprovalResolve(s.Approvals.Approve))))
	mux.Handle("POST /approvals/{id}/reject", s.Auth.RequireAdmin(http.HandlerFunc(s.handleApprovalResolve(s.Approvals.Reject))))

	mux.Handle("GET /admin/schedule", s.Auth.RequireAdmin(http.HandlerFunc(s.handleScheduleList)))
	mux.Handle("POST /admin/schedule", s.Auth.RequireAdmin(http.HandlerFunc(s.handleScheduleCreate)))
	mux.Handle("DELETE /admin/schedule", s.Auth.RequireAdmin(http.HandlerFunc(s.handleScheduleDeleteQuery)))
	mux.Handle("PATCH /admin/schedule/{id}", s.Auth.RequireAdmin(http.HandlerFunc(s.handleScheduleUpdate)))
	mux.Handle("POST /admin/schedule/{id}/trigger", s.Auth.RequireAdmin(http.HandlerFunc(s.handleScheduleTrigger)))
	mux.Handle("GET /admin/schedule/{id}/history", s.Auth.RequireAdmin(http.HandlerFunc(s.handleScheduleHistory)))

	mux.Handle("GET /admin/rate-limits", s.Auth.RequireAdmin(http.HandlerFunc(s.handleRateLimitsGet)))
	mux.Handle("PUT /admin/rate-limits", s.Auth.RequireAdmin(http.HandlerFunc(s.handleRateLimitsPut)))
	mux.Handle("DELETE /admin/rate-limits/clients/{key}", s.Auth.RequireAdmin(http.HandlerFunc(s.handleRateLimitResetClient)))
	mux.Handle("DELETE /admin/rate-limits/users/{name}", s.Auth.RequireAdmin(http.HandlerFunc(s.handleRateLimitResetUser)))

	mux.Handle("GET /admin/content-filter/rules", s.Auth.RequireAdmin(http.HandlerFunc(s.handleContentFilterGet)))
	mux.Handle("POST /admin/content-filter/rules", s.Auth.RequireAdmin(http.HandlerFunc(s.handleContentFilterAdd)))
	mux.Handle("DELETE /admin/content-filter/rules", s.Auth.RequireAdmin(http.HandlerFunc(s.handleContentFilterDelete)))
	mux.Handle("POST /admin/content-filter/reload", s.Auth.RequireAdmin(http.HandlerFunc(s.handleContentFilterReload)))

	mux.Handle("GET /admin/webhooks", s.Auth.RequireAdmin(http.HandlerFunc(s.handleWebhooksList)))
	mux.Handle("POST /admin/webhooks", s.Auth.RequireAdmin(http.HandlerFunc(s.handleWebhooksCreate)))
	mux.Handle("DELETE /admin/webhooks/{id}", s.Auth.RequireAdmin(http.HandlerFunc(s.handleWebhooksDelete)))
	mux.Handle("GET /admin/webhooks/{id}/deliveries", s.Auth.RequireAdmin(http.HandlerFunc(s.handleWebhooksDeliveries)))

	mux.Handle("GET /admin/users", s.Auth.RequireAdmin(http.HandlerFunc(s.handleUsersList)))
	mux.Handle("POST /admin/users", s.Auth.RequireAdmin(http.HandlerFunc(s.handleUsersCreate)))
	mux.Handle("DELETE /admin/users/{name}", s.Auth.RequireAdmin(http.HandlerFunc(s.handleUsersDelete)))
	mux.Handle("PUT /admin/users/{name}/permissions", s.Auth.RequireAdmin(http.HandlerFunc(s.handleUsersSetPermissions)))
	mux.Handle("POST /admin/users/{name}/password", s.Auth.RequireAdmin(http.HandlerFunc(s.handleUsersSetPassword)))

	mux.Handle("POST /admin/kill-switch", s.Auth.RequireAdmin(http.HandlerFunc(s.handleKillSwitchEngage)))
	mux.Handle("DELETE /admin/kill-switch", s.Auth.RequireAdmin(http.HandlerFunc(s.handleKillSwitchDisengage)))
	mux.Handle("GET /admin/kill-switch", s.Auth.RequireAdmin(http.HandlerFunc(s.handleKillSwitchStatus)))

	mux.Handle("GET /admin/providers/{provider}/key", s.Auth.RequireAdmin(http.HandlerFunc(s.handleProviderKeyStatus)))
	mux.Handle("POST /admin/providers/{provider}/key", s.Auth.RequireAdmin(http.HandlerFunc(s.handleProviderKeySet)))
	mux.Handle("POST /admin/providers/{provider}/key/rotate", s.Auth.RequireAdmin(http.HandlerFunc(s.handleProviderKeyRotate)))
	mux.Handle("GET /admin/providers/{provider}/key/status", s.Auth.RequireAdmin(http.HandlerFunc(s.handleProviderKeyStatus)))
	mux.Handle("GET /admin/providers/expiring", s.Auth.RequireAdmin(http.HandlerFunc(s.handleProvidersExpiring)))

	mux.Handle("GET /agents/{id}/memory", s.Auth.RequireAccess(http.HandlerFunc(s.handleMemoryList)))
	mux.Handle("POST /agents/{id}/memory", s.Auth.RequireAccess(http.HandlerFunc(s.handleMemorySet)))
	mux.Handle("DELETE /agents/{id}/memory/{key}", s.Auth.RequireAccess(http.HandlerFunc(s.handleMemoryDelete)))
	mux.Handle("POST /agents/{id}/memory/prune", s.Auth.RequireAccess(http.HandlerFunc(s.handleMemoryPrune)))

	mux.Handle("GET /admin/audit", s.Auth.RequireAdmin(http.HandlerFunc(s.handleAuditQuery)))
	mux.Handle("GET /admin/audit/export.csv", s.Auth.RequireAdmin(http.HandlerFunc(s.handleAuditExport)))

	mux.Handle("PUT /tab/snapshot", s.Auth.RequireAccess(http.HandlerFunc(s.handleTabSnapshot)))
	mux.Handle("POST /tab/preview", s.Auth.RequireAccess(http.HandlerFunc(s.handleTabPreview)))
	mux.Handle("GET /tab/inject-queue", s.Auth.RequireAccess(http.HandlerFunc(s.handleTabInjectQueue)))

	mux.Handle("GET /consent/timeline", s.Auth.RequireAdmin(http.HandlerFunc(s.handleConsentTimeline)))
	mux.Handle("GET /consent/export/{actor}", s.Auth.RequireAdmin(http.HandlerFunc(s.handleConsentExport)))
	mux.Handle("DELETE /consent/export/{actor}", s.Auth.RequireAdmin(http.HandlerFunc(s.handleConsentErase)))

	var handler http.Handler = mux
	handler = auth.CORSMiddleware(s.AllowedOrigins)(handler)
	handler = auth.RequestIDMiddleware(handler)
	return handler
}

// rateLimited enforces the shared rate-limit gate ahead of next, keyed by
// client IP and (if already resolved) username.
func (s *Server) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.RateGate == nil {
			next.ServeHTTP(w, r)
			return
		}
		username := ""
		if u, ok := auth.UserFromContext(r.Context()); ok {
			username = u.Username
		}
		allowed, scope, err := s.RateGate.Check(r.Context(), clientIP(r), username)
		if err != nil {
			writeInternal(w, r, err)
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", "1")
			writeKind(w, api.KindRateLimited, "rate limit exceeded for "+scope)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
