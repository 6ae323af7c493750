// Package metrics is the gateway's Prometheus-style metrics registry:
// counters, gauges, and histograms for the supervision pipeline, sandbox
// pool, scheduler, and approval bus, exposed as Prometheus text format on
// GET /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns every metric the gateway exports. Constructed once at
// startup and threaded through every component that observes something.
type Registry struct {
	reg *prometheus.Registry

	ToolCallsTotal          *prometheus.CounterVec
	ToolValidationErrors    *prometheus.CounterVec
	ToolCallDuration        *prometheus.HistogramVec
	ApprovalsPending        prometheus.Gauge
	ApprovalsCreatedTotal   prometheus.Counter
	ApprovalsResolvedTotal  *prometheus.CounterVec
	SandboxWorkersHealthy   prometheus.Gauge
	SandboxWorkersTotal     prometheus.Gauge
	SchedulerRunsTotal      *prometheus.CounterVec
	SchedulerErrorsTotal    *prometheus.CounterVec
	SchedulerRunDuration    *prometheus.HistogramVec
	WebhookDeliveriesTotal  *prometheus.CounterVec
	RateLimitRejectedTotal  *prometheus.CounterVec
	KillSwitchEngaged       prometheus.Gauge
}

// New builds a Registry with every metric registered up front so that
// `/metrics` is stable even before the first event of a given kind occurs.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tool_calls_total",
			Help: "Total tool calls dispatched to the sandbox pool, by tool.",
		}, []string{"tool"}),
		ToolValidationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tool_validation_errors_total",
			Help: "Total schema validation failures, by tool.",
		}, []string{"tool"}),
		ToolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tool_call_duration_seconds",
			Help:    "Sandbox dispatch duration, by tool.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		ApprovalsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "approvals_pending",
			Help: "Current number of pending approvals.",
		}),
		ApprovalsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "approvals_created_total",
			Help: "Total approvals created.",
		}),
		ApprovalsResolvedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approvals_resolved_total",
			Help: "Total approvals resolved, by terminal state.",
		}, []string{"state"}),
		SandboxWorkersHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sandbox_workers_healthy",
			Help: "Current number of healthy sandbox workers.",
		}),
		SandboxWorkersTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sandbox_workers_total",
			Help: "Configured sandbox pool size.",
		}),
		SchedulerRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_runs_total",
			Help: "Total scheduled task runs, by task.",
		}, []string{"task"}),
		SchedulerErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_errors_total",
			Help: "Total scheduled task run failures, by task.",
		}, []string{"task"}),
		SchedulerRunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scheduler_run_duration_seconds",
			Help:    "Scheduled run duration, by task.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
		WebhookDeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Total webhook delivery attempts, by outcome.",
		}, []string{"outcome"}),
		RateLimitRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_rejected_total",
			Help: "Total requests rejected by the rate limiter, by scope.",
		}, []string{"scope"}),
		KillSwitchEngaged: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kill_switch_engaged",
			Help: "1 if the kill-switch is currently engaged, else 0.",
		}),
	}

	reg.MustRegister(
		r.ToolCallsTotal, r.ToolValidationErrors, r.ToolCallDuration,
		r.ApprovalsPending, r.ApprovalsCreatedTotal, r.ApprovalsResolvedTotal,
		r.SandboxWorkersHealthy, r.SandboxWorkersTotal,
		r.SchedulerRunsTotal, r.SchedulerErrorsTotal, r.SchedulerRunDuration,
		r.WebhookDeliveriesTotal, r.RateLimitRejectedTotal, r.KillSwitchEngaged,
	)

	return r
}

// Handler returns the http.Handler that serves Prometheus text exposition.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// SetSandboxWorkers satisfies pkg/sandbox.HealthGauge, letting the sandbox
// pool report its health without importing this package.
func (r *Registry) SetSandboxWorkers(healthy, total int) {
	r.SandboxWorkersHealthy.Set(float64(healthy))
	r.SandboxWorkersTotal.Set(float64(total))
}

// IncToolCalls records one dispatched tool call.
func (r *Registry) IncToolCalls(tool string) {
	r.ToolCallsTotal.WithLabelValues(tool).Inc()
}

// IncValidationErrors records one schema validation failure.
func (r *Registry) IncValidationErrors(tool string) {
	r.ToolValidationErrors.WithLabelValues(tool).Inc()
}

// ObserveToolCallDuration records how long a sandbox dispatch took.
func (r *Registry) ObserveToolCallDuration(tool string, d time.Duration) {
	r.ToolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// SetApprovalsPending reports the current pending-approval queue depth.
func (r *Registry) SetApprovalsPending(n int) {
	r.ApprovalsPending.Set(float64(n))
}

// IncApprovalsCreated records one approval ticket created.
func (r *Registry) IncApprovalsCreated() {
	r.ApprovalsCreatedTotal.Inc()
}

// IncApprovalsResolved records one approval reaching a terminal state.
func (r *Registry) IncApprovalsResolved(state string) {
	r.ApprovalsResolvedTotal.WithLabelValues(state).Inc()
}

// IncSchedulerRun records one scheduled task execution.
func (r *Registry) IncSchedulerRun(task string) {
	r.SchedulerRunsTotal.WithLabelValues(task).Inc()
}

// IncSchedulerError records one scheduled task execution failure.
func (r *Registry) IncSchedulerError(task string) {
	r.SchedulerErrorsTotal.WithLabelValues(task).Inc()
}

// ObserveSchedulerRunDuration records how long a scheduled run took.
func (r *Registry) ObserveSchedulerRunDuration(task string, d time.Duration) {
	r.SchedulerRunDuration.WithLabelValues(task).Observe(d.Seconds())
}

// IncWebhookDelivery records one webhook delivery attempt outcome
// ("success" or "failure").
func (r *Registry) IncWebhookDelivery(outcome string) {
	r.WebhookDeliveriesTotal.WithLabelValues(outcome).Inc()
}

// IncRateLimitRejected records one request rejected by the rate limiter.
func (r *Registry) IncRateLimitRejected(scope string) {
	r.RateLimitRejectedTotal.WithLabelValues(scope).Inc()
}

// SetKillSwitchEngaged reports the kill-switch's current state.
func (r *Registry) SetKillSwitchEngaged(engaged bool) {
	if engaged {
		r.KillSwitchEngaged.Set(1)
		return
	}
	r.KillSwitchEngaged.Set(0)
}
