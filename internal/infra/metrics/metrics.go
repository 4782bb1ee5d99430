package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ledger / escalado
var (
	PunishmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kronoz_punishments_total",
		Help: "Punishment records created",
	}, []string{"type", "source"})

	PunishmentsRemovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kronoz_punishments_removed_total",
		Help: "Punishment records deactivated",
	}, []string{"type"})

	EscalationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kronoz_escalations_total",
		Help: "Escalation steps fired, by resulting tier and outcome",
	}, []string{"tier", "outcome"})

	EnforcementFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kronoz_enforcement_failures_total",
		Help: "Platform actions that failed",
	}, []string{"action", "code"})
)

// Workflows
var (
	AppealsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kronoz_appeals_total",
		Help: "Appeal operations",
	}, []string{"operation"})

	LoaTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kronoz_loa_total",
		Help: "LOA operations",
	}, []string{"operation"})

	TicketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kronoz_tickets_total",
		Help: "Ticket operations",
	}, []string{"operation"})

	NotifyFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kronoz_notify_failures_total",
		Help: "Notifications that could not be delivered",
	})

	IntakeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kronoz_appeal_intake_total",
		Help: "Appeal intake webhook outcomes",
	}, []string{"result"})
)

// Jobs
var (
	SweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kronoz_sweep_runs_total",
		Help: "Sweep executions",
	}, []string{"job", "status"})

	SweepTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kronoz_sweep_transitions_total",
		Help: "Records transitioned by sweeps",
	}, []string{"job"})
)

// HTTP
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kronoz_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kronoz_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})
)

// Source devuelve el label "source" de PunishmentsTotal.
func Source(auto bool) string {
	if auto {
		return "auto"
	}
	return "manual"
}

// NormalizePath colapsa los ids numéricos para acotar la cardinalidad.
func NormalizePath(path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		if s != "" && isDigits(s) {
			segs[i] = ":id"
		}
	}
	return "/" + strings.Join(segs, "/")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
