// Package metrics defines and registers all custom Prometheus metrics for the
// payments portal auth API. It is the single source of truth for metric
// names, labels, and help strings.
//
// Metrics are registered with the default Prometheus registry through
// promauto when the package is loaded; RegisterAuditQueue is called once at
// startup after the audit dispatcher exists.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "portal"

// ── Login metrics ─────────────────────────────────────────────────────────────

// LoginAttemptsTotal counts login attempts by result.
// Labels:
//   - kind: "customer" or "employee"
//   - outcome: "success", "invalid_credentials", "locked", "deactivated", "bad_request" or "error"
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, by account kind and outcome.",
	},
	[]string{"kind", "outcome"},
)

// LockoutsTotal counts accounts locked by the attempt that crossed the threshold.
var LockoutsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lockouts_total",
		Help:      "Total number of accounts locked after repeated failures.",
	},
	[]string{"kind"},
)

// LoginDuration measures login latency including password hashing.
var LoginDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "login_duration_seconds",
		Help:      "Duration of login requests from bind to response.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5},
	},
	[]string{"kind"},
)

// ── Registration metrics ──────────────────────────────────────────────────────

// RegistrationsTotal counts customer registrations.
// Label:
//   - result: "created", "validation_error", "conflict" or "error"
var RegistrationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of customer registration requests, by result.",
	},
	[]string{"result"},
)

// ── Token and authorization metrics ───────────────────────────────────────────

// TokenFailuresTotal counts rejected bearer tokens.
// Label:
//   - reason: "missing", "expired" or "invalid"
var TokenFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_failures_total",
		Help:      "Total number of rejected bearer tokens, by reason.",
	},
	[]string{"reason"},
)

// GateDecisionsTotal counts authorization gate decisions.
// Labels:
//   - permission: the permission checked, or "none" for kind-only checks
//   - result: "allow" or the deny reason
var GateDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_decisions_total",
		Help:      "Total number of authorization decisions, by permission and result.",
	},
	[]string{"permission", "result"},
)

// IntegrityFailuresTotal counts stored ciphertexts that failed authentication.
var IntegrityFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "integrity_failures_total",
		Help:      "Total number of encrypted fields that failed the integrity check.",
	},
)

// ── Audit metrics ─────────────────────────────────────────────────────────────

// RegisterAuditQueue exposes the audit dispatcher's backlog and drop count.
func RegisterAuditQueue(depth func() int, dropped func() uint64) {
	promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_queue_depth",
			Help:      "Current number of audit events waiting to be persisted.",
		},
		func() float64 { return float64(depth()) },
	)
	promauto.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_dropped_total",
			Help:      "Total number of audit events dropped because a shard was full.",
		},
		func() float64 { return float64(dropped()) },
	)
}
