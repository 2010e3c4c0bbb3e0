// Package metrics defines and registers all custom Prometheus metrics for the
// tenant portal. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation via promauto, and exposed by the /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "portal"

// ── Session metrics ───────────────────────────────────────────────────────────

// AuthLoginsTotal counts login attempts.
// Label:
//   - result: "success", "invalid_credentials", "deactivated", "no_membership", "validation" or "error"
var AuthLoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// AuthRegistrationsTotal counts registration attempts.
// Label:
//   - result: "success", "conflict", "validation" or "error"
var AuthRegistrationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_registrations_total",
		Help:      "Total number of registration attempts, by result.",
	},
	[]string{"result"},
)

// AuthRefreshTotal counts refresh token rotations.
// Label:
//   - result: "success", "invalid", "expired" or "error"
var AuthRefreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_refresh_total",
		Help:      "Total number of refresh token rotations, by result.",
	},
	[]string{"result"},
)

// AuthRefreshReplaysTotal counts presentations of already revoked refresh tokens.
var AuthRefreshReplaysTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_refresh_replays_total",
		Help:      "Total number of revoked refresh tokens presented for rotation.",
	},
)

// AuthTokensPurgedTotal counts refresh token records removed by the sweeper.
var AuthTokensPurgedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_tokens_purged_total",
		Help:      "Total number of revoked or expired refresh token records deleted.",
	},
)

// ── Audit metrics ─────────────────────────────────────────────────────────────

// AuditEventsTotal counts audit events accepted by the dispatcher.
// Label:
//   - type: the audit event type (e.g. "login.failed")
var AuditEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_events_total",
		Help:      "Total number of audit events accepted for persistence, by type.",
	},
	[]string{"type"},
)

// AuditEventsDroppedTotal counts audit events discarded because a worker queue was full
// or the dispatcher was stopped.
var AuditEventsDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_events_dropped_total",
		Help:      "Total number of audit events dropped before persistence.",
	},
)

// AuditQueueDepth tracks the current number of events waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var AuditQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_queue_depth",
		Help:      "Current number of audit events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// AuditWriteDuration measures how long persisting a single audit event takes.
// Label:
//   - result: "ok" or "error"
var AuditWriteDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "audit_write_duration_seconds",
		Help:      "Duration of audit event persistence.",
		Buckets:   prometheus.DefBuckets, // .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
	},
	[]string{"result"},
)
