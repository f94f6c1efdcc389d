// Package metrics defines and registers the custom Prometheus metrics of the
// identity service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default registry on package init via
// promauto; HTTP request metrics come from the echoprometheus middleware.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "identity"

// ── Credential metrics ───────────────────────────────────────────────────────

// RegistrationsTotal counts registration attempts.
// Label:
//   - result: "created", "duplicate_email", "invalid_date", "error"
var RegistrationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of registration attempts, by result.",
	},
	[]string{"result"},
)

// LoginsTotal counts login attempts.
// Label:
//   - result: "success", "invalid_credentials", "error"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// TokensIssuedTotal counts tokens handed out to callers.
// Label:
//   - reason: "register", "login", "update_name"
var TokensIssuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Total number of identity tokens issued, by reason.",
	},
	[]string{"reason"},
)

// PasswordResetsTotal counts password reset attempts.
// Label:
//   - result: "success", "user_not_found", "error"
var PasswordResetsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "password_resets_total",
		Help:      "Total number of password reset attempts, by result.",
	},
	[]string{"result"},
)

// ── Recovery outbox metrics ──────────────────────────────────────────────────

// RecoveryRequestsTotal counts recovery requests seen by the dispatcher.
// Label:
//   - outcome: "queued", "dropped", "duplicate", "notified", "failed"
var RecoveryRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recovery_requests_total",
		Help:      "Total number of password recovery requests, by dispatcher outcome.",
	},
	[]string{"outcome"},
)

// RecoveryQueueDepth tracks pending requests in each dispatcher worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var RecoveryQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "recovery_queue_depth",
		Help:      "Current number of recovery requests pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)
