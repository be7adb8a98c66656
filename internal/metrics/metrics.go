// Package metrics exposes forwarding counters in Prometheus format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Forwarding metrics
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaybot_messages_received_total",
			Help: "Inbound messages seen by the forwarding engine",
		},
		[]string{"type"},
	)

	ForwardOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaybot_forward_outcomes_total",
			Help: "Per-destination forwarding outcomes",
		},
		[]string{"status", "reason"},
	)

	ForwardDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relaybot_forward_duration_seconds",
			Help:    "Time from dispatch start to terminal outcome",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30},
		},
		[]string{"status"},
	)

	SendAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relaybot_send_attempts_total",
			Help: "Transport send calls, including size retries",
		},
	)

	AttachmentsOmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relaybot_attachments_omitted_total",
			Help: "Attachments left out of forwarded messages",
		},
	)

	AttachmentBytesOmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relaybot_attachment_bytes_omitted_total",
			Help: "Bytes of attachments left out of forwarded messages",
		},
	)

	// Rule and guild housekeeping
	RulesDeactivated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaybot_rules_deactivated_total",
			Help: "Rules deactivated after a permanent delivery failure",
		},
		[]string{"reason"},
	)

	QuotaExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relaybot_quota_exhausted_total",
			Help: "Forwards refused because a guild reached its daily limit",
		},
	)

	LogPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relaybot_forward_log_pruned_total",
			Help: "Forward log rows removed by retention pruning",
		},
	)

	// HTTP metrics for the ops server
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaybot_http_requests_total",
			Help: "Total ops HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)
