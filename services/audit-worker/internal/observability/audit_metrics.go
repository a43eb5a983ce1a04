package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_audit",
			Name:      "events_received_total",
			Help:      "Ledger events pulled by the worker",
		},
		[]string{"topic"},
	)

	EventsVerified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_audit",
			Name:      "verified_total",
			Help:      "Events whose stored record matched",
		},
		[]string{"type"},
	)

	IntegrityViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_audit",
			Name:      "integrity_violations_total",
			Help:      "Events that did not match the stored ledger, by reason",
		},
		[]string{"reason"},
	)

	DuplicatesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger_audit",
			Name:      "duplicates_skipped_total",
			Help:      "Redelivered events skipped because they were already audited",
		},
	)

	DLQPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_audit",
			Name:      "dlq_total",
			Help:      "Events sent to the integrity DLQ by reason",
		},
		[]string{"reason"},
	)

	AuditLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ledger_audit",
			Name:      "audit_duration_seconds",
			Help:      "Time to audit one event",
			Buckets:   prometheus.DefBuckets,
		},
	)

	InflightAudits = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ledger_audit",
			Name:      "inflight",
			Help:      "Audits currently running",
		},
	)
)
