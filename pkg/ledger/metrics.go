package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resilient_ledger",
			Name:      "transfers_total",
			Help:      "Transfers by type and outcome code",
		},
		[]string{"type", "outcome"},
	)

	lockRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "resilient_ledger",
			Name:      "lock_retries_total",
			Help:      "Atomic units retried after a lock timeout",
		},
	)

	deviceDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resilient_ledger",
			Name:      "device_denials_total",
			Help:      "Device requests denied by reason",
		},
		[]string{"reason"},
	)
)
