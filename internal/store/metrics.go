// internal/store/metrics.go
package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "notifyr",
		Subsystem: "ledger",
		Name:      "events_admitted_total",
		Help:      "Events admitted into the ledger.",
	})
	metricDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "notifyr",
		Subsystem: "ledger",
		Name:      "events_duplicate_total",
		Help:      "Events rejected as duplicates.",
	})
	metricEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "notifyr",
		Subsystem: "ledger",
		Name:      "events_evicted_total",
		Help:      "Events evicted by the capacity bound.",
	})
)
