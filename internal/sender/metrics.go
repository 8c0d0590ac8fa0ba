package sender

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "notifyr",
		Subsystem: "sender",
		Name:      "dispatch_attempts_total",
		Help:      "Dispatch attempts against reply transports.",
	})
	metricTerminal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notifyr",
		Subsystem: "sender",
		Name:      "sends_terminal_total",
		Help:      "Sends reaching a terminal state.",
	}, []string{"state"})
)
