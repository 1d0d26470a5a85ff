package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	transitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timeclock",
		Subsystem: "tracking",
		Name:      "transitions_total",
		Help:      "Number of committed activity transitions, labeled by resulting state.",
	}, []string{"transition"})

	lastPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "timeclock",
		Subsystem: "tracking",
		Name:      "last_transition_timestamp_seconds",
		Help:      "Unix timestamp of the most recent transition persisted to Postgres.",
	})
)

func init() {
	prometheus.MustRegister(transitionCounter, lastPersistGauge)
}

// RecordTransition counts a committed transition and moves the persistence
// watermark.
func RecordTransition(transition string) {
	transitionCounter.WithLabelValues(transition).Inc()
	lastPersistGauge.Set(float64(time.Now().Unix()))
}
