// Package metricscollector provides a prometheus-backed implementation of
// middleware.MetricsCollector (core/middleware/metrics.go).
package metricscollector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus reports message processing outcomes as prometheus metrics: a
// counter of processed messages labeled by topic and outcome, and a
// histogram of processing latency labeled by topic.
type Prometheus struct {
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewPrometheus registers its metrics against reg and returns a collector
// ready to pass to middleware.Metrics. Use prometheus.DefaultRegisterer for
// a process-wide collector, or a fresh prometheus.NewRegistry() in tests.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "routemq",
			Subsystem: "dispatcher",
			Name:      "messages_processed_total",
			Help:      "Messages processed by the dispatcher, labeled by topic and outcome.",
		}, []string{"topic", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "routemq",
			Subsystem: "dispatcher",
			Name:      "message_processing_seconds",
			Help:      "Time spent in a route's middleware chain and handler.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
	}
	reg.MustRegister(p.processed, p.duration)
	return p
}

// MessageProcessed implements middleware.MetricsCollector.
func (p *Prometheus) MessageProcessed(topic string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	p.processed.WithLabelValues(topic, outcome).Inc()
	p.duration.WithLabelValues(topic).Observe(duration.Seconds())
}
