package middleware

import (
	"time"

	"github.com/routemq/routemq/core"
)

// MetricsCollector is the interface that metrics backends must implement.
// This keeps the middleware decoupled from any specific metrics library;
// metricscollector.Prometheus (package core/middleware/metricscollector)
// is the concrete backend wired by SPEC_FULL.md.
type MetricsCollector interface {
	// MessageProcessed records that a message was processed. topic is the
	// resolved topic the message arrived on, duration is processing time,
	// and err is nil on success.
	MessageProcessed(topic string, duration time.Duration, err error)
}

// Metrics returns middleware that reports processing metrics to the given
// collector, labeling each observation with the context's resolved topic.
func Metrics(collector MetricsCollector) core.MiddlewareFunc {
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(c core.Context) error {
			start := time.Now()
			err := next(c)
			collector.MessageProcessed(c.Topic(), time.Since(start), err)
			return err
		}
	}
}
