package middleware

import (
	"log"
	"time"

	"github.com/routemq/routemq/core"
)

// Logging returns middleware that logs message processing duration and
// errors. It operates on core.Context rather than the low-level Handler so
// it can log the resolved topic and request id alongside timing, and so it
// composes with the rest of a route's middleware stack (spec §4.3).
func Logging() core.MiddlewareFunc {
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(c core.Context) error {
			start := time.Now()
			err := next(c)
			elapsed := time.Since(start)

			if err != nil {
				log.Printf("[RouteMQ] ERROR topic=%s req=%s elapsed=%s err=%v", c.Topic(), c.RequestID(), elapsed, err)
			} else {
				log.Printf("[RouteMQ] OK    topic=%s req=%s elapsed=%s", c.Topic(), c.RequestID(), elapsed)
			}
			return err
		}
	}
}
