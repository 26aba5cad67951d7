package middleware

import (
	"fmt"
	"log"
	"runtime"

	"github.com/routemq/routemq/core"
)

// Recovery returns middleware that recovers from panics in handlers, logs
// the stack trace, and returns the panic as an error so the pipeline's
// normal error-handling (spec §4.3: logged at the dispatch site, message
// still considered delivered) takes over instead of crashing the worker.
func Recovery() core.MiddlewareFunc {
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(c core.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)
					log.Printf("[RouteMQ] PANIC recovered: topic=%s req=%s: %v\n%s", c.Topic(), c.RequestID(), r, buf[:n])
					err = fmt.Errorf("routemq: panic recovered: %v", r)
				}
			}()
			return next(c)
		}
	}
}
