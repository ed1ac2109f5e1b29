// Package middleware provides Gin HTTP middleware for the catalog monitor.
// Everything in this package is registered in internal/api/router.go ahead of
// the route handlers so every request is covered regardless of handler.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ckan-monitor/ckan-monitor/internal/telemetry"
)

// Metrics returns a Gin handler that records request count and latency for
// every request passing through the router.
//
// Recorded metrics:
//   - http_requests_total{method, path, status}    — CounterVec
//   - http_request_duration_seconds{method, path}  — HistogramVec
//
// The path label uses c.FullPath(), the matched route template, rather than
// the raw URL. Requests that match no registered route (404/405) use the
// literal "<no-route>" so scanners probing random paths cannot inflate label
// cardinality.
//
// Register after gin.Recovery() so the status written by the panic handler is
// captured correctly.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
