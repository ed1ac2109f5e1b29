package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the HTTP header used to propagate the request identifier.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key under which the request ID is stored
	// so handlers can log it without re-reading the response header.
	RequestIDKey = "request_id"
)

// RequestID returns a Gin handler that ensures every request carries a unique
// identifier. An inbound X-Request-ID (set by a load balancer or gateway) is
// reused unchanged; otherwise a new UUID v4 is generated. The identifier is
// stored in gin.Context under RequestIDKey and echoed back in the response
// header so clients can correlate their request with server-side log entries.
//
// Register this before any middleware that logs:
//
//	router.Use(gin.Recovery())
//	router.Use(RequestID())
//	router.Use(Metrics())
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}
