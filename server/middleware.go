package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/RyanBlaney/sonido-fatigue/logging"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

// requestID tags every request with an id, reusing the caller's when given,
// and puts it in the request context so pipeline logs carry it.
func requestID(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(RequestIDHeader, id)

		ctx := logging.ContextWithFields(c.Request.Context(), logging.Fields{"request_id": id})
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		logger.WithContext(ctx).Info("HTTP request", logging.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
	}
}
