package devserver

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const RequestIDHeader = "X-Request-ID"

// LoggingMiddleware logs every request with its request id, taken from the
// X-Request-ID header or generated.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)

		logger := log.With().Str("request_id", requestID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Header(RequestIDHeader, requestID)

		c.Next()

		statusCode := c.Writer.Status()
		var event *zerolog.Event
		if statusCode >= 500 {
			event = logger.Error()
		} else {
			event = logger.Debug()
		}
		event.
			Str("method", method).
			Str("path", path).
			Int("status", statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	}
}
