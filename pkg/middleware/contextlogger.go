package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/yourorg/photo-gallery/pkg/logging"
)

// ContextLoggerMiddleware attaches a contextual logger to the request context.
// The logger carries service, route, trace_id and request_id fields, so it must run after
// TracingMiddleware and RequestIDMiddleware.
func ContextLoggerMiddleware(baseLogger logging.Logger, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		fields := []logging.Field{
			logging.NewField("service", serviceName),
		}
		if route := c.FullPath(); route != "" {
			fields = append(fields, logging.NewField("route", route))
		}
		if traceID := GetTraceIDFromGin(c); traceID != "" {
			fields = append(fields, logging.NewField("trace_id", traceID))
		}
		if requestID := GetRequestIDFromGin(c); requestID != "" {
			fields = append(fields, logging.NewField("request_id", requestID))
		}

		ctx := logging.WithLogger(c.Request.Context(), baseLogger.With(fields...))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
