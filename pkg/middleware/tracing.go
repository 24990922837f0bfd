package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yourorg/photo-gallery/pkg/logging"
	"github.com/yourorg/photo-gallery/pkg/utils"
)

const (
	TraceIDKey         = "trace_id"
	TraceIDHeader      = "X-Trace-ID"
	TraceParentHeader  = "traceparent"
	traceParentVersion = "00"
)

// TracingMiddleware extracts the trace ID from X-Trace-ID or a W3C traceparent header and
// generates one when neither is present. The ID is echoed in X-Trace-ID.
func TracingMiddleware(logger logging.Logger, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = traceIDFromParent(c.GetHeader(TraceParentHeader))
		}
		if traceID == "" {
			traceID = utils.GenerateUUID()
			logger.Debug("Trace ID missing, generated new one",
				logging.NewField("service", serviceName),
				logging.NewField("trace_id", traceID),
			)
		}

		ctx := context.WithValue(c.Request.Context(), TraceIDKey, traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		c.Next()
	}
}

// traceIDFromParent returns the trace-id field of a version 00 traceparent value.
func traceIDFromParent(v string) string {
	parts := strings.Split(v, "-")
	if len(parts) != 4 || parts[0] != traceParentVersion || len(parts[1]) != 32 {
		return ""
	}
	if strings.Trim(parts[1], "0") == "" {
		return ""
	}
	return parts[1]
}

// GetTraceID retrieves the trace ID from context.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetTraceIDFromGin retrieves the trace ID from Gin context.
func GetTraceIDFromGin(c *gin.Context) string {
	if traceID, exists := c.Get(TraceIDKey); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}
