package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourorg/photo-gallery/pkg/logging"
)

// TelemetryClient receives request level signals. telemetry.NewRelicClient implements it.
type TelemetryClient interface {
	RecordSlowRequest(ctx context.Context, path string, durationMs int64, traceID, requestID string)
	RecordError(ctx context.Context, path, errorMsg string, statusCode int, traceID, requestID string)
}

// SlowRequestMiddleware warns about requests slower than slowThresholdMs and reports them
// to telemetryClient when one is given. Uploads of large photos legitimately take longer,
// so the threshold should be set with that in mind. A non-positive threshold disables
// the check.
func SlowRequestMiddleware(slowThresholdMs int64, telemetryClient TelemetryClient, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if slowThresholdMs <= 0 {
			c.Next()
			return
		}

		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latencyMs := time.Since(start).Milliseconds()
		if latencyMs <= slowThresholdMs {
			return
		}

		traceID := GetTraceIDFromGin(c)
		requestID := GetRequestIDFromGin(c)

		fields := []logging.Field{
			logging.NewField("path", path),
			logging.NewField("method", c.Request.Method),
			logging.NewField("status", c.Writer.Status()),
			logging.NewField("duration_ms", latencyMs),
			logging.NewField("threshold_ms", slowThresholdMs),
		}
		if traceID != "" {
			fields = append(fields, logging.NewField("trace_id", traceID))
		}
		if requestID != "" {
			fields = append(fields, logging.NewField("request_id", requestID))
		}
		logger.Warn("Slow request detected", fields...)

		if telemetryClient != nil {
			telemetryClient.RecordSlowRequest(c.Request.Context(), path, latencyMs, traceID, requestID)
		}
	}
}
