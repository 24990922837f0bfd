package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourorg/photo-gallery/pkg/errors"
	"github.com/yourorg/photo-gallery/pkg/logging"
)

// ErrorHandlerMiddleware provides centralized error handling for HTTP handlers.
// It converts the last error attached to the Gin context into the JSON error body.
// Cancellations are logged at info level since the client is already gone.
// Server side failures (5xx) are reported to telemetryClient, including ones a handler
// already rendered itself; telemetryClient may be nil.
func ErrorHandlerMiddleware(logger logging.Logger, telemetryClient TelemetryClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			if status := c.Writer.Status(); status >= http.StatusInternalServerError {
				recordError(c, telemetryClient, http.StatusText(status), status)
			}
			return
		}

		appErr := errors.FromError(c.Errors.Last().Err)

		ctxLogger := logging.FromContextOr(c.Request.Context(), logger)

		fields := []logging.Field{
			logging.NewField("code", string(appErr.Code)),
			logging.NewField("error", appErr.Error()),
			logging.NewField("status_code", appErr.HTTPStatus),
		}
		if errors.IsCancelled(appErr) {
			ctxLogger.Info("Request cancelled", fields...)
		} else {
			ctxLogger.Error("Request failed", fields...)
			if appErr.HTTPStatus >= http.StatusInternalServerError {
				recordError(c, telemetryClient, appErr.Error(), appErr.HTTPStatus)
			}
		}

		if !c.Writer.Written() {
			c.JSON(appErr.HTTPStatus, appErr.ToErrorResponse())
		}
	}
}

func recordError(c *gin.Context, telemetryClient TelemetryClient, msg string, status int) {
	if telemetryClient == nil {
		return
	}
	telemetryClient.RecordError(c.Request.Context(), c.Request.URL.Path, msg, status,
		GetTraceIDFromGin(c), GetRequestIDFromGin(c))
}

// SetError sets an error in the Gin context to be handled by ErrorHandlerMiddleware.
func SetError(c *gin.Context, err *errors.AppError) {
	_ = c.Error(err)
	c.Abort()
}
