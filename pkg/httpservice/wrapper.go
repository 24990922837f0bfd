package httpservice

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourorg/photo-gallery/pkg/errors"
	"github.com/yourorg/photo-gallery/pkg/logging"
)

// HandlerFunc is a handler function that returns an error.
type HandlerFunc func(c *gin.Context) error

// Wrap wraps a HandlerFunc with entry/exit logging and error handling, so handlers only
// contain business logic. Cancellations are logged at info level; every other error at
// error level with its code.
func Wrap(handlerName string, fn HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := GetLogger(c)
		start := time.Now()

		logger.Debug("Handler started",
			logging.NewField("handler", handlerName),
			logging.NewField("method", c.Request.Method),
			logging.NewField("path", c.Request.URL.Path),
		)

		err := fn(c)
		latency := time.Since(start)

		if err != nil {
			appErr := errors.FromError(err)
			fields := []logging.Field{
				logging.NewField("handler", handlerName),
				logging.NewField("latency_ms", latency.Milliseconds()),
				logging.NewField("code", string(appErr.Code)),
				logging.NewField("error", err),
			}
			if errors.IsCancelled(appErr) {
				logger.Info("Handler cancelled", fields...)
			} else {
				logger.Error("Handler failed", fields...)
			}
			HandleError(c, appErr)
			return
		}

		logger.Debug("Handler completed",
			logging.NewField("handler", handlerName),
			logging.NewField("latency_ms", latency.Milliseconds()),
		)
	}
}
