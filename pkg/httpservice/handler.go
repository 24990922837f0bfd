package httpservice

import (
	"github.com/gin-gonic/gin"
	"github.com/yourorg/photo-gallery/pkg/logging"
)

// GetLogger retrieves the contextual logger from the request.
func GetLogger(c *gin.Context) logging.Logger {
	return logging.FromContext(c.Request.Context())
}

// RespondSuccess sends a standard success response.
func RespondSuccess(c *gin.Context, data interface{}) {
	SuccessResponse(c, data)
}

// RespondCreated sends a standard created response.
func RespondCreated(c *gin.Context, data interface{}) {
	CreatedResponse(c, data)
}
