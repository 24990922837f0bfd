package httpservice

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/yourorg/photo-gallery/pkg/errors"
)

var validate = validator.New()

// BindQuery binds query parameters into req and validates it with go-playground/validator.
// Failures are returned as validation errors.
func BindQuery(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindQuery(req); err != nil {
		return errors.NewValidationError("Invalid query parameters: " + err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return errors.NewValidationError("Validation failed: " + err.Error())
	}
	return nil
}

// BindURI binds path parameters into req and validates it.
func BindURI(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindUri(req); err != nil {
		return errors.NewValidationError("Invalid path parameters: " + err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return errors.NewValidationError("Validation failed: " + err.Error())
	}
	return nil
}

// HandleError writes err as the standard JSON error body and aborts the chain.
func HandleError(c *gin.Context, err error) {
	appErr := errors.FromError(err)
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.ToErrorResponse())
}

// SuccessResponse sends a success response.
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"data": data,
	})
}

// CreatedResponse sends a created response.
func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{
		"data": data,
	})
}
