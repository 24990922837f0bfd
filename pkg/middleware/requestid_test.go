package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/yourorg/photo-gallery/pkg/utils"
)

func TestRequestIDMiddleware_GeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var fromCtx string
	router := gin.New()
	router.Use(RequestIDMiddleware(""))
	router.GET("/test", func(c *gin.Context) {
		fromCtx = GetRequestID(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"request_id": GetRequestIDFromGin(c)})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	header := w.Header().Get(RequestIDHeader)
	assert.True(t, utils.IsValidUUID(header))
	assert.Equal(t, header, fromCtx)
}

func TestRequestIDMiddleware_KeepsIncomingID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestIDMiddleware(RequestIDHeader))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestIDFromGin(c))
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(RequestIDHeader, "upstream-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "upstream-42", w.Body.String())
	assert.Equal(t, "upstream-42", w.Header().Get(RequestIDHeader))
}
